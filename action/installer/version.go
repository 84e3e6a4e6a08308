//
// Copyright (c) 2025 NAV (Norwegian Labour and Welfare Administration)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package installer

import (
	"regexp"
	"strings"
)

// versionPattern matches e.g. "nais version v3.8.3".
var versionPattern = regexp.MustCompile(`version\s+(.+)`)

// ParseVersion extracts the version from `nais --version` output, falling
// back to the whole trimmed output.
func ParseVersion(output string) string {
	if match := versionPattern.FindStringSubmatch(output); match != nil {
		return strings.TrimSpace(match[1])
	}

	return strings.TrimSpace(output)
}
