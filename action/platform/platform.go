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

// Package platform maps the runner's OS and architecture onto the nais CLI
// release artifact for it.
package platform

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/nais/setup-nais-cli/action/types"
)

const (
	// SupportedOS is the only runner OS with published nais CLI archives.
	SupportedOS = "Linux"
	// ArtifactPrefix is the prefix of every release archive name.
	ArtifactPrefix = "nais-cli"
	// unknown replaces empty values in error messages.
	unknown = "unknown"
)

// archMap maps runner architectures to release architectures.
var archMap = map[string]string{ //nolint:gochecknoglobals // static mapping table
	"X64":   "amd64",
	"ARM64": "arm64",
}

// ArtifactFilename returns the archive name for a release architecture.
func ArtifactFilename(arch string) string {
	return fmt.Sprintf("%s_linux_%s.tgz", ArtifactPrefix, arch)
}

// Detect resolves the runner OS and architecture into a PlatformInfo.
func Detect(runnerOS, runnerArch string, logger log.FieldLogger) (*types.PlatformInfo, error) {
	logger.Infof("Detected runner OS: %s", runnerOS)
	logger.Infof("Detected runner architecture: %s", runnerArch)

	if runnerOS != SupportedOS {
		return nil, types.NewUnsupportedPlatformError(orUnknown(runnerOS), orUnknown(runnerArch))
	}

	arch, ok := archMap[runnerArch]
	if !ok {
		return nil, types.NewUnsupportedPlatformError(SupportedOS, orUnknown(runnerArch))
	}

	info := &types.PlatformInfo{
		OS:       "linux",
		Arch:     arch,
		Filename: ArtifactFilename(arch),
	}

	logger.Infof("Platform: %s", info.OS)
	logger.Infof("Architecture: %s", info.Arch)
	logger.Infof("Binary filename: %s", info.Filename)

	return info, nil
}

func orUnknown(value string) string {
	if value == "" {
		return unknown
	}

	return value
}
