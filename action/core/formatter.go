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

package core

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// WorkflowFormatter renders logrus entries as GitHub Actions workflow commands.
// Info entries are printed as plain lines, other levels as ::debug::,
// ::warning:: and ::error:: commands.
type WorkflowFormatter struct{}

// Format implements logrus.Formatter.
func (WorkflowFormatter) Format(entry *log.Entry) ([]byte, error) {
	var buf bytes.Buffer

	message := entry.Message
	if len(entry.Data) > 0 {
		message += " " + formatFields(entry.Data)
	}

	switch entry.Level {
	case log.TraceLevel, log.DebugLevel:
		fmt.Fprintf(&buf, "::debug::%s\n", EscapeData(message))
	case log.WarnLevel:
		fmt.Fprintf(&buf, "::warning::%s\n", EscapeData(message))
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		fmt.Fprintf(&buf, "::error::%s\n", EscapeData(message))
	default:
		buf.WriteString(message)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(fields log.Fields) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, fields[key]))
	}

	return strings.Join(pairs, " ")
}

// EscapeData escapes a workflow command payload so that multi-line
// messages survive the runner's line-oriented parser.
func EscapeData(data string) string {
	data = strings.ReplaceAll(data, "%", "%25")
	data = strings.ReplaceAll(data, "\r", "%0D")

	return strings.ReplaceAll(data, "\n", "%0A")
}
