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

// Package core talks to the GitHub Actions runner: workflow-command logging,
// collapsible log groups, PATH registration, step outputs and failure signalling.
package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// commandFilePermission is the mode used when a runner command file has to be created.
const commandFilePermission os.FileMode = 0o644

// errInvalidOutputName is returned for output names the runner cannot parse.
var errInvalidOutputName = errors.New("invalid output name")

type (
	// Action is the runner-facing side of the setup.
	Action struct {
		out        io.Writer
		logger     *log.Logger
		getenv     func(string) string
		setenv     func(string, string) error
		pathFile   string
		outputFile string
	}

	// Option configures an Action.
	Option func(*Action)
)

// WithPathFile sets the $GITHUB_PATH command file.
func WithPathFile(path string) Option {
	return func(action *Action) {
		action.pathFile = path
	}
}

// WithOutputFile sets the $GITHUB_OUTPUT command file.
func WithOutputFile(path string) Option {
	return func(action *Action) {
		action.outputFile = path
	}
}

// WithDebug enables ::debug:: output.
func WithDebug(enabled bool) Option {
	return func(action *Action) {
		if enabled {
			action.logger.SetLevel(log.DebugLevel)
		}
	}
}

// WithEnv replaces the process environment accessors, used by tests.
func WithEnv(getenv func(string) string, setenv func(string, string) error) Option {
	return func(action *Action) {
		action.getenv = getenv
		action.setenv = setenv
	}
}

// New creates an Action writing workflow commands to out.
func New(out io.Writer, opts ...Option) *Action {
	logger := log.New()
	logger.SetOutput(out)
	logger.SetFormatter(WorkflowFormatter{})
	logger.SetLevel(log.InfoLevel)

	action := &Action{
		out:    out,
		logger: logger,
		getenv: os.Getenv,
		setenv: os.Setenv,
	}

	for _, opt := range opts {
		opt(action)
	}

	return action
}

// Logger returns the logger used for step output.
func (action *Action) Logger() log.FieldLogger {
	return action.logger
}

// StartGroup begins a collapsible output group.
func (action *Action) StartGroup(name string) {
	fmt.Fprintf(action.out, "::group::%s\n", EscapeData(name))
}

// EndGroup ends the current output group.
func (action *Action) EndGroup() {
	fmt.Fprintln(action.out, "::endgroup::")
}

// Group runs fn inside a collapsible output group. The group is closed
// whether fn succeeds or not.
func (action *Action) Group(name string, fn func() error) error {
	action.StartGroup(name)
	defer action.EndGroup()

	return fn()
}

// AddPath prepends dir to PATH for this process and, through $GITHUB_PATH,
// for all following steps of the job.
func (action *Action) AddPath(dir string) error {
	if action.pathFile != "" {
		if err := appendCommandFile(action.pathFile, dir+"\n"); err != nil {
			return fmt.Errorf("registering %s on PATH: %w", dir, err)
		}
	} else {
		fmt.Fprintf(action.out, "::add-path::%s\n", EscapeData(dir))
	}

	current := action.getenv("PATH")
	if current == "" {
		return action.setenv("PATH", dir)
	}

	return action.setenv("PATH", dir+string(os.PathListSeparator)+current)
}

// SetOutput publishes a step output through $GITHUB_OUTPUT. Without a
// command file the legacy ::set-output:: command is printed instead.
func (action *Action) SetOutput(name, value string) error {
	if name == "" || strings.ContainsAny(name, "\r\n=") {
		return fmt.Errorf("%w: %q", errInvalidOutputName, name)
	}

	if action.outputFile == "" {
		fmt.Fprintf(action.out, "::set-output name=%s::%s\n", name, EscapeData(value))
		return nil
	}

	delimiter := "ghadelimiter_" + uuid.NewString()

	entry := fmt.Sprintf("%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter)
	if err := appendCommandFile(action.outputFile, entry); err != nil {
		return fmt.Errorf("setting output %s: %w", name, err)
	}

	return nil
}

// SetFailed reports message as an error annotation. The caller is
// responsible for exiting with a non-zero status.
func (action *Action) SetFailed(message string) {
	action.logger.Error(message)
}

// appendCommandFile appends content to a runner command file.
func appendCommandFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, commandFilePermission)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
