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

// Package config reads the action input and the runner environment once per
// run and derives the execution mode from it.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Viper keys.
const (
	KeyVersion       = "version"
	KeyDryRun        = "dry-run"
	KeyTestMode      = "test-mode"
	KeyCI            = "ci"
	KeyGitHubActions = "github-actions"
	KeyRunnerOS      = "runner-os"
	KeyRunnerArch    = "runner-arch"
	KeyRunnerTemp    = "runner-temp"
	KeyRunnerDebug   = "runner-debug"
	KeyHome          = "home"
	KeyPathFile      = "github-path"
	KeyOutputFile    = "github-output"
	KeyAPIURL        = "github-api-url"
	KeyToken         = "token"
)

const (
	// DefaultVersion is used when no version input is given.
	DefaultVersion = "latest"
	// DefaultAPIURL is the public GitHub REST API.
	DefaultAPIURL = "https://api.github.com"
)

// envBindings maps viper keys to the environment variables they are read from,
// in order of precedence.
var envBindings = map[string][]string{ //nolint:gochecknoglobals // static binding table
	KeyVersion:       {"INPUT_VERSION"},
	KeyDryRun:        {"NAIS_CLI_DRY_RUN"},
	KeyTestMode:      {"NAIS_CLI_TEST_MODE"},
	KeyCI:            {"CI"},
	KeyGitHubActions: {"GITHUB_ACTIONS"},
	KeyRunnerOS:      {"RUNNER_OS"},
	KeyRunnerArch:    {"RUNNER_ARCH"},
	KeyRunnerTemp:    {"RUNNER_TEMP"},
	KeyRunnerDebug:   {"RUNNER_DEBUG"},
	KeyHome:          {"HOME"},
	KeyPathFile:      {"GITHUB_PATH"},
	KeyOutputFile:    {"GITHUB_OUTPUT"},
	KeyAPIURL:        {"GITHUB_API_URL"},
	KeyToken:         {"INPUT_TOKEN", "GITHUB_TOKEN"},
}

// Mode is the execution mode of the install pipeline.
type Mode int

const (
	// ModeNormal installs into the home directory and registers it on PATH.
	ModeNormal Mode = iota
	// ModeDryRun downloads, verifies and runs the binary from its temporary
	// location without any permanent side effects.
	ModeDryRun
)

// String returns the string representation of the mode.
func (mode Mode) String() string {
	if mode == ModeDryRun {
		return "dry-run"
	}

	return "normal"
}

// Config is the resolved configuration of one run.
type Config struct {
	Version     string
	RunnerOS    string
	RunnerArch  string
	TempDir     string
	HomeDir     string
	PathFile    string
	OutputFile  string
	APIURL      string
	Token       string
	Mode        Mode
	RunnerDebug bool
}

// NewViper returns a viper instance with every key bound to its environment
// variables and defaults applied.
func NewViper() (*viper.Viper, error) {
	v := viper.New()

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	v.SetDefault(KeyVersion, DefaultVersion)
	v.SetDefault(KeyAPIURL, DefaultAPIURL)

	return v, nil
}

// Load reads the configuration from v. It is called once per run; the mode
// decision it makes is not revisited later.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Version:     strings.TrimSpace(v.GetString(KeyVersion)),
		RunnerOS:    v.GetString(KeyRunnerOS),
		RunnerArch:  v.GetString(KeyRunnerArch),
		TempDir:     v.GetString(KeyRunnerTemp),
		HomeDir:     v.GetString(KeyHome),
		PathFile:    v.GetString(KeyPathFile),
		OutputFile:  v.GetString(KeyOutputFile),
		APIURL:      strings.TrimRight(v.GetString(KeyAPIURL), "/"),
		Token:       v.GetString(KeyToken),
		RunnerDebug: v.GetString(KeyRunnerDebug) == "1",
		Mode: ResolveMode(
			v.GetString(KeyTestMode),
			v.GetString(KeyDryRun),
			v.GetString(KeyCI),
			v.GetString(KeyGitHubActions),
		),
	}

	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}

	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}

	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	if cfg.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}

		cfg.HomeDir = home
	}

	return cfg, nil
}

// ResolveMode selects dry-run when the test-mode or dry-run flag is "true",
// or when CI is "true" outside of GitHub Actions.
func ResolveMode(testMode, dryRun, ci, githubActions string) Mode {
	if testMode == "true" || dryRun == "true" || (ci == "true" && githubActions == "") {
		return ModeDryRun
	}

	return ModeNormal
}
