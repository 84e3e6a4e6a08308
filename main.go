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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nais/setup-nais-cli/action/config"
	"github.com/nais/setup-nais-cli/action/core"
	"github.com/nais/setup-nais-cli/action/setup"
)

var (
	// version, commit and date are set via ldflags at build time by the release
	// tooling.
	version = "dev" //nolint:gochecknoglobals // build metadata set via ldflags
	// commit set via ldflags at build time by the release tooling.
	commit = "none" //nolint:gochecknoglobals // build metadata set via ldflags
	// date set via ldflags at build time by the release tooling.
	date = "unknown" //nolint:gochecknoglobals // build metadata set via ldflags
)

// main is the entry point of the setup-nais-cli action.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(os.Stdout, progressWriter()).ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the action command. Workflow commands are written to
// out; download progress, if any, to progress.
func newRootCmd(out io.Writer, progress io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "setup-nais-cli",
		Short:         "Install the nais CLI on a GitHub Actions runner",
		Long:          "Downloads a nais CLI release, verifies its checksum and puts the binary on PATH.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, out, progress)
		},
	}

	cmd.Flags().String(config.KeyVersion, "", `nais CLI version to install, "latest" or a release tag (env INPUT_VERSION)`)
	cmd.Flags().Bool(config.KeyDryRun, false, "verify the release without installing it (env NAIS_CLI_DRY_RUN)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the action version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "setup-nais-cli %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return cmd
}

// run loads the configuration and performs the setup. Any failure is
// reported as an error annotation before being returned.
func run(cmd *cobra.Command, out io.Writer, progress io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		core.New(out).SetFailed("Failed to setup nais CLI: " + err.Error())
		return err
	}

	action := core.New(out,
		core.WithPathFile(cfg.PathFile),
		core.WithOutputFile(cfg.OutputFile),
		core.WithDebug(cfg.RunnerDebug),
	)

	action.Logger().Infof("Setting up nais CLI version: %s", cfg.Version)

	if _, err := setup.NewDefault(action, cfg, progress).Run(cmd.Context()); err != nil {
		action.SetFailed("Failed to setup nais CLI: " + err.Error())
		return err
	}

	action.Logger().Info("nais CLI setup completed successfully!")

	return nil
}

// loadConfig reads the environment, with the command's flags taking
// precedence when set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.NewViper()
	if err != nil {
		return nil, err
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	return config.Load(v)
}

// progressWriter returns stderr when it is a terminal.
func progressWriter() io.Writer {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	return os.Stderr
}
