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

// Package setup sequences platform detection, release resolution and
// installation, each inside its own log group.
package setup

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/nais/setup-nais-cli/action/config"
	"github.com/nais/setup-nais-cli/action/core"
	"github.com/nais/setup-nais-cli/action/github"
	"github.com/nais/setup-nais-cli/action/installer"
	"github.com/nais/setup-nais-cli/action/platform"
	"github.com/nais/setup-nais-cli/action/toolcache"
	"github.com/nais/setup-nais-cli/action/types"
)

// Log group titles.
const (
	GroupPlatform = "Detecting platform"
	GroupRelease  = "Getting release information"
	GroupInstall  = "Downloading and installing nais CLI"
)

// Action output names.
const (
	OutputVersion = "version"
	OutputPath    = "path"
)

type (
	// ReleaseResolver resolves a version into release metadata.
	ReleaseResolver interface {
		GetReleaseInfo(ctx context.Context, version string) (*types.ReleaseInfo, error)
	}

	// Installer installs a release for a platform.
	Installer interface {
		DownloadAndInstall(
			ctx context.Context,
			release *types.ReleaseInfo,
			platform *types.PlatformInfo,
		) (*types.InstallationResult, error)
	}

	// Setup runs one nais CLI setup.
	Setup struct {
		action    *core.Action
		cfg       *config.Config
		releases  ReleaseResolver
		installer Installer
		cleanup   func() error
	}
)

// New creates a Setup from its collaborators. cleanup, if not nil, runs
// after every Run.
func New(
	action *core.Action,
	cfg *config.Config,
	releases ReleaseResolver,
	pipeline Installer,
	cleanup func() error,
) *Setup {
	return &Setup{
		action:    action,
		cfg:       cfg,
		releases:  releases,
		installer: pipeline,
		cleanup:   cleanup,
	}
}

// NewDefault wires the GitHub client, runner temp directory, local
// filesystem and process runner. Download progress is drawn on progress
// when it is not nil.
func NewDefault(action *core.Action, cfg *config.Config, progress io.Writer) *Setup {
	logger := action.Logger()

	client := github.NewClient(
		github.WithAPIURL(cfg.APIURL),
		github.WithToken(cfg.Token),
		github.WithLogger(logger),
	)

	downloadOpts := []toolcache.DownloaderOption{toolcache.WithDownloadLogger(logger)}
	if progress != nil {
		downloadOpts = append(downloadOpts, toolcache.WithProgress(progress))
	}

	downloader := toolcache.NewDownloader(cfg.TempDir, downloadOpts...)

	pipeline := installer.New(cfg.Mode, cfg.HomeDir, installer.Dependencies{
		Downloader: downloader,
		Extractor:  toolcache.NewExtractor(cfg.TempDir, logger),
		FileSystem: toolcache.OSFileSystem{},
		Paths:      action,
		Runner:     toolcache.ExecRunner{},
	}, logger)

	return New(action, cfg, client, pipeline, downloader.Cleanup)
}

// Run detects the platform, resolves the configured version and installs
// it. Errors from the three steps are returned unchanged. On success the
// version and path outputs are set.
func (setup *Setup) Run(ctx context.Context) (*types.InstallationResult, error) {
	defer setup.runCleanup()

	logger := setup.action.Logger()
	logger.WithFields(log.Fields{"mode": setup.cfg.Mode}).Debug("Execution mode resolved")

	var (
		platformInfo *types.PlatformInfo
		release      *types.ReleaseInfo
		result       *types.InstallationResult
	)

	err := setup.action.Group(GroupPlatform, func() error {
		var err error
		platformInfo, err = platform.Detect(setup.cfg.RunnerOS, setup.cfg.RunnerArch, logger)

		return err
	})
	if err != nil {
		return nil, err
	}

	err = setup.action.Group(GroupRelease, func() error {
		var err error
		release, err = setup.releases.GetReleaseInfo(ctx, setup.cfg.Version)

		return err
	})
	if err != nil {
		return nil, err
	}

	err = setup.action.Group(GroupInstall, func() error {
		var err error
		result, err = setup.installer.DownloadAndInstall(ctx, release, platformInfo)

		return err
	})
	if err != nil {
		return nil, err
	}

	if err := setup.action.SetOutput(OutputVersion, result.Version); err != nil {
		return nil, err
	}

	if err := setup.action.SetOutput(OutputPath, result.BinaryPath); err != nil {
		return nil, err
	}

	return result, nil
}

// runCleanup removes temporary downloads. Failures only warn.
func (setup *Setup) runCleanup() {
	if setup.cleanup == nil {
		return
	}

	if err := setup.cleanup(); err != nil {
		setup.action.Logger().Warnf("Failed to clean up temporary files: %v", err)
	}
}
