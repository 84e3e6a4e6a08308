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

// Package installer downloads, verifies and installs a nais CLI release.
//
// The pipeline runs strictly in order: asset lookup, archive and manifest
// download, checksum verification, extraction, binary lookup, mode dependent
// installation and finally `nais --version` self-verification. An archive is
// never extracted before its digest matched the manifest.
package installer

import (
	"context"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/nais/setup-nais-cli/action/config"
	"github.com/nais/setup-nais-cli/action/types"
)

const (
	// BinaryName is the name of the CLI binary inside the archive and on disk.
	BinaryName = "nais"
	// ExecutablePermission is granted to the binary before it is run.
	ExecutablePermission os.FileMode = 0o755
)

type (
	// Downloader fetches a URL into a local temporary file.
	Downloader interface {
		DownloadTool(ctx context.Context, url string) (string, error)
	}

	// Extractor unpacks a tar archive into a new directory.
	Extractor interface {
		ExtractTar(ctx context.Context, archivePath string) (string, error)
	}

	// FileSystem is the set of filesystem operations the pipeline needs.
	FileSystem interface {
		MkdirP(path string) error
		Copy(src, dst string) error
		Chmod(path string, mode os.FileMode) error
		Exists(path string) (bool, error)
	}

	// PathRegistrar puts a directory on PATH for the rest of the job.
	PathRegistrar interface {
		AddPath(dir string) error
	}

	// CommandRunner runs a process and returns its standard output.
	CommandRunner interface {
		Output(ctx context.Context, name string, args ...string) (string, error)
	}

	// Dependencies are the side-effecting collaborators of an Installer.
	Dependencies struct {
		Downloader Downloader
		Extractor  Extractor
		FileSystem FileSystem
		Paths      PathRegistrar
		Runner     CommandRunner
	}

	// Installer runs the install pipeline in a fixed mode.
	Installer struct {
		deps    Dependencies
		logger  log.FieldLogger
		homeDir string
		mode    config.Mode
	}
)

// New creates an Installer. mode and homeDir are fixed for its lifetime.
func New(mode config.Mode, homeDir string, deps Dependencies, logger log.FieldLogger) *Installer {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Installer{
		deps:    deps,
		logger:  logger,
		homeDir: homeDir,
		mode:    mode,
	}
}

// InstallDir returns the permanent install directory, <home>/.local/bin.
func (installer *Installer) InstallDir() string {
	return filepath.Join(installer.homeDir, ".local", "bin")
}

// DownloadAndInstall installs the platform's archive from release and
// reports where the verified binary lives and which version it reported.
func (installer *Installer) DownloadAndInstall(
	ctx context.Context,
	release *types.ReleaseInfo,
	platform *types.PlatformInfo,
) (*types.InstallationResult, error) {
	result, err := installer.install(ctx, release, platform)
	if err != nil {
		if types.IsSetupError(err) {
			return nil, err
		}

		return nil, types.Wrap(types.KindInstall, err, "installation failed")
	}

	return result, nil
}

func (installer *Installer) install(
	ctx context.Context,
	release *types.ReleaseInfo,
	platform *types.PlatformInfo,
) (*types.InstallationResult, error) {
	archiveURL, err := assetURL(release, platform.Filename)
	if err != nil {
		return nil, err
	}

	checksumsURL, err := assetURL(release, ChecksumsAsset)
	if err != nil {
		return nil, err
	}

	installer.logger.Infof("Downloading %s from %s...", platform.Filename, release.TagName)

	archivePath, err := installer.deps.Downloader.DownloadTool(ctx, archiveURL)
	if err != nil {
		return nil, err
	}

	installer.logger.Info("Downloading checksums...")

	checksumsPath, err := installer.deps.Downloader.DownloadTool(ctx, checksumsURL)
	if err != nil {
		return nil, err
	}

	verification, err := VerifyChecksum(archivePath, platform.Filename, checksumsPath)
	if err != nil {
		return nil, err
	}

	if !verification.Verified {
		return nil, types.NewChecksumError(verification.Expected, verification.Actual)
	}

	installer.logger.Info("Checksum verification passed")
	installer.logger.Info("Extracting binary...")

	extractedPath, err := installer.deps.Extractor.ExtractTar(ctx, archivePath)
	if err != nil {
		return nil, err
	}

	binaryPath, err := installer.findBinary(extractedPath)
	if err != nil {
		return nil, err
	}

	installer.logger.Infof("Found nais binary: %s", binaryPath)

	if installer.mode == config.ModeDryRun {
		return installer.verifyInPlace(ctx, binaryPath)
	}

	return installer.installPermanently(ctx, binaryPath)
}

// verifyInPlace makes the extracted binary executable and verifies it
// without copying it anywhere or touching PATH.
func (installer *Installer) verifyInPlace(ctx context.Context, binaryPath string) (*types.InstallationResult, error) {
	installer.logger.Info("Running in dry-run mode - skipping permanent installation")

	if err := installer.deps.FileSystem.Chmod(binaryPath, ExecutablePermission); err != nil {
		return nil, err
	}

	version, err := installer.verifyInstallation(ctx, binaryPath)
	if err != nil {
		return nil, err
	}

	installer.logger.Infof("nais CLI %s verified successfully (dry-run mode)!", version)

	return &types.InstallationResult{BinaryPath: binaryPath, Version: version}, nil
}

// installPermanently copies the binary to the install directory and puts
// that directory on PATH before verifying it.
func (installer *Installer) installPermanently(ctx context.Context, binaryPath string) (*types.InstallationResult, error) {
	installDir := installer.InstallDir()
	targetPath := filepath.Join(installDir, BinaryName)

	if err := installer.deps.FileSystem.MkdirP(installDir); err != nil {
		return nil, err
	}

	if err := installer.deps.FileSystem.Copy(binaryPath, targetPath); err != nil {
		return nil, err
	}

	if err := installer.deps.FileSystem.Chmod(targetPath, ExecutablePermission); err != nil {
		return nil, err
	}

	installer.logger.Infof("Installed nais CLI to: %s", targetPath)
	installer.logger.WithFields(log.Fields{
		"dir":  installDir,
		"home": installer.homeDir,
	}).Debug("Install directory resolved")

	if err := installer.deps.Paths.AddPath(installDir); err != nil {
		return nil, err
	}

	installer.logger.Infof("Added %s to PATH", installDir)

	version, err := installer.verifyInstallation(ctx, targetPath)
	if err != nil {
		return nil, err
	}

	installer.logger.Infof("nais CLI %s installed successfully!", version)

	return &types.InstallationResult{BinaryPath: targetPath, Version: version}, nil
}

// findBinary returns <extractedPath>/nais if it exists.
func (installer *Installer) findBinary(extractedPath string) (string, error) {
	binaryPath := filepath.Join(extractedPath, BinaryName)

	exists, err := installer.deps.FileSystem.Exists(binaryPath)
	if err != nil || !exists {
		return "", &types.Error{
			Kind:    types.KindBinaryNotFound,
			Message: "could not find nais binary in " + extractedPath,
			Cause:   err,
		}
	}

	return binaryPath, nil
}

// verifyInstallation runs `<binaryPath> --version` and parses the version.
func (installer *Installer) verifyInstallation(ctx context.Context, binaryPath string) (string, error) {
	output, err := installer.deps.Runner.Output(ctx, binaryPath, "--version")
	if err != nil {
		return "", types.Wrap(types.KindVerificationFailed, err, "failed to verify installation")
	}

	return ParseVersion(output), nil
}

// assetURL returns the download URL of the asset called name.
func assetURL(release *types.ReleaseInfo, name string) (string, error) {
	asset, ok := release.FindAsset(name)
	if !ok {
		return "", types.NewAssetMissingError(name, release.TagName)
	}

	return asset.DownloadURL, nil
}
