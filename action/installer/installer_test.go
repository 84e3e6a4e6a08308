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
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	log "github.com/sirupsen/logrus"

	"github.com/nais/setup-nais-cli/action/config"
	"github.com/nais/setup-nais-cli/action/github/mock"
	"github.com/nais/setup-nais-cli/action/toolcache"
	"github.com/nais/setup-nais-cli/action/types"
)

const (
	testTag       = "v3.8.3"
	archiveURL    = "https://example.com/nais-cli_linux_amd64.tgz"
	checksumsURL  = "https://example.com/checksums.txt"
	extractedDir  = "/work/extracted"
	homeDir       = "/home/runner"
	versionOutput = "nais version v3.8.3\n"
)

var amd64Platform = &types.PlatformInfo{OS: "linux", Arch: "amd64", Filename: "nais-cli_linux_amd64.tgz"}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)

	return logger
}

// fixture wires an Installer to recording fakes around a real archive and
// manifest on disk.
type fixture struct {
	rec        *recorder
	downloader *fakeDownloader
	extractor  *fakeExtractor
	filesystem *fakeFileSystem
	paths      *fakePaths
	runner     *fakeRunner
	release    *types.ReleaseInfo
	archive    string
}

func newFixture(manifest string) *fixture {
	fix, err := buildFixture(GinkgoT().TempDir(), manifest)
	Expect(err).NotTo(HaveOccurred())

	return fix
}

func buildFixture(dir, manifest string) (*fixture, error) {
	archivePath := filepath.Join(dir, "archive")
	manifestPath := filepath.Join(dir, "manifest")

	if err := os.WriteFile(archivePath, []byte("archive-bytes"), 0o600); err != nil {
		return nil, err
	}

	if err := os.WriteFile(manifestPath, []byte(manifest), 0o600); err != nil {
		return nil, err
	}

	rec := &recorder{}

	return &fixture{
		rec: rec,
		downloader: &fakeDownloader{rec: rec, files: map[string]string{
			archiveURL:   archivePath,
			checksumsURL: manifestPath,
		}},
		extractor:  &fakeExtractor{rec: rec, dir: extractedDir},
		filesystem: &fakeFileSystem{rec: rec, errs: map[string]error{}},
		paths:      &fakePaths{rec: rec},
		runner:     &fakeRunner{rec: rec, output: versionOutput},
		release: &types.ReleaseInfo{
			TagName: testTag,
			Assets: []types.ReleaseAsset{
				{Name: "nais-cli_linux_amd64.tgz", DownloadURL: archiveURL},
				{Name: "checksums.txt", DownloadURL: checksumsURL},
			},
		},
		archive: archivePath,
	}, nil
}

func validManifest() string {
	return mock.SHA256([]byte("archive-bytes")) + "  ./release_artifacts/nais-cli_linux_amd64.tgz\n"
}

func (fix *fixture) installer(mode config.Mode, logger log.FieldLogger) *Installer {
	return New(mode, homeDir, Dependencies{
		Downloader: fix.downloader,
		Extractor:  fix.extractor,
		FileSystem: fix.filesystem,
		Paths:      fix.paths,
		Runner:     fix.runner,
	}, logger)
}

func (fix *fixture) run(mode config.Mode) (*types.InstallationResult, error) {
	return fix.installer(mode, quietLogger()).DownloadAndInstall(context.Background(), fix.release, amd64Platform)
}

var _ = Describe("Installer", func() {
	var fix *fixture

	BeforeEach(func() {
		fix = newFixture(validManifest())
	})

	Describe("dry-run mode", func() {
		It("verifies the extracted binary without installing it", func() {
			result, err := fix.run(config.ModeDryRun)
			Expect(err).NotTo(HaveOccurred())
			Expect(*result).To(Equal(types.InstallationResult{
				BinaryPath: "/work/extracted/nais",
				Version:    "v3.8.3",
			}))

			Expect(fix.rec.calls).To(Equal([]string{
				"download " + archiveURL,
				"download " + checksumsURL,
				"extract " + fix.archive,
				"exists /work/extracted/nais",
				"chmod /work/extracted/nais 755",
				"run /work/extracted/nais [--version]",
			}))
		})
	})

	Describe("normal mode", func() {
		It("copies the binary, registers PATH and then verifies", func() {
			result, err := fix.run(config.ModeNormal)
			Expect(err).NotTo(HaveOccurred())
			Expect(*result).To(Equal(types.InstallationResult{
				BinaryPath: "/home/runner/.local/bin/nais",
				Version:    "v3.8.3",
			}))

			Expect(fix.rec.calls).To(Equal([]string{
				"download " + archiveURL,
				"download " + checksumsURL,
				"extract " + fix.archive,
				"exists /work/extracted/nais",
				"mkdir /home/runner/.local/bin",
				"copy /work/extracted/nais /home/runner/.local/bin/nais",
				"chmod /home/runner/.local/bin/nais 755",
				"add-path /home/runner/.local/bin",
				"run /home/runner/.local/bin/nais [--version]",
			}))
		})

		DescribeTable("wraps filesystem failures as installation failures",
			func(operation string) {
				cause := errors.New("permission denied")
				fix.filesystem.errs[operation] = cause

				_, err := fix.run(config.ModeNormal)
				Expect(err).To(MatchError(types.ErrInstall))
				Expect(errors.Is(err, cause)).To(BeTrue())
				Expect(err.Error()).To(Equal("installation failed: permission denied"))
				Expect(fix.rec.calls).NotTo(ContainElement(HavePrefix("add-path")))
			},
			Entry("mkdir", "mkdir"),
			Entry("copy", "copy"),
			Entry("chmod", "chmod"),
		)

		It("does not verify when PATH registration fails", func() {
			fix.paths.err = errors.New("read-only file system")

			_, err := fix.run(config.ModeNormal)
			Expect(err).To(MatchError(types.ErrInstall))
			Expect(fix.rec.calls).NotTo(ContainElement(HavePrefix("run")))
		})
	})

	Describe("asset lookup", func() {
		It("names the tag and the missing archive", func() {
			fix.release.Assets = fix.release.Assets[1:]

			_, err := fix.run(config.ModeDryRun)
			Expect(err).To(MatchError(types.ErrAssetMissing))
			Expect(err.Error()).To(Equal("asset nais-cli_linux_amd64.tgz not found in release v3.8.3"))
			Expect(fix.rec.calls).To(BeEmpty())
		})

		It("fails before downloading when the manifest asset is missing", func() {
			fix.release.Assets = fix.release.Assets[:1]

			_, err := fix.run(config.ModeDryRun)
			Expect(err).To(MatchError(types.ErrAssetMissing))
			Expect(err.Error()).To(Equal("asset checksums.txt not found in release v3.8.3"))
			Expect(fix.rec.calls).To(BeEmpty())
		})

		It("uses the first asset with a matching name", func() {
			fix.release.Assets = append([]types.ReleaseAsset{
				{Name: "nais-cli_linux_amd64.tgz", DownloadURL: archiveURL},
			}, fix.release.Assets...)
			fix.release.Assets[1].DownloadURL = "https://example.com/duplicate"

			_, err := fix.run(config.ModeDryRun)
			Expect(err).NotTo(HaveOccurred())
			Expect(fix.rec.calls[0]).To(Equal("download " + archiveURL))
		})
	})

	Describe("checksum verification", func() {
		It("fails before extraction when one digest character changes", func() {
			digest := mock.SHA256([]byte("archive-bytes"))
			altered := "0" + digest[1:]
			if digest[0] == '0' {
				altered = "1" + digest[1:]
			}

			fix = newFixture(altered + "  ./release_artifacts/nais-cli_linux_amd64.tgz\n")

			_, err := fix.run(config.ModeDryRun)
			Expect(err).To(MatchError(types.ErrChecksumMismatch))

			var setupErr *types.Error
			Expect(errors.As(err, &setupErr)).To(BeTrue())
			Expect(*setupErr.Checksum).To(Equal(types.ChecksumVerification{
				Expected: altered,
				Actual:   digest,
				Verified: false,
			}))

			Expect(fix.rec.calls).To(Equal([]string{
				"download " + archiveURL,
				"download " + checksumsURL,
			}))
		})

		It("fails when the manifest has no entry for the archive", func() {
			fix = newFixture(mock.SHA256([]byte("archive-bytes")) + "  ./release_artifacts/nais-cli_linux_arm64.tgz\n")

			_, err := fix.run(config.ModeDryRun)
			Expect(err).To(MatchError(types.ErrChecksumMismatch))
			Expect(err.Error()).To(Equal("checksum verification failed. Expected: not found, Actual: unknown"))
			Expect(fix.rec.calls).NotTo(ContainElement(HavePrefix("extract")))
		})
	})

	Describe("binary lookup", func() {
		It("fails when the archive has no nais binary at its root", func() {
			fix.filesystem.missing = true

			_, err := fix.run(config.ModeDryRun)
			Expect(err).To(MatchError(types.ErrBinaryNotFound))
			Expect(err.Error()).To(Equal("could not find nais binary in /work/extracted"))
			Expect(fix.rec.calls).NotTo(ContainElement(HavePrefix("chmod")))
		})
	})

	Describe("self-verification", func() {
		It("fails when the binary cannot run", func() {
			cause := errors.New("exit status 1")
			fix.runner.err = cause

			_, err := fix.run(config.ModeDryRun)
			Expect(err).To(MatchError(types.ErrVerificationFailed))
			Expect(errors.Is(err, cause)).To(BeTrue())
			Expect(err.Error()).To(Equal("failed to verify installation: exit status 1"))
		})

		It("falls back to the whole output", func() {
			fix.runner.output = "  3.8.3\n"

			result, err := fix.run(config.ModeDryRun)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Version).To(Equal("3.8.3"))
		})
	})

	Describe("error wrapping", func() {
		It("wraps untyped download failures", func() {
			cause := errors.New("connection reset")
			fix.downloader.err = cause

			_, err := fix.run(config.ModeDryRun)
			Expect(err).To(MatchError(types.ErrInstall))
			Expect(errors.Unwrap(err)).To(BeIdenticalTo(cause))
			Expect(err.Error()).To(Equal("installation failed: connection reset"))
		})

		It("passes domain errors through unchanged", func() {
			domainErr := types.Errorf(types.KindRelease, "release v3.8.3 not found")
			fix.downloader.err = domainErr

			_, err := fix.run(config.ModeDryRun)
			Expect(err).To(BeIdenticalTo(domainErr))
		})

		It("wraps extraction failures", func() {
			fix.extractor.err = errors.New("unexpected EOF")

			_, err := fix.run(config.ModeDryRun)
			Expect(err).To(MatchError(types.ErrInstall))
			Expect(err.Error()).To(Equal("installation failed: unexpected EOF"))
		})
	})

	It("derives the install directory from the home directory", func() {
		Expect(fix.installer(config.ModeNormal, nil).InstallDir()).To(Equal("/home/runner/.local/bin"))
	})
})

var _ = Describe("Installer against a release server", func() {
	const script = "#!/bin/sh\necho \"nais version v3.8.3\"\n"

	var (
		server  *mock.Server
		release *types.ReleaseInfo
		rec     *recorder
		tempDir string
		home    string
	)

	BeforeEach(func() {
		server = mock.NewServer("nais/cli")
		DeferCleanup(server.Close)

		archive := server.RegisterTarGz(testTag, "nais-cli_linux_amd64.tgz", map[string]string{
			"nais":      script,
			"README.md": "nais",
		})
		server.RegisterChecksums(testTag, map[string][]byte{"nais-cli_linux_amd64.tgz": archive})
		server.AddRelease(testTag, true)

		release = &types.ReleaseInfo{
			TagName: testTag,
			Assets: []types.ReleaseAsset{
				{Name: "nais-cli_linux_amd64.tgz", DownloadURL: server.DownloadURL(testTag, "nais-cli_linux_amd64.tgz")},
				{Name: "checksums.txt", DownloadURL: server.DownloadURL(testTag, "checksums.txt")},
			},
		}

		rec = &recorder{}
		tempDir = GinkgoT().TempDir()
		home = GinkgoT().TempDir()
	})

	newInstaller := func(mode config.Mode) *Installer {
		return New(mode, home, Dependencies{
			Downloader: toolcache.NewDownloader(tempDir,
				toolcache.WithHTTPClient(server.Client()),
				toolcache.WithDownloadLogger(quietLogger()),
			),
			Extractor:  toolcache.NewExtractor(tempDir, quietLogger()),
			FileSystem: toolcache.OSFileSystem{},
			Paths:      &fakePaths{rec: rec},
			Runner:     toolcache.ExecRunner{},
		}, quietLogger())
	}

	It("verifies v3.8.3 in dry-run mode from its extracted location", func() {
		result, err := newInstaller(config.ModeDryRun).DownloadAndInstall(context.Background(), release, amd64Platform)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Version).To(Equal("v3.8.3"))
		Expect(filepath.Dir(filepath.Dir(result.BinaryPath))).To(Equal(tempDir))
		Expect(filepath.Base(result.BinaryPath)).To(Equal("nais"))
		Expect(rec.calls).To(BeEmpty())
		Expect(filepath.Join(home, ".local")).NotTo(BeADirectory())
	})

	It("installs v3.8.3 into the home directory in normal mode", func() {
		result, err := newInstaller(config.ModeNormal).DownloadAndInstall(context.Background(), release, amd64Platform)
		Expect(err).NotTo(HaveOccurred())
		Expect(*result).To(Equal(types.InstallationResult{
			BinaryPath: filepath.Join(home, ".local", "bin", "nais"),
			Version:    "v3.8.3",
		}))
		Expect(rec.calls).To(Equal([]string{"add-path " + filepath.Join(home, ".local", "bin")}))
		Expect(os.ReadFile(result.BinaryPath)).To(Equal([]byte(script)))
	})

	It("rejects a tampered archive", func() {
		server.RegisterTarGz(testTag, "nais-cli_linux_amd64.tgz", map[string]string{"nais": "#!/bin/sh\necho pwned\n"})

		_, err := newInstaller(config.ModeDryRun).DownloadAndInstall(context.Background(), release, amd64Platform)
		Expect(err).To(MatchError(types.ErrChecksumMismatch))
	})
})
