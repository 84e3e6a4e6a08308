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

// Package types holds the data model shared by the setup pipeline and its
// error taxonomy.
package types

type (
	// PlatformInfo is a supported (os, arch, artifact filename) triple.
	// Filename is always derived from OS and Arch.
	PlatformInfo struct {
		OS       string
		Arch     string
		Filename string
	}

	// ReleaseInfo is a resolved release of the nais CLI.
	ReleaseInfo struct {
		TagName string
		// Assets is never nil; a release without assets carries an empty slice.
		Assets []ReleaseAsset
	}

	// ReleaseAsset is a single downloadable file of a release.
	ReleaseAsset struct {
		Name        string
		DownloadURL string
	}

	// ChecksumVerification is the outcome of comparing a manifest digest
	// with the digest of a downloaded file.
	ChecksumVerification struct {
		Expected string
		Actual   string
		Verified bool
	}

	// InstallationResult is the terminal output of a successful setup.
	InstallationResult struct {
		// BinaryPath is the absolute path of the executable usable by later steps.
		BinaryPath string
		// Version is the version the binary reported about itself.
		Version string
	}
)

// FindAsset returns the first asset named name.
func (release *ReleaseInfo) FindAsset(name string) (ReleaseAsset, bool) {
	for _, asset := range release.Assets {
		if asset.Name == name {
			return asset, true
		}
	}

	return ReleaseAsset{}, false
}
