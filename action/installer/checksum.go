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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nais/setup-nais-cli/action/types"
)

const (
	// ChecksumsAsset is the release asset holding the SHA-256 manifest.
	ChecksumsAsset = "checksums.txt"
	// artifactPrefix prefixes every entry of the manifest.
	artifactPrefix = "./release_artifacts/"

	checksumNotFound = "not found"
	checksumUnknown  = "unknown"
)

// VerifyChecksum checks the archive at archivePath against the manifest
// entry for filename. A manifest without an entry yields a checksum error
// with expected "not found" and actual "unknown"; otherwise the returned
// verification reports whether the digests are equal.
func VerifyChecksum(archivePath, filename, manifestPath string) (*types.ChecksumVerification, error) {
	manifest, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading checksums: %w", err)
	}

	expected, ok := ExpectedChecksum(string(manifest), filename)
	if !ok {
		return nil, types.NewChecksumError(checksumNotFound, checksumUnknown)
	}

	actual, err := FileSHA256(archivePath)
	if err != nil {
		return nil, err
	}

	return &types.ChecksumVerification{
		Expected: expected,
		Actual:   actual,
		Verified: expected == actual,
	}, nil
}

// ExpectedChecksum returns the first whitespace-separated token of the first
// manifest line mentioning "./release_artifacts/<filename>".
func ExpectedChecksum(manifest, filename string) (string, bool) {
	entry := artifactPrefix + filename

	for line := range strings.SplitSeq(manifest, "\n") {
		if !strings.Contains(line, entry) {
			continue
		}

		// the line holds entry, so it has at least one field
		return strings.Fields(line)[0], true
	}

	return "", false
}

// FileSHA256 returns the lowercase hex SHA-256 digest of the file at path.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for checksum: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("computing checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
