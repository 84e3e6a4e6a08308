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
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nais/setup-nais-cli/action/github/mock"
	"github.com/nais/setup-nais-cli/action/types"
)

var _ = Describe("VerifyChecksum", func() {
	var (
		dir     string
		archive string
		digest  string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		archive = filepath.Join(dir, "nais-cli_linux_amd64.tgz")
		digest = mock.SHA256([]byte("test content"))

		Expect(os.WriteFile(archive, []byte("test content"), 0o600)).To(Succeed())
	})

	writeManifest := func(content string) string {
		path := filepath.Join(dir, "checksums.txt")
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())

		return path
	}

	It("verifies a matching digest", func() {
		manifest := writeManifest(strings.Join([]string{
			mock.SHA256([]byte("other")) + "  ./release_artifacts/nais-cli_linux_arm64.tgz",
			digest + "  ./release_artifacts/nais-cli_linux_amd64.tgz",
			"",
		}, "\n"))

		verification, err := VerifyChecksum(archive, "nais-cli_linux_amd64.tgz", manifest)
		Expect(err).NotTo(HaveOccurred())
		Expect(*verification).To(Equal(types.ChecksumVerification{
			Expected: digest,
			Actual:   digest,
			Verified: true,
		}))
	})

	It("reports a mismatch when the archive content changes", func() {
		manifest := writeManifest(digest + "  ./release_artifacts/nais-cli_linux_amd64.tgz\n")
		Expect(os.WriteFile(archive, []byte("test contenT"), 0o600)).To(Succeed())

		verification, err := VerifyChecksum(archive, "nais-cli_linux_amd64.tgz", manifest)
		Expect(err).NotTo(HaveOccurred())
		Expect(verification.Verified).To(BeFalse())
		Expect(verification.Expected).To(Equal(digest))
		Expect(verification.Actual).NotTo(Equal(digest))
	})

	It("compares digests case-sensitively", func() {
		manifest := writeManifest(strings.ToUpper(digest) + "  ./release_artifacts/nais-cli_linux_amd64.tgz\n")

		verification, err := VerifyChecksum(archive, "nais-cli_linux_amd64.tgz", manifest)
		Expect(err).NotTo(HaveOccurred())
		Expect(verification.Verified).To(BeFalse())
	})

	It("requires the release_artifacts prefix", func() {
		manifest := writeManifest(digest + "  nais-cli_linux_amd64.tgz\n")

		_, err := VerifyChecksum(archive, "nais-cli_linux_amd64.tgz", manifest)
		Expect(err).To(MatchError(types.ErrChecksumMismatch))
		Expect(err.Error()).To(Equal("checksum verification failed. Expected: not found, Actual: unknown"))
	})

	It("fails when the manifest cannot be read", func() {
		_, err := VerifyChecksum(archive, "nais-cli_linux_amd64.tgz", filepath.Join(dir, "missing"))
		Expect(err).To(MatchError(os.ErrNotExist))
		Expect(types.IsSetupError(err)).To(BeFalse())
	})

	It("fails when the archive cannot be read", func() {
		manifest := writeManifest(digest + "  ./release_artifacts/nais-cli_linux_amd64.tgz\n")

		_, err := VerifyChecksum(filepath.Join(dir, "missing"), "nais-cli_linux_amd64.tgz", manifest)
		Expect(err).To(MatchError(os.ErrNotExist))
	})
})

var _ = DescribeTable("ExpectedChecksum",
	func(manifest, expected string, found bool) {
		digest, ok := ExpectedChecksum(manifest, "nais-cli_linux_amd64.tgz")
		Expect(ok).To(Equal(found))
		Expect(digest).To(Equal(expected))
	},
	Entry("single entry", "abc  ./release_artifacts/nais-cli_linux_amd64.tgz\n", "abc", true),
	Entry("tab separated", "abc\t./release_artifacts/nais-cli_linux_amd64.tgz", "abc", true),
	Entry("first matching line wins",
		"first  ./release_artifacts/nais-cli_linux_amd64.tgz\nsecond  ./release_artifacts/nais-cli_linux_amd64.tgz\n",
		"first", true),
	Entry("substring match on a longer name",
		"sbom  ./release_artifacts/nais-cli_linux_amd64.tgz.sbom.json\nabc  ./release_artifacts/nais-cli_linux_amd64.tgz\n",
		"sbom", true),
	Entry("CRLF line endings", "abc  ./release_artifacts/nais-cli_linux_amd64.tgz\r\n", "abc", true),
	Entry("other architecture only", "abc  ./release_artifacts/nais-cli_linux_arm64.tgz\n", "", false),
	Entry("empty manifest", "", "", false),
)
