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

package types

import (
	"errors"
	"fmt"
)

// Kind classifies a setup failure.
type Kind int

const (
	// KindInstall is a generic pipeline failure wrapping an untyped cause.
	KindInstall Kind = iota
	// KindUnsupportedPlatform is returned for an OS or architecture outside the supported set.
	KindUnsupportedPlatform
	// KindRelease is returned when the release API fails or the release does not exist.
	KindRelease
	// KindAssetMissing is returned when the release lacks an expected asset.
	KindAssetMissing
	// KindChecksumMismatch is returned when the archive digest does not match the manifest.
	KindChecksumMismatch
	// KindBinaryNotFound is returned when the extracted archive lacks the binary.
	KindBinaryNotFound
	// KindVerificationFailed is returned when the installed binary cannot report its version.
	KindVerificationFailed
)

// String returns the string representation of the kind.
func (kind Kind) String() string {
	switch kind {
	case KindInstall:
		return "install"
	case KindUnsupportedPlatform:
		return "unsupported-platform"
	case KindRelease:
		return "release"
	case KindAssetMissing:
		return "asset-missing"
	case KindChecksumMismatch:
		return "checksum-mismatch"
	case KindBinaryNotFound:
		return "binary-not-found"
	case KindVerificationFailed:
		return "verification-failed"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrInstall             = &Error{Kind: KindInstall, Message: "installation failed"}
	ErrUnsupportedPlatform = &Error{Kind: KindUnsupportedPlatform, Message: "unsupported platform"}
	ErrRelease             = &Error{Kind: KindRelease, Message: "release lookup failed"}
	ErrAssetMissing        = &Error{Kind: KindAssetMissing, Message: "asset not found"}
	ErrChecksumMismatch    = &Error{Kind: KindChecksumMismatch, Message: "checksum verification failed"}
	ErrBinaryNotFound      = &Error{Kind: KindBinaryNotFound, Message: "binary not found"}
	ErrVerificationFailed  = &Error{Kind: KindVerificationFailed, Message: "installation verification failed"}
)

// Error is a setup failure of a known kind, optionally wrapping the fault
// that caused it.
type Error struct {
	Cause error
	// Checksum is set for KindChecksumMismatch.
	Checksum *ChecksumVerification
	Message  string
	Kind     Kind
}

// Error implements error.
func (err *Error) Error() string {
	if err.Cause != nil {
		return err.Message + ": " + err.Cause.Error()
	}

	return err.Message
}

// Unwrap returns the wrapped cause.
func (err *Error) Unwrap() error {
	return err.Cause
}

// Is reports whether target is an *Error of the same kind.
func (err *Error) Is(target error) bool {
	other, ok := target.(*Error)

	return ok && other.Kind == err.Kind
}

// Errorf creates an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind around cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewUnsupportedPlatformError reports an unsupported OS/architecture pair.
func NewUnsupportedPlatformError(platform, arch string) *Error {
	return Errorf(KindUnsupportedPlatform,
		"unsupported platform: %s %s. This action only supports Linux", platform, arch)
}

// NewAssetMissingError reports that release tag has no asset called name.
func NewAssetMissingError(name, tag string) *Error {
	return Errorf(KindAssetMissing, "asset %s not found in release %s", name, tag)
}

// NewChecksumError reports a failed checksum verification.
func NewChecksumError(expected, actual string) *Error {
	err := Errorf(KindChecksumMismatch,
		"checksum verification failed. Expected: %s, Actual: %s", expected, actual)
	err.Checksum = &ChecksumVerification{
		Expected: expected,
		Actual:   actual,
		Verified: expected == actual,
	}

	return err
}

// IsSetupError reports whether err is, or wraps, an *Error.
func IsSetupError(err error) bool {
	var setupErr *Error

	return errors.As(err, &setupErr)
}
