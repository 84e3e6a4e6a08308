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

package toolcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DirectoryPermission is the default permission used when creating directories.
const DirectoryPermission os.FileMode = 0o755

// execCommandContext is a variable for exec.CommandContext to allow mocking in tests.
var execCommandContext = exec.CommandContext //nolint:gochecknoglobals // used for testing

type (
	// OSFileSystem performs filesystem operations on the local disk.
	OSFileSystem struct{}

	// ExecRunner runs processes on the local machine.
	ExecRunner struct{}
)

// MkdirP creates path and any missing parents.
func (OSFileSystem) MkdirP(path string) error {
	if err := os.MkdirAll(path, DirectoryPermission); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}

	return nil
}

// Copy copies the file at src to dst, replacing dst atomically and keeping
// the source permissions.
func (OSFileSystem) Copy(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(dst), fmt.Sprintf(".%s.tmp-*", filepath.Base(dst)))
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", filepath.Dir(dst), err)
	}

	tempPath := tempFile.Name()

	defer func() {
		tempFile.Close()

		if _, err := os.Stat(tempPath); err == nil {
			os.Remove(tempPath)
		}
	}()

	if _, err := io.Copy(tempFile, srcFile); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}

	if err := tempFile.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("setting mode of %s: %w", dst, err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, dst); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", dst, err)
	}

	return nil
}

// Chmod changes the mode of path.
func (OSFileSystem) Chmod(path string, mode os.FileMode) error {
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}

	return nil
}

// Exists reports whether path exists.
func (OSFileSystem) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}

// Output runs name with args and returns its standard output. Standard error
// is captured and appended to the error when the process fails.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := execCommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("running %s: %w: %s", name, err, msg)
		}

		return "", fmt.Errorf("running %s: %w", name, err)
	}

	return stdout.String(), nil
}
