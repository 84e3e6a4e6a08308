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

// Package toolcache holds the side-effecting collaborators of the install
// pipeline: downloads into the runner temp directory, tar extraction,
// filesystem operations and process execution.
package toolcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
)

const (
	// downloadTimeout bounds a single asset download.
	downloadTimeout = 30 * time.Minute
	// progressThrottle is the minimum interval between progress bar redraws.
	progressThrottle = 100 * time.Millisecond
)

// errDownloadFailed indicates that an HTTP download completed with a non-success status code.
var errDownloadFailed = errors.New("download failed")

type (
	// HTTPClient interface for HTTP operations (allows mocking).
	HTTPClient interface {
		// Do sends an HTTP request and returns an HTTP response.
		Do(req *http.Request) (*http.Response, error)
	}

	// Downloader fetches release assets into uniquely named files under a
	// temp directory and remembers them for Cleanup.
	Downloader struct {
		httpClient HTTPClient
		logger     log.FieldLogger
		progress   io.Writer
		tempDir    string
		files      []string
		mu         sync.Mutex
	}

	// DownloaderOption configures a Downloader.
	DownloaderOption func(*Downloader)
)

// WithHTTPClient sets the HTTP client used for downloads.
func WithHTTPClient(httpClient HTTPClient) DownloaderOption {
	return func(downloader *Downloader) {
		downloader.httpClient = httpClient
	}
}

// WithDownloadLogger sets the logger.
func WithDownloadLogger(logger log.FieldLogger) DownloaderOption {
	return func(downloader *Downloader) {
		downloader.logger = logger
	}
}

// WithProgress renders a byte progress bar to writer while downloading.
func WithProgress(writer io.Writer) DownloaderOption {
	return func(downloader *Downloader) {
		downloader.progress = writer
	}
}

// NewDownloader creates a Downloader writing into tempDir.
func NewDownloader(tempDir string, opts ...DownloaderOption) *Downloader {
	downloader := &Downloader{
		httpClient: &http.Client{Timeout: downloadTimeout},
		logger:     log.StandardLogger(),
		tempDir:    tempDir,
	}

	for _, opt := range opts {
		opt(downloader)
	}

	return downloader
}

// DownloadTool downloads url and returns the path of the local copy.
func (downloader *Downloader) DownloadTool(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	downloader.logger.Debugf("Downloading %s", url)

	resp, err := downloader.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w with status %d for %s", errDownloadFailed, resp.StatusCode, url)
	}

	if err := os.MkdirAll(downloader.tempDir, DirectoryPermission); err != nil {
		return "", fmt.Errorf("creating temp directory %s: %w", downloader.tempDir, err)
	}

	destPath := filepath.Join(downloader.tempDir, uuid.NewString())

	tempFile, err := os.CreateTemp(downloader.tempDir, ".download.tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file in %s: %w", downloader.tempDir, err)
	}

	tempPath := tempFile.Name()

	defer func() {
		tempFile.Close()

		if _, err := os.Stat(tempPath); err == nil {
			os.Remove(tempPath)
		}
	}()

	if _, err := io.Copy(downloader.sink(tempFile, resp.ContentLength, url), resp.Body); err != nil {
		return "", fmt.Errorf("writing file %s: %w", destPath, err)
	}

	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		return "", fmt.Errorf("renaming temp file to %s: %w", destPath, err)
	}

	downloader.mu.Lock()
	downloader.files = append(downloader.files, destPath)
	downloader.mu.Unlock()

	return destPath, nil
}

// Cleanup removes every file downloaded so far, reporting all failures.
func (downloader *Downloader) Cleanup() error {
	downloader.mu.Lock()
	files := downloader.files
	downloader.files = nil
	downloader.mu.Unlock()

	var result *multierror.Error

	for _, path := range files {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, fmt.Errorf("removing %s: %w", path, err))
		}
	}

	return result.ErrorOrNil()
}

// sink returns file, teeing into a progress bar when one is configured and
// the size is known.
func (downloader *Downloader) sink(file io.Writer, size int64, url string) io.Writer {
	if downloader.progress == nil || size <= 0 {
		return file
	}

	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(downloader.progress),
		progressbar.OptionSetDescription(filepath.Base(url)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(progressThrottle),
	)

	return io.MultiWriter(file, bar)
}
