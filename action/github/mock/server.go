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

// Package mock provides an httptest server that imitates the GitHub release
// API and release asset downloads for tests.
package mock

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/ulikunitz/xz"
)

// ExecutablePermission is the mode of files written into mock archives.
const ExecutablePermission = 0o755

type (
	// Asset represents a release asset in API responses.
	Asset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	}

	// Release represents a release in API responses.
	Release struct {
		TagName string  `json:"tag_name"`
		Assets  []Asset `json:"assets,omitempty"`
	}

	// rawResponse is a canned response for an API path.
	rawResponse struct {
		body   []byte
		status int
	}

	// Server provides a mock GitHub API and download server for testing.
	Server struct {
		HTTPServer *httptest.Server
		releases   map[string]rawResponse
		downloads  map[string][]byte
		requests   []*http.Request
		Repository string
		mu         sync.RWMutex
	}
)

// NewServer creates a new mock server for repository ("owner/name").
func NewServer(repository string) *Server {
	srv := &Server{
		Repository: repository,
		releases:   make(map[string]rawResponse),
		downloads:  make(map[string][]byte),
	}

	srv.HTTPServer = httptest.NewServer(http.HandlerFunc(srv.handle))

	return srv
}

// URL returns the base URL of the mock server.
func (server *Server) URL() string {
	return server.HTTPServer.URL
}

// Client returns the HTTP client for the mock server.
func (server *Server) Client() *http.Client {
	return server.HTTPServer.Client()
}

// Close shuts down the mock server.
func (server *Server) Close() {
	server.HTTPServer.Close()
}

// DownloadURL returns the URL an asset registered under tag and name is served from.
func (server *Server) DownloadURL(tag, name string) string {
	return server.URL() + server.downloadPath(tag, name)
}

// AddRelease registers a release under tag and, when latest is true, as the
// latest release. Every registered download of the tag is listed as an asset.
func (server *Server) AddRelease(tag string, latest bool) {
	server.mu.Lock()
	defer server.mu.Unlock()

	prefix := server.downloadPath(tag, "")

	names := make([]string, 0, len(server.downloads))
	for path := range server.downloads {
		if name, ok := strings.CutPrefix(path, prefix); ok {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	release := Release{TagName: tag, Assets: make([]Asset, 0, len(names))}
	for _, name := range names {
		release.Assets = append(release.Assets, Asset{
			Name:               name,
			BrowserDownloadURL: server.URL() + prefix + name,
		})
	}

	server.setReleaseLocked(tag, latest, release)
}

// SetRelease registers an arbitrary release payload for tag.
func (server *Server) SetRelease(tag string, latest bool, release any) {
	server.mu.Lock()
	defer server.mu.Unlock()

	server.setReleaseLocked(tag, latest, release)
}

// SetRawResponse registers a raw status and body for tag's API path.
func (server *Server) SetRawResponse(tag string, status int, body string) {
	server.mu.Lock()
	defer server.mu.Unlock()

	server.releases[server.releasePath(tag)] = rawResponse{status: status, body: []byte(body)}
}

// RegisterFile registers a release asset with the given content.
func (server *Server) RegisterFile(tag, name string, content []byte) {
	server.mu.Lock()
	defer server.mu.Unlock()

	server.downloads[server.downloadPath(tag, name)] = content
}

// RegisterTarGz registers a tar.gz release asset with the given files and
// returns the archive bytes.
func (server *Server) RegisterTarGz(tag, name string, files map[string]string) []byte {
	content := TarGz(files)
	server.RegisterFile(tag, name, content)

	return content
}

// RegisterTarXz registers a tar.xz release asset with the given files and
// returns the archive bytes.
func (server *Server) RegisterTarXz(tag, name string, files map[string]string) []byte {
	content := TarXz(files)
	server.RegisterFile(tag, name, content)

	return content
}

// RegisterChecksums registers a checksums.txt asset in the publisher's
// "<digest>  ./release_artifacts/<name>" format for the given assets.
func (server *Server) RegisterChecksums(tag string, assets map[string][]byte) {
	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}

	sort.Strings(names)

	var manifest strings.Builder
	for _, name := range names {
		fmt.Fprintf(&manifest, "%s  ./release_artifacts/%s\n", SHA256(assets[name]), name)
	}

	server.RegisterFile(tag, "checksums.txt", []byte(manifest.String()))
}

// Requests returns the paths requested so far.
func (server *Server) Requests() []string {
	server.mu.RLock()
	defer server.mu.RUnlock()

	paths := make([]string, 0, len(server.requests))
	for _, req := range server.requests {
		paths = append(paths, req.URL.Path)
	}

	return paths
}

// LastHeader returns header key of the most recent request.
func (server *Server) LastHeader(key string) string {
	server.mu.RLock()
	defer server.mu.RUnlock()

	if len(server.requests) == 0 {
		return ""
	}

	return server.requests[len(server.requests)-1].Header.Get(key)
}

func (server *Server) setReleaseLocked(tag string, latest bool, release any) {
	body, err := json.Marshal(release)
	if err != nil {
		panic(fmt.Sprintf("mock: encoding release %s: %v", tag, err))
	}

	server.releases[server.releasePath(tag)] = rawResponse{status: http.StatusOK, body: body}
	if latest {
		server.releases[server.releasePath("latest")] = rawResponse{status: http.StatusOK, body: body}
	}
}

func (server *Server) releasePath(tag string) string {
	if tag == "latest" {
		return fmt.Sprintf("/repos/%s/releases/latest", server.Repository)
	}

	return fmt.Sprintf("/repos/%s/releases/tags/%s", server.Repository, tag)
}

func (server *Server) downloadPath(tag, name string) string {
	return fmt.Sprintf("/%s/releases/download/%s/%s", server.Repository, tag, name)
}

// handle dispatches API and download requests, answering 404 for anything
// not registered.
func (server *Server) handle(writer http.ResponseWriter, req *http.Request) {
	server.mu.Lock()
	server.requests = append(server.requests, req.Clone(req.Context()))
	release, isRelease := server.releases[req.URL.Path]
	download, isDownload := server.downloads[req.URL.Path]
	server.mu.Unlock()

	switch {
	case isRelease:
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(release.status)

		_, _ = writer.Write(release.body) //nolint:errcheck // we'll ignore mocked errors
	case isDownload:
		writer.Header().Set("Content-Type", "application/octet-stream")

		_, _ = writer.Write(download) //nolint:errcheck // we'll ignore mocked errors
	default:
		http.NotFound(writer, req)
	}
}

// SHA256 returns the lowercase hex SHA-256 digest of content.
func SHA256(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}

// TarGz builds a tar.gz archive holding files.
func TarGz(files map[string]string) []byte {
	var buf bytes.Buffer

	gw := gzip.NewWriter(&buf)
	writeTar(gw, files)

	if err := gw.Close(); err != nil {
		panic(fmt.Sprintf("mock: closing gzip writer: %v", err))
	}

	return buf.Bytes()
}

// TarXz builds a tar.xz archive holding files.
func TarXz(files map[string]string) []byte {
	var buf bytes.Buffer

	xw, err := xz.NewWriter(&buf)
	if err != nil {
		panic(fmt.Sprintf("mock: creating xz writer: %v", err))
	}

	writeTar(xw, files)

	if err := xw.Close(); err != nil {
		panic(fmt.Sprintf("mock: closing xz writer: %v", err))
	}

	return buf.Bytes()
}

// writeTar writes files, sorted by name, as a tar stream.
func writeTar(writer io.Writer, files map[string]string) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	tw := tar.NewWriter(writer)

	for _, name := range names {
		content := files[name]

		hdr := &tar.Header{
			Name:     name,
			Mode:     ExecutablePermission,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}

		if err := tw.WriteHeader(hdr); err != nil {
			panic(fmt.Sprintf("mock: writing tar header %s: %v", name, err))
		}

		if _, err := tw.Write([]byte(content)); err != nil {
			panic(fmt.Sprintf("mock: writing tar entry %s: %v", name, err))
		}
	}

	if err := tw.Close(); err != nil {
		panic(fmt.Sprintf("mock: closing tar writer: %v", err))
	}
}
