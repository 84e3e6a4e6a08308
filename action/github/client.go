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

// Package github resolves nais CLI releases through the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nais/setup-nais-cli/action/types"
)

// API configuration constants.
const (
	// APIVersion is the GitHub REST API version header value.
	APIVersion = "2022-11-28"
	// DefaultAPIURL is the public GitHub REST API.
	DefaultAPIURL = "https://api.github.com"
	// Repository is the owner/name of the nais CLI repository.
	Repository = "nais/cli"
	// LatestVersion selects the most recent release.
	LatestVersion = "latest"
	// UserAgent is sent with every request.
	UserAgent = "setup-nais-cli"

	// httpTimeout is the default timeout for HTTP requests.
	httpTimeout = 30 * time.Second
)

type (
	// HTTPClient interface for HTTP operations (allows mocking).
	HTTPClient interface {
		// Do sends an HTTP request and returns an HTTP response.
		Do(req *http.Request) (*http.Response, error)
	}

	// Client provides methods to interact with the GitHub REST API.
	Client struct {
		httpClient HTTPClient
		logger     log.FieldLogger
		apiURL     string
		authToken  string
	}

	// Option configures a Client.
	Option func(*Client)

	// AssetResponse represents a release asset from the GitHub API.
	AssetResponse struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	}

	// ReleaseResponse represents a release from the GitHub API.
	ReleaseResponse struct {
		TagName string          `json:"tag_name"`
		Assets  []AssetResponse `json:"assets,omitempty"`
	}
)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(client *Client) {
		client.httpClient = httpClient
	}
}

// WithAPIURL sets the API base URL, e.g. for GitHub Enterprise Server.
func WithAPIURL(apiURL string) Option {
	return func(client *Client) {
		if apiURL != "" {
			client.apiURL = apiURL
		}
	}
}

// WithToken sets the bearer token sent with API requests.
func WithToken(token string) Option {
	return func(client *Client) {
		client.authToken = token
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new GitHub API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		logger:     log.StandardLogger(),
		apiURL:     DefaultAPIURL,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// ReleaseURL returns the API URL resolving version: the latest release for
// "latest", otherwise the release tagged exactly version.
func (client *Client) ReleaseURL(version string) string {
	if version == LatestVersion {
		return fmt.Sprintf("%s/repos/%s/releases/latest", client.apiURL, Repository)
	}

	return fmt.Sprintf("%s/repos/%s/releases/tags/%s", client.apiURL, Repository, url.PathEscape(version))
}

// GetReleaseInfo resolves version into a tag name and its assets.
func (client *Client) GetReleaseInfo(ctx context.Context, version string) (*types.ReleaseInfo, error) {
	if version == LatestVersion {
		client.logger.Info("Fetching latest release information...")
	} else {
		client.logger.Infof("Fetching release information for %s...", version)
	}

	release, err := client.fetchRelease(ctx, client.ReleaseURL(version))
	if err != nil {
		if types.IsSetupError(err) {
			return nil, err
		}

		return nil, types.Wrap(types.KindRelease, err, "failed to fetch release information")
	}

	if version != LatestVersion && release.TagName == "" {
		return nil, types.Errorf(types.KindRelease, "release %s not found", version)
	}

	client.logger.Infof("Using nais CLI version: %s", release.TagName)

	info := &types.ReleaseInfo{
		TagName: release.TagName,
		Assets:  make([]types.ReleaseAsset, 0, len(release.Assets)),
	}

	for _, asset := range release.Assets {
		info.Assets = append(info.Assets, types.ReleaseAsset{
			Name:        asset.Name,
			DownloadURL: asset.BrowserDownloadURL,
		})
	}

	return info, nil
}

// fetchRelease fetches and decodes a single release.
func (client *Client) fetchRelease(ctx context.Context, releaseURL string) (*ReleaseResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-Github-Api-Version", APIVersion)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", UserAgent)

	if client.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+client.authToken)
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.Errorf(types.KindRelease, "GitHub API request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, types.Errorf(types.KindRelease, "no release data returned from GitHub API")
	}

	var release *ReleaseResponse
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if release == nil {
		return nil, types.Errorf(types.KindRelease, "no release data returned from GitHub API")
	}

	return release, nil
}
