// Package version reports the build version and looks up newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// Name is the program name reported to clients
	Name = "glint-ls"

	// Version is the current version of glint-ls
	Version = "0.3.0"

	// Repo is the GitHub repository path
	Repo = "ctagard/glint-ls"

	releaseURL = "https://api.github.com/repos/%s/releases/latest"
)

// Release describes the latest published release
type Release struct {
	Current         string `json:"current"`
	Latest          string `json:"latest"`
	UpdateAvailable bool   `json:"updateAvailable"`
	URL             string `json:"url,omitempty"`
}

// String renders the release for the version command
func (r *Release) String() string {
	if !r.UpdateAvailable {
		return fmt.Sprintf("%s %s is up to date", Name, r.Current)
	}
	return fmt.Sprintf("%s %s is available (current: %s): %s", Name, r.Latest, r.Current, r.URL)
}

// Checker queries the release endpoint
type Checker struct {
	client  *http.Client
	baseURL string
}

// NewChecker creates a checker for the public GitHub API
func NewChecker() *Checker {
	return &Checker{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: fmt.Sprintf(releaseURL, Repo),
	}
}

// Latest fetches the newest release and compares it with Version
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", Name+"/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}

	latest := strings.TrimPrefix(body.TagName, "v")
	return &Release{
		Current:         Version,
		Latest:          latest,
		UpdateAvailable: Compare(Version, latest) < 0,
		URL:             body.HTMLURL,
	}, nil
}

// Compare compares two dotted versions.
// Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2
func Compare(v1, v2 string) int {
	a, b := parse(v1), parse(v2)
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parse(v string) [3]int {
	var out [3]int
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		// pre-release suffixes like "1.0.0-beta" compare as their release
		fmt.Sscanf(strings.Split(parts[i], "-")[0], "%d", &out[i])
	}
	return out
}
