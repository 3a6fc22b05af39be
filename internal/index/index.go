// Package index consumes the upstream release index: a JSON document
// keyed by version string, where each version maps platform keys to
// artifact descriptors {tarball, shasum, size}.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// DefaultIndexURL is the upstream release index.
const DefaultIndexURL = "https://ziglang.org/download/index.json"

// fetchTimeout bounds the index fetch.
const fetchTimeout = 30 * time.Second

// ErrVersionNotFound indicates the requested version or platform is
// absent from the upstream index.
var ErrVersionNotFound = errors.New("version not found in release index")

// Artifact describes one downloadable release artifact.
type Artifact struct {
	Tarball string `json:"tarball"`
	Shasum  string `json:"shasum"`
	Size    string `json:"size"`
}

// Release describes one release entry: metadata plus per-platform
// artifacts keyed by "<arch>-<os>".
type Release struct {
	Version   string // Set for rolling entries that carry a nested version
	Date      string
	Artifacts map[string]Artifact
}

// Index is the parsed release index keyed by version string.
type Index map[string]*Release

// UnmarshalJSON splits a release entry into string metadata and
// platform artifact objects. Platform keys are recognized by their
// object shape (a tarball URL), not by a hardcoded key list.
func (r *Release) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Artifacts = make(map[string]Artifact)
	for key, value := range raw {
		var art Artifact
		if err := json.Unmarshal(value, &art); err == nil && art.Tarball != "" {
			r.Artifacts[key] = art
			continue
		}

		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			continue // Unrecognized metadata shape, skip
		}
		switch key {
		case "version":
			r.Version = s
		case "date":
			r.Date = s
		}
	}
	return nil
}

// Client fetches and resolves the release index.
type Client struct {
	indexURL string
	client   *http.Client
}

// NewClient creates an index client. An empty indexURL selects the
// upstream default.
func NewClient(indexURL string) *Client {
	if indexURL == "" {
		indexURL = DefaultIndexURL
	}
	return &Client{
		indexURL: indexURL,
		client:   &http.Client{Timeout: fetchTimeout},
	}
}

// Releases fetches and parses the full index.
func (c *Client) Releases(ctx context.Context) (Index, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create index request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch release index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch release index: unexpected status code: %d", resp.StatusCode)
	}

	var idx Index
	if err := json.NewDecoder(resp.Body).Decode(&idx); err != nil {
		return nil, fmt.Errorf("parse release index: %w", err)
	}
	return idx, nil
}

// Resolve returns the artifact for a version and platform key.
func (c *Client) Resolve(ctx context.Context, version, platformKey string) (Artifact, error) {
	idx, err := c.Releases(ctx)
	if err != nil {
		return Artifact{}, err
	}
	return idx.Resolve(version, platformKey)
}

// Resolve looks up an artifact in an already-fetched index.
func (i Index) Resolve(version, platformKey string) (Artifact, error) {
	release, ok := i[version]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	art, ok := release.Artifacts[platformKey]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s has no artifact for %s", ErrVersionNotFound, version, platformKey)
	}
	return art, nil
}

// Versions returns all version identifiers in the index, sorted.
func (i Index) Versions() []string {
	versions := make([]string, 0, len(i))
	for v := range i {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}
