package mirror

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ZebulonRouseFrantzich/zigvm/internal/logging"
)

const (
	// DefaultListURL is the upstream community mirror list.
	DefaultListURL = "https://ziglang.org/download/community-mirrors.txt"

	// DefaultSyncThreshold is how old a sync may be before the
	// registry is considered stale.
	DefaultSyncThreshold = 24 * time.Hour

	// listFetchTimeout bounds the community list fetch.
	listFetchTimeout = 30 * time.Second
)

// Registry reads and writes the persisted mirror registry.
type Registry struct {
	path    string
	listURL string
	client  *http.Client
	logger  logging.Logger
	rng     *rand.Rand
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithListURL overrides the community mirror list URL.
func WithListURL(u string) Option {
	return func(r *Registry) { r.listURL = u }
}

// WithHTTPClient overrides the HTTP client used for sync.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.client = c }
}

// WithRand injects the random source used by mirror selection.
func WithRand(rng *rand.Rand) Option {
	return func(r *Registry) { r.rng = rng }
}

// WithClock injects the clock used for sync timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry backed by the given TOML file path.
// A nil logger defaults to a no-op logger.
func NewRegistry(path string, logger logging.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Registry{
		path:    path,
		listURL: DefaultListURL,
		client:  &http.Client{Timeout: listFetchTimeout},
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads the registry file. A missing file yields an empty
// registry; a malformed file yields a fresh default with a warning
// rather than an error, so a damaged registry never blocks downloads.
func (r *Registry) load() *registryFile {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("cannot read mirror registry, starting fresh", "path", r.path, "error", err)
		}
		return &registryFile{}
	}

	var file registryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		r.logger.Warn("mirror registry is corrupt, starting fresh", "path", r.path, "error", err)
		return &registryFile{}
	}

	// Drop entries that should never have been persisted.
	kept := file.Mirrors[:0]
	for _, m := range file.Mirrors {
		if !isHTTPS(m.URL) {
			r.logger.Warn("dropping non-HTTPS mirror from registry", "url", m.URL)
			continue
		}
		if m.Rank < 1 {
			m.Rank = 1
		}
		kept = append(kept, m)
	}
	file.Mirrors = kept
	return &file
}

// save writes the registry atomically.
func (r *Registry) save(file *registryFile) error {
	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal mirror registry: %w", err)
	}
	if err := writeFileAtomic(r.path, data, 0600); err != nil {
		return fmt.Errorf("write mirror registry: %w", err)
	}
	return nil
}

// Mirrors returns the currently persisted mirrors.
func (r *Registry) Mirrors() []Mirror {
	return r.load().Mirrors
}

// LastSyncedAt returns the recorded sync time, or zero if unknown.
func (r *Registry) LastSyncedAt() time.Time {
	file := r.load()
	if file.LastSyncedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, file.LastSyncedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsSyncExpired reports whether the registry should be re-synced:
// no recorded sync, an unparsable timestamp, or age at or past the
// threshold.
func (r *Registry) IsSyncExpired(threshold time.Duration) bool {
	last := r.LastSyncedAt()
	if last.IsZero() {
		return true
	}
	return r.now().Sub(last) >= threshold
}

// Sync fetches the community mirror list and rebuilds the registry
// from it. This is a full replacement: all existing entries, including
// manually added mirrors, are discarded and every rank resets to 1.
// On fetch failure the existing registry file is left untouched.
func (r *Registry) Sync(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.listURL, nil)
	if err != nil {
		return fmt.Errorf("create mirror list request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch mirror list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch mirror list: unexpected status code: %d", resp.StatusCode)
	}

	mirrors, err := parseMirrorList(resp.Body)
	if err != nil {
		return fmt.Errorf("parse mirror list: %w", err)
	}

	file := &registryFile{
		LastSyncedAt: r.now().UTC().Format(time.RFC3339),
		Mirrors:      mirrors,
	}
	if err := r.save(file); err != nil {
		return err
	}

	r.logger.Info("mirror registry synced", "mirrors", len(mirrors))
	return nil
}

// UpdateRank records a failure of the given class against a mirror.
// Unknown mirrors are inserted at base rank plus the class penalty.
// Non-HTTPS or unparsable URLs are rejected silently: this is called
// from failure handling, which must not itself fail loudly.
func (r *Registry) UpdateRank(rawURL string, class FailureClass) {
	if !isHTTPS(rawURL) {
		return
	}

	file := r.load()
	found := false
	for i := range file.Mirrors {
		if file.Mirrors[i].URL == rawURL {
			file.Mirrors[i].Rank += class.Penalty()
			found = true
			break
		}
	}
	if !found {
		file.Mirrors = append(file.Mirrors, Mirror{URL: rawURL, Rank: 1 + class.Penalty()})
	}

	if err := r.save(file); err != nil {
		r.logger.Warn("cannot persist mirror rank update", "url", rawURL, "error", err)
	}
}

// ResetRanks sets every mirror's rank back to 1, preserving membership.
func (r *Registry) ResetRanks() error {
	file := r.load()
	for i := range file.Mirrors {
		file.Mirrors[i].Rank = 1
	}
	return r.save(file)
}

// SelectBest returns up to maxCandidates mirror URLs to try, best
// ranks favored, never a duplicate, never a non-HTTPS URL.
func (r *Registry) SelectBest(maxCandidates int) []string {
	return Select(r.load().Mirrors, maxCandidates, r.rng)
}

// parseMirrorList parses the plain-text community list: one URL per
// line, blank lines and non-HTTPS lines ignored.
func parseMirrorList(rd io.Reader) ([]Mirror, error) {
	var mirrors []Mirror
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !isHTTPS(line) {
			continue
		}
		mirrors = append(mirrors, Mirror{URL: line, Rank: 1})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mirrors, nil
}

// isHTTPS reports whether raw is a well-formed https:// URL.
func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https" && u.Host != ""
}

// writeFileAtomic writes data via a temporary file and rename, then
// syncs the containing directory. Kept local so the registry's
// persistence has no dependency on the config store's.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("write temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temporary file: %w", err)
	}

	df, err := os.Open(dir)
	if err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return fmt.Errorf("sync directory: %w", syncErr)
		}
		df.Close()
	}

	return nil
}
