// Package download drives artifact downloads across an ordered list of
// candidate sources: selected mirrors first, the origin URL as the
// guaranteed last resort. Each candidate is fully downloaded and
// cryptographically verified before it is trusted; failures penalize
// the mirror's rank and advance to the next candidate.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/zigvm/internal/logging"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/mirror"
)

const (
	// DefaultTimeout is the HTTP request timeout for artifact fetches.
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxMirrors bounds how many mirrors are tried before the
	// origin fallback.
	DefaultMaxMirrors = 3
	// SignatureSuffix is the fixed suffix appended to an artifact URL
	// to derive its detached signature URL.
	SignatureSuffix = ".minisig"
	// DefaultUserAgent is the User-Agent header sent with requests.
	DefaultUserAgent = "zigvm/1.0"
)

// ErrExhausted indicates every download candidate failed.
var ErrExhausted = errors.New("all download candidates exhausted")

// Stage identifies where in the pipeline a candidate failed.
type Stage string

const (
	StageTransport Stage = "transport"
	StageSignature Stage = "signature"
	StageChecksum  Stage = "checksum"
)

// CandidateError reports a failure of one candidate URL, naming the
// source and the stage so mirror unreliability stays diagnosable.
type CandidateError struct {
	URL   string
	Stage Stage
	Err   error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("%s failed at %s stage: %v", e.URL, e.Stage, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}

// Verifier is the cryptographic boundary the orchestrator relies on.
// Both checks report failure as false, never as an error, so any
// failure means "try the next source".
type Verifier interface {
	Checksum(path, expectedHex string) bool
	Signature(path string, sig []byte) bool
}

// Ranker is the mirror registry surface the orchestrator consumes.
type Ranker interface {
	SelectBest(maxCandidates int) []string
	UpdateRank(url string, class mirror.FailureClass)
}

// Progress receives transfer updates. total is -1 when the response
// size is unknown. Must be fast; it is called inline with the copy.
type Progress func(transferred, total int64)

// Result is the provenance of a successful fetch. SignatureVerified is
// always true on success; there is no code path that returns a Result
// without a verified signature.
type Result struct {
	SourceURL         string
	SignatureURL      string
	ChecksumVerified  bool
	SignatureVerified bool
}

// Orchestrator coordinates candidate selection, transfer, and
// verification for one artifact at a time.
type Orchestrator struct {
	client     *http.Client
	registry   Ranker
	verifier   Verifier
	logger     logging.Logger
	maxMirrors int
	progress   Progress
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

// WithMaxMirrors overrides how many mirrors are tried per fetch.
func WithMaxMirrors(n int) Option {
	return func(o *Orchestrator) { o.maxMirrors = n }
}

// WithProgress installs a transfer progress callback.
func WithProgress(p Progress) Option {
	return func(o *Orchestrator) { o.progress = p }
}

// NewOrchestrator creates a download orchestrator.
// A nil logger defaults to a no-op logger.
func NewOrchestrator(registry Ranker, verifier Verifier, logger logging.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	o := &Orchestrator{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		registry:   registry,
		verifier:   verifier,
		logger:     logger,
		maxMirrors: DefaultMaxMirrors,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// candidate is one source to try. mirrorBase is empty for the origin,
// which is never rank-penalized.
type candidate struct {
	url        string
	mirrorBase string
}

// FetchAndVerify downloads the artifact at originURL to destPath,
// trying selected mirrors first. A candidate only wins after its
// detached signature verifies; if expectedChecksum is non-empty the
// checksum must match as well. On total failure no partial artifact
// remains at destPath and the last candidate's error is returned.
func (o *Orchestrator) FetchAndVerify(ctx context.Context, originURL, destPath, expectedChecksum string) (*Result, error) {
	candidates := o.candidates(originURL)

	var lastErr error
	for _, cand := range candidates {
		result, err := o.tryCandidate(ctx, cand, destPath, expectedChecksum)
		if err == nil {
			o.logger.Info("artifact downloaded and verified",
				"url", cand.url, "checksum_verified", result.ChecksumVerified)
			return result, nil
		}

		o.logger.Warn("download candidate failed", "url", cand.url, "error", err)
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	// Belt and braces: nothing partial may survive total failure.
	os.Remove(destPath)

	return nil, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// candidates builds the ordered source list: up to maxMirrors mirror
// URLs by rank-weighted selection, then the origin as last resort.
func (o *Orchestrator) candidates(originURL string) []candidate {
	var out []candidate
	for _, base := range o.registry.SelectBest(o.maxMirrors) {
		u, err := MirrorURL(base, originURL)
		if err != nil {
			o.logger.Warn("skipping unusable mirror", "mirror", base, "error", err)
			continue
		}
		out = append(out, candidate{url: u, mirrorBase: base})
	}
	return append(out, candidate{url: originURL})
}

// tryCandidate runs the full download-and-verify pipeline against one
// source. Any failure deletes the partial artifact, penalizes the
// mirror (never the origin), and reports the failing stage.
func (o *Orchestrator) tryCandidate(ctx context.Context, cand candidate, destPath, expectedChecksum string) (*Result, error) {
	if err := o.downloadTo(ctx, cand.url, destPath); err != nil {
		o.penalize(cand, mirror.FailureTimeout)
		return nil, &CandidateError{URL: cand.url, Stage: StageTransport, Err: err}
	}

	// The signature is mandatory. An unavailable signature counts as a
	// signature failure for this candidate; there is no trust-it path.
	sigURL := SignatureURL(cand.url)
	sig, err := o.fetchBytes(ctx, sigURL)
	if err != nil {
		os.Remove(destPath)
		o.penalize(cand, mirror.FailureSignature)
		return nil, &CandidateError{URL: cand.url, Stage: StageSignature, Err: fmt.Errorf("fetch signature: %w", err)}
	}

	if !o.verifier.Signature(destPath, sig) {
		os.Remove(destPath)
		o.penalize(cand, mirror.FailureSignature)
		return nil, &CandidateError{URL: cand.url, Stage: StageSignature, Err: errors.New("signature verification failed")}
	}

	checksumVerified := false
	if expectedChecksum != "" {
		if !o.verifier.Checksum(destPath, expectedChecksum) {
			os.Remove(destPath)
			o.penalize(cand, mirror.FailureChecksum)
			return nil, &CandidateError{URL: cand.url, Stage: StageChecksum, Err: errors.New("checksum mismatch")}
		}
		checksumVerified = true
	}

	return &Result{
		SourceURL:         cand.url,
		SignatureURL:      sigURL,
		ChecksumVerified:  checksumVerified,
		SignatureVerified: true,
	}, nil
}

// penalize records a failure class against the candidate's mirror.
// Penalties persist immediately so later operations benefit even when
// this operation ultimately fails.
func (o *Orchestrator) penalize(cand candidate, class mirror.FailureClass) {
	if cand.mirrorBase == "" {
		return
	}
	o.registry.UpdateRank(cand.mirrorBase, class)
}

// downloadTo streams url to destPath through a uniquely named partial
// file, renaming only after the full body is written.
func (o *Orchestrator) downloadTo(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%s.partial", destPath, uuid.NewString()[:8])
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create partial file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	var w io.Writer = tmpFile
	if o.progress != nil {
		w = &progressWriter{w: tmpFile, total: resp.ContentLength, report: o.progress}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename partial file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

// fetchBytes fetches a small auxiliary file (a detached signature).
func (o *Orchestrator) fetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// Signatures are tiny; cap the read so a misbehaving server cannot
	// balloon memory.
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// progressWriter reports transferred bytes as they are written.
type progressWriter struct {
	w           io.Writer
	transferred int64
	total       int64
	report      Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.transferred += int64(n)
	p.report(p.transferred, p.total)
	return n, err
}

// SignatureURL derives the detached-signature URL for an artifact:
// the query string is stripped, the fixed suffix appended, and the
// query string re-appended.
func SignatureURL(artifactURL string) string {
	base, query, found := strings.Cut(artifactURL, "?")
	sigURL := base + SignatureSuffix
	if found {
		sigURL += "?" + query
	}
	return sigURL
}

// MirrorURL rebases an origin artifact URL onto a mirror base URL.
// Community mirrors re-host artifacts by filename, so the candidate is
// the mirror base plus the artifact's final path element, preserving
// any query string.
func MirrorURL(mirrorBase, originURL string) (string, error) {
	origin, err := url.Parse(originURL)
	if err != nil {
		return "", fmt.Errorf("parse origin URL: %w", err)
	}

	filename := path.Base(origin.Path)
	if filename == "." || filename == "/" || filename == "" {
		return "", fmt.Errorf("origin URL has no file component: %s", originURL)
	}

	u := strings.TrimSuffix(mirrorBase, "/") + "/" + filename
	if origin.RawQuery != "" {
		u += "?" + origin.RawQuery
	}
	return u, nil
}
