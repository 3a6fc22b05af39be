// Package install orchestrates the toolchain version lifecycle:
// download and verification, activation, removal, and cleanup of
// interrupted downloads. It composes the config store, mirror
// registry, download orchestrator, and activation strategy.
package install

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZebulonRouseFrantzich/zigvm/internal/activate"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/download"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/extract"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/index"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/logging"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/mirror"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/platform"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/store"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/verify"
)

var (
	// ErrAlreadyInstalled indicates the version is installed and completed.
	ErrAlreadyInstalled = errors.New("version already installed")
	// ErrNotInstalled indicates the version has no usable install.
	ErrNotInstalled = errors.New("version is not installed")
	// ErrSystemProtected indicates an operation that is forbidden for
	// the system pseudo-version.
	ErrSystemProtected = errors.New("operation not permitted on the system version")
)

// Config holds configuration for the installer.
type Config struct {
	// RootDir is the zigvm root directory (default: ~/.zigvm).
	RootDir string
	// Platform contains OS and architecture information.
	Platform *platform.Info
	// Logger receives operational messages. Optional.
	Logger logging.Logger
	// IndexURL overrides the upstream release index. Optional.
	IndexURL string
	// MirrorListURL overrides the community mirror list. Optional.
	MirrorListURL string
	// Progress receives download transfer updates. Optional.
	Progress download.Progress
}

// fetcher is the download orchestrator surface the installer uses.
type fetcher interface {
	FetchAndVerify(ctx context.Context, originURL, destPath, expectedChecksum string) (*download.Result, error)
}

// Installer is the top-level orchestrator for version operations.
type Installer struct {
	rootDir     string
	versionsDir string
	launcherDir string

	platform *platform.Info
	store    *store.Store
	registry *mirror.Registry
	idx      *index.Client
	fetcher  fetcher
	strategy activate.Strategy
	logger   logging.Logger

	mu      sync.Mutex
	current *CleanupToken
}

// New creates an installer rooted at cfg.RootDir.
func New(cfg Config) (*Installer, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("RootDir is required")
	}
	if cfg.Platform == nil {
		return nil, fmt.Errorf("Platform is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	var winMgr *activate.WindowsManager
	if cfg.Platform.IsWindows() {
		winMgr = activate.NewWindowsManager()
	}
	strategy, err := activate.ForPlatform(cfg.Platform.OS, winMgr)
	if err != nil {
		return nil, err
	}

	var registryOpts []mirror.Option
	if cfg.MirrorListURL != "" {
		registryOpts = append(registryOpts, mirror.WithListURL(cfg.MirrorListURL))
	}
	registry := mirror.NewRegistry(filepath.Join(cfg.RootDir, "mirrors.toml"), logger, registryOpts...)

	var orchOpts []download.Option
	if cfg.Progress != nil {
		orchOpts = append(orchOpts, download.WithProgress(cfg.Progress))
	}

	return &Installer{
		rootDir:     cfg.RootDir,
		versionsDir: filepath.Join(cfg.RootDir, "versions"),
		launcherDir: filepath.Join(cfg.RootDir, "bin"),
		platform:    cfg.Platform,
		store:       store.New(filepath.Join(cfg.RootDir, "config.json"), logger),
		registry:    registry,
		idx:         index.NewClient(cfg.IndexURL),
		fetcher:     download.NewOrchestrator(registry, verify.NewKeyVerifier(), logger, orchOpts...),
		strategy:    strategy,
		logger:      logger,
	}, nil
}

// Store exposes the config store for read-only callers (listing).
func (i *Installer) Store() *store.Store {
	return i.store
}

// Registry exposes the mirror registry for mirror maintenance commands.
func (i *Installer) Registry() *mirror.Registry {
	return i.registry
}

// LauncherDir returns the directory holding the active launcher.
func (i *Installer) LauncherDir() string {
	return i.launcherDir
}

// CurrentDownload returns the cleanup token for an in-flight download,
// or nil. A host signal handler invokes its Cleanup before exiting.
func (i *Installer) CurrentDownload() *CleanupToken {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

func (i *Installer) setCurrent(t *CleanupToken) {
	i.mu.Lock()
	i.current = t
	i.mu.Unlock()
}

// DownloadVersion downloads, verifies, and unpacks one toolchain
// version. The version is recorded as downloading before any bytes are
// fetched so a crash mid-download is observable on the next run, and
// every failure path reverts the version to absence.
func (i *Installer) DownloadVersion(ctx context.Context, version string) error {
	if version == store.VersionSystem {
		return fmt.Errorf("%w: the system version cannot be downloaded", ErrSystemProtected)
	}

	rec, err := i.store.Get(version)
	if err != nil {
		return err
	}
	if rec != nil && rec.Status == store.StatusCompleted {
		return fmt.Errorf("%w: %s", ErrAlreadyInstalled, version)
	}

	installPath := filepath.Join(i.versionsDir, version)
	err = i.store.Update(func(st *store.State) error {
		st.Installs[version] = &store.InstalledVersion{
			Version:            version,
			InstallPath:        installPath,
			Status:             store.StatusDownloading,
			DownloadedAt:       time.Now().UTC(),
			VerificationStatus: store.VerificationPending,
		}
		return nil
	})
	if err != nil {
		return err
	}

	token := NewCleanupToken(func() { i.discard(version, installPath) })
	i.setCurrent(token)
	defer i.setCurrent(nil)

	if err := i.downloadInto(ctx, version, installPath); err != nil {
		i.discard(version, installPath)
		return err
	}
	return nil
}

// downloadInto performs the fallible middle of DownloadVersion; the
// caller owns reverting state on error.
func (i *Installer) downloadInto(ctx context.Context, version, installPath string) error {
	// A stale mirror list is refreshed best-effort; the last persisted
	// registry serves when the community list is unreachable.
	if i.registry.IsSyncExpired(mirror.DefaultSyncThreshold) {
		if err := i.registry.Sync(ctx); err != nil {
			i.logger.Warn("mirror sync failed, using last known mirrors", "error", err)
		}
	}

	art, err := i.idx.Resolve(ctx, version, i.platform.IndexKey())
	if err != nil {
		return err
	}

	dest := filepath.Join(installPath, artifactFilename(art.Tarball))
	result, err := i.fetcher.FetchAndVerify(ctx, art.Tarball, dest, art.Shasum)
	if err != nil {
		return fmt.Errorf("download %s: %w", version, err)
	}

	if err := extract.Extract(dest, installPath); err != nil {
		return fmt.Errorf("unpack %s: %w", version, err)
	}
	os.Remove(dest) // The archive is spent once unpacked

	return i.store.Update(func(st *store.State) error {
		st.Installs[version] = &store.InstalledVersion{
			Version:            version,
			InstallPath:        installPath,
			Status:             store.StatusCompleted,
			DownloadedAt:       time.Now().UTC(),
			Checksum:           art.Shasum,
			ChecksumVerified:   result.ChecksumVerified,
			Signature:          result.SignatureURL,
			SignatureVerified:  result.SignatureVerified,
			VerificationStatus: store.VerificationVerified,
			SourceURL:          result.SourceURL,
		}
		return nil
	})
}

// discard reverts a version to absence: config record and install
// directory both removed. Used by error paths and the cleanup token.
func (i *Installer) discard(version, installPath string) {
	if err := i.store.Update(func(st *store.State) error {
		delete(st.Installs, version)
		return nil
	}); err != nil {
		i.logger.Warn("cannot remove config record", "version", version, "error", err)
	}
	if err := os.RemoveAll(installPath); err != nil {
		i.logger.Warn("cannot remove install directory", "path", installPath, "error", err)
	}
}

// UseVersion activates an installed version (or the system install)
// and persists the active pointer.
func (i *Installer) UseVersion(version string) error {
	if version == store.VersionSystem {
		return i.useSystem()
	}

	rec, err := i.store.Get(version)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}
	if !rec.Activatable() {
		return fmt.Errorf("%w: %s is not ready for activation (status %s)", ErrNotInstalled, version, rec.Status)
	}

	if err := i.strategy.Activate(rec.InstallPath, version, i.launcherDir); err != nil {
		return fmt.Errorf("activate %s: %w", version, err)
	}

	return i.store.Update(func(st *store.State) error {
		st.Active = version
		return nil
	})
}

// useSystem validates or re-detects the system installation, then
// activates it.
func (i *Installer) useSystem() error {
	st, err := i.store.Load()
	if err != nil {
		return err
	}

	sys := st.System
	if sys == nil || !isRegularFile(sys.Path) {
		// The recorded path is stale or absent; re-detect instead of
		// silently keeping it.
		detected, err := i.detectSystem()
		if err != nil {
			if sys != nil {
				i.store.Update(func(st *store.State) error {
					st.System = nil
					return nil
				})
			}
			return fmt.Errorf("%w: no system toolchain found on PATH", ErrNotInstalled)
		}
		sys = &store.SystemInstallation{Path: detected}
		if err := i.store.Update(func(st *store.State) error {
			st.System = sys
			return nil
		}); err != nil {
			return err
		}
	}

	if err := i.strategy.Activate(sys.Path, store.VersionSystem, i.launcherDir); err != nil {
		return fmt.Errorf("activate system toolchain: %w", err)
	}

	return i.store.Update(func(st *store.State) error {
		st.Active = store.VersionSystem
		return nil
	})
}

// detectSystem searches PATH for the toolchain binary, excluding
// anything under zigvm's own root so the launcher never points at
// itself.
func (i *Installer) detectSystem() (string, error) {
	exe := i.platform.ExeName()
	root := filepath.Clean(i.rootDir)

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			continue
		}
		if isWithin(filepath.Clean(dir), root) {
			continue
		}
		candidate := filepath.Join(dir, exe)
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s not found on PATH", exe)
}

// RemoveVersion deletes an installed version. Removing the system
// pseudo-version is forbidden. Removing the active version clears the
// launcher and the active pointer first.
func (i *Installer) RemoveVersion(version string) error {
	if version == store.VersionSystem {
		return fmt.Errorf("%w: the system version cannot be removed", ErrSystemProtected)
	}

	st, err := i.store.Load()
	if err != nil {
		return err
	}
	rec := st.Installs[version]
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}

	if st.Active == version {
		if err := i.strategy.Deactivate(i.launcherDir); err != nil {
			return err
		}
		if err := i.store.Update(func(st *store.State) error {
			st.Active = ""
			return nil
		}); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(rec.InstallPath); err != nil {
		return fmt.Errorf("remove install directory: %w", err)
	}

	return i.store.Update(func(st *store.State) error {
		delete(st.Installs, version)
		return nil
	})
}

// artifactFilename extracts the file component of an artifact URL,
// ignoring any query string.
func artifactFilename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// isWithin reports whether p is root or lives inside it.
func isWithin(p, root string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}
