package activate

import (
	"fmt"
	"os"
	"path/filepath"
)

// SymlinkStrategy activates a version by pointing a symbolic link in
// the launcher directory at the version's executable.
type SymlinkStrategy struct {
	exeName string
}

// NewSymlinkStrategy creates the symlink activation strategy.
func NewSymlinkStrategy(exeName string) *SymlinkStrategy {
	return &SymlinkStrategy{exeName: exeName}
}

// Activate resolves the executable for the version and swaps the
// launcher link to it. The new link is created under a temporary name
// and renamed into place, so the launcher is never half-updated.
func (s *SymlinkStrategy) Activate(sourcePath, versionID, launcherDir string) error {
	var target string
	if versionID == SystemVersion {
		// A system install's source path is already the executable.
		if !isRegularFile(sourcePath) {
			return fmt.Errorf("%w: system binary missing at %s", ErrBinaryNotFound, sourcePath)
		}
		target = sourcePath
	} else {
		resolved, err := resolveExecutable(sourcePath, s.exeName)
		if err != nil {
			return err
		}
		target = resolved
	}

	if err := os.MkdirAll(launcherDir, 0755); err != nil {
		return fmt.Errorf("create launcher dir: %w", err)
	}

	launcher := filepath.Join(launcherDir, s.exeName)
	tmpLink := launcher + ".tmp"
	os.Remove(tmpLink) // Stale temp link from a previous crash

	if err := os.Symlink(target, tmpLink); err != nil {
		return fmt.Errorf("create launcher link: %w", err)
	}

	if err := os.Rename(tmpLink, launcher); err != nil {
		os.Remove(tmpLink)
		return fmt.Errorf("swap launcher link: %w", err)
	}

	return nil
}

// Deactivate removes the launcher link. Removing an absent launcher is
// not an error.
func (s *SymlinkStrategy) Deactivate(launcherDir string) error {
	launcher := filepath.Join(launcherDir, s.exeName)
	if err := os.Remove(launcher); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove launcher: %w", err)
	}
	return nil
}
