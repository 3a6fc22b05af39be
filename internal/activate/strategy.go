// Package activate makes one installed toolchain version reachable via
// the stable launcher path. Two strategies exist: symlink activation
// for POSIX-like platforms and extract-and-replace for Windows, where
// symlinks are unreliable without elevated privileges.
package activate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SystemVersion is the pseudo-version identifying an OS-provided
// install. For it, the activation source path is the executable itself.
const SystemVersion = "system"

// ErrBinaryNotFound indicates no toolchain executable was found under
// the activation source path.
var ErrBinaryNotFound = errors.New("toolchain binary not found")

// Strategy activates one installed version's files as the launcher.
// Implementations must leave exactly one consistent launcher on
// success and must not leave a half-updated launcher on failure.
type Strategy interface {
	// Activate points the launcher in launcherDir at the version whose
	// files live under sourcePath.
	Activate(sourcePath, versionID, launcherDir string) error

	// Deactivate removes the launcher, leaving no active version.
	Deactivate(launcherDir string) error
}

// ForPlatform selects the activation strategy for a platform
// identifier. Windows gets the extract-and-replace variant and
// requires a constructed manager; every other platform, recognized or
// not, gets the symlink variant as the safe default.
func ForPlatform(goos string, winMgr *WindowsManager) (Strategy, error) {
	if goos == "windows" {
		if winMgr == nil {
			return nil, fmt.Errorf("configuration error: windows activation manager is required on windows")
		}
		return NewWindowsExtractStrategy(winMgr), nil
	}
	return NewSymlinkStrategy("zig"), nil
}

// resolveExecutable finds the toolchain executable for an installed
// version: directly under sourcePath, or one level down inside an
// extracted-archive directory whose name carries the toolchain prefix.
func resolveExecutable(sourcePath, exeName string) (string, error) {
	direct := filepath.Join(sourcePath, exeName)
	if isRegularFile(direct) {
		return direct, nil
	}

	prefix := strings.TrimSuffix(exeName, ".exe") + "-"
	entries, err := os.ReadDir(sourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: cannot read %s: %v", ErrBinaryNotFound, sourcePath, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		nested := filepath.Join(sourcePath, entry.Name(), exeName)
		if isRegularFile(nested) {
			return nested, nil
		}
	}

	return "", fmt.Errorf("%w: searched %s", ErrBinaryNotFound, sourcePath)
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
