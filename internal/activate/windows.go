package activate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WindowsManager performs the file operations the Windows activation
// strategy depends on. It is a required collaborator: the factory
// refuses to build the Windows strategy without one.
type WindowsManager struct{}

// NewWindowsManager creates the Windows activation manager.
func NewWindowsManager() *WindowsManager {
	return &WindowsManager{}
}

// CopyDir recursively copies the contents of src into dst.
func (m *WindowsManager) CopyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read source dir: %w", err)
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := m.CopyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := m.copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func (m *WindowsManager) copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}

	return out.Close()
}

// WindowsExtractStrategy activates a version by replacing the launcher
// directory's contents with the version's files. The previous contents
// are kept as a backup until the copy fully succeeds, so a failed
// activation restores the prior launcher instead of leaving it empty
// or mixed between two versions.
type WindowsExtractStrategy struct {
	exeName string
	files   *WindowsManager
}

// NewWindowsExtractStrategy creates the Windows activation strategy.
func NewWindowsExtractStrategy(files *WindowsManager) *WindowsExtractStrategy {
	return &WindowsExtractStrategy{exeName: "zig.exe", files: files}
}

// Activate backs up the launcher directory, copies the version's files
// in, and discards the backup only after the copy succeeds.
func (s *WindowsExtractStrategy) Activate(sourcePath, versionID, launcherDir string) error {
	if versionID == SystemVersion {
		return fmt.Errorf("system activation is not supported by the windows extract strategy")
	}

	exe, err := resolveExecutable(sourcePath, s.exeName)
	if err != nil {
		return err
	}
	// Copy the directory holding the executable: the toolchain needs
	// its sibling lib tree, not just the binary.
	srcDir := filepath.Dir(exe)

	backupDir := launcherDir + ".backup"
	hasBackup := false
	if _, err := os.Stat(launcherDir); err == nil {
		os.RemoveAll(backupDir)
		if err := os.Rename(launcherDir, backupDir); err != nil {
			return fmt.Errorf("back up launcher dir: %w", err)
		}
		hasBackup = true
	}

	if err := s.files.CopyDir(srcDir, launcherDir); err != nil {
		os.RemoveAll(launcherDir)
		if hasBackup {
			if restoreErr := os.Rename(backupDir, launcherDir); restoreErr != nil {
				return fmt.Errorf("activation failed (%v) and backup restore failed: %w", err, restoreErr)
			}
		}
		return fmt.Errorf("copy version into launcher dir: %w", err)
	}

	if hasBackup {
		os.RemoveAll(backupDir)
	}
	return nil
}

// Deactivate empties the launcher directory.
func (s *WindowsExtractStrategy) Deactivate(launcherDir string) error {
	if err := os.RemoveAll(launcherDir); err != nil {
		return fmt.Errorf("remove launcher dir: %w", err)
	}
	if err := os.MkdirAll(launcherDir, 0755); err != nil {
		return fmt.Errorf("recreate launcher dir: %w", err)
	}
	return nil
}
