// Package testutil provides utilities for testing zigvm in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv creates an isolated zigvm root for a test and points
// ZIGVM_DIR at it. PATH is reduced to a private bin directory so
// system-toolchain detection never sees the host's real installs.
//
// Cleanup is handled by t.TempDir and t.Setenv.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "zigvm")
	pathDir := filepath.Join(tmpDir, "path")

	t.Setenv("ZIGVM_DIR", root)
	t.Setenv("PATH", pathDir)

	for _, dir := range []string{root, pathDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return root
}

// FakeSystemToolchain drops an executable named name into a directory
// on the test PATH and returns its path.
func FakeSystemToolchain(t *testing.T, name string) string {
	t.Helper()

	pathDir := filepath.SplitList(os.Getenv("PATH"))[0]
	exe := filepath.Join(pathDir, name)
	if err := os.WriteFile(exe, []byte("#!/bin/sh\necho 0.11.0\n"), 0o755); err != nil {
		t.Fatalf("failed to write fake toolchain: %v", err)
	}
	return exe
}
