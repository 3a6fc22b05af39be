// Package platform provides host platform detection for zigvm.
//
// It detects OS and architecture, maps them onto the upstream release
// index's platform keys (e.g. "x86_64-linux"), and exposes Linux
// distribution details for diagnostics. Distribution detection uses
// gopsutil and falls back gracefully when it fails.
package platform

import "context"

// Info contains platform detection information.
type Info struct {
	OS      string // "linux", "darwin", "windows"
	Arch    string // "amd64", "arm64" (normalized)
	ArchRaw string // original GOARCH value
	Distro  string // distro ID (Linux only, e.g. "ubuntu")
	Version string // distro version (Linux only, e.g. "22.04")
}

// IndexKey returns the upstream index key for this platform,
// in the "<arch>-<os>" form used by the release index.
func (i *Info) IndexKey() string {
	return indexArch(i.Arch) + "-" + indexOS(i.OS)
}

// ExeName returns the toolchain executable name for this platform.
func (i *Info) ExeName() string {
	if i.OS == "windows" {
		return "zig.exe"
	}
	return "zig"
}

// ArchiveExt returns the release archive extension for this platform.
// Upstream ships zip archives for Windows and xz tarballs elsewhere.
func (i *Info) ArchiveExt() string {
	if i.OS == "windows" {
		return ".zip"
	}
	return ".tar.xz"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
