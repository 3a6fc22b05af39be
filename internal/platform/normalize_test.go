package platform

import (
	"context"
	"testing"
)

func TestNormalizeArch(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "amd64", input: "amd64", want: "amd64"},
		{name: "x86_64_alias", input: "x86_64", want: "amd64"},
		{name: "arm64", input: "arm64", want: "arm64"},
		{name: "aarch64_alias", input: "aarch64", want: "arm64"},
		{name: "386", input: "386", want: "386"},
		{name: "riscv64", input: "riscv64", want: "riscv64"},
		{name: "unsupported", input: "mips", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeArch(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("normalizeArch(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIndexKey(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{name: "linux_amd64", info: Info{OS: "linux", Arch: "amd64"}, want: "x86_64-linux"},
		{name: "macos_arm64", info: Info{OS: "darwin", Arch: "arm64"}, want: "aarch64-macos"},
		{name: "windows_amd64", info: Info{OS: "windows", Arch: "amd64"}, want: "x86_64-windows"},
		{name: "linux_386", info: Info{OS: "linux", Arch: "386"}, want: "x86-linux"},
		{name: "linux_riscv64", info: Info{OS: "linux", Arch: "riscv64"}, want: "riscv64-linux"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.IndexKey(); got != tt.want {
				t.Errorf("IndexKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlatformConventions(t *testing.T) {
	linux := Info{OS: "linux", Arch: "amd64"}
	windows := Info{OS: "windows", Arch: "amd64"}

	if got := linux.ExeName(); got != "zig" {
		t.Errorf("linux ExeName() = %q, want zig", got)
	}
	if got := windows.ExeName(); got != "zig.exe" {
		t.Errorf("windows ExeName() = %q, want zig.exe", got)
	}
	if got := linux.ArchiveExt(); got != ".tar.xz" {
		t.Errorf("linux ArchiveExt() = %q, want .tar.xz", got)
	}
	if got := windows.ArchiveExt(); got != ".zip" {
		t.Errorf("windows ArchiveExt() = %q, want .zip", got)
	}
	if linux.IsWindows() || !windows.IsWindows() {
		t.Error("IsWindows() misclassified platform")
	}
}

func TestDetect(t *testing.T) {
	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if info.OS == "" || info.Arch == "" {
		t.Errorf("Detect returned incomplete info: %+v", info)
	}
}
