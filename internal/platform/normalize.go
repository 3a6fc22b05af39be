package platform

import "fmt"

// normalizeArch converts GOARCH values to normalized architecture names.
func normalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	case "386", "x86":
		return "386", nil
	case "riscv64":
		return "riscv64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}

// indexArch maps normalized architecture names to the naming used by
// the upstream release index.
func indexArch(arch string) string {
	switch arch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "x86"
	default:
		return arch
	}
}

// indexOS maps GOOS values to the naming used by the upstream release
// index. Darwin is published as "macos".
func indexOS(os string) string {
	if os == "darwin" {
		return "macos"
	}
	return os
}
