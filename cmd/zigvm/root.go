package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/zigvm/internal/download"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/install"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/logging"
	"github.com/ZebulonRouseFrantzich/zigvm/internal/platform"
)

// Version will be set at build time via -ldflags
var Version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "zigvm",
	Short: "Zig toolchain version manager",
	Long: `zigvm downloads, verifies, and activates versions of the Zig
compiler toolchain. Artifacts are fetched from ranked community
mirrors with the official origin as fallback, and every download must
pass signature verification before it is trusted.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// rootDir resolves the zigvm root directory, honoring ZIGVM_DIR.
func rootDir() (string, error) {
	if dir := os.Getenv("ZIGVM_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".zigvm"), nil
}

// newInstaller builds a fully wired installer for the current host.
func newInstaller(ctx context.Context) (*install.Installer, error) {
	root, err := rootDir()
	if err != nil {
		return nil, err
	}

	info, err := platform.NewDetector().Detect(ctx)
	if err != nil {
		return nil, err
	}

	return install.New(install.Config{
		RootDir:  root,
		Platform: info,
		Logger:   logging.NewWriterLogger(os.Stderr, verbose),
		Progress: printProgress,
	})
}

// printProgress renders a single-line transfer status.
func printProgress(transferred, total int64) {
	if total > 0 {
		fmt.Fprintf(os.Stderr, "\rdownloading... %d%% (%d/%d bytes)",
			transferred*100/total, transferred, total)
	} else {
		fmt.Fprintf(os.Stderr, "\rdownloading... %d bytes", transferred)
	}
	if transferred == total {
		fmt.Fprintln(os.Stderr)
	}
}

var _ download.Progress = printProgress
