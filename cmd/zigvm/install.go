package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <version>",
	Short: "Download, verify, and install a toolchain version",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	inst, err := newInstaller(ctx)
	if err != nil {
		return err
	}

	// Garbage-collect any download a previous run left behind.
	if err := inst.Cleanup(); err != nil {
		return err
	}

	// An interrupt mid-download must not leave partial state: run the
	// installer's cleanup token before exiting.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ninterrupted, cleaning up")
		if token := inst.CurrentDownload(); token != nil {
			token.Cleanup()
		}
		os.Exit(130)
	}()

	version := args[0]
	if err := inst.DownloadVersion(ctx, version); err != nil {
		return err
	}

	fmt.Printf("installed %s\n", version)
	fmt.Printf("run 'zigvm use %s' to activate it\n", version)
	return nil
}
