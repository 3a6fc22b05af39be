package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var useCmd = &cobra.Command{
	Use:   "use <version>",
	Short: "Activate an installed toolchain version",
	Long: `Activate an installed version so the launcher points at it.
Use "system" to activate a toolchain installed outside zigvm.`,
	Args: cobra.ExactArgs(1),
	RunE: runUse,
}

func init() {
	rootCmd.AddCommand(useCmd)
}

func runUse(cmd *cobra.Command, args []string) error {
	inst, err := newInstaller(cmd.Context())
	if err != nil {
		return err
	}

	version := args[0]
	if err := inst.UseVersion(version); err != nil {
		return err
	}

	fmt.Printf("now using %s\n", version)
	fmt.Printf("make sure %s is on your PATH\n", inst.LauncherDir())
	return nil
}
