package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanAll bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove installed versions in bulk",
	Long: `Remove all installed versions except the active one.
With --all, the active version is removed too and the launcher is
cleared (or pointed back at a system toolchain if one is known).`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanAll, "all", false, "remove the active version as well")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	inst, err := newInstaller(cmd.Context())
	if err != nil {
		return err
	}

	var removed int
	if cleanAll {
		removed, err = inst.CleanAllVersions()
	} else {
		removed, err = inst.CleanExceptCurrent()
	}
	if err != nil {
		return err
	}

	fmt.Printf("removed %d version(s)\n", removed)
	return nil
}
