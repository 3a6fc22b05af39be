package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <version>",
	Short: "Remove an installed toolchain version",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	inst, err := newInstaller(cmd.Context())
	if err != nil {
		return err
	}

	version := args[0]
	if err := inst.RemoveVersion(version); err != nil {
		return err
	}

	fmt.Printf("removed %s\n", version)
	return nil
}
