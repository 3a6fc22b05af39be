package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mirrorsCmd = &cobra.Command{
	Use:   "mirrors",
	Short: "Inspect and maintain the download mirror registry",
}

var mirrorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known mirrors and their ranks",
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := newInstaller(cmd.Context())
		if err != nil {
			return err
		}
		reg := inst.Registry()
		for _, m := range reg.Mirrors() {
			fmt.Printf("%-4d %s\n", m.Rank, m.URL)
		}
		if last := reg.LastSyncedAt(); !last.IsZero() {
			fmt.Printf("last synced: %s\n", last.Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

var mirrorsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the registry from the community mirror list",
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := newInstaller(cmd.Context())
		if err != nil {
			return err
		}
		if err := inst.Registry().Sync(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("synced %d mirror(s)\n", len(inst.Registry().Mirrors()))
		return nil
	},
}

var mirrorsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset all mirror ranks to 1",
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := newInstaller(cmd.Context())
		if err != nil {
			return err
		}
		if err := inst.Registry().ResetRanks(); err != nil {
			return err
		}
		fmt.Println("mirror ranks reset")
		return nil
	},
}

func init() {
	mirrorsCmd.AddCommand(mirrorsListCmd, mirrorsSyncCmd, mirrorsResetCmd)
	rootCmd.AddCommand(mirrorsCmd)
}
