package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/zigvm/internal/index"
)

var listRemote bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed toolchain versions",
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listRemote, "remote", false, "list versions available upstream")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if listRemote {
		idx, err := index.NewClient("").Releases(cmd.Context())
		if err != nil {
			return err
		}
		for _, v := range idx.Versions() {
			fmt.Println(v)
		}
		return nil
	}

	inst, err := newInstaller(cmd.Context())
	if err != nil {
		return err
	}

	st, err := inst.Store().Load()
	if err != nil {
		return err
	}

	versions := make([]string, 0, len(st.Installs))
	for v := range st.Installs {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	for _, v := range versions {
		rec := st.Installs[v]
		marker := " "
		if v == st.Active {
			marker = "*"
		}
		fmt.Printf("%s %s (%s)\n", marker, v, rec.Status)
	}

	if st.System != nil {
		marker := " "
		if st.Active == "system" {
			marker = "*"
		}
		fmt.Printf("%s system (%s)\n", marker, st.System.Path)
	}

	return nil
}
