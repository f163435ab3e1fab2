package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/octoftp/internal/output"
	"github.com/tanq16/octoftp/internal/utils"
)

func newLsCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls [REMOTE_PATH]",
		Short: "List a remote directory",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "/"
			if len(args) > 0 {
				dir = args[0]
			}
			engine := newEngine()
			var entries []utils.FileEntry
			var err error
			if recursive {
				entries, err = engine.ListRecursive(cmd.Context(), dir)
			} else {
				entries, err = engine.ListDirectory(cmd.Context(), dir)
			}
			if err != nil {
				output.PrintError(err.Error())
				exit(1)
			}
			sortEntries(entries)
			output.PrintHeader(dir)
			for _, e := range entries {
				fmt.Println(formatEntry(e, recursive))
			}
			fmt.Println(output.FDebug(fmt.Sprintf("%d entries", len(entries))))
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "List every file below the directory")
	return cmd
}

// sortEntries puts directories first, then orders by name ignoring case.
func sortEntries(entries []utils.FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}

func formatEntry(e utils.FileEntry, fullPath bool) string {
	name := e.Name
	if fullPath {
		name = e.Path
	}
	if e.IsDir {
		return fmt.Sprintf("%s %s", output.StyleSymbols["dir"], output.FDir(name))
	}
	line := fmt.Sprintf("%s %-40s %10s", output.StyleSymbols["bullet"], name, output.FormatBytes(uint64(e.Size)))
	if e.Modified != "" {
		line += "  " + output.FDebug(e.Modified)
	}
	return line
}
