package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/octoftp/internal/output"
	"github.com/tanq16/octoftp/internal/utils"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Test the connection, list / and query a file size",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			engine := newEngine()
			ok, message := engine.TestConnection(cmd.Context())
			if !ok {
				output.PrintError(fmt.Sprintf("%s Connection to %s failed: %s", output.StyleSymbols["fail"], cfg.Server.Addr(), message))
				exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("%s Connected to %s", output.StyleSymbols["pass"], cfg.Server.Addr()))
			for _, line := range strings.Split(message, "\n") {
				output.PrintDetail("  " + line)
			}

			entries, err := engine.ListDirectory(cmd.Context(), "/")
			if err != nil {
				output.PrintError(fmt.Sprintf("%s Listing / failed: %v", output.StyleSymbols["fail"], err))
				exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("%s Listed / (%d entries)", output.StyleSymbols["pass"], len(entries)))

			var first *utils.FileEntry
			for i := range entries {
				if !entries[i].IsDir {
					first = &entries[i]
					break
				}
			}
			if first == nil {
				output.PrintWarning(fmt.Sprintf("%s No file in / to query the size of", output.StyleSymbols["warning"]))
				return
			}
			size, err := engine.FileSize(cmd.Context(), first.Path)
			if err != nil {
				output.PrintError(fmt.Sprintf("%s SIZE %s failed: %v", output.StyleSymbols["fail"], first.Path, err))
				exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("%s SIZE %s = %s", output.StyleSymbols["pass"], first.Path, output.FormatBytes(uint64(size))))
		},
	}
}
