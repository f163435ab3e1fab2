package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/octoftp/internal/output"
)

func newSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size [REMOTE_PATH]",
		Short: "Print the size of a remote file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			size, err := newEngine().FileSize(cmd.Context(), args[0])
			if err != nil {
				output.PrintError(err.Error())
				exit(1)
			}
			fmt.Printf("%s %d bytes (%s)\n", args[0], size, output.FSize(size))
		},
	}
}
