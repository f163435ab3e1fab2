package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/octoftp/internal/output"
	"github.com/tanq16/octoftp/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "clean [OUTPUT_PATH]",
		Short:       "Remove chunk files left by an interrupted download",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationOffline: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			removed, err := utils.CleanParts(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
				exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary files", removed))
		},
	}
}
