package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/octoftp/internal/output"
	"github.com/tanq16/octoftp/internal/utils"
)

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "batch [YAML_FILE] [OPTIONS]",
		Short:       "Process multiple downloads from a YAML file",
		Long:        "The YAML file is a list of entries with remote (file or directory), and optional op (output path), checksum and digest.",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationDisplay: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := utils.ReadBatchFile(args[0])
			if err != nil {
				output.PrintError(err.Error())
				exit(1)
			}
			if len(entries) == 0 {
				output.PrintError("No valid entries found in the batch file")
				exit(1)
			}
			runDownloads(cmd, entries)
		},
	}
}
