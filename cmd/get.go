package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/octoftp/internal/output"
	"github.com/tanq16/octoftp/internal/scheduler"
	"github.com/tanq16/octoftp/internal/utils"
)

func newGetCmd() *cobra.Command {
	var outputPath string
	var digest string

	cmd := &cobra.Command{
		Use:         "get [REMOTE_PATH] [--output OUTPUT_PATH]",
		Short:       "Download a remote file or directory",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationDisplay: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			entries := []utils.BatchEntry{{Remote: args[0], OutputPath: outputPath, Digest: digest}}
			runDownloads(cmd, entries)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (directory for a remote directory)")
	cmd.Flags().StringVar(&digest, "expect", "", "Expected digest for the --checksum algorithm")
	return cmd
}

// runDownloads resolves entries against the server and runs them through the
// scheduler, exiting non-zero on any failure.
func runDownloads(cmd *cobra.Command, entries []utils.BatchEntry) {
	log := utils.GetLogger("cmd")
	engine := newEngine()
	jobs, err := scheduler.BuildJobs(cmd.Context(), engine, entries, cfg.OutputDir, scheduler.JobDefaults{
		Connections:    cfg.Connections,
		RotateInterval: cfg.RotateInterval,
		Checksum:       cfg.Checksum,
		MaxSpeed:       cfg.MaxSpeed,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve downloads")
		output.PrintError(err.Error())
		exit(1)
	}
	if len(jobs) == 0 {
		output.PrintWarning("Nothing to download")
		return
	}
	s := scheduler.New(scheduler.Options{
		Target:        cfg.Server,
		Workers:       cfg.Workers,
		Force:         force,
		EngineOptions: engineOpts,
		Display:       displayActive,
	})
	if err := s.Run(cmd.Context(), jobs); err != nil {
		if !displayActive {
			output.PrintError(err.Error())
		}
		exit(1)
	}
	if !displayActive {
		output.PrintSuccess("All downloads completed")
	}
}
