package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/octoftp/internal/checksum"
	"github.com/tanq16/octoftp/internal/output"
)

func newChecksumCmd() *cobra.Command {
	var algorithm string
	var all bool
	var expected string
	var upper bool

	cmd := &cobra.Command{
		Use:         "checksum [FILE]",
		Short:       "Compute or verify the digest of a local file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationOffline: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			path := args[0]
			if all {
				results := checksum.ComputeAll(path, nil)
				for _, name := range checksum.Algorithms() {
					fmt.Printf("%-8s %s\n", name, checksum.Format(results[name], upper))
				}
				return
			}
			if algorithm == "" {
				algorithm = cfg.Checksum
			}
			if expected != "" {
				if !checksum.Verify(path, expected, algorithm) {
					output.PrintError(fmt.Sprintf("%s %s does not match %s digest %s", output.StyleSymbols["fail"], path, algorithm, expected))
					exit(1)
				}
				output.PrintSuccess(fmt.Sprintf("%s %s matches", output.StyleSymbols["pass"], path))
				return
			}
			digest, err := checksum.Compute(path, algorithm, nil)
			if err != nil {
				output.PrintError(err.Error())
				exit(1)
			}
			fmt.Printf("%s  %s (%s)\n", checksum.Format(digest.Hex, upper), path, digest.Algorithm)
		},
	}

	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "", "Digest algorithm (MD5, SHA-1, SHA-256, SHA-512)")
	cmd.Flags().BoolVar(&all, "all", false, "Compute every supported digest")
	cmd.Flags().StringVar(&expected, "verify", "", "Compare against this hex digest")
	cmd.Flags().BoolVar(&upper, "upper", false, "Print digests in upper case")
	return cmd
}
