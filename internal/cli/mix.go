package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/density-runner/internal/mix"
)

var (
	mixStreams int
	mixRate    int
)

var mixCmd = &cobra.Command{
	Use:   "mix",
	Short: "Show how a stream count splits into AI and non-AI streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		split, err := mix.Partition(mixStreams, mixRate)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), split)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mixCmd)
	mixCmd.Flags().IntVarP(&mixStreams, "streams", "n", 1, "Total number of streams")
	mixCmd.Flags().IntVar(&mixRate, "ai-rate", 20, "Percentage of streams running inference")
}
