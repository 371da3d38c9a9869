package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cycleOrdinal int

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single harvest cycle",
	Long: `Cycle runs exactly one harvest cycle and exits. The cycle ordinal
selects where the run sits in the discovery rotation; cron-style callers
should pass an incrementing value.`,
	Args: cobra.NoArgs,
	RunE: runCycle,
}

func init() {
	cycleCmd.Flags().IntVar(&cycleOrdinal, "ordinal", 1, "cycle number within the rotation")
	rootCmd.AddCommand(cycleCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	if cycleOrdinal < 1 {
		return fmt.Errorf("ordinal must be at least 1, got %d", cycleOrdinal)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	report, err := c.Harvester.RunCycle(context.Background(), cycleOrdinal)
	if err != nil {
		return fmt.Errorf("harvest cycle: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s cycle: %d processed, %d new channels, %d new videos, %d failed (%s)\n",
		report.Kind, report.Processed, report.NewChannels, report.NewVideos, report.Failed,
		report.Elapsed.Round(time.Millisecond))
	if report.Stable {
		fmt.Fprintln(cmd.OutOrStdout(), "graph is stable")
	}
	return nil
}
