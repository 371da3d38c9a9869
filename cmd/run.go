package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nlefebvre/collabnet/internal/events"
	"github.com/nlefebvre/collabnet/internal/harvest"
)

var (
	runMaxCycles int
	runPause     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run harvest cycles until the graph is stable",
	Long: `Run executes harvest cycles back to back: draining the video backlog,
refreshing stale channels, and discovering new ones. It stops when a
discovery cycle finds nothing new and nothing else is pending, when the
cycle limit is reached, or on SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runMaxCycles, "max-cycles", 0, "stop after this many cycles (0 = until stable)")
	runCmd.Flags().StringVar(&runPause, "pause", "0s", "pause between cycles (e.g. 30s, 2m)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	pause, err := time.ParseDuration(runPause)
	if err != nil {
		return fmt.Errorf("invalid pause %q: %w", runPause, err)
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	// Progress lines come off the event bus so stdout stays readable
	// while slog writes structured logs to stderr.
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for evt := range c.Bus.Subscribe(ctx) {
			if evt.Kind != events.CycleCompleted {
				continue
			}
			r := evt.Payload
			fmt.Fprintf(cmd.OutOrStdout(), "cycle %d (%s): %d processed, %d new channels, %d new videos\n",
				r.Ordinal, r.Kind, r.Processed, r.NewChannels, r.NewVideos)
		}
	}()

	last, runErr := c.Harvester.Run(ctx, runMaxCycles, pause)

	cancel()
	<-progressDone

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("harvest: %w", runErr)
	}
	printRunSummary(cmd, last)
	return nil
}

func printRunSummary(cmd *cobra.Command, last *harvest.CycleReport) {
	if last == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ran %d cycle(s), last: %s\n", last.Ordinal, last.Kind)
	if last.Stable {
		fmt.Fprintln(cmd.OutOrStdout(), "graph is stable")
	}
}
