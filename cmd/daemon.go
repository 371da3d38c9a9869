package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/nlefebvre/collabnet/internal/events"
)

var daemonSchedule string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run harvest cycles on a schedule",
	Long: `Daemon runs one harvest cycle per schedule tick and keeps going until
SIGINT/SIGTERM. Ticks that fire while a cycle is still running are
skipped, so slow cycles never pile up. A stable graph does not stop the
daemon; new streams and videos make it unstable again over time.

The schedule uses cron syntax, including descriptors like "@every 15m"
and "@hourly".`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonSchedule, "schedule", "@every 15m", "cron schedule for harvest cycles")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

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

	// Observe cycle outcomes off the bus rather than inside the tick,
	// so future observers (metrics, a follower CLI) attach the same way.
	go func() {
		for evt := range c.Bus.Subscribe(ctx) {
			if evt.Kind == events.GraphStable {
				logger.Info("graph currently stable, idling until new activity",
					"cycles", evt.Payload.Ordinal)
			}
		}
	}()

	sched := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	ordinal := 0
	_, err = sched.AddFunc(daemonSchedule, func() {
		ordinal++
		if _, err := c.Harvester.RunCycle(ctx, ordinal); err != nil && ctx.Err() == nil {
			logger.Error("harvest cycle failed", "ordinal", ordinal, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", daemonSchedule, err)
	}

	sched.Start()
	logger.Info("daemon started", "schedule", daemonSchedule)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)

	cancel()
	<-sched.Stop().Done()
	logger.Info("daemon stopped")
	return nil
}
