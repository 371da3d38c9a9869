package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nlefebvre/collabnet/internal/config"
	"github.com/nlefebvre/collabnet/internal/events"
	"github.com/nlefebvre/collabnet/internal/graph"
	"github.com/nlefebvre/collabnet/internal/harvest"
	"github.com/nlefebvre/collabnet/internal/mentions"
	"github.com/nlefebvre/collabnet/internal/store"
	"github.com/nlefebvre/collabnet/internal/twitch"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "collabnet",
	Short: "Harvest streamer collaboration graphs from video mentions",
	Long: `Collabnet incrementally builds a collaboration graph of streaming
channels. It discovers channels through top categories and live streams,
fetches their archived videos, and turns @mentions in video titles into
weighted edges between channels.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".collabnet/config.yaml"
	}
	return home + "/.collabnet/config.yaml"
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	return config.Load(path)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home + path[1:], nil
	}
	return path, nil
}

// components holds initialized components for use by subcommands.
type components struct {
	Config    *config.Config
	Store     *store.DB
	Gateway   *twitch.Client
	Harvester *harvest.Harvester
	Bus       *events.Bus[harvest.CycleReport]
	Logger    *slog.Logger
}

// initComponents creates all components from config.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
	}

	dbPath, err := expandPath(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving store path: %w", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	c.Store = db

	timeout, err := cfg.Harvest.RequestTimeout()
	if err != nil {
		timeout = 15 * time.Second
	}
	gateway, err := twitch.New(twitch.Options{
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
		AuthURL:      cfg.Twitch.AuthURL,
		BaseURL:      cfg.Twitch.APIURL,
		Timeout:      timeout,
		MaxRetries:   cfg.Harvest.MaxRetries,
		Logger:       logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating gateway: %w", err)
	}
	c.Gateway = gateway

	staleness, err := cfg.Harvest.StalenessAge()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parsing staleness_age: %w", err)
	}
	sched := &harvest.Scheduler{
		DiscoveryInterval: cfg.Harvest.DiscoveryInterval,
		StalenessAge:      staleness,
	}

	validator := mentions.NewValidator(db, c.Gateway, logger)
	acc := graph.NewAccumulator(db, validator, logger)
	c.Bus = events.NewBus[harvest.CycleReport]()

	h, err := harvest.New(db, c.Gateway, acc, sched, cfg.Harvest, logger, c.Bus)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating harvester: %w", err)
	}
	c.Harvester = h

	return c, nil
}
