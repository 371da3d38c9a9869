package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup for collabnet configuration",
	Long:  `Creates a default configuration file with guided prompts.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Welcome to collabnet setup!")
	fmt.Println("This will create a configuration file for you.")
	fmt.Println()

	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file already exists at %s\n", configPath)
		fmt.Print("Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Print("Twitch client ID (or press Enter to use ${TWITCH_CLIENT_ID}): ")
	clientID, _ := reader.ReadString('\n')
	clientID = strings.TrimSpace(clientID)

	fmt.Print("Twitch client secret (or press Enter to use ${TWITCH_CLIENT_SECRET}): ")
	clientSecret, _ := reader.ReadString('\n')
	clientSecret = strings.TrimSpace(clientSecret)

	config := buildConfigYAML(clientID, clientSecret)

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(config), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", configPath)
	fmt.Println("Edit the file to customize batch sizes and thresholds.")
	return nil
}

func buildConfigYAML(clientID, clientSecret string) string {
	var b strings.Builder

	b.WriteString("# collabnet configuration\n")
	b.WriteString("# Credentials come from the Twitch developer console.\n\n")

	b.WriteString("twitch:\n")
	if clientID != "" {
		b.WriteString(fmt.Sprintf("  client_id: %s\n", clientID))
	} else {
		b.WriteString("  client_id: ${TWITCH_CLIENT_ID}\n")
	}
	if clientSecret != "" {
		b.WriteString(fmt.Sprintf("  client_secret: %s\n", clientSecret))
	} else {
		b.WriteString("  client_secret: ${TWITCH_CLIENT_SECRET}\n")
	}
	b.WriteString("\n")

	b.WriteString("harvest:\n")
	b.WriteString("  mention_batch_size: 500\n")
	b.WriteString("  refresh_batch_size: 50\n")
	b.WriteString("  top_categories: 50\n")
	b.WriteString("  streams_per_category: 50\n")
	b.WriteString("  videos_per_channel: 100\n")
	b.WriteString("  staleness_age: 168h\n")
	b.WriteString("  discovery_interval: 10\n")
	b.WriteString("  max_retries: 3\n")
	b.WriteString("  request_timeout: 15s\n")
	b.WriteString("  # fetch_videos_after: 2024-01-01T00:00:00Z\n")
	b.WriteString("\n")

	b.WriteString("store:\n")
	b.WriteString("  path: ~/.collabnet/collabnet.db\n")

	return b.String()
}
