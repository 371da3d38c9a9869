package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version holds the build identifier. Release builds stamp it with
// -ldflags "-X github.com/nlefebvre/collabnet/cmd.version=v1.2.3";
// source builds report "dev".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the collabnet build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "collabnet %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
