package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pello-sync",
	Short: "Real-estate data sync dashboard",
	Long: `One-way data bridge pushing property listings and performance metrics
from portal APIs into Airtable, with a live dashboard.

Sources:
• Domain listings and performance (JSON API)
• Realestate.com.au listings and performance (XML API)
• Social analytics feed

Progress and logs stream to connected dashboards over WebSocket,
distributed through NATS so any instance's runs are visible everywhere.`,
	Version: "2.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
