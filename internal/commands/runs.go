package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/app"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/logger"
)

var runsLimit int

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent sync run history",
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, _ := logger.New(&cfg.Logging)

	application := app.New(cfg, log)
	if err := application.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Stop()

	runs, err := application.GetMySQL().GetRecentRuns(application.GetContext(), runsLimit)
	if err != nil {
		return fmt.Errorf("failed to load run history: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSOURCE\tSTATUS\tSUCCESS\tFAILED\tRUN ID")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Source,
			run.Status,
			run.SuccessCount,
			run.FailedCount,
			run.ID,
		)
	}
	return w.Flush()
}
