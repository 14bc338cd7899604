package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/app"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/logger"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [source]",
	Short: "Run one sync for a source and exit",
	Long: `Run a single sync for a source without starting the HTTP server.

Valid sources are domain, realestate and social. The run is recorded in
the run history like any dashboard-triggered run.

Examples:
  pello-sync sync domain
  pello-sync sync realestate`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	source := args[0]

	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	log, _ := logger.New(&cfg.Logging)

	application := app.New(cfg, log)
	if err := application.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Stop()

	// Interrupt cancels the in-flight run
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run, summary, err := application.GetRunner().Run(ctx, source)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("Run %s finished with status %s\n", run.ID, run.Status)
	fmt.Printf("Success: %d, Failed: %d\n", summary.SuccessCount, summary.FailedCount)

	if run.Status == models.RunPartial {
		for _, failed := range summary.FailedRecords {
			fmt.Printf("  failed: %s (%s)\n", failed.ListingID, failed.Error)
		}
	}

	return nil
}
