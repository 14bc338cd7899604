package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/api"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/auth"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/cache"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/database"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/ledger"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/messaging"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/services"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/sources"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/store"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/syncer"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/websocket"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
)

// App represents the main application
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Core components
	mysqlDB    *database.MySQLClient
	influxDB   *database.InfluxClient
	redisCache *cache.RedisClient
	natsClient *messaging.NATSClient
	hub        *websocket.Hub
	fileLedger *ledger.FileLedger

	// Services
	runner    *services.Runner
	apiServer *api.Server
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize initializes all application components
func (a *App) Initialize() error {
	if err := a.initializeDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initializeCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := a.initializeMessaging(); err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	if err := a.initializeWebSocket(); err != nil {
		return fmt.Errorf("failed to initialize WebSocket: %w", err)
	}

	if err := a.initializePipelines(); err != nil {
		return fmt.Errorf("failed to initialize pipelines: %w", err)
	}

	if err := a.initializeAPIServer(); err != nil {
		return fmt.Errorf("failed to initialize API server: %w", err)
	}

	return nil
}

// Start starts the application
func (a *App) Start() error {
	// Start WebSocket hub
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.hub.Run(a.ctx)
	}()

	// Start API server
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(); err != nil {
			if err != http.ErrServerClosed {
				a.logger.WithError(err).Error("API server error")
			}
		}
	}()

	return nil
}

// Stop gracefully stops the application
func (a *App) Stop() error {
	a.logger.Info("Stopping application...")

	// Stop API server first so no new runs start mid-shutdown
	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.apiServer.Stop(ctx); err != nil {
			a.logger.WithError(err).Error("Error stopping API server")
		}
		cancel()
	}

	// Cancel context to signal shutdown
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("All goroutines stopped")
	case <-time.After(3 * time.Second):
		a.logger.Warn("Timeout waiting for goroutines to finish")
	}

	if err := a.closeConnections(); err != nil {
		a.logger.WithError(err).Error("Error closing connections")
	}

	a.logger.Info("Application stopped successfully")
	return nil
}

// GetContext returns the application context
func (a *App) GetContext() context.Context {
	return a.ctx
}

// GetRunner returns the sync runner
func (a *App) GetRunner() *services.Runner {
	return a.runner
}

// GetMySQL returns the run history store
func (a *App) GetMySQL() *database.MySQLClient {
	return a.mysqlDB
}

// Private initialization methods

func (a *App) initializeDatabase() error {

	mysqlClient, err := database.NewMySQLClient(&a.cfg.MySQL, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	a.mysqlDB = mysqlClient

	if err := a.mysqlDB.Migrate(a.ctx); err != nil {
		return fmt.Errorf("failed to migrate run history schema: %w", err)
	}

	a.influxDB = database.NewInfluxClient(&a.cfg.InfluxDB, a.logger)

	// Run metrics are best effort; a down InfluxDB must not block syncs
	if err := a.influxDB.Health(a.ctx); err != nil {
		a.logger.WithError(err).Warn("InfluxDB not reachable, run metrics disabled")
		a.influxDB.Close()
		a.influxDB = nil
	}

	return nil
}

func (a *App) initializeCache() error {

	redisClient, err := cache.NewRedisClient(&a.cfg.Redis, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.redisCache = redisClient

	return nil
}

func (a *App) initializeMessaging() error {

	natsClient, err := messaging.NewNATSClient(&a.cfg.NATS, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.natsClient = natsClient

	return nil
}

func (a *App) initializeWebSocket() error {

	a.hub = websocket.NewHub(a.natsClient, a.logger)

	return nil
}

// initializePipelines builds one fetch-transform-push pipeline per source and
// registers them with the runner.
func (a *App) initializePipelines() error {

	fileLedger, err := ledger.NewFileLedger(a.cfg.Sync.LedgerDir, a.logger)
	if err != nil {
		return err
	}
	a.fileLedger = fileLedger

	a.runner = services.NewRunner(a.mysqlDB, a.influxDB, a.redisCache, a.logger)

	minWait := a.cfg.Sync.MinRateLimitWait
	tokenTTL := a.cfg.Sync.TokenTTL

	// Domain portal: OAuth credentials, performance join required
	domainCreds := auth.NewOAuthProvider(
		"domain",
		a.cfg.Domain.AuthEndpoint,
		a.cfg.Domain.ClientID,
		a.cfg.Domain.ClientSecret,
		tokenTTL,
		a.redisCache,
		a.logger,
	)
	domainAdapter := sources.NewDomainClient(&a.cfg.Domain, domainCreds, a.logger)
	a.registerPipeline(domainAdapter, a.cfg.Airtable.DomainTable, syncer.JoinRequireMatch, minWait)

	// Realestate portal: OAuth credentials, performance join required
	realestateCreds := auth.NewOAuthProvider(
		"realestate",
		a.cfg.Realestate.AuthEndpoint,
		a.cfg.Realestate.ClientID,
		a.cfg.Realestate.ClientSecret,
		tokenTTL,
		a.redisCache,
		a.logger,
	)
	realestateAdapter := sources.NewRealestateClient(&a.cfg.Realestate, realestateCreds, a.logger)
	a.registerPipeline(realestateAdapter, a.cfg.Airtable.RealestateTable, syncer.JoinRequireMatch, minWait)

	// Social feed: pre-issued token, no separate performance endpoint
	socialCreds := auth.NewStaticProvider(a.cfg.Social.AccessToken)
	socialAdapter := sources.NewSocialClient(&a.cfg.Social, socialCreds, a.logger)
	a.registerPipeline(socialAdapter, a.cfg.Airtable.SocialTable, syncer.JoinLeftOuter, minWait)

	return nil
}

func (a *App) registerPipeline(adapter sources.Adapter, table string, joinMode syncer.JoinMode, minWait time.Duration) {
	airtable := store.NewAirtableClient(&a.cfg.Airtable, table, a.logger)
	reconciler := syncer.NewReconciler(airtable, a.fileLedger, a.natsClient, minWait, a.logger)
	orchestrator := syncer.NewOrchestrator(adapter, reconciler, a.natsClient, a.natsClient, joinMode, a.logger)
	a.runner.Register(adapter.Name(), orchestrator)
}

func (a *App) initializeAPIServer() error {

	a.apiServer = api.NewServer(
		a.cfg,
		a.logger,
		a.runner,
		a.mysqlDB,
		a.redisCache,
		a.natsClient,
		a.hub,
	)

	return nil
}

func (a *App) closeConnections() error {

	var errs []error

	if a.mysqlDB != nil {
		if err := a.mysqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MySQL: %w", err))
		}
	}

	if a.influxDB != nil {
		a.influxDB.Close()
	}

	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if a.natsClient != nil {
		if err := a.natsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close NATS: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}

	return nil
}
