package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/recall-api/internal/api"
	"github.com/phrazzld/recall-api/internal/config"
	"github.com/phrazzld/recall-api/internal/domain/srs"
	"github.com/phrazzld/recall-api/internal/events"
	"github.com/phrazzld/recall-api/internal/metrics"
	"github.com/phrazzld/recall-api/internal/platform/postgres"
	"github.com/phrazzld/recall-api/internal/service"
	"github.com/phrazzld/recall-api/internal/service/auth"
	"github.com/phrazzld/recall-api/internal/service/workflow"
)

// application holds all the shared application dependencies.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jwtService auth.JWTService
	metrics    *metrics.Recorder
	emitter    *events.InMemoryEventEmitter

	cardService    service.CardService
	catalogService service.CatalogService
	workflow       workflow.Service
}

// newApplication creates an application with all dependencies initialized.
// The database must already be connected and migrated.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.metrics = metrics.New()
	app.metrics.Register()

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(metrics.NewResolutionHandler(app.metrics, logger))

	cardStore := postgres.NewPostgresCardStore(db, logger)
	catalogStore := postgres.NewPostgresCatalogStore(db, logger)
	cardTypeStore := postgres.NewPostgresCardTypeStore(db, logger)
	requestStore := postgres.NewPostgresChangeRequestStore(db, logger)
	codeAllocator := postgres.NewPostgresCodeAllocator(db, logger)
	statsStore := postgres.NewPostgresStatsStore(sqlx.NewDb(db, "pgx"), logger)

	scheduler := srs.NewServiceWithParams(srs.NewParams(srs.ParamsConfig{
		MinEaseFactor:  cfg.Scheduler.MinEaseFactor,
		FailurePenalty: cfg.Scheduler.FailurePenalty,
		FirstInterval:  cfg.Scheduler.FirstInterval,
		SecondInterval: cfg.Scheduler.SecondInterval,
	}))

	app.catalogService, err = service.NewCatalogService(
		catalogStore,
		cardTypeStore,
		cfg.Catalog.CardTypeCacheTTL,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog service: %w", err)
	}

	app.cardService, err = service.NewCardService(
		db,
		cardStore,
		catalogStore,
		app.catalogService,
		statsStore,
		scheduler,
		app.metrics,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create card service: %w", err)
	}

	app.workflow, err = workflow.NewService(
		db,
		requestStore,
		catalogStore,
		codeAllocator,
		cardStore,
		app.emitter,
		app.metrics,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow service: %w", err)
	}

	logger.Info("application initialized",
		slog.Int("token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes),
		slog.Int("import_max_rows", cfg.Catalog.ImportMaxRows))
	return app, nil
}

// handlers builds the HTTP handlers over the application's services.
func (app *application) handlers() (*api.CardHandler, *api.CatalogHandler, *api.ChangeRequestHandler) {
	return api.NewCardHandler(app.cardService, app.logger),
		api.NewCatalogHandler(app.catalogService, app.logger),
		api.NewChangeRequestHandler(app.workflow, app.config.Catalog.ImportMaxRows, app.logger)
}
