// Package server builds the application's dependencies and runs the HTTP
// service and the sync scheduler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/api"
	"github.com/JakeFAU/rescue-radar/internal/clock"
	"github.com/JakeFAU/rescue-radar/internal/config"
	"github.com/JakeFAU/rescue-radar/internal/dedup"
	"github.com/JakeFAU/rescue-radar/internal/dispatcher"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/id/uuid"
	"github.com/JakeFAU/rescue-radar/internal/ingest"
	"github.com/JakeFAU/rescue-radar/internal/logging"
	"github.com/JakeFAU/rescue-radar/internal/metrics"
	"github.com/JakeFAU/rescue-radar/internal/policy/ratelimit"
	"github.com/JakeFAU/rescue-radar/internal/provider"
	"github.com/JakeFAU/rescue-radar/internal/provider/petfinder"
	"github.com/JakeFAU/rescue-radar/internal/provider/rescuegroups"
	memorypublisher "github.com/JakeFAU/rescue-radar/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/rescue-radar/internal/publisher/pubsub"
	"github.com/JakeFAU/rescue-radar/internal/resolver"
	"github.com/JakeFAU/rescue-radar/internal/scoring"
	badgerstore "github.com/JakeFAU/rescue-radar/internal/storage/badger"
	gcsstorage "github.com/JakeFAU/rescue-radar/internal/storage/gcs"
	localstorage "github.com/JakeFAU/rescue-radar/internal/storage/local"
	memorystorage "github.com/JakeFAU/rescue-radar/internal/storage/memory"
	pgstore "github.com/JakeFAU/rescue-radar/internal/storage/postgres"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

// App contains the application's dependencies.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	animals  store.AnimalRepository
	runs     store.SyncRunRepository
	resolver *resolver.Resolver
	pipeline *ingest.Pipeline
	dispatch *dispatcher.Dispatcher
	api      *api.Server
	ready    api.ReadinessCheck

	pgPool          *pgxpool.Pool
	badger          *badgerstore.Backend
	storage         *storage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
		}
	}()
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Backend),
		zap.Bool("archive", cfg.Archive.Enabled),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
	)

	clk := clock.NewSystem()
	fmtr := formatter.New(formatter.Config{Priorities: cfg.Priorities()})
	scorer := scoring.New(cfg.Scoring, clk)

	if err = setupStore(ctx, app); err != nil {
		return nil, err
	}
	providers, err := setupProviders(app, clk)
	if err != nil {
		return nil, err
	}

	app.resolver, err = resolver.New(cfg.Resolver, resolver.Deps{
		Store:     app.animals,
		Providers: providers,
		Formatter: fmtr,
		Scorer:    scorer,
		Dedup:     dedup.New(cfg.Dedup),
		Clock:     clk,
		Logger:    logger.Named("resolver"),
	})
	if err != nil {
		return nil, fmt.Errorf("resolver init failed: %w", err)
	}

	blobs, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	app.pipeline, err = ingest.New(cfg.Ingest, ingest.Deps{
		Animals:   app.animals,
		Runs:      app.runs,
		Providers: providers,
		Formatter: fmtr,
		Scorer:    scorer,
		Clock:     clk,
		IDs:       uuid.New(),
		Blobs:     blobs,
		Publisher: publisher,
		Logger:    logger.Named("ingest"),
	})
	if err != nil {
		return nil, fmt.Errorf("ingest pipeline init failed: %w", err)
	}
	app.dispatch = dispatcher.New(app.pipeline, cfg.Sync.Interval, logger.Named("dispatcher"))

	app.api = api.NewServer(app.resolver, app.dispatch, app.runs, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready:          app.ready,
	}, logger.Named("api"))

	return app, nil
}

func setupStore(ctx context.Context, app *App) error {
	var err error
	switch app.cfg.Store.Backend {
	case config.BackendPostgres:
		pg := app.cfg.Store.Postgres
		app.pgPool, err = pgstore.Open(ctx, pgstore.Config{
			DSN:             pg.DSN,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: pg.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		if pg.Migrate {
			if err = pgstore.Migrate(ctx, app.pgPool); err != nil {
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
		}
		if app.animals, err = pgstore.NewAnimalStore(app.pgPool); err != nil {
			return fmt.Errorf("animal store init failed: %w", err)
		}
		if app.runs, err = pgstore.NewSyncRunStore(app.pgPool); err != nil {
			return fmt.Errorf("sync run store init failed: %w", err)
		}
		app.ready = app.pgPool.Ping
		app.logger.Info("using postgres store", zap.Int32("max_conns", pg.MaxConns))
	case config.BackendBadger:
		app.badger, err = badgerstore.Open(badgerstore.Config{
			Path:     app.cfg.Store.Badger.Path,
			InMemory: app.cfg.Store.Badger.InMemory,
		}, app.logger.Named("badger"))
		if err != nil {
			return fmt.Errorf("badger init failed: %w", err)
		}
		if app.animals, err = badgerstore.NewAnimalStore(app.badger); err != nil {
			return fmt.Errorf("animal store init failed: %w", err)
		}
		if app.runs, err = badgerstore.NewSyncRunStore(app.badger); err != nil {
			return fmt.Errorf("sync run store init failed: %w", err)
		}
		backend := app.badger
		app.ready = func(context.Context) error {
			if backend.IsClosed() {
				return errors.New("badger is closed")
			}
			return nil
		}
		app.logger.Info("using badger store",
			zap.String("path", app.cfg.Store.Badger.Path),
			zap.Bool("in_memory", app.cfg.Store.Badger.InMemory),
		)
	default:
		app.logger.Warn("using in-memory store; records are lost on restart")
		app.animals = memorystorage.NewAnimalStore()
		app.runs = memorystorage.NewSyncRunStore()
	}
	return nil
}

// setupProviders builds one client per enabled provider, each with its own limiter.
func setupProviders(app *App, clk animal.Clock) ([]provider.Client, error) {
	pcfg := app.cfg.Providers
	httpClient := &http.Client{Timeout: pcfg.HTTPTimeout}
	var providers []provider.Client

	if pcfg.RescueGroups.Enabled {
		limiter := ratelimit.New(rescuegroups.Name, pcfg.RescueGroups.RateLimit, clk)
		client, err := rescuegroups.New(pcfg.RescueGroups.Client(), httpClient, limiter, app.logger.Named(rescuegroups.Name))
		if err != nil {
			return nil, fmt.Errorf("rescuegroups client init failed: %w", err)
		}
		providers = append(providers, client)
	}
	if pcfg.Petfinder.Enabled {
		limiter := ratelimit.New(petfinder.Name, pcfg.Petfinder.RateLimit, clk)
		client, err := petfinder.New(pcfg.Petfinder.Client(), httpClient, limiter, clk, app.logger.Named(petfinder.Name))
		if err != nil {
			return nil, fmt.Errorf("petfinder client init failed: %w", err)
		}
		providers = append(providers, client)
	}
	if len(providers) == 0 {
		app.logger.Warn("no providers enabled; searches use the store only and syncs do nothing")
	}
	return providers, nil
}

func setupArchive(ctx context.Context, app *App) (store.BlobStore, error) {
	if !app.cfg.Archive.Enabled {
		app.logger.Info("raw page archive disabled")
		return nil, nil
	}
	if app.cfg.Archive.Backend == config.ArchiveLocal {
		blobs, err := localstorage.New(localstorage.Config{Dir: app.cfg.Archive.Dir, Prefix: app.cfg.Archive.Prefix})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("archiving raw pages locally", zap.String("dir", app.cfg.Archive.Dir))
		return blobs, nil
	}
	var err error
	app.storage, err = storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	blobs, err := gcsstorage.New(app.storage, gcsstorage.Config{
		Bucket: app.cfg.Archive.Bucket,
		Prefix: app.cfg.Archive.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("gcs blob store init failed: %w", err)
	}
	app.logger.Info("archiving raw pages to GCS", zap.String("bucket", app.cfg.Archive.Bucket))
	return blobs, nil
}

func setupPublisher(ctx context.Context, app *App) (ingest.Publisher, error) {
	if !app.cfg.PubSub.Enabled {
		app.logger.Info("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(app.logger.Named("publisher")), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(app.pubsubClient)
	if app.cfg.PubSub.CreateTopic {
		if err = app.pubsubPublisher.EnsureTopic(ctx, app.cfg.Ingest.Topic); err != nil {
			return nil, fmt.Errorf("pubsub topic init failed: %w", err)
		}
	}
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.Ingest.Topic),
	)
	return app.pubsubPublisher, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Resolver returns the search resolver.
func (a *App) Resolver() *resolver.Resolver { return a.resolver }

// Searcher returns the resolver behind the search API.
func (a *App) Searcher() api.Searcher { return a.resolver }

// Dispatcher returns the sync dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher { return a.dispatch }

// RunSync runs one sync in the foreground.
func (a *App) RunSync(ctx context.Context) (ingest.Summary, error) {
	return a.dispatch.RunNow(ctx)
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Run starts the scheduler and the HTTP server and blocks until the context
// is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.dispatch.Run(ctx)
	if a.cfg.Sync.RunOnStart {
		if err := a.dispatch.TriggerSync(ctx); err != nil {
			a.logger.Warn("startup sync not started", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.dispatch.Wait()
	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every client and store the App opened.
func (a *App) Close() {
	a.closeInfrastructure()
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.badger != nil {
		if err := a.badger.Close(); err != nil {
			a.logger.Warn("badger close failed", zap.Error(err))
		}
	}
}
