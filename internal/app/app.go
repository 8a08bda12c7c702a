// Package app wires the query server together and manages its lifecycle.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	httpapi "github.com/g302ge/cnosdb/internal/api/http"
	"github.com/g302ge/cnosdb/internal/config"
	cerrors "github.com/g302ge/cnosdb/internal/errors"
	"github.com/g302ge/cnosdb/internal/meta"
	"github.com/g302ge/cnosdb/internal/observability"
	"github.com/g302ge/cnosdb/internal/query"
	"github.com/g302ge/cnosdb/internal/query/dispatcher"
	"github.com/g302ge/cnosdb/internal/query/optimizer"
	"github.com/g302ge/cnosdb/internal/query/parser"
	"github.com/g302ge/cnosdb/internal/query/scheduler"
	"github.com/g302ge/cnosdb/internal/server"
	"github.com/g302ge/cnosdb/internal/storage"
	"github.com/g302ge/cnosdb/pkg/types"
)

// App owns the catalog store, the dispatcher and the network listeners.
type App struct {
	cfg *config.Config

	meta       meta.Client
	resolver   *storage.Resolver
	tracker    *observability.QueryTracker
	dispatcher *dispatcher.SimpleQueryDispatcher
	shutdown   *server.ShutdownManager

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server

	mu      sync.Mutex
	opened  bool
	running bool
	wg      sync.WaitGroup
}

// New validates cfg and prepares the data directories.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg:      cfg,
		shutdown: server.NewShutdownManager(server.DefaultShutdownConfig()),
	}, nil
}

// Open initializes the catalog store, storage and dispatcher without
// starting any listener. Start calls it implicitly.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	if err := a.openMeta(); err != nil {
		return err
	}
	a.shutdown.RegisterCloser("meta", a.meta)

	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	if err := a.openStorage(ctx); err != nil {
		return err
	}

	a.tracker = observability.NewQueryTracker(a.cfg.Query.StatsWindow)
	sched := scheduler.NewLocalScheduler(a.resolver, nil, scheduler.Config{
		ReadConcurrency: a.cfg.Query.ReadConcurrency,
		BatchSize:       a.cfg.Query.BatchSize,
	})

	d, err := dispatcher.NewBuilder().
		WithMetadata(a.meta).
		WithSessionFactory(query.NewDefaultSessionFactory(a.cfg.Query.DefaultCatalog, a.cfg.Query.DefaultDatabase)).
		WithParser(parser.NewSQLParser()).
		WithOptimizer(optimizer.NewDefaultOptimizer()).
		WithScheduler(sched).
		WithQueriesLimit(a.cfg.Query.ConcurrentQueryLimit).
		WithTracker(a.tracker).
		WithStorageResolver(a.resolver).
		WithTargetPartitions(a.cfg.Query.TargetPartitions).
		Build()
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	a.dispatcher = d
	a.shutdown.RegisterCloser("dispatcher", server.CloserFunc(func() error {
		d.Stop()
		return nil
	}))

	a.opened = true
	return nil
}

func (a *App) openMeta() error {
	if a.cfg.Meta.ShardCount > 1 {
		store, err := meta.NewShardedStore(a.cfg.MetaDir(), a.cfg.Meta.ShardCount)
		if err != nil {
			return fmt.Errorf("failed to open sharded meta store: %w", err)
		}
		a.meta = store
		return nil
	}

	store, err := meta.NewSQLiteStore(filepath.Join(a.cfg.MetaDir(), "meta.db"))
	if err != nil {
		return fmt.Errorf("failed to open meta store: %w", err)
	}
	a.meta = store
	log.Info().Str("path", store.Path()).Msg("meta store initialized")
	return nil
}

// bootstrap creates the default database of the default catalog.
func (a *App) bootstrap(ctx context.Context) error {
	err := a.meta.CreateDatabase(ctx, a.cfg.Query.DefaultCatalog, types.NewDatabaseSchema(a.cfg.Query.DefaultDatabase))
	if err != nil && !cerrors.HasCode(err, cerrors.ErrCategoryCatalog, cerrors.CodeDatabaseExists) {
		return fmt.Errorf("failed to create default database: %w", err)
	}
	return nil
}

func (a *App) openStorage(ctx context.Context) error {
	s3Cfg := storage.DefaultS3Config()
	if a.cfg.Storage.S3.Region != "" {
		s3Cfg.Region = a.cfg.Storage.S3.Region
	}
	if a.cfg.Storage.S3.Endpoint != "" {
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = true
	}

	var (
		def storage.ObjectStorage
		err error
	)
	switch a.cfg.Storage.Type {
	case "local":
		def, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		def, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		err = fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.resolver = storage.NewResolver(def, s3Cfg)

	ev := log.Info().Str("type", a.cfg.Storage.Type)
	if a.cfg.Storage.Type == "s3" {
		ev = ev.Str("bucket", a.cfg.Storage.S3.Bucket).Str("region", s3Cfg.Region).Str("endpoint", s3Cfg.Endpoint)
	} else {
		ev = ev.Str("path", a.cfg.Storage.Path)
	}
	ev.Msg("storage initialized")
	return nil
}

// Start opens the app and starts the HTTP and, if enabled, gRPC health
// listeners. On failure everything opened so far is closed again.
func (a *App) Start(ctx context.Context) error {
	if err := a.Open(ctx); err != nil {
		a.Stop(context.Background())
		return err
	}
	if err := a.startListeners(); err != nil {
		a.Stop(context.Background())
		return err
	}

	log.Info().Str("http", a.HTTPAddr()).Str("grpc", a.GRPCAddr()).Msg("cnosdb query server started")
	return nil
}

func (a *App) startListeners() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	if err := a.startHTTP(); err != nil {
		return err
	}
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			return err
		}
	}
	a.running = true
	return nil
}

func (a *App) startHTTP() error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.httpListener = ln

	handler := httpapi.NewRouter(httpapi.NewQueryHandler(a.dispatcher, a.tracker))
	a.httpServer = &http.Server{
		Handler:      server.ShutdownMiddleware(a.shutdown)(handler),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser("http", server.HTTPServerCloser(a.httpServer, server.DefaultShutdownConfig().DrainTimeout))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	ln, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	a.grpcListener = ln

	a.grpcServer = grpc.NewServer()
	a.health = health.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, a.health)
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	a.shutdown.RegisterCloser("grpc", server.CloserFunc(func() error {
		a.health.Shutdown()
		a.grpcServer.GracefulStop()
		return nil
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.grpcServer.Serve(ln); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()
	return nil
}

// Dispatcher returns the query dispatcher. It is nil until Open succeeds.
func (a *App) Dispatcher() dispatcher.QueryDispatcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dispatcher == nil {
		return nil
	}
	return a.dispatcher
}

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (a *App) HTTPAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (a *App) GRPCAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Execute runs sql through the dispatcher. Empty fields of qctx fall back
// to the configured defaults.
func (a *App) Execute(ctx context.Context, qctx query.QueryContext, sql string) ([]query.Output, error) {
	d := a.Dispatcher()
	if d == nil {
		return nil, fmt.Errorf("app is not open")
	}
	id, err := d.CreateQueryID()
	if err != nil {
		return nil, err
	}
	return d.ExecuteQuery(ctx, id, query.NewQuery(qctx, sql))
}

// Stop shuts down listeners, the dispatcher and the catalog store, then
// waits for the serving goroutines.
func (a *App) Stop(ctx context.Context) error {
	err := a.shutdown.Shutdown(ctx, "stop requested")
	a.wg.Wait()

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return err
}

// WaitForShutdown blocks until a termination signal or ctx cancellation,
// then stops the app.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.wg.Wait()
	return err
}
