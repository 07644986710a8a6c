// Package app builds the long-lived services from configuration and exposes
// the operations the CLI runs: crawl, serve, lookup, and hazardous.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/neows-archiver/internal/api"
	"github.com/JakeFAU/neows-archiver/internal/archive/postgres"
	"github.com/JakeFAU/neows-archiver/internal/archive/sqlite"
	cacheredis "github.com/JakeFAU/neows-archiver/internal/cache/redis"
	"github.com/JakeFAU/neows-archiver/internal/clock/system"
	"github.com/JakeFAU/neows-archiver/internal/config"
	"github.com/JakeFAU/neows-archiver/internal/crawl"
	"github.com/JakeFAU/neows-archiver/internal/fetcher"
	"github.com/JakeFAU/neows-archiver/internal/hash/sha256"
	"github.com/JakeFAU/neows-archiver/internal/id/uuid"
	"github.com/JakeFAU/neows-archiver/internal/neo"
	"github.com/JakeFAU/neows-archiver/internal/neows"
	"github.com/JakeFAU/neows-archiver/internal/normalize"
	"github.com/JakeFAU/neows-archiver/internal/policy/ratelimit"
	"github.com/JakeFAU/neows-archiver/internal/progress"
	"github.com/JakeFAU/neows-archiver/internal/progress/sinks"
	pubmemory "github.com/JakeFAU/neows-archiver/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/neows-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/neows-archiver/internal/storage/gcs"
	"github.com/JakeFAU/neows-archiver/internal/storage/local"
	"github.com/JakeFAU/neows-archiver/internal/storage/memory"
)

const (
	shutdownTimeout   = 10 * time.Second
	hubCloseTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Options override process-wide defaults, mainly for tests.
type Options struct {
	HTTPClient *http.Client
	Clock      neo.Clock
	// Registerer receives the crawl progress collectors (default registerer when nil).
	Registerer prometheus.Registerer
}

// App holds the shared services for one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     neo.Clock
	fetcher   neo.Fetcher
	client    *neows.Client
	archive   neo.Archive
	blobs     neo.BlobStore
	publisher neo.Publisher
	promSink  *sinks.PrometheusSink
	closers   []func() error
}

// New builds every configured service and fails fast on the first error,
// releasing whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: opts.Clock}
	if a.clock == nil {
		a.clock = system.New()
	}

	a.fetcher = fetcher.New(fetcher.Config{
		APIKey:         cfg.NeoWs.APIKey,
		Retries:        cfg.HTTP.Retries,
		BackoffFactor:  cfg.HTTP.BackoffFactor,
		RateLimitSleep: cfg.HTTP.RateLimitSleep,
		Timeout:        cfg.HTTP.Timeout,
		UserAgent:      cfg.HTTP.UserAgent,
	}, opts.HTTPClient, a.clock, logger.Named("fetcher"))

	client, err := a.newClient(a.fetcher)
	if err != nil {
		return nil, err
	}
	a.client = client

	if err := a.openArchive(ctx); err != nil {
		_ = a.closeAll()
		return nil, err
	}
	if err := a.openBlobs(ctx); err != nil {
		_ = a.closeAll()
		return nil, err
	}
	if err := a.openPublisher(ctx); err != nil {
		_ = a.closeAll()
		return nil, err
	}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		_ = a.closeAll()
		return nil, err
	}
	a.promSink = promSink

	return a, nil
}

func (a *App) newClient(f neo.Fetcher) (*neows.Client, error) {
	client, err := neows.New(f,
		neows.WithBaseURL(a.cfg.NeoWs.BaseURL),
		neows.WithPageSize(a.cfg.Crawl.PageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("init neows client: %w", err)
	}
	return client, nil
}

func (a *App) openArchive(ctx context.Context) error {
	switch a.cfg.Archive.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, postgres.Config{
			DSN:      a.cfg.Archive.DSN,
			Table:    a.cfg.Archive.Table,
			MaxConns: a.cfg.Archive.MaxConns,
		}, a.clock)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		a.archive = store
	default:
		store, err := sqlite.Open(ctx, sqlite.Config{
			Path:        a.cfg.Archive.Path,
			Table:       a.cfg.Archive.Table,
			BusyTimeout: a.cfg.Archive.BusyTimeout,
		}, a.clock)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		a.archive = store
	}
	a.closers = append(a.closers, a.archive.Close)
	a.logger.Info("archive ready", zap.String("driver", a.cfg.Archive.Driver))
	return nil
}

func (a *App) openBlobs(ctx context.Context) error {
	switch a.cfg.Blob.Backend {
	case config.BlobMemory:
		a.blobs = memory.NewBlobStore()
	case config.BlobLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Blob.BaseDir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.blobs = store
	case config.BlobGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Blob.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.blobs = store
		a.closers = append(a.closers, store.Close)
	default:
		return nil
	}
	a.logger.Info("snapshotting raw details", zap.String("backend", a.cfg.Blob.Backend))
	return nil
}

func (a *App) openPublisher(ctx context.Context) error {
	switch {
	case a.cfg.PubSub.Backend == config.PublisherMemory:
		a.publisher = pubmemory.New(a.cfg.PubSub.TopicName, a.logger.Named("publisher"))
		a.logger.Info("recording archive notices without publishing")
	case a.cfg.PubSub.Enabled():
		pub, err := pubsubpublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		a.logger.Info("publishing archive notices", zap.String("topic", a.cfg.PubSub.TopicName))
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}
	return nil
}

// Archive exposes the configured archive.
func (a *App) Archive() neo.Archive {
	return a.archive
}

// Crawl runs one catalog crawl from the configured start page.
func (a *App) Crawl(ctx context.Context) (crawl.Result, error) {
	hub := progress.NewHub(progress.Config{Logger: a.logger.Named("progress")},
		sinks.NewLogSink(a.logger.Named("progress")),
		a.promSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), hubCloseTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	deps := crawl.Deps{
		Catalog:   a.client,
		Lookuper:  a.client,
		Archive:   a.archive,
		Blobs:     a.blobs,
		Publisher: a.publisher,
		Hasher:    sha256.New(),
		IDs:       uuid.NewUUIDGenerator(),
		Clock:     a.clock,
		Emitter:   hub,
		Logger:    a.logger.Named("crawl"),
	}
	orch, err := crawl.New(crawl.Config{
		StartPage:      a.cfg.Crawl.StartPage,
		MaxPages:       a.cfg.Crawl.MaxPages,
		SnapshotPrefix: a.cfg.Blob.Prefix,
		Topic:          a.cfg.PubSub.TopicName,
	}, deps)
	if err != nil {
		return crawl.Result{}, err
	}
	return orch.Run(ctx)
}

// Lookup fetches and normalizes one object using its own approaches.
func (a *App) Lookup(ctx context.Context, id string) (neo.NormalizedRecord, error) {
	detail, err := a.client.Lookup(ctx, id)
	if err != nil {
		return neo.NormalizedRecord{}, err
	}
	return normalize.Record(detail, detail.Approaches), nil
}

// Hazardous returns the hazardous objects in [start, end] nearest first.
func (a *App) Hazardous(ctx context.Context, start, end string) ([]neo.NormalizedRecord, error) {
	return a.client.HazardousInWindow(ctx, start, end)
}

// Server builds the HTTP API. Upstream calls share a token bucket and, when
// Redis is configured, detail lookups are cached.
func (a *App) Server(ctx context.Context) (*api.Server, error) {
	limited := ratelimit.Wrap(a.fetcher, ratelimit.New(ratelimit.Config{
		RPS:   a.cfg.Server.UpstreamRPS,
		Burst: a.cfg.Server.UpstreamBurst,
	}))
	client, err := a.newClient(limited)
	if err != nil {
		return nil, err
	}

	var lookuper neo.Lookuper = client
	if a.cfg.Cache.RedisAddress != "" {
		rc, err := cacheredis.NewClient(ctx, a.cfg.Cache.RedisAddress, a.cfg.Cache.RedisPassword)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		cached, err := cacheredis.NewLookuper(rc, client, a.cfg.Cache.TTL, a.logger.Named("cache"))
		if err != nil {
			return nil, err
		}
		a.logger.Info("caching detail lookups", zap.String("redis", a.cfg.Cache.RedisAddress))
		lookuper = cached
		client = client.WithLookuper(cached)
	}

	return api.NewServer(api.Deps{
		Lookuper: lookuper,
		Provider: client,
		Archive:  a.archive,
		Logger:   a.logger.Named("api"),
	}, a.cfg)
}

// Serve runs the HTTP API until ctx is canceled, then drains in-flight
// requests.
func (a *App) Serve(ctx context.Context) error {
	server, err := a.Server(ctx)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Close releases services in reverse order of creation.
func (a *App) Close() error {
	return a.closeAll()
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
