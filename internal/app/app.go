// Package app initializes and holds long-lived application services, acting
// as a dependency injection container. It is built once at startup from the
// loaded configuration and passed to the commands that need it.
package app

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pagestash/pagestash/internal/clock/system"
	"github.com/pagestash/pagestash/internal/config"
	openaiextractor "github.com/pagestash/pagestash/internal/extractor/openai"
	collyfetcher "github.com/pagestash/pagestash/internal/fetcher/colly"
	"github.com/pagestash/pagestash/internal/hash/sha256"
	"github.com/pagestash/pagestash/internal/id/uuid"
	"github.com/pagestash/pagestash/internal/logging"
	"github.com/pagestash/pagestash/internal/metrics"
	"github.com/pagestash/pagestash/internal/pipeline"
	"github.com/pagestash/pagestash/internal/policy/ratelimit"
	"github.com/pagestash/pagestash/internal/progress"
	"github.com/pagestash/pagestash/internal/progress/sinks"
	memorypublisher "github.com/pagestash/pagestash/internal/publisher/memory"
	nooppublisher "github.com/pagestash/pagestash/internal/publisher/noop"
	pubsubpublisher "github.com/pagestash/pagestash/internal/publisher/pubsub"
	"github.com/pagestash/pagestash/internal/runner"
	gcsblob "github.com/pagestash/pagestash/internal/storage/gcs"
	localblob "github.com/pagestash/pagestash/internal/storage/local"
	memorystorage "github.com/pagestash/pagestash/internal/storage/memory"
	noopblob "github.com/pagestash/pagestash/internal/storage/noop"
	"github.com/pagestash/pagestash/internal/storage/postgres"
	"github.com/pagestash/pagestash/internal/worker"
)

// App holds the shared, long-lived services for the application.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     pipeline.PageStore
	blob      pipeline.BlobStore
	publisher pipeline.Publisher
	fetcher   pipeline.Fetcher
	extractor pipeline.Extractor
	limiter   *ratelimit.Limiter
	hub       *progress.Hub
	snapshots *sinks.SnapshotSink

	pubsubClient *gcppubsub.Client
	gcsClient    *gcpstorage.Client
}

// New creates and initializes an App from the loaded configuration. It is the
// central point for service initialization and fails fast if any critical
// service cannot be built.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initBlob(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.initProgress(); err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})
	a.limiter = ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.RateLimitRPS,
		DefaultBurst: cfg.Crawler.RateLimitBurst,
	})
	if cfg.Extraction.Enabled && cfg.Extraction.APIKey != "" {
		a.extractor = openaiextractor.New(openaiextractor.Config{
			APIKey:      cfg.Extraction.APIKey,
			Model:       cfg.Extraction.Model,
			BaseURL:     cfg.Extraction.BaseURL,
			Temperature: float32(cfg.Extraction.Temperature),
			MaxChars:    cfg.Extraction.MaxInputChars,
		})
	} else {
		logger.Info("extraction disabled, payloads derived from page content")
	}

	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Database.Provider {
	case "postgres":
		if a.cfg.Database.DSN == "" {
			return fmt.Errorf("database provider is postgres but database.dsn is not set")
		}
		a.logger.Info("connecting to postgres", zap.String("table", a.cfg.Database.Table))
		store, err := postgres.NewPageStore(ctx, postgres.PageStoreConfig{
			DSN:             a.cfg.Database.DSN,
			Table:           a.cfg.Database.Table,
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.ConnLifetime(),
		})
		if err != nil {
			return fmt.Errorf("init page store: %w", err)
		}
		a.store = store
	case "memory":
		a.logger.Info("using in-memory page store, data is lost on exit")
		a.store = memorystorage.NewPageStore()
	default:
		return fmt.Errorf("unknown database provider %q", a.cfg.Database.Provider)
	}
	return nil
}

func (a *App) initBlob(ctx context.Context) error {
	switch a.cfg.Blob.Provider {
	case "gcs":
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		blob, err := gcsblob.New(client, gcsblob.Config{Bucket: a.cfg.Blob.GCS.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.logger.Info("using gcs blob store", zap.String("bucket", a.cfg.Blob.GCS.Bucket))
		a.blob = blob
	case "local":
		blob, err := localblob.New(localblob.Config{BaseDir: a.cfg.Blob.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.logger.Info("using local blob store", zap.String("base_dir", a.cfg.Blob.Local.BaseDir))
		a.blob = blob
	case "noop":
		a.logger.Info("using noop blob store, raw content is discarded")
		a.blob = noopblob.New()
	default:
		return fmt.Errorf("unknown blob provider %q", a.cfg.Blob.Provider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.cfg.Events.Provider {
	case "pubsub":
		client, err := gcppubsub.NewClient(ctx, a.cfg.Events.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		a.pubsubClient = client
		a.logger.Info("publishing events to pubsub", zap.String("topic", a.cfg.Events.Topic))
		a.publisher = pubsubpublisher.New(client.Topic(a.cfg.Events.Topic))
	case "memory":
		a.publisher = memorypublisher.New()
	case "noop":
		a.publisher = nooppublisher.New()
	default:
		return fmt.Errorf("unknown events provider %q", a.cfg.Events.Provider)
	}
	return nil
}

func (a *App) initProgress() error {
	a.snapshots = sinks.NewSnapshotSink(0)
	hubSinks := []progress.Sink{
		sinks.NewLogSink(a.logger),
		a.snapshots,
	}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	hubSinks = append(hubSinks, promSink)
	a.hub = progress.NewHub(progress.Config{Logger: a.logger}, hubSinks...)
	return nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the configured page store.
func (a *App) Store() pipeline.PageStore {
	return a.store
}

// Snapshots returns the in-memory run snapshot sink used by the HTTP API.
func (a *App) Snapshots() *sinks.SnapshotSink {
	return a.snapshots
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Runner builds the crawl runner over the initialized services.
func (a *App) Runner() (*runner.Runner, error) {
	schema, err := a.cfg.RecordSchema()
	if err != nil {
		return nil, err
	}
	return runner.New(
		a.fetcher,
		a.extractor,
		a.limiter,
		a.store,
		a.blob,
		a.publisher,
		sha256.New(),
		system.New(),
		uuid.NewGenerator(),
		a.hub,
		schema,
		runner.Config{
			Concurrency: a.cfg.Crawler.Concurrency,
			MaxRetries:  a.cfg.Crawler.MaxRetries,
			QueueDepth:  a.cfg.Crawler.QueueDepth,
			Topic:       a.cfg.Events.Topic,
			BlobPrefix:  a.cfg.Blob.Prefix,
			ContentType: a.cfg.Blob.ContentType,
			Worker: worker.Config{
				RespectRobots: a.cfg.Crawler.RespectRobots,
			},
		},
		a.logger,
	), nil
}

// Close gracefully shuts down all services held by the container.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	// Best effort; stderr sync errors on some platforms are expected.
	_ = a.logger.Sync()
}
