package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/anima"
	"github.com/aretw0/anima/internal/config"
	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/adapters/command"
	"github.com/aretw0/anima/pkg/adapters/file"
	"github.com/aretw0/anima/pkg/adapters/loam"
	"github.com/aretw0/anima/pkg/adapters/memory"
	"github.com/aretw0/anima/pkg/adapters/ollama"
	"github.com/aretw0/anima/pkg/adapters/redis"
	"github.com/aretw0/anima/pkg/adapters/scripted"
	"github.com/aretw0/anima/pkg/adapters/sqlite"
	"github.com/aretw0/anima/pkg/domain"
	"github.com/aretw0/anima/pkg/observability"
	"github.com/aretw0/anima/pkg/persistence/middleware"
	"github.com/aretw0/anima/pkg/ports"
	"github.com/aretw0/anima/pkg/process"
	"github.com/aretw0/anima/pkg/registry"
	"github.com/aretw0/anima/pkg/soulmemory"
	"github.com/aretw0/anima/pkg/tutor"
	"github.com/prometheus/client_golang/prometheus"
)

// App is a soul wired from configuration, together with the backends it owns.
type App struct {
	Config    config.Config
	Blueprint domain.Blueprint
	Mind      process.Process
	Soul      *anima.Soul
	Stores    *Stores
	// Registry is set when metrics are enabled.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// BuildOptions are the host-specific pieces that configuration does not cover.
type BuildOptions struct {
	Sink    domain.ActionSink
	Metrics bool
	Logger  *slog.Logger
	// Processor overrides the configured processor.
	Processor ports.Processor
	// Mind overrides the configured mind.
	Mind process.Process
}

// Build creates the soul described by cfg. Close releases its backends.
func Build(ctx context.Context, cfg config.Config, opts BuildOptions) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	blueprint, err := LoadBlueprint(ctx, cfg)
	if err != nil {
		return nil, err
	}

	processor := opts.Processor
	if processor == nil {
		if processor, err = NewProcessor(cfg, logger); err != nil {
			return nil, err
		}
	}

	mind := opts.Mind
	if mind == nil {
		if mind, err = Minds().New(cfg.Soul.Mind); err != nil {
			return nil, err
		}
	}

	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Blueprint: blueprint, Mind: mind, Stores: stores, Logger: logger}
	hooks := observability.LoggingHooks(logger)
	if opts.Metrics {
		app.Registry = prometheus.NewRegistry()
		metrics, err := observability.NewMetrics(app.Registry)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		hooks = hooks.Merge(metrics.Hooks())
	}

	soulOpts := []anima.Option{
		anima.WithProcessor(processor),
		anima.WithFactStore(stores.Facts),
		anima.WithLifecycleHooks(hooks),
		anima.WithLogger(logger),
	}
	if cfg.Soul.ID != "" {
		soulOpts = append(soulOpts, anima.WithSoulID(cfg.Soul.ID))
	}
	if cfg.Soul.Fallback != "" {
		soulOpts = append(soulOpts, anima.WithFallbackReply(cfg.Soul.Fallback))
	}
	if cfg.Session.ID != "" {
		soulOpts = append(soulOpts, anima.WithTranscriptStore(stores.Transcripts, cfg.Session.ID))
	}
	if stores.Locker != nil {
		soulOpts = append(soulOpts, anima.WithLocker(stores.Locker))
	}
	if opts.Sink != nil {
		soulOpts = append(soulOpts, anima.WithActionSink(opts.Sink))
	}

	soul, err := anima.New(ctx, blueprint, mind, soulOpts...)
	if err != nil {
		stores.Close()
		return nil, err
	}
	app.Soul = soul

	logger.Info("soul ready",
		"soul", soul.Name(),
		"processor", cfg.Processor.Kind,
		"store", cfg.Store.Kind,
		"session", cfg.Session.ID,
	)
	return app, nil
}

// Close releases the backends opened by Build.
func (a *App) Close() error {
	return a.Stores.Close()
}

// Minds returns the mental processes selectable with soul.mind.
func Minds() *registry.Registry {
	r := registry.NewRegistry()
	r.Register("tutor", func() process.Process { return tutor.New() })
	return r
}

// LoadBlueprint reads the configured blueprint from its loam repository.
func LoadBlueprint(ctx context.Context, cfg config.Config) (domain.Blueprint, error) {
	loader, err := loam.Open(cfg.Soul.Dir)
	if err != nil {
		return domain.Blueprint{}, err
	}
	blueprint, err := loader.LoadBlueprint(ctx, cfg.Soul.Blueprint)
	if err != nil {
		return domain.Blueprint{}, fmt.Errorf("failed to load blueprint: %w", err)
	}
	return blueprint, nil
}

// NewProcessor creates the configured language-model collaborator.
func NewProcessor(cfg config.Config, logger *slog.Logger) (ports.Processor, error) {
	pc := cfg.Processor
	switch pc.Kind {
	case config.ProcessorOllama:
		opts := []ollama.Option{ollama.WithLogger(logger)}
		if pc.Model != "" {
			opts = append(opts, ollama.WithModel(domain.ModelDefault, pc.Model))
		}
		if pc.Speed != "" {
			opts = append(opts, ollama.WithModel(domain.ModelSpeed, pc.Speed))
		}
		if pc.Quality != "" {
			opts = append(opts, ollama.WithModel(domain.ModelQuality, pc.Quality))
		}
		return ollama.New(pc.URL, opts...), nil

	case config.ProcessorCommand:
		def, err := command.LoadConfig(pc.Commands)
		if err != nil {
			return nil, err
		}
		opts := append(def.Options(),
			command.WithBaseDir(filepath.Dir(pc.Commands)),
			command.WithLogger(logger),
		)
		return command.New(def.Default, opts...), nil

	case config.ProcessorScripted:
		return scripted.Load(pc.Script)

	default:
		return nil, fmt.Errorf("unknown processor kind '%s'", pc.Kind)
	}
}

// Stores are the persistence backends of a soul.
type Stores struct {
	Facts       ports.FactStore
	Transcripts ports.TranscriptStore
	// Locker is only set for backends shared between processes.
	Locker  ports.Locker
	closers []func() error
}

// Close releases every backend connection.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenStores opens the configured backend and applies the redaction and
// encryption middlewares.
func OpenStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	sc := cfg.Store
	s := &Stores{}

	switch sc.Kind {
	case config.StoreMemory:
		s.Facts = memory.NewFactStore()
		s.Transcripts = memory.NewTranscriptStore()

	case config.StoreFile:
		s.Facts = file.NewFactStore(filepath.Join(sc.Path, "facts"))
		s.Transcripts = file.NewTranscriptStore(filepath.Join(sc.Path, "transcripts"))

	case config.StoreSQLite:
		if err := os.MkdirAll(sc.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err := sqlite.Open(ctx, filepath.Join(sc.Path, "anima.db"))
		if err != nil {
			return nil, err
		}
		s.Facts = db
		s.Transcripts = db.Transcripts()
		s.closers = append(s.closers, db.Close)

	case config.StoreRedis:
		client := redis.NewClient(sc.Addr, sc.Password, sc.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", sc.Addr, err)
		}
		s.Facts = redis.NewFactStore(client, redis.WithPrefix(sc.Prefix))
		s.Transcripts = redis.NewTranscriptStore(client, redis.WithPrefix(sc.Prefix))
		s.Locker = redis.NewLocker(client, sc.Prefix)
		s.closers = append(s.closers, client.Close)

	default:
		return nil, fmt.Errorf("unknown store kind '%s'", sc.Kind)
	}

	var mws []middleware.Middleware
	if len(sc.Redact) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(sc.Redact))
	}

	key, err := sc.DecodeKey()
	if err != nil {
		s.Close()
		return nil, err
	}
	if key != nil {
		enc := middleware.EncryptionConfig{ActiveKey: key}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
		s.Transcripts = middleware.NewTranscriptEncryptionMiddleware(enc)(s.Transcripts)
	}
	s.Facts = middleware.Chain(s.Facts, mws...)

	logger.Debug("stores opened", "kind", sc.Kind, "redacted", len(sc.Redact), "encrypted", key != nil)
	return s, nil
}

// OpenFacts opens the SoulMemoryStore of the configured soul without
// creating the soul itself.
func OpenFacts(ctx context.Context, cfg config.Config, logger *slog.Logger) (*soulmemory.Store, *Stores, error) {
	soulID := cfg.Soul.ID
	if soulID == "" {
		blueprint, err := LoadBlueprint(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		soulID = blueprint.Name
	}

	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	facts, err := soulmemory.Open(ctx, soulID, stores.Facts)
	if err != nil {
		stores.Close()
		return nil, nil, err
	}
	return facts, stores, nil
}
