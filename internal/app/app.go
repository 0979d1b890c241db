package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"journez/backend/internal/ai"
	"journez/backend/internal/cache"
	"journez/backend/internal/config"
	"journez/backend/internal/places"
	"journez/backend/internal/recommend"
	"journez/backend/internal/store"
)

// App holds the wired recommendation pipeline and whatever needs closing.
type App struct {
	Pipeline     *recommend.Pipeline
	CacheBackend string
	// CacheStats is set only for the sqlite backend.
	CacheStats func(context.Context) (store.Stats, error)

	closers []func() error
}

// Build wires generators, the directory client, its cache and the pipeline
// from cfg. Missing credentials disable the matching half instead of failing.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{CacheBackend: strings.ToLower(cfg.CacheBackend)}

	generator := buildGenerator(cfg)

	var lookup recommend.Lookuper
	placesCfg := cfg.Places()
	lookupCache, err := a.buildCache(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	placesCfg.Cache = lookupCache

	client, err := places.NewClient(placesCfg)
	switch {
	case err == nil:
		lookup = client
	case errors.Is(err, places.ErrMissingCredential):
		logrus.Warn("PLACES_API_KEY not set; recommendation requests will be rejected")
	default:
		_ = a.Close()
		return nil, fmt.Errorf("create places client: %w", err)
	}

	a.Pipeline = recommend.NewPipeline(generator, recommend.NewResolver(lookup, cfg.Resolver()), cfg.Pipeline())
	logrus.WithFields(logrus.Fields{
		"generator": generatorName(generator),
		"directory": lookup != nil,
		"cache":     a.CacheBackend,
	}).Info("recommendation pipeline ready")
	return a, nil
}

// Close releases caches in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildGenerator(cfg config.Config) ai.Generator {
	var primary, fallback ai.Generator
	if gemini, err := ai.NewGeminiClient(cfg.Gemini()); err == nil {
		primary = gemini
	}
	if openai, err := ai.NewOpenAIClient(cfg.OpenAI()); err == nil {
		fallback = openai
	}
	generator := ai.WithFallback(primary, fallback)
	if generator == nil {
		logrus.Warn("neither GEMINI_API_KEY nor OPENAI_API_KEY set; generation disabled")
	}
	return generator
}

func generatorName(generator ai.Generator) string {
	if generator == nil {
		return "none"
	}
	return generator.Name()
}

func (a *App) buildCache(ctx context.Context, cfg config.Config) (places.Cache, error) {
	switch a.CacheBackend {
	case config.CacheNone:
		return nil, nil
	case config.CacheSQLite:
		if dir := filepath.Dir(cfg.CacheDBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create cache directory: %w", err)
			}
		}
		db, err := store.Open(cfg.CacheDBPath, true)
		if err != nil {
			return nil, err
		}
		if purged, err := db.PurgeExpired(ctx); err != nil {
			logrus.WithError(err).Warn("purge expired place lookups")
		} else if purged > 0 {
			logrus.WithField("rows", purged).Info("purged expired place lookups")
		}
		a.closers = append(a.closers, db.Close)
		a.CacheStats = db.Stats
		return db, nil
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	default:
		return places.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL), nil
	}
}
