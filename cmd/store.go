package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/beerprice/internal/normalize"
	"github.com/sells-group/beerprice/internal/store"
	"github.com/sells-group/beerprice/internal/vocab"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "beerprice.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// loadVocabulary returns the configured vocabulary file, or the built-in
// one when no path is set.
func loadVocabulary() (*vocab.Vocabulary, error) {
	if cfg.Pipeline.VocabularyPath == "" {
		return vocab.Default(), nil
	}
	v, err := vocab.Load(cfg.Pipeline.VocabularyPath)
	if err != nil {
		return nil, eris.Wrap(err, "load vocabulary")
	}
	return v, nil
}

func initPipeline() (*normalize.Pipeline, error) {
	v, err := loadVocabulary()
	if err != nil {
		return nil, err
	}
	policy := normalize.PolicyByName(cfg.Pipeline.UnitPricePolicy)
	if policy == nil {
		return nil, eris.Errorf("unknown unit price policy: %s", cfg.Pipeline.UnitPricePolicy)
	}
	return normalize.New(v, normalize.Options{
		Workers: cfg.Pipeline.Workers,
		Policy:  policy,
	}), nil
}
