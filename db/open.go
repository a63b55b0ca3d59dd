package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"hotfeed/config"
	"hotfeed/models"
	"hotfeed/query"
)

// Stores bundles the store implementations selected by configuration. With
// every driver one value serves every interface.
type Stores struct {
	Posts query.PostStore
	Users query.UserStore
	Blobs query.BlobStore
	Tidy  Tidier
	close func(context.Context) error
}

func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// MemoryStores wraps a memory store, mostly for tests
func MemoryStores(store *MemoryStore) *Stores {
	return &Stores{Posts: store, Users: store, Blobs: store, Tidy: store}
}

// Open connects to the configured store, waits for it to answer pings and
// applies migrations when auto_migrate is set.
func Open(ctx context.Context, cfg config.TomlStore) (*Stores, error) {
	log.WithFields(log.Fields{
		"driver": cfg.Driver,
	}).Info("Opening store")

	switch cfg.Driver {
	case DriverMemory:
		return MemoryStores(NewMemoryStore()), nil

	case DriverSQLite, DriverPostgres:
		if cfg.AutoMigrate {
			if err := Migrate(cfg.Driver, cfg.DSN); err != nil {
				return nil, err
			}
		}

		var store *SQLStore
		var err error
		if cfg.Driver == DriverSQLite {
			store, err = OpenSQLite(cfg.DSN)
		} else {
			store, err = OpenPostgres(cfg.DSN)
		}
		if err != nil {
			return nil, err
		}
		if err := waitForStore(ctx, store); err != nil {
			store.Close()
			return nil, err
		}
		return &Stores{
			Posts: store,
			Users: store,
			Blobs: store,
			Tidy:  store,
			close: func(context.Context) error { return store.Close() },
		}, nil

	case DriverMongo:
		store, err := NewMongoStore(ctx, cfg.DSN, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := waitForStore(ctx, store); err != nil {
			store.Close(ctx)
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := store.EnsureIndexes(ctx); err != nil {
				store.Close(ctx)
				return nil, err
			}
		}
		return &Stores{Posts: store, Users: store, Blobs: store, Tidy: store, close: store.Close}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// waitForStore retries pings with exponential backoff until the store
// answers, the context ends or a minute passes.
func waitForStore(ctx context.Context, store pinger) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 1.5
	b.MaxElapsedTime = time.Minute

	err := backoff.RetryNotify(
		func() error { return store.Ping(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, wait time.Duration) {
			log.WithFields(log.Fields{
				"error": err,
				"wait":  wait,
			}).Warn("Store not ready, retrying")
		},
	)
	if err != nil {
		return fmt.Errorf("%w: ping: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}
