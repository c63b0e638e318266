// Package badger is the embedded document store: reviews, the engagement
// index and subject revisions live in one BadgerDB so a like toggle can read
// and write a review and a user's entry under a single optimistic
// transaction.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

type Config struct {
	// Path is ignored when InMemory is true.
	Path     string
	InMemory bool

	SyncWrites bool

	// Logger receives BadgerDB's internal messages. Nil silences them.
	Logger *zerolog.Logger

	NumVersionsToKeep int

	// GCInterval of 0 disables value log GC.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

func DefaultConfig(path string) Config {
	return Config{
		Path:              path,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

func InMemoryConfig() Config {
	return Config{InMemory: true, NumVersionsToKeep: 1}
}

// badgerLogger routes BadgerDB's printf-style logger into zerolog.
type badgerLogger struct{ l zerolog.Logger }

func (b badgerLogger) Errorf(f string, a ...interface{})   { b.l.Error().Msgf(f, a...) }
func (b badgerLogger) Warningf(f string, a ...interface{}) { b.l.Warn().Msgf(f, a...) }
func (b badgerLogger) Infof(f string, a ...interface{})    { b.l.Info().Msgf(f, a...) }
func (b badgerLogger) Debugf(f string, a ...interface{})   { b.l.Debug().Msgf(f, a...) }

// DB wraps a BadgerDB handle with its GC runner.
type DB struct {
	*badger.DB
	gc *gcRunner
}

func OpenDB(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.NumVersionsToKeep > 0 {
		opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{l: cfg.Logger.With().Str("component", "badger").Logger()})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	db := &DB{DB: bdb}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		db.gc = &gcRunner{
			db:       bdb,
			interval: cfg.GCInterval,
			ratio:    cfg.GCDiscardRatio,
			stop:     make(chan struct{}),
			done:     make(chan struct{}),
			log:      cfg.Logger,
		}
		go db.gc.run()
	}
	return db, nil
}

func (d *DB) Close() error {
	if d.gc != nil {
		d.gc.halt()
	}
	return d.DB.Close()
}

// withTxn commits fn's writes only if fn succeeds and ctx is still live at
// commit time; otherwise the transaction is discarded untouched.
func (d *DB) withTxn(ctx context.Context, update bool, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := d.DB.NewTransaction(update)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	if !update {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return txn.Commit()
}

type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stop     chan struct{}
	done     chan struct{}
	log      *zerolog.Logger
}

func (r *gcRunner) run() {
	defer close(r.done)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			// ErrNoRewrite just means there was nothing worth collecting
			if err := r.db.RunValueLogGC(r.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && r.log != nil {
				r.log.Warn().Err(err).Msg("badger value log GC failed")
			}
		}
	}
}

func (r *gcRunner) halt() {
	close(r.stop)
	<-r.done
}
