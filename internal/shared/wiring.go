package shared

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"housing_reviews/internal/adapters/identity"
	"housing_reviews/internal/app"
	"housing_reviews/internal/domain"
	badgerstore "housing_reviews/internal/storage/badger"
	mysqlrepo "housing_reviews/internal/storage/mysql"
)

// OpenStore connects the configured document store driver.
func OpenStore(c Config) (domain.Store, error) {
	switch c.StoreDriver {
	case "badger":
		bc := badgerstore.DefaultConfig(c.BadgerPath)
		l := log.Logger.With().Str("component", "badger").Logger()
		bc.Logger = &l
		st, err := badgerstore.Open(bc)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", c.BadgerPath).Msg("badger store open")
		return st, nil

	case "mysql":
		db, err := sql.Open("mysql", c.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("sql.Open: %w", err)
		}
		db.SetMaxOpenConns(32)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db.Ping: %w", err)
		}
		log.Info().Msg("database connection ok")
		return mysqlrepo.New(db), nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
}

// IdentityGate builds the configured bearer verifier.
func IdentityGate(c Config) (domain.IdentityGate, error) {
	switch c.IdentityMode {
	case "jwt":
		return identity.NewJWTGate(c.JWTSecret)
	case "remote":
		return identity.NewClient(c.IdentityBaseURL, c.IdentityRPS)
	}
	return nil, fmt.Errorf("unknown IDENTITY_MODE %q", c.IdentityMode)
}

func (c Config) RetryPolicy() app.RetryPolicy {
	p := app.DefaultRetryPolicy()
	if c.TxMaxAttempts > 0 {
		p.MaxAttempts = c.TxMaxAttempts
	}
	if c.TxBackoff > 0 {
		p.BaseDelay = c.TxBackoff
		if p.MaxDelay < 50*c.TxBackoff {
			p.MaxDelay = 50 * c.TxBackoff
		}
	}
	return p
}
