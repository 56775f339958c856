package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Postgres driver
)

// SQLStore is the relational store for every transactional table the core
// reads and writes. All queries are tenant-scoped; transactions stay short
// and inside one aggregate.
type SQLStore struct {
	db     *sqlx.DB
	logger *log.Logger
}

// OpenSQLStore connects to Postgres and verifies connectivity. A failed ping
// at boot is an unrecoverable startup error for the caller.
func OpenSQLStore(ctx context.Context, url string, maxOpen, maxIdle int) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &SQLStore{
		db:     db,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}, nil
}

// NewSQLStore wraps an existing connection (tests with sqlmock).
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
}

// DB exposes the underlying handle for components that need transactional
// writes alongside their own rows (outbox writers).
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

// WithTx runs fn inside one transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Printf("Rollback failed: %v (original error: %v)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
