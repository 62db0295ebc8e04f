// Package postgres provides the Postgres-backed catalog and run stores.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// acquireFunc hands out a connection and the function that returns it.
type acquireFunc func(ctx context.Context) (beginner, func(), error)

// Store implements catalog.Store and catalog.RunStore.
type Store struct {
	pool    Pool
	acquire acquireFunc
}

// NewStore connects a pool using cfg.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{
		pool: pool,
		acquire: func(ctx context.Context) (beginner, func(), error) {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return nil, nil, err
			}
			return conn, conn.Release, nil
		},
	}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
// Sessions share the pool instead of pinning a connection.
func NewStoreWithPool(pool Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{
		pool: pool,
		acquire: func(context.Context) (beginner, func(), error) {
			return pool, func() {}, nil
		},
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Acquire pins one pool connection for the caller until Release.
func (s *Store) Acquire(ctx context.Context) (catalog.Session, error) {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &session{conn: conn, release: release}, nil
}

// TermHasSections reports whether any section is stored for the term label.
func (s *Store) TermHasSections(ctx context.Context, term string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM sections s
			JOIN terms t ON t.id = s.term_id
			WHERE t.name = $1
		)`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, term).Scan(&exists); err != nil {
		return false, fmt.Errorf("probe term %s: %w", term, err)
	}
	return exists, nil
}

type session struct {
	conn     beginner
	release  func()
	released bool
}

func (s *session) Begin(ctx context.Context) (catalog.Tx, error) {
	if s.released {
		return nil, fmt.Errorf("session released")
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &txRepo{tx: tx}, nil
}

func (s *session) Release() {
	if s.released {
		return
	}
	s.released = true
	s.release()
}
