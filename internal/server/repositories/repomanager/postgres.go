// Package repomanager provides the RepositoryManager implementations for
// PostgreSQL and for the in-memory gateway, wiring together repository
// constructors, transactions and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/storefeedback/qrverify/internal/dbx"
	"github.com/storefeedback/qrverify/internal/server/migrations"
	"github.com/storefeedback/qrverify/internal/server/repositories/fraudlogs"
	"github.com/storefeedback/qrverify/internal/server/repositories/sessions"
	"github.com/storefeedback/qrverify/internal/server/repositories/stores"
	"github.com/storefeedback/qrverify/internal/server/repositories/transactions"
	"github.com/storefeedback/qrverify/internal/server/repositories/verifications"
)

// postgresRepos binds every repository to one DBTX, either the pool or a transaction.
type postgresRepos struct {
	db dbx.DBTX
}

func (r postgresRepos) Sessions() sessions.Repository {
	return sessions.NewPostgresRepository(r.db)
}

func (r postgresRepos) Verifications() verifications.Repository {
	return verifications.NewPostgresRepository(r.db)
}

func (r postgresRepos) FraudLogs() fraudlogs.Repository {
	return fraudlogs.NewPostgresRepository(r.db)
}

func (r postgresRepos) Stores() stores.Repository {
	return stores.NewPostgresRepository(r.db)
}

func (r postgresRepos) Transactions() transactions.Repository {
	return transactions.NewPostgresRepository(r.db)
}

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct {
	postgresRepos
	pool *sql.DB
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// RunMigrations sets up goose with the embedded migrations and runs them
// against the managed connection pool.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.pool, "."); err != nil {
		return err
	}
	return nil
}

// WithTx runs fn inside a database transaction.
func (m *PostgresRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return dbx.WithTx(ctx, m.pool, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, postgresRepos{db: tx})
	})
}

func (m *PostgresRepositoryManager) Close() error {
	return m.pool.Close()
}

// NewPostgresRepositoryManager wraps an open pool.
func NewPostgresRepositoryManager(db *sql.DB) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{postgresRepos: postgresRepos{db: db}, pool: db}
}

// OpenPostgres opens a pgx-backed pool for dsn and verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepositoryManager, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgresRepositoryManager(db), nil
}
