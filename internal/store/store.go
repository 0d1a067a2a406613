package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool represents the subset of pgxpool.Pool used by the repositories.
//
// This allows tests to supply a lightweight mock implementation without
// changing the public interface of the store package.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store aggregates repositories backed by PostgreSQL.
type Store struct {
	pool PgxPool

	Secrets      SecretRepository
	SyncConfigs  SyncConfigRepository
	SyncedEvents SyncedEventRepository
	FamilyEvents FamilyEventRepository
	Habits       HabitRepository
	Tasks        TaskRepository
	Locks        Locker
}

// New wires concrete repository implementations with shared connection pool.
func New(pool *pgxpool.Pool) *Store {
	return newStore(pool)
}

func newStore(pool PgxPool) *Store {
	return &Store{
		pool:         pool,
		Secrets:      &secretRepo{pool: pool},
		SyncConfigs:  &syncConfigRepo{pool: pool},
		SyncedEvents: &syncedEventRepo{pool: pool},
		FamilyEvents: &familyEventRepo{pool: pool},
		Habits:       &habitRepo{pool: pool},
		Tasks:        &taskRepo{pool: pool},
		Locks:        &leaseLocker{pool: pool, ttl: LeaseTTL},
	}
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}

// Migrate applies any pending embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	defer observeDB(ctx, "db.migrate")()
	return ApplyMigrations(ctx, s.pool)
}
