// Package postgres implements the durable store on PostgreSQL using pgxpool
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"playersync/pkg/model"
	"playersync/pkg/store"
)

// Config holds database connection settings
type Config struct {
	URI             string
	MinConns        int32
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// Store implements store.Store using pgxpool
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect creates the pool and verifies the connection
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, now: time.Now}, nil
}

// Ensure Store implements the interface
var _ store.Store = (*Store)(nil)

// Schema returns the idempotent DDL the store relies on
func Schema() []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table(model.KindEconomy) + ` (
			player_uuid TEXT PRIMARY KEY,
			balance DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, kind := range model.SnapshotKinds {
		stmts = append(stmts, `CREATE TABLE IF NOT EXISTS `+table(kind)+` (
			id BIGSERIAL PRIMARY KEY,
			player_uuid TEXT NOT NULL,
			name TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (player_uuid, name)
		)`)
	}
	return stmts
}

// Migrate applies Schema in one transaction
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range Schema() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func table(kind model.Kind) string {
	return pgx.Identifier{kind.Collection()}.Sanitize()
}

// Balance operations

func (s *Store) GetBalance(ctx context.Context, player uuid.UUID) (model.BalanceRecord, error) {
	rec := model.BalanceRecord{Player: player}
	err := s.pool.QueryRow(ctx,
		`SELECT balance, created_at, updated_at FROM `+table(model.KindEconomy)+` WHERE player_uuid = $1`,
		player.String(),
	).Scan(&rec.Balance, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BalanceRecord{}, model.ErrNotFound
		}
		return model.BalanceRecord{}, err
	}
	return rec, nil
}

func (s *Store) CreateBalance(ctx context.Context, player uuid.UUID, balance float64) (float64, error) {
	// The no-op update makes RETURNING yield the existing row on conflict
	query := `
		INSERT INTO ` + table(model.KindEconomy) + ` (player_uuid, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (player_uuid) DO UPDATE SET player_uuid = EXCLUDED.player_uuid
		RETURNING balance
	`
	var stored float64
	if err := s.pool.QueryRow(ctx, query, player.String(), balance, s.now()).Scan(&stored); err != nil {
		return 0, err
	}
	return stored, nil
}

func (s *Store) SetBalance(ctx context.Context, player uuid.UUID, balance float64) (bool, error) {
	query := `
		INSERT INTO ` + table(model.KindEconomy) + ` (player_uuid, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (player_uuid) DO UPDATE SET
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	if err := s.pool.QueryRow(ctx, query, player.String(), balance, s.now()).Scan(&inserted); err != nil {
		return false, err
	}
	return !inserted, nil
}

// incrementQuery creates the row at starting+delta or adds delta to it.
// Parameters in arithmetic are cast since the server cannot infer their type.
func incrementQuery() string {
	return `
		INSERT INTO ` + table(model.KindEconomy) + ` AS e (player_uuid, balance, created_at, updated_at)
		VALUES ($1, $2::double precision + $3::double precision, $4, $4)
		ON CONFLICT (player_uuid) DO UPDATE SET
			balance = e.balance + $3::double precision,
			updated_at = EXCLUDED.updated_at
		RETURNING balance
	`
}

func (s *Store) IncrementBalance(ctx context.Context, player uuid.UUID, delta, starting float64) (float64, error) {
	var balance float64
	if err := s.pool.QueryRow(ctx, incrementQuery(), player.String(), starting, delta, s.now()).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Snapshot operations

func (s *Store) GetSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name string) (model.SnapshotRecord, error) {
	rec := model.SnapshotRecord{Kind: kind, Player: player, Name: name}
	err := s.pool.QueryRow(ctx,
		`SELECT data, created_at, updated_at FROM `+table(kind)+` WHERE player_uuid = $1 AND name = $2`,
		player.String(), name,
	).Scan(&rec.Data, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SnapshotRecord{}, model.ErrNotFound
		}
		return model.SnapshotRecord{}, err
	}
	return rec, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name, data string) (bool, error) {
	query := `
		INSERT INTO ` + table(kind) + ` (player_uuid, name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (player_uuid, name) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	if err := s.pool.QueryRow(ctx, query, player.String(), name, data, s.now()).Scan(&inserted); err != nil {
		return false, err
	}
	return !inserted, nil
}

func (s *Store) UpdateSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name, data string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+table(kind)+` SET data = $3, updated_at = $4 WHERE player_uuid = $1 AND name = $2`,
		player.String(), name, data, s.now(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+table(kind)+` WHERE player_uuid = $1 AND name = $2`,
		player.String(), name,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteAllSnapshots(ctx context.Context, kind model.Kind, player uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table(kind)+` WHERE player_uuid = $1`, player.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListSnapshots(ctx context.Context, kind model.Kind, player uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM `+table(kind)+` WHERE player_uuid = $1 ORDER BY created_at, id`,
		player.String(),
	)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Lifecycle

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
