package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/academydesk/internal/pkg/apperrors"
	"github.com/yigit/academydesk/internal/pkg/logger"
)

// DefaultTable is the table Postgres stores keys in
const DefaultTable = "console_kv"

// Postgres stores keys as rows of a two-column table
type Postgres struct {
	db    *pgxpool.Pool
	sb    squirrel.StatementBuilderType
	table string
}

// NewPostgres wraps a pool; table defaults to DefaultTable
func NewPostgres(db *pgxpool.Pool, table string) *Postgres {
	if table == "" {
		table = DefaultTable
	}
	return &Postgres{
		db:    db,
		sb:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		table: table,
	}
}

// EnsureSchema creates the backing table when missing
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pgx.Identifier{p.table}.Sanitize())

	if _, err := p.db.Exec(ctx, ddl); err != nil {
		logger.Error().Err(err).Str("table", p.table).Msg("Error creating key-value table")
		return fmt.Errorf("failed to create key-value table: %w", err)
	}
	return nil
}

// Get returns the value stored under key
func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	sql, args, err := p.sb.Select("value").
		From(p.table).
		Where(squirrel.Eq{"key": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build get query: %w", err)
	}

	var value string
	if err := p.db.QueryRow(ctx, sql, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrKeyNotFound
		}
		logger.Error().Err(err).Str("key", key).Msg("Error scanning key-value row")
		return "", fmt.Errorf("error retrieving key %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key
func (p *Postgres) Set(ctx context.Context, key, value string) error {
	sql, args, err := p.sb.Insert(p.table).
		Columns("key", "value", "updated_at").
		Values(key, value, time.Now()).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build set query: %w", err)
	}

	if _, err := p.db.Exec(ctx, sql, args...); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Error executing set query")
		return fmt.Errorf("error storing key %s: %w", key, err)
	}
	return nil
}

// Remove deletes key
func (p *Postgres) Remove(ctx context.Context, key string) error {
	sql, args, err := p.sb.Delete(p.table).
		Where(squirrel.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build remove query: %w", err)
	}

	if _, err := p.db.Exec(ctx, sql, args...); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Error executing remove query")
		return fmt.Errorf("error removing key %s: %w", key, err)
	}
	return nil
}

// Close closes the pool
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}
