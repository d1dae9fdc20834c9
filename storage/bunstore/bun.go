// Package bunstore keeps client values in a SQL table through bun.
// Open targets SQLite, New accepts any bun.DB.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-auth-client/storage"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var _ storage.Storage = &Store{}

// Entry is one stored value
type Entry struct {
	bun.BaseModel `bun:"table:client_storage,alias:cs"`

	Key       string    `bun:"storage_key,pk" json:"key"`
	Value     string    `bun:"value,notnull" json:"value"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type Store struct {
	db    *bun.DB
	owned bool
}

// New wraps db. Call Migrate before first use if the table may not exist.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Open opens a SQLite database at dsn and creates the table
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("bunstore: open: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	s := &Store{
		db:    bun.NewDB(sqldb, sqlitedialect.New()),
		owned: true,
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Entry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: create table: %w", err)
	}
	return nil
}

func (s *Store) DB() *bun.DB {
	return s.db
}

// Close closes the database when it was opened by Open
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidKey
	}

	entry := new(Entry)
	err := s.db.NewSelect().
		Model(entry).
		Where("storage_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("bunstore: get %s: %w", key, err)
	}
	return entry.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrInvalidKey
	}

	entry := &Entry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(entry).
		On("CONFLICT (storage_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrInvalidKey
	}

	_, err := s.db.NewDelete().
		Model((*Entry)(nil)).
		Where("storage_key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: delete %s: %w", key, err)
	}
	return nil
}
