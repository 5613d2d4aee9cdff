package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

type PostgresStore struct {
	store.BaseStore
}

func NewPostgresStore(dsn, migrationsDir string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{BaseStore: store.BaseStore{
		DB:        db,
		Converter: numberPlaceholders,
		Classify:  classify,
	}}

	if migrationsDir != "" {
		if err := s.ApplyMigrations(migrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	return s, nil
}

func (s *PostgresStore) ApplyMigrations(dir string) error {
	return s.BaseStore.ApplyMigrations(dir, nil)
}

// numberPlaceholders rewrites ? bind vars into $1, $2, ...
func numberPlaceholders(query string) string {
	out := query
	for i := 1; strings.Contains(out, "?"); i++ {
		out = strings.Replace(out, "?", fmt.Sprintf("$%d", i), 1)
	}
	return out
}

func classify(err error) error {
	var pgErr *pq.Error
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return models.ErrConflict
	case "23503": // foreign_key_violation
		return models.ErrNotFound
	case "23514", "23502": // check_violation, not_null_violation
		return models.ErrValidation
	}
	return nil
}
