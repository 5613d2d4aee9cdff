package store

import (
	"github.com/jmoiron/sqlx"
)

type DatabaseType string

const (
	DBTypePostgres DatabaseType = "postgres"
	DBTypeSQLite   DatabaseType = "sqlite"
)

type DBConfig struct {
	DSN           string
	Type          DatabaseType
	MigrationsDir string
}

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx, so every query can run
// inside or outside a transaction.
type DBTX interface {
	sqlx.ExtContext
}

// ErrorClassifier maps a driver error to one of the models sentinels
// (ErrConflict, ErrNotFound) or returns nil when it knows nothing about it.
type ErrorClassifier func(error) error

// InTx reports whether q is an open transaction.
func InTx(q DBTX) bool {
	_, ok := q.(*sqlx.Tx)
	return ok
}
