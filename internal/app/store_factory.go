package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/homeroom/internal/blob"
	"github.com/shrimpsizemoose/homeroom/internal/store"
	"github.com/shrimpsizemoose/homeroom/internal/store/postgres"
	"github.com/shrimpsizemoose/homeroom/internal/store/sqlite"
)

func NewStore(dsn, migrationsDir string) (store.Store, error) {
	dbType := store.DBTypeSQLite
	if strings.HasPrefix(dsn, "postgres") {
		dbType = store.DBTypePostgres
	}

	switch dbType {
	case store.DBTypePostgres:
		return postgres.NewPostgresStore(dsn, migrationsDir)
	case store.DBTypeSQLite:
		return sqlite.NewSQLiteStore(dsn, migrationsDir)
	default:
		return nil, fmt.Errorf("unable to determine database type from DSN: %s", dsn)
	}
}

func NewBlobStore(ctx context.Context, config *Config) (blob.Store, error) {
	switch config.Storage.Backend {
	case StorageB2:
		b2 := config.Storage.B2
		return blob.NewB2Store(ctx, b2.AccountID, b2.AppKey, b2.Bucket)
	case StorageFS:
		return blob.NewFSStore(config.Storage.UploadDir)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", config.Storage.Backend)
	}
}
