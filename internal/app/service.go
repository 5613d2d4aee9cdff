package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/blob"
	"github.com/shrimpsizemoose/homeroom/internal/homework"
	"github.com/shrimpsizemoose/homeroom/internal/messaging"
	"github.com/shrimpsizemoose/homeroom/internal/roster"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

type Service struct {
	Config    *Config
	Store     store.Store
	Blobs     blob.Store
	Auth      *Auth
	Roster    *roster.Service
	Homework  *homework.Service
	Messaging *messaging.Service
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewServiceFromConfig(context.Background(), config)
}

// NewServiceFromConfig opens the store, the blob backend and the session
// store, then wires the domain services on top of them.
func NewServiceFromConfig(ctx context.Context, config *Config) (*Service, error) {
	loc, err := config.Location()
	if err != nil {
		return nil, err
	}

	st, err := NewStore(config.Database.DSN, config.Database.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	blobs, err := NewBlobStore(ctx, config)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to init blob storage: %w", err)
	}

	rs := roster.NewService(st)
	auth, err := NewAuth(config, rs)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to init auth: %w", err)
	}

	gate := access.NewGate(rs)
	logger.Info.Printf("Services ready: storage=%s timezone=%s auth=%t", config.Storage.Backend, loc, auth.Enabled())

	return &Service{
		Config:    config,
		Store:     st,
		Blobs:     blobs,
		Auth:      auth,
		Roster:    rs,
		Homework:  homework.NewService(st, blobs, gate),
		Messaging: messaging.NewService(st, blobs, loc),
	}, nil
}

func (s *Service) Close() error {
	var errs []error

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.Auth.Close(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}

	return errors.Join(errs...)
}
