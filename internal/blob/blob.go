// Package blob stores uploaded files under opaque keys.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

// Store is the file backend. Keys are slash separated and relative.
type Store interface {
	Put(ctx context.Context, key string, content []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

var (
	imageExt    = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
	documentExt = []string{".pdf", ".doc", ".docx", ".txt", ".xls", ".xlsx"}
)

// KindOf classifies a file by its extension.
func KindOf(filename string) models.FileType {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range imageExt {
		if ext == e {
			return models.FileTypeImage
		}
	}
	for _, e := range documentExt {
		if ext == e {
			return models.FileTypeDocument
		}
	}
	return models.FileTypeOther
}

// NewKey builds a unique key under scope that still hints at the original
// file name, e.g. "homework/3f2b...-lab-report.pdf".
func NewKey(scope, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := slug.Make(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	name := uuid.NewString()
	if base != "" {
		name += "-" + base
	}
	return path.Join(scope, name+ext)
}

// Stager remembers every key it wrote so a failed operation can take the
// files back out. It is not safe for concurrent use.
type Stager struct {
	store Store
	keys  []string
}

func NewStager(store Store) *Stager {
	return &Stager{store: store}
}

// Put writes an upload under a fresh key in scope and returns the key.
func (s *Stager) Put(ctx context.Context, scope string, up models.Upload) (string, error) {
	if strings.TrimSpace(up.Filename) == "" {
		return "", models.NewValidationError("empty file name", models.FieldError{Field: "filename", Error: "required"})
	}
	key := NewKey(scope, up.Filename)
	if err := s.store.Put(ctx, key, up.Content); err != nil {
		return "", fmt.Errorf("failed to store %q: %w: %w", up.Filename, models.ErrStorage, err)
	}
	s.keys = append(s.keys, key)
	return key, nil
}

// Rollback deletes everything written so far. Errors are logged and joined.
func (s *Stager) Rollback(ctx context.Context) error {
	var errs []error
	for _, key := range s.keys {
		if err := s.store.Delete(ctx, key); err != nil {
			logger.Error.Printf("Failed to remove staged blob %s: %v", key, err)
			errs = append(errs, err)
		}
	}
	s.keys = nil
	return errors.Join(errs...)
}

// Keys returns the keys written so far.
func (s *Stager) Keys() []string {
	return append([]string(nil), s.keys...)
}

// DeleteAll removes keys on a best-effort basis, logging failures. It is
// used after a commit, when the rows are already gone.
func DeleteAll(ctx context.Context, store Store, keys []string) {
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			logger.Error.Printf("Failed to remove blob %s: %v", key, err)
		}
	}
}
