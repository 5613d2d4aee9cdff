package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		filename string
		expected models.FileType
	}{
		{"photo.PNG", models.FileTypeImage},
		{"scan.jpeg", models.FileTypeImage},
		{"anim.webp", models.FileTypeImage},
		{"essay.docx", models.FileTypeDocument},
		{"table.xlsx", models.FileTypeDocument},
		{"notes.txt", models.FileTypeDocument},
		{"archive.zip", models.FileTypeOther},
		{"noext", models.FileTypeOther},
	}

	for _, tc := range testCases {
		t.Run(tc.filename, func(t *testing.T) {
			assert.Equal(t, tc.expected, KindOf(tc.filename))
		})
	}
}

func TestNewKey(t *testing.T) {
	a := NewKey("homework", "Lab Report.PDF")
	b := NewKey("homework", "Lab Report.PDF")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "homework/"))
	assert.True(t, strings.HasSuffix(a, "-lab-report.pdf"), a)
}

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	t.Run("put then exists", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "chat/a.txt", []byte("hello")))
		ok, err := s.Exists(ctx, "chat/a.txt")
		require.NoError(t, err)
		assert.True(t, ok)

		content, err := os.ReadFile(filepath.Join(s.root, "chat", "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello", string(content))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "chat/a.txt"))
		require.NoError(t, s.Delete(ctx, "chat/a.txt"))
		ok, err := s.Exists(ctx, "chat/a.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("keys cannot escape the root", func(t *testing.T) {
		assert.Error(t, s.Put(ctx, "../evil.txt", []byte("x")))
		assert.Error(t, s.Put(ctx, "/etc/evil.txt", []byte("x")))
	})
}

type failingStore struct {
	*FSStore
	failOn int
	puts   int
}

func (f *failingStore) Put(ctx context.Context, key string, content []byte) error {
	f.puts++
	if f.puts == f.failOn {
		return errors.New("disk full")
	}
	return f.FSStore.Put(ctx, key, content)
}

func TestStagerRollback(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	store := &failingStore{FSStore: fsStore, failOn: 2}

	stager := NewStager(store)
	first, err := stager.Put(ctx, "homework", models.Upload{Filename: "a.pdf", Content: []byte("a")})
	require.NoError(t, err)

	_, err = stager.Put(ctx, "homework", models.Upload{Filename: "b.pdf", Content: []byte("b")})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.Equal(t, []string{first}, stager.Keys())

	require.NoError(t, stager.Rollback(ctx))
	ok, err := fsStore.Exists(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, stager.Keys())
}

func TestStagerRejectsEmptyName(t *testing.T) {
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = NewStager(fsStore).Put(context.Background(), "chat", models.Upload{Filename: "  "})
	assert.ErrorIs(t, err, models.ErrValidation)
}
