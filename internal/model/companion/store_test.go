package companion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemoryStore(Seed())
	ctx := context.Background()

	_, err := store.Create(ctx, Companion{Name: "Mine", Subject: "maths", Author: "u1"})
	require.NoError(t, err)

	maths, err := store.List(ctx, Filter{Subject: "maths"})
	require.NoError(t, err)
	require.Len(t, maths, 2)
	assert.Equal(t, "Mine", maths[0].Name, "newest first")

	mine, err := store.List(ctx, Filter{Author: "u1"})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	limited, err := store.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStoreFindAndCount(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := store.Create(ctx, Companion{Name: "Verba", Author: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Verba", got.Name)

	n, err := store.CountByAuthor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Create(ctx, Companion{})
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companions.yaml")
	content := `companions:
  - id: atlas
    name: Atlas the Map Maker
    subject: geography
    topic: Plate tectonics
    duration: 20
    createdAt: 2025-02-01T00:00:00Z
  - id: echo
    name: Echo the Historian
    subject: history
    topic: The Silk Road
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	items, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Atlas the Map Maker", items[0].Name)
	assert.Equal(t, 20, items[0].Duration)
	assert.True(t, items[0].CreatedAt.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, items[1].CreatedAt.IsZero())
}

func TestLoadSeedFileRejectsIncompleteEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("companions:\n  - subject: maths\n"), 0o600))

	_, err := LoadSeedFile(path)
	assert.Error(t, err)

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
