// Package local_test tests the local filesystem snapshot store.
package local_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{Root: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingRoot", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "data", "snapshots")
		store, err := local.New(local.Config{Root: root})
		require.NoError(t, err)
		assert.Equal(t, root, store.Root())
		assert.DirExists(t, root)
	})

	t.Run("MissingRoot", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("RootIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

		_, err := local.New(local.Config{Root: file})
		require.Error(t, err)
		assert.True(t, local.IsFatal(err))
	})

	t.Run("RootNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permission bits are not enforced for root")
		}
		root := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(root, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup in the test environment.
			_ = os.Chmod(root, 0o700)
		})

		_, err := local.New(local.Config{Root: root})
		require.Error(t, err)
		assert.True(t, local.IsFatal(err))
	})
}

func TestSnapshotStore_SaveLoadHas(t *testing.T) {
	root := t.TempDir()
	store, err := local.New(local.Config{Root: root})
	require.NoError(t, err)
	ref := entity.NewRef(entity.KindBeer, "345", "1234")
	ctx := context.Background()

	ok, err := store.Has(ref, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, ref, 0, []byte("<html>page 0</html>")))
	require.NoError(t, store.Save(ctx, ref, 25, []byte("<html>page 25</html>")))

	ok, err = store.Has(ref, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(root, "beer", "345", "1234", "0.html"))

	body, err := store.Load(ref, 25)
	require.NoError(t, err)
	assert.Equal(t, "<html>page 25</html>", string(body))

	mod, err := store.ModTime(ref, 0)
	require.NoError(t, err)
	assert.False(t, mod.IsZero())

	entries, err := os.ReadDir(filepath.Join(root, "beer", "345", "1234"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files may be left behind")
}

func TestSnapshotStore_EmptyFileIsNotPresent(t *testing.T) {
	root := t.TempDir()
	store, err := local.New(local.Config{Root: root})
	require.NoError(t, err)
	ref := entity.NewRef(entity.KindStyle, "128")

	dir := filepath.Join(root, "style", "128")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "50.html"), nil, 0o600))

	ok, err := store.Has(ref, 50)
	require.NoError(t, err)
	assert.False(t, ok)

	offsets, err := store.Offsets(ref)
	require.NoError(t, err)
	assert.Empty(t, offsets)

	assert.Error(t, store.Save(context.Background(), ref, 0, nil))
}

func TestSnapshotStore_OffsetsAreNumericallyOrdered(t *testing.T) {
	store, err := local.New(local.Config{Root: t.TempDir()})
	require.NoError(t, err)
	ref := entity.NewRef(entity.KindBeer, "1", "2")
	for _, off := range []int{100, 25, 0, 75, 50} {
		require.NoError(t, store.Save(context.Background(), ref, off, []byte("x")))
	}

	offsets, err := store.Offsets(ref)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 25, 50, 75, 100}, offsets)

	none, err := store.Offsets(entity.NewRef(entity.KindBeer, "9", "9"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSnapshotStore_Clear(t *testing.T) {
	store, err := local.New(local.Config{Root: t.TempDir()})
	require.NoError(t, err)
	ref := entity.NewRef(entity.KindPlace, "US", "CA")
	other := entity.NewRef(entity.KindPlace, "US", "OR")
	require.NoError(t, store.Save(context.Background(), ref, 0, []byte("x")))
	require.NoError(t, store.Save(context.Background(), other, 0, []byte("y")))

	require.NoError(t, store.Clear(ref))

	ok, err := store.Has(ref, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.Has(other, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSnapshotStore_RejectsUnsafeRefs(t *testing.T) {
	store, err := local.New(local.Config{Root: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Has(entity.NewRef(entity.KindBeer, "..", "1"), 0)
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), entity.NewRef(entity.KindBeer, "a/b"), 0, []byte("x")))
	_, err = store.Load(entity.NewRef(entity.KindBeer, "1"), -1)
	assert.Error(t, err)
}

func TestSnapshotStore_LoadMissingIsNotFatal(t *testing.T) {
	store, err := local.New(local.Config{Root: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Load(entity.NewRef(entity.KindBeer, "1", "2"), 0)
	require.Error(t, err)
	assert.False(t, local.IsFatal(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSnapshotStore_SaveHonoursContext(t *testing.T) {
	store, err := local.New(local.Config{Root: t.TempDir()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Save(ctx, entity.NewRef(entity.KindBeer, "1", "2"), 0, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
