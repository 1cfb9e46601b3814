package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/beer-ratings-crawler/internal/hash/sha256"
)

type memUploader struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	failOn  string
}

func newMemUploader() *memUploader {
	return &memUploader{objects: map[string]string{}, types: map[string]string{}}
}

func (m *memUploader) PutObject(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	if name == m.failOn {
		return "", errors.New("denied")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = string(b)
	m.types[name] = contentType
	return "mem://" + name, nil
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestUploadWritesManifest(t *testing.T) {
	t.Parallel()

	// Arrange
	dir := t.TempDir()
	ratings := writeFile(t, dir, "ratings.txt.gz", "hello world")
	beers := writeFile(t, dir, "beers.csv", "brewery_id,beer_id\n")
	up := newMemUploader()
	a := New(up, sha256.New(), nil)

	// Act
	entries, err := a.Upload(context.Background(), "run-1", []string{ratings, filepath.Join(dir, "users.csv"), beers})

	// Assert
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "mem://run-1/ratings.txt.gz", entries[0].URI)
	assert.Equal(t, int64(11), entries[0].Size)
	assert.Equal(t, "application/gzip", up.types["run-1/ratings.txt.gz"])
	assert.Equal(t, "text/csv", up.types["run-1/beers.csv"])

	manifest := up.objects["run-1/"+ManifestName]
	lines := strings.Split(strings.TrimSpace(manifest), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9  ratings.txt.gz", lines[0])
}

func TestUploadNothing(t *testing.T) {
	t.Parallel()

	a := New(newMemUploader(), sha256.New(), nil)
	_, err := a.Upload(context.Background(), "run", []string{filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

func TestUploadFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	up := newMemUploader()
	up.failOn = "run/beers.csv"
	a := New(up, sha256.New(), nil)

	_, err := a.Upload(context.Background(), "run", []string{writeFile(t, dir, "beers.csv", "x")})
	require.ErrorContains(t, err, "upload beers.csv")
}
