package sha256

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestHashReader(t *testing.T) {
	t.Parallel()

	digest, n, err := New().HashReader(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, helloDigest, digest)
	require.Equal(t, int64(11), n)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestHashReaderFailure(t *testing.T) {
	t.Parallel()

	_, _, err := New().HashReader(failingReader{})
	require.EqualError(t, err, "disk gone")
}

func TestHashFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ratings.txt.gz")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))

	digest, size, err := New().HashFile(path)
	require.NoError(t, err)
	require.Equal(t, helloDigest, digest)
	require.Equal(t, int64(11), size)

	_, _, err = New().HashFile(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
