// Package local implements the filesystem snapshot store.
//
// Pages live at <root>/<kind>/<key...>/<offset>.html. A page that exists and is
// non-empty is treated as fetched; writes go through a temp file and a rename
// so an interrupted save never leaves a partial page behind.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
)

const pageExt = ".html"

// Config captures the parameters for the local snapshot store.
type Config struct {
	// Root is the directory under which the snapshot tree is kept.
	Root string `mapstructure:"root" yaml:"root"`
}

// FilesystemError reports a path that could not be created or written. It
// points at the environment rather than at one entity, so callers abort.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a FilesystemError.
func IsFatal(err error) bool {
	var fsErr *FilesystemError
	return errors.As(err, &fsErr)
}

// SnapshotStore persists page snapshots on the local filesystem.
type SnapshotStore struct {
	root string
}

// New creates the root directory if needed and checks that it is writable.
func New(cfg Config) (*SnapshotStore, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("snapshot root is required")
	}

	info, err := os.Stat(cfg.Root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, &FilesystemError{Op: "stat", Path: cfg.Root, Err: err}
		}
		if mkErr := os.MkdirAll(cfg.Root, 0o750); mkErr != nil {
			return nil, &FilesystemError{Op: "mkdir", Path: cfg.Root, Err: mkErr}
		}
	} else if !info.IsDir() {
		return nil, &FilesystemError{Op: "stat", Path: cfg.Root, Err: errors.New("not a directory")}
	}

	testFile := filepath.Join(cfg.Root, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, &FilesystemError{Op: "write", Path: cfg.Root, Err: err}
	}
	if err := os.Remove(testFile); err != nil {
		return nil, &FilesystemError{Op: "remove", Path: testFile, Err: err}
	}

	return &SnapshotStore{root: filepath.Clean(cfg.Root)}, nil
}

// Root returns the snapshot root directory.
func (s *SnapshotStore) Root() string {
	return s.root
}

func (s *SnapshotStore) dir(ref entity.Ref) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	dir := filepath.Join(append([]string{s.root}, ref.PathSegments()...)...)
	if !strings.HasPrefix(filepath.Clean(dir), s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected for %s", ref)
	}
	return dir, nil
}

func (s *SnapshotStore) path(ref entity.Ref, offset int) (string, error) {
	if offset < 0 {
		return "", fmt.Errorf("negative offset %d", offset)
	}
	dir, err := s.dir(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, strconv.Itoa(offset)+pageExt), nil
}

// Has reports whether a non-empty page is persisted for (ref, offset).
func (s *SnapshotStore) Has(ref entity.Ref, offset int) (bool, error) {
	p, err := s.path(ref, offset)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &FilesystemError{Op: "stat", Path: p, Err: err}
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

// Save writes body atomically. Existing pages are replaced only by a fresh
// crawl, which clears the tree first.
func (s *SnapshotStore) Save(ctx context.Context, ref entity.Ref, offset int, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(body) == 0 {
		return fmt.Errorf("refusing to save empty page for %s offset %d", ref, offset)
	}
	p, err := s.path(ref, offset)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &FilesystemError{Op: "create", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &FilesystemError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &FilesystemError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return &FilesystemError{Op: "rename", Path: p, Err: err}
	}
	return nil
}

// Load returns the stored page. A missing page is not a FilesystemError.
func (s *SnapshotStore) Load(ref entity.Ref, offset int) ([]byte, error) {
	p, err := s.path(ref, offset)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is built from a validated ref under the store root.
	body, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("load %s offset %d: %w", ref, offset, err)
	}
	return body, nil
}

// ModTime returns when the page was written; relative review dates are
// resolved against it.
func (s *SnapshotStore) ModTime(ref entity.Ref, offset int) (time.Time, error) {
	p, err := s.path(ref, offset)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s offset %d: %w", ref, offset, err)
	}
	return info.ModTime(), nil
}

// Offsets lists the persisted offsets for ref in ascending numeric order.
func (s *SnapshotStore) Offsets(ref entity.Ref) ([]int, error) {
	dir, err := s.dir(ref)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &FilesystemError{Op: "readdir", Path: dir, Err: err}
	}
	offsets := make([]int, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, pageExt) {
			continue
		}
		off, err := strconv.Atoi(strings.TrimSuffix(name, pageExt))
		if err != nil || off < 0 {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	return offsets, nil
}

// Clear removes the whole snapshot subtree of ref.
func (s *SnapshotStore) Clear(ref entity.Ref) error {
	dir, err := s.dir(ref)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &FilesystemError{Op: "remove", Path: dir, Err: err}
	}
	return nil
}
