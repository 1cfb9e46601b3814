// Package archive uploads the produced streams and catalogs with a checksum
// manifest.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
)

// Uploader stores one object and returns its URI.
type Uploader interface {
	PutObject(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// FileHasher digests a file on disk.
type FileHasher interface {
	HashFile(path string) (string, int64, error)
}

// ManifestName is the object listing the digests of a run's uploads.
const ManifestName = "MANIFEST.sha256"

// Entry describes one uploaded file.
type Entry struct {
	Name   string
	URI    string
	Digest string
	Size   int64
}

// Archiver uploads files under a per-run prefix.
type Archiver struct {
	uploader Uploader
	hasher   FileHasher
	logger   *zap.Logger
}

// New builds an Archiver.
func New(uploader Uploader, hasher FileHasher, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{uploader: uploader, hasher: hasher, logger: logger}
}

// Upload sends every existing file in paths to <runID>/<basename>, then a
// manifest of their digests. Missing files are skipped.
func (a *Archiver) Upload(ctx context.Context, runID string, paths []string) ([]Entry, error) {
	var entries []Entry
	var manifest bytes.Buffer
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		digest, size, err := a.hasher.HashFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				a.logger.Info("archive input missing, skipped", zap.String("path", p))
				continue
			}
			return entries, err
		}
		entry, err := a.put(ctx, runID, p)
		if err != nil {
			return entries, err
		}
		entry.Digest, entry.Size = digest, size
		entries = append(entries, entry)
		fmt.Fprintf(&manifest, "%s  %s\n", digest, entry.Name)
		a.logger.Info("archived", zap.String("uri", entry.URI), zap.Int64("bytes", size))
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("nothing to archive")
	}
	if _, err := a.uploader.PutObject(ctx, path.Join(runID, ManifestName), "text/plain", &manifest); err != nil {
		return entries, fmt.Errorf("upload manifest: %w", err)
	}
	return entries, nil
}

func (a *Archiver) put(ctx context.Context, runID, p string) (Entry, error) {
	// #nosec G304 -- archive inputs live under the configured data root.
	f, err := os.Open(p)
	if err != nil {
		return Entry{}, fmt.Errorf("open %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	name := filepath.Base(p)
	uri, err := a.uploader.PutObject(ctx, path.Join(runID, name), contentType(name), f)
	if err != nil {
		return Entry{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return Entry{Name: name, URI: uri}, nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".gz":
		return "application/gzip"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
