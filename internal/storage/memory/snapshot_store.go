// Package memory stores snapshots in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
)

type page struct {
	body    []byte
	modTime time.Time
}

// SnapshotStore keeps pages in a map keyed by entity and offset.
type SnapshotStore struct {
	mu    sync.RWMutex
	pages map[string]map[int]page
	now   func() time.Time
}

// NewSnapshotStore creates an empty in-memory store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		pages: make(map[string]map[int]page),
		now:   time.Now,
	}
}

func key(ref entity.Ref) string {
	return strings.Join(ref.PathSegments(), "/")
}

// Has reports whether a non-empty page exists.
func (s *SnapshotStore) Has(ref entity.Ref, offset int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[key(ref)][offset]
	return ok && len(p.body) > 0, nil
}

// Save stores a copy of body.
func (s *SnapshotStore) Save(ctx context.Context, ref entity.Ref, offset int, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Put(ref, offset, body, s.now())
}

// Put stores a page with an explicit modification time.
func (s *SnapshotStore) Put(ref entity.Ref, offset int, body []byte, modTime time.Time) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(ref)
	if s.pages[k] == nil {
		s.pages[k] = make(map[int]page)
	}
	s.pages[k][offset] = page{body: append([]byte(nil), body...), modTime: modTime}
	return nil
}

// Load returns a copy of the stored page.
func (s *SnapshotStore) Load(ref entity.Ref, offset int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[key(ref)][offset]
	if !ok {
		return nil, fmt.Errorf("snapshot %s offset %d not found", ref, offset)
	}
	return append([]byte(nil), p.body...), nil
}

// ModTime returns the time the page was stored.
func (s *SnapshotStore) ModTime(ref entity.Ref, offset int) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[key(ref)][offset]
	if !ok {
		return time.Time{}, fmt.Errorf("snapshot %s offset %d not found", ref, offset)
	}
	return p.modTime, nil
}

// Offsets lists stored non-empty offsets in ascending order.
func (s *SnapshotStore) Offsets(ref entity.Ref) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for off, p := range s.pages[key(ref)] {
		if len(p.body) > 0 {
			out = append(out, off)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Clear drops every page of ref.
func (s *SnapshotStore) Clear(ref entity.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, key(ref))
	return nil
}
