// Package entity defines the identifiers of crawl subjects.
package entity

import (
	"fmt"
	"strings"
)

// Kind names an entity type exposed by the source.
type Kind string

// Supported entity kinds.
const (
	KindStyle   Kind = "style"
	KindPlace   Kind = "place"
	KindBrewery Kind = "brewery"
	KindBeer    Kind = "beer"
)

// Kinds lists every supported kind in crawl order.
func Kinds() []Kind {
	return []Kind{KindPlace, KindStyle, KindBrewery, KindBeer}
}

// ParseKind validates a user supplied kind name.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", raw)
}

// Ref identifies one entity. Keys are assigned by the source and never change
// once observed, e.g. (beer, brewery_id, beer_id) or (place, country, region).
type Ref struct {
	Kind Kind
	Keys []string
}

// NewRef builds a Ref, copying keys so callers cannot mutate it afterwards.
func NewRef(kind Kind, keys ...string) Ref {
	return Ref{Kind: kind, Keys: append([]string(nil), keys...)}
}

// String renders the ref as kind:key1/key2.
func (r Ref) String() string {
	return string(r.Kind) + ":" + strings.Join(r.Keys, "/")
}

// ID returns the last (most specific) key.
func (r Ref) ID() string {
	if len(r.Keys) == 0 {
		return ""
	}
	return r.Keys[len(r.Keys)-1]
}

// Validate rejects refs that cannot be mapped onto a path safely.
func (r Ref) Validate() error {
	if r.Kind == "" {
		return fmt.Errorf("entity kind is required")
	}
	if len(r.Keys) == 0 {
		return fmt.Errorf("entity %s has no keys", r.Kind)
	}
	for _, k := range r.Keys {
		if k == "" || k == "." || k == ".." || strings.ContainsAny(k, `/\`) {
			return fmt.Errorf("entity %s has invalid key %q", r.Kind, k)
		}
	}
	return nil
}

// PathSegments returns the directory segments for the entity's snapshot tree.
func (r Ref) PathSegments() []string {
	out := make([]string, 0, len(r.Keys)+1)
	out = append(out, string(r.Kind))
	return append(out, r.Keys...)
}
