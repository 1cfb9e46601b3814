// Package uuid mints and checks run ids.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// NewRunID returns a UUID v7 string. Version 7 ids sort by creation time, so
// archive prefixes named after run ids list in run order. A failing v7 source
// degrades to a random v4 id.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ResolveRunID returns raw in canonical form, or a fresh id when raw is empty.
// Reusing an id lets a resumed run archive under the same prefix.
func ResolveRunID(raw string) (string, error) {
	if raw == "" {
		return NewRunID(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("run id %q: %w", raw, err)
	}
	return id.String(), nil
}
