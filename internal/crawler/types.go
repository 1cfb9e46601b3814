package crawler

import (
	"net/http"
	"time"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
)

// Response is the result returned by a Transport implementation.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// PlanResult summarises one PlanAndFetch run for an entity.
type PlanResult struct {
	Ref entity.Ref
	// Declared is the item count read from page 0; zero when the marker is missing.
	Declared int
	// NeedsReconcile is set when the declared count could not be read.
	NeedsReconcile bool
	Offsets        []int
	Fetched        int
	Skipped        int
}

// AuditResult compares expected and persisted snapshots for an entity.
type AuditResult struct {
	Ref      entity.Ref
	Declared int
	Expected []int
	Missing  []int
}

// Complete reports whether every expected page is persisted.
func (a AuditResult) Complete() bool {
	return len(a.Missing) == 0
}
