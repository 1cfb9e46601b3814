package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	require.NotNil(t, fetchAttemptsTotal)
	require.NotNil(t, snapshotsTotal)
	require.NotNil(t, entitiesTotal)
	require.NotNil(t, recordsWrittenTotal)
	require.NotNil(t, countCorrectionsTotal)
}

func TestObserveHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(snapshotsTotal.WithLabelValues("saved"))
	ObserveSnapshot("saved")
	ObserveSnapshot("saved")
	require.InDelta(t, before+2, testutil.ToFloat64(snapshotsTotal.WithLabelValues("saved")), 0.0001)

	beforeEntities := testutil.ToFloat64(entitiesTotal.WithLabelValues("crawl", "failed"))
	ObserveEntity("crawl", "failed")
	require.InDelta(t, beforeEntities+1, testutil.ToFloat64(entitiesTotal.WithLabelValues("crawl", "failed")), 0.0001)

	beforeCorrections := testutil.ToFloat64(countCorrectionsTotal)
	ObserveCountCorrection()
	require.InDelta(t, beforeCorrections+1, testutil.ToFloat64(countCorrectionsTotal), 0.0001)

	beforeDiag := testutil.ToFloat64(extractDiagnosticsTotal.WithLabelValues("style-listing"))
	ObserveExtractDiagnostics("style-listing", 0)
	ObserveExtractDiagnostics("style-listing", 3)
	require.InDelta(t, beforeDiag+3, testutil.ToFloat64(extractDiagnosticsTotal.WithLabelValues("style-listing")), 0.0001)

	ObserveThrottleWait(150 * time.Millisecond)
	IncActiveWorkers()
	DecActiveWorkers()
}

func TestWriteTextfile(t *testing.T) {
	ObserveRecord("ratings")

	path := filepath.Join(t.TempDir(), "nested", "metrics.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "crawler_records_written_total"))
}
