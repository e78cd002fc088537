package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/issues", "GET", 200, 2*time.Millisecond)
	m.RecordRequest("/issues", "GET", 200, 4*time.Millisecond)
	m.RecordError("/issues", "POST", "QUOTA_EXCEEDED")
	m.RecordSettlement("boost", "webhook", "duplicate")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/issues|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/issues|POST|QUOTA_EXCEEDED"])
	assert.Equal(t, int64(1), snap.Settlements["boost|webhook|duplicate"])
	assert.InDelta(t, 3.0, snap.AvgLatencyMsec, 0.001)

	snap.Requests["/issues|GET|200"] = 99
	assert.Equal(t, int64(2), m.Snapshot().Requests["/issues|GET|200"], "snapshot must be a copy")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.RecordError("/x", "GET", "X")
		m.RecordSettlement("boost", "confirm", "applied")
	})
}
