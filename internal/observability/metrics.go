package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	settlements   map[string]int64
	totalDuration time.Duration
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests       map[string]int64 `json:"requests"`
	Errors         map[string]int64 `json:"errors"`
	Settlements    map[string]int64 `json:"settlements"`
	AvgLatencyMsec float64          `json:"avg_latency_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		settlements:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.totalDuration += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordSettlement counts settlement outcomes by payment type, source and result.
func (m *Metrics) RecordSettlement(paymentType, source, outcome string) {
	if m == nil {
		return
	}
	key := paymentType + "|" + source + "|" + outcome
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[key]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Requests:    copyCounts(m.requestCount),
		Errors:      copyCounts(m.errorCount),
		Settlements: copyCounts(m.settlements),
	}
	var total int64
	for _, n := range m.requestCount {
		total += n
	}
	if total > 0 {
		snap.AvgLatencyMsec = float64(m.totalDuration.Microseconds()) / float64(total) / 1000
	}
	return snap
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
