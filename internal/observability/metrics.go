package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	operations   map[string]int64
	events       map[string]int64
	escalated    int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests   map[string]int64 `json:"requests"`
	Errors     map[string]int64 `json:"errors"`
	Operations map[string]int64 `json:"operations"`
	Events     map[string]int64 `json:"events"`
	Escalated  int64            `json:"escalated"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		operations:   make(map[string]int64),
		events:       make(map[string]int64),
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

// RecordOperation counts lifecycle operations by outcome.
func (m *Metrics) RecordOperation(name, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[name+"|"+outcome]++
}

// RecordEscalations adds n escalated tickets.
func (m *Metrics) RecordEscalations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalated += int64(n)
}

// RecordEvent counts published domain events.
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventType]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:   copyCounts(m.requestCount),
		Errors:     copyCounts(m.errorCount),
		Operations: copyCounts(m.operations),
		Events:     copyCounts(m.events),
		Escalated:  m.escalated,
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
