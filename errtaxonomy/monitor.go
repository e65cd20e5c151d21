// Package errtaxonomy implements the Error Taxonomy & Monitor (C8):
// the canonical ErrorKind set lives in package core (to avoid an
// import cycle with every component that needs to classify an error);
// this package owns ErrorRecord construction and the bounded-ring
// Monitor that aggregates them.
package errtaxonomy

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itsneelabh/pulse/core"
)

// DefaultRingSize matches spec.md §3/§4.8's default bounded ring of 1000.
const DefaultRingSize = 1000

// Record is the cross-boundary error shape from spec.md §3. Every
// field is plain data — no embedded error value — satisfying spec.md
// §9 open question (c).
type Record struct {
	ID          string
	Timestamp   time.Time
	Source      core.ErrorSource
	Operation   string
	Kind        core.ErrorKind
	Message     string
	UserMessage string
	Severity    core.Severity
	StatusCode  int
	Context     map[string]interface{}
	Notify      bool
}

// NewRecord builds a Record with a fresh ID and current timestamp,
// grounded on original_source/utils/error_monitoring.py's log_error.
func NewRecord(source core.ErrorSource, operation string, kind core.ErrorKind, message, userMessage string, severity core.Severity, statusCode int) Record {
	return Record{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Source:      source,
		Operation:   operation,
		Kind:        kind,
		Message:     message,
		UserMessage: userMessage,
		Severity:    severity,
		StatusCode:  statusCode,
		Context:     map[string]interface{}{},
	}
}

// Notifier is the out-of-band hook interface named in spec.md §4.8;
// actual transports are out of scope.
type Notifier interface {
	Notify(record Record)
}

// NoOpNotifier is the default Notifier.
type NoOpNotifier struct{}

func (NoOpNotifier) Notify(Record) {}

type frequencyCount struct {
	Key   string
	Count int
}

// Monitor is a bounded in-memory ring of error records with in-place
// aggregation, grounded on original_source/utils/error_monitoring.py's
// module-level _error_store.
type Monitor struct {
	mu       sync.Mutex
	ring     []Record
	maxSize  int
	counts   map[string]int // "source:kind" -> count
	bySource map[core.ErrorSource]int
	byKind   map[core.ErrorKind]int
	bySev    map[core.Severity]int
	hourly   map[string]int
	notifier Notifier
	logger   core.Logger
}

func NewMonitor(maxSize int, notifier Notifier, logger core.Logger) *Monitor {
	if maxSize <= 0 {
		maxSize = DefaultRingSize
	}
	if notifier == nil {
		notifier = NoOpNotifier{}
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Monitor{
		maxSize:  maxSize,
		counts:   make(map[string]int),
		bySource: make(map[core.ErrorSource]int),
		byKind:   make(map[core.ErrorKind]int),
		bySev:    make(map[core.Severity]int),
		hourly:   make(map[string]int),
		notifier: notifier,
		logger:   logger,
	}
}

// Record appends rec to the ring (evicting the oldest on overflow) and
// updates the in-place aggregates.
func (m *Monitor) Record(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ring = append(m.ring, rec)
	if len(m.ring) > m.maxSize {
		m.ring = m.ring[len(m.ring)-m.maxSize:]
	}

	key := string(rec.Source) + ":" + string(rec.Kind)
	m.counts[key]++
	m.bySource[rec.Source]++
	m.byKind[rec.Kind]++
	m.bySev[rec.Severity]++
	m.hourly[rec.Timestamp.Format("2006-01-02T15:00")]++

	switch rec.Severity {
	case core.SeverityCritical:
		m.logger.Error("critical error recorded", map[string]interface{}{"id": rec.ID, "kind": rec.Kind})
	case core.SeverityError:
		m.logger.Error("error recorded", map[string]interface{}{"id": rec.ID, "kind": rec.Kind})
	case core.SeverityWarning:
		m.logger.Warn("warning recorded", map[string]interface{}{"id": rec.ID, "kind": rec.Kind})
	default:
		m.logger.Info("error event recorded", map[string]interface{}{"id": rec.ID, "kind": rec.Kind})
	}

	if rec.Notify {
		m.notifier.Notify(rec)
	}
}

// Stats mirrors get_error_stats() from the Python source.
type Stats struct {
	TotalErrors      int
	BySource         map[core.ErrorSource]int
	ByKind           map[core.ErrorKind]int
	BySeverity       map[core.Severity]int
	MostFrequent     []frequencyCount
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	freq := make([]frequencyCount, 0, len(m.counts))
	for k, v := range m.counts {
		freq = append(freq, frequencyCount{Key: k, Count: v})
	}
	sort.Slice(freq, func(i, j int) bool { return freq[i].Count > freq[j].Count })
	if len(freq) > 10 {
		freq = freq[:10]
	}

	return Stats{
		TotalErrors:  len(m.ring),
		BySource:     copySourceMap(m.bySource),
		ByKind:       copyKindMap(m.byKind),
		BySeverity:   copySevMap(m.bySev),
		MostFrequent: freq,
	}
}

func copySourceMap(m map[core.ErrorSource]int) map[core.ErrorSource]int {
	out := make(map[core.ErrorSource]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyKindMap(m map[core.ErrorKind]int) map[core.ErrorKind]int {
	out := make(map[core.ErrorKind]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySevMap(m map[core.Severity]int) map[core.Severity]int {
	out := make(map[core.Severity]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Trend is the result of AnalyzeTrends, grounded on
// analyze_error_trends() — compares the first and second half of the
// per-hour histogram.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

func (m *Monitor) AnalyzeTrends() Trend {
	m.mu.Lock()
	defer m.mu.Unlock()

	hours := make([]string, 0, len(m.hourly))
	for h := range m.hourly {
		hours = append(hours, h)
	}
	sort.Strings(hours)

	if len(hours) < 2 {
		return TrendStable
	}

	mid := len(hours) / 2
	firstHalf, secondHalf := hours[:mid], hours[mid:]

	var firstSum, secondSum int
	for _, h := range firstHalf {
		firstSum += m.hourly[h]
	}
	for _, h := range secondHalf {
		secondSum += m.hourly[h]
	}
	firstAvg := float64(firstSum) / float64(len(firstHalf))
	secondAvg := float64(secondSum) / float64(len(secondHalf))

	switch {
	case secondAvg > firstAvg*1.2:
		return TrendIncreasing
	case secondAvg < firstAvg*0.8:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// RecentErrors returns up to limit records, newest first, optionally
// filtered by source/severity/kind (all optional, empty = no filter).
func (m *Monitor) RecentErrors(limit int, source core.ErrorSource, severity core.Severity, kind core.ErrorKind) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	filtered := make([]Record, 0, len(m.ring))
	for i := len(m.ring) - 1; i >= 0; i-- {
		rec := m.ring[i]
		if source != "" && rec.Source != source {
			continue
		}
		if severity != "" && rec.Severity != severity {
			continue
		}
		if kind != "" && rec.Kind != kind {
			continue
		}
		filtered = append(filtered, rec)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	return filtered
}

// Export writes the ring to path as JSON, for post-mortem analysis.
func (m *Monitor) Export(path string) error {
	m.mu.Lock()
	data, err := json.MarshalIndent(m.ring, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Import loads records from path, replacing the current ring.
func (m *Monitor) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	m.mu.Lock()
	m.ring = nil
	m.counts = make(map[string]int)
	m.bySource = make(map[core.ErrorSource]int)
	m.byKind = make(map[core.ErrorKind]int)
	m.bySev = make(map[core.Severity]int)
	m.hourly = make(map[string]int)
	m.mu.Unlock()

	for _, rec := range records {
		m.Record(rec)
	}
	return nil
}
