package errtaxonomy

import (
	"path/filepath"
	"testing"

	"github.com/itsneelabh/pulse/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_RingBoundedAtMaxSize(t *testing.T) {
	m := NewMonitor(3, nil, nil)
	for i := 0; i < 10; i++ {
		m.Record(NewRecord(core.ErrorSourceRemote, "chat", core.ErrorKindServer, "boom", "try again", core.SeverityError, 500))
	}
	stats := m.Stats()
	assert.Equal(t, 3, stats.TotalErrors)
}

func TestMonitor_AggregatesBySourceKindSeverity(t *testing.T) {
	m := NewMonitor(10, nil, nil)
	m.Record(NewRecord(core.ErrorSourceRemote, "chat", core.ErrorKindRateLimit, "slow down", "retrying", core.SeverityWarning, 429))
	m.Record(NewRecord(core.ErrorSourceLocal, "generate", core.ErrorKindServer, "oops", "failed", core.SeverityError, 500))

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalErrors)
	assert.Equal(t, 1, stats.BySource[core.ErrorSourceRemote])
	assert.Equal(t, 1, stats.BySource[core.ErrorSourceLocal])
	assert.Equal(t, 1, stats.ByKind[core.ErrorKindRateLimit])
	assert.Equal(t, 1, stats.BySeverity[core.SeverityWarning])
}

func TestMonitor_ExportImportRoundTrip(t *testing.T) {
	m := NewMonitor(10, nil, nil)
	m.Record(NewRecord(core.ErrorSourceCache, "get", core.ErrorKindUnknown, "disk full", "cache unavailable", core.SeverityError, 0))

	path := filepath.Join(t.TempDir(), "errors.json")
	require.NoError(t, m.Export(path))

	m2 := NewMonitor(10, nil, nil)
	require.NoError(t, m2.Import(path))
	assert.Equal(t, 1, m2.Stats().TotalErrors)
}

func TestMonitor_RecentErrorsFilterBySeverity(t *testing.T) {
	m := NewMonitor(10, nil, nil)
	m.Record(NewRecord(core.ErrorSourceRemote, "chat", core.ErrorKindServer, "a", "a", core.SeverityError, 500))
	m.Record(NewRecord(core.ErrorSourceRemote, "chat", core.ErrorKindRateLimit, "b", "b", core.SeverityWarning, 429))

	warnings := m.RecentErrors(0, "", core.SeverityWarning, "")
	require.Len(t, warnings, 1)
	assert.Equal(t, core.ErrorKindRateLimit, warnings[0].Kind)
}
