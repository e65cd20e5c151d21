package localmodel

import (
	"strings"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// MemoryStats abstracts system memory introspection behind an
// interface so tests can substitute a fake without touching the real
// host — grounded on
// original_source/utils/ollama_manager.py's psutil.virtual_memory()
// and psutil.process_iter() usage. No Go standard-library package
// exposes free-system-memory or per-process RSS, so this wraps
// github.com/shirou/gopsutil/v4 rather than hand-rolling /proc
// parsing.
type MemoryStats interface {
	// FreeGB returns free system memory in gibibytes.
	FreeGB() (float64, error)
	// PercentUsed returns the percentage of system memory in use.
	PercentUsed() (float64, error)
	// ProcessMemoryGB returns the RSS, in gibibytes, summed across
	// every running process whose name contains nameSubstr.
	ProcessMemoryGB(nameSubstr string) (float64, error)
}

type systemMemoryStats struct{}

// NewSystemMemoryStats returns the real gopsutil-backed MemoryStats.
func NewSystemMemoryStats() MemoryStats {
	return systemMemoryStats{}
}

func (systemMemoryStats) FreeGB() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return float64(v.Available) / (1024 * 1024 * 1024), nil
}

func (systemMemoryStats) PercentUsed() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.UsedPercent, nil
}

func (systemMemoryStats) ProcessMemoryGB(nameSubstr string) (float64, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, err
	}
	var totalBytes float64
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if !strings.Contains(strings.ToLower(name), strings.ToLower(nameSubstr)) {
			continue
		}
		info, err := p.MemoryInfo()
		if err != nil || info == nil {
			continue
		}
		totalBytes += float64(info.RSS)
	}
	return totalBytes / (1024 * 1024 * 1024), nil
}
