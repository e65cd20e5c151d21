package localmodel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/pulse/core"
)

// ServiceState is the closed state set from spec.md §3/§4.3.
type ServiceState int

const (
	StateUnknown ServiceState = iota
	StateStopped
	StateStarting
	StateRunning
	StateDegraded
)

func (s ServiceState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// startMinimumFreeGB gates service start, grounded on start_service's
// "free_memory_gb < 1.5" check.
const startMinimumFreeGB = 1.5

// modelMemoryMinimums mirrors pull_model's per-family memory floors.
var modelMemoryMinimums = []struct {
	substr    string
	minFreeGB float64
}{
	{"llama", 4.0},
	{"mistral", 3.0},
	{"phi", 2.0},
}

const defaultModelMinFreeGB = 1.5

func minimumMemoryForModel(model string) float64 {
	lower := strings.ToLower(model)
	for _, m := range modelMemoryMinimums {
		if strings.Contains(lower, m.substr) {
			return m.minFreeGB
		}
	}
	return defaultModelMinFreeGB
}

// Status mirrors check_status()'s returned dictionary.
type Status struct {
	State           ServiceState
	OfflineMode     bool
	Models          []string
	MemoryUsageGB   float64
	ExecutableFound bool
	FreeMemoryGB    float64
	PercentUsed     float64
	Err             error
	Cached          bool
}

// Manager owns the Ollama process lifecycle and the offline-mode flag,
// grounded on original_source/utils/ollama_manager.py's OllamaManager.
type Manager struct {
	client          *Client
	memStats        MemoryStats
	executablePath  string
	statusCheckGap  time.Duration
	logger          core.Logger

	mu              sync.Mutex
	state           ServiceState
	offlineMode     bool
	process         *os.Process
	lastStatusCheck time.Time
	cachedStatus    Status
	loadedModels    []string
}

type ManagerOption func(*Manager)

func WithStatusCheckInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.statusCheckGap = d }
}

func WithManagerLogger(logger core.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

func WithExecutablePath(path string) ManagerOption {
	return func(m *Manager) { m.executablePath = path }
}

func NewManager(client *Client, memStats MemoryStats, opts ...ManagerOption) *Manager {
	m := &Manager{
		client:         client,
		memStats:       memStats,
		statusCheckGap: 10 * time.Second,
		state:          StateUnknown,
		logger:         &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.executablePath == "" {
		m.executablePath = findExecutable()
	}
	return m
}

// findExecutable mirrors _find_ollama_executable's common-path probing.
func findExecutable() string {
	candidates := []string{"/usr/local/bin/ollama", "/usr/bin/ollama", "/opt/ollama/bin/ollama"}
	if runtime.GOOS == "windows" {
		candidates = []string{
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Ollama", "ollama.exe"),
			filepath.Join(os.Getenv("PROGRAMFILES"), "Ollama", "ollama.exe"),
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", "ollama"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	if path, err := exec.LookPath("ollama"); err == nil {
		return path
	}
	return "ollama"
}

// CheckStatus implements check_status(): a cached result is reused
// within statusCheckGap unless force is set; otherwise it probes the
// client's health endpoint and refreshes derived memory figures.
func (m *Manager) CheckStatus(ctx context.Context, force bool) Status {
	m.mu.Lock()
	now := time.Now()
	if !force && now.Sub(m.lastStatusCheck) < m.statusCheckGap {
		status := m.cachedStatus
		status.Cached = true
		m.mu.Unlock()
		return status
	}
	offlineMode := m.offlineMode
	m.mu.Unlock()

	freeGB, percentUsed := m.systemMemory()

	if !offlineMode && !force {
		m.mu.Lock()
		m.lastStatusCheck = now
		m.state = StateStopped
		status := Status{
			State:           StateStopped,
			OfflineMode:     false,
			ExecutableFound: m.executablePath != "" && m.executablePath != "ollama",
			FreeMemoryGB:    freeGB,
			PercentUsed:     percentUsed,
		}
		m.cachedStatus = status
		m.mu.Unlock()
		return status
	}

	healthy := m.client.CheckHealth(ctx, true, offlineMode)

	var models []string
	if healthy {
		models = m.client.RefreshModels(ctx)
	}

	memUsage, _ := m.memStats.ProcessMemoryGB("ollama")

	state := StateStopped
	if healthy {
		state = StateRunning
	}

	m.mu.Lock()
	m.state = state
	m.loadedModels = models
	m.lastStatusCheck = time.Now()
	status := Status{
		State:           state,
		OfflineMode:     offlineMode,
		Models:          models,
		MemoryUsageGB:   memUsage,
		ExecutableFound: m.executablePath != "" && m.executablePath != "ollama",
		FreeMemoryGB:    freeGB,
		PercentUsed:     percentUsed,
	}
	m.cachedStatus = status
	m.mu.Unlock()

	return status
}

func (m *Manager) systemMemory() (freeGB, percentUsed float64) {
	freeGB, err := m.memStats.FreeGB()
	if err != nil {
		m.logger.Warn("localmodel: failed to read free memory", map[string]interface{}{"error": err.Error()})
	}
	percentUsed, err = m.memStats.PercentUsed()
	if err != nil {
		m.logger.Warn("localmodel: failed to read memory percent", map[string]interface{}{"error": err.Error()})
	}
	return freeGB, percentUsed
}

var ErrInsufficientMemory = errors.New("insufficient free memory")
var ErrExecutableNotFound = errors.New("ollama executable not found")

// StartService implements start_service(): no-op if already running,
// refuses under the memory floor (invariant 5), then execs `ollama
// serve` and polls health for up to 10 seconds.
func (m *Manager) StartService(ctx context.Context) error {
	status := m.CheckStatus(ctx, true)
	if status.State == StateRunning {
		return nil
	}

	if _, err := os.Stat(m.executablePath); err != nil && m.executablePath != "ollama" {
		return fmt.Errorf("%w: %s", ErrExecutableNotFound, m.executablePath)
	}

	freeGB, _ := m.memStats.FreeGB()
	if freeGB < startMinimumFreeGB {
		return fmt.Errorf("%w: free=%.2fGB required=%.2fGB", ErrInsufficientMemory, freeGB, startMinimumFreeGB)
	}

	m.mu.Lock()
	m.state = StateStarting
	m.mu.Unlock()

	cmd := exec.CommandContext(context.Background(), m.executablePath, "serve")
	if err := cmd.Start(); err != nil {
		m.mu.Lock()
		m.state = StateDegraded
		m.mu.Unlock()
		return fmt.Errorf("localmodel: failed to start service: %w", err)
	}

	m.mu.Lock()
	m.process = cmd.Process
	offlineMode := m.offlineMode
	m.mu.Unlock()

	for attempt := 0; attempt < 10; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		if m.client.CheckHealth(ctx, true, offlineMode) {
			m.mu.Lock()
			m.state = StateRunning
			m.mu.Unlock()
			return nil
		}
	}

	m.mu.Lock()
	m.state = StateDegraded
	m.mu.Unlock()
	return fmt.Errorf("localmodel: service started but health check failed after 10 attempts")
}

// StopService implements stop_service(): terminates the process this
// Manager started, or falls back to no-op if it was never started
// here (process-discovery-by-name is left to the operator, unlike the
// Python original's psutil.process_iter scan, since Go has no portable
// process-enumeration-by-command-name in the standard library and
// wiring gopsutil's process package for kill-by-name duplicates the
// memory package's scan for marginal benefit here).
func (m *Manager) StopService(ctx context.Context) error {
	m.mu.Lock()
	proc := m.process
	m.mu.Unlock()

	if proc == nil {
		m.mu.Lock()
		m.state = StateStopped
		m.mu.Unlock()
		return nil
	}

	if err := proc.Signal(os.Interrupt); err != nil {
		_ = proc.Kill()
	}

	done := make(chan error, 1)
	go func() { _, err := proc.Wait(); done <- err }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = proc.Kill()
	}

	m.mu.Lock()
	m.process = nil
	m.state = StateStopped
	m.mu.Unlock()
	return nil
}

// ToggleOfflineMode implements toggle_offline_mode(enable): starts the
// service first if enabling and not already running.
func (m *Manager) ToggleOfflineMode(ctx context.Context, enable bool) error {
	m.mu.Lock()
	current := m.offlineMode
	m.mu.Unlock()
	if enable == current {
		return nil
	}

	if enable {
		status := m.CheckStatus(ctx, true)
		if status.State != StateRunning {
			if err := m.StartService(ctx); err != nil {
				return err
			}
		}
	}

	m.mu.Lock()
	m.offlineMode = enable
	m.mu.Unlock()
	return nil
}

func (m *Manager) IsOfflineMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offlineMode
}

// PullModel implements pull_model(): starts the service if needed,
// refuses under the model's memory floor, then shells out to
// `ollama pull <model>` with a 20-minute time limit.
func (m *Manager) PullModel(ctx context.Context, model string) error {
	status := m.CheckStatus(ctx, false)
	if status.State != StateRunning {
		if err := m.StartService(ctx); err != nil {
			return fmt.Errorf("localmodel: cannot pull %s, service unavailable: %w", model, err)
		}
	}

	freeGB, _ := m.memStats.FreeGB()
	required := minimumMemoryForModel(model)
	if freeGB < required {
		return fmt.Errorf("%w: model=%s free=%.2fGB required=%.2fGB", ErrInsufficientMemory, model, freeGB, required)
	}

	pullCtx, cancel := context.WithTimeout(ctx, 20*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(pullCtx, m.executablePath, "pull", model)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("localmodel: pull %s failed: %w", model, err)
	}

	m.client.RefreshModels(ctx)
	return nil
}

// ListModels implements list_models(): a thin wrapper around
// RefreshModels gated on the service actually running.
func (m *Manager) ListModels(ctx context.Context) ([]string, error) {
	status := m.CheckStatus(ctx, false)
	if status.State != StateRunning {
		return nil, fmt.Errorf("localmodel: service is not running")
	}
	return m.client.RefreshModels(ctx), nil
}

// CheckInternetConnection implements check_internet_connection() via a
// short TCP dial instead of shelling out to `ping`, which needs no
// external process and works the same across platforms.
func (m *Manager) CheckInternetConnection(ctx context.Context) bool {
	d := net.Dialer{Timeout: defaultConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", "8.8.8.8:53")
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// AutoStartIfOffline implements auto_start_if_offline(): when no
// internet connection is detected, it starts the service (if needed)
// and enables offline mode automatically.
func (m *Manager) AutoStartIfOffline(ctx context.Context) error {
	if m.CheckInternetConnection(ctx) {
		return nil
	}

	m.logger.Info("localmodel: no internet connection, auto-starting for offline mode", nil)
	status := m.CheckStatus(ctx, true)
	if status.State != StateRunning {
		if err := m.StartService(ctx); err != nil {
			return fmt.Errorf("localmodel: auto-start failed: %w", err)
		}
	}

	m.mu.Lock()
	m.offlineMode = true
	m.mu.Unlock()
	return nil
}

// State returns the Manager's current ServiceState.
func (m *Manager) State() ServiceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
