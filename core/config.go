package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel"
)

// Config holds the routing core's configuration. Layered priority, the
// teacher's NewConfig layering plus a file layer: defaults, then an
// optional pulse.toml file, then environment variables, then
// functional options.
type Config struct {
	// RemoteAPIKey is the bearer token for the aggregator (spec.md §6: REMOTE_API_KEY).
	RemoteAPIKey string
	// RemoteBaseURL is the aggregator's base URL.
	RemoteBaseURL string
	// Simulate forces the deterministic simulated path in Execution Flow (spec.md §6: SIMULATE=1).
	Simulate bool
	// OfflineMode boots with offline mode on (spec.md §6: OFFLINE_MODE=1).
	OfflineMode bool

	// CacheDBPath is the single local database file path for the Response Cache (C1).
	CacheDBPath string
	// CacheDefaultTTL is the default per-entry TTL, fixed at 3600s (spec.md §9 open question (a)).
	CacheDefaultTTL time.Duration

	// OllamaBaseURL is the local model server's base URL.
	OllamaBaseURL string
	// KeywordsPath holds PULSE_KEYWORDS_PATH (or pulse.toml's keywords_path);
	// no component in this module reads it.
	KeywordsPath string
	// RoutingTablePath optionally overrides the routing table's static YAML file.
	RoutingTablePath string

	// ObservabilityEnabled wires an OTel-backed Telemetry/MetricsRegistry
	// instead of the no-op defaults (spec.md ambient stack: optional,
	// off unless PULSE_OBSERVABILITY=1 or WithObservability(true)).
	ObservabilityEnabled bool

	Logging     LoggingConfig
	Development DevelopmentConfig

	logger    Logger
	telemetry Telemetry
}

type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "text"
	Output string // "stdout" or "stderr"
}

type DevelopmentConfig struct {
	DebugLogging bool
}

// Option configures a Config; applied after environment defaults.
type Option func(*Config) error

func WithRemoteAPIKey(key string) Option {
	return func(c *Config) error { c.RemoteAPIKey = key; return nil }
}

func WithRemoteBaseURL(url string) Option {
	return func(c *Config) error { c.RemoteBaseURL = url; return nil }
}

func WithSimulate(enabled bool) Option {
	return func(c *Config) error { c.Simulate = enabled; return nil }
}

func WithOfflineMode(enabled bool) Option {
	return func(c *Config) error { c.OfflineMode = enabled; return nil }
}

func WithCacheDBPath(path string) Option {
	return func(c *Config) error { c.CacheDBPath = path; return nil }
}

func WithCacheDefaultTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: cache ttl must be positive", ErrConfigurationInvalid)
		}
		c.CacheDefaultTTL = ttl
		return nil
	}
}

func WithOllamaBaseURL(url string) Option {
	return func(c *Config) error { c.OllamaBaseURL = url; return nil }
}

func WithKeywordsPath(path string) Option {
	return func(c *Config) error { c.KeywordsPath = path; return nil }
}

func WithRoutingTablePath(path string) Option {
	return func(c *Config) error { c.RoutingTablePath = path; return nil }
}

func WithLogger(logger Logger) Option {
	return func(c *Config) error { c.logger = logger; return nil }
}

func WithLogFormat(format string) Option {
	return func(c *Config) error { c.Logging.Format = format; return nil }
}

func WithObservability(enabled bool) Option {
	return func(c *Config) error { c.ObservabilityEnabled = enabled; return nil }
}

// NewConfig loads defaults, overlays an optional pulse.toml file (path
// from PULSE_CONFIG_FILE, default "pulse.toml" if present), then
// environment variables recognized by spec.md §6, then applies
// functional options, then validates.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		RemoteBaseURL:    "https://openrouter.ai/api/v1",
		CacheDBPath:      "pulse_cache.db",
		CacheDefaultTTL:  3600 * time.Second,
		OllamaBaseURL:    firstNonEmpty(os.Getenv("PULSE_OLLAMA_BASE_URL"), "http://localhost:11434"),
		KeywordsPath:     os.Getenv("PULSE_KEYWORDS_PATH"),
		RoutingTablePath: os.Getenv("PULSE_ROUTING_TABLE_PATH"),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}

	if err := loadTOMLFile(cfg, tomlConfigPath()); err != nil {
		return nil, fmt.Errorf("pulse: load config file: %w", err)
	}

	cfg.RemoteAPIKey = os.Getenv("REMOTE_API_KEY")
	cfg.Simulate = os.Getenv("SIMULATE") == "1"
	cfg.OfflineMode = os.Getenv("OFFLINE_MODE") == "1"
	cfg.ObservabilityEnabled = cfg.ObservabilityEnabled || os.Getenv("PULSE_OBSERVABILITY") == "1"
	if v := os.Getenv("PULSE_CACHE_DB_PATH"); v != "" {
		cfg.CacheDBPath = v
	}
	if v := os.Getenv("PULSE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("pulse: apply config option: %w", err)
		}
	}

	if cfg.logger == nil {
		cfg.logger = NewProductionLogger(cfg.Logging, cfg.Development, "pulse")
	}
	if cfg.telemetry == nil {
		if cfg.ObservabilityEnabled {
			otel.SetTracerProvider(NewLocalTracerProvider())
			cfg.telemetry = NewOTelTelemetry("pulse")
			SetMetricsRegistry(NewOTelMetricsRegistry("pulse"))
		} else {
			cfg.telemetry = &NoOpTelemetry{}
		}
	}

	return cfg, nil
}

// Logger returns the component-aware root logger.
func (c *Config) Logger() ComponentAwareLogger {
	if cal, ok := c.logger.(ComponentAwareLogger); ok {
		return cal
	}
	return &componentLogger{Logger: c.logger, component: ""}
}

// Telemetry returns the configured span/metric recorder, a no-op
// unless ObservabilityEnabled (or PULSE_OBSERVABILITY=1) turned on
// the OTel-backed implementation.
func (c *Config) Telemetry() Telemetry {
	return c.telemetry
}

// tomlFileConfig mirrors the subset of Config an operator may set in
// pulse.toml; fields left unset keep NewConfig's defaults.
type tomlFileConfig struct {
	RemoteBaseURL        string `toml:"remote_base_url"`
	CacheDBPath          string `toml:"cache_db_path"`
	OllamaBaseURL        string `toml:"ollama_base_url"`
	RoutingTablePath     string `toml:"routing_table_path"`
	KeywordsPath         string `toml:"keywords_path"`
	ObservabilityEnabled bool   `toml:"observability_enabled"`
	LogFormat            string `toml:"log_format"`
	LogLevel             string `toml:"log_level"`
}

func tomlConfigPath() string {
	return firstNonEmpty(os.Getenv("PULSE_CONFIG_FILE"), "pulse.toml")
}

// loadTOMLFile overlays an optional pulse.toml file onto cfg. A
// missing file is not an error — the file is entirely optional, same
// as the teacher's env-first configuration layering.
func loadTOMLFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	var file tomlFileConfig
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return err
	}
	if file.RemoteBaseURL != "" {
		cfg.RemoteBaseURL = file.RemoteBaseURL
	}
	if file.CacheDBPath != "" {
		cfg.CacheDBPath = file.CacheDBPath
	}
	if file.OllamaBaseURL != "" {
		cfg.OllamaBaseURL = file.OllamaBaseURL
	}
	if file.RoutingTablePath != "" {
		cfg.RoutingTablePath = file.RoutingTablePath
	}
	if file.KeywordsPath != "" {
		cfg.KeywordsPath = file.KeywordsPath
	}
	if file.LogFormat != "" {
		cfg.Logging.Format = file.LogFormat
	}
	if file.LogLevel != "" {
		cfg.Logging.Level = file.LogLevel
	}
	cfg.ObservabilityEnabled = file.ObservabilityEnabled
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ============================================================================
// ProductionLogger — adapted from the teacher's layered-observability logger.
// ============================================================================

type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer
}

func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) ComponentAwareLogger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || logging.Level == "debug",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
	}
}

func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)
	component := p.component
	if component == "" {
		component = p.serviceName
	}

	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter("pulse.log.events", "level", level, "component", component)
	}

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": component,
			"message":   msg,
		}
		for k, v := range fields {
			logEntry[k] = v
		}
		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var fieldStr strings.Builder
	if len(fields) > 0 {
		fieldStr.WriteString(" ")
		for k, v := range fields {
			fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
		}
	}
	fmt.Fprintf(p.output, "%s [%s] [%s] %s%s\n",
		timestamp, level, component, msg, fieldStr.String())
}

// componentLogger adapts a plain Logger to ComponentAwareLogger when the
// configured logger did not already implement it.
type componentLogger struct {
	Logger
	component string
}

func (c *componentLogger) WithComponent(component string) Logger {
	return &componentLogger{Logger: c.Logger, component: component}
}
