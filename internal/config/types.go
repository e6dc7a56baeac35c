package config

// GatewayConfig is the top-level configuration structure for govgate.
type GatewayConfig struct {
	GlobalSettings GlobalSettings      `yaml:"globalSettings"`
	Server         ServerConfig        `yaml:"server"`
	Telemetry      TelemetryConfig     `yaml:"telemetry"`
	Dashboard      DashboardConfig     `yaml:"dashboard"`
	Environments   []EnvironmentConfig `yaml:"environments"`
	Groups         GroupsConfig        `yaml:"groups"`
}

// GlobalSettings holds settings that apply across all subsystems.
type GlobalSettings struct {
	LogLevel string `yaml:"logLevel,omitempty"` // "debug", "info", "warn", "error"
	LogFile  string `yaml:"logFile,omitempty"`  // Optional log file for serve mode
}

const (
	// TransportStdio is the standard I/O transport.
	TransportStdio = "stdio"
	// TransportSSE is the Server-Sent Events transport.
	TransportSSE = "sse"
)

// ServerConfig defines how the gateway MCP server is exposed.
type ServerConfig struct {
	Transport string `yaml:"transport,omitempty"` // "stdio" or "sse" (default: stdio)
	Host      string `yaml:"host,omitempty"`      // Host to bind to for SSE (default: localhost)
	Port      int    `yaml:"port,omitempty"`      // Port for the SSE endpoint (default: 8090)
}

// TelemetryConfig defines where session telemetry is persisted.
type TelemetryConfig struct {
	JournalPath string `yaml:"journalPath,omitempty"` // Append-only event log (default: .govgate/events.jsonl)
	StorePath   string `yaml:"storePath,omitempty"`   // SQLite store, empty disables it entirely
}

// DashboardConfig defines the optional HTTP read surface backed by the
// relational store. Disabled unless a listen address is set.
type DashboardConfig struct {
	Listen string `yaml:"listen,omitempty"` // e.g. "localhost:8091"
}

// EnvironmentConfig describes one platform environment the gateway can
// authenticate against.
type EnvironmentConfig struct {
	Name              string `yaml:"name"`              // Unique environment name, e.g. "production"
	BaseURL           string `yaml:"baseURL"`           // Platform API base URL
	DefaultTenantRoot string `yaml:"defaultTenantRoot"` // Tenant root used when resolution needs a fallback
	Default           bool   `yaml:"default,omitempty"` // Environment selected at startup
}

// GroupsConfig controls which operation groups are visible at startup.
// The core group is always enabled regardless of this list.
type GroupsConfig struct {
	Enabled []string `yaml:"enabled,omitempty"`
}
