package config

import "time"

// Config holds the gatekeeper's own runtime configuration — everything
// except the endpoint descriptors and token map, which live in their own
// hot-reloadable files (see FileConfigSource).
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Files   FilesConfig   `yaml:"files"`
	Health  HealthConfig  `yaml:"health"`
	Proxy   ProxyConfig   `yaml:"proxy"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Theme      string `yaml:"theme"`
	PrettyLogs bool   `yaml:"pretty_logs"`
	FileOutput bool   `yaml:"file_output"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// FilesConfig points at the two hot-reloadable YAML documents.
type FilesConfig struct {
	EndpointsFile string `yaml:"endpoints_file"`
	TokensFile    string `yaml:"tokens_file"`
}

// HealthConfig holds monitor settings. CheckTimeout bounds each upstream
// probe call. Every monitor starts from domain.MinCheckInterval;
// DefaultCheckInterval is not read by the monitor.
type HealthConfig struct {
	DefaultCheckInterval time.Duration `yaml:"default_check_interval"`
	CheckTimeout         time.Duration `yaml:"check_timeout"`
}

// ProxyConfig holds dispatcher timeout settings. The dispatcher is built
// with its own constants of the same default values; these fields are not
// passed to it.
type ProxyConfig struct {
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	BufferedTimeout   time.Duration `yaml:"buffered_timeout"`
	StreamChunkTimeout time.Duration `yaml:"stream_chunk_timeout"`
}
