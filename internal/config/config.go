package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
)

const (
	DefaultPort = 8080
	DefaultHost = "0.0.0.0"

	// DefaultFileWriteDelay gives editors time to finish writing before the
	// watcher reacts; some editors emit a change event mid-write.
	DefaultFileWriteDelay = 150 * time.Millisecond
	reloadDebounce        = 500 * time.Millisecond
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			PrettyLogs: true,
			LogDir:     "./logs",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Files: FilesConfig{
			EndpointsFile: "endpoints.yaml",
			TokensFile:    "tokens.yaml",
		},
		Health: HealthConfig{
			DefaultCheckInterval: domain.MinCheckInterval,
			CheckTimeout:         2 * time.Second,
		},
		Proxy: ProxyConfig{
			ConnectTimeout:     5 * time.Second,
			BufferedTimeout:    90 * time.Second,
			StreamChunkTimeout: 30 * time.Second,
		},
	}
}

// Load reads config.yaml (if present) and GATEKEEPER_-prefixed environment
// overrides into a Config, then watches the file for changes, invoking
// onConfigChange (debounced) whenever it is edited. It does not load the
// endpoint descriptors or token map; see FileConfigSource for those, which
// watches each of the two files independently.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("GATEKEEPER_CONFIG_FILE"); configFile != "" {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if onConfigChange != nil {
		var mu sync.Mutex
		var lastReload time.Time

		v.WatchConfig()
		v.OnConfigChange(func(_ fsnotify.Event) {
			mu.Lock()
			defer mu.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < reloadDebounce {
				return
			}
			lastReload = now

			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}

	return cfg, nil
}
