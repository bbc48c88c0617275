package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
)

// endpointDoc mirrors one entry of endpoints.yaml. The file is a top-level
// YAML sequence (matching the original loader's direct serde_yaml::from_str
// ::<Vec<_>> parse), which viper cannot decode - it only unmarshals a
// mapping document - so this is parsed with yaml.v3 directly rather than
// through a viper instance.
type endpointDoc struct {
	Name        string   `yaml:"name"`
	URL         string   `yaml:"url"`
	AccessToken string   `yaml:"access_token"`
	Groups      []string `yaml:"groups"`
	Task        string   `yaml:"task"`
}

// tokensDoc mirrors tokens.yaml: a list of single-entry maps so the file
// can declare groups in a stable, human-editable order.
type tokensDoc struct {
	Groups []map[string][]string `mapstructure:"groups"`
}

// FileConfigSource loads endpoint descriptors and the token map from two
// independently-watched YAML files, so an edit to one never triggers a
// spurious reload of the other: tokens.yaml is a mapping document and goes
// through its own viper instance, while endpoints.yaml is a top-level
// sequence and is parsed and watched directly.
type FileConfigSource struct {
	endpointsPath string
	tokensPath    string

	mu      sync.Mutex
	tokensV *viper.Viper
}

func NewFileConfigSource(endpointsPath, tokensPath string) *FileConfigSource {
	return &FileConfigSource{
		endpointsPath: endpointsPath,
		tokensPath:    tokensPath,
	}
}

// LoadEndpoints parses the endpoint descriptor file and splits it by task.
// An endpoint with a missing task field defaults to "generate"; an
// unrecognised task value is a hard error, matching the upstream loader.
func (s *FileConfigSource) LoadEndpoints(_ context.Context) (map[domain.Task][]domain.Endpoint, error) {
	data, err := os.ReadFile(s.endpointsPath)
	if err != nil {
		return nil, fmt.Errorf("reading endpoints file %s: %w", s.endpointsPath, err)
	}

	var docs []endpointDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decoding endpoints file %s: %w", s.endpointsPath, err)
	}

	out := map[domain.Task][]domain.Endpoint{
		domain.TaskGenerate: nil,
		domain.TaskEmbed:    nil,
	}

	for _, d := range docs {
		task, ok := domain.ParseTask(d.Task)
		if !ok {
			return nil, fmt.Errorf("endpoint %s: invalid task %q (want %q or %q)", d.URL, d.Task, domain.TaskGenerate, domain.TaskEmbed)
		}
		ep := domain.Endpoint{
			Name:        d.Name,
			URL:         d.URL,
			AccessToken: d.AccessToken,
			Groups:      d.Groups,
			Task:        task,
		}
		out[task] = append(out[task], ep)
	}

	return out, nil
}

// LoadTokens parses the token file into group -> token list. Duplicate
// group names across entries are merged (tokens appended, not replaced).
func (s *FileConfigSource) LoadTokens(_ context.Context) (map[string][]string, error) {
	v := viper.New()
	v.SetConfigFile(s.tokensPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading tokens file %s: %w", s.tokensPath, err)
	}

	var doc tokensDoc
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("decoding tokens file %s: %w", s.tokensPath, err)
	}

	merged := make(map[string][]string)
	for _, entry := range doc.Groups {
		for group, tokens := range entry {
			merged[group] = append(merged[group], tokens...)
		}
	}

	s.mu.Lock()
	s.tokensV = v
	s.mu.Unlock()

	return merged, nil
}

// WatchEndpoints watches the endpoints file directly with fsnotify, since it
// is loaded with yaml.v3 rather than viper. WatchTokens reuses the viper
// instance LoadTokens already populated. Both invoke onChange debounced
// 500ms, same as the main config watcher; WatchTokens must be called after
// the first successful LoadTokens.
func (s *FileConfigSource) WatchEndpoints(onChange func()) {
	watchFileDebounced(s.endpointsPath, onChange)
}

func (s *FileConfigSource) WatchTokens(onChange func()) {
	s.mu.Lock()
	v := s.tokensV
	s.mu.Unlock()
	if v == nil {
		return
	}
	watchDebounced(v, onChange)
}

func watchDebounced(v *viper.Viper, onChange func()) {
	debounced := debounce(onChange)
	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) { debounced() })
}

// watchFileDebounced watches path's parent directory (so the watch survives
// an editor's rename-and-replace save) and invokes onChange, debounced,
// whenever path itself is written or recreated. Errors starting the watcher
// are swallowed: hot-reload is a convenience, not a requirement for startup.
func watchFileDebounced(path string, onChange func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	debounced := debounce(onChange)

	go func() {
		defer watcher.Close()
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			eventAbs, err := filepath.Abs(event.Name)
			if err != nil {
				eventAbs = event.Name
			}
			if eventAbs != abs {
				continue
			}
			debounced()
		}
	}()
}

// debounce wraps onChange so repeated triggers within reloadDebounce collapse
// into one call, delayed by DefaultFileWriteDelay to let the writer finish.
func debounce(onChange func()) func() {
	var mu sync.Mutex
	var lastReload time.Time

	return func() {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.Sub(lastReload) < reloadDebounce {
			return
		}
		lastReload = now

		time.Sleep(DefaultFileWriteDelay)
		onChange()
	}
}
