// Package config builds a layered configuration object: environment
// variables override a JSON file, which overrides caller-supplied
// defaults, which override hard-coded fallbacks. The url field is
// derived from its component parts unless url itself is set by any
// layer, in which case the components are parsed back out of it.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/forwardimpact/monorepo-sub001/internal/telemetry"
)

const (
	fallbackProtocol = "grpc"
	fallbackHost     = "0.0.0.0"
	fallbackPort     = 3000
	fallbackPath     = ""

	configFileName = "config.json"
)

// Config is a namespaced, merged configuration dictionary plus a set
// of lazily-resolved secret accessors. It is safe for concurrent use.
type Config struct {
	namespace string
	name      string
	storage   string
	logger    telemetry.Logger

	mu     sync.RWMutex
	values map[string]any

	secretMu    sync.Mutex
	secretCache map[string]string

	watcher     *fsnotify.Watcher
	watchCancel func()
	watchWg     sync.WaitGroup
	onChange    []func(*Config)
}

// Load builds a Config for the given namespace/name pair (used to
// derive the per-option environment variable prefix
// <NAMESPACE>_<NAME>_<K>) from configStorageDir/config.json layered
// over defaults and the hard-coded fallbacks, then applies
// environment overrides and reconciles url against its component
// parts.
func Load(namespace, name, configStorageDir string, defaults map[string]any, logger telemetry.Logger) (*Config, error) {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	c := &Config{
		namespace:   namespace,
		name:        name,
		storage:     configStorageDir,
		logger:      logger,
		secretCache: make(map[string]string),
	}

	merged, err := c.build(defaults)
	if err != nil {
		return nil, err
	}
	c.values = merged
	return c, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.storage, configFileName)
}

// build computes the merged dictionary: fallbacks, then defaults,
// then the JSON file, then environment overrides, then url
// reconciliation. It does not mutate c.values; callers swap it in
// under the lock (used both by Load and by the hot-reload path).
func (c *Config) build(defaults map[string]any) (map[string]any, error) {
	merged := map[string]any{
		"protocol": fallbackProtocol,
		"host":     fallbackHost,
		"port":     fallbackPort,
		"path":     fallbackPath,
	}
	for k, v := range defaults {
		merged[k] = v
	}

	fileValues, err := c.readFile()
	if err != nil {
		return nil, err
	}
	for k, v := range fileValues {
		merged[k] = v
	}

	urlExplicit := false
	if _, ok := merged["url"]; ok {
		urlExplicit = true
	}
	if c.applyEnvOverrides(merged) {
		urlExplicit = true
	}

	if urlExplicit {
		if err := reconcileFromURL(merged); err != nil {
			return nil, err
		}
	} else {
		merged["url"] = deriveURL(merged)
	}

	return merged, nil
}

func (c *Config) readFile() (map[string]any, error) {
	if c.storage == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %q: %w", c.configPath(), err)
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", c.configPath(), err)
	}
	return values, nil
}

// applyEnvOverrides consults <NAMESPACE>_<NAME>_<K> for every key K
// already present in merged, and for url even when it is absent,
// mutating in place. It reports whether url was among the keys
// overridden.
func (c *Config) applyEnvOverrides(merged map[string]any) bool {
	urlOverridden := false
	keys := make([]string, 0, len(merged)+1)
	for k := range merged {
		keys = append(keys, k)
	}
	if _, ok := merged["url"]; !ok {
		keys = append(keys, "url")
	}
	for _, k := range keys {
		envKey := c.envVarFor(k)
		raw, set := os.LookupEnv(envKey)
		if !set {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			merged[k] = parsed
		} else {
			merged[k] = raw
		}
		if k == "url" {
			urlOverridden = true
		}
	}
	return urlOverridden
}

func (c *Config) envVarFor(key string) string {
	return fmt.Sprintf("%s_%s_%s", strings.ToUpper(c.namespace), strings.ToUpper(c.name), strings.ToUpper(key))
}

func deriveURL(values map[string]any) string {
	protocol, _ := values["protocol"].(string)
	host, _ := values["host"].(string)
	path, _ := values["path"].(string)
	return fmt.Sprintf("%s://%s:%s%s", protocol, host, portString(values["port"]), path)
}

func portString(v any) string {
	switch p := v.(type) {
	case int:
		return strconv.Itoa(p)
	case float64:
		return strconv.Itoa(int(p))
	case string:
		return p
	default:
		return fmt.Sprintf("%v", v)
	}
}

// reconcileFromURL parses values["url"] and overwrites
// protocol/host/port/path from it, since an explicitly-set url is the
// authoritative form.
func reconcileFromURL(values map[string]any) error {
	raw, _ := values["url"].(string)
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: parse url %q: %w", raw, err)
	}
	values["protocol"] = u.Scheme
	values["host"] = u.Hostname()
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			values["port"] = n
		} else {
			values["port"] = p
		}
	}
	values["path"] = u.Path
	return nil
}

// Get returns the raw value for key and whether it was present.
func (c *Config) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// String returns the value for key coerced to a string ("" if
// absent).
func (c *Config) String(key string) string {
	v, _ := c.Get(key)
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Int returns the value for key coerced to an int (0 if absent or not
// numeric).
func (c *Config) Int(key string) int {
	v, _ := c.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// Protocol, Host, Port, Path, and URL expose the well-known layered
// options.
func (c *Config) Protocol() string { return c.String("protocol") }
func (c *Config) Host() string     { return c.String("host") }
func (c *Config) Port() int        { return c.Int("port") }
func (c *Config) Path() string     { return c.String("path") }
func (c *Config) URL() string      { return c.String("url") }
