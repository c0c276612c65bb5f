package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/dvlstreams/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "DVL"

// durationFields lists, per section, the keys holding durations. In files they
// may be strings ("1s", "500ms") or plain numbers of seconds.
var durationFields = map[string][]string{
	"sensor":  {"read_timeout", "reconnect_interval"},
	"nats":    {"reconnect_wait"},
	"shadow":  {"ttl"},
	"metrics": {"stale_after"},
}

// Loader builds a Config from defaults, file layers and the environment.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader with validation enabled
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment prefix (default DVL).
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer in order, then environment overrides,
// and validates the result.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		layer, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: %s: %w", errors.ErrInvalidConfig, path, err), "Loader", "Load", "read layer")
		}
		merged = deepMergeMaps(merged, layer)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode merged config")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "Loader", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadRaw reads one layer as a generic map with durations converted to
// nanoseconds.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		normalized, ok := normalize(raw).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("yaml document is not a mapping")
		}
		raw = normalized
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// normalize turns yaml's map[any]any into map[string]any so the tree can go
// through encoding/json.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalize(inner)
		}
		return out
	case []any:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	default:
		return v
	}
}

func parseDurations(raw map[string]any) error {
	for section, keys := range durationFields {
		m, ok := raw[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			v, present := m[key]
			if !present || v == nil {
				continue
			}
			d, err := toDuration(v)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", section, key, err)
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}

func toDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		return time.ParseDuration(t)
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case int:
		return time.Duration(t) * time.Second, nil
	case int64:
		return time.Duration(t) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v", v)
	}
}

func toMap(cfg Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMergeMaps merges override into base. Nested maps merge key by key,
// anything else in override replaces the base value. Nil values are skipped.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func (l *Loader) env(name string) (string, bool, error) {
	key := l.envPrefix + "_" + name
	val, ok := l.lookupEnv(key)
	if !ok || val == "" {
		return "", false, nil
	}
	if err := validateEnvVar(key, val); err != nil {
		return "", false, errors.WrapFatal(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "Loader", "applyEnvOverrides", key)
	}
	return val, true, nil
}

// applyEnvOverrides applies <PREFIX>_* variables on top of the file layers.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"SENSOR_TRANSPORT": &cfg.Sensor.Transport,
		"SENSOR_HOST":      &cfg.Sensor.Host,
		"SENSOR_DEVICE":    &cfg.Sensor.Device,
		"NATS_USERNAME":    &cfg.NATS.Username,
		"NATS_PASSWORD":    &cfg.NATS.Password,
		"NATS_TOKEN":       &cfg.NATS.Token,
		"RAW_SUBJECT":      &cfg.Publish.RawSubject,
		"REPORT_SUBJECT":   &cfg.Publish.ReportSubject,
		"ENCODING":         &cfg.Publish.Encoding,
		"SHADOW_BACKEND":   &cfg.Shadow.Backend,
		"REDIS_ADDR":       &cfg.Shadow.RedisAddr,
		"BOLT_PATH":        &cfg.Shadow.BoltPath,
	}
	for name, dst := range strs {
		val, ok, err := l.env(name)
		if err != nil {
			return err
		}
		if ok {
			*dst = val
		}
	}

	ints := map[string]*int{
		"SENSOR_PORT":  &cfg.Sensor.Port,
		"SENSOR_BAUD":  &cfg.Sensor.Baud,
		"METRICS_PORT": &cfg.Metrics.Port,
	}
	for name, dst := range ints {
		val, ok, err := l.env(name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapFatal(fmt.Errorf("%w: %s_%s=%q is not an integer", errors.ErrInvalidConfig,
				l.envPrefix, name, val), "Loader", "applyEnvOverrides", name)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"DO_LOG_RAW_DATA":   &cfg.Sensor.DoLogRawData,
		"WEBSOCKET_ENABLED": &cfg.WebSocket.Enabled,
		"METRICS_ENABLED":   &cfg.Metrics.Enabled,
	}
	for name, dst := range bools {
		val, ok, err := l.env(name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return errors.WrapFatal(fmt.Errorf("%w: %s_%s=%q is not a boolean", errors.ErrInvalidConfig,
				l.envPrefix, name, val), "Loader", "applyEnvOverrides", name)
		}
		*dst = b
	}

	if val, ok, err := l.env("NATS_URLS"); err != nil {
		return err
	} else if ok {
		cfg.NATS.URLs = strings.Split(val, ",")
	}

	return nil
}
