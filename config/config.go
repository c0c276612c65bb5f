package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/c360/dvlstreams/errors"
)

// Sensor transports
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

// Report encodings
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Shadow store backends. An empty backend disables the shadow store.
const (
	ShadowNone   = ""
	ShadowNATSKV = "nats-kv"
	ShadowRedis  = "redis"
	ShadowBolt   = "bolt"
)

// Config is the complete bridge configuration. It is read once at startup
// and passed by value afterwards.
type Config struct {
	Sensor    SensorConfig    `json:"sensor"`
	NATS      NATSConfig      `json:"nats"`
	Publish   PublishConfig   `json:"publish"`
	Shadow    ShadowConfig    `json:"shadow"`
	WebSocket WebSocketConfig `json:"websocket"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// SensorConfig describes how to reach the DVL and how to pace its reports.
type SensorConfig struct {
	Transport         string        `json:"transport"`
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	Device            string        `json:"device,omitempty"`
	Baud              int           `json:"baud,omitempty"`
	DoLogRawData      bool          `json:"do_log_raw_data"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	ReconnectInterval time.Duration `json:"reconnect_interval"`
	PublishRateHz     float64       `json:"publish_rate_hz"`
	FrameID           string        `json:"frame_id"`
}

// Address returns host:port for the TCP transport
func (s SensorConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls"`
	MaxReconnects int           `json:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	ClientName    string        `json:"client_name,omitempty"`
}

// PublishConfig names the two sink subjects and the report encoding.
type PublishConfig struct {
	RawSubject    string `json:"raw_subject"`
	ReportSubject string `json:"report_subject"`
	Encoding      string `json:"encoding"`
	Source        string `json:"source"`
}

// ShadowConfig selects where the latest report is kept.
type ShadowConfig struct {
	Backend   string        `json:"backend"`
	Bucket    string        `json:"bucket"`
	Key       string        `json:"key"`
	RedisAddr string        `json:"redis_addr,omitempty"`
	RedisDB   int           `json:"redis_db,omitempty"`
	BoltPath  string        `json:"bolt_path,omitempty"`
	TTL       time.Duration `json:"ttl,omitempty"`
}

// WebSocketConfig enables the live report tap.
type WebSocketConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Path    string `json:"path"`
	Subject string `json:"subject,omitempty"` // defaults to publish.report_subject
}

// MetricsConfig configures the Prometheus and health endpoint.
type MetricsConfig struct {
	Enabled    bool          `json:"enabled"`
	Port       int           `json:"port"`
	Path       string        `json:"path"`
	StaleAfter time.Duration `json:"stale_after"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Sensor: SensorConfig{
			Transport:         TransportTCP,
			Host:              "10.42.0.186",
			Port:              16171,
			Baud:              115200,
			DoLogRawData:      false,
			ReadTimeout:       time.Second,
			ReconnectInterval: time.Second,
			PublishRateHz:     10,
			FrameID:           "dvl_link",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			ClientName:    "dvlbridge",
		},
		Publish: PublishConfig{
			RawSubject:    "dvl.json_data",
			ReportSubject: "dvl.data",
			Encoding:      EncodingJSON,
			Source:        "dvlbridge",
		},
		Shadow: ShadowConfig{
			Backend:   ShadowNone,
			Bucket:    "dvl_shadow",
			Key:       "latest",
			RedisAddr: "localhost:6379",
			BoltPath:  "dvl-shadow.db",
		},
		WebSocket: WebSocketConfig{
			Enabled: false,
			Addr:    ":8082",
			Path:    "/ws",
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			Port:       9090,
			Path:       "/metrics",
			StaleAfter: 5 * time.Second,
		},
	}
}

func invalid(field, format string, args ...any) error {
	return errors.WrapFatal(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
		"Config", "Validate", field)
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.Sensor.validate(); err != nil {
		return err
	}

	if len(c.NATS.URLs) == 0 {
		return invalid("nats.urls", "at least one NATS url is required")
	}

	if err := validSubject(c.Publish.RawSubject); err != nil {
		return invalid("publish.raw_subject", "%v", err)
	}
	if err := validSubject(c.Publish.ReportSubject); err != nil {
		return invalid("publish.report_subject", "%v", err)
	}
	switch c.Publish.Encoding {
	case EncodingJSON, EncodingMsgpack:
	default:
		return invalid("publish.encoding", "unknown encoding %q", c.Publish.Encoding)
	}

	if err := c.Shadow.validate(); err != nil {
		return err
	}

	if c.WebSocket.Enabled {
		if c.WebSocket.Addr == "" {
			return invalid("websocket.addr", "address is required")
		}
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			return invalid("websocket.path", "path must start with /")
		}
		if c.WebSocket.Subject != "" {
			if err := validSubject(c.WebSocket.Subject); err != nil {
				return invalid("websocket.subject", "%v", err)
			}
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid("metrics.port", "port %d out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path", "path must start with /")
		}
	}

	return nil
}

func (s SensorConfig) validate() error {
	switch s.Transport {
	case TransportTCP:
		if s.Host == "" {
			return invalid("sensor.host", "host is required")
		}
		if s.Port < 1 || s.Port > 65535 {
			return invalid("sensor.port", "port %d out of range", s.Port)
		}
	case TransportSerial:
		if s.Device == "" {
			return invalid("sensor.device", "device is required for serial transport")
		}
		if s.Baud <= 0 {
			return invalid("sensor.baud", "baud must be positive, got %d", s.Baud)
		}
	default:
		return invalid("sensor.transport", "unknown transport %q", s.Transport)
	}

	if s.ReadTimeout <= 0 {
		return invalid("sensor.read_timeout", "must be positive")
	}
	if s.ReconnectInterval <= 0 {
		return invalid("sensor.reconnect_interval", "must be positive")
	}
	if s.PublishRateHz <= 0 {
		return invalid("sensor.publish_rate_hz", "must be positive")
	}
	if s.FrameID == "" {
		return invalid("sensor.frame_id", "frame id is required")
	}
	return nil
}

func (s ShadowConfig) validate() error {
	switch s.Backend {
	case ShadowNone:
		return nil
	case ShadowNATSKV:
		if s.Bucket == "" {
			return invalid("shadow.bucket", "bucket is required for %s", s.Backend)
		}
	case ShadowRedis:
		if s.RedisAddr == "" {
			return invalid("shadow.redis_addr", "address is required for redis")
		}
	case ShadowBolt:
		if s.BoltPath == "" {
			return invalid("shadow.bolt_path", "path is required for bolt")
		}
		if s.Bucket == "" {
			return invalid("shadow.bucket", "bucket is required for %s", s.Backend)
		}
	default:
		return invalid("shadow.backend", "unknown backend %q", s.Backend)
	}

	if s.Key == "" {
		return invalid("shadow.key", "key is required")
	}
	if s.TTL < 0 {
		return invalid("shadow.ttl", "ttl cannot be negative")
	}
	return nil
}

// validSubject accepts literal NATS subjects only: no wildcards, no spaces,
// no empty tokens.
func validSubject(s string) error {
	if s == "" {
		return fmt.Errorf("subject is required")
	}
	for _, token := range strings.Split(s, ".") {
		if token == "" {
			return fmt.Errorf("subject %q has an empty token", s)
		}
		if token == "*" || token == ">" {
			return fmt.Errorf("subject %q contains a wildcard", s)
		}
		if strings.ContainsAny(token, " \t\r\n") {
			return fmt.Errorf("subject %q contains whitespace", s)
		}
	}
	return nil
}

// WebSocketSubject is the subject the websocket hub listens on.
func (c *Config) WebSocketSubject() string {
	if c.WebSocket.Subject != "" {
		return c.WebSocket.Subject
	}
	return c.Publish.ReportSubject
}

// String returns indented JSON with secrets masked.
func (c Config) String() string {
	if c.NATS.Password != "" {
		c.NATS.Password = "****"
	}
	if c.NATS.Token != "" {
		c.NATS.Token = "****"
	}

	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
