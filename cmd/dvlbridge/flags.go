package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/c360/dvlstreams/config"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool

	// Sensor overrides, applied on top of the loaded configuration only when
	// the flag was given on the command line.
	Host         string
	Port         int
	DoLogRawData bool
	set          map[string]bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{set: make(map[string]bool)}

	fs.StringVar(&cfg.ConfigPath, "config", getEnv("DVL_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: DVL_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", getEnv("DVL_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: DVL_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("DVL_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: DVL_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("DVL_LOG_FORMAT", "json"),
		"Log format: json, text (env: DVL_LOG_FORMAT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("DVL_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: DVL_SHUTDOWN_TIMEOUT)")

	fs.StringVar(&cfg.Host, "host", "", "DVL address, overrides sensor.host")
	fs.IntVar(&cfg.Port, "port", 0, "DVL TCP port, overrides sensor.port")
	fs.BoolVar(&cfg.DoLogRawData, "do-log-raw-data", false,
		"Publish and log every frame raw, overrides sensor.do_log_raw_data")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration, print it and exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.set["port"] && (cfg.Port < 1 || cfg.Port > 65535) {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	return nil
}

// applyOverrides copies explicitly given sensor flags into cfg.
func (c *CLIConfig) applyOverrides(cfg *config.Config) {
	if c.set["host"] {
		cfg.Sensor.Host = c.Host
	}
	if c.set["port"] {
		cfg.Sensor.Port = c.Port
	}
	if c.set["do-log-raw-data"] {
		cfg.Sensor.DoLogRawData = c.DoLogRawData
	}
}

func printDetailedHelp(fs *flag.FlagSet) {
	out := fs.Output()
	_, _ = fmt.Fprintf(out, `%s - DVL A50 to NATS bridge

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	printExamples(out)
}

func printExamples(out io.Writer) {
	_, _ = fmt.Fprintf(out, `
Examples:
  # Bridge the DVL at its default address
  %[1]s

  # Different sensor, raw frames logged
  %[1]s --host=192.168.194.95 --port=16171 --do-log-raw-data

  # Layered configuration with environment overrides
  export DVL_NATS_URLS=nats://nats-1:4222,nats://nats-2:4222
  %[1]s --config=/etc/dvlbridge/bridge.yaml

  # Validate configuration only
  %[1]s --config=bridge.yaml --validate

Version: %[2]s
Build: %[3]s
`, os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
