package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Debug       bool
	Identity    string
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "config", getEnv("SEMCHAT_CONFIG", ""),
		"Path to JSON or YAML configuration file, optional (env: SEMCHAT_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", getEnv("SEMCHAT_CONFIG", ""),
		"Path to JSON or YAML configuration file, optional (env: SEMCHAT_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("SEMCHAT_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SEMCHAT_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("SEMCHAT_LOG_FORMAT", "json"),
		"Log format: json, text (env: SEMCHAT_LOG_FORMAT)")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("SEMCHAT_DEBUG", false),
		"Enable debug mode (env: SEMCHAT_DEBUG)")

	fs.StringVar(&cfg.Identity, "identity", "",
		"Fixed author name, overrides configuration; empty generates one")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			cfg.ShowHelp = true
			return cfg, nil
		}
		return nil, err
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
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
	return nil
}

func printDetailedHelp(w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - anonymous group chat

Usage: %s [options]

Options:
  -c, --config PATH     JSON or YAML configuration file (env: SEMCHAT_CONFIG)
      --log-level LVL   debug, info, warn, error (env: SEMCHAT_LOG_LEVEL)
      --log-format FMT  json, text (env: SEMCHAT_LOG_FORMAT)
      --debug           debug logging with source locations (env: SEMCHAT_DEBUG)
      --identity NAME   fixed author name instead of a generated one
      --validate        validate configuration and exit
  -v, --version         show version
  -h, --help            show this help

Examples:
  # In-memory room on :8080
  SEMCHAT_STORE_DRIVER=memory %s --log-format=text

  # NATS KV room
  export SEMCHAT_NATS_URLS=nats://localhost:4222
  %s --config=semchat.yaml

  # MongoDB storage with Redis realtime
  SEMCHAT_STORE_DRIVER=mongo SEMCHAT_REALTIME_DRIVER=redis %s

A .env file in the working directory is loaded before the environment is read.

Version: %s
Build: %s
`, appName, appName, appName, appName, appName, Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
