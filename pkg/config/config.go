package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mock-server/mockserver-sub017/internal/matching"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound = errors.New("configuration file not found")
	ErrEmptyFile    = errors.New("configuration file is empty")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
	ErrInvalidJSON  = errors.New("invalid JSON syntax")
)

// Defaults.
const (
	DefaultPort               = 1080
	DefaultMaxExpectations    = 5000
	DefaultMaxLogEntries      = 10000
	DefaultMaxRequestBodySize = 10 << 20
	DefaultNearMisses         = 3
)

// ServerConfig configures a mock server.
type ServerConfig struct {
	// Host is the interface to listen on; empty listens on all of them.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port" yaml:"port"`

	LogLevel  string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFormat string `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`

	// MaxExpectations caps the expectation store; 0 is unbounded.
	MaxExpectations int `json:"maxExpectations" yaml:"maxExpectations"`

	// MaxLogEntries bounds the request log ring.
	MaxLogEntries int `json:"maxLogEntries" yaml:"maxLogEntries"`

	// NearMisses is how many closest expectations an unmatched request
	// records.
	NearMisses int `json:"nearMisses" yaml:"nearMisses"`

	// InitializationPath is a comma-separated list of doublestar globs
	// naming expectation files loaded at startup.
	InitializationPath string `json:"initializationPath,omitempty" yaml:"initializationPath,omitempty"`

	// WatchInitialization reloads the initializer files when they change.
	WatchInitialization bool `json:"watchInitialization,omitempty" yaml:"watchInitialization,omitempty"`

	// PersistExpectations writes the expectation set to
	// PersistedExpectationsPath after every change.
	PersistExpectations       bool   `json:"persistExpectations,omitempty" yaml:"persistExpectations,omitempty"`
	PersistedExpectationsPath string `json:"persistedExpectationsPath,omitempty" yaml:"persistedExpectationsPath,omitempty"`

	// SweepInterval is how often exhausted and expired expectations are
	// dropped; 0 disables sweeping.
	SweepInterval Duration `json:"sweepInterval" yaml:"sweepInterval"`

	DefaultCharset string `json:"defaultCharset,omitempty" yaml:"defaultCharset,omitempty"`
	JSONMatchType  string `json:"jsonMatchType,omitempty" yaml:"jsonMatchType,omitempty"`

	MaxRequestBodySize int64    `json:"maxRequestBodySize" yaml:"maxRequestBodySize"`
	ForwardTimeout     Duration `json:"forwardTimeout" yaml:"forwardTimeout"`
	CallbackTimeout    Duration `json:"callbackTimeout" yaml:"callbackTimeout"`
	ShutdownTimeout    Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`

	// Metrics serves Prometheus metrics on /mockserver/metrics.
	Metrics bool `json:"metrics" yaml:"metrics"`

	// Dashboard serves the live WebSocket stream on /mockserver/dashboard/ws.
	Dashboard bool `json:"dashboard" yaml:"dashboard"`
}

// Default returns the default configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Port:                      DefaultPort,
		LogLevel:                  "info",
		LogFormat:                 "text",
		MaxExpectations:           DefaultMaxExpectations,
		MaxLogEntries:             DefaultMaxLogEntries,
		NearMisses:                DefaultNearMisses,
		PersistedExpectationsPath: "persistedExpectations.json",
		SweepInterval:             Duration(time.Minute),
		DefaultCharset:            "utf-8",
		JSONMatchType:             string(expectation.JSONOnlyMatchingFields),
		MaxRequestBodySize:        DefaultMaxRequestBodySize,
		ForwardTimeout:            Duration(30 * time.Second),
		CallbackTimeout:           Duration(10 * time.Second),
		ShutdownTimeout:           Duration(5 * time.Second),
		Metrics:                   true,
		Dashboard:                 true,
	}
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MatchingOptions returns the pattern compilation options.
func (c *ServerConfig) MatchingOptions() matching.Options {
	opts := matching.DefaultOptions()
	if c.DefaultCharset != "" {
		opts.DefaultCharset = c.DefaultCharset
	}
	if c.JSONMatchType != "" {
		opts.JSONMatchType = expectation.JSONMatchType(strings.ToUpper(c.JSONMatchType))
	}
	return opts
}

// LoggingConfig returns the logging configuration.
func (c *ServerConfig) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.LogLevel),
		Format: logging.ParseFormat(c.LogFormat),
	}
}

// Validate checks the configuration and returns every problem found.
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MaxExpectations < 0 {
		errs = append(errs, errors.New("maxExpectations must not be negative"))
	}
	if c.MaxLogEntries <= 0 {
		errs = append(errs, errors.New("maxLogEntries must be positive"))
	}
	if c.NearMisses < 0 {
		errs = append(errs, errors.New("nearMisses must not be negative"))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("maxRequestBodySize must be positive"))
	}
	if c.PersistExpectations && c.PersistedExpectationsPath == "" {
		errs = append(errs, errors.New("persistedExpectationsPath is required when persistExpectations is set"))
	}
	if c.WatchInitialization && c.InitializationPath == "" {
		errs = append(errs, errors.New("initializationPath is required when watchInitialization is set"))
	}
	if err := c.MatchingOptions().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Load reads a configuration file over the defaults. The format follows the
// extension: .yaml and .yml are YAML, anything else JSON.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	cfg := Default()
	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w in %s: %w", ErrInvalidYAML, path, err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w in %s: %w", ErrInvalidJSON, path, err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
