package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variable names.
const (
	EnvHost                      = "MOCKSERVER_HOST"
	EnvPort                      = "MOCKSERVER_SERVER_PORT"
	EnvLogLevel                  = "MOCKSERVER_LOG_LEVEL"
	EnvLogFormat                 = "MOCKSERVER_LOG_FORMAT"
	EnvMaxExpectations           = "MOCKSERVER_MAX_EXPECTATIONS"
	EnvMaxLogEntries             = "MOCKSERVER_MAX_LOG_ENTRIES"
	EnvInitializationPath        = "MOCKSERVER_INITIALIZATION_JSON_PATH"
	EnvWatchInitialization       = "MOCKSERVER_WATCH_INITIALIZATION_JSON"
	EnvPersistExpectations       = "MOCKSERVER_PERSIST_EXPECTATIONS"
	EnvPersistedExpectationsPath = "MOCKSERVER_PERSISTED_EXPECTATIONS_PATH"
	EnvSweepInterval             = "MOCKSERVER_SWEEP_INTERVAL"
	EnvDefaultCharset            = "MOCKSERVER_DEFAULT_CHARSET"
	EnvJSONMatchType             = "MOCKSERVER_JSON_MATCH_TYPE"
	EnvMaxRequestBodySize        = "MOCKSERVER_MAX_REQUEST_BODY_SIZE"
	EnvMetrics                   = "MOCKSERVER_METRICS_ENABLED"
	EnvDashboard                 = "MOCKSERVER_DASHBOARD_ENABLED"
)

type envBinding struct {
	name  string
	apply func(cfg *ServerConfig, v string) error
}

var envBindings = []envBinding{
	{EnvHost, func(c *ServerConfig, v string) error { c.Host = v; return nil }},
	{EnvPort, intSetter(func(c *ServerConfig, n int) { c.Port = n })},
	{EnvLogLevel, func(c *ServerConfig, v string) error { c.LogLevel = v; return nil }},
	{EnvLogFormat, func(c *ServerConfig, v string) error { c.LogFormat = v; return nil }},
	{EnvMaxExpectations, intSetter(func(c *ServerConfig, n int) { c.MaxExpectations = n })},
	{EnvMaxLogEntries, intSetter(func(c *ServerConfig, n int) { c.MaxLogEntries = n })},
	{EnvInitializationPath, func(c *ServerConfig, v string) error { c.InitializationPath = v; return nil }},
	{EnvWatchInitialization, boolSetter(func(c *ServerConfig, b bool) { c.WatchInitialization = b })},
	{EnvPersistExpectations, boolSetter(func(c *ServerConfig, b bool) { c.PersistExpectations = b })},
	{EnvPersistedExpectationsPath, func(c *ServerConfig, v string) error { c.PersistedExpectationsPath = v; return nil }},
	{EnvSweepInterval, func(c *ServerConfig, v string) error { return c.SweepInterval.parse(v) }},
	{EnvDefaultCharset, func(c *ServerConfig, v string) error { c.DefaultCharset = v; return nil }},
	{EnvJSONMatchType, func(c *ServerConfig, v string) error { c.JSONMatchType = v; return nil }},
	{EnvMaxRequestBodySize, func(c *ServerConfig, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.MaxRequestBodySize = n
		return nil
	}},
	{EnvMetrics, boolSetter(func(c *ServerConfig, b bool) { c.Metrics = b })},
	{EnvDashboard, boolSetter(func(c *ServerConfig, b bool) { c.Dashboard = b })},
}

func intSetter(set func(*ServerConfig, int)) func(*ServerConfig, string) error {
	return func(c *ServerConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		set(c, n)
		return nil
	}
}

func boolSetter(set func(*ServerConfig, bool)) func(*ServerConfig, string) error {
	return func(c *ServerConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		set(c, b)
		return nil
	}
}

// ApplyEnv overlays the MOCKSERVER_* variables found by lookup. A nil lookup
// reads the process environment. Only variables that are present are applied.
func (c *ServerConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	return nil
}
