// Package config loads the server configuration and the expectation
// initializer files.
//
// A ServerConfig starts from Default, is overlaid with a YAML or JSON file
// (Load), then with MOCKSERVER_* environment variables (ApplyEnv). Command
// line flags are applied last by the caller.
//
// Initializer files hold one expectation document or an array of them, in
// JSON or YAML. InitializationPath is a comma-separated list of doublestar
// globs, so "mocks/**/*.yaml" loads every YAML file below mocks/.
package config
