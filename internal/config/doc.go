// Package config handles configuration loading, parsing, and validation
// from environment variables, an optional .env file and an optional YAML
// config file. It provides type-safe access to the settings needed by the
// server, the stores, the dedup ledger and the scheduler.
package config
