// Package hazeldb is the top-level facade for the hazeldb storage core.
package hazeldb

import (
	"github.com/tuanvm/hazeldb/internal"
	"github.com/tuanvm/hazeldb/internal/engine"
)

type (
	Database = engine.DB
	Config   = internal.HazelConfig
)

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	return internal.LoadConfig(path)
}

// Open opens (or creates) a database under cfg.Storage.Workdir.
func Open(cfg *Config) (*Database, error) {
	return engine.Open(cfg)
}
