package testutil

import (
	"time"

	"github.com/ethpandaops/resultgrid/internal/config"
)

// NewTestConfig returns a minimal valid config for testing.
func NewTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
			LogLevel:        "info",
		},
		Query: config.QueryConfig{
			URL: "http://localhost:9090",
		},
	}
}
