package graph

import (
	"fmt"

	"dds-go/internal/config"
	"dds-go/internal/dds"
)

// NewGraphFromConfig creates a GraphStore based on the graph config type.
func NewGraphFromConfig(cfg config.GraphConfig) (dds.GraphStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryGraph(), nil
	case "surreal":
		if cfg.URL == "" {
			return nil, fmt.Errorf("surreal graph requires url to be set")
		}
		return NewSurrealGraph(cfg.URL, cfg.Namespace, cfg.Database, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("unknown graph type: %s", cfg.Type)
	}
}
