package storage

import (
	"context"
	"fmt"

	"dds-go/internal/config"
	"dds-go/internal/dds"
)

// NewGatewayFromConfig creates a StorageGateway based on the storage config type.
func NewGatewayFromConfig(ctx context.Context, cfg config.StorageConfig) (dds.StorageGateway, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryGateway(), nil
	case "s3":
		if cfg.S3Region == "" && cfg.S3Endpoint == "" {
			return nil, fmt.Errorf("s3 storage requires s3_region or s3_endpoint to be set")
		}
		return NewS3Gateway(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
