package objects

import (
	"context"
	"fmt"

	"ecorpus-go/internal/config"
	"ecorpus-go/internal/vfs"
)

// NewObjectStoreFromConfig creates an ObjectStore implementation based on the objects config type.
func NewObjectStoreFromConfig(ctx context.Context, cfg config.ObjectsConfig, logger vfs.Logger) (vfs.ObjectStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			SpoolDir:        cfg.Root,
		}, logger)
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem object store requires root to be set")
		}
		return NewFileSystemStore(cfg.Root, logger)
	default:
		return nil, fmt.Errorf("unknown objects type: %s", cfg.Type)
	}
}
