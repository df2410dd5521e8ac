package vault

import (
	"context"
	"fmt"

	"fswatcher/internal/config"
	"fswatcher/internal/mirror"
)

// NewSessionFactoryFromConfig creates a SessionFactory based on the store config type.
// bucket is the bucket name parsed from the bucket specification.
func NewSessionFactoryFromConfig(cfg *config.Config, bucket string, logger mirror.Logger) (mirror.SessionFactory, error) {
	switch cfg.Store.Type {
	case "s3", "":
		return NewS3SessionFactory(S3Options{
			Bucket:          bucket,
			Region:          cfg.AWS.Region,
			Profile:         cfg.AWS.Profile,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			MaxAttempts:     cfg.AWS.MaxAttempts,
			MaxConns:        cfg.ConcurrencyLimit,
			Debug:           cfg.AWS.Debug,
			Logger:          logger,
		}), nil
	case "filesystem":
		if cfg.Store.Root == "" {
			return nil, fmt.Errorf("filesystem store requires root to be set")
		}
		root := cfg.Store.Root
		return func(context.Context) (mirror.ObjectStore, error) {
			return NewFileSystemStore(root)
		}, nil
	case "memory":
		store := NewMemoryStore()
		return func(context.Context) (mirror.ObjectStore, error) {
			return store, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}
}
