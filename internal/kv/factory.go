package kv

import (
	"context"
	"fmt"

	"wfs-go/internal/compress"
	"wfs-go/internal/config"
	"wfs-go/internal/database"
	"wfs-go/internal/wfs"
)

// Store is a KV that owns resources released by Close.
type Store interface {
	wfs.KV
	Close() error
}

// NewStoreFromConfig creates the substrate named by cfg.Type.
func NewStoreFromConfig(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryKV(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem storage requires fs_root to be set")
		}
		return NewFileSystemKV(cfg.FSRoot)
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis storage requires redis_url to be set")
		}
		return NewRedisKV(cfg.RedisURL, cfg.RedisPrefix)
	case "s3":
		return NewS3KV(ctx, S3Options{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	case "sqlite", "sqlite-memory", "postgres":
		return database.NewStoreFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Layers are the optional transforms applied on top of a substrate.
type Layers struct {
	Codec     compress.Codec
	Encryptor wfs.Encryptor
	// Decryption may be nil when Encryptor is set; reads then fail with ErrLocked.
	Decryption wfs.DecryptionContext
}

// Wrap stacks the layers on store. Values are compressed first and then
// encrypted, so the substrate only ever sees ciphertext.
func Wrap(store Store, layers Layers) Store {
	if layers.Encryptor != nil {
		store = NewEncryptedKV(store, layers.Encryptor, layers.Decryption)
	}
	if layers.Codec != nil && layers.Codec.Name() != "none" {
		store = NewCodecKV(store, layers.Codec)
	}
	return store
}
