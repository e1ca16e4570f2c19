package encryption

import (
	"fmt"

	"wfs-go/internal/config"
	"wfs-go/internal/wfs"
)

// NewEncryptorFromConfig returns the configured Encryptor, or nil when
// encryption at rest is disabled.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (wfs.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

// NewKeyManagerFromConfig returns an Encryptor for key management commands
// even when encryption at rest is disabled, defaulting to age.
func NewKeyManagerFromConfig(cfg config.EncryptionConfig) (wfs.Encryptor, error) {
	if cfg.Type == "none" || cfg.Type == "" {
		cfg.Type = "age"
	}
	return NewEncryptorFromConfig(cfg)
}
