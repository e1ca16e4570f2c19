package netwatch

import (
	"fmt"

	"wfs-go/internal/config"
	"wfs-go/internal/wfs"
)

// NewFromConfig returns the configured connectivity source.
func NewFromConfig(cfg config.ConnectivityConfig, logger wfs.Logger) (wfs.Connectivity, error) {
	switch cfg.Type {
	case "static", "":
		return NewStaticNotifier(true), nil
	case "file":
		if cfg.StatusFile == "" {
			return nil, fmt.Errorf("connectivity type file requires status_file")
		}
		return NewFileNotifier(cfg.StatusFile, logger), nil
	default:
		return nil, fmt.Errorf("unknown connectivity type: %q", cfg.Type)
	}
}
