package archive

import (
	"context"
	"fmt"

	"almaseo-go/internal/config"
	"almaseo-go/internal/seo"
)

// NewArchiveFromConfig creates an Archive implementation based on the archive config type.
func NewArchiveFromConfig(ctx context.Context, cfg config.ArchiveConfig) (seo.Archive, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryArchive(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		return NewFileSystemArchive(cfg.FSRoot)
	case "s3":
		return NewS3Archive(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
