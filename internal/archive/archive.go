// Package archive stores exported documents and database backups as named
// blobs in memory, on the local filesystem, or in an S3 bucket.
package archive

import (
	"fmt"
	"path"
	"strings"
)

// validateName rejects names that could escape the archive root.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("archive name must not be empty")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("invalid archive name: %q", name)
	}
	if path.Clean(name) != name {
		return fmt.Errorf("invalid archive name: %q", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." || part == "." || strings.HasPrefix(part, ".tmp-") {
			return fmt.Errorf("invalid archive name: %q", name)
		}
	}
	return nil
}
