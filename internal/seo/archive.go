package seo

import (
	"context"
	"io"
)

// Archive stores exported documents and database backups as named blobs.
// Names are slash-separated, e.g. "redirects/20240115T103000Z.csv".
type Archive interface {
	// Put stores a blob, replacing any existing blob with the same name.
	// size is the number of bytes that will be read from r.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Get writes the named blob to w. Missing blobs yield an error wrapping ErrNotFound.
	Get(ctx context.Context, name string, w io.Writer) error

	// List returns the names of all blobs starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// ValidateSetup verifies that the archive is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
