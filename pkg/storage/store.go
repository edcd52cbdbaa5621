package storage

import (
	"context"
	"io"
)

// ObjectStore abstracts the blob backend holding uploaded assets.
type ObjectStore interface {
	// PutTemp stores an uploaded asset under a session-scoped temp key
	// and returns the key.
	PutTemp(ctx context.Context, sessionID, filename string, body io.Reader, contentType string) (string, error)

	// Get fetches the object body for a stored key. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a stored object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns an address the extraction services can fetch the object
	// from.
	URL(key string) string
}
