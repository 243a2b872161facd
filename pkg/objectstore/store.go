// Package objectstore defines the blob storage contract used to persist
// session audio buffers and graph snapshots uploaded by the feedback
// workflow.
package objectstore

import "context"

// Store puts and gets opaque byte blobs addressed by key.
type Store interface {
	// Put writes data under key and returns a URI identifying the stored
	// object.
	Put(ctx context.Context, key string, data []byte) (uri string, err error)

	// Get retrieves the blob stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}
