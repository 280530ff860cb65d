package storage

import (
	"context"
	"io"
)

// ObjectStorage is the read-only object access used to fetch runtime bundles.
type ObjectStorage interface {
	// StatObject returns object metadata without downloading it.
	StatObject(ctx context.Context, bucket, key string) (ObjectStat, error)

	// GetObject opens a reader for an object; the caller closes it. A non-empty
	// etag makes the read fail if the object changed since it was stat'ed.
	GetObject(ctx context.Context, bucket, key, etag string) (io.ReadCloser, error)
}

// ObjectStat contains object metadata.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
