package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Open returns the store described by uri:
//
//	memory              in-memory store
//	bolt://path.db      bbolt database file
//	s3://bucket/prefix  S3 objects, using the default AWS configuration
//	anything else       directory path
//
// The caller closes the store with Close.
func Open(ctx context.Context, uri string) (Store, error) {
	switch {
	case uri == "":
		return nil, errors.New("no store given")
	case uri == "memory" || uri == "memory://":
		return NewMemory(), nil
	case strings.HasPrefix(uri, "bolt://"):
		return OpenBolt(strings.TrimPrefix(uri, "bolt://"))
	case strings.HasPrefix(uri, "s3://"):
		bucket, prefix, err := ParseS3URI(uri)
		if err != nil {
			return nil, err
		}
		client, err := NewS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, bucket, prefix), nil
	case strings.HasPrefix(uri, "file://"):
		return NewDir(strings.TrimPrefix(uri, "file://"))
	case strings.Contains(uri, "://"):
		return nil, errors.Errorf("unsupported store %q", uri)
	default:
		return NewDir(uri)
	}
}
