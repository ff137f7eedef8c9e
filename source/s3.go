package source

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// S3API is the subset of the S3 client S3 sources use.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

func newS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS configuration")
	}
	return s3.NewFromConfig(cfg), nil
}

// S3 reads ranges of one S3 object with ranged GetObject calls.
type S3 struct {
	client S3API
	uri    string
	bucket string
	key    string

	once    sync.Once
	size    int64
	sizeErr error
}

// NewS3 returns a source for an s3://bucket/key URI.
func NewS3(client S3API, uri string) (*S3, error) {
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if rest == uri || !ok || bucket == "" || key == "" {
		return nil, errors.Errorf("%q is not an s3://bucket/key URI", uri)
	}
	return &S3{client: client, uri: uri, bucket: bucket, key: key}, nil
}

func (s *S3) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "getting %s [%d, %d)", s.uri, offset, offset+length)
	}
	defer out.Body.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(out.Body, buf); err != nil {
		return nil, errors.Wrapf(err, "reading %s [%d, %d)", s.uri, offset, offset+length)
	}
	return buf, nil
}

// Size issues one HeadObject call and caches the result.
func (s *S3) Size(ctx context.Context) (int64, error) {
	s.once.Do(func() {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
		})
		if err != nil {
			s.sizeErr = errors.Wrapf(err, "head %s", s.uri)
			return
		}
		s.size = aws.ToInt64(out.ContentLength)
	})
	return s.size, s.sizeErr
}

func (s *S3) URI() string {
	return s.uri
}

func (s *S3) Close() error {
	return nil
}
