// Package s3fake provides an in-memory stand-in for the S3 API calls the
// store and source packages make, for use in tests.
package s3fake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Client keeps objects of any number of buckets in memory.
type Client struct {
	mu      sync.Mutex
	objects map[string][]byte

	// PageSize bounds ListObjectsV2 pages; zero means 1000.
	PageSize int

	// Gets counts GetObject calls.
	Gets int

	// GetHook, when set, runs before every GetObject and can fail it.
	GetHook func(ctx context.Context, in *s3.GetObjectInput) error
}

// New returns an empty client.
func New() *Client {
	return &Client{objects: make(map[string][]byte)}
}

func objectID(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

// Put stores an object directly.
func (c *Client) Put(bucket, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[bucket+"/"+key] = append([]byte(nil), data...)
}

func (c *Client) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if c.GetHook != nil {
		if err := c.GetHook(ctx, in); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++

	data, ok := c.objects[objectID(in.Bucket, in.Key)]
	if !ok {
		return nil, &s3Types.NoSuchKey{Message: aws.String("no such key")}
	}
	if r := aws.ToString(in.Range); r != "" {
		var start, end int64
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("bad range %q", r)
		}
		if start >= int64(len(data)) {
			return nil, fmt.Errorf("range %q not satisfiable", r)
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(append([]byte(nil), data...))),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (c *Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[objectID(in.Bucket, in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (c *Client) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[objectID(in.Bucket, in.Key)]
	if !ok {
		return nil, &s3Types.NotFound{Message: aws.String("not found")}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (c *Client) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, objectID(in.Bucket, in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (c *Client) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucketPrefix := aws.ToString(in.Bucket) + "/"
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for id := range c.objects {
		if !strings.HasPrefix(id, bucketPrefix) {
			continue
		}
		key := strings.TrimPrefix(id, bucketPrefix)
		if strings.HasPrefix(key, prefix) && key > aws.ToString(in.ContinuationToken) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	size := c.PageSize
	if size <= 0 {
		size = 1000
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > size {
		keys = keys[:size]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3Types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(c.objects[bucketPrefix+k]))),
		})
	}
	out.KeyCount = aws.Int32(int32(len(keys)))
	return out, nil
}
