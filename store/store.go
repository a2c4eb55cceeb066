// Package store provides the object store contract the backup engine
// reads and writes blobs through, with S3 and in-memory implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ErrKeyNotFound reports a missing object.
var ErrKeyNotFound = errors.New("object not found")

// Store is the blob store contract: opaque byte blobs addressed by
// bucket and key.
type Store interface {
	// Get reads an object's content.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put writes an object's content, overwriting any existing object.
	Put(ctx context.Context, bucket, key string, content []byte) error

	// Copy copies an object between locations without transferring its
	// content through the caller.
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
}

// ParseURI parses an object store URI into bucket and key. The legacy
// s3a:// and s3n:// schemes are accepted and treated as s3://.
func ParseURI(uri string) (bucket, key string, err error) {
	normalized := uri
	if strings.HasPrefix(uri, "s3a://") || strings.HasPrefix(uri, "s3n://") {
		normalized = "s3://" + uri[len("s3a://"):]
	}
	if !strings.HasPrefix(normalized, "s3://") {
		return "", "", fmt.Errorf("invalid object store URI: %s", uri)
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return "", "", fmt.Errorf("invalid object store URI %s: %w", uri, err)
	}

	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")

	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in URI: %s", uri)
	}

	return bucket, key, nil
}

// IsNotFound reports whether an error means the object does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKeyNotFound) {
		return true
	}

	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NoSuchBucket" || code == "NotFound"
	}

	// Last resort for errors that lost their type through formatting.
	return strings.Contains(err.Error(), "NoSuchKey")
}
