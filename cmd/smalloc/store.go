package main

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/smalloc/blobstore"
	"github.com/hupe1980/smalloc/blobstore/minio"
	"github.com/hupe1980/smalloc/blobstore/s3"
)

type storeOptions struct {
	s3Region   string
	s3Endpoint string
}

// openStore resolves a store URI:
//
//	file:///abs/dir, file://./rel/dir or a plain path
//	s3://bucket/prefix
//	minio://host:port/bucket/prefix?secure=true
//
// MinIO credentials come from MINIO_ACCESS_KEY and MINIO_SECRET_KEY.
func openStore(ctx context.Context, uri string, opts storeOptions) (blobstore.BlobStore, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return blobstore.NewLocalStore(filepath.Clean(uri)), nil
	}

	switch scheme {
	case "file":
		if rest == "" {
			return nil, fmt.Errorf("store %q: empty path", uri)
		}
		return blobstore.NewLocalStore(filepath.Clean(filepath.FromSlash(rest))), nil
	case "s3":
		bucket, prefix := splitBucket(rest)
		if bucket == "" {
			return nil, fmt.Errorf("store %q: missing bucket", uri)
		}
		s3Opts := []s3.Option{s3.WithPrefix(prefix)}
		if opts.s3Region != "" {
			s3Opts = append(s3Opts, s3.WithRegion(opts.s3Region))
		}
		if opts.s3Endpoint != "" {
			s3Opts = append(s3Opts, s3.WithEndpoint(opts.s3Endpoint))
		}
		st, err := s3.New(ctx, bucket, s3Opts...)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "minio":
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("store %q: %w", uri, err)
		}
		bucket, prefix := splitBucket(strings.TrimPrefix(u.Path, "/"))
		if u.Host == "" || bucket == "" {
			return nil, fmt.Errorf("store %q: want minio://host:port/bucket[/prefix]", uri)
		}
		secure, _ := strconv.ParseBool(u.Query().Get("secure"))
		st, err := minio.New(u.Host, os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), bucket, prefix, secure)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("store %q: unsupported scheme %q", uri, scheme)
	}
}

func splitBucket(s string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(s, "/")
	return bucket, prefix
}

// parseBytes parses sizes such as "0", "4096", "64MiB" or "1GB".
func parseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}
	return int64(n), nil
}
