// Package s3store implements remote.Client on Amazon S3 or any S3-compatible
// object store.
//
// S3 has no folders and no append, and it has no upload sessions in this
// client: every object is written with a single PutObject.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/flashbackbot/filestore/internal/remote"
	"github.com/flashbackbot/filestore/internal/storage"
)

// API abstracts the S3 operations used by [Client].
// The [s3.Client] type satisfies this interface.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Client maps storage paths to keys in one bucket.
type Client struct {
	api    API
	bucket string
}

// New creates a Client for bucket.
func New(api API, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

func (c *Client) Name() string { return "s3" }

func key(path string) string { return strings.TrimPrefix(path, "/") }

func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key(path)),
	})
	if err != nil {
		return nil, classify(err, false)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classify(err, false)
	}
	return data, nil
}

// Put uploads data. PutCreate sends If-None-Match so an existing key is
// left untouched.
func (c *Client) Put(ctx context.Context, path string, data []byte, mode remote.PutMode) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key(path)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if mode == remote.PutCreate {
		in.IfNoneMatch = aws.String("*")
	}
	if _, err := c.api.PutObject(ctx, in); err != nil {
		return classify(err, true)
	}
	return nil
}

// Delete removes the object. S3 reports success for missing keys, so the
// object is checked first to keep the not-found contract.
func (c *Client) Delete(ctx context.Context, path string) error {
	if _, err := c.Stat(ctx, path); err != nil {
		return err
	}
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key(path)),
	})
	return classify(err, false)
}

func (c *Client) Stat(ctx context.Context, path string) (int64, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key(path)),
	})
	if err != nil {
		return 0, classify(err, false)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Mkdir is not supported: S3 has a flat key space.
func (c *Client) Mkdir(context.Context, string) error {
	return fmt.Errorf("%w: s3 has no directories", storage.ErrUnsupported)
}

// List walks every key under prefix.
func (c *Client) List(ctx context.Context, prefix string) iter.Seq2[remote.ObjectInfo, error] {
	return func(yield func(remote.ObjectInfo, error) bool) {
		in := &s3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
		if p := key(prefix); p != "" {
			in.Prefix = aws.String(p)
		}
		pages := s3.NewListObjectsV2Paginator(c.api, in)
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				yield(remote.ObjectInfo{}, classify(err, false))
				return
			}
			for _, obj := range page.Contents {
				k := aws.ToString(obj.Key)
				if strings.HasSuffix(k, "/") {
					continue
				}
				info := remote.ObjectInfo{
					Path:    k,
					Size:    aws.ToInt64(obj.Size),
					ModTime: aws.ToTime(obj.LastModified),
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

// classify maps SDK errors onto the storage taxonomy.
func classify(err error, upload bool) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		if upload {
			return fmt.Errorf("%w: %v", storage.ErrUploadTimeout, err)
		}
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: %v", storage.ErrNotFound, err)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %v", storage.ErrAlreadyExists, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "AccessDenied":
			return fmt.Errorf("%w: %v", storage.ErrCredential, err)
		case "SlowDown", "RequestTimeout", "ServiceUnavailable", "InternalError":
			return fmt.Errorf("%w: %v", storage.ErrTransient, err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return fmt.Errorf("%w: %v", storage.ErrTransient, err)
		}
	}
	return err
}

var _ remote.Client = (*Client)(nil)
