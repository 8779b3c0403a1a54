package storage

import (
	"bytes"
	"io"
	"net/http"

	"github.com/mitchellh/goamz/aws"
	"github.com/mitchellh/goamz/s3"
	"github.com/pkg/errors"

	"github.com/nlowe/bkarchive/util"
)

const contentType = "application/octet-stream"
const defaultACL = s3.Private

// S3Connection stores decoded blobs in a private S3 bucket, for users who
// want attachments/avatars/stickers uploaded straight to a bucket instead of
// written to the local filesystem.
type S3Connection struct {
	client *s3.S3
	bucket *s3.Bucket
}

// NewS3Connection connects to S3 in the given region using the supplied
// credentials. If accessKey/secretKey are blank, goamz falls back to
// ENV[AWS_CREDENTIAL_FILE] (default $HOME/.aws/credentials) or
// ENV[AWS_ACCESS_KEY]/ENV[AWS_SECRET_KEY].
func NewS3Connection(region, bucket, accessKey, secretKey string) (*S3Connection, error) {
	auth, err := aws.GetAuth(accessKey, secretKey)
	if err != nil {
		return nil, errors.Wrap(err, "storage: s3 auth")
	}
	client := s3.New(auth, aws.Regions[region])
	return &S3Connection{client: client, bucket: client.Bucket(bucket)}, nil
}

func (c *S3Connection) Exists() (bool, error) {
	resp, err := c.client.ListBuckets()
	if err != nil {
		return false, errors.Wrap(err, "storage: list buckets")
	}
	for _, b := range resp.Buckets {
		if c.bucket.Name == b.Name {
			return true, nil
		}
	}
	return false, nil
}

func (c *S3Connection) Create() error {
	return errors.Wrap(c.bucket.PutBucket(defaultACL), "storage: create bucket")
}

// HeadError wraps a non-200 S3 HEAD response.
type HeadError struct {
	Response *http.Response
	Err      error
}

func (e *HeadError) Error() string {
	return e.Response.Proto + " " + e.Response.Status + ": " + e.Err.Error()
}

func (c *S3Connection) Size(key string) (int, error) {
	resp, err := c.bucket.Head(key)
	if err != nil {
		return 0, errors.Wrapf(err, "storage: head %s", key)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &HeadError{Response: resp, Err: errors.New("failed HEAD request")}
	}
	if resp.ContentLength < 0 {
		return 0, &HeadError{Response: resp, Err: errors.New("unknown content length")}
	}
	return int(resp.ContentLength), nil
}

func (c *S3Connection) GetReader(key string) (io.Reader, error) {
	rc, err := c.bucket.GetReader(key)
	if err != nil {
		if rc != nil {
			rc.Close()
		}
		return nil, errors.Wrapf(err, "storage: get %s", key)
	}
	return &util.AutoCloseReader{RC: rc}, nil
}

func (c *S3Connection) PutReader(key string, r io.Reader) (length int, err error) {
	// goamz's PutReader requires a known content length up front, so we
	// buffer the (already gzip-compressed) blob in memory before upload.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return 0, errors.Wrapf(err, "storage: buffer %s", key)
	}
	if err := c.bucket.PutReader(key, &buf, n, contentType, defaultACL); err != nil {
		return 0, errors.Wrapf(err, "storage: put %s", key)
	}
	return int(n), nil
}

func (c *S3Connection) IsNotExist(err error) bool {
	if e, ok := errors.Cause(err).(*s3.Error); ok {
		return e.Code == "NoSuchKey"
	}
	return false
}
