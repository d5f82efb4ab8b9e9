package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/TheMichaelB/blockbox/internal/content"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
)

// S3Store is a content store keeping one object per CID.
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	timeout time.Duration
	logger  *events.Logger
}

var (
	_ content.Store          = (*S3Store)(nil)
	_ content.MetadataReader = (*S3Store)(nil)
)

// NewS3Store creates a content store over client. A zero timeout uses
// content.DefaultTimeout.
func NewS3Store(client S3API, bucket, prefix string, timeout time.Duration, logger *events.Logger) *S3Store {
	if timeout <= 0 {
		timeout = content.DefaultTimeout
	}
	return &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		timeout: timeout,
		logger:  logger.WithField("component", "s3_store"),
	}
}

// NewS3StoreFromConfig builds the S3 client from the default AWS chain.
func NewS3StoreFromConfig(ctx context.Context, bucket, prefix, region string, timeout time.Duration, logger *events.Logger) (*S3Store, error) {
	cfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewS3Store(s3.NewFromConfig(cfg), bucket, prefix, timeout, logger), nil
}

// Put uploads payload under its CID. Object metadata mirrors content.Metadata.
func (s *S3Store) Put(ctx context.Context, payload []byte, meta content.Metadata) (string, error) {
	if len(payload) == 0 {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", Err: models.ErrEmptyPayload}
	}

	id, err := content.ComputeCID(payload)
	if err != nil {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := s.buildKey(id)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"name":      meta.Name,
			"mime-type": meta.MimeType,
			"size":      strconv.FormatInt(meta.Size, 10),
			"owner":     meta.Owner,
		},
	})
	if err != nil {
		return "", s.wrap("put", id, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"object": key,
		"cid":    id,
		"size":   len(payload),
	}).Debug("Wrote blob to S3")

	return id, nil
}

// Get downloads and verifies the object for id.
func (s *S3Store) Get(ctx context.Context, id string) ([]byte, error) {
	if _, err := content.ParseCID(id); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(id)),
	})
	if err != nil {
		return nil, s.wrap("get", id, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, &models.StoreError{Kind: models.StoreErrNetwork, Op: "get", CID: id, Err: fmt.Errorf("read body: %w", err)}
	}

	if err := content.VerifyCID(id, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Exists checks for the object with a HEAD request.
func (s *S3Store) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := content.ParseCID(id); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, s.wrap("exists", id, err)
	}
	return true, nil
}

// Metadata reads the object metadata written by Put.
func (s *S3Store) Metadata(ctx context.Context, id string) (content.Metadata, error) {
	if _, err := content.ParseCID(id); err != nil {
		return content.Metadata{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(id)),
	})
	if err != nil {
		return content.Metadata{}, s.wrap("metadata", id, err)
	}

	meta := content.Metadata{
		Name:     head.Metadata["name"],
		MimeType: head.Metadata["mime-type"],
		Owner:    head.Metadata["owner"],
	}
	if raw := head.Metadata["size"]; raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return content.Metadata{}, &models.StoreError{Kind: models.StoreErrInvalid, Op: "metadata", CID: id, Err: fmt.Errorf("size %q: %w", raw, err)}
		}
		meta.Size = size
	}
	return meta, nil
}

// Unpin deletes the object. S3 deletes are idempotent, so absence is checked
// first.
func (s *S3Store) Unpin(ctx context.Context, id string) error {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &models.StoreError{Kind: models.StoreErrNotFound, Op: "unpin", CID: id, Err: fmt.Errorf("no object for cid")}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(id)),
	})
	if err != nil {
		return s.wrap("unpin", id, err)
	}

	s.logger.WithField("cid", id).Debug("Deleted blob from S3")
	return nil
}

func (s *S3Store) buildKey(id string) string {
	if s.prefix != "" {
		return path.Join(s.prefix, id)
	}
	return id
}

func (s *S3Store) wrap(op, id string, err error) error {
	return &models.StoreError{Kind: storeErrorKind(err), Op: op, CID: id, Err: fmt.Errorf("s3: %w", err)}
}
