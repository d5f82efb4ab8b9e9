package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/state"
)

// S3StateStore keeps each registry partition as a JSON object named
// <prefix>BlockBox_files_<identity>.json. Writes are conditional on the ETag
// last seen, so a concurrent writer makes Save fail instead of being
// overwritten.
type S3StateStore struct {
	client  S3API
	bucket  string
	prefix  string
	timeout time.Duration
	locks   *state.KeyedLocks
	logger  *events.Logger

	mu    sync.Mutex
	etags map[string]string
}

var _ state.Store = (*S3StateStore)(nil)

// NewS3StateStore creates a registry store over client.
func NewS3StateStore(client S3API, bucket, prefix string, logger *events.Logger) (*S3StateStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}

	if prefix == "" {
		prefix = "registry/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3StateStore{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		timeout: 30 * time.Second,
		locks:   state.NewKeyedLocks(),
		logger:  logger.WithField("component", "s3_state_store"),
		etags:   make(map[string]string),
	}, nil
}

// NewS3StateStoreFromConfig builds the S3 client from the default AWS chain.
func NewS3StateStoreFromConfig(ctx context.Context, bucket, prefix, region string, logger *events.Logger) (*S3StateStore, error) {
	cfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewS3StateStore(s3.NewFromConfig(cfg), bucket, prefix, logger)
}

func (s *S3StateStore) objectKey(identity string) string {
	return s.prefix + models.RegistryKey(identity) + ".json"
}

// Load retrieves the records for an identity.
func (s *S3StateStore) Load(identity string) ([]models.FileRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(identity)),
	})
	if err != nil {
		if isNotFound(err) {
			s.forgetETag(identity)
			return nil, state.ErrStateNotFound
		}
		return nil, fmt.Errorf("s3 get state: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	records, err := state.DecodeRecords(data)
	if err != nil {
		return nil, err
	}

	s.rememberETag(identity, aws.ToString(result.ETag))

	s.logger.WithFields(map[string]interface{}{
		"identity": identity,
		"records":  len(records),
	}).Debug("Loaded registry from S3")

	return records, nil
}

// Save replaces the records for an identity.
func (s *S3StateStore) Save(identity string, records []models.FileRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	data, err := state.EncodeRecords(records)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(identity)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"identity":       identity,
			"updated-at":     time.Now().UTC().Format(time.RFC3339),
			"schema-version": strconv.Itoa(state.CurrentSchemaVersion),
		},
	}

	if etag := s.etag(identity); etag != "" {
		input.IfMatch = aws.String(etag)
	}

	result, err := s.client.PutObject(ctx, input)
	if err != nil {
		if errorCode(err) == "PreconditionFailed" {
			s.forgetETag(identity)
			s.logger.WithField("identity", identity).Warn("Registry was modified by another writer")
			return fmt.Errorf("%w: partition modified concurrently", state.ErrStateLocked)
		}
		return fmt.Errorf("s3 put state: %w", err)
	}

	s.rememberETag(identity, aws.ToString(result.ETag))

	s.logger.WithFields(map[string]interface{}{
		"identity": identity,
		"records":  len(records),
	}).Debug("Saved registry to S3")

	return nil
}

// Reset deletes the partition object.
func (s *S3StateStore) Reset(identity string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(identity)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete state: %w", err)
	}

	s.forgetETag(identity)

	s.logger.WithField("identity", identity).Info("Reset registry in S3")
	return nil
}

// List returns every identity with a partition object under the prefix.
func (s *S3StateStore) List() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.timeout)
	defer cancel()

	var identities []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + models.RegistryKeyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}

		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			if identity, ok := models.IdentityFromRegistryKey(strings.TrimSuffix(name, ".json")); ok {
				identities = append(identities, identity)
			}
		}
	}

	return identities, nil
}

// Lock serializes writers within this process; other writers are caught by
// the conditional put.
func (s *S3StateStore) Lock(identity string) (state.UnlockFunc, error) {
	return s.locks.Lock(identity)
}

// Migrate copies every partition into target.
func (s *S3StateStore) Migrate(target state.Store) error {
	_, err := state.Migrate(s, target)
	return err
}

// Close drops cached ETags.
func (s *S3StateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etags = make(map[string]string)
	return nil
}

func (s *S3StateStore) etag(identity string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.etags[identity]
}

func (s *S3StateStore) rememberETag(identity, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if etag == "" {
		delete(s.etags, identity)
		return
	}
	s.etags[identity] = etag
}

func (s *S3StateStore) forgetETag(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.etags, identity)
}
