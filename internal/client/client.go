package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/TheMichaelB/blockbox/internal/adapters"
	"github.com/TheMichaelB/blockbox/internal/config"
	"github.com/TheMichaelB/blockbox/internal/content"
	"github.com/TheMichaelB/blockbox/internal/creds"
	"github.com/TheMichaelB/blockbox/internal/crypto"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/registry"
	"github.com/TheMichaelB/blockbox/internal/services/retrieval"
	"github.com/TheMichaelB/blockbox/internal/services/upload"
	"github.com/TheMichaelB/blockbox/internal/state"
	"github.com/TheMichaelB/blockbox/internal/storage"
	"github.com/TheMichaelB/blockbox/internal/transport"
)

// Client is a wallet session over the upload, retrieval and registry
// services. At most one identity is connected at a time.
type Client struct {
	Uploader  *upload.Engine
	Retrieval *retrieval.Service
	Registry  *registry.Registry

	config    *config.Config
	logger    *events.Logger
	crypto    crypto.Provider
	content   content.Store
	state     state.Store
	exports   storage.BlobStore
	transport transport.Transport

	mu       sync.RWMutex
	identity string
	key      []byte
}

// Services bundles the collaborators a Client is built from.
type Services struct {
	Crypto  crypto.Provider
	Content content.Store
	State   state.Store
	Exports storage.BlobStore
}

// New creates a client with every service built from configuration.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Content.Timeout)
	defer cancel()

	contentStore, tr, err := OpenContentStore(ctx, &cfg.Content, logger)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}

	stateStore, err := OpenStateStore(ctx, &cfg.Registry, logger)
	if err != nil {
		if tr != nil {
			_ = tr.Close()
		}
		return nil, fmt.Errorf("open registry store: %w", err)
	}

	exportDir := cfg.Storage.ExportDir
	if exportDir == "" {
		exportDir = "."
	}
	exports, err := storage.NewLocalStore(exportDir, logger)
	if err != nil {
		_ = stateStore.Close()
		if tr != nil {
			_ = tr.Close()
		}
		return nil, fmt.Errorf("open export directory: %w", err)
	}

	c := NewWithServices(cfg, Services{
		Crypto:  crypto.NewProvider(),
		Content: contentStore,
		State:   stateStore,
		Exports: exports,
	}, logger)
	c.transport = tr
	return c, nil
}

// NewWithServices wires a client around existing collaborators.
func NewWithServices(cfg *config.Config, svc Services, logger *events.Logger) *Client {
	reg := registry.New(svc.State, logger)

	engine := upload.NewEngine(svc.Crypto, svc.Content, reg, &upload.Config{
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		RetryAttempts: cfg.Upload.RetryAttempts,
		RetryDelay:    cfg.Upload.RetryDelay,
		MaxFileSize:   cfg.Upload.MaxFileSize,
		InlinePayload: cfg.Upload.InlinePayload,
	}, logger)

	return &Client{
		Uploader:  engine,
		Retrieval: retrieval.NewService(svc.Crypto, svc.Content, logger),
		Registry:  reg,
		config:    cfg,
		logger:    logger.WithField("component", "client"),
		crypto:    svc.Crypto,
		content:   svc.Content,
		state:     svc.State,
		exports:   svc.Exports,
	}
}

// OpenContentStore builds the configured content store. The transport is
// returned for the ipfs backend so the caller can close it.
func OpenContentStore(ctx context.Context, cfg *config.ContentConfig, logger *events.Logger) (content.Store, transport.Transport, error) {
	switch cfg.Backend {
	case config.ContentLocal:
		store, err := content.NewLocalStore(cfg.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case config.ContentIPFS:
		tr := transport.NewHTTPClient(cfg, logger)
		token, err := creds.NewResolver(cfg).Token(ctx)
		switch {
		case err == nil:
			tr.SetToken(token)
		case errors.Is(err, creds.ErrNoToken):
			logger.Debug("No content API token configured")
		default:
			_ = tr.Close()
			return nil, nil, fmt.Errorf("resolve API token: %w", err)
		}
		return content.NewIPFSStore(tr, cfg.Timeout, logger), tr, nil

	case config.ContentS3:
		store, err := adapters.NewS3StoreFromConfig(ctx, cfg.Bucket, cfg.Prefix, cfg.Region, cfg.Timeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: content backend %q", models.ErrInvalidConfig, cfg.Backend)
	}
}

// OpenStateStore builds the configured registry persistence backend.
func OpenStateStore(ctx context.Context, cfg *config.RegistryConfig, logger *events.Logger) (state.Store, error) {
	switch cfg.Backend {
	case config.RegistryJSON, config.RegistrySQLite, config.RegistryBolt:
		if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}

	var (
		store state.Store
		err   error
	)

	switch cfg.Backend {
	case config.RegistryJSON:
		store, err = state.NewJSONStore(cfg.Dir, logger)
	case config.RegistrySQLite:
		store, err = state.NewSQLiteStore(filepath.Join(cfg.Dir, "registry.db"), logger)
	case config.RegistryBolt:
		store, err = state.NewBoltStore(filepath.Join(cfg.Dir, "registry.bolt"), logger)
	case config.RegistryDynamoDB:
		store, err = adapters.NewDynamoDBStoreFromConfig(ctx, cfg.Table, cfg.Region, logger)
	case config.RegistryS3:
		store, err = adapters.NewS3StateStoreFromConfig(ctx, cfg.Bucket, cfg.Prefix, cfg.Region, logger)
	default:
		return nil, fmt.Errorf("%w: registry backend %q", models.ErrInvalidConfig, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Connect derives the key for address and loads its registry partition.
// Connecting while another identity is connected disconnects it first.
func (c *Client) Connect(ctx context.Context, address string) error {
	identity, err := models.NormalizeIdentity(address)
	if err != nil {
		return err
	}

	key, err := c.crypto.DeriveKey(identity)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}

	count, err := c.Registry.Load(ctx, identity)
	if err != nil {
		zero(key)
		return err
	}

	c.mu.Lock()
	switch c.identity {
	case "":
	case identity:
		zero(c.key)
	default:
		c.disconnectLocked()
	}
	c.identity = identity
	c.key = key
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"identity":    identity,
		"fingerprint": crypto.KeyFingerprint(key),
		"records":     count,
	}).Info("Wallet connected")

	return nil
}

// Disconnect drops the key and the cached partition. Persisted records are
// kept.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == "" {
		return
	}
	c.logger.WithField("identity", c.identity).Info("Wallet disconnected")
	c.disconnectLocked()
}

func (c *Client) disconnectLocked() {
	zero(c.key)
	c.key = nil
	c.Registry.Forget(c.identity)
	c.identity = ""
}

// Identity returns the connected identity, or "" when disconnected.
func (c *Client) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Connected reports whether a wallet is connected.
func (c *Client) Connected() bool {
	return c.Identity() != ""
}

// KeyFingerprint returns a short fingerprint of the session key.
func (c *Client) KeyFingerprint() (string, error) {
	_, key, err := c.session()
	if err != nil {
		return "", err
	}
	return crypto.KeyFingerprint(key), nil
}

// Upload encrypts and stores files for the connected identity.
func (c *Client) Upload(ctx context.Context, files []models.File) (*models.BatchSummary, error) {
	identity, key, err := c.session()
	if err != nil {
		return nil, err
	}
	defer zero(key)
	return c.Uploader.Upload(events.WithIdentity(ctx, identity), identity, key, files)
}

// Download returns the decrypted contents of record id.
func (c *Client) Download(ctx context.Context, id string) (*models.DecryptedFile, error) {
	identity, key, err := c.session()
	if err != nil {
		return nil, err
	}
	defer zero(key)
	ctx = events.WithIdentity(ctx, identity)

	record, err := c.Registry.Get(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	return c.Retrieval.Download(ctx, &record, key)
}

// Export downloads record id into the export directory and returns the path
// written relative to it.
func (c *Client) Export(ctx context.Context, id string) (string, error) {
	return c.ExportTo(ctx, id, c.exports)
}

// ExportTo downloads record id into sink.
func (c *Client) ExportTo(ctx context.Context, id string, sink storage.BlobStore) (string, error) {
	identity, key, err := c.session()
	if err != nil {
		return "", err
	}
	defer zero(key)
	ctx = events.WithIdentity(ctx, identity)

	record, err := c.Registry.Get(ctx, identity, id)
	if err != nil {
		return "", err
	}
	return c.Retrieval.Export(ctx, &record, key, sink)
}

// Delete removes record id from the registry and, when unpin is set, releases
// its content. Content that is already gone is not an error.
func (c *Client) Delete(ctx context.Context, id string, unpin bool) error {
	identity, _, err := c.session()
	if err != nil {
		return err
	}
	ctx = events.WithIdentity(ctx, identity)

	record, err := c.Registry.Get(ctx, identity, id)
	if err != nil {
		return err
	}

	if err := c.Registry.Remove(ctx, identity, id); err != nil {
		return err
	}

	if !unpin || record.CID == "" {
		return nil
	}

	log := c.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"id":  id,
		"cid": record.CID,
	})

	if err := c.content.Unpin(ctx, record.CID); err != nil {
		if models.IsNotFound(err) {
			log.Warn("Content already unpinned")
			return nil
		}
		return fmt.Errorf("record removed but unpin failed: %w", err)
	}

	log.Debug("Content unpinned")
	return nil
}

// List returns the connected identity's records in insertion order.
func (c *Client) List(ctx context.Context) ([]models.FileRecord, error) {
	identity, _, err := c.session()
	if err != nil {
		return nil, err
	}
	return c.Registry.List(ctx, identity)
}

// StoredMetadata returns the metadata the content store kept for record id
// at upload time. Stores that keep none return content.ErrNoMetadata.
func (c *Client) StoredMetadata(ctx context.Context, id string) (content.Metadata, error) {
	identity, key, err := c.session()
	if err != nil {
		return content.Metadata{}, err
	}
	zero(key)

	record, err := c.Registry.Get(events.WithIdentity(ctx, identity), identity, id)
	if err != nil {
		return content.Metadata{}, err
	}
	if record.CID == "" {
		return content.Metadata{}, content.ErrNoMetadata
	}
	return content.ReadMetadata(ctx, c.content, record.CID)
}

// Stats returns aggregate statistics for the connected identity.
func (c *Client) Stats(ctx context.Context) (models.RegistryStats, error) {
	identity, _, err := c.session()
	if err != nil {
		return models.RegistryStats{}, err
	}
	return c.Registry.Stats(ctx, identity)
}

// Close disconnects and releases the stores.
func (c *Client) Close() error {
	c.Disconnect()

	var errs []error
	if c.state != nil {
		errs = append(errs, c.state.Close())
	}
	if c.transport != nil {
		errs = append(errs, c.transport.Close())
	}
	return errors.Join(errs...)
}

// session returns the identity and a copy of the key.
func (c *Client) session() (string, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.identity == "" {
		return "", nil, models.ErrNotConnected
	}
	key := make([]byte, len(c.key))
	copy(key, c.key)
	return c.identity, key, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
