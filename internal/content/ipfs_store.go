package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/transport"
)

// Kubo RPC endpoints.
const (
	pathAdd   = "/api/v0/add"
	pathCat   = "/api/v0/cat"
	pathPinLs = "/api/v0/pin/ls"
	pathPinRm = "/api/v0/pin/rm"
)

// IPFSStore stores payloads on an IPFS node through its RPC API.
type IPFSStore struct {
	transport transport.Transport
	timeout   time.Duration
	logger    *events.Logger
}

var _ Store = (*IPFSStore)(nil)

// NewIPFSStore creates a store over an RPC transport. A zero timeout uses
// DefaultTimeout.
func NewIPFSStore(t transport.Transport, timeout time.Duration, logger *events.Logger) *IPFSStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &IPFSStore{
		transport: t,
		timeout:   timeout,
		logger:    logger.WithField("component", "content_ipfs"),
	}
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

type pinLsResponse struct {
	Keys map[string]struct {
		Type string `json:"Type"`
	} `json:"Keys"`
}

type pinRmResponse struct {
	Pins []string `json:"Pins"`
}

// Put adds and pins payload. The node computes the CID; it matches
// ComputeCID for payloads that fit a single raw leaf. Put makes one HTTP
// attempt; a transient StoreError is left for the caller to retry.
func (s *IPFSStore) Put(ctx context.Context, payload []byte, meta Metadata) (string, error) {
	if len(payload) == 0 {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", Err: models.ErrEmptyPayload}
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("pin", "true")
	query.Set("cid-version", "1")
	query.Set("raw-leaves", "true")
	query.Set("quieter", "true")

	name := meta.Name
	if name == "" {
		name = "blob"
	}

	body, err := s.transport.Upload(transport.SingleAttempt(ctx), pathAdd, query, name, payload)
	if err != nil {
		return "", classify("put", "", err)
	}

	var resp addResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &models.StoreError{Kind: models.StoreErrInvalid, Op: "put", Err: fmt.Errorf("decode add response: %w", err)}
	}
	if _, err := ParseCID(resp.Hash); err != nil {
		return "", err
	}

	s.logger.WithFields(map[string]interface{}{
		"cid":  resp.Hash,
		"size": len(payload),
	}).Debug("Pinned blob")

	return resp.Hash, nil
}

// Get fetches the payload for id.
func (s *IPFSStore) Get(ctx context.Context, id string) ([]byte, error) {
	if _, err := ParseCID(id); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.transport.Call(ctx, pathCat, url.Values{"arg": {id}})
	if err != nil {
		return nil, classify("get", id, err)
	}

	if err := VerifyCID(id, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Exists reports whether id is pinned on the node.
func (s *IPFSStore) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := ParseCID(id); err != nil {
		return false, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.transport.Call(ctx, pathPinLs, url.Values{"arg": {id}, "type": {"recursive"}})
	if err != nil {
		storeErr := classify("exists", id, err)
		if models.IsNotFound(storeErr) {
			return false, nil
		}
		return false, storeErr
	}

	var resp pinLsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, &models.StoreError{Kind: models.StoreErrInvalid, Op: "exists", CID: id, Err: err}
	}
	return len(resp.Keys) > 0, nil
}

// Unpin removes the recursive pin for id.
func (s *IPFSStore) Unpin(ctx context.Context, id string) error {
	if _, err := ParseCID(id); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.transport.Call(ctx, pathPinRm, url.Values{"arg": {id}})
	if err != nil {
		return classify("unpin", id, err)
	}

	var resp pinRmResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &models.StoreError{Kind: models.StoreErrInvalid, Op: "unpin", CID: id, Err: err}
	}

	s.logger.WithField("cid", id).Debug("Unpinned blob")
	return nil
}

// classify maps transport failures to store error kinds.
func classify(op, id string, err error) error {
	kind := models.StoreErrNetwork

	var apiErr *transport.APIError
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.NotFound():
			kind = models.StoreErrNotFound
		case apiErr.Unauthorized():
			kind = models.StoreErrAuth
		case apiErr.QuotaExceeded():
			kind = models.StoreErrQuota
		case apiErr.Temporary():
			kind = models.StoreErrNetwork
		default:
			kind = models.StoreErrInvalid
		}
	case errors.Is(err, context.Canceled), errors.Is(err, transport.ErrResponseTooLarge):
		kind = models.StoreErrInvalid
	}

	return &models.StoreError{Kind: kind, Op: op, CID: id, Err: err}
}
