// Package registry keeps the per-identity index of uploaded files.
//
// Each identity owns one partition: the ordered list of its FileRecords.
// Mutations are copy-on-write. The new list is persisted first and only then
// becomes the in-memory view, so a failed save leaves both unchanged.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/state"
)

// ErrDuplicateRecord is returned when a record ID is already present.
var ErrDuplicateRecord = errors.New("duplicate record id")

// Registry is the file index. It is safe for concurrent use; writes are
// serialized.
type Registry struct {
	store  state.Store
	logger *events.Logger

	mu    sync.Mutex
	views map[string][]models.FileRecord
}

// New creates a registry persisted through store.
func New(store state.Store, logger *events.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.WithField("component", "registry"),
		views:  make(map[string][]models.FileRecord),
	}
}

// Load reads the partition for owner into memory and returns its size. A
// missing partition loads as empty.
func (r *Registry) Load(ctx context.Context, owner string) (int, error) {
	records, err := r.List(ctx, owner)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Add appends record to its owner's partition.
func (r *Registry) Add(ctx context.Context, record models.FileRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	owner, err := models.NormalizeIdentity(record.Owner)
	if err != nil {
		return err
	}
	record.Owner = owner

	err = r.mutate(ctx, owner, "add", func(records []models.FileRecord) ([]models.FileRecord, error) {
		for i := range records {
			if records[i].ID == record.ID {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateRecord, record.ID)
			}
		}
		return append(records, record.Clone()), nil
	})
	if err != nil {
		return err
	}

	r.logger.WithFields(map[string]interface{}{
		"identity": owner,
		"id":       record.ID,
		"name":     record.Name,
		"cid":      record.CID,
	}).Debug("Record added")

	return nil
}

// Remove deletes the record with id. An absent id returns
// models.ErrRecordNotFound and leaves the partition untouched.
func (r *Registry) Remove(ctx context.Context, owner, id string) error {
	owner, err := models.NormalizeIdentity(owner)
	if err != nil {
		return err
	}

	err = r.mutate(ctx, owner, "remove", func(records []models.FileRecord) ([]models.FileRecord, error) {
		for i := range records {
			if records[i].ID == id {
				return append(records[:i], records[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", models.ErrRecordNotFound, id)
	})
	if err != nil {
		return err
	}

	r.logger.WithFields(map[string]interface{}{
		"identity": owner,
		"id":       id,
	}).Debug("Record removed")

	return nil
}

// List returns a copy of owner's records in insertion order.
func (r *Registry) List(ctx context.Context, owner string) ([]models.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	owner, err := models.NormalizeIdentity(owner)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.view(owner)
	if err != nil {
		return nil, err
	}
	return models.CloneRecords(records), nil
}

// Get returns one record by id.
func (r *Registry) Get(ctx context.Context, owner, id string) (models.FileRecord, error) {
	records, err := r.List(ctx, owner)
	if err != nil {
		return models.FileRecord{}, err
	}

	for _, record := range records {
		if record.ID == id {
			return record, nil
		}
	}
	return models.FileRecord{}, fmt.Errorf("%w: %s", models.ErrRecordNotFound, id)
}

// Stats folds owner's current records.
func (r *Registry) Stats(ctx context.Context, owner string) (models.RegistryStats, error) {
	records, err := r.List(ctx, owner)
	if err != nil {
		return models.RegistryStats{}, err
	}
	return models.ComputeStats(records), nil
}

// Forget drops the in-memory view for owner. Persisted data is kept.
func (r *Registry) Forget(owner string) {
	owner, err := models.NormalizeIdentity(owner)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, owner)
}

// view returns the cached partition, loading it on first use. Callers hold mu.
func (r *Registry) view(owner string) ([]models.FileRecord, error) {
	if records, ok := r.views[owner]; ok {
		return records, nil
	}

	records, err := r.store.Load(owner)
	switch {
	case errors.Is(err, state.ErrStateNotFound):
		records = []models.FileRecord{}
	case err != nil:
		return nil, &models.RegistryError{Op: "load", Identity: owner, Err: err}
	}

	r.views[owner] = records

	r.logger.WithFields(map[string]interface{}{
		"identity": owner,
		"records":  len(records),
	}).Debug("Partition loaded")

	return records, nil
}

// mutate applies fn to a copy of owner's partition, persists the result and
// then swaps it in.
func (r *Registry) mutate(ctx context.Context, owner, op string, fn func([]models.FileRecord) ([]models.FileRecord, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	unlock, err := r.store.Lock(owner)
	if err != nil {
		return &models.RegistryError{Op: op, Identity: owner, Err: err}
	}
	defer unlock()

	current, err := r.view(owner)
	if err != nil {
		return err
	}

	next, err := fn(models.CloneRecords(current))
	if err != nil {
		return err
	}

	if err := r.store.Save(owner, next); err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"identity": owner,
			"op":       op,
		}).Error("Failed to persist registry")
		return &models.RegistryError{Op: op, Identity: owner, Err: err}
	}

	r.views[owner] = next
	return nil
}
