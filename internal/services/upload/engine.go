package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheMichaelB/blockbox/internal/content"
	"github.com/TheMichaelB/blockbox/internal/crypto"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/registry"
	"github.com/TheMichaelB/blockbox/internal/transport"
)

// ErrUploadInProgress is returned when a batch is already running.
var ErrUploadInProgress = errors.New("upload already in progress")

// Engine moves files through encrypt, put and record.
type Engine struct {
	crypto   crypto.Provider
	store    content.Store
	registry *registry.Registry
	logger   *events.Logger

	// Configuration
	maxConcurrent int
	retryAttempts int
	retryDelay    time.Duration
	maxFileSize   int64
	inlinePayload bool
	now           func() time.Time

	// Progress tracking
	progress atomic.Value // *Progress
	events   chan Event

	mu           sync.Mutex
	uploading    bool
	cancelFn     context.CancelFunc
	eventsClosed bool
}

// Progress tracks a running batch.
type Progress struct {
	Phase          string
	TotalFiles     int
	ProcessedFiles int
	FailedFiles    int
	CurrentFile    string
	BytesUploaded  int64
	StartTime      time.Time
}

// Event reports batch activity.
type Event struct {
	Type      EventType
	Timestamp time.Time
	File      string
	Record    *models.FileRecord
	Phase     string
	Error     error
	Progress  *Progress
}

// EventType defines upload event types.
type EventType string

const (
	EventStarted      EventType = "started"
	EventFileStarted  EventType = "file_started"
	EventFileComplete EventType = "file_complete"
	EventFileError    EventType = "file_error"
	EventCompleted    EventType = "completed"
)

// Config contains upload configuration.
type Config struct {
	MaxConcurrent int           // 1 processes files strictly in order
	RetryAttempts int           // extra put attempts on transient store errors
	RetryDelay    time.Duration // first backoff delay, doubled per attempt
	MaxFileSize   int64         // 0 disables the limit
	InlinePayload bool          // keep ciphertext in the record
}

// NewEngine creates an upload engine.
func NewEngine(
	provider crypto.Provider,
	store content.Store,
	reg *registry.Registry,
	config *Config,
	logger *events.Logger,
) *Engine {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &Engine{
		crypto:        provider,
		store:         store,
		registry:      reg,
		logger:        logger.WithField("component", "upload_engine"),
		maxConcurrent: maxConcurrent,
		retryAttempts: config.RetryAttempts,
		retryDelay:    config.RetryDelay,
		maxFileSize:   config.MaxFileSize,
		inlinePayload: config.InlinePayload,
		now:           time.Now,
		events:        make(chan Event, 100),
	}
}

// SetClock overrides the record timestamp source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Events returns the event channel of the current or last batch. It is
// closed when the batch ends.
func (e *Engine) Events() <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events
}

// GetProgress returns current progress.
func (e *Engine) GetProgress() *Progress {
	if p := e.progress.Load(); p != nil {
		return p.(*Progress)
	}
	return nil
}

// Cancel stops a running batch after the file in flight.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelFn != nil {
		e.logger.Info("Cancelling upload")
		e.cancelFn()
	}
}

// Upload encrypts, stores and records each file for owner. Per-file failures
// are reported in the summary and never stop the batch; the returned error is
// reserved for failures that prevent the batch from starting.
func (e *Engine) Upload(ctx context.Context, owner string, key []byte, files []models.File) (*models.BatchSummary, error) {
	owner, err := models.NormalizeIdentity(owner)
	if err != nil {
		return nil, err
	}
	if err := crypto.ValidateKeySize(key); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.uploading {
		e.mu.Unlock()
		return nil, ErrUploadInProgress
	}
	e.uploading = true

	if e.eventsClosed {
		e.events = make(chan Event, 100)
		e.eventsClosed = false
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancelFn = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.uploading = false
		e.cancelFn = nil
		if !e.eventsClosed {
			close(e.events)
			e.eventsClosed = true
		}
		e.mu.Unlock()
	}()

	progress := &Progress{
		Phase:      models.PhaseIdle,
		TotalFiles: len(files),
		StartTime:  time.Now(),
	}
	e.progress.Store(progress)

	e.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"identity":       owner,
		"files":          len(files),
		"max_concurrent": e.maxConcurrent,
	}).Info("Starting upload")

	e.emitEvent(Event{
		Type:      EventStarted,
		Timestamp: time.Now(),
		Progress:  progress,
	})

	results := make([]models.UploadResult, len(files))
	if e.maxConcurrent == 1 {
		e.runSequential(ctx, owner, key, files, results)
	} else {
		e.runConcurrent(ctx, owner, key, files, results)
	}

	summary := &models.BatchSummary{
		Results:  results,
		Duration: time.Since(progress.StartTime),
	}
	for _, r := range results {
		if r.OK() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	final := *e.GetProgress()
	final.Phase = models.PhaseIdle
	final.CurrentFile = ""
	e.progress.Store(&final)

	e.emitEvent(Event{
		Type:      EventCompleted,
		Timestamp: time.Now(),
		Progress:  &final,
	})

	e.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"identity":  owner,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"duration":  summary.Duration,
	}).Info("Upload completed")

	return summary, nil
}

func (e *Engine) runSequential(ctx context.Context, owner string, key []byte, files []models.File, results []models.UploadResult) {
	for i := range files {
		if err := ctx.Err(); err != nil {
			e.skipRemaining(files[i:], results[i:], err)
			return
		}
		results[i] = e.processFile(ctx, owner, key, &files[i])
	}
}

// runConcurrent encrypts and puts up to maxConcurrent files at once. Registry
// adds are serialized by the registry itself.
func (e *Engine) runConcurrent(ctx context.Context, owner string, key []byte, files []models.File, results []models.UploadResult) {
	sem := make(chan struct{}, e.maxConcurrent)
	var wg sync.WaitGroup

	for i := range files {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if err := ctx.Err(); err != nil {
			wg.Wait()
			e.skipRemaining(files[i:], results[i:], err)
			return
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.processFile(ctx, owner, key, &files[i])
		}(i)
	}

	wg.Wait()
}

func (e *Engine) skipRemaining(files []models.File, results []models.UploadResult, err error) {
	for i := range files {
		results[i] = models.UploadResult{
			Name:  files[i].Name,
			Phase: models.PhaseIdle,
			Err:   err,
		}
		e.fileFailed(files[i].Name, models.PhaseIdle, err)
	}
}

// processFile runs one file to completion. Cancellation of ctx does not
// interrupt a file once started.
func (e *Engine) processFile(ctx context.Context, owner string, key []byte, file *models.File) models.UploadResult {
	ctx = context.WithoutCancel(ctx)
	result := models.UploadResult{Name: file.Name}

	e.updateProgress(func(p *Progress) { p.CurrentFile = file.Name; p.Phase = models.PhaseEncrypting })
	e.emitEvent(Event{Type: EventFileStarted, Timestamp: time.Now(), File: file.Name})

	log := e.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"identity": owner,
		"file":     file.Name,
		"size":     file.Size(),
	})

	fail := func(phase string, err error) models.UploadResult {
		log.WithError(err).WithField("phase", phase).Warn("File upload failed")
		result.Phase = phase
		result.Err = err
		e.fileFailed(file.Name, phase, err)
		return result
	}

	// Encrypting
	if strings.TrimSpace(file.Name) == "" {
		return fail(models.PhaseEncrypting, &models.EncryptError{
			Reason: "missing file name",
			Err:    models.ErrMissingName,
		})
	}
	if e.maxFileSize > 0 && file.Size() > e.maxFileSize {
		return fail(models.PhaseEncrypting, &models.EncryptError{
			Name:   file.Name,
			Reason: fmt.Sprintf("%d bytes exceeds limit of %d", file.Size(), e.maxFileSize),
			Err:    models.ErrFileTooLarge,
		})
	}

	encrypted, err := e.crypto.EncryptFile(file, key)
	if err != nil {
		return fail(models.PhaseEncrypting, err)
	}

	// Uploading
	e.updateProgress(func(p *Progress) { p.Phase = models.PhaseUploading })
	cid, err := e.putWithRetry(ctx, encrypted.Ciphertext, content.Metadata{
		Name:     encrypted.Name,
		MimeType: encrypted.MimeType,
		Size:     int64(len(encrypted.Ciphertext)),
		Owner:    owner,
	})
	if err != nil {
		return fail(models.PhaseUploading, err)
	}

	// Recording
	e.updateProgress(func(p *Progress) { p.Phase = models.PhaseRecording })
	now := e.now()
	record := models.FileRecord{
		ID:        models.NewRecordID(now),
		Name:      encrypted.Name,
		Size:      encrypted.Size,
		MimeType:  encrypted.MimeType,
		CID:       cid,
		Encrypted: true,
		CreatedAt: now.UTC(),
		Owner:     owner,
		Checksum:  encrypted.Checksum,
		Algorithm: encrypted.Algorithm,
	}
	if e.inlinePayload {
		record.Payload = encrypted.Ciphertext
	}

	if err := e.registry.Add(ctx, record); err != nil {
		if unpinErr := e.store.Unpin(ctx, cid); unpinErr != nil {
			log.WithError(unpinErr).WithField("cid", cid).Warn("Could not unpin unrecorded blob")
		}
		return fail(models.PhaseRecording, err)
	}

	result.Record = &record

	e.updateProgress(func(p *Progress) {
		p.ProcessedFiles++
		p.BytesUploaded += int64(len(encrypted.Ciphertext))
	})
	e.emitEvent(Event{
		Type:      EventFileComplete,
		Timestamp: time.Now(),
		File:      file.Name,
		Record:    &record,
		Progress:  e.GetProgress(),
	})

	log.WithFields(map[string]interface{}{
		"id":  record.ID,
		"cid": cid,
	}).Info("File uploaded")

	return result
}

// putWithRetry retries transient store failures with exponential backoff.
func (e *Engine) putWithRetry(ctx context.Context, payload []byte, meta content.Metadata) (string, error) {
	policy := transport.Backoff{
		Retries:   e.retryAttempts,
		Delay:     e.retryDelay,
		Retryable: models.IsTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
				"file":    meta.Name,
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("Retrying put")
		},
	}

	var cid string
	err := policy.Do(ctx, func() error {
		var err error
		cid, err = e.store.Put(ctx, payload, meta)
		return err
	})
	if err != nil {
		return "", err
	}
	return cid, nil
}

func (e *Engine) fileFailed(name, phase string, err error) {
	e.updateProgress(func(p *Progress) { p.FailedFiles++ })
	e.emitEvent(Event{
		Type:      EventFileError,
		Timestamp: time.Now(),
		File:      name,
		Phase:     phase,
		Error:     err,
		Progress:  e.GetProgress(),
	})
}

// updateProgress stores a modified copy of the current progress.
func (e *Engine) updateProgress(fn func(*Progress)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.GetProgress()
	if current == nil {
		return
	}
	next := *current
	fn(&next)
	e.progress.Store(&next)
}

func (e *Engine) emitEvent(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.eventsClosed {
		return
	}

	select {
	case e.events <- event:
	default:
		// Channel full, drop event
		e.logger.Debug("Event channel full, dropping event")
	}
}
