package models

import "time"

// Upload phases, in the order a file moves through them.
const (
	PhaseIdle       = "idle"
	PhaseEncrypting = "encrypting"
	PhaseUploading  = "uploading"
	PhaseRecording  = "recording"
)

// UploadResult is the outcome for one file of a batch.
type UploadResult struct {
	Name   string
	Record *FileRecord
	Phase  string // phase that failed; empty on success
	Err    error
}

// OK reports whether the file was stored and recorded.
func (r UploadResult) OK() bool {
	return r.Err == nil && r.Record != nil
}

// BatchSummary aggregates a batch upload.
type BatchSummary struct {
	Succeeded int
	Failed    int
	Results   []UploadResult
	Duration  time.Duration
}

// Records returns the records created by the batch in input order.
func (s *BatchSummary) Records() []FileRecord {
	var out []FileRecord
	for _, r := range s.Results {
		if r.OK() {
			out = append(out, *r.Record)
		}
	}
	return out
}

// Errors returns the per-file failures keyed by file name.
func (s *BatchSummary) Errors() map[string]error {
	out := make(map[string]error)
	for _, r := range s.Results {
		if r.Err != nil {
			out[r.Name] = r.Err
		}
	}
	return out
}
