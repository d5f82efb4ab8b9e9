package models

import "time"

// RegistryStats summarises a registry partition. It is never stored; call
// ComputeStats over the current records instead.
type RegistryStats struct {
	TotalFiles     int        `json:"total_files"`
	TotalSize      int64      `json:"total_size"`
	EncryptedFiles int        `json:"encrypted_files"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
}

// ComputeStats folds a record list into its statistics.
func ComputeStats(records []FileRecord) RegistryStats {
	var stats RegistryStats
	for i := range records {
		r := &records[i]
		stats.TotalFiles++
		stats.TotalSize += r.Size
		if r.Encrypted {
			stats.EncryptedFiles++
		}
		if stats.LastActivity == nil || r.CreatedAt.After(*stats.LastActivity) {
			ts := r.CreatedAt
			stats.LastActivity = &ts
		}
	}
	return stats
}
