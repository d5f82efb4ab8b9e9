package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/blockbox/internal/models"
)

func TestComputeStats(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		stats := models.ComputeStats(nil)
		assert.Equal(t, 0, stats.TotalFiles)
		assert.Equal(t, int64(0), stats.TotalSize)
		assert.Equal(t, 0, stats.EncryptedFiles)
		assert.Nil(t, stats.LastActivity)
	})

	t.Run("mixed records", func(t *testing.T) {
		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		records := []models.FileRecord{
			{ID: "1", Size: 10, Encrypted: true, CreatedAt: base},
			{ID: "2", Size: 5, Encrypted: false, CreatedAt: base.Add(2 * time.Hour)},
			{ID: "3", Size: 0, Encrypted: true, CreatedAt: base.Add(time.Hour)},
		}

		stats := models.ComputeStats(records)
		assert.Equal(t, 3, stats.TotalFiles)
		assert.Equal(t, int64(15), stats.TotalSize)
		assert.Equal(t, 2, stats.EncryptedFiles)
		require.NotNil(t, stats.LastActivity)
		assert.True(t, stats.LastActivity.Equal(base.Add(2*time.Hour)))
	})
}
