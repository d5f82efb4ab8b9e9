package testutil

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/TheMichaelB/blockbox/internal/crypto"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
)

// TestIdentity is the wallet used across integration tests.
const TestIdentity = "0xABC"

// NewTestLogger creates a logger that discards its output.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// NewCapturingLogger creates a JSON logger writing into the returned buffer.
func NewCapturingLogger() (*events.Logger, *LogOutput) {
	out := NewLogOutput()
	return events.NewTestLogger(events.DebugLevel, "json", out), out
}

// SampleFiles holds small text files keyed by name.
var SampleFiles = map[string]string{
	"hello.txt":  "hello wrld",
	"notes.md":   "# Notes\n\n- encrypt before upload\n- keep the CID\n",
	"data.json":  `{"balance":"42","currency":"ETH"}`,
	"empty.txt":  "",
	"unicode.md": "naïve café 日本語 🚀",
}

// SampleBinaryFiles holds binary payloads keyed by name.
var SampleBinaryFiles = map[string][]byte{
	"image.png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D},
	"all.bin":    AllBytes(256),
	"block.bin":  AllBytes(4097),
	"zeroes.bin": make([]byte, 1024),
}

// SampleBatch returns SampleFiles and SampleBinaryFiles as upload input in a
// stable name order. Empty files are skipped unless includeEmpty is set.
func SampleBatch(includeEmpty bool) []models.File {
	var files []models.File
	for name, data := range SampleFiles {
		if data == "" && !includeEmpty {
			continue
		}
		files = append(files, models.File{Name: name, Data: []byte(data)})
	}
	for name, data := range SampleBinaryFiles {
		files = append(files, models.File{Name: name, Data: data})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

// AllBytes returns n bytes cycling through every byte value.
func AllBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

// GenerateFiles creates count files of size bytes each with distinct content.
func GenerateFiles(count, size int) []models.File {
	files := make([]models.File, count)
	for i := range files {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte((i*31 + j) % 251)
		}
		files[i] = models.File{
			Name: fmt.Sprintf("file-%04d.bin", i),
			Data: data,
		}
	}
	return files
}

// TestKey derives the key for TestIdentity.
func TestKey() []byte {
	key, err := crypto.NewProvider().DeriveKey(TestIdentity)
	if err != nil {
		panic(err)
	}
	return key
}

// SampleRecord returns a valid record owned by owner.
func SampleRecord(owner, name string, size int64) models.FileRecord {
	created := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return models.FileRecord{
		ID:        models.NewRecordID(created),
		Name:      name,
		Size:      size,
		MimeType:  models.DetectMimeType(name, nil),
		CID:       "bafkreibm6jg3ux5qumhcn2b3flc3tyu6dmlb4xa7u5bf44yegnrjhc4yeq",
		Encrypted: true,
		CreatedAt: created,
		Owner:     owner,
		Algorithm: models.AlgorithmAESGCM,
	}
}
