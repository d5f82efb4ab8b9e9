package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/blockbox/internal/config"
	"github.com/TheMichaelB/blockbox/internal/content"
)

// LogEntry represents a captured JSON log entry.
type LogEntry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"msg"`
	Time    time.Time              `json:"time"`
	Fields  map[string]interface{} `json:"-"`
}

// NodeServer is an in-memory stand-in for a Kubo RPC endpoint. It serves
// add, cat, pin/ls and pin/rm and computes CIDs the way a real node does for
// single-block raw-leaf payloads.
type NodeServer struct {
	*httptest.Server

	mu       sync.RWMutex
	blobs    map[string][]byte
	token    string
	failNext int
	requests map[string]int
}

// NewNodeServer starts a node. A non-empty token is required as a bearer
// credential on every request.
func NewNodeServer(token string) *NodeServer {
	ns := &NodeServer{
		blobs:    make(map[string][]byte),
		token:    token,
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/add", ns.handleAdd)
	mux.HandleFunc("/api/v0/cat", ns.handleCat)
	mux.HandleFunc("/api/v0/pin/ls", ns.handlePinLs)
	mux.HandleFunc("/api/v0/pin/rm", ns.handlePinRm)

	ns.Server = httptest.NewServer(ns.middleware(mux))
	return ns
}

// FailNext makes the next n requests fail with 503.
func (ns *NodeServer) FailNext(n int) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.failNext = n
}

// Requests returns how many requests reached path.
func (ns *NodeServer) Requests(path string) int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.requests[path]
}

// Pinned reports whether cid is held by the node.
func (ns *NodeServer) Pinned(cid string) bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	_, ok := ns.blobs[cid]
	return ok
}

// Blob returns the stored bytes for cid.
func (ns *NodeServer) Blob(cid string) []byte {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.blobs[cid]
}

// Corrupt replaces the bytes served for cid.
func (ns *NodeServer) Corrupt(cid string, data []byte) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.blobs[cid] = data
}

// Len returns the number of pinned blobs.
func (ns *NodeServer) Len() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.blobs)
}

func (ns *NodeServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ns.mu.Lock()
		ns.requests[r.URL.Path]++
		fail := ns.failNext > 0
		if fail {
			ns.failNext--
		}
		ns.mu.Unlock()

		if fail {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if ns.token != "" && r.Header.Get("Authorization") != "Bearer "+ns.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ns *NodeServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		rpcError(w, fmt.Sprintf("file argument 'path' is required: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		rpcError(w, err.Error())
		return
	}

	id, err := content.ComputeCID(data)
	if err != nil {
		rpcError(w, err.Error())
		return
	}

	ns.mu.Lock()
	ns.blobs[id] = data
	ns.mu.Unlock()

	_ = writeJSON(w, map[string]string{
		"Name": header.Filename,
		"Hash": id,
		"Size": fmt.Sprint(len(data)),
	})
}

func (ns *NodeServer) handleCat(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("arg")

	ns.mu.RLock()
	data, ok := ns.blobs[id]
	ns.mu.RUnlock()

	if !ok {
		rpcError(w, "block was not found locally (offline): ipld: could not find "+id)
		return
	}
	_, _ = w.Write(data)
}

func (ns *NodeServer) handlePinLs(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("arg")
	if !ns.Pinned(id) {
		rpcError(w, fmt.Sprintf("path '%s' is not pinned", id))
		return
	}
	_ = writeJSON(w, map[string]interface{}{
		"Keys": map[string]interface{}{id: map[string]string{"Type": "recursive"}},
	})
}

func (ns *NodeServer) handlePinRm(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("arg")

	ns.mu.Lock()
	_, ok := ns.blobs[id]
	delete(ns.blobs, id)
	ns.mu.Unlock()

	if !ok {
		rpcError(w, "not pinned or pinned indirectly")
		return
	}
	_ = writeJSON(w, map[string]interface{}{"Pins": []string{id}})
}

// rpcError writes the daemon's error shape.
func rpcError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"Message": message,
		"Code":    0,
		"Type":    "error",
	})
}

// TestHelpers provides common test utilities.
type TestHelpers struct {
	t       *testing.T
	tempDir string
}

// NewTestHelpers creates test helpers rooted in a fresh temp directory.
func NewTestHelpers(t *testing.T) *TestHelpers {
	return &TestHelpers{
		t:       t,
		tempDir: t.TempDir(),
	}
}

// TempDir returns the helper's temp directory.
func (h *TestHelpers) TempDir() string {
	return h.tempDir
}

// CreateTempFile creates a file with content and returns its path.
func (h *TestHelpers) CreateTempFile(name, content string) string {
	return h.CreateTempBinaryFile(name, []byte(content))
}

// CreateTempBinaryFile creates a file with binary content.
func (h *TestHelpers) CreateTempBinaryFile(name string, content []byte) string {
	path := filepath.Join(h.tempDir, name)

	dir := filepath.Dir(path)
	require.NoError(h.t, os.MkdirAll(dir, 0755))
	require.NoError(h.t, os.WriteFile(path, content, 0644))

	return path
}

// AssertFileContent checks file content.
func (h *TestHelpers) AssertFileContent(path string, expected []byte) {
	actual, err := os.ReadFile(path)
	require.NoError(h.t, err)
	assert.Equal(h.t, expected, actual)
}

// TestContext returns a context that fails slow tests instead of hanging.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// TestConfigWithDir returns a config whose local paths live under dataDir.
func TestConfigWithDir(dataDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Content.Dir = filepath.Join(dataDir, "content")
	cfg.Content.Timeout = 5 * time.Second
	cfg.Content.MaxRetries = 0
	cfg.Registry.Dir = filepath.Join(dataDir, "registry")
	cfg.Storage.DataDir = dataDir
	cfg.Storage.ExportDir = filepath.Join(dataDir, "exports")
	cfg.Upload.RetryDelay = 10 * time.Millisecond
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	cfg.Log.Color = false
	return cfg
}

// WaitForCondition polls condition until it holds or timeout passes.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		<-ticker.C
	}

	t.Fatalf("Timeout waiting for condition: %s", message)
}

// LogOutput captures JSON log lines written by a test logger.
type LogOutput struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLogOutput creates a log capture buffer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

func (lo *LogOutput) Write(p []byte) (int, error) {
	lo.mu.Lock()
	defer lo.mu.Unlock()
	return lo.buf.Write(p)
}

// Entries parses captured lines. Lines that are not JSON are skipped.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.Lock()
	data := append([]byte(nil), lo.buf.Bytes()...)
	lo.mu.Unlock()

	var entries []LogEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var raw map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &raw); err != nil {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entry.Fields = raw
		entries = append(entries, entry)
	}
	return entries
}

// HasMessage reports whether any entry's message contains message.
func (lo *LogOutput) HasMessage(message string) bool {
	for _, e := range lo.Entries() {
		if strings.Contains(e.Message, message) {
			return true
		}
	}
	return false
}

// Contains reports whether the raw output contains s.
func (lo *LogOutput) Contains(s string) bool {
	lo.mu.Lock()
	defer lo.mu.Unlock()
	return strings.Contains(lo.buf.String(), s)
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// SkipIfShort skips long-running tests under -short.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping in short mode: %s", reason)
	}
}
