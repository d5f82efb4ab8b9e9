package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/blockbox/internal/config"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/transport"
)

func newTestClient(t *testing.T, serverURL string) *transport.HTTPClient {
	t.Helper()

	cfg := &config.ContentConfig{
		APIURL:     serverURL,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		UserAgent:  "test",
	}

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	client := transport.NewHTTPClient(cfg, logger)
	client.SetRetryDelay(10 * time.Millisecond)
	return client
}

func TestHTTPClientRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Keys":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	resp, err := client.Call(context.Background(), "/api/v0/pin/ls", url.Values{"arg": {"bafy"}})

	require.NoError(t, err)
	assert.JSONEq(t, `{"Keys":{}}`, string(resp))
	assert.Equal(t, 3, attempts)
}

func TestHTTPClientCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v0/cat", r.URL.Path)
		assert.Equal(t, "bafy-test", r.URL.Query().Get("arg"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/")
	client.SetToken("test-token")
	assert.Equal(t, "test-token", client.GetToken())

	data, err := client.Call(context.Background(), "/api/v0/cat", url.Values{"arg": {"bafy-test"}})
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.NoError(t, client.Close())
}

func TestHTTPClientUpload(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10, 0x80}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("pin"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()

		assert.Equal(t, "blob.bin", header.Filename)
		got, err := io.ReadAll(file)
		assert.NoError(t, err)
		assert.Equal(t, payload, got)

		_, _ = w.Write([]byte(`{"Hash":"bafy-uploaded"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	resp, err := client.Upload(context.Background(), "/api/v0/add", url.Values{"pin": {"true"}}, "blob.bin", payload)
	require.NoError(t, err)
	assert.Contains(t, string(resp), "bafy-uploaded")
}

func TestHTTPClientAPIError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"Message":"not pinned or pinned indirectly","Code":0,"Type":"error"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Call(context.Background(), "/api/v0/pin/rm", url.Values{"arg": {"bafy"}})
	require.Error(t, err)

	var apiErr *transport.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.True(t, apiErr.NotFound())
	assert.False(t, apiErr.Temporary())
	assert.Equal(t, 1, attempts, "definite RPC errors are not retried")
}

func TestHTTPClientPlainErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Call(context.Background(), "/api/v0/cat", nil)

	var apiErr *transport.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Unauthorized())
	assert.Equal(t, "bad token", apiErr.Message)
	assert.Contains(t, err.Error(), "401")
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       transport.APIError
		temporary bool
		notFound  bool
		quota     bool
	}{
		{"404", transport.APIError{StatusCode: 404}, false, true, false},
		{"503", transport.APIError{StatusCode: 503}, true, false, false},
		{"429", transport.APIError{StatusCode: 429}, true, false, false},
		{"507", transport.APIError{StatusCode: 507}, true, false, true},
		{"413", transport.APIError{StatusCode: 413}, false, false, true},
		{"rpc not found", transport.APIError{StatusCode: 500, Message: "block was not found locally", Type: "error"}, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.temporary, tt.err.Temporary())
			assert.Equal(t, tt.notFound, tt.err.NotFound())
			assert.Equal(t, tt.quota, tt.err.QuotaExceeded())
		})
	}
}

func TestMockTransport(t *testing.T) {
	mock := transport.NewMockTransport()
	ctx := context.Background()

	mock.AddResponse("/api/v0/add", `{"Hash":"bafy"}`)
	mock.AddError("/api/v0/cat", &transport.APIError{StatusCode: 500})
	mock.SetToken("tok")

	resp, err := mock.Upload(ctx, "/api/v0/add", nil, "f", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, `{"Hash":"bafy"}`, string(resp))

	_, err = mock.Call(ctx, "/api/v0/cat", nil)
	assert.Error(t, err)

	_, err = mock.Call(ctx, "/api/v0/unknown", nil)
	var apiErr *transport.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.NotFound())

	assert.Equal(t, 1, mock.RequestCount("/api/v0/add"))
	assert.Equal(t, []byte("data"), mock.Requests[0].Data)
	assert.Equal(t, "tok", mock.GetToken())

	require.NoError(t, mock.Close())
	_, err = mock.Call(ctx, "/api/v0/add", nil)
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = transport.NewMockTransport().Call(cancelled, "/x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
