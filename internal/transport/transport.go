package transport

import (
	"context"
	"net/url"
)

// Transport is the request/response surface a remote content store needs.
type Transport interface {
	// Call posts an RPC with query arguments and returns the response body.
	Call(ctx context.Context, path string, query url.Values) ([]byte, error)

	// Upload posts a single file as multipart form data.
	Upload(ctx context.Context, path string, query url.Values, filename string, data []byte) ([]byte, error)

	// Authentication
	SetToken(token string)
	GetToken() string

	// Lifecycle
	Close() error
}

var _ Transport = (*HTTPClient)(nil)
var _ Transport = (*MockTransport)(nil)
