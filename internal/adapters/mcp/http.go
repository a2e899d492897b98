package mcp

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"chimera/internal/logger"
)

const (
	// EndpointPath is where the streamable HTTP transport is mounted
	EndpointPath = "/mcp"

	clientIDHeader  = "X-Client-ID"
	defaultClientID = "mcp"
)

type clientIDKey struct{}

// WithClientID tags ctx with the calling client
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

// ClientIDFrom returns the calling client, "mcp" when unknown
func ClientIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(clientIDKey{}).(string); ok && id != "" {
		return id
	}
	return defaultClientID
}

// NewHTTPHandler serves the MCP server over streamable HTTP. With a
// non-empty apiKey every request must carry it as a bearer token.
func NewHTTPHandler(s *server.MCPServer, apiKey string, log *logger.Logger) http.Handler {
	streamable := server.NewStreamableHTTPServer(s,
		server.WithEndpointPath(EndpointPath),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return WithClientID(ctx, strings.TrimSpace(r.Header.Get(clientIDHeader)))
		}),
	)
	if apiKey == "" {
		log.Warn("MCP HTTP transport has no API key, accepting unauthenticated requests")
		return streamable
	}
	return BearerAuth(apiKey, streamable)
}

// BearerAuth rejects requests whose Authorization header does not carry
// the expected token
func BearerAuth(apiKey string, next http.Handler) http.Handler {
	want := []byte("Bearer " + apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="chimera"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
