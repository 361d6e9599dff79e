package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fundflow/internal/domain/project"
	"github.com/rpggio/fundflow/internal/mcp"
	"github.com/rpggio/fundflow/internal/metrics"
	"github.com/rpggio/fundflow/internal/sqlite"
	"github.com/rpggio/fundflow/internal/transport"
	"github.com/stretchr/testify/require"
)

// TestServer is the full HTTP surface over a test Env.
type TestServer struct {
	Server   *httptest.Server
	Env      *Env
	Keys     *sqlite.APIKeys
	Recorder *metrics.Recorder
}

// New starts an HTTP server with JSON-RPC on /rpc, MCP on /mcp and metrics,
// authenticating bearer tokens against the api_keys table.
func New(t *testing.T) *TestServer {
	t.Helper()

	recorder := metrics.NewRecorder()
	env := NewEnv(t, func(cfg *project.Config) {
		cfg.Recorder = recorder
	})
	keys := sqlite.NewAPIKeys(env.DB)

	mcpServer := mcp.NewServer(mcp.Config{
		Engine:        env.Engine,
		Resolver:      keys,
		AuthEnabled:   true,
		TransportMode: "http",
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{Stateless: true},
	)

	server := httptest.NewServer(transport.NewServer(transport.Options{
		Handler: mcp.NewHandler(env.Engine),
		Auth:    transport.AuthMiddleware(keys),
		MCP:     mcpHandler,
		Metrics: recorder.Handler(),
	}))
	t.Cleanup(server.Close)

	return &TestServer{
		Server:   server,
		Env:      env,
		Keys:     keys,
		Recorder: recorder,
	}
}

// AddAPIKey registers token as a credential for identity.
func (ts *TestServer) AddAPIKey(t *testing.T, token, identity string) {
	t.Helper()
	require.NoError(t, ts.Keys.Add(context.Background(), token, identity, t.Name()))
}
