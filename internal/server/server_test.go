package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/plank/internal/auth"
	"github.com/gosuda/plank/internal/config"
	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/permission"
	"github.com/gosuda/plank/internal/realtime"
	"github.com/gosuda/plank/internal/server"
)

const testSecret = "server-test-secret-that-is-long-enough"

type viewerBoards struct{}

func (viewerBoards) GetByID(_ context.Context, id uuid.UUID) (*domain.Board, error) {
	return &domain.Board{ID: id}, nil
}

func (viewerBoards) GetMemberRole(context.Context, uuid.UUID, uuid.UUID) (domain.Role, error) {
	return domain.RoleViewer, nil
}

type stubStore struct{}

func (stubStore) Boards() domain.BoardRepository   { return viewerBoards{} }
func (stubStore) Columns() domain.ColumnRepository { return nil }
func (stubStore) Cards() domain.CardRepository     { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Addr: ":0", CORSOrigins: []string{"http://localhost:5173"}},
		Realtime: config.RealtimeConfig{
			SendBuffer:      16,
			PingInterval:    time.Minute,
			WriteTimeout:    time.Second,
			MaxMessageBytes: 4096,
		},
	}
	store := stubStore{}
	verifier := auth.NewVerifier(testSecret)
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(store, permission.NewGuard(store.Boards()), registry)
	gateway := realtime.NewGateway(verifier, registry, router, realtime.GatewayConfig{SendBuffer: 16})

	srv := httptest.NewServer(server.New(t.Context(), cfg, store, verifier, registry, gateway).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp := get(t, srv.URL+"/healthz", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServer_RequiresCredentials(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	for _, path := range []string{"/api/v1/boards/" + uuid.NewString(), "/ws"} {
		resp := get(t, srv.URL+path, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestServer_PresenceRoute(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token, err := auth.IssueAccessToken(testSecret, uuid.New(), "alice", time.Hour)
	require.NoError(t, err)
	boardID := uuid.New()

	resp := get(t, srv.URL+"/api/v1/boards/"+boardID.String()+"/presence", token)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		BoardID uuid.UUID         `json:"board_id"`
		Members []domain.Identity `json:"members"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, boardID, body.BoardID)
	assert.Empty(t, body.Members)
}
