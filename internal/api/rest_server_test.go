package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelight/internal/auth"
	"github.com/annel0/voxelight/internal/engine"
	"github.com/annel0/voxelight/internal/storage"
	"github.com/annel0/voxelight/internal/world/block"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// floor - каменный пол на y=0
func floor(x, y, z int) block.BlockID {
	if y == 0 {
		return block.StoneBlockID
	}
	return block.AirBlockID
}

type testServer struct {
	rs      *RestServer
	engine  *engine.Engine
	admin   string
	builder string
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	e, err := engine.New(engine.Options{Width: 1, Height: 1, Depth: 1, Source: floor})
	require.NoError(t, err)

	tokens, err := auth.NewTokenManager("", time.Hour)
	require.NoError(t, err)

	operators := auth.NewOperatorStore()
	for _, op := range []struct {
		name  string
		admin bool
	}{{"root", true}, {"builder", false}} {
		hash, err := auth.HashPassword(op.name + "-secret")
		require.NoError(t, err)
		_, err = operators.Add(op.name, hash, op.admin)
		require.NoError(t, err)
	}

	cfg := Config{
		Engine:    e,
		Repo:      storage.NewMemorySnapshotRepo(),
		Files:     storage.NewFileStore(t.TempDir()),
		WorldFile: "world.bin",
		Tokens:    tokens,
		Operators: operators,
		Webhooks:  NewOutboundWebhookManager("main", nil),
		Registry:  prometheus.NewRegistry(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	rs, err := NewRestServer(cfg)
	require.NoError(t, err)

	ts := &testServer{rs: rs, engine: e}
	ts.admin = ts.login(t, "root", "root-secret")
	ts.builder = ts.login(t, "builder", "builder-secret")
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(t *testing.T, name, password string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: name, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestNewRestServerRequiresDependencies(t *testing.T) {
	_, err := NewRestServer(Config{})
	assert.Error(t, err)

	e, err := engine.New(engine.Options{Width: 1, Height: 1, Depth: 1})
	require.NoError(t, err)
	_, err = NewRestServer(Config{Engine: e})
	assert.Error(t, err, "Без менеджера токенов сервер не создаётся")
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voxelight_http_request_duration_seconds")

	w = ts.do(t, http.MethodOptions, "/api/voxel", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "root", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "ROOT", Password: "root-secret"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsAdmin)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, nil)
	body := VoxelRequest{X: 1, Y: 1, Z: 1, ID: int(block.StoneBlockID)}

	w := ts.do(t, http.MethodPut, "/api/voxel", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPut, "/api/voxel", "garbage", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/voxel", nil)
	req.Header.Set("Authorization", "Token "+ts.builder)
	rec := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "Поддерживается только схема Bearer")

	w = ts.do(t, http.MethodPost, "/api/world/relight", ts.builder, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/api/world/relight", ts.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadWorld(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/voxel?x=3&y=0&z=3", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var voxel struct {
		ID    int    `json:"id"`
		Block string `json:"block"`
	}
	decodeData(t, w, &voxel)
	assert.Equal(t, int(block.StoneBlockID), voxel.ID)
	assert.Equal(t, "stone", voxel.Block)

	w = ts.do(t, http.MethodGet, "/api/voxel?x=3&y=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodGet, "/api/voxel?x=3&y=0&z=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodGet, "/api/voxel?x=-1&y=0&z=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/light?x=3&y=1&z=3", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var light engine.LightSample
	decodeData(t, w, &light)
	assert.Equal(t, engine.LightSample{Sun: 15}, light)

	w = ts.do(t, http.MethodGet, "/api/world", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info engine.Info
	decodeData(t, w, &info)
	assert.Equal(t, "main", info.Name)
	assert.Equal(t, 1, info.Volume)

	w = ts.do(t, http.MethodGet, "/api/blocks", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var defs []block.Definition
	decodeData(t, w, &defs)
	assert.Len(t, defs, block.DefaultCatalog().Len())

	w = ts.do(t, http.MethodGet, "/api/server/info", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), Version)
}

func TestChunkEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/chunks/0/0/0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data engine.ChunkData
	decodeData(t, w, &data)
	assert.NotEmpty(t, data.Voxels)
	assert.Len(t, data.Light, len(data.Voxels))

	w = ts.do(t, http.MethodGet, "/api/chunks/0/5/0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodGet, "/api/chunks/a/0/0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEditVoxels(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/voxel/place", ts.builder, VoxelRequest{X: 8, Y: 1, Z: 8, ID: int(block.LampBlockID)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var change engine.Change
	decodeData(t, w, &change)
	assert.True(t, change.Changed)
	assert.Equal(t, block.LampBlockID, change.ID)

	w = ts.do(t, http.MethodGet, "/api/light?x=8&y=1&z=9", "", nil)
	var light engine.LightSample
	decodeData(t, w, &light)
	assert.Equal(t, uint8(10), light.R)
	assert.Equal(t, uint8(5), light.B)

	w = ts.do(t, http.MethodPost, "/api/voxel/place", ts.builder, VoxelRequest{X: 8, Y: 1, Z: 8, ID: int(block.StoneBlockID)})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPut, "/api/voxel", ts.builder, VoxelRequest{X: 8, Y: 1, Z: 8, ID: 300})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPut, "/api/voxel", ts.builder, VoxelRequest{X: 8, Y: 1, Z: 8, ID: 200})
	assert.Equal(t, http.StatusBadRequest, w.Code, "Незарегистрированный блок")
	w = ts.do(t, http.MethodPut, "/api/voxel", ts.builder, VoxelRequest{X: 99, Y: 1, Z: 8, ID: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/api/voxel", ts.builder, VoxelRequest{X: 8, Y: 1, Z: 8, ID: int(block.GlassBlockID)})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/voxel?x=8&y=1&z=8", ts.builder, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &change)
	assert.Equal(t, block.GlassBlockID, change.Prev)
	assert.Equal(t, block.AirBlockID, change.ID)

	w = ts.do(t, http.MethodPost, "/api/chunks/drain", ts.builder, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var drained struct {
		Total int `json:"total"`
	}
	decodeData(t, w, &drained)
	assert.Equal(t, 1, drained.Total)

	w = ts.do(t, http.MethodPost, "/api/chunks/drain", ts.builder, nil)
	decodeData(t, w, &drained)
	assert.Zero(t, drained.Total)
}

func TestDrainEndpointWithFeedRunning(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ts.engine.RunModifiedFeed(ctx, 5*time.Millisecond)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	var drained struct {
		Total int `json:"total"`
	}
	w := ts.do(t, http.MethodPost, "/api/chunks/drain", ts.builder, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPut, "/api/voxel", ts.builder, VoxelRequest{X: 4, Y: 1, Z: 4, ID: int(block.StoneBlockID)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Eventually(t, func() bool {
		info := ts.engine.Info()
		return info.ModifiedChunks == 0 && info.PendingChunks == 1
	}, time.Second, 5*time.Millisecond, "Рассылка должна забрать флаг")

	w = ts.do(t, http.MethodPost, "/api/chunks/drain", ts.builder, nil)
	decodeData(t, w, &drained)
	assert.Equal(t, 1, drained.Total, "Мешер получает чанк, уже разосланный по шине")

	w = ts.do(t, http.MethodPost, "/api/chunks/drain", ts.builder, nil)
	decodeData(t, w, &drained)
	assert.Zero(t, drained.Total)
}

func TestRaycastEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	down := RaycastRequest{Origin: [3]float32{3.5, 5.5, 3.5}, Direction: [3]float32{0, -1, 0}}

	w := ts.do(t, http.MethodPost, "/api/raycast", "", down)
	require.Equal(t, http.StatusOK, w.Code)
	var hit RaycastResponse
	decodeData(t, w, &hit)
	assert.True(t, hit.Hit)
	assert.Equal(t, "stone", hit.Block)
	assert.Equal(t, 0, hit.Pos.Y)
	assert.Equal(t, float32(1), hit.Normal[1])

	up := RaycastRequest{Origin: down.Origin, Direction: [3]float32{0, 1, 0}}
	w = ts.do(t, http.MethodPost, "/api/raycast", "", up)
	decodeData(t, w, &hit)
	assert.False(t, hit.Hit)

	place := down
	place.ID = int(block.BrickBlockID)
	w = ts.do(t, http.MethodPost, "/api/raycast/place", ts.builder, place)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id, _ := ts.engine.Voxel(3, 1, 3)
	assert.Equal(t, block.BrickBlockID, id)

	w = ts.do(t, http.MethodPost, "/api/raycast/break", ts.builder, down)
	require.Equal(t, http.StatusOK, w.Code)
	id, _ = ts.engine.Voxel(3, 1, 3)
	assert.Equal(t, block.AirBlockID, id)

	w = ts.do(t, http.MethodPost, "/api/raycast/break", ts.builder, up)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRaycastReachLimit(t *testing.T) {
	ts := newTestServer(t, nil)
	limit := ts.engine.MaxReach()

	far := RaycastRequest{Origin: [3]float32{3.5, 5.5, 3.5}, Direction: [3]float32{1, 0, 0}, MaxDistance: 3e7}
	for _, path := range []string{"/api/raycast", "/api/raycast/place", "/api/raycast/break"} {
		w := ts.do(t, http.MethodPost, path, ts.builder, far)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	// Ровно диагональ мира допустима и быстро возвращает промах
	far.MaxDistance = limit
	w := ts.do(t, http.MethodPost, "/api/raycast", "", far)
	require.Equal(t, http.StatusOK, w.Code)
	var hit RaycastResponse
	decodeData(t, w, &hit)
	assert.False(t, hit.Hit)

	// Движок сам ограничивает дальность при прямом вызове
	_, found := ts.engine.Pick(far.Origin, far.Direction, 3e7)
	assert.False(t, found)
}

func TestSnapshotEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/world/save", ts.builder, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var meta storage.SnapshotMeta
	decodeData(t, w, &meta)
	assert.Equal(t, "main", meta.World)

	_, err := ts.engine.Set(context.Background(), 1, 1, 1, block.StoneBlockID)
	require.NoError(t, err)

	w = ts.do(t, http.MethodGet, "/api/snapshots", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), meta.ID)

	w = ts.do(t, http.MethodPost, "/api/world/load", ts.builder, LoadRequest{ID: meta.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/api/world/load", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id, _ := ts.engine.Voxel(1, 1, 1)
	assert.Equal(t, block.AirBlockID, id, "Правка после снимка откатилась")

	w = ts.do(t, http.MethodPost, "/api/world/load", ts.admin, LoadRequest{ID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/snapshots/"+meta.ID, ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/snapshots/"+meta.ID, ts.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorldFileEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/world/save-file", ts.builder, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, err := ts.engine.Set(context.Background(), 2, 1, 2, block.BrickBlockID)
	require.NoError(t, err)

	w = ts.do(t, http.MethodPost, "/api/world/load-file", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id, _ := ts.engine.Voxel(2, 1, 2)
	assert.Equal(t, block.AirBlockID, id)
}

func TestStorageUnavailable(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.Repo = nil
		cfg.Files = nil
	})

	for _, path := range []string{"/api/world/save", "/api/world/save-file"} {
		w := ts.do(t, http.MethodPost, path, ts.admin, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
	w := ts.do(t, http.MethodGet, "/api/snapshots", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebhookAdminEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/webhooks/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "snapshot.saved")

	hook := OutboundWebhook{Name: "audit", URL: "ftp://example.com", Events: []string{"*"}}
	w = ts.do(t, http.MethodPost, "/api/admin/webhooks", ts.admin, hook)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	hook.URL = "http://example.com/hook"
	w = ts.do(t, http.MethodPost, "/api/admin/webhooks", ts.builder, hook)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/api/admin/webhooks", ts.admin, hook)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created OutboundWebhook
	decodeData(t, w, &created)
	assert.Equal(t, uint64(1), created.ID)
	assert.True(t, created.Active)

	w = ts.do(t, http.MethodGet, "/api/admin/webhooks", ts.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = ts.do(t, http.MethodDelete, "/api/admin/webhooks/1", ts.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/admin/webhooks/1", ts.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/admin/webhooks/x", ts.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{engine.ErrUnknownBlock, http.StatusBadRequest},
		{engine.ErrDimsMismatch, http.StatusBadRequest},
		{storage.ErrSizeMismatch, http.StatusBadRequest},
		{engine.ErrOccupied, http.StatusConflict},
		{ErrReachTooFar, http.StatusBadRequest},
		{engine.ErrNoTarget, http.StatusNotFound},
		{storage.ErrSnapshotNotFound, http.StatusNotFound},
		{storage.ErrNotReady, http.StatusServiceUnavailable},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5с", formatUptime(5*time.Second))
	assert.Equal(t, "2м 3с", formatUptime(2*time.Minute+3*time.Second))
	assert.Equal(t, "1ч 0м 0с", formatUptime(time.Hour))
	assert.Equal(t, "1д 2ч 0м 0с", formatUptime(26*time.Hour))
}
