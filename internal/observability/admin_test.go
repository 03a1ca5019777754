package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/dorepo/internal/idalloc"
	"github.com/danmuck/dorepo/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	connected bool
	objects   []ObjectView
	pending   int
}

func (f *fakeInspector) Role() string    { return "authority" }
func (f *fakeInspector) Connected() bool { return f.connected }
func (f *fakeInspector) Objects() []ObjectView {
	return append([]ObjectView(nil), f.objects...)
}
func (f *fakeInspector) Allocators() []idalloc.Stats {
	return []idalloc.Stats{{Name: "channels", Min: 1, Max: 10, Capacity: 10, Available: 9, FractionUsed: 0.1}}
}
func (f *fakeInspector) PendingRequests() int { return f.pending }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestAdminRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	fake := &fakeInspector{
		objects: []ObjectView{
			{ID: 9, Class: "Avatar", Parent: 1, Zone: 2, State: "generated"},
			{ID: 3, Class: "Zone", State: "generated"},
		},
		pending: 2,
	}
	admin := NewAdmin(AdminOptions{Node: "ai-1", Addr: "127.0.0.1:0"}, fake)
	h := admin.Handler()

	w := get(t, h, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"role":"authority"`)

	w = get(t, h, "/ready")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	fake.connected = true
	w = get(t, h, "/ready")
	require.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, "/objects")
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Count   int          `json:"count"`
		Objects []ObjectView `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Equal(t, 2, listing.Count)
	require.Equal(t, uint32(3), listing.Objects[0].ID)
	require.Equal(t, uint32(9), listing.Objects[1].ID)

	w = get(t, h, "/objects?class=Avatar")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Equal(t, 1, listing.Count)
	require.Equal(t, "Avatar", listing.Objects[0].Class)

	w = get(t, h, "/objects/9")
	require.Equal(t, http.StatusOK, w.Code)
	var one ObjectView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	require.Equal(t, uint32(2), one.Zone)

	require.Equal(t, http.StatusNotFound, get(t, h, "/objects/4").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/objects/x").Code)

	w = get(t, h, "/allocators")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"fraction_used":0.1`)

	w = get(t, h, "/pending")
	require.JSONEq(t, `{"pending":2}`, w.Body.String())

	w = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "dorepo_http_requests_total")
}

func TestAdminTokenGuardsInspection(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	admin := NewAdmin(AdminOptions{Node: "ai-2", Token: "s3cret"}, &fakeInspector{connected: true})
	h := admin.Handler()

	require.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/ready").Code)
	require.Equal(t, http.StatusUnauthorized, get(t, h, "/objects").Code)
	require.Equal(t, http.StatusUnauthorized, get(t, h, "/pending").Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pending", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"pending":0}`, w.Body.String())
}
