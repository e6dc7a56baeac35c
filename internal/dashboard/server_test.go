package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govgate/internal/telemetry"
)

func openTestStore(t *testing.T) *telemetry.Store {
	t.Helper()
	store, err := telemetry.OpenStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestListSessions(t *testing.T) {
	store := openTestStore(t)
	for _, id := range []string{"s1", "s2", "s3"} {
		store.EnqueueSession(telemetry.Session{ID: id, CreatedAt: time.Now(), User: "agent"})
	}
	store.Flush()

	router := New("", store).Router()

	resp := doRequest(t, router, http.MethodGet, "/sessions?page_size=2", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var page telemetry.SessionPage
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &page))
	assert.Len(t, page.Sessions, 2)
	require.NotEmpty(t, page.NextPageToken)

	resp = doRequest(t, router, http.MethodGet, "/sessions?page_size=2&page_token="+page.NextPageToken, "")
	require.Equal(t, http.StatusOK, resp.Code)
	page = telemetry.SessionPage{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &page))
	assert.Len(t, page.Sessions, 1)
	assert.Empty(t, page.NextPageToken)
}

func TestListSessions_InvalidPageSize(t *testing.T) {
	router := New("", openTestStore(t)).Router()

	resp := doRequest(t, router, http.MethodGet, "/sessions?page_size=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "invalid_page_size")
}

func TestSessionTimeline(t *testing.T) {
	store := openTestStore(t)
	store.EnqueueSession(telemetry.Session{ID: "s1", CreatedAt: time.Now(), User: "agent"})
	store.EnqueueEvent(telemetry.Record{
		SessionID: "s1", Seq: 1, Timestamp: time.Now(), Kind: telemetry.KindCall,
		Operation: "registry_search", Args: map[string]interface{}{"query": "smith"},
	})
	store.EnqueueEvent(telemetry.Record{
		SessionID: "s1", Seq: 1, Timestamp: time.Now(), Kind: telemetry.KindResult,
		Operation: "registry_search", DurationMs: 12,
	})
	store.Flush()

	router := New("", store).Router()

	resp := doRequest(t, router, http.MethodGet, "/sessions/s1/timeline", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Timeline []telemetry.TimelineEntry `json:"timeline"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Timeline, 2)
	assert.Equal(t, telemetry.KindCall, body.Timeline[0].Kind)
	assert.Equal(t, telemetry.KindResult, body.Timeline[1].Kind)
}

func TestSessionTimeline_EmptyIsArray(t *testing.T) {
	router := New("", openTestStore(t)).Router()

	resp := doRequest(t, router, http.MethodGet, "/sessions/unknown/timeline", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"timeline":[]`)
}

func TestAppendMessages(t *testing.T) {
	store := openTestStore(t)
	store.EnqueueSession(telemetry.Session{ID: "s1", CreatedAt: time.Now(), User: "agent"})
	store.Flush()

	router := New("", store).Router()

	resp := doRequest(t, router, http.MethodPost, "/sessions/s1/messages",
		`{"messages":[{"role":"user","content":"hello"},{"role":"assistant","content":"hi"}]}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"inserted":2`)

	resp = doRequest(t, router, http.MethodPost, "/sessions/s1/messages", `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, router, http.MethodPost, "/sessions/s1/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDisabledStoreAnswers503(t *testing.T) {
	router := New("", nil).Router()

	for _, target := range []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/sessions", ""},
		{http.MethodGet, "/sessions/s1/timeline", ""},
		{http.MethodPost, "/sessions/s1/messages", `{"messages":[{"role":"user","content":"x"}]}`},
	} {
		resp := doRequest(t, router, target.method, target.path, target.body)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code, "%s %s", target.method, target.path)
		assert.Contains(t, resp.Body.String(), "store_disabled", "stable error body")
	}

	resp := doRequest(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "degraded")
}
