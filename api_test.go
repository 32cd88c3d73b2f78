package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (*App, *httprouter.Router) {
	t.Helper()

	cfg := &Config{
		dataDir: t.TempDir(),
		port:    8080,
	}

	app, err := newApp(cfg)
	require.NoError(t, err)

	mux := httprouter.New()
	registerAPI(cfg, app, mux)

	return app, mux
}

func doJSON(t *testing.T, mux *httprouter.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAPIAddAndListPlayers(t *testing.T) {
	_, mux := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/players", `{"name":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/players", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, []any{"Alice"}, body["players"])
}

func TestAPIAddDuplicatePlayer(t *testing.T) {
	_, mux := newTestAPI(t)

	require.Equal(t, http.StatusCreated, doJSON(t, mux, http.MethodPost, "/api/players", `{"name":"Alice"}`).Code)

	rec := doJSON(t, mux, http.MethodPost, "/api/players", `{"name":"alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "already registered")
}

func TestAPIAddEmptyPlayer(t *testing.T) {
	_, mux := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/players", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIRemovePlayer(t *testing.T) {
	_, mux := newTestAPI(t)

	doJSON(t, mux, http.MethodPost, "/api/players", `{"name":"Alice"}`)

	assert.Equal(t, http.StatusNoContent, doJSON(t, mux, http.MethodDelete, "/api/players/Alice", "").Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, mux, http.MethodDelete, "/api/players/Alice", "").Code)
}

func TestAPIImportPlayers(t *testing.T) {
	_, mux := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/players/import", `{"players":["Alice","alice","Bob",""]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.EqualValues(t, 2, body["added"])
	assert.EqualValues(t, 2, body["count"])
}

func TestAPICreatePodsInsufficientPlayers(t *testing.T) {
	_, mux := newTestAPI(t)

	doJSON(t, mux, http.MethodPost, "/api/players", `{"name":"Alice"}`)
	doJSON(t, mux, http.MethodPost, "/api/players", `{"name":"Bob"}`)

	rec := doJSON(t, mux, http.MethodPost, "/api/pods", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "at least 3 players")
}

func TestAPICreatePodsAndHistory(t *testing.T) {
	app, mux := newTestAPI(t)

	app.roster.Import(namedPlayers(10))

	rec := doJSON(t, mux, http.MethodPost, "/api/pods", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	pods := body["pods"].([]any)
	assert.Len(t, pods, 2)

	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 10, stats["total_players"])

	rec = doJSON(t, mux, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])
}

func TestAPIHistoryLimitAndClear(t *testing.T) {
	app, mux := newTestAPI(t)

	app.roster.Import(namedPlayers(8))
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doJSON(t, mux, http.MethodPost, "/api/pods", "").Code)
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/history?limit=2", "")
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	assert.Equal(t, http.StatusNoContent, doJSON(t, mux, http.MethodDelete, "/api/history", "").Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/history", "")
	assert.EqualValues(t, 0, decode(t, rec)["count"])
}

func TestAPISettingsRoundTrip(t *testing.T) {
	_, mux := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, decode(t, rec)["target_pod_size"])

	rec = doJSON(t, mux, http.MethodPut, "/api/settings", `{"target_pod_size":5,"max_pod_size":6}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.EqualValues(t, 5, body["target_pod_size"])
	assert.EqualValues(t, 6, body["max_pod_size"])
}

func TestAPISettingsClampsBadSizes(t *testing.T) {
	_, mux := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPut, "/api/settings", `{"min_pod_size":1,"target_pod_size":2,"max_pod_size":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.EqualValues(t, 3, body["min_pod_size"])
	assert.EqualValues(t, 3, body["target_pod_size"])
	assert.EqualValues(t, 3, body["max_pod_size"])
}

func TestAPIExportImport(t *testing.T) {
	app, mux := newTestAPI(t)

	app.roster.Import([]string{"Alice", "Bob"})
	require.NoError(t, app.SaveRoster())

	rec := doJSON(t, mux, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)

	otherApp, otherMux := newTestAPI(t)
	doJSON(t, otherMux, http.MethodPost, "/api/players", `{"name":"Carol"}`)

	rec = doJSON(t, otherMux, http.MethodPost, "/api/import?merge=true", rec.Body.String())
	require.Equal(t, http.StatusOK, rec.Code)

	assert.ElementsMatch(t, []string{"Alice", "Bob", "Carol"}, otherApp.roster.Players())
}
