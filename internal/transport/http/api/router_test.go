package apihttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"copyflow/internal/store"
	"copyflow/internal/store/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := sqlite.NewSqliteStore(filepath.Join(t.TempDir(), "copyflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv, err := NewServer(ServerConfig{Store: st})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, ts.URL+path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestPostExecutionValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, out := doJSON(t, ts, http.MethodPost, "/v1/copy/executions", map[string]interface{}{
		"strategyId": "alpha",
		// subscriberId missing
		"signalTradeId": 42,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "subscriber")
}

func TestPostExecutionUpsertIsIdempotent(t *testing.T) {
	ts := newTestServer(t)

	payload := map[string]interface{}{
		"strategyId":    "alpha",
		"subscriberId":  7,
		"signalTradeId": 42,
		"side":          "buy",
		"qty":           0.5,
		"price":         60000,
		"status":        "pending",
	}
	resp, out := doJSON(t, ts, http.MethodPost, "/v1/copy/executions", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := out["execution"].(map[string]interface{})

	payload["status"] = "success"
	payload["copiedQty"] = 0.25
	resp, out = doJSON(t, ts, http.MethodPost, "/v1/copy/executions", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := out["execution"].(map[string]interface{})

	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, "success", second["status"])
	assert.Equal(t, 0.25, second["copiedQty"])

	resp, out = doJSON(t, ts, http.MethodGet, "/v1/copy/executions?strategyId=alpha", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["items"], 1)
	assert.Equal(t, float64(1), out["total"])
}

func TestListExecutionsRejectsBadParams(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, ts, http.MethodGet, "/v1/copy/executions?start=not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodGet, "/v1/copy/executions?cursor=%3F%3F", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListExecutionsCursorWalk(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 5; i++ {
		resp, _ := doJSON(t, ts, http.MethodPost, "/v1/copy/executions", map[string]interface{}{
			"strategyId":    "alpha",
			"subscriberId":  1,
			"signalTradeId": 100 + i,
			"status":        "success",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, page1 := doJSON(t, ts, http.MethodGet, "/v1/copy/executions?strategyId=alpha&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, page1["items"], 2)
	assert.Equal(t, true, page1["hasNext"])

	// Walk forward with the keyset cursor derived from the last item.
	last := page1["items"].([]interface{})[1].(map[string]interface{})
	seen := map[float64]bool{}
	for _, it := range page1["items"].([]interface{}) {
		seen[it.(map[string]interface{})["id"].(float64)] = true
	}

	cursor := encodeCursorFromItem(t, last)
	for cursor != "" {
		resp, page := doJSON(t, ts, http.MethodGet,
			fmt.Sprintf("/v1/copy/executions?strategyId=alpha&limit=2&cursor=%s", cursor), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		for _, it := range page["items"].([]interface{}) {
			id := it.(map[string]interface{})["id"].(float64)
			assert.False(t, seen[id], "id %v served twice", id)
			seen[id] = true
		}
		next, _ := page["nextCursor"].(string)
		cursor = next
	}
	assert.Len(t, seen, 5)
}

// encodeCursorFromItem derives a keyset cursor from a listed row, the same
// way a client would when switching from offset to cursor paging.
func encodeCursorFromItem(t *testing.T, item map[string]interface{}) string {
	t.Helper()
	id := int64(item["id"].(float64))
	ms, err := parseTimeParam(item["ts"].(string))
	require.NoError(t, err)
	return encodeCursor(store.Cursor{TS: *ms, ID: id})
}

func TestSubscribeAndPatch(t *testing.T) {
	ts := newTestServer(t)

	resp, out := doJSON(t, ts, http.MethodPost, "/v1/copy/subscribe", map[string]interface{}{
		"strategyId":     "alpha",
		"riskMultiplier": 0.5,
		"maxNotionalUsd": 1000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sub := out["subscriber"].(map[string]interface{})
	assert.Equal(t, true, sub["enabled"])
	id := int64(sub["id"].(float64))

	resp, out = doJSON(t, ts, http.MethodPatch,
		fmt.Sprintf("/v1/copy/subscribers/%d", id), map[string]interface{}{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, out["subscriber"].(map[string]interface{})["enabled"])

	resp, _ = doJSON(t, ts, http.MethodPatch, "/v1/copy/subscribers/9999",
		map[string]interface{}{"enabled": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, out = doJSON(t, ts, http.MethodGet, "/v1/copy/subscribers?strategyId=alpha&enabledOnly=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["items"], 0)
}

func TestIngestTradeDedupe(t *testing.T) {
	ts := newTestServer(t)

	payload := map[string]interface{}{
		"strategyId":     "alpha",
		"orderId":        "ord-1",
		"idempotencyKey": "fill-1",
		"symbol":         "BTC-PERP",
		"side":           "buy",
		"qty":            0.5,
		"price":          60000,
		"meta":           map[string]interface{}{"venue": "binance"},
	}
	resp, out := doJSON(t, ts, http.MethodPost, "/v1/ingest/trades", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["inserted"])

	resp, out = doJSON(t, ts, http.MethodPost, "/v1/ingest/trades", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, out["inserted"])

	resp, out = doJSON(t, ts, http.MethodGet, "/v1/strategies/alpha/trades?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := out["items"].([]interface{})
	require.Len(t, items, 1)
	trade := items[0].(map[string]interface{})
	assert.Equal(t, "BTC-PERP", trade["symbol"])
	assert.Equal(t, "buy", trade["side"])
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, out := doJSON(t, ts, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}
