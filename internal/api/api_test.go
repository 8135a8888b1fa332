package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/beerprice/internal/normalize"
	"github.com/sells-group/beerprice/internal/runner"
	"github.com/sells-group/beerprice/internal/store"
	"github.com/sells-group/beerprice/internal/vocab"
)

func newTestRouter(t *testing.T, withStore bool, opts Options) (http.Handler, store.Store) {
	t.Helper()
	var st store.Store
	if withStore {
		sq, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { sq.Close() }) //nolint:errcheck
		require.NoError(t, sq.Migrate(context.Background()))
		st = sq
	}
	p := normalize.New(vocab.Default(), normalize.Options{Workers: 2})
	return NewRouter(runner.New(p, st), st, opts), st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const normalizeBody = `{
  "input": "test",
  "listings": [
    {"category": "Stella", "source_reference": "A", "description": "cerveja stella artois lata 350ml", "price": "R$ 5,00", "promotional_price": ""},
    {"category": "Corona", "source_reference": "B", "description": "cerveja corona", "price": "N/A", "promotional_price": "", "unit_price": 0.01}
  ]
}`

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, false, Options{})
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNormalize(t *testing.T) {
	h, _ := newTestRouter(t, false, Options{})
	rec := do(t, h, http.MethodPost, "/v1/normalize", normalizeBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp NormalizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Run)
	require.Len(t, resp.Listings, 2)
	assert.InDelta(t, 14.29, *resp.Listings[0].PricePerLiter, 0.01)
	// Client-supplied enrichment is ignored.
	assert.Nil(t, resp.Listings[1].UnitPrice)

	stella, ok := resp.Summary.Lookup("Stella")
	require.True(t, ok)
	assert.Equal(t, "A", stella.Listing.SourceReference)
	corona, ok := resp.Summary.Lookup("Corona")
	require.True(t, ok)
	assert.False(t, corona.Found)
	assert.Equal(t, 2, resp.Stats.Total)
}

func TestNormalize_BadRequests(t *testing.T) {
	h, _ := newTestRouter(t, false, Options{MaxListings: 1})

	rec := do(t, h, http.MethodPost, "/v1/normalize", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/normalize", `{"listings":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "listings is required")

	rec = do(t, h, http.MethodPost, "/v1/normalize", normalizeBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/normalize", `{"listings":[{"description":"x"}],"persist":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNormalize_PersistAndFetchRun(t *testing.T) {
	h, _ := newTestRouter(t, true, Options{})

	body := strings.Replace(normalizeBody, `"input": "test",`, `"input": "test", "persist": true,`, 1)
	rec := do(t, h, http.MethodPost, "/v1/normalize", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp NormalizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Run)
	id := resp.Run.ID

	rec = do(t, h, http.MethodGet, "/v1/runs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "complete", string(run.Run.Status))
	assert.Equal(t, "test", run.Run.Input)
	require.NotNil(t, run.Summary)
	assert.Len(t, run.Summary.Categories, 2)

	rec = do(t, h, http.MethodGet, "/v1/runs/"+id+"/listings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cerveja stella artois lata 350ml")

	rec = do(t, h, http.MethodGet, "/v1/runs?status=complete&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)
}

func TestRuns_NotFoundAndBadParams(t *testing.T) {
	h, _ := newTestRouter(t, true, Options{})

	rec := do(t, h, http.MethodGet, "/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/runs/missing/listings", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/runs?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/runs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestRuns_NoStore(t *testing.T) {
	h, _ := newTestRouter(t, false, Options{})
	rec := do(t, h, http.MethodGet, "/v1/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS(t *testing.T) {
	h, _ := newTestRouter(t, false, Options{AllowedOrigins: []string{"https://painel.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/normalize", nil)
	req.Header.Set("Origin", "https://painel.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://painel.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
