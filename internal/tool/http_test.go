package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	RegisterHTTP(r, NewHTTPClient(5*time.Second))
	return r
}

func TestHTTPTool_SuccessParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7, "ok": true}`))
	}))
	defer srv.Close()

	r := newHTTPRegistry(t)
	res, err := r.Invoke(context.Background(), HTTPToolID, map[string]any{
		"url":     srv.URL,
		"method":  "post",
		"headers": map[string]any{"X-Api-Key": "secret"},
		"body":    map[string]any{"q": 1},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 200, res.Output["status"])

	data := res.Output["data"].(map[string]any)
	assert.Equal(t, float64(7), data["id"])
}

func TestHTTPTool_NonSuccessBecomesFailedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such resource", http.StatusNotFound)
	}))
	defer srv.Close()

	r := newHTTPRegistry(t)
	res, err := r.Invoke(context.Background(), HTTPToolID, map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "404")
	assert.Contains(t, res.Error, "no such resource")
	assert.Equal(t, 404, res.Output["status"])
}

func TestHTTPTool_MissingURL(t *testing.T) {
	r := newHTTPRegistry(t)
	res, err := r.Invoke(context.Background(), HTTPToolID, map[string]any{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "requires a url")
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown tool "nope"`)
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry()
	fn := func(context.Context, map[string]any) (Result, error) { return Result{Success: true}, nil }
	r.Register("x", fn)
	assert.Panics(t, func() { r.Register("x", fn) })
}
