package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/claimwiz/internal/store"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type countingFetcher struct {
	responses map[string]Response
	calls     map[string]int
}

func newCountingFetcher(responses map[string]Response) *countingFetcher {
	return &countingFetcher{responses: responses, calls: map[string]int{}}
}

func (f *countingFetcher) Fetch(_ context.Context, url string) (Response, error) {
	f.calls[url]++
	resp, ok := f.responses[url]
	if !ok {
		return Response{}, errors.New("network unreachable")
	}
	return resp, nil
}

func ok(body string) Response {
	return Response{Status: http.StatusOK, ContentType: "text/plain", Body: []byte(body)}
}

func TestInstall_AllOrNothing(t *testing.T) {
	s := createTestStore(t)
	f := newCountingFetcher(map[string]Response{
		"/":                  ok("index"),
		"/static/js/main.js": ok("js"),
		"/missing.css":       {Status: http.StatusNotFound},
	})
	c := New(s, f, "")
	assert.Equal(t, DefaultCacheName, c.Name())

	err := c.Install(t.Context(), []string{"/", "/static/js/main.js", "/missing.css"})
	require.Error(t, err)
	_, err = s.GetAsset(t.Context(), DefaultCacheName, "/")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, c.Install(t.Context(), []string{"/", "/static/js/main.js"}))
	a, err := s.GetAsset(t.Context(), DefaultCacheName, "/static/js/main.js")
	require.NoError(t, err)
	assert.Equal(t, "js", string(a.Body))
}

func TestFetch_CacheFirst(t *testing.T) {
	s := createTestStore(t)
	f := newCountingFetcher(map[string]Response{"/": ok("index")})
	c := New(s, f, "")

	resp, src, err := c.Fetch(t.Context(), "/")
	require.NoError(t, err)
	assert.Equal(t, FromNetwork, src)
	assert.Equal(t, "index", string(resp.Body))

	// Offline now: the cached copy is served.
	delete(f.responses, "/")
	resp, src, err = c.Fetch(t.Context(), "/")
	require.NoError(t, err)
	assert.Equal(t, FromCache, src)
	assert.Equal(t, "index", string(resp.Body))
	assert.Equal(t, 1, f.calls["/"])
}

func TestFetch_NonOKNotCached(t *testing.T) {
	s := createTestStore(t)
	f := newCountingFetcher(map[string]Response{"/gone": {Status: http.StatusNotFound}})
	c := New(s, f, "")

	resp, _, err := c.Fetch(t.Context(), "/gone")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	_, src, err := c.Fetch(t.Context(), "/gone")
	require.NoError(t, err)
	assert.Equal(t, FromNetwork, src)
	assert.Equal(t, 2, f.calls["/gone"])
}

func TestFetch_OtherOriginsPassThrough(t *testing.T) {
	s := createTestStore(t)
	const (
		pixel = "https://tracker.example.net/pixel"
		font  = "https://cdnjs.cloudflare.com/ajax/libs/fa/all.min.css"
	)
	f := newCountingFetcher(map[string]Response{pixel: ok("x"), font: ok("css")})
	c := New(s, f, "", WithAllowedOrigins("https://claims.example.gov", "https://cdnjs.cloudflare.com/"))

	_, src, err := c.Fetch(t.Context(), pixel)
	require.NoError(t, err)
	assert.Equal(t, Passthrough, src)
	_, err = s.GetAsset(t.Context(), DefaultCacheName, pixel)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, src, err = c.Fetch(t.Context(), font)
	require.NoError(t, err)
	assert.Equal(t, FromNetwork, src)
	_, src, err = c.Fetch(t.Context(), font)
	require.NoError(t, err)
	assert.Equal(t, FromCache, src)
}

func TestActivate_RemovesOtherGenerations(t *testing.T) {
	s := createTestStore(t)
	f := newCountingFetcher(map[string]Response{"/": ok("index")})

	old := New(s, f, "tax-filing-cache-v0")
	require.NoError(t, old.Install(t.Context(), []string{"/"}))
	cur := New(s, f, "")
	require.NoError(t, cur.Install(t.Context(), []string{"/"}))

	removed, err := cur.Activate(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"tax-filing-cache-v0"}, removed)

	names, err := s.AssetCacheNames(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultCacheName}, names)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body{}"))
	}))
	defer srv.Close()

	resp, err := HTTPFetcher{Client: srv.Client()}.Fetch(t.Context(), srv.URL+"/app.css")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "text/css", resp.ContentType)
	assert.Equal(t, "body{}", string(resp.Body))
}
