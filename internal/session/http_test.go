package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `<!doctype html>
<html><head>
<script src="/app.js"></script>
<script>requirejs.config({"paths":{"a":"https://example.com/mod"}});</script>
</head><body>ok</body></html>`

type headerRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (h *headerRecorder) record(v string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, v)
}

func (h *headerRecorder) values() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func newTestServer(t *testing.T, rec *headerRecorder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec != nil {
			rec.record(r.Header.Get("X-Forwarded-Proto"))
		}
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			if _, err := fmt.Fprint(w, testPage); err != nil {
				t.Errorf("write html: %v", err)
			}
		case "/old":
			http.Redirect(w, r, "/", http.StatusFound)
		case "/app.js":
			w.Header().Set("Content-Type", "application/javascript")
			fmt.Fprint(w, "console.log('ok');")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSessionWithoutPage(t *testing.T) {
	s := NewHTTPSession(NewHTTPClient(time.Second, false))
	ctx := context.Background()

	_, err := s.CurrentURL(ctx)
	assert.ErrorIs(t, err, ErrNoPage)
	_, err = s.Content(ctx)
	assert.ErrorIs(t, err, ErrNoPage)
	_, err = s.StatusCode(ctx)
	assert.ErrorIs(t, err, ErrNoPage)
	assert.ErrorIs(t, s.Reload(ctx), ErrNoPage)
}

func TestHTTPSessionVisitFollowsRedirects(t *testing.T) {
	srv := newTestServer(t, nil)
	s := NewHTTPSession(NewHTTPClient(time.Second, false))
	ctx := context.Background()

	require.NoError(t, s.Visit(ctx, srv.URL+"/old"))

	url, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", url)

	code, err := s.StatusCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)

	body, err := s.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, body, "requirejs.config")
}

func TestHTTPSessionNotFoundIsNotAnError(t *testing.T) {
	srv := newTestServer(t, nil)
	s := NewHTTPSession(NewHTTPClient(time.Second, false))

	require.NoError(t, s.Visit(context.Background(), srv.URL+"/missing"))
	require.Error(t, AssertStatusCode(context.Background(), s, http.StatusOK))
	require.NoError(t, AssertStatusCode(context.Background(), s, http.StatusNotFound))
}

func TestHTTPSessionFindAllScripts(t *testing.T) {
	srv := newTestServer(t, nil)
	s := NewHTTPSession(NewHTTPClient(time.Second, false))
	ctx := context.Background()
	require.NoError(t, s.Visit(ctx, srv.URL))

	scripts, err := s.FindAll(ctx, "script")
	require.NoError(t, err)
	require.Len(t, scripts, 2)

	src, ok := scripts[0].Attribute("src")
	assert.True(t, ok)
	assert.Equal(t, "/app.js", src)

	assert.False(t, scripts[1].HasAttribute("src"))
	assert.Equal(t, `requirejs.config({"paths":{"a":"https://example.com/mod"}});`, scripts[1].Text())
}

func TestHTTPSessionHeaders(t *testing.T) {
	rec := &headerRecorder{}
	srv := newTestServer(t, rec)
	s := NewHTTPSession(NewHTTPClient(time.Second, false))
	ctx := context.Background()

	var _ HeaderSetter = s

	require.NoError(t, s.SetHeader(ctx, "X-Forwarded-Proto", "https"))
	require.NoError(t, s.Visit(ctx, srv.URL))
	assert.Equal(t, "https", s.Headers().Get("X-Forwarded-Proto"))

	require.NoError(t, s.RemoveHeader(ctx, "X-Forwarded-Proto"))
	require.NoError(t, s.Reload(ctx))
	assert.Empty(t, s.Headers())

	assert.Equal(t, []string{"https", ""}, rec.values())
}

func TestAssertResponseNotContains(t *testing.T) {
	srv := newTestServer(t, nil)
	s := NewHTTPSession(NewHTTPClient(time.Second, false))
	ctx := context.Background()
	require.NoError(t, s.Visit(ctx, srv.URL))

	require.NoError(t, AssertResponseNotContains(ctx, s, "http://example.com"))

	err := AssertResponseNotContains(ctx, s, "HTTPS://EXAMPLE.COM")
	var expErr *ExpectationError
	require.ErrorAs(t, err, &expErr)
	assert.Contains(t, expErr.Message, `"HTTPS://EXAMPLE.COM"`)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "lynx"})
	assert.EqualError(t, err, `unknown driver "lynx"`)

	s, err := Open(context.Background(), Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &HTTPSession{}, s)
}
