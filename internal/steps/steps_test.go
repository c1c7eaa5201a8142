package steps

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dennisinteractive/godog-protocol/internal/config"
	"github.com/dennisinteractive/godog-protocol/internal/protocol"
	"github.com/dennisinteractive/godog-protocol/internal/session"
)

// newSite serves pages that link to themselves over https only when the
// request carries X-Forwarded-Proto: https, like an app behind a TLS proxy.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		self := scheme + "://" + r.Host

		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, `<!doctype html><html><head>
<script src="/js/app.js"></script>
<script src="//%s/js/lib.js"></script>
<script src="https://cdn.example.org/x.js"></script>
</head><body><a href="%s/about">About</a></body></html>`, r.Host, self)
		case "/article":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, `<!doctype html><html><head>
<script>requirejs.config({"paths":{"mod":"https://%s/js/mod"}});</script>
</head><body><a href="%s/">Home</a></body></html>`, r.Host, self)
		case "/leaky":
			fmt.Fprintf(w, `<html><body><img src="http://%s/logo.png"></body></html>`, r.Host)
		case "/leaky-script":
			fmt.Fprint(w, `<html><head><script src="/js/leaky.js"></script></head></html>`)
		case "/js/app.js":
			fmt.Fprintf(w, `var api = "%s/api";`, self)
		case "/js/lib.js":
			fmt.Fprint(w, `var lib = 1;`)
		case "/js/mod.js":
			fmt.Fprintf(w, `define({url: "%s/mod"});`, self)
		case "/js/leaky.js":
			fmt.Fprintf(w, `var api = "http://%s/api";`, r.Host)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeatures(t *testing.T) {
	srv := newSite(t)

	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			InitializeScenario(sc, Options{BaseURL: srv.URL})
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// startScenario runs the Before hook the way godog would.
func startScenario(t *testing.T, opts Options) *ProtocolContext {
	t.Helper()
	pc := &ProtocolContext{opts: opts}
	_, err := pc.before(context.Background(), nil)
	require.NoError(t, err)
	return pc
}

func TestLeakingPageFails(t *testing.T) {
	srv := newSite(t)
	ctx := context.Background()
	pc := startScenario(t, Options{BaseURL: srv.URL})
	sess := pc.sess.(*session.HTTPSession)

	require.NoError(t, pc.iAmOn(ctx, "/leaky"))
	err := pc.TheResponseShouldNotContainInternalHTTPURLs(ctx)

	var leak *protocol.LeakError
	require.ErrorAs(t, err, &leak)
	assert.Equal(t, srv.URL, leak.Term)
	assert.Equal(t, srv.URL+"/leaky", leak.PageURL)

	_, err = pc.after(ctx, nil, err)
	require.NoError(t, err)
	assert.Empty(t, sess.Headers())
}

func TestPageLeaksWithoutForwardedProto(t *testing.T) {
	srv := newSite(t)
	ctx := context.Background()
	pc := startScenario(t, Options{
		BaseURL: srv.URL,
		Checker: []protocol.Option{protocol.WithHeaders(map[string]string{protocol.ForwardedProtoHeader: ""})},
	})

	require.NoError(t, pc.iAmOnHomepage(ctx))
	var leak *protocol.LeakError
	require.ErrorAs(t, pc.TheResponseShouldNotContainInternalHTTPURLs(ctx), &leak)
	assert.Equal(t, srv.URL+"/", leak.PageURL)
}

func TestLeakingScriptFails(t *testing.T) {
	srv := newSite(t)
	ctx := context.Background()
	pc := startScenario(t, Options{BaseURL: srv.URL})

	require.NoError(t, pc.iAmOn(ctx, "/leaky-script"))
	require.NoError(t, pc.TheResponseShouldNotContainInternalHTTPURLs(ctx))

	var leak *protocol.LeakError
	require.ErrorAs(t, pc.IShouldNotSeeAnyInternalHTTPURLsInJavaScript(ctx), &leak)
	assert.Equal(t, srv.URL+"/js/leaky.js", leak.PageURL)

	current, err := pc.sess.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/leaky-script", current)
}

func TestStatusCodeStep(t *testing.T) {
	srv := newSite(t)
	ctx := context.Background()
	pc := startScenario(t, Options{BaseURL: srv.URL})

	require.NoError(t, pc.iAmOn(ctx, srv.URL+"/nowhere"))
	require.NoError(t, pc.theResponseStatusCodeShouldBe(ctx, http.StatusNotFound))
	assert.EqualError(t, pc.theResponseStatusCodeShouldBe(ctx, http.StatusOK),
		"Current response status code is 404, but 200 expected.")
}

type closingSession struct {
	session.Session
	closed int
}

func (s *closingSession) Close() error {
	s.closed++
	return nil
}

func TestAfterClosesSession(t *testing.T) {
	cs := &closingSession{Session: session.NewHTTPSession(http.DefaultClient)}
	pc := startScenario(t, Options{
		BaseURL: "https://example.com",
		NewSession: func(context.Context) (session.Session, error) {
			return cs, nil
		},
	})

	_, err := pc.after(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cs.closed)
	assert.EqualError(t, pc.TheResponseShouldNotContainInternalHTTPURLs(context.Background()),
		"protocol steps used outside of a scenario")
}

func TestBeforeFailsWhenSessionCannotOpen(t *testing.T) {
	pc := &ProtocolContext{opts: Options{
		NewSession: func(context.Context) (session.Session, error) {
			return nil, fmt.Errorf("no browser")
		},
	}}
	_, err := pc.before(context.Background(), nil)
	assert.EqualError(t, err, "open session: no browser")
}

func TestLocatePath(t *testing.T) {
	pc := &ProtocolContext{opts: Options{BaseURL: "https://example.com/"}}

	tests := map[string]string{
		"/":                      "https://example.com/",
		"news":                   "https://example.com/news",
		"/news?page=2":           "https://example.com/news?page=2",
		"http://other.example/x": "http://other.example/x",
	}
	for in, want := range tests {
		got, err := pc.locatePath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := (&ProtocolContext{}).locatePath("/")
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	srv := newSite(t)
	cfg := config.Default()
	cfg.BaseURL = srv.URL
	cfg.Hosts = []string{"cdn.example.org"}

	ctx := context.Background()
	pc := startScenario(t, OptionsFromConfig(cfg))
	assert.IsType(t, &session.HTTPSession{}, pc.sess)

	urls, err := pc.checker.ForbiddenURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL, "http://cdn.example.org"}, urls)

	require.NoError(t, pc.iAmOnHomepage(ctx))
	require.NoError(t, pc.TheResponseShouldNotContainInternalHTTPURLs(ctx))
	require.NoError(t, pc.IShouldNotSeeAnyInternalHTTPURLsInJavaScript(ctx))
}
