package scanner

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dennisinteractive/godog-protocol/internal/logging"
	"github.com/dennisinteractive/godog-protocol/internal/protocol"
	"github.com/dennisinteractive/godog-protocol/internal/session"
)

// Options configures Process.
type Options struct {
	Timeout     time.Duration
	InsecureTLS bool
	// CheckScripts also runs the script reference check.
	CheckScripts bool
	Checker      []protocol.Option
	// NewSession opens the session a page is checked in. Each page gets its
	// own session.
	NewSession func(ctx context.Context) (session.Session, error)
}

// Process first performs a simple HTTP GET; if the response code is < 400,
// it opens a session and runs the protocol checks. Otherwise the preflight
// status code is returned immediately.
func Process(ctx context.Context, rec InputRecord, opts Options) Result {
	res := Result{Raw: rec.Raw, URL: rec.URL, StartTime: time.Now().Format(time.RFC3339Nano)}
	logging.Debugf("preflight GET %s", rec.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.URL, nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	client := session.NewHTTPClient(opts.Timeout, opts.InsecureTLS)
	resp, err := client.Do(req)
	if err != nil {
		res.Error = err.Error()
		logging.Warnf("%s preflight error: %v", rec.URL, err)
		return res
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	res.ResponseCode = int64(resp.StatusCode)
	if resp.StatusCode >= 400 {
		logging.Warnf("%s preflight status %d - skipping checks", rec.URL, resp.StatusCode)
		return res
	}
	logging.Debugf("%s preflight status %d - proceeding with checks", rec.URL, resp.StatusCode)
	return check(ctx, res, opts)
}

// check runs the protocol assertions for one page in a fresh session.
func check(ctx context.Context, res Result, opts Options) Result {
	newSession := opts.NewSession
	if newSession == nil {
		newSession = func(ctx context.Context) (session.Session, error) {
			return session.Open(ctx, session.Options{Timeout: opts.Timeout, InsecureTLS: opts.InsecureTLS})
		}
	}
	sess, err := newSession(ctx)
	if err != nil {
		res.Error = err.Error()
		logging.Warnf("%s open session error: %v", res.URL, err)
		return res
	}
	if closer, ok := sess.(io.Closer); ok {
		defer closer.Close()
	}

	if err := sess.Visit(ctx, res.URL); err != nil {
		res.Error = err.Error()
		logging.Warnf("%s visit error: %v", res.URL, err)
		return res
	}
	if code, err := sess.StatusCode(ctx); err == nil {
		res.ResponseCode = int64(code)
	}

	checker := protocol.New(sess, opts.Checker...)
	defer func() {
		if err := checker.Cleanup(ctx); err != nil {
			logging.Warnf("%s header cleanup error: %v", res.URL, err)
		}
	}()

	err = checker.AssertResponseNotContainsHTTPURLs(ctx)
	if err == nil && opts.CheckScripts {
		err = checker.AssertNoHTTPScriptReferences(ctx)
	}

	var leak *protocol.LeakError
	switch {
	case errors.As(err, &leak):
		res.LeakedURL = leak.Term
		res.LeakPage = leak.PageURL
		logging.Warnf("%s leaks %s in %s", res.URL, leak.Term, leak.PageURL)
	case err != nil:
		res.Error = err.Error()
		logging.Warnf("%s check error: %v", res.URL, err)
	default:
		res.PassTest = true
	}
	logging.Infof("%s result code=%d pass=%t", res.URL, res.ResponseCode, res.PassTest)
	return res
}
