// Package protocol asserts that pages, and the scripts they load, never
// reference internal hosts over plain http://.
//
// A Checker runs against a session.Session. Before each assertion it
// attaches the configured request headers (X-Forwarded-Proto: https by
// default) so the site under test renders as it would behind a TLS
// terminating proxy, and removes them again once the assertion returns.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/dennisinteractive/godog-protocol/internal/logging"
	"github.com/dennisinteractive/godog-protocol/internal/session"
)

// Checker runs the protocol assertions against one session.
type Checker struct {
	sess    session.Session
	baseURL string
	hosts   []string
	headers map[string]string
	policy  ScriptPolicy

	applied map[string]struct{}
}

// New returns a Checker for sess. Options are applied in order.
func New(sess session.Session, opts ...Option) *Checker {
	c := &Checker{
		sess:    sess,
		headers: DefaultHeaders(),
		applied: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Headers returns a copy of the headers injected before each assertion.
func (c *Checker) Headers() map[string]string {
	h := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		h[k] = v
	}
	return h
}

// AppliedHeaders returns the names of the headers currently attached to the
// session by this checker, sorted.
func (c *Checker) AppliedHeaders() []string {
	return sortedKeys(c.applied)
}

// ForbiddenURLs returns the base URL forced to http:// followed by
// http://<host> for every configured host.
func (c *Checker) ForbiddenURLs(ctx context.Context) ([]string, error) {
	base := c.baseURL
	if base == "" {
		current, err := c.sess.CurrentURL(ctx)
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(current)
		if err != nil {
			return nil, fmt.Errorf("parse current url %q: %w", current, err)
		}
		base = u.Scheme + "://" + u.Host
	}

	urls := make([]string, 0, len(c.hosts)+1)
	urls = append(urls, strings.ReplaceAll(base, "https://", "http://"))
	for _, host := range c.hosts {
		urls = append(urls, "http://"+host)
	}
	return urls, nil
}

// AssertResponseNotContainsHTTPURLs reloads the current page with the
// configured headers and fails with a LeakError if the response contains any
// forbidden URL.
func (c *Checker) AssertResponseNotContainsHTTPURLs(ctx context.Context) error {
	return c.withHeaders(ctx, func(applied bool) error {
		if applied {
			if err := c.sess.Reload(ctx); err != nil {
				return fmt.Errorf("reload with headers: %w", err)
			}
		}
		forbidden, err := c.ForbiddenURLs(ctx)
		if err != nil {
			return err
		}
		return c.assertNoForbiddenURLs(ctx, forbidden)
	})
}

// AssertNoHTTPScriptReferences visits every internal script of the current
// page and fails with a LeakError if one of them contains a forbidden URL.
// The original page is loaded again before returning.
func (c *Checker) AssertNoHTTPScriptReferences(ctx context.Context) error {
	return c.withHeaders(ctx, func(applied bool) (err error) {
		if applied {
			if err := c.sess.Reload(ctx); err != nil {
				return fmt.Errorf("reload with headers: %w", err)
			}
		}
		pageURL, err := c.sess.CurrentURL(ctx)
		if err != nil {
			return err
		}
		forbidden, err := c.ForbiddenURLs(ctx)
		if err != nil {
			return err
		}
		scripts, err := c.ScriptURLs(ctx)
		if err != nil {
			return err
		}
		if len(scripts.Internal) == 0 {
			return nil
		}

		defer func() {
			if verr := c.sess.Visit(ctx, pageURL); verr != nil && err == nil {
				err = fmt.Errorf("return to %s: %w", pageURL, verr)
			}
		}()

		for _, u := range scripts.Internal {
			if uerr := c.fetchScript(ctx, u); uerr != nil {
				if c.policy == FailUnreachable {
					return uerr
				}
				logging.Warnf("skipping %v", uerr)
				continue
			}
			if err := c.assertNoForbiddenURLs(ctx, forbidden); err != nil {
				return err
			}
		}
		return nil
	})
}

// Cleanup removes every header this checker attached to the session. It is
// safe to call when nothing is attached.
func (c *Checker) Cleanup(ctx context.Context) error {
	hs, ok := c.sess.(session.HeaderSetter)
	if !ok {
		return nil
	}
	var errs []error
	for _, name := range sortedKeys(c.applied) {
		if err := hs.RemoveHeader(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("remove header %s: %w", name, err))
			continue
		}
		delete(c.applied, name)
	}
	return errors.Join(errs...)
}

func (c *Checker) assertNoForbiddenURLs(ctx context.Context, forbidden []string) error {
	for _, term := range forbidden {
		err := session.AssertResponseNotContains(ctx, c.sess, term)
		var expErr *session.ExpectationError
		if errors.As(err, &expErr) {
			pageURL, _ := c.sess.CurrentURL(ctx)
			return &LeakError{PageURL: pageURL, Term: term, Err: expErr}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) fetchScript(ctx context.Context, u string) *UnreachableScriptError {
	if err := c.sess.Visit(ctx, u); err != nil {
		return &UnreachableScriptError{URL: u, Err: err}
	}
	status, err := c.sess.StatusCode(ctx)
	if err != nil {
		return &UnreachableScriptError{URL: u, Err: err}
	}
	if status >= 400 {
		return &UnreachableScriptError{URL: u, Status: status}
	}
	return nil
}

// withHeaders attaches the configured headers, runs fn and removes them on
// every exit path. Sessions without header support run fn unchanged.
func (c *Checker) withHeaders(ctx context.Context, fn func(applied bool) error) (err error) {
	hs, ok := c.sess.(session.HeaderSetter)
	if !ok {
		logging.Debugf("session %T does not take custom headers, skipping injection", c.sess)
		return fn(false)
	}
	if len(c.headers) == 0 {
		logging.Debugf("no headers configured, skipping injection")
		return fn(false)
	}

	defer func() {
		if cerr := c.Cleanup(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for _, name := range sortedKeys(c.headers) {
		if err := hs.SetHeader(ctx, name, c.headers[name]); err != nil {
			return fmt.Errorf("set header %s: %w", name, err)
		}
		c.applied[name] = struct{}{}
	}
	return fn(true)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
