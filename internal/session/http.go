package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/dennisinteractive/godog-protocol/internal/logging"
)

// HTTPSession is a Session backed by a plain HTTP client. It does not run
// scripts; the DOM is the markup returned by the server.
type HTTPSession struct {
	client *http.Client

	mu         sync.Mutex
	headers    http.Header
	currentURL string
	body       string
	status     int
}

// NewHTTPSession returns a session issuing requests through client.
func NewHTTPSession(client *http.Client) *HTTPSession {
	return &HTTPSession{client: client, headers: make(http.Header)}
}

// Visit fetches url and records the final URL, status and body.
func (s *HTTPSession) Visit(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("visit %s: %w", url, err)
	}
	s.mu.Lock()
	for name, values := range s.headers {
		req.Header[name] = append([]string(nil), values...)
	}
	s.mu.Unlock()

	logging.Debugf("http GET %s", url)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("visit %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}

	s.mu.Lock()
	s.currentURL = resp.Request.URL.String()
	s.status = resp.StatusCode
	s.body = string(body)
	s.mu.Unlock()
	logging.Debugf("http %s status %d body %dB", s.currentURL, resp.StatusCode, len(body))
	return nil
}

// Reload requests the current URL again.
func (s *HTTPSession) Reload(ctx context.Context) error {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return err
	}
	return s.Visit(ctx, url)
}

// CurrentURL returns the URL of the last response after redirects.
func (s *HTTPSession) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentURL == "" {
		return "", ErrNoPage
	}
	return s.currentURL, nil
}

// Content returns the raw body of the last response.
func (s *HTTPSession) Content(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentURL == "" {
		return "", ErrNoPage
	}
	return s.body, nil
}

// StatusCode returns the status of the last response.
func (s *HTTPSession) StatusCode(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentURL == "" {
		return 0, ErrNoPage
	}
	return s.status, nil
}

// FindAll queries the markup of the last response.
func (s *HTTPSession) FindAll(ctx context.Context, selector string) ([]*Element, error) {
	body, err := s.Content(ctx)
	if err != nil {
		return nil, err
	}
	return findAll(body, selector)
}

// SetHeader attaches a header to every following request.
func (s *HTTPSession) SetHeader(_ context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers.Set(name, value)
	return nil
}

// RemoveHeader stops sending the named header.
func (s *HTTPSession) RemoveHeader(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers.Del(name)
	return nil
}

// Headers returns a copy of the headers currently attached to requests.
func (s *HTTPSession) Headers() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers.Clone()
}
