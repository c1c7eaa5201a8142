package protocol

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dennisinteractive/godog-protocol/internal/session"
)

type fakePage struct {
	body   string
	status int
	err    error
}

// fakeSession serves canned pages and has no header support.
type fakeSession struct {
	pages   map[string]fakePage
	current string
	visits  []string
}

func newFakeSession(pages map[string]fakePage) *fakeSession {
	return &fakeSession{pages: pages}
}

func (s *fakeSession) Visit(_ context.Context, url string) error {
	s.visits = append(s.visits, url)
	p, ok := s.pages[url]
	if ok && p.err != nil {
		return p.err
	}
	s.current = url
	return nil
}

func (s *fakeSession) Reload(ctx context.Context) error {
	if s.current == "" {
		return session.ErrNoPage
	}
	return s.Visit(ctx, s.current)
}

func (s *fakeSession) CurrentURL(context.Context) (string, error) {
	if s.current == "" {
		return "", session.ErrNoPage
	}
	return s.current, nil
}

func (s *fakeSession) Content(context.Context) (string, error) {
	if s.current == "" {
		return "", session.ErrNoPage
	}
	return s.pages[s.current].body, nil
}

func (s *fakeSession) StatusCode(context.Context) (int, error) {
	if s.current == "" {
		return 0, session.ErrNoPage
	}
	p, ok := s.pages[s.current]
	if !ok {
		return 404, nil
	}
	if p.status == 0 {
		return 200, nil
	}
	return p.status, nil
}

func (s *fakeSession) FindAll(ctx context.Context, selector string) ([]*session.Element, error) {
	body, err := s.Content(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	var elems []*session.Element
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		elems = append(elems, session.NewElement(sel))
	})
	return elems, nil
}

// headerSession adds header support and records the headers sent with
// every visit.
type headerSession struct {
	*fakeSession
	headers map[string]string
	sent    []map[string]string
	setErr  error
}

func newHeaderSession(pages map[string]fakePage) *headerSession {
	return &headerSession{fakeSession: newFakeSession(pages), headers: map[string]string{}}
}

func (s *headerSession) Visit(ctx context.Context, url string) error {
	snapshot := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		snapshot[k] = v
	}
	s.sent = append(s.sent, snapshot)
	return s.fakeSession.Visit(ctx, url)
}

func (s *headerSession) Reload(ctx context.Context) error {
	if s.current == "" {
		return session.ErrNoPage
	}
	return s.Visit(ctx, s.current)
}

func (s *headerSession) SetHeader(_ context.Context, name, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.headers[name] = value
	return nil
}

func (s *headerSession) RemoveHeader(_ context.Context, name string) error {
	delete(s.headers, name)
	return nil
}
