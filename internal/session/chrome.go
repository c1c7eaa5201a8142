package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"

	"github.com/dennisinteractive/godog-protocol/internal/logging"
)

// ChromeOptions configures a ChromeSession.
type ChromeOptions struct {
	// Timeout bounds a single navigation including the network idle wait.
	Timeout time.Duration
	// Quiet is how long the network must stay idle before a page counts as
	// loaded. Requests older than Quiet are pruned as lingering.
	Quiet time.Duration
}

// ChromeSession is a Session driving a headless Chrome over the DevTools
// protocol.
type ChromeSession struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	quiet       time.Duration

	mu       sync.Mutex
	requests map[network.RequestID]time.Time
	status   int
	loaded   bool
	headers  network.Headers
}

// NewChromeSession launches a headless browser. Close must be called to
// release it.
func NewChromeSession(opts ChromeOptions) (*ChromeSession, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Quiet <= 0 {
		opts.Quiet = 500 * time.Millisecond
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.NoSandbox,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		ctx:         ctx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		timeout:     opts.Timeout,
		quiet:       opts.Quiet,
		requests:    make(map[network.RequestID]time.Time),
		headers:     make(network.Headers),
	}
	chromedp.ListenTarget(ctx, s.onEvent)

	if err := chromedp.Run(ctx,
		network.Enable(),
		security.Enable(),
		security.SetIgnoreCertificateErrors(true),
	); err != nil {
		s.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return s, nil
}

func (s *ChromeSession) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.mu.Lock()
		s.requests[ev.RequestID] = time.Now()
		s.mu.Unlock()
		logging.Debugf("chrome request %s", ev.Request.URL)
	case *network.EventLoadingFinished:
		s.mu.Lock()
		delete(s.requests, ev.RequestID)
		s.mu.Unlock()
	case *network.EventLoadingFailed:
		s.mu.Lock()
		delete(s.requests, ev.RequestID)
		s.mu.Unlock()
		logging.Debugf("chrome request failed id=%s: %s", ev.RequestID, ev.ErrorText)
	case *network.EventResponseReceived:
		s.mu.Lock()
		if ev.Type == network.ResourceTypeDocument && s.status == 0 {
			s.status = int(ev.Response.Status)
			logging.Debugf("chrome response %d for %s", s.status, ev.Response.URL)
		}
		s.mu.Unlock()
	case *security.EventCertificateError:
		logging.Warnf("chrome certificate error %s", ev.ErrorType)
		go func(id int64) {
			_ = chromedp.Run(s.ctx, security.HandleCertificateError(id, security.CertificateErrorActionContinue))
		}(ev.EventID)
	}
}

// Visit navigates to url and waits until the network has been idle for the
// quiet period or the navigation timeout expires.
func (s *ChromeSession) Visit(ctx context.Context, url string) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	s.mu.Lock()
	s.status = 0
	s.requests = make(map[network.RequestID]time.Time)
	s.mu.Unlock()

	logging.Debugf("chrome navigate to %s", url)
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.waitIdle(runCtx)

	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// waitIdle returns once no request has been in flight for the quiet period.
// Requests running longer than the quiet period are pruned so long polling
// does not block the wait.
func (s *ChromeSession) waitIdle(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			lingering := make([]string, 0, len(s.requests))
			for id := range s.requests {
				lingering = append(lingering, string(id))
			}
			s.mu.Unlock()
			logging.Warnf("chrome idle wait ended: %v, lingering requests %v", ctx.Err(), lingering)
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, start := range s.requests {
				if now.Sub(start) > s.quiet {
					logging.Debugf("chrome pruning lingering request %s", id)
					delete(s.requests, id)
				}
			}
			active := len(s.requests)
			s.mu.Unlock()

			if active > 0 {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = now
				continue
			}
			if now.Sub(idleSince) >= s.quiet {
				return
			}
		}
	}
}

// Reload navigates to the current URL again.
func (s *ChromeSession) Reload(ctx context.Context) error {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return err
	}
	return s.Visit(ctx, url)
}

// CurrentURL returns the location of the loaded document.
func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	if !s.isLoaded() {
		return "", ErrNoPage
	}
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// Content returns the serialized DOM of the loaded document.
func (s *ChromeSession) Content(ctx context.Context) (string, error) {
	if !s.isLoaded() {
		return "", ErrNoPage
	}
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capture html: %w", err)
	}
	return html, nil
}

// StatusCode returns the status of the last document response.
func (s *ChromeSession) StatusCode(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return 0, ErrNoPage
	}
	return s.status, nil
}

// FindAll queries the rendered DOM.
func (s *ChromeSession) FindAll(ctx context.Context, selector string) ([]*Element, error) {
	html, err := s.Content(ctx)
	if err != nil {
		return nil, err
	}
	return findAll(html, selector)
}

// SetHeader adds an extra header to every request the page issues.
func (s *ChromeSession) SetHeader(ctx context.Context, name, value string) error {
	s.mu.Lock()
	s.headers[name] = value
	headers := s.headersLocked()
	s.mu.Unlock()
	return s.run(ctx, network.SetExtraHTTPHeaders(headers))
}

// RemoveHeader stops sending the named extra header.
func (s *ChromeSession) RemoveHeader(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.headers, name)
	headers := s.headersLocked()
	s.mu.Unlock()
	return s.run(ctx, network.SetExtraHTTPHeaders(headers))
}

// Close shuts the browser down.
func (s *ChromeSession) Close() error {
	s.cancelCtx()
	s.cancelAlloc()
	return nil
}

func (s *ChromeSession) headersLocked() network.Headers {
	h := make(network.Headers, len(s.headers))
	for k, v := range s.headers {
		h[k] = v
	}
	return h
}

func (s *ChromeSession) isLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// run executes actions on the browser tab, bounded by the navigation
// timeout and cancelled with ctx.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}
