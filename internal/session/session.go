// Package session defines the browser session contract the protocol checks
// run against, and the drivers implementing it.
//
// Two drivers are provided. HTTPSession issues plain HTTP requests and
// queries the returned markup; ChromeSession drives a headless Chrome through
// the DevTools protocol. Both expose the page DOM through goquery so element
// lookups behave the same regardless of driver.
//
// Request header manipulation is an optional capability: callers should type
// assert a Session to HeaderSetter and skip header injection when the driver
// does not provide it.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoPage is returned by page accessors before any page has been visited.
var ErrNoPage = errors.New("session: no page loaded")

// Session is the browser interaction a check runs against.
type Session interface {
	// CurrentURL returns the URL of the loaded page after redirects.
	CurrentURL(ctx context.Context) (string, error)
	// Visit navigates to an absolute URL. Non-2xx responses are not errors.
	Visit(ctx context.Context, url string) error
	// Reload requests the current URL again.
	Reload(ctx context.Context) error
	// FindAll returns the elements of the loaded page matching a CSS selector.
	FindAll(ctx context.Context, selector string) ([]*Element, error)
	// Content returns the response body of the loaded page.
	Content(ctx context.Context) (string, error)
	// StatusCode returns the HTTP status of the loaded page.
	StatusCode(ctx context.Context) (int, error)
}

// HeaderSetter is implemented by drivers that can attach custom request
// headers to subsequent requests.
type HeaderSetter interface {
	SetHeader(ctx context.Context, name, value string) error
	RemoveHeader(ctx context.Context, name string) error
}

// Element is a DOM node found on the loaded page.
type Element struct {
	sel *goquery.Selection
}

// NewElement wraps a goquery selection holding a single node.
func NewElement(sel *goquery.Selection) *Element {
	return &Element{sel: sel}
}

// Attribute returns the named attribute and whether it is present.
func (e *Element) Attribute(name string) (string, bool) {
	return e.sel.Attr(name)
}

// HasAttribute reports whether the named attribute is present.
func (e *Element) HasAttribute(name string) bool {
	_, ok := e.sel.Attr(name)
	return ok
}

// Text returns the raw text content. For script elements this is the
// unescaped script source.
func (e *Element) Text() string {
	return e.sel.Text()
}

// findAll parses markup and collects the nodes matching selector.
func findAll(markup, selector string) ([]*Element, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	var elems []*Element
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		elems = append(elems, NewElement(sel))
	})
	return elems, nil
}
