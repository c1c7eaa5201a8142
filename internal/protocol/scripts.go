package protocol

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dennisinteractive/godog-protocol/internal/logging"
	"github.com/dennisinteractive/godog-protocol/internal/session"
)

// requireConfigPattern matches the paths object of an inline RequireJS
// configuration. It stops at the first closing brace, so nested objects are
// not supported.
var requireConfigPattern = regexp.MustCompile(`requirejs.config\(\{"paths":(.*?\})`)

// ScriptURLs holds the absolute script URLs of a page.
type ScriptURLs struct {
	// Internal scripts are served from the page's own host.
	Internal []string
	// External scripts come from any other host.
	External []string
}

// ScriptURLs collects and classifies the scripts of the current page.
func (c *Checker) ScriptURLs(ctx context.Context) (ScriptURLs, error) {
	current, err := c.sess.CurrentURL(ctx)
	if err != nil {
		return ScriptURLs{}, err
	}
	page, err := url.Parse(current)
	if err != nil {
		return ScriptURLs{}, fmt.Errorf("parse current url %q: %w", current, err)
	}
	elems, err := c.sess.FindAll(ctx, "script")
	if err != nil {
		return ScriptURLs{}, fmt.Errorf("find scripts: %w", err)
	}
	return classifyScripts(page, elems), nil
}

func classifyScripts(page *url.URL, elems []*session.Element) ScriptURLs {
	var urls ScriptURLs
	for _, el := range elems {
		src, ok := el.Attribute("src")
		if !ok {
			urls.Internal = append(urls.Internal, moduleLoaderPaths(page, el.Text())...)
			continue
		}
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		resolved, internal, err := resolveScriptSrc(page, src)
		if err != nil {
			logging.Debugf("ignoring script src %q: %v", src, err)
			continue
		}
		if internal {
			urls.Internal = append(urls.Internal, resolved)
		} else {
			urls.External = append(urls.External, resolved)
		}
	}
	return urls
}

// resolveScriptSrc makes src absolute and reports whether it is served from
// the page's host. Internal protocol-relative sources take the page scheme
// since local environments may not serve https; external ones get https.
func resolveScriptSrc(page *url.URL, src string) (string, bool, error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", false, err
	}
	if u.Scheme == "" && u.Host == "" {
		return page.ResolveReference(u).String(), true, nil
	}
	internal := strings.EqualFold(u.Hostname(), page.Hostname())
	if u.Scheme != "" {
		return src, internal, nil
	}
	if internal {
		return page.Scheme + ":" + src, true, nil
	}
	return "https:" + src, false, nil
}

// moduleLoaderPaths extracts the module URLs declared by an inline
// requirejs.config({"paths":{...}}) call. https:// is swapped for the page
// scheme and .js appended. Anything that does not match yields nothing.
func moduleLoaderPaths(page *url.URL, script string) []string {
	m := requireConfigPattern.FindStringSubmatch(script)
	if m == nil || !gjson.Valid(m[1]) {
		return nil
	}
	obj := gjson.Parse(m[1])
	if !obj.IsObject() {
		return nil
	}

	var paths []string
	add := func(p string) {
		p = strings.ReplaceAll(p, "https://", page.Scheme+"://") + ".js"
		if ref, err := url.Parse(p); err == nil && !ref.IsAbs() {
			p = page.ResolveReference(ref).String()
		}
		paths = append(paths, p)
	}
	obj.ForEach(func(_, value gjson.Result) bool {
		switch {
		case value.Type == gjson.String:
			add(value.Str)
		case value.IsArray():
			for _, v := range value.Array() {
				if v.Type == gjson.String {
					add(v.Str)
				}
			}
		}
		return true
	})
	return paths
}
