package protocol

import "net/http"

// ScriptPolicy decides what happens when an internal script cannot be
// fetched during the script reference check.
type ScriptPolicy int

const (
	// SkipUnreachable logs and moves on to the next script.
	SkipUnreachable ScriptPolicy = iota
	// FailUnreachable fails the check with an UnreachableScriptError.
	FailUnreachable
)

// String returns the configuration name of the policy.
func (p ScriptPolicy) String() string {
	if p == FailUnreachable {
		return "fail"
	}
	return "skip"
}

// ForwardedProtoHeader signals HTTPS termination at a proxy.
const ForwardedProtoHeader = "X-Forwarded-Proto"

// DefaultHeaders returns the headers injected when none are configured.
func DefaultHeaders() map[string]string {
	return map[string]string{ForwardedProtoHeader: "https"}
}

// Option configures a Checker.
type Option func(*Checker)

// WithBaseURL sets the primary base URL. Without it the origin of the
// current page is used.
func WithBaseURL(url string) Option {
	return func(c *Checker) {
		c.baseURL = url
	}
}

// WithHosts adds host names whose http:// form must not appear.
func WithHosts(hosts ...string) Option {
	return func(c *Checker) {
		c.hosts = append(c.hosts, hosts...)
	}
}

// WithHeaders merges headers over the defaults. Names are matched case
// insensitively; an empty value removes a default header.
func WithHeaders(headers map[string]string) Option {
	return func(c *Checker) {
		for name, value := range headers {
			name = http.CanonicalHeaderKey(name)
			if value == "" {
				delete(c.headers, name)
				continue
			}
			c.headers[name] = value
		}
	}
}

// WithScriptPolicy sets how unreachable internal scripts are handled.
func WithScriptPolicy(p ScriptPolicy) Option {
	return func(c *Checker) {
		c.policy = p
	}
}
