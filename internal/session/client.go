package session

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewHTTPClient returns an HTTP client with the provided timeout. When
// insecure is set TLS verification is disabled so checks run against
// staging hosts presenting self-signed certificates.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}},
	}
}
