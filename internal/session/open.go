package session

import (
	"context"
	"fmt"
	"time"
)

// Driver names accepted by Open.
const (
	DriverHTTP   = "http"
	DriverChrome = "chrome"
)

// Options selects and configures a driver.
type Options struct {
	Driver      string
	Timeout     time.Duration
	Quiet       time.Duration
	InsecureTLS bool
}

// Open starts a session with the configured driver. An empty driver name
// selects the HTTP driver.
func Open(_ context.Context, opts Options) (Session, error) {
	switch opts.Driver {
	case "", DriverHTTP:
		return NewHTTPSession(NewHTTPClient(opts.Timeout, opts.InsecureTLS)), nil
	case DriverChrome:
		s, err := NewChromeSession(ChromeOptions{Timeout: opts.Timeout, Quiet: opts.Quiet})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown driver %q", opts.Driver)
}
