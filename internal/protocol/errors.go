package protocol

import (
	"fmt"

	"github.com/dennisinteractive/godog-protocol/internal/session"
)

// LeakError reports an insecure internal URL found in a response.
type LeakError struct {
	// PageURL is the page or script whose response contained Term.
	PageURL string
	// Term is the forbidden http:// URL that matched.
	Term string
	Err  *session.ExpectationError
}

func (e *LeakError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s contains http:// URL.\n%s", e.PageURL, e.Term)
	}
	return fmt.Sprintf("%s contains http:// URL.\n%s", e.PageURL, e.Err.Message)
}

func (e *LeakError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// UnreachableScriptError reports an internal script that could not be
// fetched while FailUnreachable is in effect.
type UnreachableScriptError struct {
	URL    string
	Status int
	Err    error
}

func (e *UnreachableScriptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("script %s unreachable: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("script %s unreachable: status %d", e.URL, e.Status)
}

func (e *UnreachableScriptError) Unwrap() error { return e.Err }
