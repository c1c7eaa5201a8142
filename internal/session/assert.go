package session

import (
	"context"
	"fmt"
	"strings"
)

// ExpectationError reports a failed assertion against the loaded page.
type ExpectationError struct {
	Message string
}

func (e *ExpectationError) Error() string { return e.Message }

// AssertResponseNotContains fails with an ExpectationError when the response
// body of the loaded page contains needle. The comparison ignores case.
func AssertResponseNotContains(ctx context.Context, s Session, needle string) error {
	body, err := s.Content(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(strings.ToLower(body), strings.ToLower(needle)) {
		return &ExpectationError{
			Message: fmt.Sprintf("The string %q appears in the HTML response of this page, but it should not.", needle),
		}
	}
	return nil
}

// AssertStatusCode fails with an ExpectationError when the loaded page did
// not answer with want.
func AssertStatusCode(ctx context.Context, s Session, want int) error {
	got, err := s.StatusCode(ctx)
	if err != nil {
		return err
	}
	if got != want {
		return &ExpectationError{
			Message: fmt.Sprintf("Current response status code is %d, but %d expected.", got, want),
		}
	}
	return nil
}
