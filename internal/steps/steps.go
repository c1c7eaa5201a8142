// Package steps registers the protocol checks as godog step definitions.
//
// Besides the two assertions it provides the few navigation steps needed to
// reach a page. Relative paths are resolved against the configured base URL.
//
//	Given I am on "/news"
//	Then the response should not contain internal http urls
//	And I should not see any internal http urls in JavaScript
package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/cucumber/godog"

	"github.com/dennisinteractive/godog-protocol/internal/config"
	"github.com/dennisinteractive/godog-protocol/internal/logging"
	"github.com/dennisinteractive/godog-protocol/internal/protocol"
	"github.com/dennisinteractive/godog-protocol/internal/session"
)

// Options configures the protocol steps.
type Options struct {
	// BaseURL resolves relative paths in navigation steps and is the primary
	// base URL of the checks.
	BaseURL string
	// Checker holds extra checker options such as hosts and headers.
	Checker []protocol.Option
	// NewSession opens the session of a scenario. It defaults to an HTTP
	// driver session.
	NewSession func(ctx context.Context) (session.Session, error)
}

// OptionsFromConfig builds step options from a loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	sessOpts := cfg.SessionOptions()
	return Options{
		BaseURL: cfg.BaseURL,
		Checker: cfg.CheckerOptions(),
		NewSession: func(ctx context.Context) (session.Session, error) {
			return session.Open(ctx, sessOpts)
		},
	}
}

// ProtocolContext holds the state of one scenario.
type ProtocolContext struct {
	opts    Options
	sess    session.Session
	checker *protocol.Checker
}

// InitializeScenario registers the protocol steps and the hooks that open a
// session before each scenario and strip injected headers after it.
func InitializeScenario(sc *godog.ScenarioContext, opts Options) *ProtocolContext {
	pc := &ProtocolContext{opts: opts}

	sc.Before(pc.before)
	sc.After(pc.after)

	sc.Step(`^I am on "([^"]*)"$`, pc.iAmOn)
	sc.Step(`^I go to "([^"]*)"$`, pc.iAmOn)
	sc.Step(`^I am on (?:the )?homepage$`, pc.iAmOnHomepage)
	sc.Step(`^the response status code should be (\d+)$`, pc.theResponseStatusCodeShouldBe)

	sc.Step(`^the response should not contain internal http urls$`, pc.TheResponseShouldNotContainInternalHTTPURLs)
	sc.Step(`^I should not see any internal http urls in JavaScript$`, pc.IShouldNotSeeAnyInternalHTTPURLsInJavaScript)

	return pc
}

func (pc *ProtocolContext) before(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
	newSession := pc.opts.NewSession
	if newSession == nil {
		newSession = func(ctx context.Context) (session.Session, error) {
			return session.Open(ctx, session.Options{Driver: session.DriverHTTP})
		}
	}
	sess, err := newSession(ctx)
	if err != nil {
		return ctx, fmt.Errorf("open session: %w", err)
	}
	pc.sess = sess

	opts := make([]protocol.Option, 0, len(pc.opts.Checker)+1)
	if pc.opts.BaseURL != "" {
		opts = append(opts, protocol.WithBaseURL(pc.opts.BaseURL))
	}
	opts = append(opts, pc.opts.Checker...)
	pc.checker = protocol.New(sess, opts...)
	return ctx, nil
}

// after runs whether or not the scenario failed.
func (pc *ProtocolContext) after(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
	if pc.sess == nil {
		return ctx, nil
	}
	var errs []error
	if err := pc.checker.Cleanup(ctx); err != nil {
		errs = append(errs, err)
	}
	if closer, ok := pc.sess.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}
	pc.sess, pc.checker = nil, nil
	return ctx, errors.Join(errs...)
}

// TheResponseShouldNotContainInternalHTTPURLs implements
// "the response should not contain internal http urls".
func (pc *ProtocolContext) TheResponseShouldNotContainInternalHTTPURLs(ctx context.Context) error {
	if err := pc.ready(); err != nil {
		return err
	}
	return pc.checker.AssertResponseNotContainsHTTPURLs(ctx)
}

// IShouldNotSeeAnyInternalHTTPURLsInJavaScript implements
// "I should not see any internal http urls in JavaScript".
func (pc *ProtocolContext) IShouldNotSeeAnyInternalHTTPURLsInJavaScript(ctx context.Context) error {
	if err := pc.ready(); err != nil {
		return err
	}
	return pc.checker.AssertNoHTTPScriptReferences(ctx)
}

func (pc *ProtocolContext) iAmOn(ctx context.Context, path string) error {
	if err := pc.ready(); err != nil {
		return err
	}
	target, err := pc.locatePath(path)
	if err != nil {
		return err
	}
	logging.Debugf("step visit %s", target)
	return pc.sess.Visit(ctx, target)
}

func (pc *ProtocolContext) iAmOnHomepage(ctx context.Context) error {
	return pc.iAmOn(ctx, "/")
}

func (pc *ProtocolContext) theResponseStatusCodeShouldBe(ctx context.Context, code int) error {
	if err := pc.ready(); err != nil {
		return err
	}
	return session.AssertStatusCode(ctx, pc.sess, code)
}

// locatePath joins relative paths onto the base URL.
func (pc *ProtocolContext) locatePath(path string) (string, error) {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path, nil
	}
	if pc.opts.BaseURL == "" {
		return "", fmt.Errorf("cannot resolve %q without a base URL", path)
	}
	return strings.TrimRight(pc.opts.BaseURL, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

func (pc *ProtocolContext) ready() error {
	if pc.sess == nil {
		return errors.New("protocol steps used outside of a scenario")
	}
	return nil
}
