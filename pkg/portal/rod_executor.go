package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/go-rod/rod"
)

const rodLogPrefix = "portal:rod_executor"

// fetchScript runs inside the portal page so the request carries the session cookies.
// It always resolves with the body as text; decoding happens on the Go side.
const fetchScript = `async (method, url, body) => {
	const init = { method, credentials: 'same-origin' };
	if (body !== null) {
		init.headers = { 'Content-Type': 'application/json' };
		init.body = body;
	}
	const response = await fetch(url, init);
	const text = await response.text();
	return { ok: response.ok, status: response.status, statusText: response.statusText, body: text };
}`

// RodOptions configures a RodExecutor.
type RodOptions struct {
	// ControlURL is the DevTools websocket of the browser holding the logged-in session.
	ControlURL string
	// PageURLPattern selects the tab to run fetches from (regular expression on the page URL).
	PageURLPattern string
	// VersionConstraint, when set, is checked against the browser version on connect.
	VersionConstraint string
}

// RodExecutor runs fetches inside a page of an already logged-in Chromium.
// The DevTools connection lives on a context owned by the executor, so it
// outlives the requests that trigger it. The browser itself is never closed.
type RodExecutor struct {
	opts RodOptions

	// ctx bounds every connection; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	browser    *rod.Browser
	page       *rod.Page
	detachConn context.CancelFunc
}

// NewRodExecutor creates an executor; the browser is attached lazily on first use.
func NewRodExecutor(opts RodOptions) *RodExecutor {
	ctx, cancel := context.WithCancel(context.Background())
	return &RodExecutor{opts: opts, ctx: ctx, cancel: cancel}
}

// Connect attaches to the browser and picks the portal page. ctx bounds the
// attach calls only, not the lifetime of the connection.
func (e *RodExecutor) Connect(ctx context.Context) error {
	_, err := e.attach(ctx)
	return err
}

// Ping checks an existing attachment without connecting.
func (e *RodExecutor) Ping(ctx context.Context) error {
	e.mu.Lock()
	browser := e.browser
	e.mu.Unlock()
	if browser == nil {
		return fmt.Errorf("%s - browser not attached", rodLogPrefix)
	}
	if _, err := browser.Context(ctx).Version(); err != nil {
		return fmt.Errorf("%s - browser unreachable: %w", rodLogPrefix, err)
	}
	return nil
}

func (e *RodExecutor) attach(ctx context.Context) (*rod.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s - executor closed", rodLogPrefix)
	}
	if e.page != nil {
		_, err := e.browser.Context(ctx).Version()
		if err == nil {
			return e.page, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s - check browser: %w", rodLogPrefix, ctx.Err())
		}
		slog.Warn(fmt.Sprintf("%s - stale browser connection, reconnecting: %v", rodLogPrefix, err))
		e.detachLocked()
	}

	if e.opts.ControlURL == "" {
		return nil, fmt.Errorf("%s - no browser control URL configured", rodLogPrefix)
	}
	connCtx, detach := context.WithCancel(e.ctx)
	browser := rod.New().ControlURL(e.opts.ControlURL).Context(connCtx)
	if err := browser.Connect(); err != nil {
		detach()
		return nil, fmt.Errorf("%s - failed to connect to browser: %w", rodLogPrefix, err)
	}

	page, err := e.pickPage(browser.Context(ctx))
	if err != nil {
		detach()
		return nil, err
	}
	if info, err := page.Info(); err == nil {
		slog.Info(fmt.Sprintf("%s - attached to page %s", rodLogPrefix, info.URL))
	}
	e.browser, e.page, e.detachConn = browser, page, detach
	return page, nil
}

// pickPage runs on a request-scoped clone of the browser.
func (e *RodExecutor) pickPage(browser *rod.Browser) (*rod.Page, error) {
	if e.opts.VersionConstraint != "" {
		v, err := browser.Version()
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read browser version: %w", rodLogPrefix, err)
		}
		if err := CheckBrowserVersion(v.Product, e.opts.VersionConstraint); err != nil {
			return nil, err
		}
	}

	pages, err := browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("%s - failed to list pages: %w", rodLogPrefix, err)
	}
	pattern := e.opts.PageURLPattern
	if pattern == "" {
		pattern = "juridico"
	}
	page, err := pages.FindByURL(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s - no page matching %q, is the portal open and logged in: %w", rodLogPrefix, pattern, err)
	}
	// Pages inherit the clone's context; rebind to the connection's.
	return page.Context(e.ctx), nil
}

// detachLocked drops the DevTools websocket and forgets the page. It never
// sends Browser.close.
func (e *RodExecutor) detachLocked() {
	if e.detachConn != nil {
		e.detachConn()
	}
	e.browser, e.page, e.detachConn = nil, nil, nil
}

// Execute implements Executor.
func (e *RodExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	page, err := e.attach(ctx)
	if err != nil {
		return nil, err
	}

	var body any
	if req.Body != nil {
		body = string(req.Body)
	}
	obj, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           fetchScript,
		JSArgs:       []interface{}{req.Method, req.URL, body},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - fetch %s %s: %w", rodLogPrefix, req.Method, req.URL, err)
	}

	raw, err := obj.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%s - read fetch result: %w", rodLogPrefix, err)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%s - decode fetch result: %w", rodLogPrefix, err)
	}
	return &res, nil
}

// Close detaches from the browser without closing it; the session belongs to
// the operator. The executor cannot be reused afterwards.
func (e *RodExecutor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detachLocked()
	e.cancel()
}

var productVersion = regexp.MustCompile(`(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// CheckBrowserVersion matches a DevTools product string such as
// "Chrome/126.0.6478.126" against a semver constraint like ">= 110".
func CheckBrowserVersion(product, constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("%s - invalid browser version constraint %q: %w", rodLogPrefix, constraint, err)
	}
	_, after, found := strings.Cut(product, "/")
	if !found {
		after = product
	}
	m := productVersion.FindStringSubmatch(after)
	if m == nil {
		return fmt.Errorf("%s - cannot parse browser version from %q", rodLogPrefix, product)
	}
	parts := []string{m[1], "0", "0"}
	if m[2] != "" {
		parts[1] = m[2]
	}
	if m[3] != "" {
		parts[2] = m[3]
	}
	v, err := semver.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return fmt.Errorf("%s - cannot parse browser version from %q: %w", rodLogPrefix, product, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%s - browser %s does not satisfy %s", rodLogPrefix, product, constraint)
	}
	return nil
}
