// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// Session drives one browser tab over the Chrome DevTools Protocol and
// implements schemas.Backend. All operations run against the session's CDP
// context combined with the caller's deadline.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func()
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Running reports whether the session still has a live CDP connection.
func (s *Session) Running() bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	return s.ctx.Err() == nil
}

// Close terminates the session. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session.", zap.String("session_id", s.id))
		close(s.closed)

		// Ask the tab to stop any in-flight load before tearing it down. The
		// detached context keeps the CDP target reachable even when the
		// session context is already cancelled; the timeout bounds a dead tab.
		stopCtx, stopCancel := context.WithTimeout(Detach(s.ctx), time.Second)
		if err := chromedp.Run(stopCtx, chromedp.Stop()); err != nil {
			s.logger.Debug("Graceful stop before close failed.", zap.Error(err))
		}
		stopCancel()

		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// run executes chromedp actions against the session context, bounded by the
// caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if !s.Running() {
		return schemas.ErrBackendUnavailable
	}
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	return chromedp.Run(opCtx, actions...)
}

// evaluate runs fn (a JS function expression) applied to arg, decoding the
// result into out when out is non-nil.
func (s *Session) evaluate(ctx context.Context, fn string, arg any, out any) error {
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("encoding script argument: %w", err)
	}
	expr := fmt.Sprintf("(%s)(%s)", fn, string(argJSON))
	if out == nil {
		return s.run(ctx, chromedp.Evaluate(expr, nil))
	}
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// -- Navigation and Observation --

// Navigate loads the given URL and waits for the document to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating", zap.String("url", url))

	navCtx, navCancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer navCancel()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.cfg.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.PostLoadWait))
	}
	if err := s.run(navCtx, actions...); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the URL of the active page.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Title returns the document title of the active page.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// CollectSnapshot observes the active page: URL, title, visible text and the
// interactive elements with stable indexes and generated selectors.
func (s *Session) CollectSnapshot(ctx context.Context) (*schemas.PageSnapshot, error) {
	snap := &schemas.PageSnapshot{CollectedAt: time.Now().UTC()}

	var elementsJSON string
	err := s.run(ctx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.Evaluate(visibleTextScript, &snap.VisibleText),
		chromedp.Evaluate(collectElementsScript, &elementsJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("collecting page snapshot: %w", err)
	}

	if strings.TrimSpace(snap.VisibleText) == "" {
		// Script based extraction came back empty; fall back to parsing the
		// raw markup.
		if html, htmlErr := s.outerHTML(ctx); htmlErr == nil {
			snap.VisibleText = visibleTextFromHTML(html)
		}
	}

	if err := json.UnmarshalFromString(elementsJSON, &snap.Elements); err != nil {
		return nil, fmt.Errorf("decoding interactive elements: %w", err)
	}

	s.logger.Debug("Snapshot collected.",
		zap.String("url", snap.URL),
		zap.Int("elements", len(snap.Elements)),
	)
	return snap, nil
}

func (s *Session) outerHTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		node, err := dom.GetDocument().Do(cdpCtx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(cdpCtx)
		return err
	}))
	return html, err
}

// -- Element Location --

// Find locates a visible element matching the selector without waiting.
func (s *Session) Find(ctx context.Context, selector string) (schemas.ElementHandle, error) {
	var found bool
	if err := s.evaluate(ctx, findImmediateScript, selector, &found); err != nil {
		return schemas.ElementHandle{}, err
	}
	if !found {
		return schemas.ElementHandle{}, fmt.Errorf("no visible element matches %q", selector)
	}
	return schemas.ElementHandle{Selector: selector}, nil
}

// WaitAttached waits for an element matching the selector to be attached to
// the DOM, visible or not.
func (s *Session) WaitAttached(ctx context.Context, selector string) (schemas.ElementHandle, error) {
	waitCtx, waitCancel := context.WithTimeout(ctx, s.cfg.FindTimeout)
	defer waitCancel()

	if err := s.run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return schemas.ElementHandle{}, fmt.Errorf("waiting for %q to attach: %w", selector, err)
	}
	return schemas.ElementHandle{Selector: selector}, nil
}

// FindByText locates a visible element whose trimmed text equals the given
// string exactly.
func (s *Session) FindByText(ctx context.Context, text string) (schemas.ElementHandle, error) {
	var selector *string
	if err := s.evaluate(ctx, findByTextScript, text, &selector); err != nil {
		return schemas.ElementHandle{}, err
	}
	if selector == nil || *selector == "" {
		return schemas.ElementHandle{}, fmt.Errorf("no visible element has text %q", text)
	}
	return schemas.ElementHandle{Selector: *selector}, nil
}

// -- Interaction --

// Click dispatches a native click on the element.
func (s *Session) Click(ctx context.Context, el schemas.ElementHandle) error {
	return s.run(ctx, chromedp.Click(el.Selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// ScrollIntoView scrolls the element into the viewport.
func (s *Session) ScrollIntoView(ctx context.Context, el schemas.ElementHandle) error {
	return s.run(ctx, chromedp.ScrollIntoView(el.Selector, chromedp.ByQuery))
}

// WaitVisible waits for the element to become visible.
func (s *Session) WaitVisible(ctx context.Context, el schemas.ElementHandle) error {
	waitCtx, waitCancel := context.WithTimeout(ctx, s.cfg.FindTimeout)
	defer waitCancel()
	return s.run(waitCtx, chromedp.WaitVisible(el.Selector, chromedp.ByQuery))
}

// ClickJS clicks the element via script injection, bypassing hit testing.
func (s *Session) ClickJS(ctx context.Context, el schemas.ElementHandle) error {
	var ok bool
	if err := s.evaluate(ctx, clickJSScript, el.Selector, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("JS click target %q not found", el.Selector)
	}
	return nil
}

// FocusAndEnter focuses the element and sends an Enter keypress.
func (s *Session) FocusAndEnter(ctx context.Context, el schemas.ElementHandle) error {
	return s.run(ctx,
		chromedp.Focus(el.Selector, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter),
	)
}

// ForceClick dispatches a synthesized click event directly on the node,
// ignoring visibility and overlays.
func (s *Session) ForceClick(ctx context.Context, el schemas.ElementHandle) error {
	var ok bool
	if err := s.evaluate(ctx, forceClickScript, el.Selector, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("force click target %q not found", el.Selector)
	}
	return nil
}

// TypeText clears the element and types the given text into it.
func (s *Session) TypeText(ctx context.Context, el schemas.ElementHandle, text string) error {
	return s.run(ctx,
		chromedp.Focus(el.Selector, chromedp.ByQuery),
		chromedp.SetValue(el.Selector, "", chromedp.ByQuery),
		chromedp.SendKeys(el.Selector, text, chromedp.ByQuery),
	)
}

// Text returns the element's visible text content.
func (s *Session) Text(ctx context.Context, el schemas.ElementHandle) (string, error) {
	var out string
	if err := s.run(ctx, chromedp.Text(el.Selector, &out, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Attribute returns the value of the named attribute.
func (s *Session) Attribute(ctx context.Context, el schemas.ElementHandle, name string) (string, bool, error) {
	var value string
	var ok bool
	if err := s.run(ctx, chromedp.AttributeValue(el.Selector, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", false, err
	}
	return value, ok, nil
}

// Scroll scrolls the viewport by the given pixel delta; positive is down.
func (s *Session) Scroll(ctx context.Context, deltaY float64) error {
	var yAfter float64
	return s.evaluate(ctx, scrollByScript, deltaY, &yAfter)
}

// Screenshot captures the viewport and writes it to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("capturing screenshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating screenshot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("writing screenshot: %w", err)
	}
	s.logger.Debug("Screenshot saved.", zap.String("path", path))
	return nil
}

// EvaluateScript runs the script in the page and decodes its result into out.
func (s *Session) EvaluateScript(ctx context.Context, script string, out any) error {
	if out == nil {
		return s.run(ctx, chromedp.Evaluate(script, nil))
	}
	return s.run(ctx, chromedp.Evaluate(script, out))
}
