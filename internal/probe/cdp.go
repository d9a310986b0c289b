// Package probe verifies a running session after patching: it looks for
// leftover cdc_ properties over the DevTools protocol and reads the verdict of
// a headless-detection page.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/tebeka/selenium"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single probe when the caller sets none.
const DefaultTimeout = 15 * time.Second

const chromeOptionsKey = "goog:chromeOptions"

// ErrNoDebuggerAddress is returned when the session does not expose a DevTools endpoint.
var ErrNoDebuggerAddress = errors.New("session capabilities carry no debuggerAddress")

// ErrNoPageTarget is returned when the browser has no page to inspect.
var ErrNoPageTarget = errors.New("no page target found")

// markerScript lists window and document properties containing the marker
// chromedriver injects, along with navigator.webdriver.
const markerScript = `(() => {
	const hits = [];
	for (const name of Object.getOwnPropertyNames(window)) {
		if (name.indexOf('cdc_') !== -1) hits.push('window.' + name);
	}
	for (const name of Object.getOwnPropertyNames(document)) {
		if (name.indexOf('cdc_') !== -1) hits.push('document.' + name);
	}
	return {properties: hits, webdriver: navigator.webdriver === true};
})()`

// MarkerReport is what the page exposes to a fingerprinting script.
type MarkerReport struct {
	Properties []string `json:"properties"`
	Webdriver  bool     `json:"webdriver"`
}

// Clean reports whether nothing automation-specific was visible.
func (r MarkerReport) Clean() bool {
	return len(r.Properties) == 0 && !r.Webdriver
}

// DebuggerAddress extracts the host:port of the browser's DevTools endpoint
// from the capabilities chromedriver returned for the session.
func DebuggerAddress(caps selenium.Capabilities) (string, error) {
	opts, ok := caps[chromeOptionsKey].(map[string]interface{})
	if !ok {
		return "", ErrNoDebuggerAddress
	}
	addr, _ := opts["debuggerAddress"].(string)
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrNoDebuggerAddress
	}
	return addr, nil
}

// CDP inspects pages over the DevTools protocol.
type CDP struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewCDP creates a CDP probe. A non-positive timeout uses DefaultTimeout.
func NewCDP(logger *zap.Logger, timeout time.Duration) *CDP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CDP{logger: logger.Named("cdp_probe"), timeout: timeout}
}

// Markers attaches to the first page target of the browser at
// debuggerAddress and reports the automation markers visible to scripts.
// The attached target is closed when the probe returns, so run it last.
func (c *CDP) Markers(ctx context.Context, debuggerAddress string) (MarkerReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, "ws://"+debuggerAddress)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return MarkerReport{}, fmt.Errorf("failed to list targets at %s: %w", debuggerAddress, err)
	}
	page := firstPage(targets)
	if page == nil {
		return MarkerReport{}, ErrNoPageTarget
	}
	c.logger.Debug("Attaching to page target.",
		zap.String("target_id", string(page.TargetID)),
		zap.String("url", page.URL),
	)

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(page.TargetID))
	defer tabCancel()

	var report MarkerReport
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(markerScript, &report)); err != nil {
		return MarkerReport{}, fmt.Errorf("failed to evaluate marker script: %w", err)
	}

	if report.Clean() {
		c.logger.Info("No automation markers visible.", zap.String("url", page.URL))
	} else {
		c.logger.Warn("Automation markers visible.",
			zap.Strings("properties", report.Properties),
			zap.Bool("webdriver", report.Webdriver),
		)
	}
	return report, nil
}

func firstPage(targets []*target.Info) *target.Info {
	for _, t := range targets {
		if t != nil && t.Type == "page" {
			return t
		}
	}
	return nil
}
