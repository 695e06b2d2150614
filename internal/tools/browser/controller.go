// Package browser implements the browser-automation tool family over
// chromedp: one controller per session holds a headless Chrome context,
// and a family of small Tool wrappers (navigate, click, enter_text, ...)
// dispatch into it so the model can drive a real page.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
)

// antiDetectionScript makes headless automation harder to fingerprint from
// page JavaScript. It is evaluated once in each tab when the tab is opened;
// documents loaded into the tab afterwards do not get it re-applied.
const antiDetectionScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = { runtime: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
`

// InteractiveElement is one clickable/fillable node found on the current
// page, indexed so the model can refer to it by a stable small integer
// instead of a CSS selector.
type InteractiveElement struct {
	Index     int     `json:"index"`
	Tag       string  `json:"tag"`
	Text      string  `json:"text"`
	Selector  string  `json:"selector"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// Controller owns a single browser session: one allocator, one or more
// tabs, and the current interactive-element index used to resolve
// model-provided element indices back to selectors.
type Controller struct {
	mu sync.Mutex

	allocCtx    context.Context
	allocCancel context.CancelFunc

	tabs      []context.Context
	tabCancel []context.CancelFunc
	activeTab int

	elements []InteractiveElement
}

// New creates a Controller with no browser started yet; the first
// Navigate call lazily starts the headless allocator.
func New() *Controller { return &Controller{activeTab: -1} }

func (c *Controller) ensureStartedLocked() error {
	if c.allocCtx != nil {
		return nil
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	c.allocCtx, c.allocCancel = allocCtx, allocCancel
	return c.openTabLocked()
}

func (c *Controller) openTabLocked() error {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx)
	if err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return nil
	})); err != nil {
		tabCancel()
		return fmt.Errorf("%w: starting browser tab: %v", agenterrors.ErrToolRuntime, err)
	}
	_ = chromedp.Run(tabCtx, chromedp.Evaluate(antiDetectionScript, nil))
	c.tabs = append(c.tabs, tabCtx)
	c.tabCancel = append(c.tabCancel, tabCancel)
	c.activeTab = len(c.tabs) - 1
	return nil
}

func (c *Controller) currentTabLocked() (context.Context, error) {
	if err := c.ensureStartedLocked(); err != nil {
		return nil, err
	}
	if c.activeTab < 0 || c.activeTab >= len(c.tabs) {
		return nil, fmt.Errorf("%w: no active browser tab", agenterrors.ErrToolRuntime)
	}
	return c.tabs[c.activeTab], nil
}

// Navigate loads url in the active tab, starting the browser first if it
// was never started or has been torn down by Restart or Close. A crashed
// browser is not detected here.
func (c *Controller) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, err := c.currentTabLocked()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tab, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("%w: navigating to %s: %v", agenterrors.ErrToolRuntime, url, err)
	}
	c.elements = nil
	return nil
}

// Restart tears down the current browser and allocator entirely so the
// next call starts fresh; used after an unrecoverable tab crash.
func (c *Controller) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeAllLocked()
	return nil
}

func (c *Controller) closeAllLocked() {
	for _, cancel := range c.tabCancel {
		cancel()
	}
	c.tabs = nil
	c.tabCancel = nil
	c.activeTab = -1
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.allocCtx, c.allocCancel = nil, nil
	c.elements = nil
}

// Close releases all browser resources; call when the owning session ends.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeAllLocked()
}

// Scroll scrolls the active tab by (dx, dy) pixels.
func (c *Controller) Scroll(ctx context.Context, dx, dy float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, err := c.currentTabLocked()
	if err != nil {
		return err
	}
	return chromedp.Run(tab, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(%f, %f)", dx, dy), nil))
}

// ClickIndex clicks the interactive element previously indexed by
// ViewInteractiveElements.
func (c *Controller) ClickIndex(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, err := c.currentTabLocked()
	if err != nil {
		return err
	}
	sel, err := c.selectorForIndexLocked(index)
	if err != nil {
		return err
	}
	if err := chromedp.Run(tab, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: clicking element %d: %v", agenterrors.ErrToolRuntime, index, err)
	}
	return nil
}

// EnterText types text into the interactive element at index, clearing any
// existing value first.
func (c *Controller) EnterText(ctx context.Context, index int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, err := c.currentTabLocked()
	if err != nil {
		return err
	}
	sel, err := c.selectorForIndexLocked(index)
	if err != nil {
		return err
	}
	if err := chromedp.Run(tab,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("%w: entering text into element %d: %v", agenterrors.ErrToolRuntime, index, err)
	}
	return nil
}

// PressKey sends a single named key (e.g. "Enter", "Tab") to the page.
func (c *Controller) PressKey(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, err := c.currentTabLocked()
	if err != nil {
		return err
	}
	return chromedp.Run(tab, chromedp.KeyEvent(key))
}

// Wait blocks for the given duration, bounded to avoid a runaway call.
func (c *Controller) Wait(ctx context.Context, d time.Duration) error {
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ViewInteractiveElements re-scans the current page's clickable and
// fillable elements, dedupes near-identical bounding boxes by IoU, and
// returns the fresh index.
func (c *Controller) ViewInteractiveElements(ctx context.Context) ([]InteractiveElement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, err := c.currentTabLocked()
	if err != nil {
		return nil, err
	}

	const script = `
(() => {
  const sel = "a, button, input, select, textarea, [role=button], [onclick]";
  const nodes = Array.from(document.querySelectorAll(sel));
  return nodes.map((n, i) => {
    n.setAttribute('data-agentd-index', String(i));
    const r = n.getBoundingClientRect();
    return {
      idx: i,
      tag: n.tagName.toLowerCase(),
      text: (n.innerText || n.value || n.getAttribute('aria-label') || '').trim().slice(0, 80),
      x: r.x, y: r.y, width: r.width, height: r.height
    };
  }).filter(e => e.width > 0 && e.height > 0);
})()`

	var raw []struct {
		Idx    int     `json:"idx"`
		Tag    string  `json:"tag"`
		Text   string  `json:"text"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := chromedp.Run(tab, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, fmt.Errorf("%w: scanning interactive elements: %v", agenterrors.ErrToolRuntime, err)
	}

	elements := make([]InteractiveElement, 0, len(raw))
	for _, r := range raw {
		candidate := InteractiveElement{Tag: r.Tag, Text: r.Text, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
		if overlapsExisting(elements, candidate) {
			continue
		}
		candidate.Index = len(elements)
		candidate.Selector = fmt.Sprintf("[data-agentd-index=\"%d\"]", r.Idx)
		elements = append(elements, candidate)
	}
	c.elements = elements
	return elements, nil
}

func countTag(elements []InteractiveElement, tag string) int {
	n := 0
	for _, e := range elements {
		if e.Tag == tag {
			n++
		}
	}
	return n
}

// overlapsExisting reports whether candidate's bounding box has an
// intersection-over-union above 0.8 with any already-accepted element,
// the dedup threshold for near-identical overlays.
func overlapsExisting(existing []InteractiveElement, candidate InteractiveElement) bool {
	for _, e := range existing {
		if iou(e, candidate) > 0.8 {
			return true
		}
	}
	return false
}

func iou(a, b InteractiveElement) float64 {
	ax2, ay2 := a.X+a.Width, a.Y+a.Height
	bx2, by2 := b.X+b.Width, b.Y+b.Height
	ix1, iy1 := max(a.X, b.X), max(a.Y, b.Y)
	ix2, iy2 := min(ax2, bx2), min(ay2, by2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	intersection := iw * ih
	union := a.Width*a.Height + b.Width*b.Height - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (c *Controller) selectorForIndexLocked(index int) (string, error) {
	if index < 0 || index >= len(c.elements) {
		return "", fmt.Errorf("%w: no interactive element at index %d; call browser_view_interactive_elements first", agenterrors.ErrToolRuntime, index)
	}
	return c.elements[index].Selector, nil
}

// Screenshot captures the active tab as a PNG, base64-encoded.
func (c *Controller) Screenshot(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, err := c.currentTabLocked()
	if err != nil {
		return "", err
	}
	var buf []byte
	if err := chromedp.Run(tab, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return "", fmt.Errorf("%w: screenshot: %v", agenterrors.ErrToolRuntime, err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// OpenNewTab opens a fresh tab on about:blank and makes it active,
// returning its index.
func (c *Controller) OpenNewTab(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureStartedLocked(); err != nil {
		return 0, err
	}
	if err := c.openTabLocked(); err != nil {
		return 0, err
	}
	return c.activeTab, nil
}

// SwitchTab makes the tab at index active.
func (c *Controller) SwitchTab(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.tabs) {
		return fmt.Errorf("%w: no tab at index %d", agenterrors.ErrToolRuntime, index)
	}
	c.activeTab = index
	c.elements = nil
	return nil
}

// GetSelectOptions returns the option labels of a <select> element at
// index, resolved via the interactive-element index.
func (c *Controller) GetSelectOptions(ctx context.Context, index int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, err := c.currentTabLocked()
	if err != nil {
		return nil, err
	}
	sel, err := c.selectorForIndexLocked(index)
	if err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	if err := chromedp.Run(tab, chromedp.Nodes(sel, &nodes, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("%w: resolving select node: %v", agenterrors.ErrToolRuntime, err)
	}
	var options []string
	if err := chromedp.Run(tab, chromedp.Evaluate(fmt.Sprintf(`Array.from(document.querySelector(%q).options).map(o => o.label)`, sel), &options)); err != nil {
		return nil, fmt.Errorf("%w: reading select options: %v", agenterrors.ErrToolRuntime, err)
	}
	return options, nil
}

// SelectDropdownOption chooses the option with the given label on the
// <select> element at index.
func (c *Controller) SelectDropdownOption(ctx context.Context, index int, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, err := c.currentTabLocked()
	if err != nil {
		return err
	}
	sel, err := c.selectorForIndexLocked(index)
	if err != nil {
		return err
	}
	if err := chromedp.Run(tab, chromedp.SetValue(sel, label, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: selecting option %q: %v", agenterrors.ErrToolRuntime, label, err)
	}
	return nil
}

func randomJitter() time.Duration {
	return time.Duration(rand.Intn(200)) * time.Millisecond
}
