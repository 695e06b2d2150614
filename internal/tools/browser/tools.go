package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/usamanadeem786/iiagentd/internal/tools"
)

// schema helpers keep the per-tool ParameterSchema definitions terse.
func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             toAny(required),
		"additionalProperties": false,
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func intProp() map[string]any    { return map[string]any{"type": "integer"} }
func stringProp() map[string]any { return map[string]any{"type": "string"} }

func indexArg(input map[string]any) int {
	switch v := input["index"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return -1
	}
}

// screenshotResult builds a Result carrying both a text summary and the
// post-action screenshot, matching the browser family's multi-part
// ToolResult shape (spec.md §3).
func screenshotResult(ctrl *Controller, ctx context.Context, summary string) tools.Result {
	shot, err := ctrl.Screenshot(ctx)
	if err != nil {
		return tools.TextResult(summary)
	}
	return tools.Result{
		Text: summary,
		Parts: []tools.ResultPart{
			{Type: "text", Text: summary},
			{Type: "image", MediaType: "image/png", Base64Data: shot},
		},
	}
}

type NavigateTool struct{ ctrl *Controller }

func NewNavigateTool(c *Controller) *NavigateTool { return &NavigateTool{ctrl: c} }
func (*NavigateTool) Name() string                { return "browser_navigate" }
func (*NavigateTool) Description() string         { return "Navigate the browser to a URL." }
func (*NavigateTool) ParameterSchema() map[string]any {
	return objectSchema([]string{"url"}, map[string]any{"url": stringProp()})
}
func (t *NavigateTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	url, _ := input["url"].(string)
	if err := t.ctrl.Navigate(ctx, url); err != nil {
		return tools.Result{}, err
	}
	return screenshotResult(t.ctrl, ctx, "Navigated to "+url), nil
}

type RestartTool struct{ ctrl *Controller }

func NewRestartTool(c *Controller) *RestartTool { return &RestartTool{ctrl: c} }
func (*RestartTool) Name() string               { return "browser_restart" }
func (*RestartTool) Description() string        { return "Restart the browser, discarding all tabs." }
func (*RestartTool) ParameterSchema() map[string]any {
	return objectSchema(nil, map[string]any{})
}
func (t *RestartTool) Call(ctx context.Context, _ map[string]any) (tools.Result, error) {
	if err := t.ctrl.Restart(); err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult("Browser restarted."), nil
}

type ScrollTool struct{ ctrl *Controller }

func NewScrollTool(c *Controller) *ScrollTool { return &ScrollTool{ctrl: c} }
func (*ScrollTool) Name() string              { return "browser_scroll" }
func (*ScrollTool) Description() string       { return "Scroll the page by a pixel offset." }
func (*ScrollTool) ParameterSchema() map[string]any {
	return objectSchema([]string{"dx", "dy"}, map[string]any{"dx": map[string]any{"type": "number"}, "dy": map[string]any{"type": "number"}})
}
func (t *ScrollTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	dx, _ := input["dx"].(float64)
	dy, _ := input["dy"].(float64)
	if err := t.ctrl.Scroll(ctx, dx, dy); err != nil {
		return tools.Result{}, err
	}
	return screenshotResult(t.ctrl, ctx, "Scrolled."), nil
}

type ClickTool struct{ ctrl *Controller }

func NewClickTool(c *Controller) *ClickTool { return &ClickTool{ctrl: c} }
func (*ClickTool) Name() string             { return "browser_click" }
func (*ClickTool) Description() string {
	return "Click the interactive element at the given index (see browser_view_interactive_elements)."
}
func (*ClickTool) ParameterSchema() map[string]any {
	return objectSchema([]string{"index"}, map[string]any{"index": intProp()})
}
func (t *ClickTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	index := indexArg(input)
	if err := t.ctrl.ClickIndex(ctx, index); err != nil {
		return tools.Result{}, err
	}
	return screenshotResult(t.ctrl, ctx, fmt.Sprintf("Clicked element %d.", index)), nil
}

type EnterTextTool struct{ ctrl *Controller }

func NewEnterTextTool(c *Controller) *EnterTextTool { return &EnterTextTool{ctrl: c} }
func (*EnterTextTool) Name() string                 { return "browser_enter_text" }
func (*EnterTextTool) Description() string          { return "Type text into the interactive element at the given index." }
func (*EnterTextTool) ParameterSchema() map[string]any {
	return objectSchema([]string{"index", "text"}, map[string]any{"index": intProp(), "text": stringProp()})
}
func (t *EnterTextTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	index := indexArg(input)
	text, _ := input["text"].(string)
	if err := t.ctrl.EnterText(ctx, index, text); err != nil {
		return tools.Result{}, err
	}
	return screenshotResult(t.ctrl, ctx, fmt.Sprintf("Entered text into element %d.", index)), nil
}

type PressKeyTool struct{ ctrl *Controller }

func NewPressKeyTool(c *Controller) *PressKeyTool { return &PressKeyTool{ctrl: c} }
func (*PressKeyTool) Name() string                { return "browser_press_key" }
func (*PressKeyTool) Description() string         { return "Press a single named key, e.g. Enter or Tab." }
func (*PressKeyTool) ParameterSchema() map[string]any {
	return objectSchema([]string{"key"}, map[string]any{"key": stringProp()})
}
func (t *PressKeyTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	key, _ := input["key"].(string)
	if err := t.ctrl.PressKey(ctx, key); err != nil {
		return tools.Result{}, err
	}
	return screenshotResult(t.ctrl, ctx, "Pressed "+key+"."), nil
}

type WaitTool struct{ ctrl *Controller }

func NewWaitTool(c *Controller) *WaitTool { return &WaitTool{ctrl: c} }
func (*WaitTool) Name() string            { return "browser_wait" }
func (*WaitTool) Description() string     { return "Wait for a number of seconds (max 30)." }
func (*WaitTool) ParameterSchema() map[string]any {
	return objectSchema([]string{"seconds"}, map[string]any{"seconds": map[string]any{"type": "number"}})
}
func (t *WaitTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	seconds, _ := input["seconds"].(float64)
	if err := t.ctrl.Wait(ctx, time.Duration(seconds*float64(time.Second))); err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(fmt.Sprintf("Waited %.1fs.", seconds)), nil
}

type ViewInteractiveElementsTool struct{ ctrl *Controller }

func NewViewInteractiveElementsTool(c *Controller) *ViewInteractiveElementsTool {
	return &ViewInteractiveElementsTool{ctrl: c}
}
func (*ViewInteractiveElementsTool) Name() string { return "browser_view_interactive_elements" }
func (*ViewInteractiveElementsTool) Description() string {
	return "Scan the page for clickable and fillable elements, indexing them for click/enter_text calls."
}
func (*ViewInteractiveElementsTool) ParameterSchema() map[string]any {
	return objectSchema(nil, map[string]any{})
}
func (t *ViewInteractiveElementsTool) Call(ctx context.Context, _ map[string]any) (tools.Result, error) {
	elements, err := t.ctrl.ViewInteractiveElements(ctx)
	if err != nil {
		return tools.Result{}, err
	}
	b, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(string(b)), nil
}

type SwitchTabTool struct{ ctrl *Controller }

func NewSwitchTabTool(c *Controller) *SwitchTabTool { return &SwitchTabTool{ctrl: c} }
func (*SwitchTabTool) Name() string                 { return "browser_switch_tab" }
func (*SwitchTabTool) Description() string          { return "Switch the active tab by index." }
func (*SwitchTabTool) ParameterSchema() map[string]any {
	return objectSchema([]string{"index"}, map[string]any{"index": intProp()})
}
func (t *SwitchTabTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	index := indexArg(input)
	if err := t.ctrl.SwitchTab(ctx, index); err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(fmt.Sprintf("Switched to tab %d.", index)), nil
}

type OpenNewTabTool struct{ ctrl *Controller }

func NewOpenNewTabTool(c *Controller) *OpenNewTabTool { return &OpenNewTabTool{ctrl: c} }
func (*OpenNewTabTool) Name() string                  { return "browser_open_new_tab" }
func (*OpenNewTabTool) Description() string           { return "Open a new blank tab and make it active." }
func (*OpenNewTabTool) ParameterSchema() map[string]any {
	return objectSchema(nil, map[string]any{})
}
func (t *OpenNewTabTool) Call(ctx context.Context, _ map[string]any) (tools.Result, error) {
	index, err := t.ctrl.OpenNewTab(ctx)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(fmt.Sprintf("Opened tab %d.", index)), nil
}

type GetSelectOptionsTool struct{ ctrl *Controller }

func NewGetSelectOptionsTool(c *Controller) *GetSelectOptionsTool { return &GetSelectOptionsTool{ctrl: c} }
func (*GetSelectOptionsTool) Name() string                        { return "browser_get_select_options" }
func (*GetSelectOptionsTool) Description() string {
	return "List the option labels of a <select> element at the given index."
}
func (*GetSelectOptionsTool) ParameterSchema() map[string]any {
	return objectSchema([]string{"index"}, map[string]any{"index": intProp()})
}
func (t *GetSelectOptionsTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	index := indexArg(input)
	options, err := t.ctrl.GetSelectOptions(ctx, index)
	if err != nil {
		return tools.Result{}, err
	}
	b, _ := json.Marshal(options)
	return tools.TextResult(string(b)), nil
}

type SelectDropdownOptionTool struct{ ctrl *Controller }

func NewSelectDropdownOptionTool(c *Controller) *SelectDropdownOptionTool {
	return &SelectDropdownOptionTool{ctrl: c}
}
func (*SelectDropdownOptionTool) Name() string { return "browser_select_dropdown_option" }
func (*SelectDropdownOptionTool) Description() string {
	return "Choose an option by label on the <select> element at the given index."
}
func (*SelectDropdownOptionTool) ParameterSchema() map[string]any {
	return objectSchema([]string{"index", "label"}, map[string]any{"index": intProp(), "label": stringProp()})
}
func (t *SelectDropdownOptionTool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	index := indexArg(input)
	label, _ := input["label"].(string)
	if err := t.ctrl.SelectDropdownOption(ctx, index, label); err != nil {
		return tools.Result{}, err
	}
	return screenshotResult(t.ctrl, ctx, fmt.Sprintf("Selected %q on element %d.", label, index)), nil
}

// All returns every browser tool bound to a single shared Controller, so
// registering them together gives the model one cohesive browser session.
func All(c *Controller) []tools.Tool {
	return []tools.Tool{
		NewNavigateTool(c),
		NewRestartTool(c),
		NewScrollTool(c),
		NewClickTool(c),
		NewEnterTextTool(c),
		NewPressKeyTool(c),
		NewWaitTool(c),
		NewViewInteractiveElementsTool(c),
		NewSwitchTabTool(c),
		NewOpenNewTabTool(c),
		NewGetSelectOptionsTool(c),
		NewSelectDropdownOptionTool(c),
	}
}
