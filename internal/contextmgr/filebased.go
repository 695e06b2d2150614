package contextmgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/usamanadeem786/iiagentd/internal/config"
	"github.com/usamanadeem786/iiagentd/internal/history"
	"github.com/usamanadeem786/iiagentd/internal/observability"
	"github.com/usamanadeem786/iiagentd/internal/tokencount"
)

// DefaultSpillFloor is the minimum token count (L in spec.md §4.3) above
// which a save-to-file tool's output is spilled to agent_memory instead of
// being truncated in place. The sentinel text below is shorter than this
// floor in tokens, so spilling never grows a turn (the reachability
// invariant of spec.md §4.3).
const DefaultSpillFloor = 1499

// saveToFileTools is the set of tool names whose output, once it exceeds
// the spill floor, is written to a file instead of sentinel-replaced.
var saveToFileTools = map[string]bool{
	"visit_webpage": true,
	"deep_research": true,
}

// FileBased spills oversized tool outputs to content-addressed files under
// <workspace>/agent_memory/ instead of discarding them, so the agent can
// still retrieve them on demand.
type FileBased struct {
	Budget        int
	KeepLast      int
	SpillFloor    int
	WorkspaceRoot string
}

// NewFileBased constructs a FileBased context manager; workspaceRoot is the
// session's workspace directory (spec.md §6 filesystem layout).
func NewFileBased(cfg config.Config, workspaceRoot string) *FileBased {
	return &FileBased{
		Budget:        cfg.TokenBudget,
		KeepLast:      DefaultKeepLastTurns,
		SpillFloor:    DefaultSpillFloor,
		WorkspaceRoot: workspaceRoot,
	}
}

func (f *FileBased) CountTokens(h *history.History) int { return CountTokens(h) }

func (f *FileBased) ApplyTruncationIfNeeded(ctx context.Context, h *history.History) (*history.History, error) {
	if f.CountTokens(h) <= f.Budget {
		return h, nil
	}
	turns := h.Turns()
	keep := f.KeepLast
	if keep <= 0 {
		keep = DefaultKeepLastTurns
	}
	cut := splitForTruncation(turns, keep)

	out := make([]history.Turn, len(turns))
	for i, t := range turns {
		if i >= cut {
			out[i] = t
			continue
		}
		var priorCalls map[string]history.ToolCall
		if i > 0 {
			priorCalls = toolCallsByID(turns[i-1])
		}
		rewritten, err := f.truncateTurn(ctx, t, priorCalls)
		if err != nil {
			return nil, err
		}
		out[i] = rewritten
	}
	return history.FromTurns(out), nil
}

func toolCallsByID(t history.Turn) map[string]history.ToolCall {
	m := make(map[string]history.ToolCall)
	for _, c := range t.ToolCalls() {
		m[c.ID] = c
	}
	return m
}

func (f *FileBased) truncateTurn(ctx context.Context, t history.Turn, priorCalls map[string]history.ToolCall) (history.Turn, error) {
	blocks := make([]history.ContentBlock, len(t.Blocks))
	for i, b := range t.Blocks {
		switch v := b.(type) {
		case history.ToolCall:
			cloned := cloneToolCall(v)
			if toolInputTokens(cloned) >= f.SpillFloor {
				blankDesignatedFields(&cloned)
			}
			blocks[i] = cloned
		case history.ToolResult:
			rewritten, err := f.truncateToolResult(ctx, v, priorCalls)
			if err != nil {
				return history.Turn{}, err
			}
			blocks[i] = rewritten
		default:
			blocks[i] = b
		}
	}
	return history.Turn{Blocks: blocks}, nil
}

func (f *FileBased) truncateToolResult(ctx context.Context, tr history.ToolResult, priorCalls map[string]history.ToolCall) (history.ContentBlock, error) {
	if !tr.IsText || !saveToFileTools[tr.Name] {
		return history.ToolResult{ID: tr.ID, Name: tr.Name, Text: TruncatedSentinel, IsText: true}, nil
	}
	if tokencount.Text(tr.Text) < f.SpillFloor {
		return history.ToolResult{ID: tr.ID, Name: tr.Name, Text: TruncatedSentinel, IsText: true}, nil
	}

	call, haveCall := priorCalls[tr.ID]
	relPath, err := f.spill(ctx, tr.Name, call, haveCall, tr.Text)
	if err != nil {
		return nil, err
	}
	sentinel := fmt.Sprintf("[Truncated…content saved to %s. You can view it if needed.]", relPath)
	return history.ToolResult{ID: tr.ID, Name: tr.Name, Text: sentinel, IsText: true}, nil
}

// spill writes content to agent_memory/<stem>_<hash10>.txt, idempotently,
// and returns the path relative to the workspace root.
func (f *FileBased) spill(ctx context.Context, toolName string, call history.ToolCall, haveCall bool, content string) (string, error) {
	sum := sha256.Sum256([]byte(content))
	hash10 := hex.EncodeToString(sum[:])[:10]

	stem := "unknown_url"
	switch toolName {
	case "visit_webpage":
		if haveCall {
			if u, ok := call.Input["url"].(string); ok && u != "" {
				stem = sanitizeURLStem(u)
			}
		}
	case "deep_research":
		if haveCall {
			if q, ok := call.Input["query"].(string); ok && q != "" {
				stem = sanitizeStem(q)
			}
		}
	}

	filename := fmt.Sprintf("%s_%s.txt", stem, hash10)
	dir := filepath.Join(f.WorkspaceRoot, "agent_memory")
	absPath := filepath.Join(dir, filename)
	relPath := filepath.Join("agent_memory", filename)

	if _, err := os.Stat(absPath); err == nil {
		// Idempotent: identical hash already on disk.
		return relPath, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating agent_memory dir: %w", err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing spill file: %w", err)
	}
	observability.LoggerWithTrace(ctx).Debug().Str("path", relPath).Str("tool", toolName).Msg("context_spilled_to_file")
	return relPath, nil
}

var nonWordRE = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// sanitizeURLStem derives a filesystem-safe stem from a URL's host and
// path, e.g. "https://example.com/foo?x=1" -> "example_com_foo".
func sanitizeURLStem(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return sanitizeStem(raw)
	}
	combined := u.Host + u.Path
	return sanitizeStem(combined)
}

func sanitizeStem(s string) string {
	s = strings.Trim(nonWordRE.ReplaceAllString(s, "_"), "_")
	if s == "" {
		s = "unknown_url"
	}
	const maxLen = 80
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ToLower(s)
}
