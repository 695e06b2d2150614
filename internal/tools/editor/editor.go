// Package editor implements the str_replace_editor tool: view, create,
// str_replace, insert and undo_edit operations over files in a session's
// workspace, serialized per-file with an flock so concurrent tool calls
// from one turn never interleave writes to the same file.
package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
	"github.com/usamanadeem786/iiagentd/internal/sandbox"
	"github.com/usamanadeem786/iiagentd/internal/tools"
)

const Name = "str_replace_editor"

// MaxUndoDepth caps the per-file undo stack so a pathological sequence of
// edits cannot grow memory without bound.
const MaxUndoDepth = 32

// Tool implements the editor contract against a single session's
// workspace. It is not safe to share across sessions.
type Tool struct {
	workspace sandbox.Workspace

	mu    sync.Mutex
	undo  map[string][]string // path -> stack of previous file contents
}

func New(workspace sandbox.Workspace) *Tool {
	return &Tool{workspace: workspace, undo: make(map[string][]string)}
}

func (*Tool) Name() string { return Name }

func (*Tool) Description() string {
	return "View, create and edit files in the workspace. Supports view, create, str_replace, insert and undo_edit commands."
}

func (*Tool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type": "string",
				"enum": []any{"view", "create", "str_replace", "insert", "undo_edit"},
			},
			"path":       map[string]any{"type": "string"},
			"file_text":  map[string]any{"type": "string"},
			"old_str":    map[string]any{"type": "string"},
			"new_str":    map[string]any{"type": "string"},
			"insert_line": map[string]any{"type": "integer", "minimum": 0},
			"view_range": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "integer"},
			},
		},
		"required":             []any{"command", "path"},
		"additionalProperties": false,
	}
}

func (t *Tool) Call(_ context.Context, input map[string]any) (tools.Result, error) {
	command, _ := input["command"].(string)
	relPath, _ := input["path"].(string)

	absPath, err := t.workspace.Resolve(relPath)
	if err != nil {
		return tools.Result{}, err
	}

	lock := flock.New(absPath + ".lock")
	locked, err := lock.TryLockContext(mustTimeout(), 50*time.Millisecond)
	if err != nil || !locked {
		return tools.Result{}, fmt.Errorf("%w: could not acquire lock on %s", agenterrors.ErrToolRuntime, relPath)
	}
	defer lock.Unlock()

	switch command {
	case "view":
		return t.view(absPath, input)
	case "create":
		return t.create(absPath, input)
	case "str_replace":
		return t.strReplace(absPath, input)
	case "insert":
		return t.insert(absPath, input)
	case "undo_edit":
		return t.undoEdit(absPath)
	default:
		return tools.Result{}, fmt.Errorf("%w: unsupported command %q", agenterrors.ErrToolRuntime, command)
	}
}

func mustTimeout() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = cancel // lock released via defer lock.Unlock(); context only bounds the wait.
	return ctx
}

func (t *Tool) view(absPath string, input map[string]any) (tools.Result, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return tools.Result{}, fmt.Errorf("%w: %s does not exist", agenterrors.ErrToolRuntime, absPath)
		}
		return tools.Result{}, err
	}
	if info.IsDir() {
		names, err := listNonHidden(absPath, 2)
		if err != nil {
			return tools.Result{}, err
		}
		return tools.TextResult(strings.Join(names, "\n")), nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return tools.Result{}, err
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	total := len(lines)

	start, end := 1, total
	if raw, ok := input["view_range"].([]any); ok && len(raw) == 2 {
		if s, ok := asInt(raw[0]); ok {
			start = s
		}
		if e, ok := asInt(raw[1]); ok && e != -1 {
			end = e
		}
	}
	if start < 1 {
		start = 1
	}
	if end > total || end < start {
		end = total
	}

	var b strings.Builder
	for i := start; i <= end && i <= total; i++ {
		fmt.Fprintf(&b, "%d\t%s\n", i, lines[i-1])
	}
	fmt.Fprintf(&b, "Total lines in file: %d\n", total)
	return tools.TextResult(b.String()), nil
}

// listNonHidden walks dir up to depth levels (1 = dir's own entries),
// skipping dotfiles/dot-directories, per spec.md §4.4.2's directory view.
func listNonHidden(dir string, depth int) ([]string, error) {
	var names []string
	var walk func(path string, remaining int) error
	walk = func(path string, remaining int) error {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			rel, err := filepath.Rel(dir, filepath.Join(path, e.Name()))
			if err != nil {
				rel = e.Name()
			}
			names = append(names, rel)
			if e.IsDir() && remaining > 1 {
				if err := walk(filepath.Join(path, e.Name()), remaining-1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(dir, depth); err != nil {
		return nil, err
	}
	return names, nil
}

func (t *Tool) create(absPath string, input map[string]any) (tools.Result, error) {
	text, _ := input["file_text"].(string)
	if info, err := os.Stat(absPath); err == nil && info.Size() > 0 {
		return tools.Result{}, fmt.Errorf("%w: %s already exists and is non-empty", agenterrors.ErrToolRuntime, absPath)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return tools.Result{}, err
	}
	t.pushUndo(absPath, "")
	if err := os.WriteFile(absPath, []byte(text), 0o644); err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(fmt.Sprintf("Created %s", absPath)), nil
}

// strReplace requires exactly one occurrence of old_str, except for the
// blank-old_str special case (only legal against an empty file, setting
// its content to new_str). Multiple occurrences abort reporting their
// line numbers; zero exact occurrences fall back to an indentation-
// ignoring match before aborting with "did not appear".
func (t *Tool) strReplace(absPath string, input map[string]any) (tools.Result, error) {
	oldStr, _ := input["old_str"].(string)
	newStr, _ := input["new_str"].(string)

	original, err := os.ReadFile(absPath)
	if err != nil {
		return tools.Result{}, err
	}
	content := string(original)

	if oldStr == "" {
		if content != "" {
			return tools.Result{}, fmt.Errorf("%w: old_str is blank but %s is not empty", agenterrors.ErrToolRuntime, absPath)
		}
		t.pushUndo(absPath, content)
		if err := os.WriteFile(absPath, []byte(newStr), 0o644); err != nil {
			return tools.Result{}, err
		}
		return tools.TextResult(fmt.Sprintf("Replaced content in %s\n\n%s", absPath, snippetAround(newStr, 1))), nil
	}

	if count := strings.Count(content, oldStr); count == 1 {
		lineNum := occurrenceLines(content, oldStr)[0]
		t.pushUndo(absPath, content)
		updated := strings.Replace(content, oldStr, newStr, 1)
		if err := os.WriteFile(absPath, []byte(updated), 0o644); err != nil {
			return tools.Result{}, err
		}
		return tools.TextResult(fmt.Sprintf("Replaced 1 occurrence in %s\n\n%s", absPath, snippetAround(updated, lineNum))), nil
	} else if count > 1 {
		return tools.Result{}, fmt.Errorf("%w: old_str is not unique in %s, found at lines %v", agenterrors.ErrToolRuntime, absPath, occurrenceLines(content, oldStr))
	}

	if updated, lineNum, ok := replaceIgnoringIndentation(content, oldStr, newStr); ok {
		t.pushUndo(absPath, content)
		if err := os.WriteFile(absPath, []byte(updated), 0o644); err != nil {
			return tools.Result{}, err
		}
		return tools.TextResult(fmt.Sprintf("Replaced 1 occurrence in %s\n\n%s", absPath, snippetAround(updated, lineNum))), nil
	}

	return tools.Result{}, fmt.Errorf("%w: old_str did not appear in %s", agenterrors.ErrToolRuntime, absPath)
}

// replaceIgnoringIndentation matches old_str's lines against content
// ignoring leading whitespace, reindents new_str by the indentation of
// the first matched line, and lets the last matched line's trailing
// suffix (anything past old_str's last line once both are stripped)
// survive the replacement. Only fires when exactly one such match exists.
func replaceIgnoringIndentation(content, oldStr, newStr string) (string, int, bool) {
	oldLines := strings.Split(oldStr, "\n")
	contentLines := strings.Split(content, "\n")
	if len(oldLines) == 0 || len(oldLines) > len(contentLines) {
		return "", 0, false
	}

	type match struct {
		start  int
		indent string
		suffix string
	}
	var matches []match
	for i := 0; i+len(oldLines) <= len(contentLines); i++ {
		ok := true
		suffix := ""
		for j, oldLine := range oldLines {
			stripped := strings.TrimLeft(oldLine, " \t")
			candidateStripped := strings.TrimLeft(contentLines[i+j], " \t")
			if j == len(oldLines)-1 {
				if !strings.HasPrefix(candidateStripped, stripped) {
					ok = false
					break
				}
				suffix = candidateStripped[len(stripped):]
			} else if candidateStripped != stripped {
				ok = false
				break
			}
		}
		if ok {
			first := contentLines[i]
			indent := first[:len(first)-len(strings.TrimLeft(first, " \t"))]
			matches = append(matches, match{start: i, indent: indent, suffix: suffix})
		}
	}
	if len(matches) != 1 {
		return "", 0, false
	}

	m := matches[0]
	newLines := strings.Split(newStr, "\n")
	reindented := make([]string, len(newLines))
	for i, l := range newLines {
		reindented[i] = m.indent + l
	}
	if len(reindented) > 0 {
		reindented[len(reindented)-1] += m.suffix
	}

	out := make([]string, 0, len(contentLines)-len(oldLines)+len(reindented))
	out = append(out, contentLines[:m.start]...)
	out = append(out, reindented...)
	out = append(out, contentLines[m.start+len(oldLines):]...)
	return strings.Join(out, "\n"), m.start + 1, true
}

// occurrenceLines returns the 1-indexed line each occurrence of sub
// starts on, in order.
func occurrenceLines(content, sub string) []int {
	var lines []int
	for start := 0; ; {
		idx := strings.Index(content[start:], sub)
		if idx < 0 {
			break
		}
		pos := start + idx
		lines = append(lines, strings.Count(content[:pos], "\n")+1)
		start = pos + len(sub)
	}
	return lines
}

// snippetAround renders a ±4-line window of content centered on lineNum,
// cat -n style, per spec.md §4.4.2's post-edit snippet requirement.
func snippetAround(content string, lineNum int) string {
	lines := strings.Split(content, "\n")
	start := lineNum - 4
	if start < 1 {
		start = 1
	}
	end := lineNum + 4
	if end > len(lines) {
		end = len(lines)
	}
	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%d\t%s\n", i, lines[i-1])
	}
	return b.String()
}

func (t *Tool) insert(absPath string, input map[string]any) (tools.Result, error) {
	newStr, _ := input["new_str"].(string)
	lineNum, _ := asInt(input["insert_line"])

	original, err := os.ReadFile(absPath)
	if err != nil {
		return tools.Result{}, err
	}
	lines := strings.Split(string(original), "\n")
	if lineNum < 0 || lineNum > len(lines) {
		return tools.Result{}, fmt.Errorf("%w: insert_line %d out of range (file has %d lines)", agenterrors.ErrToolRuntime, lineNum, len(lines))
	}

	t.pushUndo(absPath, string(original))
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:lineNum]...)
	out = append(out, newStr)
	out = append(out, lines[lineNum:]...)
	updated := strings.Join(out, "\n")
	if err := os.WriteFile(absPath, []byte(updated), 0o644); err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(fmt.Sprintf("Inserted text after line %d in %s\n\n%s", lineNum, absPath, snippetAround(updated, lineNum+1))), nil
}

func (t *Tool) undoEdit(absPath string) (tools.Result, error) {
	t.mu.Lock()
	stack := t.undo[absPath]
	if len(stack) == 0 {
		t.mu.Unlock()
		return tools.Result{}, fmt.Errorf("%w: no edits to undo for %s", agenterrors.ErrToolRuntime, absPath)
	}
	prev := stack[len(stack)-1]
	t.undo[absPath] = stack[:len(stack)-1]
	t.mu.Unlock()

	if err := os.WriteFile(absPath, []byte(prev), 0o644); err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(fmt.Sprintf("Reverted last edit to %s", absPath)), nil
}

func (t *Tool) pushUndo(absPath, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stack := append(t.undo[absPath], content)
	if len(stack) > MaxUndoDepth {
		stack = stack[len(stack)-MaxUndoDepth:]
	}
	t.undo[absPath] = stack
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
