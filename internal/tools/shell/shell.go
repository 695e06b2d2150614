// Package shell implements a persistent, PTY-backed shell tool: one
// interactive process per session that commands are written into, with a
// sentinel-marker protocol to detect when a command has finished, a
// command-filter chain (SSH/Docker wrapping), banned-substring rejection,
// a per-call timeout that restarts the shell on expiry, and optional
// confirmation gating before a command runs.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
	"github.com/usamanadeem786/iiagentd/internal/observability"
	"github.com/usamanadeem786/iiagentd/internal/sandbox"
	"github.com/usamanadeem786/iiagentd/internal/tools"
)

const Name = "shell_exec"

// markerPrefix delimits a command's output; the numeric suffix is the
// exit code, echoed by the shell itself after the command runs.
const markerPrefix = "__AGENTD_SHELL_DONE__"

// CommandFilter rewrites or wraps a command before it reaches the shell,
// e.g. to route it through `docker exec` or `ssh`.
type CommandFilter func(cmd string) string

// DockerFilter wraps every command so it executes inside containerID via
// `docker exec`.
func DockerFilter(containerID string) CommandFilter {
	return func(cmd string) string {
		return fmt.Sprintf("docker exec -i %s /bin/sh -c %s", containerID, shellQuote(cmd))
	}
}

// SSHFilter wraps every command so it executes on a remote host over SSH.
func SSHFilter(host string) CommandFilter {
	return func(cmd string) string {
		return fmt.Sprintf("ssh %s %s", host, shellQuote(cmd))
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Config controls shell tool behavior; all fields have safe zero values.
type Config struct {
	Timeout          time.Duration
	BannedSubstrings []string
	Filters          []CommandFilter
	RequireConfirm   bool
	Confirm          func(ctx context.Context, command string) (bool, error)
}

// Tool runs one persistent shell process, restarting it whenever a command
// times out; a shell process that exits on its own is not detected or
// restarted. Not safe to share across sessions.
type Tool struct {
	cfg       Config
	workspace sandbox.Workspace

	mu     sync.Mutex
	ptmx   *exec.Cmd
	pty    io.ReadWriteCloser
	reader *bufio.Reader
}

func New(cfg Config, workspace sandbox.Workspace) *Tool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Tool{cfg: cfg, workspace: workspace}
}

func (*Tool) Name() string { return Name }

func (*Tool) Description() string {
	return "Run a shell command in a persistent session-scoped shell. State (cwd, env vars) carries over between calls."
}

func (*Tool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string"},
		},
		"required":             []any{"command"},
		"additionalProperties": false,
	}
}

func (t *Tool) Call(ctx context.Context, input map[string]any) (tools.Result, error) {
	command, _ := input["command"].(string)
	if command == "" {
		return tools.Result{}, fmt.Errorf("%w: command is empty", agenterrors.ErrToolRuntime)
	}

	for _, banned := range t.cfg.BannedSubstrings {
		if banned != "" && strings.Contains(command, banned) {
			return tools.Result{}, fmt.Errorf("%w: command contains banned substring %q", agenterrors.ErrToolRuntime, banned)
		}
	}

	if t.cfg.RequireConfirm && t.cfg.Confirm != nil {
		ok, err := t.cfg.Confirm(ctx, command)
		if err != nil {
			return tools.Result{}, fmt.Errorf("confirming command: %w", err)
		}
		if !ok {
			return tools.TextResult("Command rejected by user."), nil
		}
	}

	for _, f := range t.cfg.Filters {
		command = f(command)
	}

	output, exitCode, err := t.run(ctx, command)
	if err != nil {
		return tools.Result{}, err
	}
	if exitCode != 0 {
		output += fmt.Sprintf("\n[exit code %d]", exitCode)
	}
	return tools.TextResult(output), nil
}

func (t *Tool) run(ctx context.Context, command string) (string, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureStarted(ctx); err != nil {
		return "", 0, err
	}

	nonce := time.Now().UnixNano()
	marker := fmt.Sprintf("%s%d__", markerPrefix, nonce)
	// The typed marker is split by an empty quoted string, so the terminal's
	// echo of this input line never contains the marker; only echo's output does.
	if _, err := io.WriteString(t.pty, fmt.Sprintf("%s\necho %s''%d__$?\n", command, markerPrefix, nonce)); err != nil {
		return "", 0, fmt.Errorf("%w: writing to shell: %v", agenterrors.ErrToolRuntime, err)
	}

	type readResult struct {
		output   string
		exitCode int
		err      error
	}
	done := make(chan readResult, 1)
	go func() {
		out, code, err := t.readUntilMarker(marker)
		done <- readResult{output: out, exitCode: code, err: err}
	}()

	timeout := t.cfg.Timeout
	select {
	case r := <-done:
		return r.output, r.exitCode, r.err
	case <-time.After(timeout):
		observability.LoggerWithTrace(ctx).Warn().Str("command", command).Msg("shell_command_timed_out_restarting")
		t.restartLocked()
		return "", 0, fmt.Errorf("%w: command timed out after %s and the shell was restarted", agenterrors.ErrToolRuntime, timeout)
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
}

func (t *Tool) readUntilMarker(marker string) (string, int, error) {
	var out strings.Builder
	for {
		line, err := t.reader.ReadString('\n')
		if line != "" {
			if idx := strings.Index(line, marker); idx >= 0 {
				out.WriteString(line[:idx])
				rest := strings.TrimSpace(line[idx+len(marker):])
				code, _ := strconv.Atoi(rest)
				return out.String(), code, nil
			}
			out.WriteString(line)
		}
		if err != nil {
			return out.String(), -1, fmt.Errorf("%w: reading shell output: %v", agenterrors.ErrToolRuntime, err)
		}
	}
}

func (t *Tool) ensureStarted(ctx context.Context) error {
	if t.ptmx != nil && t.ptmx.ProcessState == nil {
		return nil
	}
	cmd := exec.CommandContext(context.Background(), "/bin/sh")
	if t.workspace.Root != "" {
		cmd.Dir = t.workspace.Root
	}
	f, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("%w: starting shell: %v", agenterrors.ErrToolRuntime, err)
	}
	t.ptmx = cmd
	t.pty = f
	t.reader = bufio.NewReader(f)
	return nil
}

// restartLocked kills the current process and clears state so the next
// call to ensureStarted launches a fresh shell. Caller must hold t.mu.
func (t *Tool) restartLocked() {
	if t.ptmx != nil && t.ptmx.Process != nil {
		_ = t.ptmx.Process.Kill()
	}
	if t.pty != nil {
		_ = t.pty.Close()
	}
	t.ptmx = nil
	t.pty = nil
	t.reader = nil
}

// Close terminates the shell process, if running.
func (t *Tool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restartLocked()
	return nil
}
