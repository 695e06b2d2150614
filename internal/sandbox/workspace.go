// Package sandbox resolves and validates paths a tool wants to touch
// against a session's workspace root, per spec.md §4.6's WorkspaceManager:
// every path a tool accepts is resolved relative to the workspace and must
// not escape it, whether the workspace lives on the local filesystem or
// inside a container the shell tool execs into.
package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
)

type contextKey struct{}

// Workspace carries a session's filesystem root and, when the shell tool
// runs against a container instead of the host, the path that root is
// mounted at inside the container.
type Workspace struct {
	Root            string
	ContainerMount  string
	DockerContainer string
}

// WithWorkspace attaches w to ctx, so tool implementations can resolve
// paths without threading the workspace through every call signature.
func WithWorkspace(ctx context.Context, w Workspace) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext retrieves the Workspace attached by WithWorkspace.
func FromContext(ctx context.Context) (Workspace, bool) {
	w, ok := ctx.Value(contextKey{}).(Workspace)
	return w, ok
}

// Resolve joins rel onto the workspace root and ensures the cleaned result
// still lives under the root, rejecting absolute paths and ../ escapes.
func (w Workspace) Resolve(rel string) (string, error) {
	if w.Root == "" {
		return "", fmt.Errorf("%w: workspace root is empty", agenterrors.ErrPathEscape)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path not allowed: %q", agenterrors.ErrPathEscape, rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: path escapes workspace: %q", agenterrors.ErrPathEscape, rel)
	}
	root, err := filepath.Abs(w.Root)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	abs := filepath.Join(root, clean)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes workspace: %q", agenterrors.ErrPathEscape, rel)
	}
	return abs, nil
}

// ContainerPath translates a host-resolved absolute path to the
// corresponding path inside the shell's container, when the session is
// configured to run commands in one. Returns path unchanged otherwise.
func (w Workspace) ContainerPath(hostPath string) string {
	if w.DockerContainer == "" || w.ContainerMount == "" {
		return hostPath
	}
	root, err := filepath.Abs(w.Root)
	if err != nil {
		return hostPath
	}
	rel, err := filepath.Rel(root, hostPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return hostPath
	}
	return filepath.Join(w.ContainerMount, rel)
}
