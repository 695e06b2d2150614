// Command agentcli is the stdin/stdout REPL entrypoint: the same Engine
// the WebSocket daemon runs, driven by one line of stdin per query instead
// of a session protocol frame. Typing exit/quit ends the loop; Ctrl-C
// cancels the in-flight run without ending the session, per spec.md §6's
// CLI exit semantics.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/usamanadeem786/iiagentd/internal/agent"
	"github.com/usamanadeem786/iiagentd/internal/config"
	"github.com/usamanadeem786/iiagentd/internal/contextmgr"
	"github.com/usamanadeem786/iiagentd/internal/event"
	"github.com/usamanadeem786/iiagentd/internal/eventbus"
	"github.com/usamanadeem786/iiagentd/internal/llm"
	"github.com/usamanadeem786/iiagentd/internal/llm/anthropic"
	"github.com/usamanadeem786/iiagentd/internal/llm/openai"
	"github.com/usamanadeem786/iiagentd/internal/persistence"
	"github.com/usamanadeem786/iiagentd/internal/sandbox"
	"github.com/usamanadeem786/iiagentd/internal/session"
)

const cliDeviceID = "cli"

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	resumeID := flag.String("resume", "", "resume an existing session by id instead of starting a new one")
	flag.Parse()

	if err := run(cfg, *resumeID); err != nil {
		log.Fatal().Err(err).Msg("agentcli")
	}
}

func run(cfg config.Config, resumeID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	store, err := persistence.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open session database: %w", err)
	}
	defer store.Close()
	eventStore := persistence.NewEventStore(store)

	sessionID, workspaceDir, err := resolveSession(ctx, store, cfg, resumeID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	workspace := sandbox.Workspace{Root: workspaceDir, ContainerMount: cfg.ContainerWorkspace, DockerContainer: cfg.DockerContainerID}
	registry := session.BuildRegistry(session.ToolArgs{EnableShell: true, EnableEditor: true, EnableBrowser: true, EnableWeb: true}, cfg, workspace)

	var ctxMgr contextmgr.Manager
	if cfg.ContextManager == config.ContextManagerFileBased {
		ctxMgr = contextmgr.NewFileBased(cfg, workspaceDir)
	} else {
		ctxMgr = contextmgr.NewStandard(cfg)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	bus := eventbus.New(eventStore, sessionID, true)
	defer bus.Close()
	sender := &consoleSender{}
	bus.AttachClient(sender)

	eng := agent.New(provider, registry, ctxMgr, workspace, bus, cfg.Model, defaultSystemPrompt(workspaceDir), cfg.MaxTurns, cfg.MaxOutputTokensPerTurn)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	go func() {
		for range sigCh {
			eng.Cancel()
		}
	}()

	fmt.Printf("session %s at %s (exit/quit to end)\n", sessionID, workspaceDir)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	resume := false
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		if _, err := eng.Run(runCtx, line, nil, resume); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		cancel()
		resume = true
	}
	return nil
}

// resolveSession creates a fresh session row, or loads an existing one's
// workspace when -resume is given, mirroring session.connection's
// init-agent handling so CLI and daemon runs share one session table.
func resolveSession(ctx context.Context, store *persistence.Store, cfg config.Config, resumeID string) (uuid.UUID, string, error) {
	if resumeID != "" {
		id, err := uuid.Parse(resumeID)
		if err != nil {
			return uuid.Nil, "", fmt.Errorf("invalid -resume id: %w", err)
		}
		sess, err := store.GetSession(ctx, id)
		if err != nil {
			return uuid.Nil, "", fmt.Errorf("resume session: %w", err)
		}
		return sess.ID, sess.WorkspaceDir, nil
	}

	id := uuid.New()
	workspaceDir := filepath.Join(cfg.WorkspaceRoot, id.String())
	sess := persistence.Session{ID: id, WorkspaceDir: workspaceDir, CreatedAt: time.Now().UTC(), DeviceID: cliDeviceID}
	if err := store.CreateSession(ctx, sess); err != nil {
		return uuid.Nil, "", fmt.Errorf("create session: %w", err)
	}
	return id, workspaceDir, nil
}

func buildProvider(cfg config.Config) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case "openai":
		return openai.New(cfg.OpenAIKey, cfg.OpenAIBase, cfg.Model), nil
	case "anthropic", "":
		return anthropic.New(cfg.AnthropicKey, cfg.AnthropicBase, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func defaultSystemPrompt(workspaceDir string) string {
	return fmt.Sprintf("You are an autonomous coding agent working in %s. Use complete_task to finish.", workspaceDir)
}

// consoleSender renders events to stdout instead of a WebSocket frame,
// satisfying eventbus.ClientSender.
type consoleSender struct{}

func (c *consoleSender) Send(e event.RealtimeEvent) error {
	switch e.Type {
	case event.TypeAgentThinking:
	case event.TypeToolCall:
		fmt.Printf("\n[tool] %v %v\n", e.Content["name"], e.Content["input"])
	case event.TypeToolResult:
		fmt.Printf("[result] %v\n", e.Content["text"])
	case event.TypeAgentResponse:
		fmt.Printf("\n%v\n", e.Content["text"])
	case event.TypeError:
		fmt.Fprintf(os.Stderr, "\n[error] %v\n", e.Content["text"])
	case event.TypeFileEdit, event.TypeBrowserUse:
		fmt.Printf("[%s] %v\n", e.Type, e.Content)
	}
	return nil
}
