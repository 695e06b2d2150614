package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/usamanadeem786/iiagentd/internal/agent"
	"github.com/usamanadeem786/iiagentd/internal/config"
	"github.com/usamanadeem786/iiagentd/internal/contextmgr"
	"github.com/usamanadeem786/iiagentd/internal/event"
	"github.com/usamanadeem786/iiagentd/internal/eventbus"
	"github.com/usamanadeem786/iiagentd/internal/llm"
	"github.com/usamanadeem786/iiagentd/internal/observability"
	"github.com/usamanadeem786/iiagentd/internal/persistence"
	"github.com/usamanadeem786/iiagentd/internal/sandbox"
	"github.com/usamanadeem786/iiagentd/internal/tools"
	"github.com/usamanadeem786/iiagentd/internal/tools/browser"
	"github.com/usamanadeem786/iiagentd/internal/tools/complete"
	"github.com/usamanadeem786/iiagentd/internal/tools/editor"
	"github.com/usamanadeem786/iiagentd/internal/tools/messageuser"
	"github.com/usamanadeem786/iiagentd/internal/tools/sequentialthinking"
	"github.com/usamanadeem786/iiagentd/internal/tools/shell"
	"github.com/usamanadeem786/iiagentd/internal/tools/web"
)

// connection is the per-WebSocket controller of spec.md §4.7: one per
// accepted socket, owning exactly one Agent once init_agent arrives.
// Grounded on vanducng-goclaw's per-client registration plus
// kubilitics-backend's read/write pump split.
type connection struct {
	server *Server
	conn   *websocket.Conn
	sender *wsSender

	mu          sync.Mutex
	initialized bool
	sessionID   uuid.UUID
	workspace   sandbox.Workspace
	engine      *agent.Engine
	bus         *eventbus.Bus

	running atomic.Bool
	runWG   sync.WaitGroup
}

func newConnection(s *Server, conn *websocket.Conn) *connection {
	return &connection{server: s, conn: conn, sender: newWSSender(conn)}
}

func (c *connection) run(ctx context.Context) {
	stop := make(chan struct{})
	go pingLoop(c.sender, stop)

	_ = c.sender.Send(event.New(event.TypeConnectionEstablished, nil))

	readPump(c.conn, c.handleFrame)

	close(stop)
	c.mu.Lock()
	bus := c.bus
	eng := c.engine
	c.mu.Unlock()
	if bus != nil {
		// Per spec.md §4.6, a disconnect detaches the channel but never
		// cancels the queue or the in-flight run; persistence continues
		// until the agent naturally terminates.
		bus.DetachClient()
	}
	if eng != nil {
		c.runWG.Wait()
	}
	if bus != nil {
		bus.Close()
	}
	c.sender.close()
}

func (c *connection) handleFrame(frame InboundFrame) bool {
	ctx := context.Background()
	switch frame.Type {
	case InboundInitAgent:
		c.handleInitAgent(ctx, frame.Content)
	case InboundQuery:
		c.handleQuery(frame.Content, false)
	case InboundCancel:
		c.handleCancel()
	case InboundEditQuery:
		c.handleEditQuery(ctx, frame.Content)
	case InboundWorkspaceInfo:
		c.handleWorkspaceInfo()
	case InboundPing:
		c.handlePing()
	case InboundEnhancePrompt:
		c.handleEnhancePrompt(ctx, frame.Content)
	default:
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": fmt.Sprintf("unknown message type %q", frame.Type)}))
	}
	return true
}

func (c *connection) handleInitAgent(ctx context.Context, raw json.RawMessage) {
	var content InitAgentContent
	if err := json.Unmarshal(raw, &content); err != nil {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "invalid init_agent content"}))
		return
	}

	cfg := c.server.cfg
	var sessionID uuid.UUID
	var workspaceDir string

	if content.SessionID != "" {
		id, err := uuid.Parse(content.SessionID)
		if err != nil {
			_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "invalid session_id"}))
			return
		}
		sess, err := c.server.store.GetSession(ctx, id)
		if err != nil {
			_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "session not found"}))
			return
		}
		sessionID, workspaceDir = id, sess.WorkspaceDir
	} else {
		sessionID = newSessionID()
		workspaceDir = filepath.Join(cfg.WorkspaceRoot, sessionID.String())
		if err := os.MkdirAll(filepath.Join(workspaceDir, "uploads"), 0o755); err != nil {
			_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "failed to create workspace"}))
			return
		}
		if err := c.server.store.CreateSession(ctx, persistence.Session{
			ID: sessionID, WorkspaceDir: workspaceDir, CreatedAt: time.Now(), DeviceID: content.DeviceID,
		}); err != nil {
			observability.LoggerWithTrace(ctx).Error().Err(err).Msg("create_session_failed")
			_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "failed to create session"}))
			return
		}
	}

	workspace := sandbox.Workspace{
		Root:            workspaceDir,
		ContainerMount:  cfg.ContainerWorkspace,
		DockerContainer: cfg.DockerContainerID,
	}

	registry := BuildRegistry(content.ToolArgs, cfg, workspace)

	var ctxMgr contextmgr.Manager
	if cfg.ContextManager == "file-based" {
		ctxMgr = contextmgr.NewFileBased(cfg, workspaceDir)
	} else {
		ctxMgr = contextmgr.NewStandard(cfg)
	}

	provider, err := c.server.buildProvider()
	if err != nil {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": err.Error()}))
		return
	}

	bus := eventbus.New(c.server.eventStore, sessionID, true)
	bus.AttachClient(c.sender)
	eng := agent.New(provider, registry, ctxMgr, workspace, bus, cfg.Model, defaultSystemPrompt, cfg.MaxTurns, cfg.MaxOutputTokensPerTurn)

	c.mu.Lock()
	c.initialized = true
	c.sessionID = sessionID
	c.workspace = workspace
	c.engine = eng
	c.bus = bus
	c.mu.Unlock()

	bus.Publish(event.New(event.TypeAgentInitialized, map[string]any{"session_id": sessionID.String()}))
	bus.Publish(event.New(event.TypeWorkspaceInfo, map[string]any{"path": workspaceDir}))
}

// BuildRegistry constructs the tool set per content.tool_args. The
// completion sentinel, user-message relay, and sequential-thinking scratch
// tool are always present, per spec.md §4.5's reliance on complete_task.
// Shared with cmd/agentcli so both entrypoints wire tools identically.
func BuildRegistry(args ToolArgs, cfg config.Config, workspace sandbox.Workspace) *tools.Registry {
	registered := []tools.Tool{complete.New(), messageuser.New(), sequentialthinking.New()}

	if args.EnableShell {
		registered = append(registered, shell.New(shell.Config{
			Timeout:          cfg.ShellTimeout,
			BannedSubstrings: cfg.BannedSubstrings,
			RequireConfirm:   false, // no confirm round-trip exists in the session protocol table
		}, workspace))
	}
	if args.EnableEditor {
		registered = append(registered, editor.New(workspace))
	}
	if args.EnableBrowser {
		ctrl := browser.New()
		registered = append(registered,
			browser.NewNavigateTool(ctrl), browser.NewRestartTool(ctrl), browser.NewScrollTool(ctrl),
			browser.NewClickTool(ctrl), browser.NewEnterTextTool(ctrl), browser.NewPressKeyTool(ctrl),
			browser.NewWaitTool(ctrl), browser.NewViewInteractiveElementsTool(ctrl),
			browser.NewSwitchTabTool(ctrl), browser.NewOpenNewTabTool(ctrl),
			browser.NewGetSelectOptionsTool(ctrl), browser.NewSelectDropdownOptionTool(ctrl),
		)
	}
	if args.EnableWeb {
		fetcher := web.NewFetcher(web.FetchOptions{PreferReadable: true})
		registered = append(registered, web.NewVisitWebpageTool(fetcher))
		if cfg.SearxBaseURL != "" {
			searchClient := web.NewSearXNGClient(cfg.SearxBaseURL)
			registered = append(registered,
				web.NewSearchTool(searchClient, 10),
				web.NewDeepResearchTool(searchClient, fetcher, cfg.DeepResearchURLs),
			)
		}
	}

	return tools.NewRegistry(registered...)
}

func (c *connection) handleQuery(raw json.RawMessage, resume bool) {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng == nil {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "agent not initialized"}))
		return
	}

	var content QueryContent
	if err := json.Unmarshal(raw, &content); err != nil {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "invalid query content"}))
		return
	}

	if !c.running.CompareAndSwap(false, true) {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "a query is already running"}))
		return
	}

	c.runWG.Add(1)
	go func() {
		defer func() {
			c.running.Store(false)
			c.runWG.Done()
		}()
		if _, err := eng.Run(context.Background(), content.Text, content.Files, resume); err != nil {
			observability.LoggerWithTrace(context.Background()).Warn().Err(err).Msg("run_agent_ended_with_error")
		}
	}()
}

func (c *connection) handleCancel() {
	c.mu.Lock()
	eng, bus := c.engine, c.bus
	c.mu.Unlock()
	if eng == nil {
		return
	}
	eng.Cancel()
	if bus != nil {
		bus.Publish(event.New(event.TypeSystem, map[string]any{"text": "Query cancelled"}))
	}
}

// handleEditQuery implements spec.md §4.7's edit_query: cancel the
// in-flight run, wait for it to fully release history (spec.md §5's
// synchronization requirement), roll back history and the durable event
// log to just before the last user message, then behave like query.
func (c *connection) handleEditQuery(ctx context.Context, raw json.RawMessage) {
	c.mu.Lock()
	eng, sessionID := c.engine, c.sessionID
	c.mu.Unlock()
	if eng == nil {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "agent not initialized"}))
		return
	}

	eng.Cancel()
	c.runWG.Wait()

	eng.History.ClearFromLastToUserMessage()
	if err := c.server.eventStore.DeleteEventsFromLastToUserMessage(ctx, sessionID); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Msg("delete_events_failed")
	}

	c.handleQuery(raw, true)
}

func (c *connection) handleWorkspaceInfo() {
	c.mu.Lock()
	bus, workspace := c.bus, c.workspace
	c.mu.Unlock()
	if bus == nil {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "agent not initialized"}))
		return
	}
	bus.Publish(event.New(event.TypeWorkspaceInfo, map[string]any{"path": workspace.Root}))
}

func (c *connection) handlePing() {
	_ = c.sender.Send(event.New(event.TypePong, nil))
}

// handleEnhancePrompt implements spec.md §4.7's one-shot rewrite: a plain
// LLM call outside the turn loop, with no tools and no history beyond the
// draft itself.
func (c *connection) handleEnhancePrompt(ctx context.Context, raw json.RawMessage) {
	var content EnhancePromptContent
	if err := json.Unmarshal(raw, &content); err != nil {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "invalid enhance_prompt content"}))
		return
	}

	provider, err := c.server.buildProvider()
	if err != nil {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": err.Error()}))
		return
	}

	rewritten, err := llm.EnhancePrompt(ctx, provider, c.server.cfg.Model, enhancePromptMeta, content.Draft)
	if err != nil {
		_ = c.sender.Send(event.New(event.TypeError, map[string]any{"text": "enhance_prompt failed: " + err.Error()}))
		return
	}

	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()
	evt := event.New(event.TypePromptGenerated, map[string]any{"text": rewritten})
	if bus != nil {
		bus.Publish(evt)
	} else {
		_ = c.sender.Send(evt)
	}
}
