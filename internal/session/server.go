package session

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/usamanadeem786/iiagentd/internal/config"
	"github.com/usamanadeem786/iiagentd/internal/llm"
	"github.com/usamanadeem786/iiagentd/internal/llm/anthropic"
	"github.com/usamanadeem786/iiagentd/internal/llm/openai"
	"github.com/usamanadeem786/iiagentd/internal/observability"
	"github.com/usamanadeem786/iiagentd/internal/persistence"
)

// Server owns the process-wide dependencies every connection needs: the
// configuration, the database, and the HTTP mux. One Server per process;
// one connection (and therefore one Agent) per accepted WebSocket,
// following vanducng-goclaw's gateway.Server/Client split.
type Server struct {
	cfg        config.Config
	store      *persistence.Store
	eventStore *persistence.EventStore
	upgrader   websocket.Upgrader
	mux        *http.ServeMux
}

// New builds a Server. The caller owns store's lifetime (Close it on
// shutdown); Server only reads and writes through it.
func New(cfg config.Config, store *persistence.Store) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		eventStore: persistence.NewEventStore(store),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler, matching the teacher's
// internal/httpapi/server.go shape (a thin *http.ServeMux wrapper).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/sessions/{device_id}", s.handleListSessions)
	s.mux.HandleFunc("GET /api/sessions/{session_id}/events", s.handleListEvents)
	s.mux.Handle("GET /workspace/", http.StripPrefix("/workspace/", http.FileServer(http.Dir(s.cfg.WorkspaceRoot))))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("websocket_upgrade_failed")
		return
	}
	c := newConnection(s, conn)
	c.run(r.Context())
}

// buildProvider resolves the configured LLM provider. The agent never
// branches on provider identity past this point (spec.md §6).
func (s *Server) buildProvider() (llm.Provider, error) {
	switch s.cfg.LLMProvider {
	case "openai":
		return openai.New(s.cfg.OpenAIKey, s.cfg.OpenAIBase, s.cfg.Model), nil
	case "anthropic", "":
		return anthropic.New(s.cfg.AnthropicKey, s.cfg.AnthropicBase, s.cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", s.cfg.LLMProvider)
	}
}

func newSessionID() uuid.UUID { return uuid.New() }
