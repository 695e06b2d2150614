// Command agentd is the WebSocket/REST daemon entrypoint: it loads
// configuration, opens the session database, wires the session.Server, and
// serves it with graceful shutdown on SIGINT/SIGTERM, following the
// teacher's cmd/webui/main.go lifecycle shape.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/usamanadeem786/iiagentd/internal/config"
	"github.com/usamanadeem786/iiagentd/internal/observability"
	"github.com/usamanadeem786/iiagentd/internal/persistence"
	"github.com/usamanadeem786/iiagentd/internal/session"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.LogsPath != "" {
		f, err := os.OpenFile(cfg.LogsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open logs path")
		}
		defer f.Close()
		observability.SetOutput(f)
	}

	if err := os.MkdirAll(cfg.WorkspaceRoot, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create workspace root")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := persistence.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session database")
	}
	defer store.Close()

	srv := session.New(cfg, store)

	addr := firstNonEmpty(os.Getenv("AGENTD_LISTEN_ADDR"), ":8080")
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	go func() {
		log.Info().Str("addr", addr).Msg("agentd listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("agentd shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
