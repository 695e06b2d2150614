// Package config resolves process-wide configuration from the environment
// exactly once at connection/process init, and hands out an immutable
// Config value to every subsystem that needs one.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ContextManagerKind selects between the standard and file-based
// ContextManager variants of spec.md §4.3.
type ContextManagerKind string

const (
	ContextManagerStandard ContextManagerKind = "standard"
	ContextManagerFileBased ContextManagerKind = "file-based"
)

// Config is the single injected configuration object; every field is
// resolved once at connection init (spec.md §6, "Configuration (environment)").
type Config struct {
	// LLM provider selection.
	LLMProvider    string // "anthropic" | "openai"
	Model          string
	AnthropicKey   string
	AnthropicBase  string
	OpenAIKey      string
	OpenAIBase     string

	// Agent loop budgets.
	TokenBudget            int
	MaxTurns               int
	MaxOutputTokensPerTurn int

	// ContextManager selection.
	ContextManager ContextManagerKind

	// Workspace / container.
	WorkspaceRoot      string
	ContainerWorkspace string // path as seen inside a mounted container, if any
	DockerContainerID  string

	// Shell tool.
	ShellTimeout       time.Duration
	RequireConfirm     bool
	BannedSubstrings   []string

	// Session database.
	DBPath string

	// Web retrieval tools. Empty SearxBaseURL disables web_search and
	// deep_research; visit_webpage never needs it.
	SearxBaseURL     string
	DeepResearchURLs int

	// Logging.
	LogsPath string
	LogLevel string
}

// Load resolves Config from the environment. Zero-value fields fall back
// to sensible defaults, matching the teacher's loader.go pattern.
func Load() (Config, error) {
	cfg := Config{
		LLMProvider:            firstNonEmpty(getenv("LLM_PROVIDER"), "anthropic"),
		Model:                  getenv("AGENT_MODEL"),
		AnthropicKey:           getenv("ANTHROPIC_API_KEY"),
		AnthropicBase:          getenv("ANTHROPIC_BASE_URL"),
		OpenAIKey:              getenv("OPENAI_API_KEY"),
		OpenAIBase:             getenv("OPENAI_BASE_URL"),
		TokenBudget:            intEnv("CONTEXT_TOKEN_BUDGET", 120_000),
		MaxTurns:               intEnv("MAX_TURNS", 100),
		MaxOutputTokensPerTurn: intEnv("MAX_OUTPUT_TOKENS_PER_TURN", 8192),
		ContextManager:         ContextManagerKind(firstNonEmpty(getenv("CONTEXT_MANAGER"), string(ContextManagerStandard))),
		WorkspaceRoot:          firstNonEmpty(getenv("WORKSPACE_ROOT"), "./workspaces"),
		ContainerWorkspace:     getenv("CONTAINER_WORKSPACE_PATH"),
		DockerContainerID:      getenv("DOCKER_CONTAINER_ID"),
		ShellTimeout:           secondsEnv("SHELL_COMMAND_TIMEOUT_SECONDS", 60) * time.Second,
		RequireConfirm:         boolEnv("SHELL_REQUIRE_CONFIRMATION", false),
		BannedSubstrings:       splitNonEmpty(getenv("SHELL_BANNED_SUBSTRINGS"), "git init,git commit,git add"),
		DBPath:                 firstNonEmpty(getenv("AGENTD_DB_PATH"), "./agentd.db"),
		SearxBaseURL:           getenv("SEARXNG_BASE_URL"),
		DeepResearchURLs:       intEnv("DEEP_RESEARCH_MAX_URLS", 5),
		LogsPath:               getenv("AGENTD_LOGS_PATH"),
		LogLevel:               getenv("AGENTD_LOG_LEVEL"),
	}
	return cfg, nil
}

func getenv(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intEnv(key string, def int) int {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func secondsEnv(key string, def int) time.Duration {
	return time.Duration(intEnv(key, def))
}

func boolEnv(key string, def bool) bool {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitNonEmpty(v, def string) []string {
	if strings.TrimSpace(v) == "" {
		v = def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
