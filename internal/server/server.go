// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations
// and injects them into the tools, prompts and resources that depend on them.
// No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HendryAvila/converge/internal/archive"
	"github.com/HendryAvila/converge/internal/config"
	"github.com/HendryAvila/converge/internal/llm"
	"github.com/HendryAvila/converge/internal/prompts"
	"github.com/HendryAvila/converge/internal/reasoning"
	"github.com/HendryAvila/converge/internal/resources"
	"github.com/HendryAvila/converge/internal/tools"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// shutdownTimeout bounds archiving of live sessions on shutdown.
const shutdownTimeout = 10 * time.Second

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function archives live sessions and closes the
// archive database. It is always non-nil and safe to call even if the
// archive failed to open.
func New(cfg *config.Config, logger *slog.Logger) (*server.MCPServer, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	// --- Create shared dependencies ---

	presets, err := reasoning.NewPresetRegistry(cfg.Presets...)
	if err != nil {
		return nil, noop, fmt.Errorf("loading presets: %w", err)
	}

	completer, err := llm.New(cfg.LLMOptions())
	if err != nil {
		return nil, noop, fmt.Errorf("creating %s completer: %w", cfg.Provider.Name, err)
	}

	// The archive is optional. If it fails to open (permissions, disk),
	// live sessions keep working; only history and post-eviction reads
	// are lost. We log a warning and continue without it.
	var (
		archiver reasoning.Archiver
		arch     *archive.Store
	)
	if cfg.ArchiveEnabled() {
		arch, err = archive.New(cfg.ArchiveConfig())
		if err != nil {
			logger.Warn("session archive disabled", "error", err)
			arch = nil
		} else {
			archiver = arch
		}
	}

	storeOpts := []reasoning.StoreOption{reasoning.WithStoreLogger(logger)}
	managerOpts := []reasoning.ManagerOption{reasoning.WithManagerLogger(logger)}
	engineOpts := []reasoning.EngineOption{reasoning.WithEngineLogger(logger)}
	if archiver != nil {
		storeOpts = append(storeOpts, reasoning.WithArchiver(archiver))
		managerOpts = append(managerOpts, reasoning.WithManagerArchiver(archiver))
		engineOpts = append(engineOpts, reasoning.WithEngineArchiver(archiver))
	}

	store := reasoning.NewMemoryStore(cfg.StoreConfig(), storeOpts...)
	manager := reasoning.NewManager(store, presets, managerOpts...)
	engine := reasoning.NewEngine(store, completer, engineOpts...)
	formatter := reasoning.NewFormatter(store, archiver)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		store.Close(ctx)
		if arch != nil {
			if err := arch.Close(); err != nil {
				logger.Warn("archive close", "error", err)
			}
		}
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"converge",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register reasoning tools ---

	startTool := tools.NewStartTool(manager)
	s.AddTool(startTool.Definition(), startTool.Handle)

	runTool := tools.NewRunTool(engine)
	s.AddTool(runTool.Definition(), runTool.Handle)

	resultTool := tools.NewResultTool(formatter)
	s.AddTool(resultTool.Definition(), resultTool.Handle)

	statusTool := tools.NewStatusTool(manager)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	presetsTool := tools.NewPresetsTool(presets)
	s.AddTool(presetsTool.Definition(), presetsTool.Handle)

	// History reports "archiving disabled" on its own when arch is nil.
	historyTool := tools.NewHistoryTool(arch)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	// --- Register prompts ---

	sessionPrompt := prompts.NewSessionPrompt()
	s.AddPrompt(sessionPrompt.Definition(), sessionPrompt.Handle)

	// --- Register resources ---

	rh := resources.NewHandler(presets, manager)
	s.AddResource(rh.PresetsResource(), rh.HandlePresets)
	s.AddResource(rh.SessionsResource(), rh.HandleSessions)

	logger.Info("server ready",
		"version", Version,
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
		"archive", arch != nil,
	)

	return s, cleanup, nil
}

// noop is the cleanup returned when construction fails early.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to drive a reasoning session.
func serverInstructions() string {
	return `You have access to Converge, a multi-agent reasoning server.

A reasoning session is a bounded dialogue between configured agent roles
(for example a consultant and an analyst) about one topic. Each iteration
every agent takes one turn, the last turn scores the work, and the session
stops when the score reaches the quality threshold or the iteration budget
runs out.

## Workflow

1. Call reasoning_presets to pick an agent lineup (or pass your own agents).
2. Call reasoning_start with the topic and optional context. Keep the
   returned session_id.
3. Call reasoning_run once per iteration. Read "Should continue" in the
   response: while it is true, call reasoning_run again; when it is false,
   stop iterating.
4. Call reasoning_result to get the final answer, metrics and (optionally)
   the full transcript. Use format=markdown for humans, json for machines.

## Rules

- Run iterations one at a time and in order. Do not run the same session
  from two places in parallel; calls are serialized per session.
- A provider failure ends the session with status "error". Start a new
  session (optionally with the same thread_id) instead of retrying it.
- Use reasoning_status for a cheap progress check without the transcript.
- Use reasoning_history to find earlier sessions of a thread or to search
  archived dialogue text, when archiving is enabled.`
}
