// Converge: multi-agent reasoning MCP server.
//
// Runs bounded dialogues between configured agent roles (consultant and
// analyst, debaters, reviewers) that iterate toward a quality threshold.
//
// Usage:
//
//	converge serve    # Start MCP server (stdio transport)
//	converge config   # Print the effective configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/converge/internal/config"
	"github.com/HendryAvila/converge/internal/logging"
	convergeserver "github.com/HendryAvila/converge/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "config":
		if err := printConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("converge v%s\n", convergeserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig resolves defaults, the config file and environment overrides.
func loadConfig() (*config.Config, error) {
	path := config.DefaultPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logs go to stderr so they don't interfere with MCP's stdio
	// transport on stdout.
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	slog.SetDefault(logger)

	s, cleanup, err := convergeserver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Graceful shutdown on interrupt: stop reading stdin, then cleanup
	// archives whatever sessions are still live.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	err = stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// printConfig writes the effective configuration as YAML with the API key
// redacted.
func printConfig() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Provider.APIKey != "" {
		cfg.Provider.APIKey = "<redacted>"
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	fmt.Fprintf(os.Stdout, "# %s\n%s", config.DefaultPath(), out)
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Converge v%s — Multi-Agent Reasoning MCP Server

Usage:
  converge serve    Start the MCP server (stdio transport)
  converge config   Print the effective configuration

Configuration:
  Reads %s (override with %s).
  Environment: %s, %s, %s, %s,
               %s, %s, %s

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "converge": {
        "command": "converge",
        "args": ["serve"],
        "env": { "ANTHROPIC_API_KEY": "..." }
      }
    }
  }
`, convergeserver.Version, config.DefaultPath(), config.EnvConfig,
		config.EnvProvider, config.EnvModel, config.EnvAPIKey, config.EnvBaseURL,
		config.EnvLogLevel, config.EnvDataDir, config.EnvMaxRetries)
}
