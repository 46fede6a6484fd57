// Package tools implements the MCP tool handlers for reasoning sessions.
//
// Each tool receives its dependencies via its struct and exposes:
// - Definition() returning the mcp.Tool schema
// - Handle() processing the request and returning a result
//
// Domain failures (bad input, unknown session, terminal session, provider
// failure) come back as tool error results the caller can read. Only
// infrastructure failures are returned as Go errors.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/HendryAvila/converge/internal/reasoning"
)

// intArg extracts an integer argument, accepting JSON numbers and numeric
// strings. Missing keys yield defaultVal.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) (int, error) {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("'%s' must be an integer: %w", key, err)
	}
	return n, nil
}

// floatArg extracts an optional float argument. nil means absent.
func floatArg(req mcp.CallToolRequest, key string) (*float64, error) {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, fmt.Errorf("'%s' must be a number: %w", key, err)
	}
	return &f, nil
}

// boolArg extracts a boolean argument, accepting "true"/"false" strings.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) (bool, error) {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("'%s' must be a boolean: %w", key, err)
	}
	return b, nil
}

// agentsArg decodes the agents argument. Hosts send either a JSON array or
// a string holding one.
func agentsArg(req mcp.CallToolRequest, key string) ([]reasoning.AgentConfig, error) {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return nil, nil
	}

	var raw []byte
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		raw = []byte(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not valid JSON: %w", key, err)
		}
		raw = data
	}

	var agents []reasoning.AgentConfig
	if err := json.Unmarshal(raw, &agents); err != nil {
		return nil, fmt.Errorf("'%s' must be a JSON array of {name, role, system_prompt, model?, temperature?, max_tokens?}: %w", key, err)
	}
	return agents, nil
}

// isDomainError reports whether err belongs to a class the caller can act on.
func isDomainError(err error) bool {
	for _, target := range []error{
		reasoning.ErrInvalidArgument,
		reasoning.ErrNotFound,
		reasoning.ErrInvalidState,
		reasoning.ErrProvider,
		reasoning.ErrCancelled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// errorResult maps a reasoning error to a tool result. Infrastructure errors
// are returned as Go errors instead.
func errorResult(action string, err error) (*mcp.CallToolResult, error) {
	if isDomainError(err) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err)), nil
	}
	return nil, fmt.Errorf("%s: %w", action, err)
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
