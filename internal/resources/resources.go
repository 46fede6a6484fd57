// Package resources implements MCP resource handlers for reasoning sessions.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (converge://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/converge/internal/reasoning"
)

// Resource URIs.
const (
	PresetsURI  = "converge://presets"
	SessionsURI = "converge://sessions"
)

// Handler manages converge resource endpoints.
type Handler struct {
	presets *reasoning.PresetRegistry
	manager *reasoning.Manager
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(presets *reasoning.PresetRegistry, manager *reasoning.Manager) *Handler {
	return &Handler{presets: presets, manager: manager}
}

// PresetsResource returns the MCP resource definition for the preset catalog.
func (h *Handler) PresetsResource() mcp.Resource {
	return mcp.NewResource(
		PresetsURI,
		"Reasoning Presets",
		mcp.WithResourceDescription("Agent presets with their dialogue mode and agent configurations"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandlePresets returns the preset catalog as JSON.
func (h *Handler) HandlePresets(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, map[string]any{"presets": h.presets.List()})
}

// SessionsResource returns the MCP resource definition for live sessions.
func (h *Handler) SessionsResource() mcp.Resource {
	return mcp.NewResource(
		SessionsURI,
		"Active Reasoning Sessions",
		mcp.WithResourceDescription("Status snapshots of every session still held in memory"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSessions returns live session snapshots as JSON.
func (h *Handler) HandleSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, map[string]any{"sessions": h.manager.Sessions()})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
