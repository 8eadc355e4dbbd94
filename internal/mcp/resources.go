package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) achievementCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	catalog, err := h.ds.ListAchievements(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req, catalog)
}

func (h *handlers) dashboard(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	summary, err := h.ds.GetSummary(ctx, UserIDFromContext(ctx), h.now())
	if err != nil {
		return nil, err
	}
	return jsonResource(req, summary)
}

func jsonResource(req mcp.ReadResourceRequest, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
