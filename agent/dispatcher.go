package agent

import (
	"context"
	"fmt"

	"fitfinderapi/services"
)

// ToolHandler executes one tool adapter against the shared state. The result
// string is what the reasoning model receives back.
type ToolHandler func(ctx context.Context, ownerID uint, args map[string]interface{}, state *OutfitState) (string, error)

// Dispatcher maps model-declared tool calls to registered adapters. It is an
// explicit enumerated registry: tool names are fixed identifiers, never
// resolved by reflection over model output.
type Dispatcher struct {
	handlers map[string]ToolHandler
}

func NewDispatcher(toolbox *Toolbox) *Dispatcher {
	return &Dispatcher{
		handlers: map[string]ToolHandler{
			ToolCaptionImage:  toolbox.CaptionImage,
			ToolEmbedText:     toolbox.EmbedText,
			ToolEmbedImage:    toolbox.EmbedImage,
			ToolSearchItems:   toolbox.SearchItems,
			ToolSearchOutfits: toolbox.SearchOutfits,
			ToolCreateOutfit:  toolbox.CreateOutfit,
		},
	}
}

// Route picks the tool call to execute for a model action. Only the most
// recent call is honored; models occasionally request several tools at once
// and honoring one fixed slot keeps dispatch deterministic. A missing tool
// call means the turn is terminal and control goes to the formatter.
func (d *Dispatcher) Route(action *services.AgentAction) (services.ToolCall, bool) {
	if action == nil || len(action.ToolCalls) == 0 {
		return services.ToolCall{}, false
	}
	return action.ToolCalls[len(action.ToolCalls)-1], true
}

// Dispatch executes a routed call. An unregistered tool name fails fast with
// ErrUnknownTool before any state mutation; it is a configuration bug, never
// silently skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID uint, call services.ToolCall, state *OutfitState) (string, error) {
	handler, ok := d.handlers[call.Name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}
	return handler(ctx, ownerID, call.Args, state)
}

// Registered reports whether a tool name is part of the registry.
func (d *Dispatcher) Registered(name string) bool {
	_, ok := d.handlers[name]
	return ok
}
