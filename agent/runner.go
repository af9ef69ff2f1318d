package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fitfinderapi/models"
	"fitfinderapi/services"
	"github.com/getsentry/sentry-go"
)

// Runner drives one conversation turn end to end: intent routing, the
// dispatcher tool loop, the assembly engine sub-flow, and the conversion of
// every internal failure into the reply contract. No raw external-service
// error ever reaches the caller.
type Runner struct {
	LLM        services.StylistLLMProvider
	Model      services.LLMModelName
	Toolbox    *Toolbox
	Dispatcher *Dispatcher
	Engine     *Engine
	Sessions   *SessionStore
	URLCache   services.URLCacheServiceProvider

	// MaxToolSteps bounds the dispatch loop within a single turn.
	MaxToolSteps int
}

func NewRunner(toolbox *Toolbox, urlCache services.URLCacheServiceProvider) *Runner {
	return &Runner{
		LLM:          toolbox.LLM,
		Model:        toolbox.Model,
		Toolbox:      toolbox,
		Dispatcher:   NewDispatcher(toolbox),
		Engine:       NewEngine(toolbox),
		Sessions:     NewSessionStore(),
		URLCache:     urlCache,
		MaxToolSteps: 6,
	}
}

// RunTurn processes one request. A pending provisional outfit for the
// conversation takes precedence; outfit-flavored prompts start the assembly
// engine; everything else runs the model-driven tool loop.
func (r *Runner) RunTurn(ctx context.Context, ownerID uint, conversationID string, request models.ChatRequest) *models.ChatResponse {
	prompt := strings.TrimSpace(request.Prompt)

	if session, ok := r.Sessions.Get(conversationID); ok && session.OwnerID == ownerID {
		feedback := ParseFeedback(prompt)
		if feedback.Accepted {
			return r.acceptOutfit(ctx, ownerID, conversationID, session.State)
		}
		if feedback.IsRefinement() {
			return r.refineOutfit(ctx, ownerID, conversationID, session.State, prompt, feedback)
		}
		// unrelated request: the provisional outfit is discarded and the
		// new prompt handled from scratch
		r.Sessions.Delete(conversationID)
	}

	if IsOutfitIntent(prompt) {
		return r.startOutfit(ctx, ownerID, conversationID, prompt)
	}
	return r.runToolLoop(ctx, ownerID, request)
}

func (r *Runner) startOutfit(ctx context.Context, ownerID uint, conversationID string, prompt string) *models.ChatResponse {
	state, err := r.Engine.Begin(ctx, ownerID, prompt)
	if err != nil {
		if incomplete, ok := AsIncompleteOutfit(err); ok {
			return &models.ChatResponse{ResponseText: FormatIncomplete(incomplete)}
		}
		fmt.Printf("[User: %v] outfit assembly failed: %v\n", ownerID, err)
		sentry.CaptureException(err)
		return &models.ChatResponse{ResponseText: ApologyMessage}
	}
	r.Sessions.Put(conversationID, ownerID, state)
	return &models.ChatResponse{ResponseText: FormatProvisionalOutfit(state)}
}

func (r *Runner) refineOutfit(ctx context.Context, ownerID uint, conversationID string, state *OutfitState, prompt string, feedback Feedback) *models.ChatResponse {
	if err := r.Engine.ApplyFeedback(ctx, ownerID, state, prompt, feedback); err != nil {
		r.Sessions.Delete(conversationID)
		if incomplete, ok := AsIncompleteOutfit(err); ok {
			return &models.ChatResponse{ResponseText: FormatIncomplete(incomplete)}
		}
		fmt.Printf("[User: %v] outfit refinement failed: %v\n", ownerID, err)
		sentry.CaptureException(err)
		return &models.ChatResponse{ResponseText: ApologyMessage}
	}
	r.Sessions.Put(conversationID, ownerID, state)
	return &models.ChatResponse{ResponseText: FormatProvisionalOutfit(state)}
}

func (r *Runner) acceptOutfit(ctx context.Context, ownerID uint, conversationID string, state *OutfitState) *models.ChatResponse {
	outfit, err := r.Engine.Accept(ctx, ownerID, state, "")
	r.Sessions.Delete(conversationID)
	if err != nil {
		if incomplete, ok := AsIncompleteOutfit(err); ok {
			return &models.ChatResponse{ResponseText: FormatIncomplete(incomplete)}
		}
		fmt.Printf("[User: %v] outfit persist failed: %v\n", ownerID, err)
		sentry.CaptureException(err)
		return &models.ChatResponse{ResponseText: ApologyMessage}
	}
	return &models.ChatResponse{ResponseText: FormatCreation(outfit)}
}

// runToolLoop is the dispatcher loop: ask the model for the next action,
// execute exactly one tool, feed the result back, and stop when the model
// answers in text or the step budget runs out.
func (r *Runner) runToolLoop(ctx context.Context, ownerID uint, request models.ChatRequest) *models.ChatResponse {
	prompt := request.Prompt
	if request.OptionalImageURL != nil && *request.OptionalImageURL != "" {
		prompt = fmt.Sprintf("%s\nAttached image: %s", prompt, *request.OptionalImageURL)
	}
	history := []services.ChatMessage{{Role: "user", Text: prompt}}
	state := NewOutfitState("", models.SeasonAny)

	for step := 0; step < r.MaxToolSteps; step++ {
		action, err := r.LLM.NextAction(ctx, history, r.Toolbox.Definitions(), r.Model)
		if err != nil {
			fmt.Printf("[User: %v] model call failed: %v\n", ownerID, err)
			sentry.CaptureException(fmt.Errorf("%w: %v", ErrModelUnavailable, err))
			return &models.ChatResponse{ResponseText: ApologyMessage}
		}

		call, hasCall := r.Dispatcher.Route(action)
		if !hasCall {
			return r.terminalResponse(ctx, action.Text, state)
		}

		result, err := r.Dispatcher.Dispatch(ctx, ownerID, call, state)
		if err != nil {
			if errors.Is(err, ErrUnknownTool) {
				sentry.CaptureException(err)
				return &models.ChatResponse{ResponseText: ApologyMessage}
			}
			if incomplete, ok := AsIncompleteOutfit(err); ok {
				return &models.ChatResponse{ResponseText: FormatIncomplete(incomplete)}
			}
			fmt.Printf("[User: %v] tool %s failed: %v\n", ownerID, call.Name, err)
			sentry.CaptureException(err)
			return &models.ChatResponse{ResponseText: ApologyMessage}
		}

		history = append(history,
			services.ChatMessage{Role: "model", ToolCalls: []services.ToolCall{call}},
			services.ChatMessage{Role: "tool", ToolName: call.Name, ToolResult: result},
		)
	}

	// step budget exhausted: answer from whatever the tools produced
	return r.terminalResponse(ctx, "", state)
}

func (r *Runner) terminalResponse(ctx context.Context, text string, state *OutfitState) *models.ChatResponse {
	response := &models.ChatResponse{ResponseText: strings.TrimSpace(text)}
	if response.ResponseText == "" {
		response.ResponseText = FormatItemSearch(state.ItemCandidates)
	}
	if len(state.OutfitCandidates) > 0 {
		response.MatchingOutfits = FormatOutfitPreviews(state.OutfitCandidates, r.outfitImageURLs(ctx, state.OutfitCandidates))
	}
	return response
}

// outfitImageURLs resolves a presigned read URL per outfit, keyed by outfit
// id, from the top member's stored image.
func (r *Runner) outfitImageURLs(ctx context.Context, outfits []models.Outfit) map[uint]string {
	urls := map[uint]string{}
	if r.URLCache == nil {
		return urls
	}
	for _, outfit := range outfits {
		if outfit.TopItem == nil || outfit.TopItem.ImageURL == nil {
			continue
		}
		url, err := r.URLCache.GetReadURL(ctx, *outfit.TopItem.ImageURL)
		if err != nil {
			fmt.Printf("[Outfit: %v] failed to presign image: %v\n", outfit.ID, err)
			continue
		}
		urls[outfit.ID] = url
	}
	return urls
}
