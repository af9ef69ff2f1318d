package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// LLMModelName is the GenAI model to use for a request.
type LLMModelName int32

const (
	Pro25 LLMModelName = iota
	Flash25
	FlashLite25
	Flash20
)

func (t LLMModelName) String() string {
	switch t {
	case Pro25:
		return "gemini-2.5-pro"
	case Flash25:
		return "gemini-2.5-flash"
	case FlashLite25:
		return "gemini-2.5-flash-lite-preview-06-17"
	case Flash20:
		return "gemini-2.0-flash"
	default:
		return "gemini-2.0-flash"
	}
}

func floatPointer(f float32) *float32 {
	return &f
}

func Int32Pointer(i int32) *int32 {
	return &i
}

// ToolCall is one function call emitted by the reasoning model. It is
// consumed exactly once by the dispatcher.
type ToolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ChatMessage is one entry of the conversation passed to the model.
// Role is "user", "model" or "tool" (a tool execution result).
type ChatMessage struct {
	Role       string     `json:"role"`
	Text       string     `json:"text"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolResult string     `json:"tool_result,omitempty"`
}

// AgentAction is the model's decision for one dispatch step: either plain
// response text, or one or more requested tool calls.
type AgentAction struct {
	Text             string
	ToolCalls        []ToolCall
	InputTokenCount  int32
	OutputTokenCount int32
	TotalTokenCount  int32
}

type ToolParamSpec struct {
	Type        string
	Description string
	Enum        []string
	ItemsType   string
}

type ToolDefinition struct {
	Name        string
	Description string
	Params      map[string]ToolParamSpec
	Required    []string
}

// ItemCaption is the structured description produced for a clothing image.
type ItemCaption struct {
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Season      string   `json:"season"`
	Color       string   `json:"color"`
	Tags        []string `json:"tags"`
}

type StylistLLMProvider interface {
	NextAction(ctx context.Context, history []ChatMessage, tools []ToolDefinition, modelName LLMModelName) (*AgentAction, error)
	CaptionImage(ctx context.Context, imageBytes []byte, mimeType string, modelName LLMModelName) (*ItemCaption, error)
}

type GoogleStylistLLM struct{}

const stylistSystemPrompt = `You are a personal wardrobe stylist assistant. The user owns a clothing inventory you can search with the provided tools. Use the tools to answer questions about their clothes and outfits. When you have enough information, answer with a short, friendly text reply instead of calling another tool. Never invent clothing items that the tools did not return.`

func newGenAIClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GOOGLE_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
}

func genaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}

func toFunctionDeclarations(tools []ToolDefinition) []*genai.FunctionDeclaration {
	var decls []*genai.FunctionDeclaration
	for _, tool := range tools {
		properties := map[string]*genai.Schema{}
		for name, param := range tool.Params {
			schema := &genai.Schema{
				Type:        genaiType(param.Type),
				Description: param.Description,
				Enum:        param.Enum,
			}
			if param.Type == "array" {
				schema.Items = &genai.Schema{Type: genaiType(param.ItemsType)}
			}
			properties[name] = schema
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.Required,
			},
		})
	}
	return decls
}

func toGenAIContents(history []ChatMessage) []*genai.Content {
	var contents []*genai.Content
	for _, message := range history {
		switch message.Role {
		case "model":
			var parts []*genai.Part
			if message.Text != "" {
				parts = append(parts, &genai.Part{Text: message.Text})
			}
			for _, call := range message.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: call.Name, Args: call.Args},
				})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case "tool":
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					Name:     message.ToolName,
					Response: map[string]any{"result": message.ToolResult},
				},
			}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: message.Text}}})
		}
	}
	return contents
}

func (GoogleStylistLLM) NextAction(ctx context.Context, history []ChatMessage, tools []ToolDefinition, modelName LLMModelName) (*AgentAction, error) {
	client, err := newGenAIClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %v", err)
	}

	result, err := client.Models.GenerateContent(ctx, modelName.String(), toGenAIContents(history), &genai.GenerateContentConfig{
		CandidateCount:  1,
		MaxOutputTokens: 4000,
		Temperature:     floatPointer(0.4),
		Tools: []*genai.Tool{
			{FunctionDeclarations: toFunctionDeclarations(tools)},
		},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: stylistSystemPrompt},
			},
		},
	})
	if err != nil {
		fmt.Println("Error in GenerateContent:", err)
		return nil, fmt.Errorf("%v", err)
	}
	if result.PromptFeedback != nil {
		fmt.Println(result.PromptFeedback.BlockReason)
		fmt.Println(result.PromptFeedback.BlockReasonMessage)
		return nil, fmt.Errorf("content violation: %s", result.PromptFeedback.BlockReasonMessage)
	}

	action := &AgentAction{}
	if result.UsageMetadata != nil {
		action.InputTokenCount = result.UsageMetadata.PromptTokenCount
		action.OutputTokenCount = result.UsageMetadata.CandidatesTokenCount
		action.TotalTokenCount = result.UsageMetadata.TotalTokenCount
		fmt.Println("Input token count:", action.InputTokenCount)
		fmt.Println("Output token count:", action.OutputTokenCount)
	}
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				action.ToolCalls = append(action.ToolCalls, ToolCall{
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
			}
		}
	}
	action.Text = result.Text()
	return action, nil
}

func (GoogleStylistLLM) CaptionImage(ctx context.Context, imageBytes []byte, mimeType string, modelName LLMModelName) (*ItemCaption, error) {
	client, err := newGenAIClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %v", err)
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageBytes}},
		{Text: `Describe the single clothing item in the image for a wardrobe catalog. Return its description (one sentence, mention color, material and fit), category, the season it suits best, dominant color and a few style tags.`},
	}

	result, err := client.Models.GenerateContent(ctx, modelName.String(), []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		CandidateCount:   1,
		MaxOutputTokens:  2000,
		Temperature:      floatPointer(0.8),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: `You are an expert fashion cataloger. If the image does not contain a clothing item, return category "unknown" and an empty description.`},
			},
		},
		ResponseSchema: &genai.Schema{
			Type: "object",
			Properties: map[string]*genai.Schema{
				"description": {
					Type: "string",
				},
				"category": {
					Type: "string",
					Enum: []string{"top", "bottom", "shoes", "outerwear", "accessory", "unknown"},
				},
				"season": {
					Type: "string",
					Enum: []string{"spring", "summer", "fall", "winter", "any"},
				},
				"color": {
					Type: "string",
				},
				"tags": {
					Type:  "array",
					Items: &genai.Schema{Type: "string"},
				},
			},
			Required: []string{"description", "category", "season"},
		},
	})
	if err != nil {
		fmt.Println("Error in GenerateContent:", err)
		return nil, fmt.Errorf("%v", err)
	}
	if result.PromptFeedback != nil {
		fmt.Println(result.PromptFeedback.BlockReason)
		fmt.Println(result.PromptFeedback.BlockReasonMessage)
		return nil, fmt.Errorf("content violation: %s", result.PromptFeedback.BlockReasonMessage)
	}

	var caption ItemCaption
	if err := json.Unmarshal([]byte(result.Text()), &caption); err != nil {
		fmt.Println("Error parsing caption response:", result.Text())
		return nil, fmt.Errorf("error parsing caption response: %v", err)
	}
	return &caption, nil
}
