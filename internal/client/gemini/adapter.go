package geminiclient

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
)

// Adapter talks to the Gemini Developer API. It satisfies the same generator
// interface as the Vertex adapter.
type Adapter struct {
	models generator
	model  string
	log    *slog.Logger
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func NewAdapter(ctx context.Context, log *slog.Logger, apiKey, model string) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{models: client.Models, model: model, log: log}, nil
}

// Close is a no-op; the genai client holds no long-lived connections.
func (a *Adapter) Close() error { return nil }

func (a *Adapter) GenerateContent(ctx context.Context, req dto.GenerateRequest) (dto.GenerateResponse, error) {
	out := dto.GenerateResponse{}

	modelName := req.Model
	if modelName == "" {
		modelName = a.model
	}
	if modelName == "" {
		return out, fmt.Errorf("gemini model is required")
	}
	if req.UserMessage == "" {
		return out, fmt.Errorf("gemini generate request has no content")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      req.Temperature,
		ResponseMIMEType: req.ResponseMIMEType,
		ResponseSchema:   toGenaiSchema(req.ResponseSchema),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = *req.MaxOutputTokens
	}
	if len(req.Tools) > 0 {
		cfg.Tools = toGenaiTools(req.Tools)
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		if turn.Text == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if turn.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.UserMessage, genai.RoleUser))

	resp, err := a.models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return out, errs.NewExternalServiceError("gemini", "generate content failed", true, err)
	}

	out.Raw = resp
	if resp == nil {
		return out, nil
	}
	out.Text = resp.Text()
	for _, call := range resp.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, dto.ToolCall{Name: call.Name, Args: call.Args})
	}
	return out, nil
}

func toGenaiTools(tools []dto.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGenaiSchema(tool.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGenaiSchema(schema *dto.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        toGenaiType(schema.Type),
		Description: schema.Description,
		Enum:        schema.Enum,
		Required:    schema.Required,
		Items:       toGenaiSchema(schema.Items),
	}
	if schema.Nullable {
		out.Nullable = genai.Ptr(true)
	}
	if len(schema.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for key, value := range schema.Properties {
			out.Properties[key] = toGenaiSchema(value)
		}
	}
	return out
}

func toGenaiType(schemaType string) genai.Type {
	switch schemaType {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
