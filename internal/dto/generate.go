package dto

// GenerateRequest is the backend-neutral shape of one model call. Both the
// Vertex and Gemini API adapters translate it.
type GenerateRequest struct {
	Model            string
	System           string
	History          []ChatTurn
	UserMessage      string
	Tools            []Tool
	Temperature      *float32
	MaxOutputTokens  *int32
	ResponseMIMEType string
	ResponseSchema   *Schema
}

type GenerateResponse struct {
	Text      string
	ToolCalls []ToolCall
	Raw       any
}

// ChatTurn is a prior message; Role is "user" or "model".
type ChatTurn struct {
	Role string
	Text string
}

type Tool struct {
	Name        string
	Description string
	Parameters  *Schema
}

type ToolCall struct {
	Name string
	Args map[string]any
}

type Schema struct {
	Type        string
	Description string
	Enum        []string
	Nullable    bool
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
}
