package creditgate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind selects the provider family a ModelTarget is routed to.
type Kind string

const (
	KindHosted     Kind = "hosted"
	KindSelfHosted Kind = "self-hosted"
)

// ModelTarget binds a request to one provider and model.
type ModelTarget struct {
	Kind  Kind   `yaml:"kind" json:"kind"`
	Model string `yaml:"model" json:"model"`

	// APIKey authenticates hosted targets.
	APIKey string `yaml:"api_key" json:"api_key,omitempty"`

	// BaseURL is required for self-hosted targets. For hosted targets it
	// overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage represents token usage information, when the backend reports it.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Completion is the normalized result of a provider call.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// ChatRequest is the input of Orchestrator.Chat.
type ChatRequest struct {
	AccountID string
	Target    ModelTarget
	Messages  []Message

	// Instructions overrides the orchestrator's base instructions.
	Instructions string
}

// ChatResponse is the output of Orchestrator.Chat.
type ChatResponse struct {
	Content  string
	Model    string
	Usage    Usage
	Charged  decimal.Decimal
	Duration time.Duration
}

// RAGRequest is the input of Orchestrator.RAGQuery.
type RAGRequest struct {
	AccountID  string
	Target     ModelTarget
	DocumentID string
	Question   string

	// Instructions overrides the orchestrator's base instructions.
	Instructions string
}

// RAGResponse is the output of Orchestrator.RAGQuery.
type RAGResponse struct {
	Answer string

	// SourceChunks are the chunk texts placed in the prompt, in rank order.
	SourceChunks []string

	Model    string
	Usage    Usage
	Charged  decimal.Decimal
	Duration time.Duration
}

// Chunk is one retrievable fragment of a document.
type Chunk struct {
	ID         string
	DocumentID string
	Seq        int
	Text       string
	Vector     []float32
}

// ScoredChunk is a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}
