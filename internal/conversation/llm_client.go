package conversation

import "context"

// LLMClient generates a completion for an assembled prompt.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest carries the prompt and sampling knobs.
type CompletionRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

// CompletionResponse is the generated text plus accounting.
type CompletionResponse struct {
	Text       string
	TokensUsed int
}
