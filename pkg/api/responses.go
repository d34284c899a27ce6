package api

// ChatCompletion is the subset of the provider response the gateway reads.
// Full bodies always pass through verbatim; this type exists for the
// completion-ID peek and for test fixtures.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices,omitempty"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index        int           `json:"index"`
	Message      *ChoiceOutput `json:"message,omitempty"`
	Delta        *ChoiceOutput `json:"delta,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

type ChoiceOutput struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelList mirrors the OpenAI-style /v1/models response.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// Model is a single entry in the models listing, optionally enriched with
// pricing and context-length data from the pricing backend.
type Model struct {
	ID            string        `json:"id"`
	Object        string        `json:"object"`
	Created       int64         `json:"created"`
	OwnedBy       string        `json:"owned_by"`
	Pricing       *ModelPricing `json:"pricing,omitempty"`
	ContextLength int           `json:"context_length,omitempty"`
}

// ModelPricing is cost per million tokens in USD.
type ModelPricing struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}
