package llm

// Message is a single turn in a prompt sent to the model.
// Role is one of "system", "user", "assistant".
type Message struct {
	Role    string
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
type CompletionRequest struct {
	// Messages is the ordered conversation; for extraction and translation
	// prompts this is typically a single user message.
	Messages []Message

	// SystemPrompt is injected ahead of Messages with provider-native
	// handling where available.
	SystemPrompt string

	// Temperature controls output randomness, [0, 2]. Zero uses the
	// provider default.
	Temperature float64

	// MaxTokens caps generated tokens. Zero uses the provider default.
	MaxTokens int
}

// Chunk is a fragment of a streaming completion.
type Chunk struct {
	// Text is the incremental content of this chunk.
	Text string

	// FinishReason is set on the final chunk ("stop", "length", or
	// "error" when Text carries an error message instead of content).
	FinishReason string
}

// CompletionResponse is the full result of a non-streaming completion.
type CompletionResponse struct {
	Content string
	Usage   Usage
}
