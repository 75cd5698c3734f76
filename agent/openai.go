package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	openAIBaseURL      = "https://api.openai.com/v1"
	openAIChatEndpoint = "/chat/completions"

	// ModelGPT4oMini is the default chat model; fast enough for a live call.
	ModelGPT4oMini = "gpt-4o-mini"

	// Default timeout for reply requests. A caller is waiting in silence
	// while this runs, so it is shorter than a batch-style request.
	defaultOpenAITimeout = 30 * time.Second

	// HTTP status code threshold for server errors.
	openAIServerErrorThreshold = 500

	finishReasonContentFilter = "content_filter"
)

// OpenAIService generates replies using OpenAI's chat completions API.
type OpenAIService struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	model       string
	temperature float64
	maxTokens   int
}

// OpenAIOption configures the OpenAI agent service.
type OpenAIOption func(*OpenAIService)

// WithOpenAIBaseURL sets a custom base URL (for testing, proxies, or
// OpenAI-compatible gateways).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(s *OpenAIService) {
		s.baseURL = url
	}
}

// WithOpenAIClient sets a custom HTTP client.
func WithOpenAIClient(client *http.Client) OpenAIOption {
	return func(s *OpenAIService) {
		s.client = client
	}
}

// WithOpenAIModel sets the chat model to use.
func WithOpenAIModel(model string) OpenAIOption {
	return func(s *OpenAIService) {
		s.model = model
	}
}

// WithOpenAITemperature sets the sampling temperature.
func WithOpenAITemperature(temperature float64) OpenAIOption {
	return func(s *OpenAIService) {
		s.temperature = temperature
	}
}

// WithOpenAIMaxTokens bounds the length of generated replies.
func WithOpenAIMaxTokens(maxTokens int) OpenAIOption {
	return func(s *OpenAIService) {
		s.maxTokens = maxTokens
	}
}

// NewOpenAI creates an OpenAI agent service. The default client traces
// requests through otelhttp.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIService {
	s := &OpenAIService{
		apiKey:  apiKey,
		baseURL: openAIBaseURL,
		client: &http.Client{
			Timeout:   defaultOpenAITimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		model:       ModelGPT4oMini,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *OpenAIService) Name() string {
	return "openai-chat"
}

// OpenAI API request/response structures. Message already carries the
// chat-completions JSON shape, so history is sent verbatim.
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
}

type openAIChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Reply generates the agent's next utterance via chat completions.
func (s *OpenAIService) Reply(ctx context.Context, utterance string, sc SessionContext) (string, error) {
	if strings.TrimSpace(utterance) == "" {
		return "", ErrEmptyUtterance
	}

	messages := make([]Message, 0, len(sc.History)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt(sc)})
	messages = append(messages, sc.History...)
	messages = append(messages, Message{Role: RoleUser, Content: utterance})

	return s.complete(ctx, messages)
}

// Summarize asks the model for a JSON assessment of the finished call.
func (s *OpenAIService) Summarize(ctx context.Context, turns []Message) (string, error) {
	if len(turns) == 0 {
		return "", ErrEmptyConversation
	}

	messages := []Message{
		{Role: RoleSystem, Content: DefaultSummaryPrompt},
		{Role: RoleUser, Content: formatTranscript(turns)},
	}

	return s.complete(ctx, messages)
}

// complete sends one chat-completions request and returns the reply text.
func (s *OpenAIService) complete(ctx context.Context, messages []Message) (string, error) {
	reqBody, err := json.Marshal(openAIRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.baseURL+openAIChatEndpoint,
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", NewGenerationError("openai", "", "request failed", err, true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", s.handleError(resp.StatusCode, body)
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", NewGenerationError("openai", "", "response contained no choices", nil, false)
	}

	choice := result.Choices[0]
	if choice.FinishReason == finishReasonContentFilter {
		return "", NewGenerationError(
			"openai", choice.FinishReason, "reply was filtered", ErrContentFiltered, false,
		)
	}

	return choice.Message.Content, nil
}

// handleError processes an error response from OpenAI.
func (s *OpenAIService) handleError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return NewGenerationError(
			"openai",
			fmt.Sprintf("%d", statusCode),
			string(body),
			nil,
			statusCode >= openAIServerErrorThreshold,
		)
	}

	retryable := statusCode == http.StatusTooManyRequests ||
		statusCode >= openAIServerErrorThreshold

	var cause error
	switch statusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized:
		cause = fmt.Errorf("invalid API key")
	}

	return NewGenerationError(
		"openai",
		errResp.Error.Code,
		errResp.Error.Message,
		cause,
		retryable,
	)
}
