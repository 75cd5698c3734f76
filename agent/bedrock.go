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

	"github.com/AltairaLabs/CareBridge/credentials"
)

const (
	bedrockInvokePath       = "/invoke"
	bedrockInvokeStreamPath = "/invoke-with-response-stream"

	// bedrockAnthropicVersion selects the messages API revision. Bedrock
	// takes it in the request body rather than as a header.
	bedrockAnthropicVersion = "bedrock-2023-05-31"

	// ModelClaudeHaiku is the default Bedrock model; the fastest Claude
	// tier, which matters when a caller is waiting on the line.
	ModelClaudeHaiku = "anthropic.claude-3-5-haiku-20241022-v1:0"

	defaultBedrockRegion  = "us-west-2"
	defaultBedrockTimeout = 30 * time.Second

	eventStreamContentType = "application/vnd.amazon.eventstream"
)

// Claude event types seen on the response stream.
const (
	claudeEventContentDelta = "content_block_delta"
	claudeEventMessageStop  = "message_stop"
	claudeTextDelta         = "text_delta"
)

// BedrockService generates replies with Claude models on AWS Bedrock.
// Requests are signed by the supplied credential; Reply streams the response
// back as AWS binary event-stream frames so the first sentence of a reply is
// not delayed by the last.
type BedrockService struct {
	credential  credentials.Credential
	baseURL     string
	client      *http.Client
	model       string
	temperature float64
	maxTokens   int
}

// BedrockOption configures the Bedrock agent service.
type BedrockOption func(*BedrockService)

// WithBedrockBaseURL overrides the regional endpoint (for testing).
func WithBedrockBaseURL(url string) BedrockOption {
	return func(s *BedrockService) {
		s.baseURL = url
	}
}

// WithBedrockClient sets a custom HTTP client.
func WithBedrockClient(client *http.Client) BedrockOption {
	return func(s *BedrockService) {
		s.client = client
	}
}

// WithBedrockModel sets the model. Friendly Claude model names are mapped to
// Bedrock model IDs when known.
func WithBedrockModel(model string) BedrockOption {
	return func(s *BedrockService) {
		if id, ok := credentials.BedrockModelMapping[model]; ok {
			model = id
		}
		s.model = model
	}
}

// WithBedrockTemperature sets the sampling temperature.
func WithBedrockTemperature(temperature float64) BedrockOption {
	return func(s *BedrockService) {
		s.temperature = temperature
	}
}

// WithBedrockMaxTokens bounds the length of generated replies.
func WithBedrockMaxTokens(maxTokens int) BedrockOption {
	return func(s *BedrockService) {
		s.maxTokens = maxTokens
	}
}

// NewBedrock creates a Bedrock agent service. The credential signs each
// request; use credentials.NewAWSCredential for the default AWS chain. The
// default client traces requests through otelhttp.
func NewBedrock(credential credentials.Credential, region string, opts ...BedrockOption) *BedrockService {
	if region == "" {
		region = defaultBedrockRegion
	}

	s := &BedrockService{
		credential: credential,
		baseURL:    credentials.BedrockEndpoint(region),
		client: &http.Client{
			Timeout:   defaultBedrockTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		model:       ModelClaudeHaiku,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *BedrockService) Name() string {
	return "bedrock-claude"
}

// Claude messages API structures. The model is addressed in the URL, never
// in the body.
type claudeMessage struct {
	Role    string               `json:"role"`
	Content []claudeContentBlock `json:"content"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeResponse struct {
	Content    []claudeContentBlock `json:"content"`
	StopReason string               `json:"stop_reason"`
	Error      *claudeError         `json:"error,omitempty"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Reply generates the agent's next utterance, accumulating text deltas from
// the response stream until message_stop.
func (s *BedrockService) Reply(ctx context.Context, utterance string, sc SessionContext) (string, error) {
	if strings.TrimSpace(utterance) == "" {
		return "", ErrEmptyUtterance
	}

	messages := make([]claudeMessage, 0, len(sc.History)+1)
	for _, m := range sc.History {
		// System prompts ride in the dedicated body field.
		if m.Role == RoleSystem {
			continue
		}
		messages = append(messages, textMessage(m.Role, m.Content))
	}
	messages = append(messages, textMessage(RoleUser, utterance))

	body, err := s.marshalRequest(systemPrompt(sc), messages)
	if err != nil {
		return "", err
	}

	resp, err := s.invoke(ctx, bedrockInvokeStreamPath, body, eventStreamContentType)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return s.collectStream(resp.Body)
}

// Summarize asks Claude for a JSON assessment of the finished call. Summaries
// run off-call, so the plain invoke endpoint is enough.
func (s *BedrockService) Summarize(ctx context.Context, turns []Message) (string, error) {
	if len(turns) == 0 {
		return "", ErrEmptyConversation
	}

	messages := []claudeMessage{textMessage(RoleUser, formatTranscript(turns))}

	body, err := s.marshalRequest(DefaultSummaryPrompt, messages)
	if err != nil {
		return "", err
	}

	resp, err := s.invoke(ctx, bedrockInvokePath, body, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	// Bedrock can return HTTP 200 with an error in the body.
	if err := checkBedrockBodyError(respBody); err != nil {
		return "", err
	}

	var result claudeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != nil {
		return "", NewGenerationError("bedrock", result.Error.Type, result.Error.Message, nil, false)
	}
	if len(result.Content) == 0 {
		return "", NewGenerationError("bedrock", "", "response contained no content", nil, false)
	}

	var b strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// marshalRequest builds the Claude messages body with the Bedrock version
// key injected.
func (s *BedrockService) marshalRequest(system string, messages []claudeMessage) ([]byte, error) {
	m := map[string]any{
		"anthropic_version": bedrockAnthropicVersion,
		"max_tokens":        s.maxTokens,
		"messages":          messages,
	}
	if system != "" {
		m["system"] = []claudeContentBlock{{Type: "text", Text: system}}
	}
	if s.temperature != 0 {
		m["temperature"] = s.temperature
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

// invoke signs and sends one request to a model endpoint. The caller owns
// the response body on success.
func (s *BedrockService) invoke(ctx context.Context, path string, body []byte, accept string) (*http.Response, error) {
	url := s.baseURL + "/model/" + s.model + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	// Sign last so every header above is covered by the signature.
	if err := s.credential.Apply(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewGenerationError("bedrock", "", "request failed", err, true)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, s.handleError(resp.StatusCode, respBody)
	}

	return resp, nil
}

// collectStream accumulates text deltas from the binary event stream until
// the message_stop event.
func (s *BedrockService) collectStream(body io.Reader) (string, error) {
	scanner := NewBedrockEventScanner(body)
	var reply strings.Builder

	for scanner.Scan() {
		var event struct {
			Type  string `json:"type"`
			Delta *struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta,omitempty"`
		}
		if err := json.Unmarshal([]byte(scanner.Data()), &event); err != nil {
			continue
		}

		switch event.Type {
		case claudeEventContentDelta:
			if event.Delta != nil && event.Delta.Type == claudeTextDelta {
				reply.WriteString(event.Delta.Text)
			}
		case claudeEventMessageStop:
			return reply.String(), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", NewGenerationError("bedrock", "", "stream failed", err, true)
	}
	return reply.String(), nil
}

// handleError processes a Bedrock HTTP error response. AWS returns JSON like
// {"message":"..."} with the error type in the X-Amzn-ErrorType header, which
// the status code captures well enough for retry decisions.
func (s *BedrockService) handleError(statusCode int, body []byte) error {
	retryable := statusCode == http.StatusTooManyRequests ||
		statusCode >= openAIServerErrorThreshold

	var cause error
	if statusCode == http.StatusTooManyRequests {
		cause = ErrRateLimited
	}

	var errResp struct {
		Message string `json:"message"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		message = errResp.Message
	}

	return NewGenerationError(
		"bedrock",
		fmt.Sprintf("%d", statusCode),
		message,
		cause,
		retryable,
	)
}

// checkBedrockBodyError detects Bedrock errors returned with HTTP 200, such
// as UnknownOperationException payloads.
func checkBedrockBodyError(body []byte) error {
	if !strings.Contains(string(body), "Exception") {
		return nil
	}
	var errResp struct {
		Message string `json:"Message"`
		Type    string `json:"__type"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return nil
	}
	if errResp.Type != "" {
		return NewGenerationError("bedrock", errResp.Type, errResp.Message, nil, false)
	}
	return nil
}

// textMessage wraps text in a single content block message.
func textMessage(role, text string) claudeMessage {
	return claudeMessage{
		Role:    role,
		Content: []claudeContentBlock{{Type: "text", Text: text}},
	}
}
