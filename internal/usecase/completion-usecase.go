package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/model"
	"github.com/onellm/onechat/pkg/sse"
	"github.com/onellm/onechat/pkg/tokenizer"
	"github.com/sashabaranov/go-openai"
)

var ErrMissingAPIKey = errors.New("api key required")

// finalEvent marks stream records that duplicate content already delivered
// incrementally; they are discarded.
const finalEvent = "complete"

// Credentials carries the user's per-provider keys and base URL overrides.
// It is passed in at call time, never held as ambient state, so keys stay
// out of the shared conversation store.
type Credentials struct {
	APIKeys  map[string]string
	BaseURLs map[string]string
}

// SendOptions tunes a single completion request.
type SendOptions struct {
	Temperature float32
	// MaxTokens overrides the provider default output limit when > 0.
	MaxTokens int
	Stream    bool
	// OnChunk receives content deltas in arrival order during streaming.
	OnChunk func(delta string)
}

// Result is the terminal value of a completion. For streaming sends Content
// is empty: every fragment has already been delivered through OnChunk.
type Result struct {
	Content string
	Raw     json.RawMessage
}

// CompletionUsecase builds and sends chat-completion requests, resolving
// key and base URL per model. With a gateway configured it speaks the
// gateway contract; without one it talks to the provider's OpenAI-compatible
// endpoint directly.
type CompletionUsecase struct {
	cfg          config.Gateway
	registry     *RegistryUsecase
	client       *http.Client
	streamClient *http.Client
}

func NewCompletionUsecase(cfg config.Gateway, registry *RegistryUsecase) *CompletionUsecase {
	return &CompletionUsecase{
		cfg:      cfg,
		registry: registry,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		// Streams have no overall deadline; lifetime is bound by ctx.
		streamClient: &http.Client{},
	}
}

// resolveCredentials picks the API key and base URL for modelID: explicit
// user value first, provider default second. A provider that requires a key
// with nothing resolvable fails here, before any network I/O.
func (c *CompletionUsecase) resolveCredentials(
	modelID string, creds Credentials,
) (apiKey, baseURL string, err error) {
	keyName := c.registry.KeyName(modelID)
	if keyName != "" {
		apiKey = creds.APIKeys[keyName]
		baseURL = creds.BaseURLs[keyName]
	}
	if apiKey == "" {
		apiKey = c.registry.DefaultAPIKey(modelID)
	}
	if baseURL == "" {
		baseURL = c.registry.DefaultBaseURL(modelID)
	}
	if c.registry.RequiresKey(modelID) && apiKey == "" {
		if keyName == "" {
			keyName = "this provider"
		}
		return "", "", fmt.Errorf("%w for %s, add it in settings", ErrMissingAPIKey, keyName)
	}
	return apiKey, baseURL, nil
}

// completionRequest is the gateway wire format.
type completionRequest struct {
	APIKey      string              `json:"apiKey,omitempty"`
	Model       string              `json:"model"`
	Messages    []model.ChatMessage `json:"messages"`
	Temperature float32             `json:"temperature"`
	MaxTokens   int                 `json:"maxTokens"`
	BaseURL     string              `json:"baseUrl,omitempty"`
}

// Send issues one chat completion. Messages are truncated to the model's
// context window with the output budget reserved. In streaming mode deltas
// arrive through opts.OnChunk and the returned Result carries empty content.
func (c *CompletionUsecase) Send(
	ctx context.Context, messages []model.ChatMessage, modelID string,
	creds Credentials, opts SendOptions,
) (Result, error) {
	apiKey, baseURL, err := c.resolveCredentials(modelID, creds)
	if err != nil {
		return Result{}, err
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.registry.MaxOutputTokens(modelID)
	}
	messages = c.truncate(messages, modelID, maxTokens)

	if c.cfg.BaseURL == "" {
		return c.sendDirect(ctx, messages, modelID, apiKey, baseURL, maxTokens, opts)
	}

	req := completionRequest{
		APIKey:      apiKey,
		Model:       modelID,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   maxTokens,
		BaseURL:     baseURL,
	}
	if opts.Stream {
		return c.sendGatewayStream(ctx, req, opts.OnChunk)
	}
	return c.sendGateway(ctx, req)
}

// truncate trims history to the model's context window, preferring the
// model's exact tokenizer when one is known.
func (c *CompletionUsecase) truncate(
	messages []model.ChatMessage, modelID string, reserved int,
) []model.ChatMessage {
	window := c.registry.ContextWindow(modelID)
	estimate, err := tokenizer.ExactEstimator(modelID)
	if err != nil {
		return tokenizer.Truncate(messages, window, reserved)
	}
	return tokenizer.TruncateWith(messages, window, reserved, estimate)
}

func (c *CompletionUsecase) sendGateway(ctx context.Context, req completionRequest) (Result, error) {
	resp, err := c.post(ctx, c.client, c.cfg.BaseURL+"/chat/completions", req, false)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, readRemoteError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read completion response: %w", err)
	}
	var body struct {
		Content string `json:"content"`
	}
	if err = json.Unmarshal(raw, &body); err != nil {
		return Result{}, fmt.Errorf("failed to decode completion response: %w", err)
	}
	return Result{Content: body.Content, Raw: raw}, nil
}

func (c *CompletionUsecase) sendGatewayStream(
	ctx context.Context, req completionRequest, onChunk func(string),
) (Result, error) {
	resp, err := c.post(ctx, c.streamClient, c.cfg.BaseURL+"/chat/completions/stream", req, true)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, readRemoteError(resp)
	}

	scanner := sse.NewScanner(resp.Body)
	for {
		event, ok := scanner.Next()
		if !ok {
			break
		}
		// Final events duplicate content already delivered chunk by chunk.
		if event.Type == finalEvent || event.IsDone() {
			continue
		}
		var payload struct {
			Content string `json:"content"`
		}
		if err = json.Unmarshal([]byte(event.Data), &payload); err != nil {
			log.Printf("failed to parse stream record: %v", err)
			continue
		}
		if payload.Content != "" && onChunk != nil {
			onChunk(payload.Content)
		}
	}
	if err = scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("stream interrupted: %w", err)
	}
	// All content was delivered through onChunk.
	return Result{}, nil
}

func (c *CompletionUsecase) post(
	ctx context.Context, client *http.Client, endpoint string, req completionRequest, stream bool,
) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	return resp, nil
}

// readRemoteError extracts {error|message} from a non-2xx body, falling
// back to a generic HTTP status message.
func readRemoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return errors.New(body.Error)
		}
		if body.Message != "" {
			return errors.New(body.Message)
		}
	}
	return fmt.Errorf("HTTP %d", resp.StatusCode)
}

// sendDirect talks to an OpenAI-compatible endpoint without a gateway in
// between.
func (c *CompletionUsecase) sendDirect(
	ctx context.Context, messages []model.ChatMessage, modelID, apiKey, baseURL string,
	maxTokens int, opts SendOptions,
) (Result, error) {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	history := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(
			history, openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			},
		)
	}

	req := openai.ChatCompletionRequest{
		Model:       directModelName(modelID),
		Temperature: opts.Temperature,
		TopP:        1,
		N:           1,
		MaxTokens:   maxTokens,
		Messages:    history,
		Stream:      opts.Stream,
	}

	if !opts.Stream {
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return Result{}, fmt.Errorf("completion request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return Result{}, errors.New("completion returned no choices")
		}
		return Result{Content: resp.Choices[0].Message.Content}, nil
	}

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("completion request failed: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("stream interrupted: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta != "" && opts.OnChunk != nil {
			opts.OnChunk(delta)
		}
	}
	return Result{}, nil
}

// directModelName strips the routing prefix the gateway uses; the provider
// itself knows its models by bare name.
func directModelName(modelID string) string {
	if _, rest, found := strings.Cut(modelID, "/"); found {
		return rest
	}
	return modelID
}
