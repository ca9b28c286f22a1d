package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"petstore-assistant/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused OpenAI-compatible client for chat completions. It
// also talks to Azure OpenAI deployments when configured with
// WithAzureEndpoint.
type Client struct {
	baseURL       string
	azureEndpoint string
	httpClient    *http.Client
	getter        Getter
	paramPrefix   string

	apiMu sync.Mutex
	api   *goopenai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAzureEndpoint routes requests to an Azure OpenAI resource such as
// https://my-resource.openai.azure.com. The model passed to Chat is used
// as the deployment name.
func WithAzureEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.azureEndpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	}
}

// NewClient creates a new Client backed by the given paramstore Getter for
// API key retrieval. The key is fetched from SSM on the first call to Chat
// and reused for the lifetime of the process.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

// resolvedHTTPClient returns the configured HTTP client, or a default with a
// 10s timeout if none was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// apiClient builds the SDK client on first use, once the key is known. A
// failed key fetch is not cached; the next call tries again.
func (c *Client) apiClient(ctx context.Context) (*goopenai.Client, error) {
	c.apiMu.Lock()
	defer c.apiMu.Unlock()
	if c.api != nil {
		return c.api, nil
	}
	apiKey, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
	if err != nil {
		return nil, err
	}
	c.api = goopenai.NewClientWithConfig(c.config(apiKey))
	return c.api, nil
}

func (c *Client) config(apiKey string) goopenai.ClientConfig {
	var cfg goopenai.ClientConfig
	if c.azureEndpoint != "" {
		cfg = goopenai.DefaultAzureConfig(apiKey, c.azureEndpoint)
	} else {
		cfg = goopenai.DefaultConfig(apiKey)
		cfg.BaseURL = apiBaseURL(c.baseURL)
	}
	cfg.HTTPClient = c.resolvedHTTPClient()
	return cfg
}

// apiBaseURL normalises a base URL so that it ends in /v1.
func apiBaseURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Chat sends messages to the chat completions endpoint with the dp_response
// JSON schema and returns the raw content of the first choice.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	if model == "" {
		return "", errors.New("openai: model must not be empty")
	}

	api, err := c.apiClient(ctx)
	if err != nil {
		return "", err
	}

	req := goopenai.ChatCompletionRequest{
		Model:          model,
		Messages:       toSDKMessages(messages),
		ResponseFormat: dpResponseFormat(),
	}
	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func toSDKMessages(messages []domain.ChatMessage) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func dpResponseFormat() *goopenai.ChatCompletionResponseFormat {
	return &goopenai.ChatCompletionResponseFormat{
		Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
			Name:   "dp_response",
			Strict: true,
			Schema: json.RawMessage(`{
				"type":"object",
				"additionalProperties":false,
				"properties":{
					"classification":{"type":"string"},
					"response":{"type":"string"},
					"product_ids":{"type":"array","items":{"type":"string"}}
				},
				"required":["classification","response","product_ids"]
			}`),
		},
	}
}

// wrapError turns SDK errors carrying an HTTP status into HTTPStatusError
// so callers can tell rate limiting from other upstream failures.
func (c *Client) wrapError(err error) error {
	url := c.endpointLabel()

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai: request failed: %w", &HTTPStatusError{
			StatusCode: apiErr.HTTPStatusCode,
			URL:        url,
			Body:       apiErr.Message,
		})
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return fmt.Errorf("openai: request failed: %w", &HTTPStatusError{
			StatusCode: reqErr.HTTPStatusCode,
			URL:        url,
			Body:       body,
		})
	}
	return fmt.Errorf("openai: request failed: %w", err)
}

func (c *Client) endpointLabel() string {
	if c.azureEndpoint != "" {
		return c.azureEndpoint
	}
	return apiBaseURL(c.baseURL) + "/chat/completions"
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
