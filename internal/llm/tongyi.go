package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// 通义千问文本生成API端点
	defaultTongyiEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

	// 默认生成模型
	defaultTongyiModel = "qwen-turbo"
)

// TongyiClient 通义千问大模型客户端实现
type TongyiClient struct {
	config     *Config      // 客户端配置
	baseURL    string       // API端点
	httpClient *http.Client // HTTP客户端
}

// NewTongyiClient 创建新的通义千问大模型客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	if cfg.Model == "" || cfg.Model == DefaultConfig().Model {
		cfg.Model = defaultTongyiModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTongyiEndpoint
	}

	return &TongyiClient{
		config:  cfg,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.config.Model
}

// Generate 根据提示词生成回答
func (c *TongyiClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	messages := []Message{
		{Role: RoleUser, Content: prompt},
	}

	return c.Chat(ctx, messages, options...)
}

// Chat 进行多轮对话
func (c *TongyiClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	maxTokens := c.config.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	temperature := c.config.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	topP := c.config.TopP
	if opts.TopP != nil {
		topP = *opts.TopP
	}

	reqBody := tongyiRequest{
		Model: c.config.Model,
		Input: &tongyiRequestInput{Messages: messages},
		Parameters: &tongyiParameters{
			Temperature:  &temperature,
			TopP:         &topP,
			MaxTokens:    &maxTokens,
			ResultFormat: "message",
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewLLMError(ErrCodeInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for retries := 0; ; retries++ {
		resp, retryable, err := c.doRequest(ctx, payload)
		if err == nil {
			return resp, nil
		}

		if retryable {
			if retries >= maxRetries {
				return nil, ErrRateLimited
			}
			waitTime := time.Duration(1<<(retries+1)) * time.Second
			select {
			case <-time.After(waitTime):
				continue
			case <-ctx.Done():
				return nil, NewLLMError(ErrCodeTimeout, ctx.Err().Error())
			}
		}

		return nil, err
	}
}

// doRequest 执行一次生成请求
// 第二个返回值表示该错误是否可以通过重试恢复（限流）
func (c *TongyiClient) doRequest(ctx context.Context, payload []byte) (*Response, bool, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, false, NewLLMError(ErrCodeInvalidRequest,
			fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, NewLLMError(ErrCodeNetworkError,
			fmt.Sprintf("generation request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, NewLLMError(ErrCodeNetworkError,
			fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, ErrRateLimited
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, false, NewLLMError(ErrCodeInvalidAPIKey,
			fmt.Sprintf("generation API auth failed with status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, NewLLMError(ErrCodeServerError,
			fmt.Sprintf("generation API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var tyResp tongyiResponse
	if err := json.Unmarshal(body, &tyResp); err != nil {
		return nil, false, NewLLMError(ErrCodeBadResponse,
			fmt.Sprintf("failed to parse response: %v", err))
	}
	if tyResp.Code != "" {
		return nil, false, NewLLMError(ErrCodeServerError,
			fmt.Sprintf("generation API error %s: %s", tyResp.Code, tyResp.Message))
	}

	result := &Response{
		ModelName: c.config.Model,
		Usage: Usage{
			InputTokens:  tyResp.Usage.InputTokens,
			OutputTokens: tyResp.Usage.OutputTokens,
			TotalTokens:  tyResp.Usage.TotalTokens,
		},
	}

	switch {
	case len(tyResp.Output.Choices) > 0:
		result.Text = tyResp.Output.Choices[0].Message.Content
		result.FinishReason = tyResp.Output.Choices[0].FinishReason
	case tyResp.Output.Text != nil:
		result.Text = *tyResp.Output.Text
		if tyResp.Output.FinishReason != nil {
			result.FinishReason = *tyResp.Output.FinishReason
		}
	default:
		return nil, false, NewLLMError(ErrCodeBadResponse, "no generation output returned")
	}

	return result, false, nil
}

// 在包初始化时注册通义千问客户端
func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
