package embedding

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
	// 默认DashScope嵌入API端点
	defaultDashScopeEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"

	// 默认嵌入模型
	defaultTongyiModel = "text-embedding-v2"
)

// dashScopeRequest DashScope嵌入请求结构体
type dashScopeRequest struct {
	Model      string               `json:"model"`
	Input      dashScopeInput       `json:"input"`
	Parameters *dashScopeParameters `json:"parameters,omitempty"`
}

type dashScopeInput struct {
	Texts []string `json:"texts"`
}

type dashScopeParameters struct {
	Dimension  int    `json:"dimension,omitempty"`
	OutputType string `json:"output_type,omitempty"`
}

// dashScopeResponse DashScope嵌入响应结构体
type dashScopeResponse struct {
	Output struct {
		Embeddings []struct {
			TextIndex int       `json:"text_index"`
			Embedding []float32 `json:"embedding"`
		} `json:"embeddings"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// TongyiClient 通义千问嵌入API客户端
type TongyiClient struct {
	config     Config       // 客户端配置
	endpoint   string       // API端点
	httpClient *http.Client // HTTP客户端
}

// NewTongyiClient 创建新的通义千问嵌入客户端
func NewTongyiClient(config Config) (Client, error) {
	if config.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "DashScope API key is required")
	}

	if config.Model == "" {
		config.Model = defaultTongyiModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}

	endpoint := config.BaseURL
	if endpoint == "" {
		endpoint = defaultDashScopeEndpoint
	}

	return &TongyiClient{
		config:   config,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.config.Model
}

// Embed 生成单条文本的向量表示
func (c *TongyiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, NewEmbeddingError(ErrCodeBadResponse, "no embedding vectors returned")
	}

	return vectors[0], nil
}

// EmbedBatch 批量生成多条文本的向量表示
func (c *TongyiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > c.config.BatchSize {
		return nil, ErrBatchTooLarge
	}
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
	}

	reqBody := dashScopeRequest{
		Model: c.config.Model,
		Input: dashScopeInput{Texts: texts},
	}
	if c.config.Dimensions > 0 {
		reqBody.Parameters = &dashScopeParameters{
			Dimension:  c.config.Dimensions,
			OutputType: "dense",
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for retries := 0; ; retries++ {
		vectors, retryable, err := c.doRequest(ctx, payload, len(texts))
		if err == nil {
			return vectors, nil
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
				return nil, NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			}
		}

		return nil, err
	}
}

// doRequest 执行一次嵌入请求
// 第二个返回值表示该错误是否可以通过重试恢复（限流）
func (c *TongyiClient) doRequest(ctx context.Context, payload []byte, want int) ([][]float32, bool, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, NewEmbeddingError(ErrCodeNetworkError,
			fmt.Sprintf("embedding request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, NewEmbeddingError(ErrCodeNetworkError,
			fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("embedding API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var dsResp dashScopeResponse
	if err := json.Unmarshal(body, &dsResp); err != nil {
		return nil, false, NewEmbeddingError(ErrCodeBadResponse,
			fmt.Sprintf("failed to parse response: %v", err))
	}
	if dsResp.Code != "" {
		return nil, false, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("embedding API error %s: %s", dsResp.Code, dsResp.Message))
	}
	if len(dsResp.Output.Embeddings) != want {
		return nil, false, NewEmbeddingError(ErrCodeBadResponse,
			fmt.Sprintf("expected %d embeddings, got %d", want, len(dsResp.Output.Embeddings)))
	}

	// 按text_index还原输入顺序
	vectors := make([][]float32, want)
	for _, item := range dsResp.Output.Embeddings {
		if item.TextIndex < 0 || item.TextIndex >= want {
			return nil, false, NewEmbeddingError(ErrCodeBadResponse,
				fmt.Sprintf("embedding text_index %d out of range", item.TextIndex))
		}
		vectors[item.TextIndex] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, false, NewEmbeddingError(ErrCodeBadResponse,
				fmt.Sprintf("missing embedding for input %d", i))
		}
	}

	return vectors, false, nil
}

// 在包初始化时注册通义千问客户端
func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
