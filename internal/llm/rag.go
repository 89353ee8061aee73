package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	// 提示词模板
	Template *PromptTemplate
	// 最大Token数
	MaxTokens int
	// 温度参数
	Temperature float32
	// 单次生成的超时时间
	Timeout time.Duration
	// 是否带上引用来源
	IncludeSources bool
}

// DefaultRAGConfig 默认RAG配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Template:       MustPromptTemplate(DefaultPromptTemplate),
		MaxTokens:      2048,
		Temperature:    0,
		Timeout:        30 * time.Second,
		IncludeSources: true,
	}
}

// SourceReference 回答引用的上下文来源
type SourceReference struct {
	ID      string `json:"id"`      // 来源标识
	Content string `json:"content"` // 来源文本
}

// RAGResponse 检索增强生成结果
type RAGResponse struct {
	Answer  string            `json:"answer"`            // 生成的回答
	Sources []SourceReference `json:"sources,omitempty"` // 引用来源
}

// RAGService 实现检索增强生成服务
// 将问题和检索到的上下文组装为提示词并调用大模型
type RAGService struct {
	client Client       // 大模型客户端
	config *RAGConfig   // 配置
	mu     sync.RWMutex // 配置互斥锁
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithTemplate 设置提示词模板
func WithTemplate(template *PromptTemplate) RAGOption {
	return func(c *RAGConfig) {
		if template != nil {
			c.Template = template
		}
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout 设置请求超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// WithSources 设置是否包含引用来源
func WithSources(include bool) RAGOption {
	return func(c *RAGConfig) {
		c.IncludeSources = include
	}
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		client: client,
		config: cfg,
	}
}

// Answer 根据上下文和问题生成回答
// 模板会指示模型在上下文无法回答时输出"I don't know"，这是正常回答而非错误
func (r *RAGService) Answer(ctx context.Context, question string, contexts []string) (*RAGResponse, error) {
	if question == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	r.mu.RLock()
	cfg := r.config
	r.mu.RUnlock()

	prompt, err := cfg.Template.Render(question, contexts)
	if err != nil {
		return nil, err
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	response, err := r.client.Generate(
		ctxWithTimeout,
		prompt,
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	ragResponse := &RAGResponse{
		Answer: response.Text,
	}

	if cfg.IncludeSources && len(contexts) > 0 {
		sources := make([]SourceReference, len(contexts))
		for i, text := range contexts {
			sources[i] = SourceReference{
				ID:      fmt.Sprintf("src-%d", i+1),
				Content: text,
			}
		}
		ragResponse.Sources = sources
	}

	return ragResponse, nil
}

// SetTemplate 替换提示词模板
func (r *RAGService) SetTemplate(template *PromptTemplate) *RAGService {
	if template == nil {
		return r
	}
	r.mu.Lock()
	r.config.Template = template
	r.mu.Unlock()
	return r
}
