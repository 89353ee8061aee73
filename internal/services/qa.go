package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/luochenxi/text-rag-pipeline/internal/cache"
	"github.com/luochenxi/text-rag-pipeline/internal/llm"
)

// NoAnswerMessage 没有检索到相关内容时返回的回答
const NoAnswerMessage = "抱歉，我没有找到相关信息可以回答您的问题。"

// QAService 问答服务
// 负责协调向量检索和大模型生成答案
type QAService struct {
	retriever *RetrieverService // 检索服务
	rag       *llm.RAGService   // 检索增强生成服务
	cache     cache.Cache       // 缓存
	cacheTTL  time.Duration     // 缓存有效期
	topK      int               // 检索结果数量
	minScore  float32           // 最低相似度分数
	logger    *logrus.Logger    // 日志记录器
}

// QAOption 问答服务配置选项
type QAOption func(*QAService)

// WithCacheTTL 设置缓存时间
func WithCacheTTL(ttl time.Duration) QAOption {
	return func(s *QAService) {
		s.cacheTTL = ttl
	}
}

// WithSearchLimit 设置检索结果数量
func WithSearchLimit(limit int) QAOption {
	return func(s *QAService) {
		if limit > 0 {
			s.topK = limit
		}
	}
}

// WithMinScore 设置最低相似度分数
func WithMinScore(score float32) QAOption {
	return func(s *QAService) {
		s.minScore = score
	}
}

// WithQALogger 设置日志记录器
func WithQALogger(logger *logrus.Logger) QAOption {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewQAService 创建问答服务实例
func NewQAService(
	retriever *RetrieverService,
	rag *llm.RAGService,
	qaCache cache.Cache,
	opts ...QAOption,
) *QAService {
	service := &QAService{
		retriever: retriever,
		rag:       rag,
		cache:     qaCache,
		cacheTTL:  24 * time.Hour,
		topK:      5,
		minScore:  0.7,
		logger:    logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// Answer 回答问题
// 返回生成的回答以及引用的文本块
func (s *QAService) Answer(ctx context.Context, question string) (string, []RetrievedChunk, error) {
	return s.answerFiltered(ctx, question, nil, nil)
}

// AnswerWithFile 针对特定文件回答问题
func (s *QAService) AnswerWithFile(ctx context.Context, question string, fileID string) (string, []RetrievedChunk, error) {
	if fileID == "" {
		return "", nil, fmt.Errorf("fileID cannot be empty")
	}
	return s.answerFiltered(ctx, question, []string{fileID}, nil)
}

// AnswerWithMetadata 使用元数据过滤回答问题
func (s *QAService) AnswerWithMetadata(ctx context.Context, question string, metadata map[string]interface{}) (string, []RetrievedChunk, error) {
	return s.answerFiltered(ctx, question, nil, metadata)
}

// answerFiltered 回答问题的通用实现
func (s *QAService) answerFiltered(ctx context.Context, question string, fileIDs []string, metadata map[string]interface{}) (string, []RetrievedChunk, error) {
	if question == "" {
		return "", nil, fmt.Errorf("question cannot be empty")
	}

	cacheKey := s.cacheKey(question, fileIDs, metadata)

	// 1. 尝试从缓存获取
	if answer, sources, ok := s.fromCache(ctx, cacheKey); ok {
		s.logger.WithField("cache_key", cacheKey).Debug("Answer served from cache")
		return answer, sources, nil
	}

	// 2. 检索相关文本块
	chunks, err := s.retriever.RetrieveFiltered(ctx, question, s.topK, fileIDs, metadata)
	if err != nil {
		return "", nil, fmt.Errorf("retrieval failed: %w", err)
	}

	// 只保留相关度达到阈值的文本块
	relevant := chunks[:0]
	for _, chunk := range chunks {
		if chunk.Score >= s.minScore {
			relevant = append(relevant, chunk)
		}
	}

	if len(relevant) == 0 {
		s.storeCache(ctx, cacheKey, NoAnswerMessage, nil)
		return NoAnswerMessage, nil, nil
	}

	// 3. 组装上下文并生成回答
	contexts := make([]string, len(relevant))
	for i, chunk := range relevant {
		contexts[i] = chunk.Text
	}

	ragResponse, err := s.rag.Answer(ctx, question, contexts)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	// 4. 缓存结果
	s.storeCache(ctx, cacheKey, ragResponse.Answer, relevant)

	return ragResponse.Answer, relevant, nil
}

// cacheKey 为问题和过滤条件生成确定性的缓存键
func (s *QAService) cacheKey(question string, fileIDs []string, metadata map[string]interface{}) string {
	scope := "all"
	if len(fileIDs) > 0 {
		sorted := make([]string, len(fileIDs))
		copy(sorted, fileIDs)
		sort.Strings(sorted)
		scope = "files"
		for _, id := range sorted {
			scope += ":" + id
		}
	}
	if len(metadata) > 0 {
		keys := make([]string, 0, len(metadata))
		for k := range metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			scope += fmt.Sprintf(":%s=%v", k, metadata[k])
		}
	}

	return cache.AnswerKey("qa", question, scope)
}

// cachedAnswer 缓存的问答结果
type cachedAnswer struct {
	Answer  string           `json:"answer"`
	Sources []RetrievedChunk `json:"sources,omitempty"`
}

// fromCache 从缓存读取回答
func (s *QAService) fromCache(ctx context.Context, key string) (string, []RetrievedChunk, bool) {
	data, found, err := s.cache.Get(ctx, key)
	if err != nil || !found {
		return "", nil, false
	}

	var entry cachedAnswer
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		s.logger.WithError(err).Warn("Failed to unmarshal cached answer")
		return "", nil, false
	}

	return entry.Answer, entry.Sources, true
}

// storeCache 将回答写入缓存，失败只记录日志
func (s *QAService) storeCache(ctx context.Context, key string, answer string, sources []RetrievedChunk) {
	data, err := json.Marshal(cachedAnswer{Answer: answer, Sources: sources})
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, key, string(data), s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache answer")
	}
}

// ClearCache 清除问答缓存
func (s *QAService) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}
