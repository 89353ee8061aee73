package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/luochenxi/text-rag-pipeline/internal/embedding"
	"github.com/luochenxi/text-rag-pipeline/internal/vectordb"
)

// RetrievedChunk 检索到的文本块
type RetrievedChunk struct {
	Text     string  // 分块文本
	Score    float32 // 相似度得分
	FileID   string  // 所属文件ID
	FileName string  // 所属文件名
	Position int     // 分块在文档中的位置
}

// RetrieverService 检索服务
// 将查询文本向量化后在向量库中查找最相关的文本块
type RetrieverService struct {
	embedder embedding.Client    // 嵌入模型客户端
	vectorDB vectordb.Repository // 向量数据库
	topK     int                 // 默认返回的结果数量
	minScore float32             // 最低相似度分数，0为不过滤
	logger   *logrus.Logger      // 日志记录器
}

// RetrieverOption 检索服务配置选项
type RetrieverOption func(*RetrieverService)

// WithTopK 设置默认返回的结果数量
func WithTopK(k int) RetrieverOption {
	return func(s *RetrieverService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithRetrieverMinScore 设置最低相似度分数
func WithRetrieverMinScore(score float32) RetrieverOption {
	return func(s *RetrieverService) {
		s.minScore = score
	}
}

// WithRetrieverLogger 设置日志记录器
func WithRetrieverLogger(logger *logrus.Logger) RetrieverOption {
	return func(s *RetrieverService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRetrieverService 创建检索服务
func NewRetrieverService(embedder embedding.Client, vectorDB vectordb.Repository, opts ...RetrieverOption) *RetrieverService {
	s := &RetrieverService{
		embedder: embedder,
		vectorDB: vectorDB,
		topK:     5,
		logger:   logrus.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Retrieve 检索与查询最相关的k个文本块
// k不为正数时使用服务默认值，结果按相似度降序排列
func (s *RetrieverService) Retrieve(ctx context.Context, query string, k int) ([]RetrievedChunk, error) {
	return s.RetrieveFiltered(ctx, query, k, nil, nil)
}

// RetrieveFiltered 带文件和元数据过滤的检索
func (s *RetrieverService) RetrieveFiltered(ctx context.Context, query string, k int, fileIDs []string, metadata map[string]interface{}) ([]RetrievedChunk, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = s.topK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter := vectordb.SearchFilter{
		FileIDs:    fileIDs,
		Metadata:   metadata,
		MinScore:   s.minScore,
		MaxResults: k,
	}

	results, err := s.vectorDB.Search(vector, filter)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	chunks := make([]RetrievedChunk, len(results))
	for i, result := range results {
		chunks[i] = RetrievedChunk{
			Text:     result.Document.Text,
			Score:    result.Score,
			FileID:   result.Document.FileID,
			FileName: result.Document.FileName,
			Position: result.Document.Position,
		}
	}

	s.logger.WithFields(logrus.Fields{
		"query_len": len(query),
		"k":         k,
		"results":   len(chunks),
	}).Debug("Retrieved chunks for query")

	return chunks, nil
}
