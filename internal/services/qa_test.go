package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luochenxi/text-rag-pipeline/internal/cache"
	"github.com/luochenxi/text-rag-pipeline/internal/llm"
)

// countingLLM 用于测试的假大模型客户端
// 记录调用次数以验证缓存命中
type countingLLM struct {
	calls int32
	reply string
}

func (c *countingLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	atomic.AddInt32(&c.calls, 1)
	return &llm.Response{Text: c.reply, ModelName: "counting"}, nil
}

func (c *countingLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.GenerateOption) (*llm.Response, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty")
	}
	return c.Generate(ctx, messages[len(messages)-1].Content, options...)
}

func (c *countingLLM) Name() string {
	return "counting"
}

// newTestQAService 组装带内存缓存的问答服务
func newTestQAService(t *testing.T, client llm.Client, opts ...QAOption) *QAService {
	t.Helper()

	db := newTestVectorDB(t)
	indexText(t, db, "kb", "The sky is blue. Grass is green.", 20, 2)

	retriever := NewRetrieverService(&keywordEmbedder{}, db)
	rag := llm.NewRAG(client)

	qaCache, err := cache.NewCache(cache.DefaultConfig())
	require.NoError(t, err)

	defaults := []QAOption{WithMinScore(0.1)}
	return NewQAService(retriever, rag, qaCache, append(defaults, opts...)...)
}

// TestQAAnswer 测试问答链路
func TestQAAnswer(t *testing.T) {
	client := &countingLLM{reply: "The sky is blue."}
	qa := newTestQAService(t, client)

	answer, sources, err := qa.Answer(context.Background(), "What color is the sky?")
	require.NoError(t, err)

	assert.Equal(t, "The sky is blue.", answer)
	assert.NotEmpty(t, sources, "回答应附带引用的文本块")
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls))
}

// TestQAAnswerCached 测试重复问题命中缓存
func TestQAAnswerCached(t *testing.T) {
	client := &countingLLM{reply: "Blue."}
	qa := newTestQAService(t, client, WithCacheTTL(time.Minute))

	question := "What color is the sky?"

	first, firstSources, err := qa.Answer(context.Background(), question)
	require.NoError(t, err)

	second, secondSources, err := qa.Answer(context.Background(), question)
	require.NoError(t, err)

	assert.Equal(t, first, second, "缓存命中应返回相同回答")
	assert.Equal(t, len(firstSources), len(secondSources))
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls), "重复问题不应再次调用大模型")

	// 清除缓存后应重新生成
	require.NoError(t, qa.ClearCache(context.Background()))
	_, _, err = qa.Answer(context.Background(), question)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&client.calls))
}

// TestQANoRelevantChunks 测试没有相关内容时的固定回答
func TestQANoRelevantChunks(t *testing.T) {
	client := &countingLLM{reply: "should not be called"}
	qa := newTestQAService(t, client, WithMinScore(0.99))

	answer, sources, err := qa.Answer(context.Background(), "unrelated topic entirely")
	require.NoError(t, err)

	assert.Equal(t, NoAnswerMessage, answer)
	assert.Empty(t, sources)
	assert.Equal(t, int32(0), atomic.LoadInt32(&client.calls), "无相关内容时不应调用大模型")
}

// TestQAAnswerWithFile 测试按文件过滤问答
func TestQAAnswerWithFile(t *testing.T) {
	client := &countingLLM{reply: "filtered answer"}

	db := newTestVectorDB(t)
	indexText(t, db, "fileA", "The sky is blue.", 20, 2)
	indexText(t, db, "fileB", "Grass is green.", 20, 2)

	retriever := NewRetrieverService(&keywordEmbedder{}, db)
	qaCache, err := cache.NewCache(cache.DefaultConfig())
	require.NoError(t, err)
	qa := NewQAService(retriever, llm.NewRAG(client), qaCache, WithMinScore(0.1))

	t.Run("scoped to file", func(t *testing.T) {
		_, sources, err := qa.AnswerWithFile(context.Background(), "what color is grass", "fileB")
		require.NoError(t, err)
		for _, s := range sources {
			assert.Equal(t, "fileB", s.FileID)
		}
	})

	t.Run("empty file id", func(t *testing.T) {
		_, _, err := qa.AnswerWithFile(context.Background(), "question", "")
		assert.Error(t, err)
	})

	t.Run("different scopes use different cache keys", func(t *testing.T) {
		before := atomic.LoadInt32(&client.calls)
		_, _, err := qa.Answer(context.Background(), "what color is grass")
		require.NoError(t, err)
		assert.Greater(t, atomic.LoadInt32(&client.calls), before,
			"不同过滤范围的相同问题不应命中彼此的缓存")
	})
}

// TestQAEmptyQuestion 测试空问题
func TestQAEmptyQuestion(t *testing.T) {
	qa := newTestQAService(t, &countingLLM{})

	_, _, err := qa.Answer(context.Background(), "")
	assert.Error(t, err, "空问题应返回错误")
}
