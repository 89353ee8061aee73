package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDashScopeServer 启动一个模拟DashScope嵌入API的服务
// rateLimitCount 指定前N个请求返回429
func fakeDashScopeServer(t *testing.T, dim int, rateLimitCount int) (*httptest.Server, *int32) {
	t.Helper()
	var requestCount int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requestCount, 1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")

		if int(n) <= rateLimitCount {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req dashScopeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := dashScopeResponse{RequestID: "test-request"}
		// 故意倒序返回，客户端应按text_index还原顺序
		for i := len(req.Input.Texts) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[i%dim] = float32(i + 1)
			resp.Output.Embeddings = append(resp.Output.Embeddings, struct {
				TextIndex int       `json:"text_index"`
				Embedding []float32 `json:"embedding"`
			}{TextIndex: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	return server, &requestCount
}

// TestNewClient 测试客户端工厂
func TestNewClient(t *testing.T) {
	t.Run("unregistered provider", func(t *testing.T) {
		_, err := NewClient("unknown-provider")
		assert.Error(t, err, "未注册的提供方应返回错误")
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := NewClient("tongyi")
		assert.Error(t, err, "缺少API密钥应返回错误")
	})

	t.Run("options applied", func(t *testing.T) {
		cfg := NewConfig(
			WithAPIKey("sk-test"),
			WithModel("text-embedding-v3"),
			WithDimensions(1024),
			WithBatchSize(8),
			WithMaxRetries(2),
			WithTimeout(10*time.Second),
		)
		assert.Equal(t, "sk-test", cfg.APIKey)
		assert.Equal(t, "text-embedding-v3", cfg.Model)
		assert.Equal(t, 1024, cfg.Dimensions)
		assert.Equal(t, 8, cfg.BatchSize)
		assert.Equal(t, 2, cfg.MaxRetries)
		assert.Equal(t, 10*time.Second, cfg.Timeout)
	})
}

// TestEmbedSingle 测试单条文本的向量化
func TestEmbedSingle(t *testing.T) {
	server, _ := fakeDashScopeServer(t, 4, 0)

	client, err := NewTongyiClient(NewConfig(
		WithAPIKey("sk-test"),
		WithBaseURL(server.URL),
	))
	require.NoError(t, err)

	vector, err := client.Embed(context.Background(), "你好世界")
	require.NoError(t, err)
	assert.Len(t, vector, 4, "向量维度应与服务端返回一致")

	// 空文本直接拒绝，不发起请求
	_, err = client.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

// TestEmbedBatchOrder 测试批量向量化的顺序还原
func TestEmbedBatchOrder(t *testing.T) {
	server, _ := fakeDashScopeServer(t, 4, 0)

	client, err := NewTongyiClient(NewConfig(
		WithAPIKey("sk-test"),
		WithBaseURL(server.URL),
	))
	require.NoError(t, err)

	texts := []string{"第一条", "第二条", "第三条"}
	vectors, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// 服务端倒序返回，客户端应按text_index还原
	for i, vec := range vectors {
		assert.Equal(t, float32(i+1), vec[i%4],
			"第%d个向量应对应第%d条输入", i, i)
	}
}

// TestEmbedBatchValidation 测试批量请求的输入校验
func TestEmbedBatchValidation(t *testing.T) {
	server, count := fakeDashScopeServer(t, 4, 0)

	client, err := NewTongyiClient(NewConfig(
		WithAPIKey("sk-test"),
		WithBaseURL(server.URL),
		WithBatchSize(2),
	))
	require.NoError(t, err)

	t.Run("empty batch", func(t *testing.T) {
		vectors, err := client.EmbedBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})

	t.Run("batch too large", func(t *testing.T) {
		_, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("empty text in batch", func(t *testing.T) {
		_, err := client.EmbedBatch(context.Background(), []string{"a", ""})
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	// 校验失败时不应发起任何请求
	assert.Equal(t, int32(0), atomic.LoadInt32(count))
}

// TestEmbedRateLimitRetry 测试限流后的退避重试
func TestEmbedRateLimitRetry(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过含退避等待的测试")
	}

	// 第一个请求返回429，之后恢复正常
	server, count := fakeDashScopeServer(t, 4, 1)

	client, err := NewTongyiClient(NewConfig(
		WithAPIKey("sk-test"),
		WithBaseURL(server.URL),
		WithMaxRetries(2),
	))
	require.NoError(t, err)

	start := time.Now()
	vector, err := client.Embed(context.Background(), "测试限流")
	elapsed := time.Since(start)

	require.NoError(t, err, "退避后重试应该成功")
	assert.Len(t, vector, 4)
	assert.Equal(t, int32(2), atomic.LoadInt32(count), "应发起两次请求")
	assert.GreaterOrEqual(t, elapsed, 2*time.Second, "重试前应有退避等待")
}

// TestEmbedRateLimitExhausted 测试重试耗尽后返回限流错误
func TestEmbedRateLimitExhausted(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过含退避等待的测试")
	}

	// 所有请求都返回429
	server, count := fakeDashScopeServer(t, 4, 1000)

	client, err := NewTongyiClient(NewConfig(
		WithAPIKey("sk-test"),
		WithBaseURL(server.URL),
		WithMaxRetries(1),
	))
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "测试限流耗尽")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(2), atomic.LoadInt32(count), "重试次数应受配置约束")
}

// TestEmbedServerError 测试服务端错误不重试
func TestEmbedServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "internal error")
	}))
	t.Cleanup(server.Close)

	client, err := NewTongyiClient(NewConfig(
		WithAPIKey("sk-test"),
		WithBaseURL(server.URL),
	))
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "服务端错误")
	require.Error(t, err)

	var embErr EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, ErrCodeServerError, embErr.Code)
}

// TestEmbedContextCanceled 测试上下文取消
func TestEmbedContextCanceled(t *testing.T) {
	server, _ := fakeDashScopeServer(t, 4, 1000)

	client, err := NewTongyiClient(NewConfig(
		WithAPIKey("sk-test"),
		WithBaseURL(server.URL),
		WithMaxRetries(3),
	))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = client.Embed(ctx, "取消测试")
	assert.Error(t, err, "上下文取消应中断退避等待")
}
