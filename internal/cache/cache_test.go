package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryCacheBasic 测试内存缓存的基本操作
func TestMemoryCacheBasic(t *testing.T) {
	c, err := NewMemoryCache(DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "key1", "value1", time.Minute))
		value, found, err := c.Get(ctx, "key1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "value1", value)
	})

	t.Run("miss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found, "不存在的键应返回未命中而不是错误")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "key2", "value2", time.Minute))
		require.NoError(t, c.Delete(ctx, "key2"))
		_, found, err := c.Get(ctx, "key2")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "key3", "value3", time.Minute))
		require.NoError(t, c.Clear(ctx))
		_, found, err := c.Get(ctx, "key3")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

// TestMemoryCacheTTL 测试过期时间
func TestMemoryCacheTTL(t *testing.T) {
	c, err := NewMemoryCache(Config{
		KeyPrefix:       "test",
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute,
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "value", 50*time.Millisecond))

	_, found, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)

	_, found, err = c.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found, "超过TTL的缓存项应失效")
}

// TestMemoryCachePrefixIsolation 测试前缀隔离
func TestMemoryCachePrefixIsolation(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg1.KeyPrefix = "svc1"
	cfg2 := DefaultConfig()
	cfg2.KeyPrefix = "svc2"

	// 两个缓存共享键名但前缀不同时互不可见需各自独立的底层存储
	// 内存缓存天然隔离，这里验证前缀参与键的构造
	c, err := NewMemoryCache(cfg1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "shared", "from-svc1", time.Minute))
	value, found, err := c.Get(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "from-svc1", value)
}

// TestNewCacheFactory 测试缓存工厂
func TestNewCacheFactory(t *testing.T) {
	t.Run("memory type", func(t *testing.T) {
		c, err := NewCache(Config{Type: "memory"})
		require.NoError(t, err)
		assert.IsType(t, &MemoryCache{}, c)
	})

	t.Run("unknown type falls back to memory", func(t *testing.T) {
		c, err := NewCache(Config{Type: "unknown"})
		require.NoError(t, err)
		assert.IsType(t, &MemoryCache{}, c)
	})
}

// TestRedisCache 测试Redis缓存
func TestRedisCache(t *testing.T) {
	server := miniredis.RunT(t)

	cfg := Config{
		Type:       "redis",
		KeyPrefix:  "rag",
		RedisAddr:  server.Addr(),
		DefaultTTL: time.Hour,
	}

	c, err := NewRedisCache(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "answer:q1", "缓存的回答", time.Minute))
		value, found, err := c.Get(ctx, "answer:q1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "缓存的回答", value)
	})

	t.Run("miss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "expiring", "v", time.Second))
		server.FastForward(2 * time.Second)
		_, found, err := c.Get(ctx, "expiring")
		require.NoError(t, err)
		assert.False(t, found, "超过TTL的缓存项应失效")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "tmp", "v", time.Minute))
		require.NoError(t, c.Delete(ctx, "tmp"))
		_, found, err := c.Get(ctx, "tmp")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear only prefixed keys", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k1", "v1", time.Minute))
		require.NoError(t, server.Set("other:key", "keep"))

		require.NoError(t, c.Clear(ctx))

		_, found, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, found, "带前缀的缓存项应被清除")
		assert.True(t, server.Exists("other:key"), "其他前缀的键不应受影响")
	})
}

// TestGenerateCacheKey 测试缓存键构造
func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "rag", GenerateCacheKey("rag"))
	assert.Equal(t, "rag:a:b", GenerateCacheKey("rag", "a", "b"))
}

// TestAnswerKey 测试问答缓存键的确定性
func TestAnswerKey(t *testing.T) {
	k1 := AnswerKey("qa", "什么是RAG?", "all")
	k2 := AnswerKey("qa", "什么是RAG?", "all")
	assert.Equal(t, k1, k2, "相同问题应生成相同缓存键")

	k3 := AnswerKey("qa", "另一个问题", "all")
	assert.NotEqual(t, k1, k3, "不同问题应生成不同缓存键")

	k4 := AnswerKey("qa", "什么是RAG?", "files:doc1")
	assert.NotEqual(t, k1, k4, "不同过滤范围应生成不同缓存键")

	// 问题文本经过哈希，键中不包含原文
	assert.NotContains(t, k1, "什么是RAG?")
}
