package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults 测试缺省配置
func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "memory", cfg.VectorDB.Type)
	assert.Equal(t, "cosine", cfg.VectorDB.Distance)
	assert.Equal(t, "tongyi", cfg.LLM.Provider)
	assert.Equal(t, "tongyi", cfg.Embed.Provider)
	assert.Equal(t, 1000, cfg.Document.ChunkSize)
	assert.Equal(t, 200, cfg.Document.ChunkOverlap)
	assert.Equal(t, "https://www.wattpad.com", cfg.Wattpad.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Wattpad.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Queue.Enable, "任务队列默认关闭")

	// 缺少配置文件时应写出一份默认配置
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "应生成默认配置文件")
}

// TestLoadFromFile 测试从文件加载配置
func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
document:
  chunk_size: 500
  chunk_overlap: 50
  split_type: sentence
vectordb:
  dim: 768
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Document.ChunkSize)
	assert.Equal(t, 50, cfg.Document.ChunkOverlap)
	assert.Equal(t, "sentence", cfg.Document.SplitType)
	assert.Equal(t, 768, cfg.VectorDB.Dim)

	// 未在文件中出现的项应回退到默认值
	assert.Equal(t, "tongyi", cfg.Embed.Provider)
}

// TestExpandSecrets 测试密钥的环境变量展开
func TestExpandSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
embed:
  api_key: ${TEST_EMBED_KEY}
llm:
  api_key: sk-plain-key
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("TEST_EMBED_KEY", "sk-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.Embed.APIKey, "${VAR}形式的密钥应从环境变量展开")
	assert.Equal(t, "sk-plain-key", cfg.LLM.APIKey, "普通密钥应保持原样")
}

// TestLoadInvalidYAML 测试损坏的配置文件
func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
