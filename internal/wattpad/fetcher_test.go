package wattpad

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luochenxi/text-rag-pipeline/pkg/storage"
)

// newTestStorage 创建临时目录上的本地存储
func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	return store
}

// TestFetcherImport 测试故事导入
func TestFetcherImport(t *testing.T) {
	server := newFakeWattpadServer(t)
	store := newTestStorage(t)
	fetcher := NewFetcher(newTestClient(server), store, nil)

	imported, err := fetcher.Import(context.Background(), "12345")
	require.NoError(t, err)

	assert.Equal(t, "12345", imported.StoryID)
	assert.Equal(t, "测试故事", imported.Title)
	assert.Equal(t, "Test Author", imported.Author)
	assert.Equal(t, []string{"fantasy", "adventure"}, imported.Tags)
	assert.Equal(t, 2, imported.PartCount)
	assert.Equal(t, "story_12345.txt", imported.FileName)
	assert.Greater(t, imported.Size, int64(0))

	// 合并后的文本应包含元数据头和各章节正文
	reader, err := store.Get(imported.FileID)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "Title: 测试故事")
	assert.Contains(t, text, "Author: Test Author")
	assert.Contains(t, text, "Chapter 1")
	assert.Contains(t, text, "Chapter body of part 111.")
	assert.Contains(t, text, "Chapter 2")
	assert.Contains(t, text, "Chapter body of part 112.")
}

// TestFetcherImportByPartID 测试按章节ID导入整个故事
func TestFetcherImportByPartID(t *testing.T) {
	server := newFakeWattpadServer(t)
	fetcher := NewFetcher(newTestClient(server), newTestStorage(t), nil)

	imported, err := fetcher.Import(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, "12345", imported.StoryID, "章节ID应解析为所属故事")
	assert.Equal(t, 2, imported.PartCount, "应导入故事的全部章节")
}

// TestFetcherImportPaywalled 测试付费故事
func TestFetcherImportPaywalled(t *testing.T) {
	server := newFakeWattpadServer(t)
	fetcher := NewFetcher(newTestClient(server), newTestStorage(t), nil)

	_, err := fetcher.Import(context.Background(), "55555")
	assert.ErrorIs(t, err, ErrStoryPaywalled, "付费内容不应导入")
}

// TestFetcherImportNotFound 测试不存在的故事
func TestFetcherImportNotFound(t *testing.T) {
	server := newFakeWattpadServer(t)
	fetcher := NewFetcher(newTestClient(server), newTestStorage(t), nil)

	_, err := fetcher.Import(context.Background(), "00000")
	assert.ErrorIs(t, err, ErrStoryNotFound)
}
