package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLocalStorage 创建临时目录上的本地存储
func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	return store
}

// TestLocalStorageSaveAndGet 测试保存和读取
func TestLocalStorageSaveAndGet(t *testing.T) {
	store := newTestLocalStorage(t)

	content := "这是测试文件的内容"
	info, err := store.Save(strings.NewReader(content), "test.txt")
	require.NoError(t, err)

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "test.txt", info.Name)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "text/plain", info.MimeType)
	assert.NotEmpty(t, info.Path)

	reader, err := store.Get(info.ID)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

// TestLocalStorageGetNotFound 测试获取不存在的文件
func TestLocalStorageGetNotFound(t *testing.T) {
	store := newTestLocalStorage(t)

	_, err := store.Get("nonexistent-id")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

// TestLocalStorageDelete 测试删除
func TestLocalStorageDelete(t *testing.T) {
	store := newTestLocalStorage(t)

	info, err := store.Save(strings.NewReader("to delete"), "doomed.txt")
	require.NoError(t, err)

	require.NoError(t, store.Delete(info.ID))

	exists, err := store.Exists(info.ID)
	require.NoError(t, err)
	assert.False(t, exists, "删除后文件不应存在")

	err = store.Delete(info.ID)
	assert.ErrorIs(t, err, ErrFileNotFound, "重复删除应返回文件不存在")
}

// TestLocalStorageExists 测试存在性检查
func TestLocalStorageExists(t *testing.T) {
	store := newTestLocalStorage(t)

	info, err := store.Save(strings.NewReader("x"), "exists.md")
	require.NoError(t, err)

	exists, err := store.Exists(info.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists("missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestLocalStorageList 测试文件列表
func TestLocalStorageList(t *testing.T) {
	store := newTestLocalStorage(t)

	_, err := store.Save(strings.NewReader("a"), "a.txt")
	require.NoError(t, err)
	_, err = store.Save(strings.NewReader("bb"), "b.pdf")
	require.NoError(t, err)

	files, err := store.List()
	require.NoError(t, err)
	assert.Len(t, files, 2)

	mimeTypes := make(map[string]bool)
	for _, f := range files {
		assert.NotEmpty(t, f.ID)
		mimeTypes[f.MimeType] = true
	}
	assert.True(t, mimeTypes["text/plain"])
	assert.True(t, mimeTypes["application/pdf"])
}

// TestLocalStorageGetPath 测试获取本地路径
func TestLocalStorageGetPath(t *testing.T) {
	store := newTestLocalStorage(t)

	info, err := store.Save(strings.NewReader("path test"), "p.txt")
	require.NoError(t, err)

	path, err := store.GetPath(info.ID)
	require.NoError(t, err)
	assert.Contains(t, path, info.ID)
}

// TestSaveText 测试文本保存入口
func TestSaveText(t *testing.T) {
	store := newTestLocalStorage(t)

	info, err := SaveText(store, "story text content", "story_1.txt")
	require.NoError(t, err)
	assert.Equal(t, "story_1.txt", info.Name)
	assert.Equal(t, int64(len("story text content")), info.Size)
}
