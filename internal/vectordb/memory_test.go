package vectordb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo 创建用于测试的内存仓库
func newTestRepo(t *testing.T, dim int) Repository {
	t.Helper()
	repo, err := NewMemoryRepository(Config{
		Type:         "memory",
		Dimension:    dim,
		DistanceType: Cosine,
	})
	require.NoError(t, err)
	return repo
}

// makeDoc 创建测试文档
func makeDoc(id string, fileID string, vector []float32) Document {
	return Document{
		ID:     id,
		FileID: fileID,
		Text:   "text of " + id,
		Vector: vector,
	}
}

// TestAddAndGet 测试添加和获取文档
func TestAddAndGet(t *testing.T) {
	repo := newTestRepo(t, 3)

	doc := makeDoc("doc1", "file1", []float32{1, 0, 0})
	require.NoError(t, repo.Add(doc))

	got, err := repo.Get("doc1")
	require.NoError(t, err)
	assert.Equal(t, "doc1", got.ID)
	assert.Equal(t, "file1", got.FileID)

	_, err = repo.Get("missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

// TestAddBatchValidation 测试批量添加的整体校验
func TestAddBatchValidation(t *testing.T) {
	repo := newTestRepo(t, 3)

	t.Run("empty id rejected", func(t *testing.T) {
		err := repo.Add(makeDoc("", "file1", []float32{1, 0, 0}))
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("empty vector rejected", func(t *testing.T) {
		err := repo.Add(makeDoc("doc1", "file1", nil))
		assert.ErrorIs(t, err, ErrEmptyVector)
	})

	t.Run("dimension mismatch rejects whole batch", func(t *testing.T) {
		docs := []Document{
			makeDoc("doc1", "file1", []float32{1, 0, 0}),
			makeDoc("doc2", "file1", []float32{1, 0}), // 维度不匹配
		}
		err := repo.AddBatch(docs)
		assert.ErrorIs(t, err, ErrInvalidDimension)

		// 整批都不应该写入
		count, err := repo.Count()
		require.NoError(t, err)
		assert.Equal(t, 0, count, "维度校验失败时不应写入任何条目")
	})
}

// TestDimensionMismatchOnSearch 测试查询向量维度不匹配
func TestDimensionMismatchOnSearch(t *testing.T) {
	repo := newTestRepo(t, 0)

	// 以768维向量建库
	vec := make([]float32, 768)
	vec[0] = 1
	require.NoError(t, repo.Add(makeDoc("doc1", "file1", vec)))
	assert.Equal(t, 768, repo.GetDimension(), "维度应由首个写入的向量确定")

	// 用512维向量查询应该失败且无结果
	query := make([]float32, 512)
	query[0] = 1
	results, err := repo.Search(query, DefaultSearchFilter())
	assert.ErrorIs(t, err, ErrInvalidDimension, "维度不匹配的查询应返回错误")
	assert.Nil(t, results, "维度不匹配时不应返回任何结果")
}

// TestSearchRanking 测试相似度排序
func TestSearchRanking(t *testing.T) {
	repo := newTestRepo(t, 4)

	// 构造与查询向量相似度依次降低的文档
	docs := []Document{
		makeDoc("exact", "file1", []float32{1, 0, 0, 0}),
		makeDoc("close", "file1", []float32{0.9, 0.1, 0, 0}),
		makeDoc("far", "file1", []float32{0, 1, 0, 0}),
	}
	require.NoError(t, repo.Build(docs))

	results, err := repo.Search([]float32{1, 0, 0, 0}, SearchFilter{MaxResults: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "exact", results[0].Document.ID, "最相似的文档应排在首位")
	assert.Equal(t, "close", results[1].Document.ID)
	assert.Equal(t, "far", results[2].Document.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
}

// TestSearchTieBreakByInsertionOrder 测试同分结果按插入顺序排序
func TestSearchTieBreakByInsertionOrder(t *testing.T) {
	repo := newTestRepo(t, 3)

	// 三个文档与查询向量的相似度完全相同
	same := []float32{0, 1, 0}
	docs := []Document{
		makeDoc("third", "file1", same),
		makeDoc("first", "file1", same),
		makeDoc("second", "file1", same),
	}
	require.NoError(t, repo.Build(docs))

	results, err := repo.Search(same, SearchFilter{MaxResults: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 同分时按插入顺序返回，与文档ID的字典序无关
	assert.Equal(t, "third", results[0].Document.ID, "同分结果应按插入顺序排列")
	assert.Equal(t, "first", results[1].Document.ID)
	assert.Equal(t, "second", results[2].Document.ID)
}

// TestBuildIdempotent 测试重复建库的确定性
func TestBuildIdempotent(t *testing.T) {
	docs := []Document{
		makeDoc("a", "file1", []float32{1, 0, 0}),
		makeDoc("b", "file1", []float32{0.8, 0.2, 0}),
		makeDoc("c", "file2", []float32{0, 0, 1}),
	}

	repo1 := newTestRepo(t, 3)
	require.NoError(t, repo1.Build(docs))

	repo2 := newTestRepo(t, 3)
	require.NoError(t, repo2.Build(docs))

	query := []float32{1, 0, 0}
	results1, err := repo1.Search(query, SearchFilter{MaxResults: 5})
	require.NoError(t, err)
	results2, err := repo2.Search(query, SearchFilter{MaxResults: 5})
	require.NoError(t, err)

	require.Equal(t, len(results1), len(results2))
	for i := range results1 {
		assert.Equal(t, results1[i].Document.ID, results2[i].Document.ID,
			"相同条目建库后的查询结果应一致")
	}

	// 重复建库覆盖旧内容
	require.NoError(t, repo1.Build(docs[:1]))
	count, err := repo1.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "重新建库应清空旧条目")
}

// TestSearchFilters 测试搜索过滤条件
func TestSearchFilters(t *testing.T) {
	repo := newTestRepo(t, 3)

	docs := []Document{
		{ID: "a1", FileID: "fileA", Text: "a1", Vector: []float32{1, 0, 0}, Metadata: map[string]interface{}{"lang": "zh"}},
		{ID: "a2", FileID: "fileA", Text: "a2", Vector: []float32{0.9, 0.1, 0}, Metadata: map[string]interface{}{"lang": "en"}},
		{ID: "b1", FileID: "fileB", Text: "b1", Vector: []float32{0.8, 0.2, 0}, Metadata: map[string]interface{}{"lang": "zh"}},
	}
	require.NoError(t, repo.Build(docs))

	query := []float32{1, 0, 0}

	t.Run("filter by file id", func(t *testing.T) {
		results, err := repo.Search(query, SearchFilter{FileIDs: []string{"fileB"}, MaxResults: 10})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b1", results[0].Document.ID)
	})

	t.Run("filter by metadata", func(t *testing.T) {
		results, err := repo.Search(query, SearchFilter{
			Metadata:   map[string]interface{}{"lang": "zh"},
			MaxResults: 10,
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, "zh", r.Document.Metadata["lang"])
		}
	})

	t.Run("min score cutoff", func(t *testing.T) {
		results, err := repo.Search(query, SearchFilter{MinScore: 0.99, MaxResults: 10})
		require.NoError(t, err)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, float32(0.99))
		}
	})

	t.Run("max results limit", func(t *testing.T) {
		results, err := repo.Search(query, SearchFilter{MaxResults: 2})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

// TestDeleteByFileID 测试按文件删除分块
func TestDeleteByFileID(t *testing.T) {
	repo := newTestRepo(t, 3)

	docs := []Document{
		makeDoc("a1", "fileA", []float32{1, 0, 0}),
		makeDoc("a2", "fileA", []float32{0, 1, 0}),
		makeDoc("b1", "fileB", []float32{0, 0, 1}),
	}
	require.NoError(t, repo.Build(docs))

	require.NoError(t, repo.DeleteByFileID("fileA"))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "fileA的分块应全部删除")

	_, err = repo.Get("a1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	got, err := repo.Get("b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID, "其他文件的分块应保留")
}

// TestDuplicateIDOverwrite 测试重复ID的覆盖语义
func TestDuplicateIDOverwrite(t *testing.T) {
	repo := newTestRepo(t, 3)

	require.NoError(t, repo.Add(makeDoc("doc1", "file1", []float32{1, 0, 0})))

	updated := makeDoc("doc1", "file1", []float32{0, 1, 0})
	updated.Text = "updated text"
	require.NoError(t, repo.Add(updated))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "重复ID应覆盖而不是新增")

	got, err := repo.Get("doc1")
	require.NoError(t, err)
	assert.Equal(t, "updated text", got.Text)
}

// TestSemanticRanking 测试语义相似内容的排序
// 用人工构造的向量模拟嵌入空间中的语义距离
func TestSemanticRanking(t *testing.T) {
	repo := newTestRepo(t, 4)

	// chatbot相关的文本向量彼此靠近
	docs := []Document{
		{ID: "s1", FileID: "kb", Text: "Ashu AI is a chatbot.", Vector: []float32{0.9, 0.1, 0.05, 0}},
		{ID: "s2", FileID: "kb", Text: "Bananas are yellow.", Vector: []float32{0, 0.1, 0.9, 0.3}},
		{ID: "s3", FileID: "kb", Text: "Chatbots answer questions.", Vector: []float32{0.85, 0.2, 0.1, 0}},
	}
	require.NoError(t, repo.Build(docs))

	// 查询"chatbot"语义的向量
	results, err := repo.Search([]float32{0.92, 0.12, 0.03, 0}, SearchFilter{MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Ashu AI is a chatbot.", results[0].Document.Text,
		"语义最接近的文本应排在首位")
}

// TestSearchEmptyIndex 测试空索引查询
func TestSearchEmptyIndex(t *testing.T) {
	repo := newTestRepo(t, 3)

	results, err := repo.Search([]float32{1, 0, 0}, DefaultSearchFilter())
	require.NoError(t, err)
	assert.Empty(t, results, "空索引查询应返回空结果而不是错误")
}

// TestConcurrentSearch 测试建库完成后的并发查询
func TestConcurrentSearch(t *testing.T) {
	repo := newTestRepo(t, 8)

	docs := make([]Document, 100)
	for i := range docs {
		vec := make([]float32, 8)
		vec[i%8] = 1
		docs[i] = makeDoc(fmt.Sprintf("doc%d", i), "file1", vec)
	}
	require.NoError(t, repo.Build(docs))

	done := make(chan error, 10)
	for g := 0; g < 10; g++ {
		go func() {
			query := []float32{1, 0, 0, 0, 0, 0, 0, 0}
			_, err := repo.Search(query, SearchFilter{MaxResults: 5})
			done <- err
		}()
	}

	for g := 0; g < 10; g++ {
		assert.NoError(t, <-done)
	}
}
