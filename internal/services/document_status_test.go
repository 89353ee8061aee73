package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luochenxi/text-rag-pipeline/internal/models"
)

// fakeDocumentRepo 用于测试的内存文档仓储
type fakeDocumentRepo struct {
	mu     sync.Mutex
	docs   map[string]*models.Document
	chunks map[string][]*models.DocumentChunk
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{
		docs:   make(map[string]*models.Document),
		chunks: make(map[string][]*models.DocumentChunk),
	}
}

func (r *fakeDocumentRepo) Create(doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *fakeDocumentRepo) Update(doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; !ok {
		return models.ErrDocumentNotFound
	}
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *fakeDocumentRepo) GetByID(id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, models.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeDocumentRepo) GetByStoryID(storyID string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.StoryID == storyID {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, models.ErrDocumentNotFound
}

func (r *fakeDocumentRepo) List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*models.Document
	for _, doc := range r.docs {
		copied := *doc
		all = append(all, &copied)
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *fakeDocumentRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return models.ErrDocumentNotFound
	}
	delete(r.docs, id)
	delete(r.chunks, id)
	return nil
}

func (r *fakeDocumentRepo) UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return models.ErrDocumentNotFound
	}
	doc.Status = status
	doc.Error = errorMsg
	return nil
}

func (r *fakeDocumentRepo) UpdateStage(id string, stage models.ProcessStage, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return models.ErrDocumentNotFound
	}
	doc.CurrentStage = stage
	doc.Progress = progress
	return nil
}

func (r *fakeDocumentRepo) SaveChunks(chunks []*models.DocumentChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, chunk := range chunks {
		r.chunks[chunk.DocumentID] = append(r.chunks[chunk.DocumentID], chunk)
	}
	return nil
}

func (r *fakeDocumentRepo) GetChunks(docID string) ([]*models.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks[docID], nil
}

func (r *fakeDocumentRepo) CountChunks(docID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks[docID]), nil
}

func (r *fakeDocumentRepo) DeleteChunks(docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, docID)
	return nil
}

// TestValidateStateTransition 测试文档状态机的转换规则
func TestValidateStateTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  models.DocumentStatus
		to    models.DocumentStatus
		valid bool
	}{
		{"uploaded to processing", models.DocStatusUploaded, models.DocStatusProcessing, true},
		{"uploaded to completed", models.DocStatusUploaded, models.DocStatusCompleted, true},
		{"uploaded to failed", models.DocStatusUploaded, models.DocStatusFailed, true},
		{"processing to completed", models.DocStatusProcessing, models.DocStatusCompleted, true},
		{"processing to failed", models.DocStatusProcessing, models.DocStatusFailed, true},
		{"failed to processing retry", models.DocStatusFailed, models.DocStatusProcessing, true},
		{"completed to processing", models.DocStatusCompleted, models.DocStatusProcessing, false},
		{"completed to failed", models.DocStatusCompleted, models.DocStatusFailed, false},
		{"processing to uploaded", models.DocStatusProcessing, models.DocStatusUploaded, false},
		{"failed to completed", models.DocStatusFailed, models.DocStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStateTransition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

// TestDocumentStatusLifecycle 测试文档状态管理的完整生命周期
func TestDocumentStatusLifecycle(t *testing.T) {
	repo := newFakeDocumentRepo()
	manager := NewDocumentStatusManager(repo, nil)
	ctx := context.Background()

	doc := &models.Document{
		ID:       "doc1",
		FileName: "test.txt",
		FileType: "txt",
		FilePath: "/tmp/test.txt",
	}

	// 上传
	require.NoError(t, manager.MarkAsUploaded(ctx, doc))
	status, err := manager.GetStatus(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusUploaded, status)

	// 进入处理
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc1"))

	// 更新处理阶段
	require.NoError(t, manager.UpdateStage(ctx, "doc1", models.StageChunking, 20))
	got, err := manager.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, models.StageChunking, got.CurrentStage)
	assert.Equal(t, 20, got.Progress)

	// 完成
	require.NoError(t, manager.MarkAsCompleted(ctx, "doc1", 5))
	got, err = manager.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, got.Status)
	assert.Equal(t, 5, got.ChunkCount)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.ProcessedAt)

	// 完成后不允许再次进入处理
	err = manager.MarkAsProcessing(ctx, "doc1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// TestDocumentStatusFailureAndRetry 测试失败与重试
func TestDocumentStatusFailureAndRetry(t *testing.T) {
	repo := newFakeDocumentRepo()
	manager := NewDocumentStatusManager(repo, nil)
	ctx := context.Background()

	doc := &models.Document{ID: "doc1", FileName: "a.txt", FileType: "txt", FilePath: "/tmp/a.txt"}
	require.NoError(t, manager.MarkAsUploaded(ctx, doc))
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc1"))

	// 失败记录错误信息
	require.NoError(t, manager.MarkAsFailed(ctx, "doc1", "embedding failed"))
	got, err := manager.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.Equal(t, "embedding failed", got.Error)

	// 失败后允许重试
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc1"))
}

// TestDocumentStatusNotFound 测试不存在的文档
func TestDocumentStatusNotFound(t *testing.T) {
	manager := NewDocumentStatusManager(newFakeDocumentRepo(), nil)
	ctx := context.Background()

	_, err := manager.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	err = manager.MarkAsProcessing(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

// TestUpdateStageRequiresProcessing 测试只有处理中的文档才能更新阶段
func TestUpdateStageRequiresProcessing(t *testing.T) {
	repo := newFakeDocumentRepo()
	manager := NewDocumentStatusManager(repo, nil)
	ctx := context.Background()

	doc := &models.Document{ID: "doc1", FileName: "a.txt", FileType: "txt", FilePath: "/tmp/a.txt"}
	require.NoError(t, manager.MarkAsUploaded(ctx, doc))

	err := manager.UpdateStage(ctx, "doc1", models.StageParsing, 10)
	assert.Error(t, err, "未进入处理状态的文档不应允许更新阶段")
}
