package repository

import "github.com/luochenxi/text-rag-pipeline/internal/models"

// DocumentRepository 文档仓储接口
// 负责文档元数据的存储和检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// GetByStoryID 根据故事ID获取已导入的文档
	GetByStoryID(storyID string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateStage 更新文档处理阶段和进度
	UpdateStage(id string, stage models.ProcessStage, progress int) error

	// SaveChunks 批量保存文档分块
	SaveChunks(chunks []*models.DocumentChunk) error

	// GetChunks 获取文档的所有分块
	GetChunks(docID string) ([]*models.DocumentChunk, error)

	// CountChunks 统计文档的分块数量
	CountChunks(docID string) (int, error)

	// DeleteChunks 删除文档的所有分块
	DeleteChunks(docID string) error
}
