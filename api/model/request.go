package model

import (
	"mime/multipart"
	"time"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// DocumentUploadRequest 文档上传请求
type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"`              // 文件对象
	Tags string                `form:"tags" json:"tags" binding:"omitempty"` // 文档标签，逗号分隔
}

// DocumentIDRequest 带文档ID的路径请求
type DocumentIDRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// DocumentListRequest 文档列表请求
type DocumentListRequest struct {
	PaginationRequest
	StartTime *time.Time `form:"start_time" json:"start_time" binding:"omitempty"` // 开始时间
	EndTime   *time.Time `form:"end_time" json:"end_time" binding:"omitempty"`     // 结束时间
	Status    string     `form:"status" json:"status" binding:"omitempty"`         // 文档状态
	Source    string     `form:"source" json:"source" binding:"omitempty"`         // 来源：upload或story
	Tags      string     `form:"tags" json:"tags" binding:"omitempty"`             // 标签过滤
	FileName  string     `form:"file_name" json:"file_name" binding:"omitempty"`   // 文件名模糊匹配
}

// DocumentTagsRequest 文档标签更新请求
type DocumentTagsRequest struct {
	Tags string `json:"tags" binding:"required"` // 新的标签，逗号分隔
}

// StoryImportRequest 故事导入请求
type StoryImportRequest struct {
	StoryID string `json:"story_id" binding:"required"` // 故事ID或章节ID
}

// QARequest 问答请求
type QARequest struct {
	Question string                 `json:"question" binding:"required"` // 问题内容
	FileID   string                 `json:"file_id" binding:"omitempty"` // 可选的文件ID，指定从特定文件中回答
	Metadata map[string]interface{} `json:"metadata" binding:"omitempty"`
}

// IndexRebuildRequest 索引重建请求
type IndexRebuildRequest struct {
	Reason string `json:"reason" binding:"omitempty"` // 重建原因
}
