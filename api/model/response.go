package model

import (
	"time"

	"github.com/luochenxi/text-rag-pipeline/internal/models"
	"github.com/luochenxi/text-rag-pipeline/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentUploadResponse 文档上传响应
type DocumentUploadResponse struct {
	FileID   string `json:"file_id"`  // 文件ID
	FileName string `json:"filename"` // 文件名
	Status   string `json:"status"`   // 文档状态
}

// DocumentStatusResponse 文档状态查询响应
type DocumentStatusResponse struct {
	FileID    string `json:"file_id"`            // 文档ID
	Status    string `json:"status"`             // 处理状态
	Stage     string `json:"stage,omitempty"`    // 当前处理阶段
	Progress  int    `json:"progress"`           // 处理进度(0-100)
	FileName  string `json:"filename"`           // 文件名
	Error     string `json:"error,omitempty"`    // 错误信息（如果有）
	Chunks    int    `json:"chunks,omitempty"`   // 分块数量（处理完成后）
	CreatedAt string `json:"created_at"`         // 创建时间
	UpdatedAt string `json:"updated_at"`         // 更新时间
}

// DocumentInfo 文档信息
type DocumentInfo struct {
	FileID     string    `json:"file_id"`            // 文件ID
	FileName   string    `json:"filename"`           // 文件名
	Status     string    `json:"status"`             // 状态
	Source     string    `json:"source"`             // 来源
	StoryID    string    `json:"story_id,omitempty"` // 故事ID（故事来源时）
	Author     string    `json:"author,omitempty"`   // 作者（故事来源时）
	Tags       string    `json:"tags"`               // 标签
	UploadTime time.Time `json:"upload_time"`        // 上传时间
	Chunks     int       `json:"chunks"`             // 分块数量
}

// NewDocumentInfo 从文档模型构建响应信息
func NewDocumentInfo(doc *models.Document) DocumentInfo {
	return DocumentInfo{
		FileID:     doc.ID,
		FileName:   doc.FileName,
		Status:     string(doc.Status),
		Source:     string(doc.Source),
		StoryID:    doc.StoryID,
		Author:     doc.Author,
		Tags:       doc.Tags,
		UploadTime: doc.UploadedAt,
		Chunks:     doc.ChunkCount,
	}
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int64          `json:"total"`     // 总数量
	Page      int            `json:"page"`      // 当前页码
	PageSize  int            `json:"page_size"` // 每页大小
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	FileID  string `json:"file_id"` // 文件ID
}

// StoryImportResponse 故事导入响应
type StoryImportResponse struct {
	StoryID  string `json:"story_id"`          // 故事ID
	FileID   string `json:"file_id,omitempty"` // 导入后的文档ID（同步模式）
	FileName string `json:"filename,omitempty"`
	Status   string `json:"status"` // 导入状态
}

// QASourceInfo 问答来源信息
type QASourceInfo struct {
	Text     string  `json:"text"`     // 相关文本段落
	FileID   string  `json:"file_id"`  // 文件ID
	FileName string  `json:"filename"` // 文件名
	Position int     `json:"position"` // 段落位置
	Score    float32 `json:"score"`    // 相似度分数
}

// QAResponse 问答响应
type QAResponse struct {
	Question string         `json:"question"` // 用户问题
	Answer   string         `json:"answer"`   // 生成的回答
	Sources  []QASourceInfo `json:"sources"`  // 来源信息
}

// ConvertToSourceInfo 将检索结果转换为来源信息
func ConvertToSourceInfo(chunks []services.RetrievedChunk) []QASourceInfo {
	sources := make([]QASourceInfo, len(chunks))
	for i, chunk := range chunks {
		sources[i] = QASourceInfo{
			Text:     chunk.Text,
			FileID:   chunk.FileID,
			FileName: chunk.FileName,
			Position: chunk.Position,
			Score:    chunk.Score,
		}
	}
	return sources
}

// IndexRebuildResponse 索引重建响应
type IndexRebuildResponse struct {
	TaskID string `json:"task_id,omitempty"` // 任务ID（异步模式）
	Status string `json:"status"`            // 任务状态
}
