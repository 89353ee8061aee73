package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskDocumentProcess 文档处理完整流程任务（解析、分块、向量化、入库）
	TaskDocumentProcess TaskType = "document_process"
	// TaskStoryImport 故事导入任务（抓取、落盘、处理）
	TaskStoryImport TaskType = "story_import"
	// TaskIndexRebuild 向量索引重建任务
	TaskIndexRebuild TaskType = "index_rebuild"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据，不同任务类型对应不同结构
	Result      json.RawMessage `json:"result"`       // 任务结果数据
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// DocumentProcessPayload 文档处理任务载荷
type DocumentProcessPayload struct {
	DocumentID string            `json:"document_id"` // 文档ID
	FilePath   string            `json:"file_path"`   // 文件存储路径
	FileName   string            `json:"file_name"`   // 文件名
	FileType   string            `json:"file_type"`   // 文件类型
	ChunkSize  int               `json:"chunk_size"`  // 分块大小
	Overlap    int               `json:"overlap"`     // 重叠大小
	SplitType  string            `json:"split_type"`  // 分割类型: paragraph, sentence, length
	Metadata   map[string]string `json:"metadata"`    // 元数据
}

// DocumentProcessResult 文档处理任务结果
type DocumentProcessResult struct {
	DocumentID  string `json:"document_id"`  // 文档ID
	ChunkCount  int    `json:"chunk_count"`  // 分块数量
	VectorCount int    `json:"vector_count"` // 向量数量
	Dimension   int    `json:"dimension"`    // 向量维度
	Chars       int    `json:"chars"`        // 文档字符数
	Error       string `json:"error"`        // 错误信息（如果有）
}

// StoryImportPayload 故事导入任务载荷
type StoryImportPayload struct {
	StoryID   string `json:"story_id"`   // 故事ID
	PartID    string `json:"part_id"`    // 章节ID（与StoryID二选一）
	ChunkSize int    `json:"chunk_size"` // 分块大小
	Overlap   int    `json:"overlap"`    // 重叠大小
}

// StoryImportResult 故事导入任务结果
type StoryImportResult struct {
	DocumentID string `json:"document_id"` // 导入后生成的文档ID
	StoryID    string `json:"story_id"`    // 故事ID
	Title      string `json:"title"`       // 故事标题
	PartCount  int    `json:"part_count"`  // 抓取的章节数量
	ChunkCount int    `json:"chunk_count"` // 分块数量
	Error      string `json:"error"`       // 错误信息（如果有）
}

// IndexRebuildPayload 索引重建任务载荷
type IndexRebuildPayload struct {
	Reason string `json:"reason"` // 重建原因
}

// IndexRebuildResult 索引重建任务结果
type IndexRebuildResult struct {
	DocumentCount int    `json:"document_count"` // 重建涉及的文档数量
	VectorCount   int    `json:"vector_count"`   // 重建后的向量数量
	Error         string `json:"error"`          // 错误信息（如果有）
}
