package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/luochenxi/text-rag-pipeline/internal/document"
	"github.com/luochenxi/text-rag-pipeline/internal/embedding"
	"github.com/luochenxi/text-rag-pipeline/internal/models"
	"github.com/luochenxi/text-rag-pipeline/internal/repository"
	"github.com/luochenxi/text-rag-pipeline/internal/vectordb"
	"github.com/luochenxi/text-rag-pipeline/pkg/storage"
	"github.com/luochenxi/text-rag-pipeline/pkg/taskqueue"
)

// DocumentService 文档服务
// 负责协调文档解析、分块、向量化和入库
type DocumentService struct {
	storage       storage.Storage               // 文件存储服务
	splitter      document.Splitter             // 文本分块器
	embedder      embedding.Client              // 嵌入模型客户端
	batcher       *embedding.BatchProcessor     // 并行批量嵌入处理器
	vectorDB      vectordb.Repository           // 向量数据库
	repo          repository.DocumentRepository // 文档元数据存储
	statusManager *DocumentStatusManager        // 文档状态管理器
	taskQueue     taskqueue.Queue               // 任务队列
	asyncEnabled  bool                          // 是否启用异步处理
	batchSize     int                           // 批处理大小
	timeout       time.Duration                 // 处理超时时间
	logger        *logrus.Logger                // 日志记录器
}

// DocumentOption 文档服务配置选项
type DocumentOption func(*DocumentService)

// NewDocumentService 创建一个新的文档服务
func NewDocumentService(
	store storage.Storage,
	splitter document.Splitter,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	repo repository.DocumentRepository,
	opts ...DocumentOption,
) *DocumentService {
	srv := &DocumentService{
		storage:   store,
		splitter:  splitter,
		embedder:  embedder,
		vectorDB:  vectorDB,
		repo:      repo,
		batchSize: 16,
		timeout:   time.Minute * 5,
		logger:    logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.statusManager == nil {
		srv.statusManager = NewDocumentStatusManager(srv.repo, srv.logger)
	}
	if srv.batcher == nil {
		srv.batcher = embedding.NewBatchProcessor(srv.embedder, srv.batchSize, 4)
	}

	return srv
}

// WithBatchSize 设置批处理大小
func WithBatchSize(size int) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *DocumentStatusManager) DocumentOption {
	return func(s *DocumentService) {
		s.statusManager = manager
	}
}

// WithBatchProcessor 设置批量嵌入处理器
func WithBatchProcessor(batcher *embedding.BatchProcessor) DocumentOption {
	return func(s *DocumentService) {
		s.batcher = batcher
	}
}

// WithTaskQueue 设置任务队列
func WithTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithAsyncProcessing 设置是否启用异步处理
func WithAsyncProcessing(enabled bool) DocumentOption {
	return func(s *DocumentService) {
		s.asyncEnabled = enabled
	}
}

// RegisterUpload 登记上传的文档
func (s *DocumentService) RegisterUpload(ctx context.Context, info storage.FileInfo) (*models.Document, error) {
	doc := &models.Document{
		ID:       info.ID,
		FileName: info.Name,
		FileType: strings.TrimPrefix(filepath.Ext(info.Name), "."),
		FilePath: info.Path,
		FileSize: info.Size,
		Source:   models.SourceUpload,
	}

	if err := s.statusManager.MarkAsUploaded(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	return doc, nil
}

// ProcessDocument 处理文档(解析、分块、向量化、入库)
func (s *DocumentService) ProcessDocument(ctx context.Context, fileID string, filePath string) error {
	if fileID == "" {
		return errors.New("fileID cannot be empty")
	}
	if filePath == "" {
		return errors.New("filePath cannot be empty")
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":   fileID,
		"file_path": filePath,
	}).Info("Starting document processing")

	if s.asyncEnabled && s.taskQueue != nil {
		return s.processDocumentAsync(ctx, fileID, filePath)
	}

	return s.ProcessDocumentSync(ctx, fileID, filePath)
}

// processDocumentAsync 将文档处理任务加入队列并立即返回
func (s *DocumentService) processDocumentAsync(ctx context.Context, fileID string, filePath string) error {
	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
	}

	fileName := filepath.Base(filePath)
	payload := taskqueue.DocumentProcessPayload{
		DocumentID: fileID,
		FilePath:   filePath,
		FileName:   fileName,
		FileType:   strings.TrimPrefix(filepath.Ext(fileName), "."),
		Metadata: map[string]string{
			"source": "api",
		},
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentProcess, fileID, payload)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to enqueue processing task: %v", err))
		return fmt.Errorf("failed to enqueue processing task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"task_id": taskID,
	}).Info("Document processing task enqueued")

	return nil
}

// ProcessDocumentSync 同步处理文档
// 在当前进程中完成解析、分块、向量化和入库
func (s *DocumentService) ProcessDocumentSync(ctx context.Context, fileID string, filePath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		// 异步路径下文档可能已是处理中状态
		if !errors.Is(err, ErrInvalidTransition) {
			s.logger.WithError(err).Error("Failed to mark document as processing")
		}
	}

	// 解析
	if err := s.statusManager.UpdateStage(ctx, fileID, models.StageParsing, 10); err != nil {
		s.logger.WithError(err).Warn("Failed to update document stage")
	}

	content, err := s.parseDocument(filePath, fileID)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to parse document: %v", err))
		return fmt.Errorf("failed to parse document: %w", err)
	}

	// 分块
	if err := s.statusManager.UpdateStage(ctx, fileID, models.StageChunking, 20); err != nil {
		s.logger.WithError(err).Warn("Failed to update document stage")
	}

	chunks, err := s.splitter.Split(content)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to split content: %v", err))
		return fmt.Errorf("failed to split content: %w", err)
	}

	if len(chunks) == 0 {
		s.failDocument(ctx, fileID, "document produced no text chunks")
		return fmt.Errorf("document %s produced no text chunks", fileID)
	}

	// 向量化
	if err := s.statusManager.UpdateStage(ctx, fileID, models.StageEmbedding, 40); err != nil {
		s.logger.WithError(err).Warn("Failed to update document stage")
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := s.batcher.Process(ctx, texts)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to generate embeddings: %v", err))
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	// 入库
	if err := s.statusManager.UpdateStage(ctx, fileID, models.StageIndexing, 70); err != nil {
		s.logger.WithError(err).Warn("Failed to update document stage")
	}

	if err := s.indexChunks(ctx, fileID, filePath, chunks, vectors); err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to index chunks: %v", err))
		return fmt.Errorf("failed to index chunks: %w", err)
	}

	if err := s.statusManager.MarkAsCompleted(ctx, fileID, len(chunks)); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as completed")
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":     fileID,
		"chunk_count": len(chunks),
	}).Info("Document processing completed successfully")

	return nil
}

// parseDocument 从存储中读取并解析文档内容
func (s *DocumentService) parseDocument(filePath string, fileID string) (string, error) {
	s.logger.WithField("file_path", filePath).Debug("Parsing document")

	reader, err := s.storage.Get(fileID)
	if err != nil {
		return "", fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	parser, err := document.ParserFactory(filePath)
	if err != nil {
		return "", err
	}

	return parser.ParseReader(reader, filePath)
}

// indexChunks 将分块及其向量写入向量库和元数据库
func (s *DocumentService) indexChunks(ctx context.Context, fileID string, filePath string, chunks []document.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk count %d does not match vector count %d", len(chunks), len(vectors))
	}

	fileName := filepath.Base(filePath)
	totalBatches := (len(chunks) + s.batchSize - 1) / s.batchSize
	processed := 0

	for i := 0; i < len(chunks); i += s.batchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := i + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		docs := make([]vectordb.Document, end-i)
		dbChunks := make([]*models.DocumentChunk, end-i)

		for j := i; j < end; j++ {
			chunkID := fmt.Sprintf("%s_%d", fileID, chunks[j].Index)

			docs[j-i] = vectordb.Document{
				ID:        chunkID,
				FileID:    fileID,
				FileName:  fileName,
				Position:  chunks[j].Index,
				Text:      chunks[j].Text,
				Vector:    vectors[j],
				CreatedAt: time.Now(),
				Metadata: map[string]interface{}{
					"source": filePath,
					"index":  chunks[j].Index,
				},
			}

			dbChunks[j-i] = &models.DocumentChunk{
				DocumentID: fileID,
				ChunkID:    chunkID,
				Position:   chunks[j].Index,
				Text:       chunks[j].Text,
				VectorID:   chunkID,
			}
		}

		if err := s.vectorDB.AddBatch(docs); err != nil {
			return fmt.Errorf("failed to store vectors: %w", err)
		}

		if err := s.repo.SaveChunks(dbChunks); err != nil {
			// 元数据记录失败不影响向量检索
			s.logger.WithError(err).Error("Failed to save chunks to database")
		}

		processed++
		progress := 70 + int(float64(processed)/float64(totalBatches)*25)
		if err := s.statusManager.UpdateStage(ctx, fileID, models.StageIndexing, progress); err != nil {
			s.logger.WithError(err).Warn("Failed to update document progress")
		}
	}

	return nil
}

// RebuildIndex 从元数据库重建整个向量索引
// 重新向量化所有已完成文档的分块后一次性建库
func (s *DocumentService) RebuildIndex(ctx context.Context) (int, int, error) {
	docs, _, err := s.repo.List(0, 10000, map[string]interface{}{
		"status": models.DocStatusCompleted,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list documents: %w", err)
	}

	var entries []vectordb.Document
	for _, doc := range docs {
		chunks, err := s.repo.GetChunks(doc.ID)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to load chunks for %s: %w", doc.ID, err)
		}
		if len(chunks) == 0 {
			continue
		}

		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}

		vectors, err := s.batcher.Process(ctx, texts)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to embed chunks for %s: %w", doc.ID, err)
		}

		for i, chunk := range chunks {
			entries = append(entries, vectordb.Document{
				ID:        chunk.ChunkID,
				FileID:    doc.ID,
				FileName:  doc.FileName,
				Position:  chunk.Position,
				Text:      chunk.Text,
				Vector:    vectors[i],
				CreatedAt: chunk.CreatedAt,
				Metadata: map[string]interface{}{
					"source": doc.FilePath,
					"index":  chunk.Position,
				},
			})
		}
	}

	if err := s.vectorDB.Build(entries); err != nil {
		return 0, 0, fmt.Errorf("failed to rebuild index: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"documents": len(docs),
		"vectors":   len(entries),
	}).Info("Vector index rebuilt")

	return len(docs), len(entries), nil
}

// DeleteDocument 删除文档及其相关数据
func (s *DocumentService) DeleteDocument(ctx context.Context, fileID string) error {
	s.logger.WithField("file_id", fileID).Info("Deleting document")

	// 1. 从向量数据库中删除
	if err := s.vectorDB.DeleteByFileID(fileID); err != nil {
		s.logger.WithError(err).Error("Failed to delete document vectors")
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	// 2. 从存储中删除文件，文件可能已不存在
	if err := s.storage.Delete(fileID); err != nil {
		s.logger.WithError(err).Warn("Failed to delete file from storage")
	}

	// 3. 删除队列中的相关任务
	if s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
		if err == nil {
			for _, task := range tasks {
				if err := s.taskQueue.DeleteTask(ctx, task.ID); err != nil {
					s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to delete document task")
				}
			}
		}
	}

	// 4. 删除元数据记录
	if err := s.statusManager.DeleteDocument(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to delete document record")
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	s.logger.WithField("file_id", fileID).Info("Document deleted successfully")
	return nil
}

// GetDocument 获取文档元数据
func (s *DocumentService) GetDocument(ctx context.Context, fileID string) (*models.Document, error) {
	return s.statusManager.GetDocument(ctx, fileID)
}

// GetDocumentStatus 获取文档处理状态
func (s *DocumentService) GetDocumentStatus(ctx context.Context, fileID string) (models.DocumentStatus, error) {
	return s.statusManager.GetStatus(ctx, fileID)
}

// GetDocumentTasks 获取文档相关的任务
func (s *DocumentService) GetDocumentTasks(ctx context.Context, fileID string) ([]*taskqueue.Task, error) {
	if s.taskQueue == nil {
		return nil, errors.New("task queue not configured")
	}

	return s.taskQueue.GetTasksByDocument(ctx, fileID)
}

// WaitForDocumentProcessing 等待文档处理完成
func (s *DocumentService) WaitForDocumentProcessing(ctx context.Context, fileID string, timeout time.Duration) error {
	if !s.asyncEnabled || s.taskQueue == nil {
		status, err := s.statusManager.GetStatus(ctx, fileID)
		if err != nil {
			return err
		}
		if status == models.DocStatusFailed {
			return fmt.Errorf("document processing failed")
		}
		if status != models.DocStatusCompleted {
			return fmt.Errorf("document not processed")
		}
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document tasks: %w", err)
	}

	var latestTask *taskqueue.Task
	for _, task := range tasks {
		if task.Type != taskqueue.TaskDocumentProcess {
			continue
		}
		if latestTask == nil || task.CreatedAt.After(latestTask.CreatedAt) {
			latestTask = task
		}
	}

	if latestTask == nil {
		return fmt.Errorf("no processing task found for document %s", fileID)
	}

	if _, err := s.taskQueue.WaitForTask(ctx, latestTask.ID, timeout); err != nil {
		return fmt.Errorf("failed to wait for document processing: %w", err)
	}

	status, err := s.statusManager.GetStatus(ctx, fileID)
	if err != nil {
		return err
	}
	if status == models.DocStatusFailed {
		return fmt.Errorf("document processing failed")
	}
	if status != models.DocStatusCompleted {
		return fmt.Errorf("document processing incomplete")
	}

	return nil
}

// CountDocumentChunks 统计文档分块数量
func (s *DocumentService) CountDocumentChunks(ctx context.Context, fileID string) (int, error) {
	return s.repo.CountChunks(fileID)
}

// ListDocuments 获取文档列表
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return s.statusManager.ListDocuments(ctx, offset, limit, filters)
}

// UpdateDocumentTags 更新文档标签
func (s *DocumentService) UpdateDocumentTags(ctx context.Context, fileID string, tags string) error {
	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	doc.Tags = tags
	return s.repo.Update(doc)
}

// failDocument 将文档标记为失败状态
func (s *DocumentService) failDocument(ctx context.Context, fileID string, errorMsg string) {
	if err := s.statusManager.MarkAsFailed(ctx, fileID, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"file_id": fileID,
			"error":   err,
		}).Error("Failed to mark document as failed")
	}
}

// GetStatusManager 返回文档状态管理器实例
func (s *DocumentService) GetStatusManager() *DocumentStatusManager {
	return s.statusManager
}

// GetTaskQueue 返回任务队列实例
func (s *DocumentService) GetTaskQueue() taskqueue.Queue {
	return s.taskQueue
}
