package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/luochenxi/text-rag-pipeline/pkg/taskqueue"
)

// TaskHandler 队列任务处理器
// 把队列中的任务分派给对应的业务服务
type TaskHandler struct {
	docService   *DocumentService
	storyService *StoryService
	queue        taskqueue.Queue
	logger       *logrus.Logger
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(docService *DocumentService, storyService *StoryService, queue taskqueue.Queue, logger *logrus.Logger) *TaskHandler {
	if logger == nil {
		logger = logrus.New()
	}

	return &TaskHandler{
		docService:   docService,
		storyService: storyService,
		queue:        queue,
		logger:       logger,
	}
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *TaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{
		taskqueue.TaskDocumentProcess,
		taskqueue.TaskStoryImport,
		taskqueue.TaskIndexRebuild,
	}
}

// ProcessTask 处理任务
func (h *TaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	h.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.Type,
	}).Info("Processing task")

	switch task.Type {
	case taskqueue.TaskDocumentProcess:
		return h.handleDocumentProcess(ctx, task)
	case taskqueue.TaskStoryImport:
		return h.handleStoryImport(ctx, task)
	case taskqueue.TaskIndexRebuild:
		return h.handleIndexRebuild(ctx, task)
	default:
		return fmt.Errorf("unsupported task type: %s", task.Type)
	}
}

// handleDocumentProcess 处理文档处理任务
func (h *TaskHandler) handleDocumentProcess(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.DocumentProcessPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}
	if payload.DocumentID == "" || payload.FilePath == "" {
		return fmt.Errorf("%w: missing document_id or file_path", taskqueue.ErrInvalidPayload)
	}

	result := taskqueue.DocumentProcessResult{DocumentID: payload.DocumentID}

	if err := h.docService.ProcessDocumentSync(ctx, payload.DocumentID, payload.FilePath); err != nil {
		result.Error = err.Error()
		h.saveResult(ctx, task.ID, result)
		return err
	}

	count, err := h.docService.CountDocumentChunks(ctx, payload.DocumentID)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to count document chunks")
	}
	result.ChunkCount = count
	result.VectorCount = count

	h.saveResult(ctx, task.ID, result)
	return nil
}

// handleStoryImport 处理故事导入任务
func (h *TaskHandler) handleStoryImport(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.StoryImportPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}

	storyID := payload.StoryID
	if storyID == "" {
		storyID = payload.PartID
	}
	if storyID == "" {
		return fmt.Errorf("%w: missing story_id", taskqueue.ErrInvalidPayload)
	}

	result := taskqueue.StoryImportResult{StoryID: storyID}

	doc, err := h.storyService.ImportStorySync(ctx, storyID)
	if err != nil {
		result.Error = err.Error()
		h.saveResult(ctx, task.ID, result)
		return err
	}

	result.DocumentID = doc.ID
	result.Title = doc.FileName
	result.ChunkCount = doc.ChunkCount

	h.saveResult(ctx, task.ID, result)
	return nil
}

// handleIndexRebuild 处理索引重建任务
func (h *TaskHandler) handleIndexRebuild(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.IndexRebuildPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}

	if payload.Reason != "" {
		h.logger.WithField("reason", payload.Reason).Info("Rebuilding vector index")
	}

	docCount, vectorCount, err := h.docService.RebuildIndex(ctx)
	result := taskqueue.IndexRebuildResult{
		DocumentCount: docCount,
		VectorCount:   vectorCount,
	}
	if err != nil {
		result.Error = err.Error()
		h.saveResult(ctx, task.ID, result)
		return err
	}

	h.saveResult(ctx, task.ID, result)
	return nil
}

// saveResult 把任务结果写回队列存储
// Worker负责最终的状态流转，这里只附加结果数据
func (h *TaskHandler) saveResult(ctx context.Context, taskID string, result interface{}) {
	if h.queue == nil {
		return
	}

	task, err := h.queue.GetTask(ctx, taskID)
	if err != nil {
		h.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to load task for result update")
		return
	}

	if err := h.queue.UpdateTaskStatus(ctx, taskID, task.Status, result, task.Error); err != nil {
		h.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to save task result")
	}
}
