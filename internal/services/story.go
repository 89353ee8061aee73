package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/luochenxi/text-rag-pipeline/internal/models"
	"github.com/luochenxi/text-rag-pipeline/internal/repository"
	"github.com/luochenxi/text-rag-pipeline/internal/wattpad"
	"github.com/luochenxi/text-rag-pipeline/pkg/taskqueue"
)

// ErrStoryAlreadyImported 故事已导入过
var ErrStoryAlreadyImported = errors.New("story already imported")

// StoryService 故事导入服务
// 从Wattpad拉取故事文本并交给文档服务处理
type StoryService struct {
	fetcher    *wattpad.Fetcher
	docService *DocumentService
	repo       repository.DocumentRepository
	taskQueue  taskqueue.Queue
	async      bool
	logger     *logrus.Logger
}

// StoryOption 故事服务配置选项
type StoryOption func(*StoryService)

// WithStoryTaskQueue 设置任务队列，启用异步导入
func WithStoryTaskQueue(queue taskqueue.Queue) StoryOption {
	return func(s *StoryService) {
		s.taskQueue = queue
		s.async = queue != nil
	}
}

// WithStoryLogger 设置日志记录器
func WithStoryLogger(logger *logrus.Logger) StoryOption {
	return func(s *StoryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStoryService 创建故事导入服务
func NewStoryService(fetcher *wattpad.Fetcher, docService *DocumentService, repo repository.DocumentRepository, opts ...StoryOption) *StoryService {
	srv := &StoryService{
		fetcher:    fetcher,
		docService: docService,
		repo:       repo,
		logger:     logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// ImportStory 导入指定ID的故事
// ID可以是故事ID，也可以是章节ID
// 异步模式下入队后立即返回文档ID为空的占位结果
func (s *StoryService) ImportStory(ctx context.Context, storyID string) (*models.Document, error) {
	if storyID == "" {
		return nil, errors.New("story ID cannot be empty")
	}

	// 去重检查，同一个故事只保留一份
	if existing, err := s.repo.GetByStoryID(storyID); err == nil && existing != nil {
		s.logger.WithFields(logrus.Fields{
			"story_id": storyID,
			"file_id":  existing.ID,
		}).Info("Story already imported")
		return existing, ErrStoryAlreadyImported
	}

	if s.async && s.taskQueue != nil {
		return nil, s.enqueueImport(ctx, storyID)
	}

	return s.ImportStorySync(ctx, storyID)
}

// enqueueImport 将故事导入任务加入队列
func (s *StoryService) enqueueImport(ctx context.Context, storyID string) error {
	payload := taskqueue.StoryImportPayload{
		StoryID: storyID,
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskStoryImport, storyID, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue story import task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"story_id": storyID,
		"task_id":  taskID,
	}).Info("Story import task enqueued")

	return nil
}

// ImportStorySync 同步导入故事
// 拉取正文、登记文档记录，然后走常规的文档处理流程
func (s *StoryService) ImportStorySync(ctx context.Context, storyID string) (*models.Document, error) {
	imported, err := s.fetcher.Import(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch story %s: %w", storyID, err)
	}

	doc := &models.Document{
		ID:       imported.FileID,
		FileName: imported.FileName,
		FileType: "txt",
		FilePath: imported.FilePath,
		FileSize: imported.Size,
		Source:   models.SourceStory,
		StoryID:  imported.StoryID,
		Author:   imported.Author,
		Tags:     strings.Join(imported.Tags, ","),
	}

	if err := s.docService.GetStatusManager().MarkAsUploaded(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to register story document: %w", err)
	}

	if err := s.docService.ProcessDocumentSync(ctx, doc.ID, doc.FilePath); err != nil {
		return doc, fmt.Errorf("failed to process story text: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"story_id":   imported.StoryID,
		"file_id":    doc.ID,
		"title":      imported.Title,
		"part_count": imported.PartCount,
	}).Info("Story imported successfully")

	return doc, nil
}

// GetStory 按故事ID查询已导入的文档
func (s *StoryService) GetStory(ctx context.Context, storyID string) (*models.Document, error) {
	return s.repo.GetByStoryID(storyID)
}
