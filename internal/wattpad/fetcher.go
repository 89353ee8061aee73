package wattpad

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/luochenxi/text-rag-pipeline/pkg/storage"
)

// ImportedStory 故事导入结果
type ImportedStory struct {
	FileID    string   // 存储中的文件ID
	FileName  string   // 文件名
	FilePath  string   // 存储内部路径
	StoryID   string   // 故事ID
	Title     string   // 故事标题
	Author    string   // 作者名
	Tags      []string // 标签
	PartCount int      // 成功抓取的章节数量
	Size      int64    // 合并后的文本大小
}

// Fetcher 故事抓取器
// 抓取故事的全部章节正文，合并为单个文本文件并写入存储
type Fetcher struct {
	client  *Client
	storage storage.Storage
	logger  *logrus.Logger
}

// NewFetcher 创建故事抓取器
func NewFetcher(client *Client, store storage.Storage, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}

	return &Fetcher{
		client:  client,
		storage: store,
		logger:  logger,
	}
}

// Import 按ID导入一个故事
// ID可以是故事ID或章节ID
func (f *Fetcher) Import(ctx context.Context, id string) (*ImportedStory, error) {
	story, err := f.client.ResolveStory(ctx, id)
	if err != nil {
		return nil, err
	}

	if story.IsPaywalled {
		return nil, fmt.Errorf("%w: %s", ErrStoryPaywalled, story.ID)
	}

	f.logger.WithFields(logrus.Fields{
		"story_id": story.ID,
		"title":    story.Title,
		"parts":    len(story.Parts),
	}).Info("Fetching story parts")

	parts := make([]*PartText, 0, len(story.Parts))
	for _, part := range story.Parts {
		text, err := f.client.FetchPartText(ctx, part)
		if err != nil {
			// 单个章节抓取失败不中断整个导入
			f.logger.WithError(err).WithFields(logrus.Fields{
				"story_id": story.ID,
				"part_id":  part.ID,
			}).Warn("Failed to fetch part text, skipping")
			continue
		}
		if text.Text == "" {
			continue
		}
		parts = append(parts, text)
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("story %s has no readable parts", story.ID)
	}

	combined := combineParts(story, parts)
	fileName := fmt.Sprintf("story_%s.txt", story.ID)

	info, err := storage.SaveText(f.storage, combined, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to save story text: %w", err)
	}

	f.logger.WithFields(logrus.Fields{
		"story_id": story.ID,
		"file_id":  info.ID,
		"parts":    len(parts),
		"size":     info.Size,
	}).Info("Story imported to storage")

	return &ImportedStory{
		FileID:    info.ID,
		FileName:  fileName,
		FilePath:  info.Path,
		StoryID:   story.ID,
		Title:     story.Title,
		Author:    story.User.Name,
		Tags:      story.Tags,
		PartCount: len(parts),
		Size:      info.Size,
	}, nil
}

// combineParts 将故事元数据和章节正文合并为单个文本
func combineParts(story *Story, parts []*PartText) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Title: %s\n", story.Title))
	sb.WriteString(fmt.Sprintf("Author: %s\n", story.User.Name))
	if story.Description != "" {
		sb.WriteString(fmt.Sprintf("Description: %s\n", story.Description))
	}

	for i, part := range parts {
		title := part.Title
		if title == "" {
			title = fmt.Sprintf("Part %d", i+1)
		}
		sb.WriteString("\n\n")
		sb.WriteString(title)
		sb.WriteString("\n\n")
		sb.WriteString(part.Text)
	}

	return sb.String()
}
