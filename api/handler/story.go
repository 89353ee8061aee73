package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/luochenxi/text-rag-pipeline/api/middleware"
	"github.com/luochenxi/text-rag-pipeline/api/model"
	"github.com/luochenxi/text-rag-pipeline/internal/models"
	"github.com/luochenxi/text-rag-pipeline/internal/services"
	"github.com/luochenxi/text-rag-pipeline/internal/wattpad"
)

// StoryHandler 处理故事导入相关的API请求
type StoryHandler struct {
	storyService *services.StoryService // 故事导入服务
	logger       *logrus.Logger         // 日志记录器
}

// NewStoryHandler 创建新的故事处理器
func NewStoryHandler(storyService *services.StoryService) *StoryHandler {
	return &StoryHandler{
		storyService: storyService,
		logger:       middleware.GetLogger(),
	}
}

// ImportStory 导入故事
// POST /api/stories
func (h *StoryHandler) ImportStory(c *gin.Context) {
	var req model.StoryImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid story import request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	doc, err := h.storyService.ImportStory(c.Request.Context(), req.StoryID)
	switch {
	case errors.Is(err, services.ErrStoryAlreadyImported):
		c.JSON(http.StatusConflict, model.NewErrorResponse(
			http.StatusConflict,
			"故事已导入",
		))
		return

	case errors.Is(err, wattpad.ErrStoryNotFound):
		c.JSON(http.StatusNotFound, model.NewErrorResponse(
			http.StatusNotFound,
			"未找到指定的故事",
		))
		return

	case errors.Is(err, wattpad.ErrStoryPaywalled):
		c.JSON(http.StatusForbidden, model.NewErrorResponse(
			http.StatusForbidden,
			"付费故事不支持导入",
		))
		return

	case err != nil:
		h.logger.WithError(err).WithField("story_id", req.StoryID).Error("Failed to import story")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"导入故事失败: "+err.Error(),
		))
		return
	}

	resp := model.StoryImportResponse{
		StoryID: req.StoryID,
		Status:  string(models.DocStatusProcessing),
	}
	if doc != nil {
		resp.FileID = doc.ID
		resp.FileName = doc.FileName
		resp.Status = string(doc.Status)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetStory 查询已导入的故事
// GET /api/stories/:id
func (h *StoryHandler) GetStory(c *gin.Context) {
	storyID := c.Param("id")
	if storyID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "故事ID不能为空"))
		return
	}

	doc, err := h.storyService.GetStory(c.Request.Context(), storyID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到已导入的故事"))
			return
		}

		h.logger.WithError(err).WithField("story_id", storyID).Error("Failed to get story")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"查询故事失败",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewDocumentInfo(doc)))
}
