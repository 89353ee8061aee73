package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/luochenxi/text-rag-pipeline/api/middleware"
	"github.com/luochenxi/text-rag-pipeline/api/model"
	"github.com/luochenxi/text-rag-pipeline/internal/services"
)

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	qaService *services.QAService // 问答服务
	logger    *logrus.Logger      // 日志记录器
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(qaService *services.QAService) *QAHandler {
	return &QAHandler{
		qaService: qaService,
		logger:    middleware.GetLogger(),
	}
}

// AnswerQuestion 处理问答请求
// POST /api/qa
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid question request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	var (
		answer string
		chunks []services.RetrievedChunk
		err    error
	)
	ctx := c.Request.Context()

	switch {
	case req.FileID != "":
		h.logger.WithFields(logrus.Fields{
			"question": req.Question,
			"file_id":  req.FileID,
		}).Info("Question with specific file")
		answer, chunks, err = h.qaService.AnswerWithFile(ctx, req.Question, req.FileID)

	case len(req.Metadata) > 0:
		h.logger.WithFields(logrus.Fields{
			"question": req.Question,
			"metadata": req.Metadata,
		}).Info("Question with metadata filter")
		answer, chunks, err = h.qaService.AnswerWithMetadata(ctx, req.Question, req.Metadata)

	default:
		h.logger.WithField("question", req.Question).Info("General question")
		answer, chunks, err = h.qaService.Answer(ctx, req.Question)
	}

	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"question": req.Question,
		}).Error("Failed to answer question")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"处理问题时出错: "+err.Error(),
		))
		return
	}

	resp := model.QAResponse{
		Question: req.Question,
		Answer:   answer,
		Sources:  model.ConvertToSourceInfo(chunks),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ClearCache 清空问答缓存
// DELETE /api/qa/cache
func (h *QAHandler) ClearCache(c *gin.Context) {
	if err := h.qaService.ClearCache(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to clear QA cache")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"清空缓存失败",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"cleared": true}))
}
