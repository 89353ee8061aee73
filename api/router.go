package api

import (
	"github.com/gin-gonic/gin"

	"github.com/luochenxi/text-rag-pipeline/api/handler"
	"github.com/luochenxi/text-rag-pipeline/api/middleware"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	docHandler *handler.DocumentHandler,
	qaHandler *handler.QAHandler,
	storyHandler *handler.StoryHandler,
	taskHandler *handler.TaskHandler,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// 应用全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetTraceID())

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestLogger())
	}

	api := router.Group("/api")
	{
		// 文档管理API
		docGroup := api.Group("/documents")
		{
			// 上传文档 - POST /api/documents
			docGroup.POST("", docHandler.UploadDocument)

			// 获取文档状态 - GET /api/documents/:id/status
			docGroup.GET("/:id/status", docHandler.GetDocumentStatus)

			// 获取文档列表 - GET /api/documents
			docGroup.GET("", docHandler.ListDocuments)

			// 更新文档标签 - PUT /api/documents/:id/tags
			docGroup.PUT("/:id/tags", docHandler.UpdateDocumentTags)

			// 删除文档 - DELETE /api/documents/:id
			docGroup.DELETE("/:id", docHandler.DeleteDocument)

			if taskHandler != nil {
				// 查询文档任务 - GET /api/documents/:id/tasks
				docGroup.GET("/:id/tasks", taskHandler.GetDocumentTasks)
			}
		}

		// 故事导入API
		storyGroup := api.Group("/stories")
		{
			// 导入故事 - POST /api/stories
			storyGroup.POST("", storyHandler.ImportStory)

			// 查询已导入的故事 - GET /api/stories/:id
			storyGroup.GET("/:id", storyHandler.GetStory)
		}

		// 问答API
		qaGroup := api.Group("/qa")
		{
			// 回答问题 - POST /api/qa
			qaGroup.POST("", qaHandler.AnswerQuestion)

			// 清空问答缓存 - DELETE /api/qa/cache
			qaGroup.DELETE("/cache", qaHandler.ClearCache)
		}

		// 任务API
		if taskHandler != nil {
			taskGroup := api.Group("/tasks")
			{
				// 查询任务状态 - GET /api/tasks/:id
				taskGroup.GET("/:id", taskHandler.GetTaskStatus)

				// 触发索引重建 - POST /api/tasks/rebuild-index
				taskGroup.POST("/rebuild-index", taskHandler.RebuildIndex)
			}
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
// 如果需要支持跨域请求，可以启用此中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
