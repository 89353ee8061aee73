package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/luochenxi/text-rag-pipeline/api"
	"github.com/luochenxi/text-rag-pipeline/api/handler"
	"github.com/luochenxi/text-rag-pipeline/api/middleware"
	appconfig "github.com/luochenxi/text-rag-pipeline/config"
	"github.com/luochenxi/text-rag-pipeline/internal/cache"
	"github.com/luochenxi/text-rag-pipeline/internal/database"
	"github.com/luochenxi/text-rag-pipeline/internal/document"
	"github.com/luochenxi/text-rag-pipeline/internal/embedding"
	"github.com/luochenxi/text-rag-pipeline/internal/llm"
	"github.com/luochenxi/text-rag-pipeline/internal/repository"
	"github.com/luochenxi/text-rag-pipeline/internal/services"
	"github.com/luochenxi/text-rag-pipeline/internal/vectordb"
	"github.com/luochenxi/text-rag-pipeline/internal/wattpad"
	"github.com/luochenxi/text-rag-pipeline/pkg/storage"
	"github.com/luochenxi/text-rag-pipeline/pkg/taskqueue"
)

func main() {
	// 加载.env文件中的环境变量（如果存在）
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment variables from .env")
	}

	configFile := flag.String("config", "", "Path to config file")
	mode := flag.String("mode", "release", "Run mode (debug/release)")
	flag.Parse()

	cfg, err := appconfig.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gin.SetMode(*mode)

	logger := setupLogger(cfg)
	logger.Info("Starting text RAG pipeline service...")

	// 数据库
	db, err := database.Open(&database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close(db)

	repo := repository.NewDocumentRepository(db)

	// 文件存储
	fileStorage, err := setupStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 向量数据库
	vectorDB, err := setupVectorDB(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize vector database: %v", err)
	}
	defer vectorDB.Close()

	// 嵌入模型客户端
	embeddingClient, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithDimensions(cfg.Embed.Dimensions),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
	)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	// 大语言模型客户端
	llmClient, err := llm.NewClient(cfg.LLM.Provider,
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}

	ragService := llm.NewRAG(llmClient,
		llm.WithRAGMaxTokens(cfg.LLM.MaxTokens),
		llm.WithRAGTemperature(cfg.LLM.Temperature),
	)

	// 缓存
	cacheService, err := setupCache(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}

	// 任务队列（可选）
	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.Info("Task queue initialized successfully")
	}

	// 文本分段器
	splitter, err := document.NewTextSplitter(document.SplitterConfig{
		ChunkSize:    cfg.Document.ChunkSize,
		ChunkOverlap: cfg.Document.ChunkOverlap,
		Boundary:     document.Boundary(cfg.Document.SplitType),
	})
	if err != nil {
		logger.Fatalf("Invalid splitter config: %v", err)
	}

	// 业务服务
	statusManager := services.NewDocumentStatusManager(repo, logger)

	documentServiceOptions := []services.DocumentOption{
		services.WithStatusManager(statusManager),
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithLogger(logger),
	}
	if queue != nil {
		documentServiceOptions = append(documentServiceOptions,
			services.WithTaskQueue(queue),
			services.WithAsyncProcessing(true),
		)
		logger.Info("Document processing will use async task queue")
	}

	documentService := services.NewDocumentService(
		fileStorage,
		splitter,
		embeddingClient,
		vectorDB,
		repo,
		documentServiceOptions...,
	)

	retriever := services.NewRetrieverService(embeddingClient, vectorDB,
		services.WithTopK(cfg.Search.Limit),
		services.WithRetrieverLogger(logger),
	)

	qaService := services.NewQAService(
		retriever,
		ragService,
		cacheService,
		services.WithSearchLimit(cfg.Search.Limit),
		services.WithMinScore(cfg.Search.MinScore),
		services.WithQALogger(logger),
	)

	// 故事导入服务
	wattpadClient := wattpad.NewClient(&wattpad.Config{
		BaseURL:   cfg.Wattpad.BaseURL,
		UserAgent: cfg.Wattpad.UserAgent,
		Timeout:   cfg.Wattpad.Timeout,
	})
	fetcher := wattpad.NewFetcher(wattpadClient, fileStorage, logger)

	storyServiceOptions := []services.StoryOption{
		services.WithStoryLogger(logger),
	}
	if queue != nil {
		storyServiceOptions = append(storyServiceOptions, services.WithStoryTaskQueue(queue))
	}
	storyService := services.NewStoryService(fetcher, documentService, repo, storyServiceOptions...)

	// 队列工作者
	var worker taskqueue.Worker
	if queue != nil {
		worker, err = setupWorker(queue, documentService, storyService, logger)
		if err != nil {
			logger.Fatalf("Failed to start task worker: %v", err)
		}
		defer worker.Stop()
	}

	// API处理器与路由
	docHandler := handler.NewDocumentHandler(documentService, fileStorage)
	qaHandler := handler.NewQAHandler(qaService)
	storyHandler := handler.NewStoryHandler(storyService)

	var taskHandler *handler.TaskHandler
	if queue != nil {
		taskHandler = handler.NewTaskHandler(queue)
	}

	r := api.SetupRouter(docHandler, qaHandler, storyHandler, taskHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// setupLogger 设置日志系统
// 配置了日志文件时使用lumberjack滚动输出
func setupLogger(cfg *appconfig.Config) *logrus.Logger {
	logger := middleware.GetLogger()

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Log.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
			Compress:   cfg.Log.Compress,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	return logger
}

// setupStorage 设置文件存储服务
func setupStorage(cfg *appconfig.Config) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "minio":
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			Path: cfg.Storage.Path,
		})
	}
}

// setupVectorDB 设置向量数据库
func setupVectorDB(cfg *appconfig.Config) (vectordb.Repository, error) {
	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:              cfg.VectorDB.Type,
		Path:              cfg.VectorDB.Path,
		Dimension:         cfg.VectorDB.Dim,
		DistanceType:      vectordb.DistanceType(cfg.VectorDB.Distance),
		CreateIfNotExists: true,
	})
	if err != nil && cfg.VectorDB.Type != "memory" {
		// 外部索引初始化失败时回退到内存实现
		log.Printf("Warning: Failed to initialize %s vector database: %v", cfg.VectorDB.Type, err)
		log.Printf("Falling back to in-memory vector database")

		return vectordb.NewRepository(vectordb.Config{
			Type:         "memory",
			Dimension:    cfg.VectorDB.Dim,
			DistanceType: vectordb.DistanceType(cfg.VectorDB.Distance),
		})
	}

	return repo, err
}

// setupCache 设置缓存服务
func setupCache(cfg *appconfig.Config) (cache.Cache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.Type = cfg.Cache.Type
	if cfg.Cache.TTL > 0 {
		cacheConfig.DefaultTTL = time.Duration(cfg.Cache.TTL) * time.Second
	}
	if cfg.Cache.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Cache.Address
		cacheConfig.RedisPassword = cfg.Cache.Password
		cacheConfig.RedisDB = cfg.Cache.DB
	}

	return cache.NewCache(cacheConfig)
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg *appconfig.Config, logger *logrus.Logger) (taskqueue.Queue, error) {
	queueConfig := taskqueue.DefaultConfig()
	queueConfig.RedisAddr = cfg.Queue.RedisAddr
	queueConfig.RedisPassword = cfg.Queue.RedisPassword
	queueConfig.RedisDB = cfg.Queue.RedisDB
	queueConfig.Concurrency = cfg.Queue.Concurrency
	queueConfig.RetryLimit = cfg.Queue.RetryLimit
	queueConfig.RetryDelay = time.Duration(cfg.Queue.RetryDelay) * time.Second

	logger.WithFields(logrus.Fields{
		"type":        cfg.Queue.Type,
		"redis_addr":  cfg.Queue.RedisAddr,
		"concurrency": cfg.Queue.Concurrency,
		"retry_limit": cfg.Queue.RetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewQueue(cfg.Queue.Type, queueConfig)
}

// setupWorker 启动队列工作者并注册任务处理器
func setupWorker(queue taskqueue.Queue, docService *services.DocumentService, storyService *services.StoryService, logger *logrus.Logger) (taskqueue.Worker, error) {
	redisQueue, ok := queue.(*taskqueue.RedisQueue)
	if !ok {
		return nil, fmt.Errorf("task worker requires a redis queue, got %T", queue)
	}

	worker := taskqueue.NewRedisWorker(redisQueue, nil)
	taskHandler := services.NewTaskHandler(docService, storyService, queue, logger)
	for _, taskType := range taskHandler.GetTaskTypes() {
		worker.RegisterHandler(taskType, taskHandler)
	}

	if err := worker.Start(); err != nil {
		return nil, err
	}

	return worker, nil
}
