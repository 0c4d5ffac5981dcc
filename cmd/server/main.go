// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"toz-go/internal/config"
	"toz-go/internal/handler"
	"toz-go/internal/middleware"
	"toz-go/internal/pipeline"
	"toz-go/internal/repository"
	"toz-go/internal/service"
	"toz-go/pkg/database"
	"toz-go/pkg/log"
	"toz-go/pkg/pdf"
	"toz-go/pkg/storage"
	"toz-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// seedUploader 是启动导入文件时记录的上传者。
const seedUploader = "system"

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	if err := log.Init(cfg.Log); err != nil {
		panic(err)
	}
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 3. 初始化数据库和 Redis
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal("数据库初始化失败", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	var statusRepo repository.StatusRepository
	if cfg.Database.Redis.Addr != "" {
		rdb, err := database.NewRedis(rootCtx, cfg.Database.Redis)
		if err != nil {
			log.Fatal("Redis 初始化失败", err)
		}
		defer rdb.Close()
		statusRepo = repository.NewRedisStatusRepository(rdb)
	} else {
		log.Info("未配置 Redis, 转换状态保存在内存中")
		statusRepo = repository.NewMemoryStatusRepository()
	}

	// 4. 初始化存储
	store, err := storage.NewLocalStore(cfg.Storage.MediaDir)
	if err != nil {
		log.Fatal("存储目录初始化失败", err)
	}
	var mirror pipeline.Mirror
	var cleaner service.ArtifactCleaner
	if cfg.MinIO.Enabled {
		m, err := storage.NewMinioMirror(rootCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		mirror, cleaner = m, m
	}

	// 5. 初始化转换工作池
	inspector := pdf.NewInspector()
	processor := pipeline.NewProcessor(inspector, pdf.NewFitzRenderer(), cfg.Conversion.DPI, mirror)
	pool := pipeline.NewPool(processor, statusRepo, cfg.Conversion.Workers, cfg.Conversion.QueueSize)
	pool.Start(rootCtx)

	// 6. 初始化 Repository 和 Service (依赖注入)
	documentRepo := repository.NewDocumentRepository(db)
	documentService := service.NewDocumentService(documentRepo, statusRepo, store, inspector, pool, cleaner)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// 6.1 导入 seed 目录中的文件，已导入的跳过
	go initSeedFiles(rootCtx, cfg.Storage.SeedDir, documentService)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", handler.NewAuthHandler(jwtManager).Login)
		}

		// Document 路由组，需要认证
		documentHandler := handler.NewDocumentHandler(documentService)
		documents := apiV1.Group("/documents")
		documents.Use(middleware.AuthMiddleware(jwtManager))
		{
			documents.GET("", documentHandler.ListDocuments)
			documents.POST("", documentHandler.UploadDocument)
			documents.DELETE("/:id", documentHandler.DeleteDocument)
			documents.GET("/:id/download", documentHandler.DownloadDocument)
			documents.GET("/:id/review", documentHandler.ReviewDocument)
			documents.GET("/:id/pages/:page", documentHandler.PageImage)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先停止接收请求，再等待转换任务收尾
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP 服务器关闭失败", err)
	}
	if err := pool.Shutdown(ctx); err != nil {
		log.Warnf("转换工作池未能在超时前完成, 剩余任务已取消: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// initSeedFiles 扫描目录下的 PDF 并通过标准上传流程导入（按文件名幂等）。
func initSeedFiles(ctx context.Context, dir string, docService service.DocumentService) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	existing := make(map[string]struct{})
	docs, err := docService.List(ctx)
	if err != nil {
		log.Warnf("initSeedFiles: 读取已有文档失败，跳过初始化导入: %v", err)
		return
	}
	for _, doc := range docs {
		existing[doc.FileName] = struct{}{}
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !strings.EqualFold(filepath.Ext(info.Name()), storage.DefaultExtension) {
			return nil
		}
		if _, ok := existing[info.Name()]; ok {
			log.Infof("initSeedFiles: 已存在，跳过: %s", info.Name())
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			log.Warnf("initSeedFiles: 打开文件失败: %s, err=%v", path, err)
			return nil
		}
		defer f.Close()

		doc, err := docService.Upload(ctx, seedUploader, info.Name(), f)
		if err != nil {
			log.Warnf("initSeedFiles: 导入失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("initSeedFiles: 导入完成并已提交转换: %s (folderId=%s)", doc.FileName, doc.FolderID)
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
}
