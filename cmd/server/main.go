// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kb-admin-go/internal/config"
	"kb-admin-go/internal/handler"
	"kb-admin-go/internal/metrics"
	"kb-admin-go/internal/pipeline"
	"kb-admin-go/internal/repository"
	"kb-admin-go/internal/repository/memory"
	"kb-admin-go/internal/service"
	"kb-admin-go/pkg/database"
	"kb-admin-go/pkg/es"
	"kb-admin-go/pkg/kafka"
	"kb-admin-go/pkg/lock"
	"kb-admin-go/pkg/log"
	"kb-admin-go/pkg/storage"
	"kb-admin-go/pkg/tika"
	"kb-admin-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// repositories 汇集一种存储后端下的全部 repository。
type repositories struct {
	departments repository.DepartmentRepository
	users       repository.UserRepository
	categories  repository.CategoryRepository
	files       repository.FileRepository
	activities  repository.ActivityRepository
	settings    repository.SettingsRepository
}

func openRepositories(cfg config.DatabaseConfig) (repositories, error) {
	if cfg.Driver == "" || cfg.Driver == "memory" {
		store := memory.NewStore()
		return repositories{
			departments: store.Departments(),
			users:       store.Users(),
			categories:  store.Categories(),
			files:       store.Files(),
			activities:  store.Activities(),
			settings:    store.Settings(),
		}, nil
	}

	db, err := database.OpenDB(cfg)
	if err != nil {
		return repositories{}, err
	}
	if err := repository.AutoMigrate(db); err != nil {
		return repositories{}, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return repositories{
		departments: repository.NewDepartmentRepository(db),
		users:       repository.NewUserRepository(db),
		categories:  repository.NewCategoryRepository(db),
		files:       repository.NewFileRepository(db),
		activities:  repository.NewActivityRepository(db),
		settings:    repository.NewSettingsRepository(db),
	}, nil
}

func main() {
	configPath := os.Getenv("KBADMIN_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 初始化存储
	repos, err := openRepositories(cfg.Database)
	if err != nil {
		log.Fatal("初始化存储失败", err)
	}
	log.Infof("存储后端: %s", cfg.Database.Driver)

	var rdb *redis.Client
	if cfg.Database.Redis.Addr != "" {
		rdb, err = database.OpenRedis(rootCtx, cfg.Database.Redis)
		if err != nil {
			log.Fatal("连接 Redis 失败", err)
		}
		defer rdb.Close()
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Upload.LockBackend == "redis" {
		if rdb == nil {
			log.Fatalf("upload.lock_backend=redis 需要配置 database.redis.addr")
		}
		locker = lock.NewRedisLocker(rdb, cfg.Upload.LockTTL)
	}

	var taskRepo repository.TaskRepository = memory.NewTaskRepository(cfg.Upload.TaskTTL)
	if cfg.Upload.TaskBackend == "redis" {
		if rdb == nil {
			log.Fatalf("upload.task_backend=redis 需要配置 database.redis.addr")
		}
		taskRepo = repository.NewRedisTaskRepository(rdb, cfg.Upload.TaskTTL)
	}

	var objects storage.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinioStore(rootCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("初始化 MinIO 失败", err)
		}
		objects = minioStore
	}

	// 4. 文件事件：Kafka 生产者，以及可选的 Elasticsearch 索引消费者
	var publisher kafka.EventPublisher = kafka.NopPublisher{}
	if cfg.Kafka.Brokers != "" {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer

		if cfg.Elasticsearch.Addresses != "" {
			esClient, err := es.NewClient(cfg.Elasticsearch)
			if err != nil {
				log.Fatal("初始化 Elasticsearch 失败", err)
			}
			var (
				reader    pipeline.ObjectReader
				extractor pipeline.TextExtractor
			)
			if objects != nil && cfg.Tika.ServerURL != "" {
				reader, extractor = objects, tika.NewClient(cfg.Tika)
			}
			consumer := kafka.NewConsumer(cfg.Kafka, rdb, pipeline.NewProcessor(esClient, reader, extractor))
			go consumer.Run(rootCtx)
		}
	}

	// 5. 初始化 Service (依赖注入)
	m := metrics.New()
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	uploadService := service.NewUploadService(repos.departments, repos.files, repos.categories, repos.activities, taskRepo, locker, objects, publisher, m,
		service.UploadOptionsFromConfig(cfg.Upload))
	adminService := service.NewAdminService(repos.departments, repos.users, repos.categories, repos.files, repos.activities, repos.settings, locker, uploadService)
	userService := service.NewUserService(repos.users, repos.departments, repos.activities, jwtManager)

	if err := service.Seed(rootCtx, cfg.Seed, repos.users, repos.departments, adminService); err != nil {
		log.Fatal("初始化种子数据失败", err)
	}

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Services{
		Users:      userService,
		Admin:      adminService,
		Duplicates: service.NewDuplicateService(repos.files),
		Uploads:    uploadService,
		Files:      service.NewFileService(repos.files, repos.categories, repos.activities, locker, objects, publisher),
		Categories: service.NewCategoryService(repos.categories, repos.files, repos.activities, locker, publisher),
		Activities: service.NewActivityService(repos.activities, repos.departments),
	}, jwtManager, handler.RouterOptions{
		LoginRatePerMinute: cfg.Server.LoginRatePerMinute,
		Metrics:            m,
		Upload: handler.UploadLimits{
			MaxFiles:       cfg.Upload.MaxFiles,
			MaxFileSize:    cfg.Upload.MaxFileSize,
			MaxRequestSize: cfg.Upload.MaxRequestSize,
		},
	})

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	// 未处理完的文件会被标记为失败，任务以 partial 结束
	if err := uploadService.Shutdown(ctx); err != nil {
		log.Errorf("上传任务未能在超时前结束: %v", err)
	}
	stop()
	log.Info("服务已优雅关闭")
}
