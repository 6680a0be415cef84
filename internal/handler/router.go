package handler

import (
	"kb-admin-go/internal/metrics"
	"kb-admin-go/internal/middleware"
	"kb-admin-go/internal/model"
	"kb-admin-go/internal/service"
	"kb-admin-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Services 汇集路由需要的所有业务服务。
type Services struct {
	Users      service.UserService
	Admin      service.AdminService
	Duplicates service.DuplicateService
	Uploads    service.UploadService
	Files      service.FileService
	Categories service.CategoryService
	Activities service.ActivityService
}

// RouterOptions 控制路由层的横切行为。
type RouterOptions struct {
	LoginRatePerMinute int
	Metrics            *metrics.Metrics
	Upload             UploadLimits
}

// NewRouter 注册所有 API 路由。
func NewRouter(svc Services, jwtManager *token.JWTManager, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(opts.Metrics), gin.Recovery())

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	userHandler := NewUserHandler(svc.Users)
	uploadHandler := NewUploadHandler(svc.Duplicates, svc.Uploads, opts.Upload)
	fileHandler := NewFileHandler(svc.Files)
	categoryHandler := NewCategoryHandler(svc.Categories)
	activityHandler := NewActivityHandler(svc.Activities)
	adminHandler := NewAdminHandler(svc.Admin, svc.Users)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/login", middleware.RateLimit(opts.LoginRatePerMinute), userHandler.Login)

		authed := api.Group("")
		authed.Use(middleware.AuthMiddleware(jwtManager, svc.Users))
		{
			authed.GET("/auth/profile", userHandler.GetProfile)
			authed.GET("/auth/permission", userHandler.CheckPermission)
		}

		// 部门管理员及以上，数据范围为调用者所属部门
		tenant := api.Group("")
		tenant.Use(middleware.AuthMiddleware(jwtManager, svc.Users), middleware.RequireRole(model.RoleAdmin))
		{
			upload := tenant.Group("/upload")
			{
				upload.POST("/check-duplicates", uploadHandler.CheckDuplicates)
				upload.POST("/batch", uploadHandler.BatchUpload)
				upload.GET("/tasks/:taskId", uploadHandler.GetUploadProgress)
				upload.GET("/tasks/:taskId/watch", uploadHandler.WatchTask)
			}

			files := tenant.Group("/files")
			{
				files.GET("", fileHandler.ListFiles)
				files.GET("/supported-types", fileHandler.GetSupportedFileTypes)
				files.DELETE("/:id", fileHandler.DeleteFile)
				files.PUT("/:id/category", fileHandler.UpdateFileCategory)
				files.GET("/:id/download", fileHandler.GetDownloadURL)
			}

			categories := tenant.Group("/categories")
			{
				categories.GET("", categoryHandler.ListCategories)
				categories.POST("", categoryHandler.AddCategory)
				categories.DELETE("/:id", categoryHandler.DeleteCategory)
			}

			tenant.GET("/activities", activityHandler.ListActivities)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager, svc.Users), middleware.RequireRole(model.RoleSuperAdmin))
		{
			admin.GET("/stats", adminHandler.GetStats)

			departments := admin.Group("/departments")
			{
				departments.GET("", adminHandler.ListDepartments)
				departments.POST("", adminHandler.CreateDepartment)
				departments.GET("/:id", adminHandler.GetDepartment)
				departments.PUT("/:id", adminHandler.UpdateDepartment)
				departments.PUT("/:id/settings", adminHandler.UpdateDepartmentSettings)
				departments.DELETE("/:id", adminHandler.DeleteDepartment)
			}

			users := admin.Group("/users")
			{
				users.GET("", adminHandler.ListUsers)
				users.POST("", adminHandler.CreateUser)
				users.PUT("/:id", adminHandler.UpdateUser)
				users.DELETE("/:id", adminHandler.DeleteUser)
			}

			admin.GET("/activities", activityHandler.ListSystemActivities)
			admin.GET("/activities/export", activityHandler.ExportSystemActivities)

			admin.GET("/settings", adminHandler.GetSettings)
			admin.PUT("/settings", adminHandler.UpdateSettings)
		}
	}
	return r
}
