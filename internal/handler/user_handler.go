package handler

import (
	"kb-admin-go/internal/service"
	"kb-admin-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责登录和当前用户信息。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// LoginRequest 定义了用户登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		badRequest(c, "帳號和密碼不可為空")
		return
	}

	result, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "登入成功", result)
}

// GetProfile 获取当前登录用户的信息。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.userService.GetProfile(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, user)
}

// CheckPermission 返回当前用户是否具备 role 查询参数指定的角色等级。
func (h *UserHandler) CheckPermission(c *gin.Context) {
	success(c, service.CheckPermission(principal(c), c.DefaultQuery("role", "admin")))
}
