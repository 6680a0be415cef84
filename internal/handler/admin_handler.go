package handler

import (
	"kb-admin-go/internal/service"
	"kb-admin-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责超级管理员的部门、用户、仪表盘和系统设置 API 请求。
type AdminHandler struct {
	adminService service.AdminService
	userService  service.UserService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService, userService service.UserService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		userService:  userService,
	}
}

func (h *AdminHandler) ListDepartments(c *gin.Context) {
	depts, err := h.adminService.ListDepartments(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, depts)
}

func (h *AdminHandler) GetDepartment(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	dept, err := h.adminService.GetDepartment(c.Request.Context(), principal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, dept)
}

func (h *AdminHandler) CreateDepartment(c *gin.Context) {
	var req service.DepartmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("CreateDepartment: Invalid request payload, error: %v", err)
		badRequest(c, "部門名稱不可為空")
		return
	}
	dept, err := h.adminService.CreateDepartment(c.Request.Context(), principal(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "部門已新增", dept)
}

func (h *AdminHandler) UpdateDepartment(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req service.DepartmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "部門名稱不可為空")
		return
	}
	dept, err := h.adminService.UpdateDepartment(c.Request.Context(), principal(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "部門已更新", dept)
}

// UpdateDepartmentSettings 将请求体中的键合并进部门设置。
func (h *AdminHandler) UpdateDepartmentSettings(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var settings map[string]interface{}
	if err := c.ShouldBindJSON(&settings); err != nil {
		badRequest(c, "無效的設定內容")
		return
	}
	dept, err := h.adminService.UpdateDepartmentSettings(c.Request.Context(), principal(c), id, settings)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "部門設定已更新", dept)
}

func (h *AdminHandler) DeleteDepartment(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.adminService.DeleteDepartment(c.Request.Context(), principal(c), id); err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "部門已刪除", nil)
}

// GetStats 返回仪表盘统计。
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.adminService.GetStats(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, stats)
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.adminService.GetSettings(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, settings)
}

func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var data map[string]interface{}
	if err := c.ShouldBindJSON(&data); err != nil {
		badRequest(c, "無效的設定內容")
		return
	}
	settings, err := h.adminService.UpdateSettings(c.Request.Context(), principal(c), data)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "系統設定已更新", settings)
}

// ListUsers 分页列出用户，支持 departmentId、page、size 查询参数。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	deptID, ok := optionalUintQuery(c, "departmentId")
	if !ok {
		return
	}
	page := intQuery(c, "page", 1)
	size := intQuery(c, "size", 20)
	users, err := h.userService.ListUsers(c.Request.Context(), principal(c), deptID, page, size)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, users)
}

func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req service.UserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("CreateUser: Invalid request payload, error: %v", err)
		badRequest(c, "帳號、電子郵件與角色不可為空")
		return
	}
	user, err := h.userService.CreateUser(c.Request.Context(), principal(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "使用者已新增", user)
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req service.UserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "帳號、電子郵件與角色不可為空")
		return
	}
	user, err := h.userService.UpdateUser(c.Request.Context(), principal(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "使用者已更新", user)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.userService.DeleteUser(c.Request.Context(), principal(c), id); err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "使用者已刪除", nil)
}
