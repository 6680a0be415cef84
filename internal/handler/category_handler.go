package handler

import (
	"kb-admin-go/internal/service"
	"kb-admin-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// CategoryHandler 负责部门分类的 API 请求。
type CategoryHandler struct {
	categoryService service.CategoryService
}

func NewCategoryHandler(categoryService service.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

func (h *CategoryHandler) ListCategories(c *gin.Context) {
	categories, err := h.categoryService.GetCategories(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, categories)
}

// AddCategoryRequest 定义了新增分类的请求体结构。
type AddCategoryRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

func (h *CategoryHandler) AddCategory(c *gin.Context) {
	var req AddCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("AddCategory: Invalid request payload, error: %v", err)
		badRequest(c, "分類名稱不可為空")
		return
	}
	category, err := h.categoryService.AddCategory(c.Request.Context(), principal(c), req.Name, req.Color)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "分類已新增", category)
}

// DeleteCategory 删除分类，响应消息说明被移到"未分類"的文件数量。
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	message, err := h.categoryService.DeleteCategory(c.Request.Context(), principal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, message, nil)
}
