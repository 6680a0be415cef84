package handler

import (
	"kb-admin-go/internal/service"

	"github.com/gin-gonic/gin"
)

// FileHandler 负责部门知识库文件的 API 请求。
type FileHandler struct {
	fileService service.FileService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(fileService service.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// ListFiles 列出调用者部门的文件，可按 category 查询参数过滤。
func (h *FileHandler) ListFiles(c *gin.Context) {
	files, err := h.fileService.GetFiles(c.Request.Context(), principal(c), c.Query("category"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, files)
}

func (h *FileHandler) DeleteFile(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.fileService.DeleteFile(c.Request.Context(), principal(c), id); err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "檔案已刪除", nil)
}

// UpdateCategoryRequest 定义了修改文件分类的请求体结构。
type UpdateCategoryRequest struct {
	Category string `json:"category" binding:"required"`
}

func (h *FileHandler) UpdateFileCategory(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "分類名稱不可為空")
		return
	}
	file, err := h.fileService.UpdateFileCategory(c.Request.Context(), principal(c), id, req.Category)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, file)
}

// GetDownloadURL 返回文件内容的临时下载链接。
func (h *FileHandler) GetDownloadURL(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	url, err := h.fileService.GetDownloadURL(c.Request.Context(), principal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"downloadUrl": url})
}

func (h *FileHandler) GetSupportedFileTypes(c *gin.Context) {
	success(c, h.fileService.GetSupportedFileTypes())
}
