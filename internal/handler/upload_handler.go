package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/service"
	"kb-admin-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

const (
	defaultWatchInterval  = 500 * time.Millisecond
	defaultMaxFiles       = 20
	defaultMaxFileSize    = 50 << 20
	defaultMaxRequestSize = 200 << 20
	wsWriteTimeout        = 10 * time.Second
)

// UploadLimits 限制批量上传请求的规模，零值字段使用默认值。
type UploadLimits struct {
	MaxFiles       int
	MaxFileSize    int64
	MaxRequestSize int64
}

// UploadHandler 负责查重、批量上传和任务进度相关的 API 请求。
type UploadHandler struct {
	duplicateService service.DuplicateService
	uploadService    service.UploadService
	watchInterval    time.Duration
	limits           UploadLimits
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(duplicateService service.DuplicateService, uploadService service.UploadService, limits UploadLimits) *UploadHandler {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = defaultMaxFiles
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = defaultMaxFileSize
	}
	if limits.MaxRequestSize <= 0 {
		limits.MaxRequestSize = defaultMaxRequestSize
	}
	return &UploadHandler{
		duplicateService: duplicateService,
		uploadService:    uploadService,
		watchInterval:    defaultWatchInterval,
		limits:           limits,
	}
}

// CheckDuplicatesRequest 定义了查重 API 的请求体结构。
type CheckDuplicatesRequest struct {
	Files []model.DuplicateCandidate `json:"files" binding:"required,dive"`
}

// CheckDuplicates 返回每个候选文件的查重结果。
func (h *UploadHandler) CheckDuplicates(c *gin.Context) {
	var req CheckDuplicatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("CheckDuplicates: Invalid request payload, error: %v", err)
		badRequest(c, "無效的請求內容")
		return
	}
	reports, err := h.duplicateService.CheckDuplicates(c.Request.Context(), principal(c), req.Files)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, reports)
}

// BatchUploadRequest 定义了只登记元数据的 JSON 批量上传请求体。
type BatchUploadRequest struct {
	Files         []model.UploadFile `json:"files"`
	Categories    map[string]string  `json:"categories"`
	RemoveFileIDs []uint             `json:"removeFileIds"`
}

// BatchUpload 创建上传任务并立即返回任务 ID。
// multipart 请求携带文件内容（files 字段，可重复），categories 与 removeFileIds 以 JSON 字符串提交。
func (h *UploadHandler) BatchUpload(c *gin.Context) {
	if c.Request.ContentLength > h.limits.MaxRequestSize {
		h.requestTooLarge(c)
		return
	}
	var (
		req service.BatchUploadRequest
		err error
	)
	// 未声明长度的请求体在读取超限时报错，不会整体读入内存
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxRequestSize)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, err = h.bindMultipart(c)
	} else {
		var body BatchUploadRequest
		err = c.ShouldBindJSON(&body)
		req = service.BatchUploadRequest{Files: body.Files, Categories: body.Categories, RemoveFileIDs: body.RemoveFileIDs}
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.requestTooLarge(c)
		return
	}
	if err != nil {
		log.Warnf("BatchUpload: Invalid request payload, error: %v", err)
		badRequest(c, "無效的上傳請求："+err.Error())
		return
	}

	taskID, err := h.uploadService.BatchUpload(c.Request.Context(), principal(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	successMessage(c, "上傳任務已建立", gin.H{"taskId": taskID})
}

func (h *UploadHandler) requestTooLarge(c *gin.Context) {
	log.Warnf("BatchUpload: Request body too large, limit: %d", h.limits.MaxRequestSize)
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"code":    http.StatusRequestEntityTooLarge,
		"success": false,
		"message": fmt.Sprintf("上傳內容超過 %d KB 上限", h.limits.MaxRequestSize>>10),
		"data":    nil,
	})
}

func (h *UploadHandler) bindMultipart(c *gin.Context) (service.BatchUploadRequest, error) {
	var req service.BatchUploadRequest
	form, err := c.MultipartForm()
	if err != nil {
		return req, err
	}

	// 先按文件头检查数量，避免读入超额的文件内容
	headers := form.File["files"]
	if len(headers) > h.limits.MaxFiles {
		return req, fmt.Errorf("單次最多上傳 %d 個檔案", h.limits.MaxFiles)
	}
	for _, fh := range headers {
		if fh.Size > h.limits.MaxFileSize {
			return req, fmt.Errorf("檔案 %s 超過大小上限", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return req, err
		}
		content, err := io.ReadAll(io.LimitReader(f, h.limits.MaxFileSize+1))
		_ = f.Close()
		if err != nil {
			return req, err
		}
		req.Files = append(req.Files, model.UploadFile{
			Name:    fh.Filename,
			Size:    int64(len(content)),
			Type:    fh.Header.Get("Content-Type"),
			Content: content,
		})
	}

	if raw := form.Value["categories"]; len(raw) > 0 && raw[0] != "" {
		if err := json.Unmarshal([]byte(raw[0]), &req.Categories); err != nil {
			return req, fmt.Errorf("categories 格式錯誤: %w", err)
		}
	}
	for _, raw := range form.Value["removeFileIds"] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "[") {
			var ids []uint
			if err := json.Unmarshal([]byte(raw), &ids); err != nil {
				return req, fmt.Errorf("removeFileIds 格式錯誤: %w", err)
			}
			req.RemoveFileIDs = append(req.RemoveFileIDs, ids...)
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return req, fmt.Errorf("removeFileIds 格式錯誤: %w", err)
		}
		req.RemoveFileIDs = append(req.RemoveFileIDs, uint(id))
	}
	return req, nil
}

// GetUploadProgress 返回任务当前的快照。
func (h *UploadHandler) GetUploadProgress(c *gin.Context) {
	snap, err := h.uploadService.GetUploadProgress(c.Request.Context(), principal(c), c.Param("taskId"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, snap)
}

// WatchTask 将连接升级为 WebSocket，周期性推送任务快照直到任务结束或客户端断开。
func (h *UploadHandler) WatchTask(c *gin.Context) {
	p := principal(c)
	taskID := c.Param("taskId")

	// 升级前先确认任务存在且属于调用者的部门
	snap, err := h.uploadService.GetUploadProgress(c.Request.Context(), p, taskID)
	if err != nil {
		fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	// 只用于感知客户端关闭
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.watchInterval)
	defer ticker.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(gin.H{"success": true, "data": snap}); err != nil {
			log.Warnf("WatchTask: 推送进度失败, task: %s, error: %v", taskID, err)
			return
		}
		if snap.IsTerminal() {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, snap.Status))
			return
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}

		snap, err = h.uploadService.GetUploadProgress(c.Request.Context(), p, taskID)
		if err != nil {
			_ = conn.WriteJSON(gin.H{"success": false, "message": model.MessageOf(err)})
			return
		}
	}
}
