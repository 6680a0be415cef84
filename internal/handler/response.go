// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"kb-admin-go/internal/middleware"
	"kb-admin-go/internal/model"
	"kb-admin-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// statusOf 将业务错误分类映射为 HTTP 状态码。
func statusOf(kind model.ErrorKind) int {
	switch kind {
	case model.KindUnauthenticated:
		return http.StatusUnauthorized
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "success": true, "message": "success", "data": data})
}

func successMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "success": true, "message": message, "data": data})
}

// fail 渲染失败响应，内部错误的细节只写入日志。
func fail(c *gin.Context, err error) {
	kind := model.KindOf(err)
	status := statusOf(kind)
	if kind == model.KindInternal {
		log.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"code": status, "success": false, "message": model.MessageOf(err), "data": nil})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "success": false, "message": message, "data": nil})
}

func principal(c *gin.Context) *model.Principal {
	return middleware.CurrentPrincipal(c)
}

// uintParam 解析路径参数，失败时已写入 400 响应。
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "無效的 "+name+" 參數")
		return 0, false
	}
	return uint(v), true
}

// optionalUintQuery 解析可选的查询参数，参数为空时返回 nil。
func optionalUintQuery(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		badRequest(c, "無效的 "+name+" 參數")
		return nil, false
	}
	id := uint(v)
	return &id, true
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
