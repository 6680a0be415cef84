package handler

import (
	"fmt"
	"net/http"
	"time"

	"kb-admin-go/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ActivityHandler 负责活动记录的查询与导出。
type ActivityHandler struct {
	activityService service.ActivityService
}

func NewActivityHandler(activityService service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

// ListActivities 返回调用者部门的最近活动。
func (h *ActivityHandler) ListActivities(c *gin.Context) {
	activities, err := h.activityService.GetActivities(c.Request.Context(), principal(c), intQuery(c, "limit", 0))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, activities)
}

// ListSystemActivities 返回系统活动，可按 departmentId 过滤。
func (h *ActivityHandler) ListSystemActivities(c *gin.Context) {
	deptID, ok := optionalUintQuery(c, "departmentId")
	if !ok {
		return
	}
	activities, err := h.activityService.GetSystemActivities(c.Request.Context(), principal(c), deptID, intQuery(c, "limit", 0))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, activities)
}

// ExportSystemActivities 以 xlsx 附件形式导出系统活动。
func (h *ActivityHandler) ExportSystemActivities(c *gin.Context) {
	deptID, ok := optionalUintQuery(c, "departmentId")
	if !ok {
		return
	}
	data, err := h.activityService.ExportSystemActivities(c.Request.Context(), principal(c), deptID)
	if err != nil {
		fail(c, err)
		return
	}
	filename := fmt.Sprintf("activities_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
