package service

import (
	"bytes"
	"context"
	"fmt"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"

	"github.com/xuri/excelize/v2"
)

const defaultActivityLimit = 50

// ActivityService 接口定义了活动记录的查询和导出。
type ActivityService interface {
	// GetActivities 返回调用者所属部门的活动，最新的在前。
	GetActivities(ctx context.Context, p *model.Principal, limit int) ([]model.Activity, error)
	// GetSystemActivities 仅超级管理员可用，deptID 为空时不按部门过滤。
	GetSystemActivities(ctx context.Context, p *model.Principal, deptID *uint, limit int) ([]model.Activity, error)
	ExportSystemActivities(ctx context.Context, p *model.Principal, deptID *uint) ([]byte, error)
}

type activityService struct {
	activityRepo repository.ActivityRepository
	deptRepo     repository.DepartmentRepository
}

func NewActivityService(activityRepo repository.ActivityRepository, deptRepo repository.DepartmentRepository) ActivityService {
	return &activityService{activityRepo: activityRepo, deptRepo: deptRepo}
}

func (s *activityService) GetActivities(ctx context.Context, p *model.Principal, limit int) ([]model.Activity, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	activities, err := s.activityRepo.FindTenant(deptID, limit)
	if err != nil {
		return nil, model.WrapInternal("查詢活動記錄失敗", err)
	}
	return activities, nil
}

func (s *activityService) GetSystemActivities(ctx context.Context, p *model.Principal, deptID *uint, limit int) ([]model.Activity, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	activities, err := s.activityRepo.FindSystem(deptID, limit)
	if err != nil {
		return nil, model.WrapInternal("查詢活動記錄失敗", err)
	}
	return activities, nil
}

var activityTypeLabels = map[string]string{
	model.ActivityUpload:           "上傳檔案",
	model.ActivityDelete:           "刪除檔案",
	model.ActivityCategoryAdd:      "新增分類",
	model.ActivityCategoryDelete:   "刪除分類",
	model.ActivityUserAdd:          "新增使用者",
	model.ActivityUserUpdate:       "更新使用者",
	model.ActivityUserDelete:       "刪除使用者",
	model.ActivityDepartmentAdd:    "新增部門",
	model.ActivityDepartmentUpdate: "更新部門",
	model.ActivityDepartmentDelete: "刪除部門",
	model.ActivitySettingsUpdate:   "更新系統設定",
}

// ExportSystemActivities 将系统活动导出为 xlsx。
func (s *activityService) ExportSystemActivities(ctx context.Context, p *model.Principal, deptID *uint) ([]byte, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	// limit 为 0 时导出全部记录
	activities, err := s.activityRepo.FindSystem(deptID, 0)
	if err != nil {
		return nil, model.WrapInternal("查詢活動記錄失敗", err)
	}

	deptNames := make(map[uint]string)
	if depts, err := s.deptRepo.FindAll(); err == nil {
		for _, d := range depts {
			deptNames[d.ID] = d.Name
		}
	}

	data, err := writeActivitiesXLSX(activities, deptNames)
	if err != nil {
		return nil, model.WrapInternal("匯出活動記錄失敗", err)
	}
	return data, nil
}

const activitySheet = "Activities"

func writeActivitiesXLSX(activities []model.Activity, deptNames map[uint]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(activitySheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	headers := []string{"時間", "類型", "對象", "操作者", "部門"}
	widths := []float64{22, 14, 30, 16, 16}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(activitySheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(activitySheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(activitySheet, col, col, widths[i]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, a := range activities {
		deptName := ""
		if a.DepartmentID != nil {
			deptName = deptNames[*a.DepartmentID]
		}
		label, ok := activityTypeLabels[a.Type]
		if !ok {
			label = a.Type
		}
		row := []interface{}{
			a.Timestamp.Format("2006-01-02 15:04:05"),
			label,
			a.Subject(),
			a.Actor,
			deptName,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(activitySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// 冻结表头
	if err := f.SetPanes(activitySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}
