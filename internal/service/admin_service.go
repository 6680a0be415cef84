// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"
	"kb-admin-go/pkg/lock"
	"kb-admin-go/pkg/log"

	"gorm.io/gorm"
)

// DepartmentInput 是创建和编辑部门的表单。
type DepartmentInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// AdminService 接口定义了超级管理员的部门、仪表盘和系统设置操作。
type AdminService interface {
	ListDepartments(ctx context.Context, p *model.Principal) ([]model.Department, error)
	GetDepartment(ctx context.Context, p *model.Principal, deptID uint) (*model.Department, error)
	CreateDepartment(ctx context.Context, p *model.Principal, in DepartmentInput) (*model.Department, error)
	UpdateDepartment(ctx context.Context, p *model.Principal, deptID uint, in DepartmentInput) (*model.Department, error)
	UpdateDepartmentSettings(ctx context.Context, p *model.Principal, deptID uint, settings map[string]interface{}) (*model.Department, error)
	DeleteDepartment(ctx context.Context, p *model.Principal, deptID uint) error
	GetStats(ctx context.Context, p *model.Principal) (*model.DashboardStats, error)

	GetSettings(ctx context.Context, p *model.Principal) (*model.SystemSettings, error)
	UpdateSettings(ctx context.Context, p *model.Principal, data map[string]interface{}) (*model.SystemSettings, error)
}

// ActiveTaskCounter 报告部门内尚未结束的上传任务数，由 UploadService 实现。
type ActiveTaskCounter interface {
	ActiveTasks(deptID uint) int
}

type adminService struct {
	deptRepo     repository.DepartmentRepository
	userRepo     repository.UserRepository
	categoryRepo repository.CategoryRepository
	fileRepo     repository.FileRepository
	activityRepo repository.ActivityRepository
	settingsRepo repository.SettingsRepository
	locker       lock.Locker
	tasks        ActiveTaskCounter
}

// NewAdminService 创建一个新的 AdminService 实例。tasks 为 nil 时删除部门不检查上传任务。
func NewAdminService(
	deptRepo repository.DepartmentRepository,
	userRepo repository.UserRepository,
	categoryRepo repository.CategoryRepository,
	fileRepo repository.FileRepository,
	activityRepo repository.ActivityRepository,
	settingsRepo repository.SettingsRepository,
	locker lock.Locker,
	tasks ActiveTaskCounter,
) AdminService {
	return &adminService{
		deptRepo:     deptRepo,
		userRepo:     userRepo,
		categoryRepo: categoryRepo,
		fileRepo:     fileRepo,
		activityRepo: activityRepo,
		settingsRepo: settingsRepo,
		locker:       locker,
		tasks:        tasks,
	}
}

func (s *adminService) ListDepartments(ctx context.Context, p *model.Principal) ([]model.Department, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	depts, err := s.deptRepo.FindAll()
	if err != nil {
		return nil, model.WrapInternal("查詢部門失敗", err)
	}
	return depts, nil
}

func (s *adminService) GetDepartment(ctx context.Context, p *model.Principal, deptID uint) (*model.Department, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	return s.findDepartment(deptID)
}

func (s *adminService) findDepartment(deptID uint) (*model.Department, error) {
	dept, err := s.deptRepo.FindByID(deptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewError(model.KindNotFound, "找不到該部門")
		}
		return nil, model.WrapInternal("查詢部門失敗", err)
	}
	return dept, nil
}

// ensureUniqueName 检查部门名称未被其他部门使用。
func (s *adminService) ensureUniqueName(name string, selfID uint) error {
	existing, err := s.deptRepo.FindByName(name)
	if err == nil && existing.ID != selfID {
		return model.NewError(model.KindConflict, "部門名稱「%s」已存在", name)
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WrapInternal("查詢部門失敗", err)
	}
	return nil
}

// CreateDepartment 创建部门并为其建立默认分类"未分類"。
func (s *adminService) CreateDepartment(ctx context.Context, p *model.Principal, in DepartmentInput) (*model.Department, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, model.NewError(model.KindValidation, "部門名稱不可為空")
	}
	if err := s.ensureUniqueName(in.Name, 0); err != nil {
		return nil, err
	}

	dept := &model.Department{
		Name:        in.Name,
		Description: in.Description,
		Color:       in.Color,
		Settings:    map[string]interface{}{},
	}
	if err := s.deptRepo.Create(dept); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, model.NewError(model.KindConflict, "部門名稱「%s」已存在", in.Name)
		}
		log.Errorf("[AdminService] 创建部门失败, name: %s, error: %v", in.Name, err)
		return nil, model.WrapInternal("新增部門失敗", err)
	}
	if err := s.categoryRepo.Create(&model.Category{
		Name:         model.SentinelCategoryName,
		Color:        "gray",
		DepartmentID: dept.ID,
	}); err != nil {
		log.Errorf("[AdminService] 创建默认分类失败, dept: %d, error: %v", dept.ID, err)
		return nil, model.WrapInternal("建立預設分類失敗", err)
	}

	recordSystem(s.activityRepo, &dept.ID, model.Activity{
		Type:           model.ActivityDepartmentAdd,
		DepartmentName: dept.Name,
		Actor:          p.DisplayName(),
	})
	log.Infof("[AdminService] 部门已创建, id: %d, name: %s", dept.ID, dept.Name)
	return dept, nil
}

func (s *adminService) UpdateDepartment(ctx context.Context, p *model.Principal, deptID uint, in DepartmentInput) (*model.Department, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	dept, err := s.findDepartment(deptID)
	if err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, model.NewError(model.KindValidation, "部門名稱不可為空")
	}
	if err := s.ensureUniqueName(in.Name, deptID); err != nil {
		return nil, err
	}

	dept.Name = in.Name
	dept.Description = in.Description
	dept.Color = in.Color
	if err := s.deptRepo.Update(dept); err != nil {
		return nil, model.WrapInternal("更新部門失敗", err)
	}
	recordSystem(s.activityRepo, &dept.ID, model.Activity{
		Type:           model.ActivityDepartmentUpdate,
		DepartmentName: dept.Name,
		Actor:          p.DisplayName(),
	})
	return dept, nil
}

// UpdateDepartmentSettings 合并更新部门的 AI/运行参数。
func (s *adminService) UpdateDepartmentSettings(ctx context.Context, p *model.Principal, deptID uint, settings map[string]interface{}) (*model.Department, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	dept, err := s.findDepartment(deptID)
	if err != nil {
		return nil, err
	}
	if dept.Settings == nil {
		dept.Settings = make(map[string]interface{}, len(settings))
	}
	for k, v := range settings {
		dept.Settings[k] = v
	}
	if err := s.deptRepo.Update(dept); err != nil {
		return nil, model.WrapInternal("更新部門設定失敗", err)
	}
	recordSystem(s.activityRepo, &dept.ID, model.Activity{
		Type:           model.ActivityDepartmentUpdate,
		DepartmentName: dept.Name,
		Actor:          p.DisplayName(),
	})
	return dept, nil
}

// DeleteDepartment 在部门仍有用户或文件时拒绝删除；删除成功后清理其分类和部门活动记录。
func (s *adminService) DeleteDepartment(ctx context.Context, p *model.Principal, deptID uint) error {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, deptID)
	if err != nil {
		return model.WrapInternal("無法取得部門鎖定", err)
	}
	defer unlock()

	dept, err := s.findDepartment(deptID)
	if err != nil {
		return err
	}
	userCount, err := s.userRepo.CountByDepartment(deptID)
	if err != nil {
		return model.WrapInternal("查詢部門使用者失敗", err)
	}
	fileCount, err := s.fileRepo.CountByDepartment(deptID)
	if err != nil {
		return model.WrapInternal("查詢部門檔案失敗", err)
	}

	var blockers []string
	if userCount > 0 {
		blockers = append(blockers, fmt.Sprintf("%d 位使用者", userCount))
	}
	if fileCount > 0 {
		blockers = append(blockers, fmt.Sprintf("%d 個檔案", fileCount))
	}
	if s.tasks != nil {
		if n := s.tasks.ActiveTasks(deptID); n > 0 {
			blockers = append(blockers, fmt.Sprintf("%d 個進行中的上傳任務", n))
		}
	}
	if len(blockers) > 0 {
		return model.NewError(model.KindConflict, "無法刪除部門「%s」：仍有 %s", dept.Name, strings.Join(blockers, "及 "))
	}

	if err := s.fileRepo.DeleteByDepartment(deptID); err != nil {
		return model.WrapInternal("刪除部門檔案失敗", err)
	}
	if err := s.categoryRepo.DeleteByDepartment(deptID); err != nil {
		return model.WrapInternal("刪除部門分類失敗", err)
	}
	if err := s.activityRepo.DeleteTenantByDepartment(deptID); err != nil {
		return model.WrapInternal("刪除部門活動記錄失敗", err)
	}
	if err := s.deptRepo.Delete(deptID); err != nil {
		return model.WrapInternal("刪除部門失敗", err)
	}

	recordSystem(s.activityRepo, &deptID, model.Activity{
		Type:           model.ActivityDepartmentDelete,
		DepartmentName: dept.Name,
		Actor:          p.DisplayName(),
	})
	log.Infof("[AdminService] 部门已删除, id: %d, name: %s", deptID, dept.Name)
	return nil
}

// GetStats 汇总系统数据量以及每个部门的用户、文件和分类数量。
func (s *adminService) GetStats(ctx context.Context, p *model.Principal) (*model.DashboardStats, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	depts, err := s.deptRepo.FindAll()
	if err != nil {
		return nil, model.WrapInternal("查詢部門失敗", err)
	}
	stats := &model.DashboardStats{
		TotalDepartments: len(depts),
		Departments:      make([]model.DepartmentStats, 0, len(depts)),
	}
	if stats.TotalUsers, err = s.userRepo.Count(); err != nil {
		return nil, model.WrapInternal("統計使用者失敗", err)
	}
	if stats.TotalFiles, err = s.fileRepo.Count(); err != nil {
		return nil, model.WrapInternal("統計檔案失敗", err)
	}

	for _, d := range depts {
		ds := model.DepartmentStats{DepartmentID: d.ID, DepartmentName: d.Name}
		if ds.UserCount, err = s.userRepo.CountByDepartment(d.ID); err != nil {
			return nil, model.WrapInternal("統計使用者失敗", err)
		}
		if ds.FileCount, err = s.fileRepo.CountByDepartment(d.ID); err != nil {
			return nil, model.WrapInternal("統計檔案失敗", err)
		}
		categories, err := s.categoryRepo.FindByDepartment(d.ID)
		if err != nil {
			return nil, model.WrapInternal("統計分類失敗", err)
		}
		ds.CategoryCount = int64(len(categories))
		stats.Departments = append(stats.Departments, ds)
	}
	return stats, nil
}

func (s *adminService) GetSettings(ctx context.Context, p *model.Principal) (*model.SystemSettings, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	settings, err := s.settingsRepo.Get()
	if err != nil {
		return nil, model.WrapInternal("查詢系統設定失敗", err)
	}
	return settings, nil
}

// UpdateSettings 合并更新系统设置。
func (s *adminService) UpdateSettings(ctx context.Context, p *model.Principal, data map[string]interface{}) (*model.SystemSettings, error) {
	if err := authorize(p, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	settings, err := s.settingsRepo.Get()
	if err != nil {
		return nil, model.WrapInternal("查詢系統設定失敗", err)
	}
	if settings.Data == nil {
		settings.Data = make(map[string]interface{}, len(data))
	}
	for k, v := range data {
		settings.Data[k] = v
	}
	if err := s.settingsRepo.Save(settings); err != nil {
		return nil, model.WrapInternal("儲存系統設定失敗", err)
	}
	recordSystem(s.activityRepo, nil, model.Activity{
		Type:  model.ActivitySettingsUpdate,
		Actor: p.DisplayName(),
	})
	return settings, nil
}
