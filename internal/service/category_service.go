package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"
	"kb-admin-go/pkg/kafka"
	"kb-admin-go/pkg/lock"
	"kb-admin-go/pkg/log"

	"gorm.io/gorm"
)

// CategoryService 接口定义了部门内分类的业务操作。
type CategoryService interface {
	GetCategories(ctx context.Context, p *model.Principal) ([]model.CategoryWithCount, error)
	AddCategory(ctx context.Context, p *model.Principal, name, color string) (*model.Category, error)
	// DeleteCategory 删除分类并把其中的文件移到"未分類"，返回说明移动数量的提示信息。
	DeleteCategory(ctx context.Context, p *model.Principal, categoryID uint) (string, error)
}

type categoryService struct {
	categoryRepo repository.CategoryRepository
	fileRepo     repository.FileRepository
	activityRepo repository.ActivityRepository
	locker       lock.Locker
	publisher    kafka.EventPublisher
}

// NewCategoryService 创建 CategoryService，publisher 可以为 nil。
func NewCategoryService(categoryRepo repository.CategoryRepository, fileRepo repository.FileRepository, activityRepo repository.ActivityRepository, locker lock.Locker, publisher kafka.EventPublisher) CategoryService {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	return &categoryService{
		categoryRepo: categoryRepo,
		fileRepo:     fileRepo,
		activityRepo: activityRepo,
		locker:       locker,
		publisher:    publisher,
	}
}

func (s *categoryService) GetCategories(ctx context.Context, p *model.Principal) ([]model.CategoryWithCount, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	categories, err := s.categoryRepo.FindByDepartment(deptID)
	if err != nil {
		return nil, model.WrapInternal("查詢分類失敗", err)
	}
	files, err := s.fileRepo.FindByDepartment(deptID)
	if err != nil {
		return nil, model.WrapInternal("查詢檔案失敗", err)
	}

	counts := make(map[string]int, len(categories))
	for _, f := range files {
		counts[f.Category]++
	}
	result := make([]model.CategoryWithCount, 0, len(categories))
	for _, c := range categories {
		result = append(result, model.CategoryWithCount{Category: c, FileCount: counts[c.Name]})
	}
	return result, nil
}

func (s *categoryService) AddCategory(ctx context.Context, p *model.Principal, name, color string) (*model.Category, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewError(model.KindValidation, "分類名稱不可為空")
	}

	unlock, err := s.locker.Lock(ctx, deptID)
	if err != nil {
		return nil, model.WrapInternal("無法取得部門鎖定", err)
	}
	defer unlock()

	if _, err := s.categoryRepo.FindByName(deptID, name); err == nil {
		return nil, model.NewError(model.KindConflict, "分類「%s」已存在", name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.WrapInternal("查詢分類失敗", err)
	}

	category := &model.Category{Name: name, Color: color, DepartmentID: deptID}
	if err := s.categoryRepo.Create(category); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, model.NewError(model.KindConflict, "分類「%s」已存在", name)
		}
		log.Errorf("[CategoryService] 创建分类失败, dept: %d, name: %s, error: %v", deptID, name, err)
		return nil, model.WrapInternal("新增分類失敗", err)
	}
	recordTenant(s.activityRepo, deptID, model.Activity{
		Type:         model.ActivityCategoryAdd,
		CategoryName: name,
		Actor:        p.DisplayName(),
	})
	log.Infof("[CategoryService] 分类已创建, dept: %d, category: %d", deptID, category.ID)
	return category, nil
}

func (s *categoryService) DeleteCategory(ctx context.Context, p *model.Principal, categoryID uint) (string, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return "", err
	}

	category, moved, err := s.deleteCategoryLocked(ctx, p, deptID, categoryID)
	if err != nil {
		return "", err
	}
	// 被移动的文件分类已变化，逐个通知索引器
	for i := range moved {
		publishFileUpdated(ctx, s.publisher, &moved[i])
	}

	log.Infof("[CategoryService] 分类已删除, dept: %d, category: %s, moved: %d", deptID, category.Name, len(moved))
	if len(moved) > 0 {
		return fmt.Sprintf("分類已刪除，%d 個檔案已移至「%s」", len(moved), model.SentinelCategoryName), nil
	}
	return "分類已刪除", nil
}

// deleteCategoryLocked 在部门锁内删除分类，返回被移到"未分類"的文件。
func (s *categoryService) deleteCategoryLocked(ctx context.Context, p *model.Principal, deptID, categoryID uint) (*model.Category, []model.File, error) {
	unlock, err := s.locker.Lock(ctx, deptID)
	if err != nil {
		return nil, nil, model.WrapInternal("無法取得部門鎖定", err)
	}
	defer unlock()

	category, err := s.categoryRepo.FindByID(deptID, categoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, model.NewError(model.KindNotFound, "找不到該分類")
		}
		return nil, nil, model.WrapInternal("查詢分類失敗", err)
	}
	if category.IsSentinel() {
		return nil, nil, model.NewError(model.KindValidation, "無法刪除預設分類「%s」", model.SentinelCategoryName)
	}

	// 先记下受影响的文件，用于发布更新事件
	files, err := s.fileRepo.FindByDepartment(deptID)
	if err != nil {
		return nil, nil, model.WrapInternal("查詢分類檔案失敗", err)
	}
	var moved []model.File
	for _, f := range files {
		if f.Category == category.Name {
			f.Category = model.SentinelCategoryName
			moved = append(moved, f)
		}
	}

	if _, err := s.fileRepo.ReassignCategory(deptID, category.Name, model.SentinelCategoryName); err != nil {
		log.Errorf("[CategoryService] 移动分类文件失败, dept: %d, category: %s, error: %v", deptID, category.Name, err)
		return nil, nil, model.WrapInternal("移動分類檔案失敗", err)
	}
	if err := s.categoryRepo.Delete(deptID, categoryID); err != nil {
		return nil, nil, model.WrapInternal("刪除分類失敗", err)
	}
	recordTenant(s.activityRepo, deptID, model.Activity{
		Type:         model.ActivityCategoryDelete,
		CategoryName: category.Name,
		Actor:        p.DisplayName(),
	})
	return category, moved, nil
}
