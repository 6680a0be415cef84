package repository

import (
	"kb-admin-go/internal/model"

	"gorm.io/gorm"
)

// CategoryRepository 定义了部门内分类的数据操作，所有查询都以部门 ID 为范围。
type CategoryRepository interface {
	Create(category *model.Category) error
	FindByID(deptID, id uint) (*model.Category, error)
	FindByName(deptID uint, name string) (*model.Category, error)
	FindByDepartment(deptID uint) ([]model.Category, error)
	Delete(deptID, id uint) error
	DeleteByDepartment(deptID uint) error
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository 创建一个新的 CategoryRepository 实例。
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) Create(category *model.Category) error {
	return r.db.Create(category).Error
}

func (r *categoryRepository) FindByID(deptID, id uint) (*model.Category, error) {
	var category model.Category
	err := r.db.Where("department_id = ? AND id = ?", deptID, id).First(&category).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) FindByName(deptID uint, name string) (*model.Category, error) {
	var category model.Category
	err := r.db.Where("department_id = ? AND name = ?", deptID, name).First(&category).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// FindByDepartment 按创建顺序返回部门的所有分类。
func (r *categoryRepository) FindByDepartment(deptID uint) ([]model.Category, error) {
	var categories []model.Category
	err := r.db.Where("department_id = ?", deptID).Order("id asc").Find(&categories).Error
	return categories, err
}

func (r *categoryRepository) Delete(deptID, id uint) error {
	return r.db.Where("department_id = ? AND id = ?", deptID, id).Delete(&model.Category{}).Error
}

func (r *categoryRepository) DeleteByDepartment(deptID uint) error {
	return r.db.Where("department_id = ?", deptID).Delete(&model.Category{}).Error
}
