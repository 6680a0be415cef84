package repository

import (
	"kb-admin-go/internal/model"

	"gorm.io/gorm"
)

// DepartmentRepository 接口定义了部门的数据操作方法。
type DepartmentRepository interface {
	Create(dept *model.Department) error
	FindByID(id uint) (*model.Department, error)
	FindByName(name string) (*model.Department, error)
	FindAll() ([]model.Department, error)
	Update(dept *model.Department) error
	Delete(id uint) error
}

type departmentRepository struct {
	db *gorm.DB
}

// NewDepartmentRepository 创建一个新的 DepartmentRepository 实例。
func NewDepartmentRepository(db *gorm.DB) DepartmentRepository {
	return &departmentRepository{db: db}
}

// Create 在数据库中插入一个新的部门记录。
func (r *departmentRepository) Create(dept *model.Department) error {
	return r.db.Create(dept).Error
}

// FindByID 根据部门 ID 查找部门。
func (r *departmentRepository) FindByID(id uint) (*model.Department, error) {
	var dept model.Department
	if err := r.db.First(&dept, id).Error; err != nil {
		return nil, err
	}
	return &dept, nil
}

// FindByName 根据名称查找部门。
func (r *departmentRepository) FindByName(name string) (*model.Department, error) {
	var dept model.Department
	if err := r.db.Where("name = ?", name).First(&dept).Error; err != nil {
		return nil, err
	}
	return &dept, nil
}

// FindAll 按 ID 顺序返回所有部门。
func (r *departmentRepository) FindAll() ([]model.Department, error) {
	var depts []model.Department
	err := r.db.Order("id asc").Find(&depts).Error
	return depts, err
}

// Update 更新一个已存在的部门记录。
func (r *departmentRepository) Update(dept *model.Department) error {
	return r.db.Save(dept).Error
}

// Delete 删除部门记录本身，不做级联删除。
func (r *departmentRepository) Delete(id uint) error {
	return r.db.Delete(&model.Department{}, id).Error
}
