package repository

import (
	"kb-admin-go/internal/model"

	"gorm.io/gorm"
)

// FileRepository 定义了部门知识库文件的数据操作，所有查询都以部门 ID 为范围。
type FileRepository interface {
	Create(file *model.File) error
	FindByID(deptID, id uint) (*model.File, error)
	FindByDepartment(deptID uint) ([]model.File, error)
	Delete(deptID, id uint) error
	UpdateCategory(deptID, id uint, category string) error
	// ReassignCategory 将部门内 from 分类的文件改为 to 分类，返回受影响的文件数。
	ReassignCategory(deptID uint, from, to string) (int64, error)
	Count() (int64, error)
	CountByDepartment(deptID uint) (int64, error)
	DeleteByDepartment(deptID uint) error
}

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(file *model.File) error {
	return r.db.Create(file).Error
}

func (r *fileRepository) FindByID(deptID, id uint) (*model.File, error) {
	var file model.File
	err := r.db.Where("department_id = ? AND id = ?", deptID, id).First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// FindByDepartment 返回部门的所有文件，按 ID 升序。
func (r *fileRepository) FindByDepartment(deptID uint) ([]model.File, error) {
	var files []model.File
	err := r.db.Where("department_id = ?", deptID).Order("id asc").Find(&files).Error
	return files, err
}

// Delete 删除文件记录，记录不存在时返回 gorm.ErrRecordNotFound。
func (r *fileRepository) Delete(deptID, id uint) error {
	res := r.db.Where("department_id = ? AND id = ?", deptID, id).Delete(&model.File{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *fileRepository) UpdateCategory(deptID, id uint, category string) error {
	res := r.db.Model(&model.File{}).Where("department_id = ? AND id = ?", deptID, id).Update("category", category)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *fileRepository) ReassignCategory(deptID uint, from, to string) (int64, error) {
	res := r.db.Model(&model.File{}).Where("department_id = ? AND category = ?", deptID, from).Update("category", to)
	return res.RowsAffected, res.Error
}

func (r *fileRepository) Count() (int64, error) {
	var total int64
	err := r.db.Model(&model.File{}).Count(&total).Error
	return total, err
}

func (r *fileRepository) CountByDepartment(deptID uint) (int64, error) {
	var total int64
	err := r.db.Model(&model.File{}).Where("department_id = ?", deptID).Count(&total).Error
	return total, err
}

func (r *fileRepository) DeleteByDepartment(deptID uint) error {
	return r.db.Where("department_id = ?", deptID).Delete(&model.File{}).Error
}
