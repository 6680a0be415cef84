package repository

import (
	"kb-admin-go/internal/model"

	"gorm.io/gorm"
)

// ActivityRepository 定义了活动记录的追加与查询，返回结果按时间倒序。
type ActivityRepository interface {
	Append(activity *model.Activity) error
	FindTenant(deptID uint, limit int) ([]model.Activity, error)
	// FindSystem 查询系统级记录，deptID 为 nil 时不过滤部门。
	FindSystem(deptID *uint, limit int) ([]model.Activity, error)
	DeleteTenantByDepartment(deptID uint) error
}

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository 创建一个新的 ActivityRepository 实例。
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Append(activity *model.Activity) error {
	return r.db.Create(activity).Error
}

func (r *activityRepository) FindTenant(deptID uint, limit int) ([]model.Activity, error) {
	var activities []model.Activity
	q := r.db.Where("scope = ? AND department_id = ?", model.ScopeTenant, deptID).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&activities).Error
	return activities, err
}

func (r *activityRepository) FindSystem(deptID *uint, limit int) ([]model.Activity, error) {
	var activities []model.Activity
	q := r.db.Where("scope = ?", model.ScopeSystem)
	if deptID != nil {
		q = q.Where("department_id = ?", *deptID)
	}
	q = q.Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&activities).Error
	return activities, err
}

func (r *activityRepository) DeleteTenantByDepartment(deptID uint) error {
	return r.db.Where("scope = ? AND department_id = ?", model.ScopeTenant, deptID).Delete(&model.Activity{}).Error
}
