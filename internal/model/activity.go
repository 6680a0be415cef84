package model

import "time"

const (
	ActivityUpload           = "upload"
	ActivityDelete           = "delete"
	ActivityCategoryAdd      = "category_add"
	ActivityCategoryDelete   = "category_delete"
	ActivityUserAdd          = "user_add"
	ActivityUserUpdate       = "user_update"
	ActivityUserDelete       = "user_delete"
	ActivityDepartmentAdd    = "department_add"
	ActivityDepartmentUpdate = "department_update"
	ActivityDepartmentDelete = "department_delete"
	ActivitySettingsUpdate   = "settings_update"
)

const (
	// ScopeTenant 是部门内的文件/分类操作。
	ScopeTenant = "tenant"
	// ScopeSystem 是部门/用户/设置操作，仅超级管理员可查询。
	ScopeSystem = "system"
)

// Activity 对应于 'activities' 表，是只追加的审计记录。
type Activity struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Scope          string    `gorm:"type:varchar(10);not null;index" json:"-"`
	Type           string    `gorm:"type:varchar(32);not null" json:"type"`
	FileName       string    `gorm:"type:varchar(255)" json:"fileName,omitempty"`
	CategoryName   string    `gorm:"type:varchar(100)" json:"categoryName,omitempty"`
	UserName       string    `gorm:"type:varchar(100)" json:"userName,omitempty"`
	DepartmentName string    `gorm:"type:varchar(100)" json:"departmentName,omitempty"`
	Actor          string    `gorm:"column:actor;type:varchar(100)" json:"user"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
	DepartmentID   *uint     `gorm:"index" json:"departmentId,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Activity) TableName() string {
	return "activities"
}

// Subject 返回活动所引用的对象名称。
func (a Activity) Subject() string {
	switch {
	case a.FileName != "":
		return a.FileName
	case a.CategoryName != "":
		return a.CategoryName
	case a.UserName != "":
		return a.UserName
	default:
		return a.DepartmentName
	}
}
