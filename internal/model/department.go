// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Department 对应于 'departments' 表，是系统中的租户单位。
type Department struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Color       string `gorm:"type:varchar(20)" json:"color"`
	// Settings 保存部门级别的 AI 与运行参数。
	Settings  map[string]interface{} `gorm:"serializer:json;type:text" json:"settings"`
	CreatedAt time.Time              `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Department) TableName() string {
	return "departments"
}

// DepartmentStats 是仪表盘中单个部门的统计。
type DepartmentStats struct {
	DepartmentID   uint   `json:"departmentId"`
	DepartmentName string `json:"departmentName"`
	UserCount      int64  `json:"userCount"`
	FileCount      int64  `json:"fileCount"`
	CategoryCount  int64  `json:"categoryCount"`
}

// DashboardStats 汇总整个系统的数据量。
type DashboardStats struct {
	TotalDepartments int               `json:"totalDepartments"`
	TotalUsers       int64             `json:"totalUsers"`
	TotalFiles       int64             `json:"totalFiles"`
	Departments      []DepartmentStats `json:"departments"`
}
