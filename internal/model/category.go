package model

import "time"

// SentinelCategoryName 是每个部门都存在且不可删除的默认分类。
const SentinelCategoryName = "未分類"

// Category 对应于 'categories' 表，名称在部门内唯一。
type Category struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_category_dept_name" json:"name"`
	Color        string    `gorm:"type:varchar(20)" json:"color"`
	DepartmentID uint      `gorm:"not null;uniqueIndex:idx_category_dept_name" json:"departmentId"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Category) TableName() string {
	return "categories"
}

// IsSentinel 判断是否为默认分类。
func (c Category) IsSentinel() bool {
	return c.Name == SentinelCategoryName
}

// CategoryWithCount 附带分类下的文件数量。
type CategoryWithCount struct {
	Category
	FileCount int `json:"fileCount"`
}
