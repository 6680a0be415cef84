package model

import "time"

// SystemSettings 对应于 'system_settings' 表，只有一行。
type SystemSettings struct {
	ID        uint                   `gorm:"primaryKey" json:"-"`
	Data      map[string]interface{} `gorm:"serializer:json;type:text" json:"data"`
	UpdatedAt time.Time              `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SystemSettings) TableName() string {
	return "system_settings"
}
