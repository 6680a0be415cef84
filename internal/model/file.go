package model

// File 对应于 'files' 表，是部门知识库中的一个文档。
type File struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string `gorm:"type:varchar(255);not null;index" json:"name"`
	Size         string `gorm:"type:varchar(32)" json:"size"`
	SizeBytes    int64  `gorm:"not null;default:0" json:"sizeBytes"`
	ContentType  string `gorm:"type:varchar(128)" json:"type,omitempty"`
	Category     string `gorm:"type:varchar(100);not null" json:"category"`
	UploadDate   string `gorm:"type:varchar(10)" json:"uploadDate"`
	Uploader     string `gorm:"type:varchar(64)" json:"uploader"`
	DepartmentID uint   `gorm:"not null;index" json:"departmentId"`
	// ObjectKey 为空表示未保存文件内容。
	ObjectKey string `gorm:"type:varchar(512)" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (File) TableName() string {
	return "files"
}
