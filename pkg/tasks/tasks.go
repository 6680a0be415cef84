// Package tasks 定义了发送到 Kafka 的文件事件结构。
package tasks

import (
	"fmt"
	"time"
)

const (
	EventFileUploaded = "file.uploaded"
	// EventFileUpdated 表示文件元数据（例如分类）变化，索引器按完整文件重新索引。
	EventFileUpdated = "file.updated"
	EventFileDeleted = "file.deleted"
)

// FileEvent 描述知识库文件的一次变更，由索引器消费。
type FileEvent struct {
	Type         string    `json:"type"`
	FileID       uint      `json:"file_id"`
	FileName     string    `json:"file_name"`
	Category     string    `json:"category,omitempty"`
	Size         int64     `json:"size,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	ObjectKey    string    `json:"object_key,omitempty"`
	DepartmentID uint      `json:"department_id"`
	Uploader     string    `json:"uploader,omitempty"`
	TaskID       string    `json:"task_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Key 返回事件的分区键，同一文件的事件落在同一分区。
func (e FileEvent) Key() string {
	return fmt.Sprintf("%d:%d", e.DepartmentID, e.FileID)
}
