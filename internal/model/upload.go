package model

import (
	"math"
	"time"
)

const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskPartial    = "partial"
)

const (
	FilePending    = "pending"
	FileProcessing = "processing"
	FileCompleted  = "completed"
	FileFailed     = "failed"
)

// UploadFile 是批量上传请求中的单个文件。Content 为空时只登记元数据。
type UploadFile struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Type    string `json:"type"`
	Content []byte `json:"-"`
}

// FileTaskItem 是上传任务中单个文件的处理状态。
type FileTaskItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Type     string `json:"type,omitempty"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// IsTerminal 判断文件是否已处理完毕。
func (f FileTaskItem) IsTerminal() bool {
	return f.Status == FileCompleted || f.Status == FileFailed
}

// UploadTask 记录一次批量上传的整体进度。
type UploadTask struct {
	ID             string            `json:"id"`
	UserID         uint              `json:"userId"`
	UserName       string            `json:"userName"`
	DepartmentID   uint              `json:"departmentId"`
	Status         string            `json:"status"`
	TotalFiles     int               `json:"totalFiles"`
	ProcessedFiles int               `json:"processedFiles"`
	SuccessFiles   int               `json:"successFiles"`
	FailedFiles    int               `json:"failedFiles"`
	DeletedFiles   int               `json:"deletedFiles"`
	CurrentFile    *string           `json:"currentFile"`
	Files          []FileTaskItem    `json:"files"`
	RemoveFileIDs  []uint            `json:"removeFileIds"`
	Categories     map[string]string `json:"categories"`
	StartTime      time.Time         `json:"startTime"`
	EndTime        *time.Time        `json:"endTime"`
	Error          *string           `json:"error"`
}

// IsTerminal 判断任务是否已进入 completed 或 partial。
func (t *UploadTask) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskPartial
}

// Percent 返回整体进度 round(processed/total*100)。
func (t *UploadTask) Percent() int {
	if t.TotalFiles == 0 {
		return 0
	}
	return int(math.Round(float64(t.ProcessedFiles) / float64(t.TotalFiles) * 100))
}

// Clone 返回深拷贝，供轮询方读取而不与后台处理共享内存。
func (t *UploadTask) Clone() *UploadTask {
	c := *t
	c.Files = append([]FileTaskItem(nil), t.Files...)
	c.RemoveFileIDs = append([]uint(nil), t.RemoveFileIDs...)
	if t.Categories != nil {
		c.Categories = make(map[string]string, len(t.Categories))
		for k, v := range t.Categories {
			c.Categories[k] = v
		}
	}
	if t.CurrentFile != nil {
		name := *t.CurrentFile
		c.CurrentFile = &name
	}
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	if t.Error != nil {
		msg := *t.Error
		c.Error = &msg
	}
	return &c
}

// UploadTaskSnapshot 是进度查询的返回结构。
type UploadTaskSnapshot struct {
	*UploadTask
	Progress int `json:"progress"`
}

// DuplicateCandidate 是查重请求中的单个待上传文件描述。
type DuplicateCandidate struct {
	Name string `json:"name" binding:"required"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// DuplicateReport 是单个候选文件的查重结果。
type DuplicateReport struct {
	FileName       string `json:"fileName"`
	IsDuplicate    bool   `json:"isDuplicate"`
	DuplicateFile  *File  `json:"duplicateFile"`
	RelatedFiles   []File `json:"relatedFiles"`
	SuggestReplace bool   `json:"suggestReplace"`
}
