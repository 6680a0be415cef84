package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"
	"kb-admin-go/pkg/kafka"
	"kb-admin-go/pkg/lock"
	"kb-admin-go/pkg/log"
	"kb-admin-go/pkg/storage"
	"kb-admin-go/pkg/tasks"

	"gorm.io/gorm"
)

// FileService 接口定义了部门知识库文件的业务操作。
type FileService interface {
	// GetFiles 返回部门文件，category 为空时返回全部。
	GetFiles(ctx context.Context, p *model.Principal, category string) ([]model.File, error)
	DeleteFile(ctx context.Context, p *model.Principal, fileID uint) error
	UpdateFileCategory(ctx context.Context, p *model.Principal, fileID uint, category string) (*model.File, error)
	GetDownloadURL(ctx context.Context, p *model.Principal, fileID uint) (string, error)
	GetSupportedFileTypes() map[string]interface{}
}

type fileService struct {
	fileRepo     repository.FileRepository
	categoryRepo repository.CategoryRepository
	activityRepo repository.ActivityRepository
	locker       lock.Locker
	objects      storage.ObjectStore
	publisher    kafka.EventPublisher
}

// NewFileService 创建 FileService，objects 和 publisher 可以为 nil。
func NewFileService(
	fileRepo repository.FileRepository,
	categoryRepo repository.CategoryRepository,
	activityRepo repository.ActivityRepository,
	locker lock.Locker,
	objects storage.ObjectStore,
	publisher kafka.EventPublisher,
) FileService {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	return &fileService{
		fileRepo:     fileRepo,
		categoryRepo: categoryRepo,
		activityRepo: activityRepo,
		locker:       locker,
		objects:      objects,
		publisher:    publisher,
	}
}

func (s *fileService) GetFiles(ctx context.Context, p *model.Principal, category string) ([]model.File, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	files, err := s.fileRepo.FindByDepartment(deptID)
	if err != nil {
		return nil, model.WrapInternal("查詢檔案失敗", err)
	}
	if category == "" {
		return files, nil
	}
	filtered := make([]model.File, 0, len(files))
	for _, f := range files {
		if f.Category == category {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

func (s *fileService) DeleteFile(ctx context.Context, p *model.Principal, fileID uint) error {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, deptID)
	if err != nil {
		return model.WrapInternal("無法取得部門鎖定", err)
	}
	file, err := s.fileRepo.FindByID(deptID, fileID)
	if err == nil {
		err = s.fileRepo.Delete(deptID, fileID)
	}
	if err != nil {
		unlock()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.NewError(model.KindNotFound, "找不到該檔案")
		}
		return model.WrapInternal("刪除檔案失敗", err)
	}
	recordTenant(s.activityRepo, deptID, model.Activity{
		Type:     model.ActivityDelete,
		FileName: file.Name,
		Actor:    p.DisplayName(),
	})
	unlock()

	if file.ObjectKey != "" && s.objects != nil {
		if err := s.objects.RemoveObject(ctx, file.ObjectKey); err != nil {
			log.Warnf("[FileService] 删除对象失败, key: %s, error: %v", file.ObjectKey, err)
		}
	}
	if err := s.publisher.PublishFileEvent(ctx, tasks.FileEvent{
		Type:         tasks.EventFileDeleted,
		FileID:       file.ID,
		FileName:     file.Name,
		ObjectKey:    file.ObjectKey,
		DepartmentID: deptID,
		OccurredAt:   time.Now(),
	}); err != nil {
		log.Warnf("[FileService] 发布删除事件失败, file: %d, error: %v", file.ID, err)
	}
	log.Infof("[FileService] 文件已删除, dept: %d, file: %d", deptID, fileID)
	return nil
}

func (s *fileService) UpdateFileCategory(ctx context.Context, p *model.Principal, fileID uint, category string) (*model.File, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, model.NewError(model.KindValidation, "分類名稱不可為空")
	}

	file, err := s.updateCategoryLocked(ctx, deptID, fileID, category)
	if err != nil {
		return nil, err
	}
	// 分类写在索引文档里，变更后需要重新索引
	publishFileUpdated(ctx, s.publisher, file)
	return file, nil
}

func (s *fileService) updateCategoryLocked(ctx context.Context, deptID, fileID uint, category string) (*model.File, error) {
	unlock, err := s.locker.Lock(ctx, deptID)
	if err != nil {
		return nil, model.WrapInternal("無法取得部門鎖定", err)
	}
	defer unlock()

	if _, err := s.categoryRepo.FindByName(deptID, category); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewError(model.KindNotFound, "找不到分類「%s」", category)
		}
		return nil, model.WrapInternal("查詢分類失敗", err)
	}
	if err := s.fileRepo.UpdateCategory(deptID, fileID, category); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewError(model.KindNotFound, "找不到該檔案")
		}
		return nil, model.WrapInternal("更新檔案分類失敗", err)
	}
	file, err := s.fileRepo.FindByID(deptID, fileID)
	if err != nil {
		return nil, model.WrapInternal("查詢檔案失敗", err)
	}
	return file, nil
}

// publishFileUpdated 发布文件元数据变更事件，失败只记日志。
func publishFileUpdated(ctx context.Context, publisher kafka.EventPublisher, file *model.File) {
	if err := publisher.PublishFileEvent(ctx, tasks.FileEvent{
		Type:         tasks.EventFileUpdated,
		FileID:       file.ID,
		FileName:     file.Name,
		Category:     file.Category,
		Size:         file.SizeBytes,
		ContentType:  file.ContentType,
		ObjectKey:    file.ObjectKey,
		DepartmentID: file.DepartmentID,
		Uploader:     file.Uploader,
		OccurredAt:   time.Now(),
	}); err != nil {
		log.Warnf("[FileService] 发布更新事件失败, file: %d, error: %v", file.ID, err)
	}
}

// GetDownloadURL 为保存了内容的文件生成临时下载链接。
func (s *fileService) GetDownloadURL(ctx context.Context, p *model.Principal, fileID uint) (string, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return "", err
	}
	file, err := s.fileRepo.FindByID(deptID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", model.NewError(model.KindNotFound, "找不到該檔案")
		}
		return "", model.WrapInternal("查詢檔案失敗", err)
	}
	if file.ObjectKey == "" || s.objects == nil {
		return "", model.NewError(model.KindNotFound, "此檔案沒有可下載的內容")
	}
	url, err := s.objects.PresignedURL(ctx, file.ObjectKey, time.Hour)
	if err != nil {
		return "", model.WrapInternal("產生下載連結失敗", err)
	}
	return url, nil
}

var supportedTypeMapping = map[string]string{
	".pdf":  "PDF文件",
	".doc":  "Word文件",
	".docx": "Word文件",
	".xls":  "Excel試算表",
	".xlsx": "Excel試算表",
	".ppt":  "PowerPoint簡報",
	".pptx": "PowerPoint簡報",
	".txt":  "純文字檔",
	".md":   "Markdown文件",
}

// GetSupportedFileTypes 返回知识库接受的文件类型。
func (s *fileService) GetSupportedFileTypes() map[string]interface{} {
	extensions := make([]string, 0, len(supportedTypeMapping))
	uniqueTypes := make(map[string]struct{})
	types := make([]string, 0, len(supportedTypeMapping))
	for ext := range supportedTypeMapping {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	for _, ext := range extensions {
		t := supportedTypeMapping[ext]
		if _, exists := uniqueTypes[t]; !exists {
			uniqueTypes[t] = struct{}{}
			types = append(types, t)
		}
	}
	return map[string]interface{}{
		"supportedExtensions": extensions,
		"supportedTypes":      types,
		"description":         "知識庫支援的文件類型，上傳後會建立索引供 AI 助理檢索",
	}
}
