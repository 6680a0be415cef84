package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kb-admin-go/internal/model"
	"kb-admin-go/pkg/log"
	"kb-admin-go/pkg/storage"
	"kb-admin-go/pkg/tasks"

	"gorm.io/gorm"
)

// errTaskAborted 写入因服务关闭而未处理的文件。
var errTaskAborted = errors.New("上傳任務已中止")

// errDepartmentRemoved 在任务执行期间所属部门被删除时写入文件项。
var errDepartmentRemoved = errors.New("部門已刪除")

// taskRun 持有单个任务的后台处理状态，只在自己的 goroutine 中修改 task。
type taskRun struct {
	svc      *uploadService
	task     *model.UploadTask
	files    []model.UploadFile
	actor    string
	username string
}

// save 将当前任务状态写入快照存储。关闭期间也要落盘，因此不使用任务的 ctx。
func (r *taskRun) save() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.svc.taskRepo.Save(ctx, r.task); err != nil {
		log.Warnf("[UploadService] 保存任务快照失败, task: %s, error: %v", r.task.ID, err)
	}
}

// lockTenant 获取部门锁，失败时返回的 unlock 为空操作。
func (r *taskRun) lockTenant(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return r.svc.locker.Lock(lockCtx, r.task.DepartmentID)
}

// ensureDepartment 确认部门仍然存在，必须在部门锁内调用。
// 删除部门同样持有这把锁，因此检查通过后本次写入不会落到已删除的部门。
func (r *taskRun) ensureDepartment() error {
	if r.svc.deptRepo == nil {
		return nil
	}
	if _, err := r.svc.deptRepo.FindByID(r.task.DepartmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errDepartmentRemoved
		}
		return fmt.Errorf("查詢部門失敗: %w", err)
	}
	return nil
}

func (r *taskRun) execute(ctx context.Context) {
	s := r.svc
	task := r.task
	s.metrics.TaskStarted()

	task.Status = model.TaskProcessing
	r.save()

	r.removeSuperseded(ctx)

	for i := range task.Files {
		if ctx.Err() != nil {
			r.abortRemaining(i)
			break
		}
		r.processFile(ctx, i)
	}

	task.CurrentFile = nil
	end := time.Now()
	task.EndTime = &end
	if task.FailedFiles == 0 {
		task.Status = model.TaskCompleted
	} else {
		task.Status = model.TaskPartial
	}
	r.save()
	s.metrics.TaskFinished(task.Status)

	log.Infow("[UploadService] 上传任务结束",
		"task", task.ID,
		"dept", task.DepartmentID,
		"status", task.Status,
		"total", task.TotalFiles,
		"success", task.SuccessFiles,
		"failed", task.FailedFiles,
		"deleted", task.DeletedFiles,
		"elapsed", end.Sub(task.StartTime).String(),
	)
}

// removeSuperseded 按顺序删除被替换的文件，不存在的 ID 直接跳过。
func (r *taskRun) removeSuperseded(ctx context.Context) {
	for _, id := range r.task.RemoveFileIDs {
		removed, err := r.removeOne(ctx, id)
		if err != nil {
			log.Warnf("[UploadService] 删除被替换文件失败, task: %s, file: %d, error: %v", r.task.ID, id, err)
			continue
		}
		if removed == nil {
			continue
		}
		r.task.DeletedFiles++
		r.save()
		r.afterRemove(context.WithoutCancel(ctx), removed)
	}
}

func (r *taskRun) removeOne(ctx context.Context, id uint) (*model.File, error) {
	s := r.svc
	deptID := r.task.DepartmentID

	unlock, err := r.lockTenant(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := r.ensureDepartment(); err != nil {
		return nil, err
	}
	file, err := s.fileRepo.FindByID(deptID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.fileRepo.Delete(deptID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.activityRepo.Append(&model.Activity{
		Scope:        model.ScopeTenant,
		Type:         model.ActivityDelete,
		FileName:     file.Name,
		Actor:        r.actor,
		DepartmentID: &deptID,
	}); err != nil {
		log.Warnf("[UploadService] 记录删除活动失败, file: %d, error: %v", id, err)
	}
	return file, nil
}

// afterRemove 清理对象存储并发布删除事件，失败只记日志。
func (r *taskRun) afterRemove(ctx context.Context, file *model.File) {
	s := r.svc
	if file.ObjectKey != "" && s.objects != nil {
		if err := s.objects.RemoveObject(ctx, file.ObjectKey); err != nil {
			log.Warnf("[UploadService] 删除对象失败, key: %s, error: %v", file.ObjectKey, err)
		}
	}
	r.publish(ctx, tasks.FileEvent{
		Type:         tasks.EventFileDeleted,
		FileID:       file.ID,
		FileName:     file.Name,
		ObjectKey:    file.ObjectKey,
		DepartmentID: file.DepartmentID,
	})
}

func (r *taskRun) publish(ctx context.Context, event tasks.FileEvent) {
	event.TaskID = r.task.ID
	event.OccurredAt = time.Now()
	if err := r.svc.publisher.PublishFileEvent(ctx, event); err != nil {
		log.Warnf("[UploadService] 发布文件事件失败, type: %s, file: %d, error: %v", event.Type, event.FileID, err)
	}
}

func (r *taskRun) processFile(ctx context.Context, idx int) {
	task := r.task
	item := &task.Files[idx]
	start := time.Now()

	name := item.Name
	task.CurrentFile = &name
	item.Status = model.FileProcessing
	item.Progress = 0
	r.save()

	err := r.runFile(ctx, idx)
	// 内容已写入对象存储或已放弃，不再持有
	r.files[idx].Content = nil
	if err != nil {
		item.Status = model.FileFailed
		item.Error = err.Error()
		task.FailedFiles++
		r.svc.metrics.FileProcessed(model.FileFailed, time.Since(start))
		log.Warnf("[UploadService] 文件处理失败, task: %s, file: %s, error: %v", task.ID, item.Name, err)
	} else {
		item.Status = model.FileCompleted
		task.SuccessFiles++
		r.svc.metrics.FileProcessed(model.FileCompleted, time.Since(start))
		log.Infof("[UploadService] 文件处理完成, task: %s, file: %s", task.ID, item.Name)
	}
	task.ProcessedFiles++
	r.save()
}

// runFile 推进单个文件的进度并提交结果，panic 被转换为该文件的失败。
func (r *taskRun) runFile(ctx context.Context, idx int) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("[UploadService] 处理文件时发生 panic, task: %s, file: %s, panic: %v", r.task.ID, r.task.Files[idx].Name, rec)
			err = fmt.Errorf("檔案處理發生內部錯誤")
		}
	}()

	item := &r.task.Files[idx]
	step := r.svc.opts.ProgressStep
	for item.Progress < 100 {
		if err := sleepCtx(ctx, r.svc.opts.StepDelay); err != nil {
			return errTaskAborted
		}
		item.Progress = min(item.Progress+step, 100)
		r.save()
	}

	if err := r.svc.opts.Failure(*item); err != nil {
		return err
	}
	// 进度到达 100 后不再响应取消，避免文件内容和记录只写入一半。
	return r.commitFile(context.WithoutCancel(ctx), idx)
}

// commitFile 保存文件内容，并在部门锁内写入文件记录和上传活动。
func (r *taskRun) commitFile(ctx context.Context, idx int) error {
	s := r.svc
	task := r.task
	item := task.Files[idx]
	upload := r.files[idx]
	deptID := task.DepartmentID

	var objectKey string
	if len(upload.Content) > 0 && s.objects != nil {
		objectKey = storage.ObjectKey(deptID, task.ID, item.Name)
		if err := s.objects.PutObject(ctx, objectKey, item.Type, upload.Content); err != nil {
			log.Errorf("[UploadService] 保存文件内容失败, key: %s, error: %v", objectKey, err)
			return fmt.Errorf("檔案內容儲存失敗")
		}
	}

	unlock, err := r.lockTenant(ctx)
	if err != nil {
		return fmt.Errorf("無法取得部門鎖定")
	}
	defer unlock()

	if err := r.ensureDepartment(); err != nil {
		log.Warnf("[UploadService] 部门不可写入, task: %s, dept: %d, error: %v", task.ID, deptID, err)
		r.discardObject(ctx, objectKey)
		if errors.Is(err, errDepartmentRemoved) {
			return errDepartmentRemoved
		}
		return fmt.Errorf("檔案記錄寫入失敗")
	}

	file := &model.File{
		Name:         item.Name,
		Size:         model.FormatSize(item.Size),
		SizeBytes:    item.Size,
		ContentType:  item.Type,
		Category:     r.categoryFor(item.Name),
		UploadDate:   time.Now().Format(model.DateFormat),
		Uploader:     r.username,
		DepartmentID: deptID,
		ObjectKey:    objectKey,
	}
	if err := s.fileRepo.Create(file); err != nil {
		log.Errorf("[UploadService] 写入文件记录失败, task: %s, file: %s, error: %v", task.ID, item.Name, err)
		r.discardObject(ctx, objectKey)
		return fmt.Errorf("檔案記錄寫入失敗")
	}
	if err := s.activityRepo.Append(&model.Activity{
		Scope:        model.ScopeTenant,
		Type:         model.ActivityUpload,
		FileName:     file.Name,
		Actor:        r.actor,
		DepartmentID: &deptID,
	}); err != nil {
		log.Warnf("[UploadService] 记录上传活动失败, file: %d, error: %v", file.ID, err)
	}

	r.publish(ctx, tasks.FileEvent{
		Type:         tasks.EventFileUploaded,
		FileID:       file.ID,
		FileName:     file.Name,
		Category:     file.Category,
		Size:         file.SizeBytes,
		ContentType:  file.ContentType,
		ObjectKey:    file.ObjectKey,
		DepartmentID: deptID,
		Uploader:     file.Uploader,
	})
	return nil
}

// discardObject 删除已写入但没有对应文件记录的对象。
func (r *taskRun) discardObject(ctx context.Context, key string) {
	if key == "" || r.svc.objects == nil {
		return
	}
	if err := r.svc.objects.RemoveObject(ctx, key); err != nil {
		log.Warnf("[UploadService] 清理对象失败, key: %s, error: %v", key, err)
	}
}

// categoryFor 返回文件的目标分类；分类未指定或已被删除时使用"未分類"。
func (r *taskRun) categoryFor(fileName string) string {
	name, ok := r.task.Categories[fileName]
	if !ok || name == "" || name == model.SentinelCategoryName {
		return model.SentinelCategoryName
	}
	if r.svc.categoryRepo == nil {
		return name
	}
	if _, err := r.svc.categoryRepo.FindByName(r.task.DepartmentID, name); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[UploadService] 查询分类失败, category: %s, error: %v", name, err)
		}
		return model.SentinelCategoryName
	}
	return name
}

// abortRemaining 将尚未处理的文件标记为失败，保证任务能正常结束。
func (r *taskRun) abortRemaining(from int) {
	task := r.task
	for i := from; i < len(task.Files); i++ {
		r.files[i].Content = nil
		item := &task.Files[i]
		item.Status = model.FileFailed
		item.Error = errTaskAborted.Error()
		task.FailedFiles++
		task.ProcessedFiles++
	}
	log.Warnf("[UploadService] 上传任务被中止, task: %s, 未处理文件: %d", task.ID, len(task.Files)-from)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
