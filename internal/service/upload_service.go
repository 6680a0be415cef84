package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kb-admin-go/internal/config"
	"kb-admin-go/internal/metrics"
	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"
	"kb-admin-go/pkg/kafka"
	"kb-admin-go/pkg/lock"
	"kb-admin-go/pkg/log"
	"kb-admin-go/pkg/storage"
)

// BatchUploadRequest 是一次批量上传的输入。
type BatchUploadRequest struct {
	Files []model.UploadFile
	// Categories 以文件名为键指定目标分类，未指定时归入"未分類"。
	Categories map[string]string
	// RemoveFileIDs 是本批次要替换掉的现有文件，在上传前删除。
	RemoveFileIDs []uint
}

// UploadService 接口定义了批量上传任务相关的业务操作。
type UploadService interface {
	BatchUpload(ctx context.Context, p *model.Principal, req BatchUploadRequest) (string, error)
	GetUploadProgress(ctx context.Context, p *model.Principal, taskID string) (*model.UploadTaskSnapshot, error)
	// ActiveTasks 返回本进程内该部门尚未结束的任务数。
	ActiveTasks(deptID uint) int
	// Wait 阻塞直到所有后台任务结束。
	Wait()
	// Shutdown 通知后台任务在当前文件处理完后停止，并等待它们结束或 ctx 超时。
	Shutdown(ctx context.Context) error
}

// UploadOptions 控制任务引擎的节奏和失败判定。
type UploadOptions struct {
	ProgressStep int
	StepDelay    time.Duration
	Failure      FailurePolicy
	// MaxFiles 为单个批次的文件数上限，0 表示不限制。
	MaxFiles int
}

// UploadOptionsFromConfig 根据配置构造引擎参数。
func UploadOptionsFromConfig(cfg config.UploadConfig) UploadOptions {
	return UploadOptions{
		ProgressStep: cfg.ProgressStep,
		StepDelay:    cfg.StepDelay,
		Failure:      RandomFailure(cfg.FailureRate),
		MaxFiles:     cfg.MaxFiles,
	}
}

type uploadService struct {
	deptRepo     repository.DepartmentRepository
	fileRepo     repository.FileRepository
	categoryRepo repository.CategoryRepository
	activityRepo repository.ActivityRepository
	taskRepo     repository.TaskRepository
	locker       lock.Locker
	objects      storage.ObjectStore
	publisher    kafka.EventPublisher
	metrics      *metrics.Metrics
	opts         UploadOptions

	// 任务注册表：所有后台任务共享 baseCtx，Shutdown 时统一取消。
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  map[string]uint // taskID -> 部门 ID
	closed   bool
	lastNano int64
}

// NewUploadService 创建一个新的 UploadService 实例。objects 和 publisher 可以为 nil。
func NewUploadService(
	deptRepo repository.DepartmentRepository,
	fileRepo repository.FileRepository,
	categoryRepo repository.CategoryRepository,
	activityRepo repository.ActivityRepository,
	taskRepo repository.TaskRepository,
	locker lock.Locker,
	objects storage.ObjectStore,
	publisher kafka.EventPublisher,
	m *metrics.Metrics,
	opts UploadOptions,
) UploadService {
	if opts.ProgressStep <= 0 || opts.ProgressStep > 10 {
		opts.ProgressStep = 10
	}
	if opts.Failure == nil {
		opts.Failure = NeverFail()
	}
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &uploadService{
		deptRepo:     deptRepo,
		fileRepo:     fileRepo,
		categoryRepo: categoryRepo,
		activityRepo: activityRepo,
		taskRepo:     taskRepo,
		locker:       locker,
		objects:      objects,
		publisher:    publisher,
		metrics:      m,
		opts:         opts,
		baseCtx:      ctx,
		cancel:       cancel,
		running:      make(map[string]uint),
	}
}

var errShuttingDown = model.NewError(model.KindInternal, "服務正在關閉，請稍後再試")

// newTaskID 由用户 ID 和纳秒时间戳组成，同一进程内保证严格递增。
func (s *uploadService) newTaskID(userID uint) string {
	nano := time.Now().UnixNano()
	if nano <= s.lastNano {
		nano = s.lastNano + 1
	}
	s.lastNano = nano
	return fmt.Sprintf("task_%d_%d", userID, nano)
}

// BatchUpload 创建上传任务并立即返回任务 ID，文件在后台按提交顺序逐个处理。
func (s *uploadService) BatchUpload(ctx context.Context, p *model.Principal, req BatchUploadRequest) (string, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return "", err
	}
	if len(req.Files) == 0 {
		return "", model.NewError(model.KindValidation, "請選擇要上傳的檔案")
	}
	if s.opts.MaxFiles > 0 && len(req.Files) > s.opts.MaxFiles {
		return "", model.NewError(model.KindValidation, "單次最多上傳 %d 個檔案", s.opts.MaxFiles)
	}
	for _, f := range req.Files {
		if f.Name == "" {
			return "", model.NewError(model.KindValidation, "檔案名稱不可為空")
		}
	}

	task := &model.UploadTask{
		UserID:        p.ID,
		UserName:      p.Username,
		DepartmentID:  deptID,
		Status:        model.TaskPending,
		TotalFiles:    len(req.Files),
		Files:         make([]model.FileTaskItem, len(req.Files)),
		RemoveFileIDs: append([]uint{}, req.RemoveFileIDs...),
		Categories:    make(map[string]string, len(req.Categories)),
		StartTime:     time.Now(),
	}
	for k, v := range req.Categories {
		task.Categories[k] = v
	}
	for i, f := range req.Files {
		task.Files[i] = model.FileTaskItem{
			ID:     fmt.Sprintf("file_%d", i),
			Name:   f.Name,
			Size:   f.Size,
			Type:   f.Type,
			Status: model.FilePending,
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errShuttingDown
	}
	task.ID = s.newTaskID(p.ID)
	s.running[task.ID] = deptID
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.taskRepo.Save(ctx, task); err != nil {
		s.release(task.ID)
		log.Errorf("[UploadService] 保存上传任务失败, task: %s, error: %v", task.ID, err)
		return "", model.WrapInternal("建立上傳任務失敗", err)
	}

	run := &taskRun{
		svc:      s,
		task:     task,
		files:    append([]model.UploadFile(nil), req.Files...),
		actor:    p.DisplayName(),
		username: p.Username,
	}
	log.Infof("[UploadService] 上传任务已创建, task: %s, dept: %d, files: %d, remove: %d",
		task.ID, deptID, task.TotalFiles, len(task.RemoveFileIDs))

	go func() {
		defer s.release(task.ID)
		run.execute(s.baseCtx)
	}()
	return task.ID, nil
}

func (s *uploadService) release(taskID string) {
	s.mu.Lock()
	delete(s.running, taskID)
	s.mu.Unlock()
	s.wg.Done()
}

// GetUploadProgress 返回任务的当前快照，其他部门的任务视为不存在。
func (s *uploadService) GetUploadProgress(ctx context.Context, p *model.Principal, taskID string) (*model.UploadTaskSnapshot, error) {
	deptID, err := authorizeTenant(p, model.RoleAdmin)
	if err != nil {
		return nil, err
	}

	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, repository.ErrTaskNotFound
		}
		log.Errorf("[UploadService] 查询上传任务失败, task: %s, error: %v", taskID, err)
		return nil, model.WrapInternal("查詢上傳任務失敗", err)
	}
	if task.DepartmentID != deptID {
		return nil, repository.ErrTaskNotFound
	}
	return &model.UploadTaskSnapshot{UploadTask: task, Progress: task.Percent()}, nil
}

func (s *uploadService) ActiveTasks(deptID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.running {
		if id == deptID {
			n++
		}
	}
	return n
}

func (s *uploadService) Wait() {
	s.wg.Wait()
}

func (s *uploadService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	inFlight := len(s.running)
	s.mu.Unlock()
	s.cancel()
	log.Infof("[UploadService] 正在停止上传任务引擎, 运行中任务: %d", inFlight)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
