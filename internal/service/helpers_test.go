package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository/memory"
	"kb-admin-go/pkg/lock"
	"kb-admin-go/pkg/storage"
	"kb-admin-go/pkg/tasks"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []tasks.FileEvent
}

func (p *recordingPublisher) PublishFileEvent(_ context.Context, e tasks.FileEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Events() []tasks.FileEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tasks.FileEvent(nil), p.events...)
}

type testEnv struct {
	store     *memory.Store
	taskRepo  *memory.TaskRepository
	locker    *lock.LocalLocker
	objects   *storage.MemoryStore
	publisher *recordingPublisher

	admin      AdminService
	categories CategoryService
	files      FileService
	activities ActivityService

	superAdmin *model.Principal
}

// rootPrincipalID 不会被内存存储分配，避免与测试中创建的用户 ID 相同。
const rootPrincipalID = 1 << 20

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	env := &testEnv{
		store:      store,
		taskRepo:   memory.NewTaskRepository(time.Hour),
		locker:     lock.NewLocalLocker(),
		objects:    storage.NewMemoryStore(),
		publisher:  &recordingPublisher{},
		superAdmin: &model.Principal{ID: rootPrincipalID, Username: "superadmin", Name: "系統管理員", Role: model.RoleSuperAdmin},
	}
	env.admin = NewAdminService(store.Departments(), store.Users(), store.Categories(), store.Files(), store.Activities(), store.Settings(), env.locker, nil)
	env.categories = NewCategoryService(store.Categories(), store.Files(), store.Activities(), env.locker, env.publisher)
	env.files = NewFileService(store.Files(), store.Categories(), store.Activities(), env.locker, env.objects, env.publisher)
	env.activities = NewActivityService(store.Activities(), store.Departments())
	return env
}

// newUploads 创建使用给定失败策略、无延迟的上传服务。
func (e *testEnv) newUploads(t *testing.T, failure FailurePolicy) UploadService {
	t.Helper()
	return e.newUploadsWith(t, UploadOptions{ProgressStep: 10, Failure: failure})
}

func (e *testEnv) newUploadsWith(t *testing.T, opts UploadOptions) UploadService {
	t.Helper()
	svc := NewUploadService(e.store.Departments(), e.store.Files(), e.store.Categories(), e.store.Activities(), e.taskRepo, e.locker, e.objects, e.publisher, nil, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

// department 创建部门并返回该部门的管理员身份。
func (e *testEnv) department(t *testing.T, name string) (*model.Department, *model.Principal) {
	t.Helper()
	dept, err := e.admin.CreateDepartment(context.Background(), e.superAdmin, DepartmentInput{Name: name, Color: "blue"})
	require.NoError(t, err)
	id := dept.ID
	return dept, &model.Principal{ID: 100 + id, Username: name + "_admin", Name: name + "管理員", Role: model.RoleAdmin, DepartmentID: &id}
}

func (e *testEnv) addFile(t *testing.T, deptID uint, name, category string) *model.File {
	t.Helper()
	f := &model.File{
		Name:         name,
		Size:         model.FormatSize(1024),
		SizeBytes:    1024,
		Category:     category,
		UploadDate:   time.Now().Format(model.DateFormat),
		Uploader:     "seed",
		DepartmentID: deptID,
	}
	require.NoError(t, e.store.Files().Create(f))
	return f
}

// waitTerminal 轮询直到任务结束，并检查每次快照都满足计数守恒和单调性。
func waitTerminal(t *testing.T, svc UploadService, p *model.Principal, taskID string) *model.UploadTaskSnapshot {
	t.Helper()
	var prev *model.UploadTaskSnapshot
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := svc.GetUploadProgress(context.Background(), p, taskID)
		require.NoError(t, err)
		require.Equal(t, snap.ProcessedFiles, snap.SuccessFiles+snap.FailedFiles)

		terminal := 0
		for _, f := range snap.Files {
			if f.IsTerminal() {
				terminal++
			}
		}
		require.Equal(t, snap.ProcessedFiles, terminal)

		if prev != nil {
			require.GreaterOrEqual(t, snap.ProcessedFiles, prev.ProcessedFiles)
			require.GreaterOrEqual(t, snap.SuccessFiles, prev.SuccessFiles)
			require.GreaterOrEqual(t, snap.FailedFiles, prev.FailedFiles)
			for i := range snap.Files {
				if snap.Files[i].Status == model.FileProcessing && prev.Files[i].Status == model.FileProcessing {
					require.GreaterOrEqual(t, snap.Files[i].Progress, prev.Files[i].Progress)
				}
			}
		}
		if snap.IsTerminal() {
			return snap
		}
		prev = snap
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish in time", taskID)
	return nil
}
