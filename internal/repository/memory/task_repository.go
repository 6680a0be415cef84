package memory

import (
	"context"
	"sync"
	"time"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"
)

type taskEntry struct {
	task      *model.UploadTask
	updatedAt time.Time
}

// TaskRepository 是进程内的任务快照存储，已结束的任务在 ttl 后被清理。
type TaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]taskEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewTaskRepository 创建内存任务存储，ttl<=0 表示永不清理。
func NewTaskRepository(ttl time.Duration) *TaskRepository {
	return &TaskRepository{tasks: make(map[string]taskEntry), ttl: ttl, now: time.Now}
}

var _ repository.TaskRepository = (*TaskRepository)(nil)

func (r *TaskRepository) Save(_ context.Context, task *model.UploadTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = taskEntry{task: task.Clone(), updatedAt: r.now()}
	r.evictLocked()
	return nil
}

func (r *TaskRepository) FindByID(_ context.Context, taskID string) (*model.UploadTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tasks[taskID]
	if !ok || r.expired(entry) {
		return nil, repository.ErrTaskNotFound
	}
	return entry.task.Clone(), nil
}

func (r *TaskRepository) Delete(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
	return nil
}

func (r *TaskRepository) expired(entry taskEntry) bool {
	return r.ttl > 0 && entry.task.IsTerminal() && r.now().Sub(entry.updatedAt) > r.ttl
}

func (r *TaskRepository) evictLocked() {
	for id, entry := range r.tasks {
		if r.expired(entry) {
			delete(r.tasks, id)
		}
	}
}
