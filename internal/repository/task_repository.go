package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kb-admin-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// ErrTaskNotFound 在任务不存在或已过期时返回。
var ErrTaskNotFound = model.NewError(model.KindNotFound, "找不到上傳任務")

// TaskRepository 保存上传任务的快照，供轮询读取。
type TaskRepository interface {
	Save(ctx context.Context, task *model.UploadTask) error
	FindByID(ctx context.Context, taskID string) (*model.UploadTask, error)
	Delete(ctx context.Context, taskID string) error
}

type redisTaskRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisTaskRepository 创建基于 Redis 的 TaskRepository，快照在 ttl 后过期。
func NewRedisTaskRepository(redisClient *redis.Client, ttl time.Duration) TaskRepository {
	return &redisTaskRepository{redisClient: redisClient, ttl: ttl}
}

func (r *redisTaskRepository) key(taskID string) string {
	return fmt.Sprintf("upload:task:%s", taskID)
}

// Save 将任务序列化为 JSON 写入 Redis，每次写入都会刷新过期时间。
func (r *redisTaskRepository) Save(ctx context.Context, task *model.UploadTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal upload task: %w", err)
	}
	if err := r.redisClient.Set(ctx, r.key(task.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save upload task: %w", err)
	}
	return nil
}

func (r *redisTaskRepository) FindByID(ctx context.Context, taskID string) (*model.UploadTask, error) {
	data, err := r.redisClient.Get(ctx, r.key(taskID)).Bytes()
	if err == redis.Nil {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload task: %w", err)
	}
	var task model.UploadTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload task: %w", err)
	}
	return &task, nil
}

func (r *redisTaskRepository) Delete(ctx context.Context, taskID string) error {
	return r.redisClient.Del(ctx, r.key(taskID)).Err()
}
