package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"toz-go/internal/model"
)

// statusTTL 限制 Redis 中状态键的存活时间，避免遗留键无限堆积。
const statusTTL = 30 * 24 * time.Hour

// ErrInvalidStatus 表示写入了非法的转换状态。
var ErrInvalidStatus = errors.New("invalid conversion status")

// StatusRepository 保存每个 folderId 的页面转换状态。
// 文档记录本身保持不可变，状态单独存放。
type StatusRepository interface {
	Set(ctx context.Context, folderID string, status model.ConversionStatus) error
	// Get 在没有状态时返回 model.ConversionUnknown。
	Get(ctx context.Context, folderID string) (model.ConversionStatus, error)
	Delete(ctx context.Context, folderID string) error
}

// redisStatusRepository 是 StatusRepository 的 Redis 实现。
type redisStatusRepository struct {
	redisClient *redis.Client
}

// NewRedisStatusRepository 创建一个基于 Redis 的 StatusRepository。
func NewRedisStatusRepository(redisClient *redis.Client) StatusRepository {
	return &redisStatusRepository{redisClient: redisClient}
}

func (r *redisStatusRepository) key(folderID string) string {
	return "conversion:status:" + folderID
}

func (r *redisStatusRepository) Set(ctx context.Context, folderID string, status model.ConversionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return r.redisClient.Set(ctx, r.key(folderID), string(status), statusTTL).Err()
}

func (r *redisStatusRepository) Get(ctx context.Context, folderID string) (model.ConversionStatus, error) {
	val, err := r.redisClient.Get(ctx, r.key(folderID)).Result()
	if err != nil {
		if err == redis.Nil {
			return model.ConversionUnknown, nil
		}
		return model.ConversionUnknown, err
	}
	// 外部写入的未知值按 unknown 处理
	status := model.ConversionStatus(val)
	if !status.Valid() {
		return model.ConversionUnknown, nil
	}
	return status, nil
}

func (r *redisStatusRepository) Delete(ctx context.Context, folderID string) error {
	return r.redisClient.Del(ctx, r.key(folderID)).Err()
}

// memoryStatusRepository 在未配置 Redis 时使用，状态随进程重启丢失。
type memoryStatusRepository struct {
	mu       sync.RWMutex
	statuses map[string]model.ConversionStatus
}

// NewMemoryStatusRepository 创建一个进程内的 StatusRepository。
func NewMemoryStatusRepository() StatusRepository {
	return &memoryStatusRepository{statuses: make(map[string]model.ConversionStatus)}
}

func (r *memoryStatusRepository) Set(_ context.Context, folderID string, status model.ConversionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[folderID] = status
	return nil
}

func (r *memoryStatusRepository) Get(_ context.Context, folderID string) (model.ConversionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.statuses[folderID]
	if !ok {
		return model.ConversionUnknown, nil
	}
	return status, nil
}

func (r *memoryStatusRepository) Delete(_ context.Context, folderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.statuses, folderID)
	return nil
}
