// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"
	"toz-go/internal/model"
)

// ErrNotFound 表示请求的记录不存在。
var ErrNotFound = errors.New("record not found")

// DocumentRepository 接口定义了文档元数据的持久化操作。
// 实现必须可被请求处理和后台任务并发调用。
type DocumentRepository interface {
	ListAll(ctx context.Context) ([]model.Document, error)
	GetByID(ctx context.Context, id uint) (*model.Document, error)
	Create(ctx context.Context, doc *model.Document) error
	DeleteByID(ctx context.Context, id uint) error
	// FolderIDTaken 检查 folderID 是否被任意记录（包含已删除的）占用。
	FolderIDTaken(ctx context.Context, folderID string) (bool, error)
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
// 所有操作都由 mu 串行化，不依赖底层驱动自身的锁。
type documentRepository struct {
	mu sync.Mutex
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// ListAll 按 id 升序返回所有记录，没有记录时返回空切片。
func (r *documentRepository) ListAll(ctx context.Context) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := make([]model.Document, 0)
	err := r.db.WithContext(ctx).Order("id asc").Find(&docs).Error
	return docs, err
}

// GetByID 根据 id 检索记录。
func (r *documentRepository) GetByID(ctx context.Context, id uint) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var doc model.Document
	err := r.db.WithContext(ctx).First(&doc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// Create 插入一条新记录，成功后 doc.ID 为新分配的 id。
func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.WithContext(ctx).Create(doc).Error
}

// DeleteByID 只删除数据库记录，不触碰文件系统。
func (r *documentRepository) DeleteByID(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.WithContext(ctx).Delete(&model.Document{}, id).Error
}

// FolderIDTaken 连同软删除的记录一起检查。
func (r *documentRepository) FolderIDTaken(ctx context.Context, folderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&model.Document{}).
		Where("folder_id = ?", folderID).
		Count(&count).Error
	return count > 0, err
}
