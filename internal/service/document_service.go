// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"
	"toz-go/internal/model"
	"toz-go/internal/pipeline"
	"toz-go/internal/repository"
	"toz-go/pkg/log"
	"toz-go/pkg/storage"
	"toz-go/pkg/tasks"
)

// Validator 解析刚写入磁盘的文件并返回页数。
type Validator interface {
	PageCountFile(path string) (int, error)
}

// Scheduler 接收转换任务。*pipeline.Pool 实现了该接口。
type Scheduler interface {
	Submit(ctx context.Context, job tasks.ConversionJob) error
	Cancel(folderID string) bool
}

// ArtifactCleaner 删除某个 folderId 在外部存储中的副本，可以为 nil。
type ArtifactCleaner interface {
	RemoveFolder(ctx context.Context, folderID string) error
}

// DocumentView 是列表接口返回的文档及其转换状态。
type DocumentView struct {
	model.Document
	Status model.ConversionStatus `json:"status"`
}

// ReviewInfo 封装了分页浏览所需的信息。Pages 中的图片不保证已经生成。
type ReviewInfo struct {
	FileName  string                 `json:"fileName"`
	FolderID  string                 `json:"folderId"`
	PageCount int                    `json:"pageCount"`
	Status    model.ConversionStatus `json:"status"`
	Pages     []string               `json:"pages"`
}

// DownloadInfo 描述一个已打开的原始文件，调用方负责关闭 File。
type DownloadInfo struct {
	FileName string
	Size     int64
	ModTime  time.Time
	File     *os.File
}

// DocumentService 接口定义了文档上传、浏览和删除相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, uploader, filename string, r io.Reader) (*model.Document, error)
	List(ctx context.Context) ([]DocumentView, error)
	Delete(ctx context.Context, id string) error
	Download(ctx context.Context, id string) (*DownloadInfo, error)
	Review(ctx context.Context, id string) (*ReviewInfo, error)
	// Page 返回第 page 页图片的本地路径，图片尚未生成时返回 ErrNotFound。
	Page(ctx context.Context, id string, page int) (string, error)
}

type documentService struct {
	docs      repository.DocumentRepository
	statuses  repository.StatusRepository
	store     *storage.LocalStore
	validator Validator
	scheduler Scheduler
	cleaner   ArtifactCleaner
}

// NewDocumentService 创建一个新的 DocumentService 实例。cleaner 可以为 nil。
func NewDocumentService(
	docs repository.DocumentRepository,
	statuses repository.StatusRepository,
	store *storage.LocalStore,
	validator Validator,
	scheduler Scheduler,
	cleaner ArtifactCleaner,
) DocumentService {
	return &documentService{
		docs:      docs,
		statuses:  statuses,
		store:     store,
		validator: validator,
		scheduler: scheduler,
		cleaner:   cleaner,
	}
}

// Upload 保存上传的文件，校验通过后创建记录并提交转换任务。
// 任何一步失败都会删除已分配的目录，不会留下记录。
func (s *documentService) Upload(ctx context.Context, uploader, filename string, r io.Reader) (*model.Document, error) {
	if filename == "" || r == nil {
		return nil, newValidationError("no file supplied")
	}

	alloc, err := s.store.Allocate(filename, func(folderID string) (bool, error) {
		return s.docs.FolderIDTaken(ctx, folderID)
	})
	if err != nil {
		return nil, fmt.Errorf("分配存储目录失败: %w", err)
	}

	if _, err := s.store.WriteFile(alloc.Path, r); err != nil {
		s.removeDir(alloc.FolderID)
		return nil, fmt.Errorf("保存上传文件失败: %w", err)
	}

	pageCount, err := s.validator.PageCountFile(alloc.Path)
	if err != nil {
		log.Infow("上传文件未通过校验", "fileName", alloc.FileName, "error", err)
		s.removeDir(alloc.FolderID)
		return nil, newValidationError("file is not a PDF")
	}

	doc := &model.Document{
		FileName:  alloc.FileName,
		Uploader:  html.EscapeString(uploader),
		PageCount: pageCount,
		FolderID:  alloc.FolderID,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.removeDir(alloc.FolderID)
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	job := tasks.ConversionJob{
		DocumentID:      doc.ID,
		Name:            doc.FolderID,
		TargetDirectory: alloc.Dir,
		SourcePath:      alloc.Path,
	}
	if err := s.scheduler.Submit(ctx, job); err != nil {
		log.Warnw("提交转换任务失败, 回滚上传", "folderId", doc.FolderID, "error", err)
		if derr := s.docs.DeleteByID(ctx, doc.ID); derr != nil {
			log.Errorw("回滚文档记录失败", "documentId", doc.ID, "error", derr)
		}
		s.removeDir(alloc.FolderID)
		if errors.Is(err, pipeline.ErrQueueFull) || errors.Is(err, pipeline.ErrPoolClosed) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("提交转换任务失败: %w", err)
	}

	// Create 之后记录已经可见，期间的 Delete 不会取消尚未提交的任务
	if !s.store.Exists(doc.FolderID) {
		log.Warnw("文档在提交转换前已被删除, 取消任务", "documentId", doc.ID, "folderId", doc.FolderID)
		s.scheduler.Cancel(doc.FolderID)
		if err := s.statuses.Delete(ctx, doc.FolderID); err != nil {
			log.Warnw("删除转换状态失败", "folderId", doc.FolderID, "error", err)
		}
		return doc, nil
	}

	log.Infow("文档上传成功", "documentId", doc.ID, "folderId", doc.FolderID, "pageCount", doc.PageCount)
	return doc, nil
}

// List 按 id 升序返回所有文档及其转换状态。
func (s *documentService) List(ctx context.Context) ([]DocumentView, error) {
	docs, err := s.docs.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]DocumentView, len(docs))
	for i, doc := range docs {
		views[i] = DocumentView{Document: doc, Status: s.status(ctx, doc.FolderID)}
	}
	return views, nil
}

// Delete 取消转换任务，尽力删除文件，然后无条件删除记录。
func (s *documentService) Delete(ctx context.Context, id string) error {
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	return s.cascade(ctx, doc)
}

// Download 打开记录对应的原始文件。文件已丢失时清理记录并返回 ErrNotFound。
func (s *documentService) Download(ctx context.Context, id string) (*DownloadInfo, error) {
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	f, info, err := s.store.Open(doc.FolderID, doc.FileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warnw("记录指向的文件不存在, 执行级联清理", "documentId", doc.ID, "folderId", doc.FolderID)
			if cerr := s.cascade(ctx, doc); cerr != nil {
				log.Errorw("级联清理失败", "documentId", doc.ID, "error", cerr)
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}

	return &DownloadInfo{
		FileName: doc.FileName,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		File:     f,
	}, nil
}

// Review 返回声明的页数和按规则生成的图片文件名，不检查图片是否存在。
func (s *documentService) Review(ctx context.Context, id string) (*ReviewInfo, error) {
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	return &ReviewInfo{
		FileName:  doc.FileName,
		FolderID:  doc.FolderID,
		PageCount: doc.PageCount,
		Status:    s.status(ctx, doc.FolderID),
		Pages:     tasks.PageImageNames(doc.FolderID, doc.PageCount),
	}, nil
}

func (s *documentService) Page(ctx context.Context, id string, page int) (string, error) {
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return "", err
	}
	if page < 1 || page > doc.PageCount {
		return "", ErrNotFound
	}

	path := s.store.PagePath(doc.FolderID, page)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

// lookup 解析文本形式的 id，格式错误与记录不存在同样返回 ErrNotFound。
func (s *documentService) lookup(ctx context.Context, id string) (*model.Document, error) {
	n, err := strconv.ParseUint(id, 10, 0)
	if err != nil || n == 0 {
		return nil, ErrNotFound
	}

	doc, err := s.docs.GetByID(ctx, uint(n))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// cascade 删除文档的全部痕迹。只有删除记录失败才会返回错误。
func (s *documentService) cascade(ctx context.Context, doc *model.Document) error {
	s.scheduler.Cancel(doc.FolderID)
	s.removeDir(doc.FolderID)
	if s.cleaner != nil {
		if err := s.cleaner.RemoveFolder(ctx, doc.FolderID); err != nil {
			log.Warnw("删除镜像对象失败", "folderId", doc.FolderID, "error", err)
		}
	}

	if err := s.docs.DeleteByID(ctx, doc.ID); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	if err := s.statuses.Delete(ctx, doc.FolderID); err != nil {
		log.Warnw("删除转换状态失败", "folderId", doc.FolderID, "error", err)
	}
	log.Infow("文档已删除", "documentId", doc.ID, "folderId", doc.FolderID)
	return nil
}

func (s *documentService) removeDir(folderID string) {
	if err := s.store.Remove(folderID); err != nil {
		log.Warnw("删除文档目录失败", "folderId", folderID, "error", err)
	}
}

func (s *documentService) status(ctx context.Context, folderID string) model.ConversionStatus {
	status, err := s.statuses.Get(ctx, folderID)
	if err != nil {
		log.Warnw("读取转换状态失败", "folderId", folderID, "error", err)
		return model.ConversionUnknown
	}
	return status
}
