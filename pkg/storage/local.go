// Package storage 管理上传文件及其页面图片在本地磁盘上的目录布局，
// 以及可选的 MinIO 镜像。
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"toz-go/pkg/tasks"
)

const (
	// DefaultExtension 在文件名没有扩展名时使用。
	DefaultExtension = ".pdf"
	// maxAllocateAttempts 限制目录名冲突时的重试次数。
	maxAllocateAttempts = 16
	defaultBaseName     = "document"
)

// ErrAllocationExhausted 表示在重试上限内找不到可用的目录名。
var ErrAllocationExhausted = errors.New("storage: no free folder id")

// Allocation 描述一次成功的目录分配。
type Allocation struct {
	FolderID string
	// FileName 在发生冲突时带有与 FolderID 相同的时间戳后缀。
	FileName string
	Dir      string
	Path     string
}

// TakenFunc 报告 folderID 是否已被元数据记录占用。
type TakenFunc func(folderID string) (bool, error)

// LocalStore 以 <root>/<folderId>/ 的布局保存原始文件和页面图片。
// 它本身不加锁，并发的删除与写入依靠忽略错误来容忍。
type LocalStore struct {
	root string
	now  func() time.Time
}

// NewLocalStore 创建 LocalStore，根目录不存在时自动创建。
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储根目录失败: %w", err)
	}
	return &LocalStore{root: root, now: time.Now}, nil
}

// Root 返回存储根目录。
func (s *LocalStore) Root() string {
	return s.root
}

// SplitFileName 将上传的文件名拆分为 base 和扩展名。
// 路径部分会被去掉；没有扩展名时使用 DefaultExtension。
func SplitFileName(filename string) (base, ext string) {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext = filepath.Ext(name)
	base = strings.TrimSuffix(name, ext)
	if ext == "" || ext == "." {
		ext = DefaultExtension
	}
	if base == "" || base == "." || base == ".." || base == "/" {
		base = defaultBaseName
	}
	return base, ext
}

// Allocate 为 filename 原子地创建一个唯一的目录。
// 依次尝试 base、base-<unix 秒>、base-<unix 秒>-<uuid 前 8 位>，
// 目录已存在或 taken 返回 true 时换下一个候选。
func (s *LocalStore) Allocate(filename string, taken TakenFunc) (*Allocation, error) {
	base, ext := SplitFileName(filename)

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储根目录失败: %w", err)
	}

	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		candidate := s.candidate(base, attempt)

		if taken != nil {
			used, err := taken(candidate)
			if err != nil {
				return nil, fmt.Errorf("检查目录名占用失败: %w", err)
			}
			if used {
				continue
			}
		}

		dir := filepath.Join(s.root, candidate)
		// os.Mkdir 在目录已存在时失败，检查与创建是同一步
		if err := os.Mkdir(dir, 0o755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return nil, fmt.Errorf("创建目录失败: %w", err)
		}

		fileName := candidate + ext
		if attempt == 0 {
			fileName = base + ext
		}
		return &Allocation{
			FolderID: candidate,
			FileName: fileName,
			Dir:      dir,
			Path:     filepath.Join(dir, fileName),
		}, nil
	}

	return nil, ErrAllocationExhausted
}

func (s *LocalStore) candidate(base string, attempt int) string {
	switch attempt {
	case 0:
		return base
	case 1:
		return base + "-" + strconv.FormatInt(s.now().Unix(), 10)
	default:
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		return base + "-" + strconv.FormatInt(s.now().Unix(), 10) + "-" + suffix
	}
}

// Dir 返回 folderID 对应的目录路径。
func (s *LocalStore) Dir(folderID string) string {
	return filepath.Join(s.root, folderID)
}

// FilePath 根据 folderID 和文件名重建原始文件路径。
func (s *LocalStore) FilePath(folderID, fileName string) string {
	return filepath.Join(s.root, folderID, fileName)
}

// PagePath 返回第 page 页图片的路径。
func (s *LocalStore) PagePath(folderID string, page int) string {
	return filepath.Join(s.root, folderID, tasks.PageImageName(folderID, page))
}

// Exists 报告 folderID 的目录是否存在。
func (s *LocalStore) Exists(folderID string) bool {
	info, err := os.Stat(s.Dir(folderID))
	return err == nil && info.IsDir()
}

// WriteFile 将 r 的内容写入新文件 path 并落盘。
func (s *LocalStore) WriteFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return n, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return n, err
	}
	return n, f.Close()
}

// Open 打开 folderID 下的文件。文件缺失时返回的错误满足 errors.Is(err, fs.ErrNotExist)。
func (s *LocalStore) Open(folderID, fileName string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(s.FilePath(folderID, fileName))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fs.ErrNotExist
	}
	return f, info, nil
}

// Remove 递归删除 folderID 的目录，目录不存在时返回 nil。
func (s *LocalStore) Remove(folderID string) error {
	if folderID == "" {
		return nil
	}
	return os.RemoveAll(s.Dir(folderID))
}
