// Package tasks defines the structure for jobs handed to the conversion pool.
package tasks

import "fmt"

// ConversionJob 描述一次页面栅格化任务，只被消费一次，不做重试。
type ConversionJob struct {
	DocumentID uint `json:"document_id"`
	// Name 是页面图片的文件名前缀，与 folderId 相同。
	Name            string `json:"name"`
	TargetDirectory string `json:"target_directory"`
	SourcePath      string `json:"source_path"`
}

// PageImageName 返回第 page 页（从 1 开始）对应的图片文件名。
func PageImageName(name string, page int) string {
	return fmt.Sprintf("%s-%d.png", name, page)
}

// PageImageNames 返回 1..pageCount 页的图片文件名列表。
func PageImageNames(name string, pageCount int) []string {
	names := make([]string, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		names = append(names, PageImageName(name, i))
	}
	return names
}
