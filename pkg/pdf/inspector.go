// Package pdf 封装了 PDF 结构校验、单页提取与页面栅格化。
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// 不在用户目录下生成 pdfcpu 配置文件
	api.DisableConfigDir()
}

// Inspector 使用 pdfcpu 解析 PDF，可被多个 worker 并发使用。
type Inspector struct {
	validation int
}

// NewInspector 创建一个以宽松模式校验的 Inspector。
func NewInspector() *Inspector {
	return &Inspector{validation: model.ValidationRelaxed}
}

// config 每次调用都新建，pdfcpu 的 api 会改写 conf.Cmd。
func (i *Inspector) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = i.validation
	return conf
}

// PageCount 解析 rs 并返回页数。
func (i *Inspector) PageCount(rs io.ReadSeeker) (n int, err error) {
	// pdfcpu 对部分畸形输入会 panic，这里统一转成错误
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("解析 PDF 失败: %v", r)
		}
	}()
	return api.PageCount(rs, i.config())
}

// PageCountFile 解析 path 指向的文件并返回页数。
func (i *Inspector) PageCountFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return i.PageCount(f)
}

// ExtractPage 返回只包含第 page 页（从 1 开始）的独立 PDF。
func (i *Inspector) ExtractPage(src []byte, page int) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("提取第 %d 页失败: %v", page, r)
		}
	}()

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(src), &buf, []string{strconv.Itoa(page)}, i.config()); err != nil {
		return nil, fmt.Errorf("提取第 %d 页失败: %w", page, err)
	}
	return buf.Bytes(), nil
}
