// Package pipeline 定义了页面栅格化的核心流程和后台工作池。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"toz-go/pkg/log"
	"toz-go/pkg/pdf"
	"toz-go/pkg/tasks"
)

var (
	// ErrConversion 表示任务执行时源文件无法读取或解析。
	ErrConversion = errors.New("pipeline: conversion failed")
	// ErrTargetGone 表示任务的目标目录已被删除，任务随之终止。
	ErrTargetGone = errors.New("pipeline: target directory removed")
)

// PageSource 负责解析页数和提取单页。
type PageSource interface {
	PageCount(rs io.ReadSeeker) (int, error)
	ExtractPage(src []byte, page int) ([]byte, error)
}

// Renderer 把单页 PDF 渲染为位图。
type Renderer interface {
	Render(single []byte, dpi float64) (image.Image, error)
}

// Mirror 接收每一张写好的页面图片，例如复制到对象存储。
type Mirror interface {
	PutPage(ctx context.Context, folderID, localPath string) error
}

// Processor 封装了页面栅格化的所有依赖和逻辑。
type Processor struct {
	pages    PageSource
	renderer Renderer
	dpi      float64
	mirror   Mirror
}

// NewProcessor 创建一个新的 Processor 实例。mirror 可以为 nil。
func NewProcessor(pages PageSource, renderer Renderer, dpi float64, mirror Mirror) *Processor {
	if dpi <= 0 {
		dpi = pdf.DefaultDPI
	}
	return &Processor{
		pages:    pages,
		renderer: renderer,
		dpi:      dpi,
		mirror:   mirror,
	}
}

// Process 按页码升序把 job.SourcePath 的每一页写成 job.TargetDirectory 下的 PNG。
// 任何一步失败都会终止任务，已写出的页面保留。ctx 被取消时在下一页之前返回 ctx.Err()。
func (p *Processor) Process(ctx context.Context, job tasks.ConversionJob) error {
	log.Infof("[Processor] 开始转换文档, DocumentID: %d, FolderID: %s", job.DocumentID, job.Name)

	src, err := os.ReadFile(job.SourcePath)
	if err != nil {
		if !dirExists(job.TargetDirectory) {
			log.Infof("[Processor] 目标目录已不存在, 跳过任务, FolderID: %s", job.Name)
			return ErrTargetGone
		}
		log.Errorw("[Processor] 读取源文件失败", "folderId", job.Name, "documentId", job.DocumentID, "error", err)
		return fmt.Errorf("%w: 读取源文件失败: %w", ErrConversion, err)
	}

	count, err := p.pages.PageCount(bytes.NewReader(src))
	if err != nil {
		log.Errorw("[Processor] 重新解析 PDF 失败", "folderId", job.Name, "documentId", job.DocumentID, "error", err)
		return fmt.Errorf("%w: 解析 PDF 失败: %w", ErrConversion, err)
	}
	log.Infof("[Processor] 文档共 %d 页, FolderID: %s", count, job.Name)

	for page := 1; page <= count; page++ {
		if err := ctx.Err(); err != nil {
			log.Infof("[Processor] 任务已取消, FolderID: %s, 已完成 %d/%d 页", job.Name, page-1, count)
			return err
		}

		single, err := p.pages.ExtractPage(src, page)
		if err != nil {
			log.Errorw("[Processor] 提取页面失败", "folderId", job.Name, "page", page, "error", err)
			return err
		}
		img, err := p.renderer.Render(single, p.dpi)
		if err != nil {
			log.Errorw("[Processor] 渲染页面失败", "folderId", job.Name, "page", page, "error", err)
			return err
		}

		if !dirExists(job.TargetDirectory) {
			log.Warnf("[Processor] 目标目录已不存在, 终止任务, FolderID: %s", job.Name)
			return ErrTargetGone
		}
		path := filepath.Join(job.TargetDirectory, tasks.PageImageName(job.Name, page))
		if err := writePNG(path, pdf.Flatten(img)); err != nil {
			if !dirExists(job.TargetDirectory) {
				return ErrTargetGone
			}
			log.Errorw("[Processor] 写入页面图片失败", "folderId", job.Name, "page", page, "error", err)
			return err
		}

		if p.mirror != nil {
			if err := p.mirror.PutPage(ctx, job.Name, path); err != nil {
				log.Warnw("[Processor] 镜像页面图片失败", "folderId", job.Name, "page", page, "error", err)
			}
		}
	}

	log.Infof("[Processor] 文档转换完成, FolderID: %s, 共 %d 页", job.Name, count)
	return nil
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// writePNG 先写临时文件再重命名，读者不会看到写了一半的图片。
func writePNG(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := pdf.EncodePNG(tmp, img); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
