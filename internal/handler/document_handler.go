// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"toz-go/internal/middleware"
	"toz-go/internal/service"
	"toz-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// ListDocuments 处理获取全部文档列表的请求。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context())
	if err != nil {
		log.Error("ListDocuments: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取文档列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档列表成功",
		"data":    docs,
	})
}

// UploadDocument 处理 multipart 上传，表单字段为 file。
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "no file supplied"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Error("UploadDocument: 打开上传文件失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取上传文件失败"})
		return
	}
	defer file.Close()

	doc, err := h.docService.Upload(c.Request.Context(), middleware.Username(c), fileHeader.Filename, file)
	if err != nil {
		h.writeError(c, "UploadDocument", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件上传成功",
		"data":    doc,
	})
}

// DeleteDocument 处理删除文档的请求。
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	if err := h.docService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, "DeleteDocument", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文档删除成功"})
}

// DownloadDocument 以附件形式返回原始文件。
func (h *DocumentHandler) DownloadDocument(c *gin.Context) {
	info, err := h.docService.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "DownloadDocument", err)
		return
	}
	defer info.File.Close()

	c.DataFromReader(http.StatusOK, info.Size, "application/force-download", info.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%s", info.FileName),
	})
}

// ReviewDocument 返回分页浏览所需的页数、状态和图片名。
func (h *DocumentHandler) ReviewDocument(c *gin.Context) {
	review, err := h.docService.Review(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "ReviewDocument", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档信息成功",
		"data":    review,
	})
}

// PageImage 返回一张已经生成的页面图片。
func (h *DocumentHandler) PageImage(c *gin.Context) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		h.writeError(c, "PageImage", service.ErrNotFound)
		return
	}

	path, err := h.docService.Page(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		h.writeError(c, "PageImage", err)
		return
	}
	c.File(path)
}

// writeError 把业务错误映射为 HTTP 状态码。
func (h *DocumentHandler) writeError(c *gin.Context, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": verr.Reason})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "文档不存在"})
	case errors.Is(err, service.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "转换队列已满，请稍后重试"})
	default:
		log.Errorf("%s: failed, error: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误"})
	}
}
