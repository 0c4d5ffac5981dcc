package pdf

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"github.com/gen2brain/go-fitz"
)

// DefaultDPI 是页面栅格化的分辨率。
const DefaultDPI = 300

// FitzRenderer 使用 MuPDF（go-fitz）把单页 PDF 渲染为位图。
type FitzRenderer struct{}

// NewFitzRenderer 创建一个 FitzRenderer。
func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

// Render 渲染 single（只含一页的 PDF）的第一页。
func (r *FitzRenderer) Render(single []byte, dpi float64) (image.Image, error) {
	doc, err := fitz.NewFromMemory(single)
	if err != nil {
		return nil, fmt.Errorf("打开单页 PDF 失败: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, fmt.Errorf("单页 PDF 不包含页面")
	}
	img, err := doc.ImageDPI(0, dpi)
	if err != nil {
		return nil, fmt.Errorf("渲染页面失败: %w", err)
	}
	return img, nil
}

// Flatten 把 img 合成到不透明的白色背景上，去掉所有透明度。
func Flatten(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)
	return dst
}

// EncodePNG 以 PNG 写出 img。完全不透明的图像会被编码为不带 alpha 通道的 RGB。
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	return enc.Encode(w, img)
}
