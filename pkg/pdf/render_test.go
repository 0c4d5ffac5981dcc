package pdf

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"toz-go/internal/testutils"
)

// pngColorType 读取 IHDR 中的颜色类型：2 为 RGB，6 为 RGBA。
func pngColorType(t *testing.T, data []byte) byte {
	t.Helper()
	require.Greater(t, len(data), 26)
	require.Equal(t, "IHDR", string(data[12:16]))
	require.Equal(t, uint32(13), binary.BigEndian.Uint32(data[8:12]))
	return data[25]
}

func TestFlatten_TransparentBecomesWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	// (0,0) 半透明黑色，其余完全透明
	src.SetNRGBA(0, 0, color.NRGBA{A: 128})

	out := Flatten(src)

	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, out.RGBAAt(3, 3))
	corner := out.RGBAAt(0, 0)
	assert.Equal(t, uint8(255), corner.A)
	assert.InDelta(t, 127, int(corner.R), 2)
	assert.Equal(t, corner.R, corner.G)
	assert.True(t, out.Opaque())
}

func TestFlatten_KeepsOffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 20, 30))
	out := Flatten(src)
	assert.Equal(t, src.Bounds(), out.Bounds())
	assert.True(t, out.Opaque())
}

func TestEncodePNG_NoAlphaChannel(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	src.SetNRGBA(2, 2, color.NRGBA{R: 200, A: 10})

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, Flatten(src)))

	assert.Equal(t, byte(2), pngColorType(t, buf.Bytes()), "flattened png must be RGB without alpha")

	decoded, err := png.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	r, g, b, a := decoded.At(7, 7).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a})
}

func TestEncodePNG_TransparentKeepsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, src))
	assert.Equal(t, byte(6), pngColorType(t, buf.Bytes()))
}

func TestFitzRenderer_Renders300DPI(t *testing.T) {
	// MinimalPDF 的页面为 72pt 见方，300 DPI 下应为 300x300 像素
	single, err := NewInspector().ExtractPage(testutils.MinimalPDF(1), 1)
	require.NoError(t, err)

	img, err := NewFitzRenderer().Render(single, DefaultDPI)
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, Flatten(img)))
	assert.Equal(t, byte(2), pngColorType(t, buf.Bytes()))

	decoded, err := png.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	r, g, b, a := decoded.At(150, 150).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a})
}

func TestFitzRenderer_RejectsGarbage(t *testing.T) {
	_, err := NewFitzRenderer().Render([]byte("not a pdf"), DefaultDPI)
	assert.Error(t, err)
}
