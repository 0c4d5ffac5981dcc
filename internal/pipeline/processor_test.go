package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"toz-go/internal/testutils"
	"toz-go/pkg/pdf"
	"toz-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePages 假装源文件有 count 页，ExtractPage 返回页码作为内容。
type fakePages struct {
	count    int
	countErr error
}

func (f *fakePages) PageCount(io.ReadSeeker) (int, error) {
	return f.count, f.countErr
}

func (f *fakePages) ExtractPage(_ []byte, page int) ([]byte, error) {
	return []byte(fmt.Sprintf("page-%d", page)), nil
}

// fakeRenderer 返回带透明区域的位图，并可在渲染某页前执行回调。
type fakeRenderer struct {
	mu       sync.Mutex
	rendered []string
	before   func(single []byte)
}

func (r *fakeRenderer) Render(single []byte, dpi float64) (image.Image, error) {
	if r.before != nil {
		r.before(single)
	}
	r.mu.Lock()
	r.rendered = append(r.rendered, string(single))
	r.mu.Unlock()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	return img, nil
}

type fakeMirror struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (m *fakeMirror) PutPage(_ context.Context, _ string, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, filepath.Base(localPath))
	return m.err
}

func newJob(t *testing.T, root, name string) tasks.ConversionJob {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	src := filepath.Join(dir, name+".pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-fake"), 0o644))
	return tasks.ConversionJob{Name: name, TargetDirectory: dir, SourcePath: src}
}

// listPNG 返回目录中的 png 文件名（排序后）。
func listPNG(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".png" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func TestProcessor_WritesEveryPage(t *testing.T) {
	job := newJob(t, t.TempDir(), "report")
	renderer := &fakeRenderer{}
	p := NewProcessor(&fakePages{count: 3}, renderer, 0, nil)

	require.NoError(t, p.Process(context.Background(), job))

	assert.Equal(t, []string{"report-1.png", "report-2.png", "report-3.png"}, listPNG(t, job.TargetDirectory))
	assert.Equal(t, []string{"page-1", "page-2", "page-3"}, renderer.rendered, "pages render in ascending order")

	data, err := os.ReadFile(filepath.Join(job.TargetDirectory, "report-2.png"))
	require.NoError(t, err)
	require.Equal(t, uint32(13), binary.BigEndian.Uint32(data[8:12]))
	assert.Equal(t, byte(2), data[25], "page image must not carry an alpha channel")

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(0, 0).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b}, "transparent pixels become white")

	// 不留下临时文件
	entries, err := os.ReadDir(job.TargetDirectory)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestProcessor_ZeroPages(t *testing.T) {
	job := newJob(t, t.TempDir(), "empty")
	p := NewProcessor(&fakePages{count: 0}, &fakeRenderer{}, pdf.DefaultDPI, nil)

	require.NoError(t, p.Process(context.Background(), job))
	assert.Empty(t, listPNG(t, job.TargetDirectory))
}

func TestProcessor_ReparseFailure(t *testing.T) {
	job := newJob(t, t.TempDir(), "broken")
	p := NewProcessor(&fakePages{countErr: errors.New("bad xref")}, &fakeRenderer{}, pdf.DefaultDPI, nil)

	err := p.Process(context.Background(), job)
	assert.ErrorIs(t, err, ErrConversion)
	assert.Empty(t, listPNG(t, job.TargetDirectory))
}

func TestProcessor_MissingSource(t *testing.T) {
	job := newJob(t, t.TempDir(), "gone")
	require.NoError(t, os.Remove(job.SourcePath))
	p := NewProcessor(&fakePages{count: 2}, &fakeRenderer{}, pdf.DefaultDPI, nil)

	err := p.Process(context.Background(), job)
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessor_TargetRemovedBeforeStart(t *testing.T) {
	job := newJob(t, t.TempDir(), "early")
	require.NoError(t, os.RemoveAll(job.TargetDirectory))
	p := NewProcessor(&fakePages{count: 2}, &fakeRenderer{}, pdf.DefaultDPI, nil)

	err := p.Process(context.Background(), job)
	assert.ErrorIs(t, err, ErrTargetGone)
	assert.NotErrorIs(t, err, ErrConversion)
}

func TestProcessor_StopsWhenCancelled(t *testing.T) {
	job := newJob(t, t.TempDir(), "long")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	renderer := &fakeRenderer{before: func(single []byte) {
		if string(single) == "page-2" {
			cancel()
		}
	}}
	p := NewProcessor(&fakePages{count: 5}, renderer, pdf.DefaultDPI, nil)

	err := p.Process(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"long-1.png", "long-2.png"}, listPNG(t, job.TargetDirectory))
}

func TestProcessor_StopsWhenTargetRemoved(t *testing.T) {
	job := newJob(t, t.TempDir(), "deleted")
	renderer := &fakeRenderer{before: func(single []byte) {
		if string(single) == "page-2" {
			_ = os.RemoveAll(job.TargetDirectory)
		}
	}}
	p := NewProcessor(&fakePages{count: 4}, renderer, pdf.DefaultDPI, nil)

	err := p.Process(context.Background(), job)
	assert.ErrorIs(t, err, ErrTargetGone)
	_, statErr := os.Stat(job.TargetDirectory)
	assert.True(t, os.IsNotExist(statErr), "the processor must not recreate a removed directory")
}

func TestProcessor_MirrorsPages(t *testing.T) {
	job := newJob(t, t.TempDir(), "mirrored")
	mirror := &fakeMirror{err: errors.New("bucket offline")}
	p := NewProcessor(&fakePages{count: 2}, &fakeRenderer{}, pdf.DefaultDPI, mirror)

	require.NoError(t, p.Process(context.Background(), job), "mirror failures do not fail the job")
	assert.Equal(t, []string{"mirrored-1.png", "mirrored-2.png"}, mirror.paths)
}

func TestProcessor_ConcurrentJobsStayInOwnDirectory(t *testing.T) {
	root := t.TempDir()
	p := NewProcessor(&fakePages{count: 3}, &fakeRenderer{}, pdf.DefaultDPI, nil)

	const n = 8
	jobs := make([]tasks.ConversionJob, 0, n)
	for i := 0; i < n; i++ {
		jobs = append(jobs, newJob(t, root, fmt.Sprintf("doc%d", i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job tasks.ConversionJob) {
			defer wg.Done()
			errs[i] = p.Process(context.Background(), job)
		}(i, job)
	}
	wg.Wait()

	for i, job := range jobs {
		require.NoError(t, errs[i])
		assert.Equal(t, tasks.PageImageNames(job.Name, 3), listPNG(t, job.TargetDirectory))
	}
}

func TestProcessor_WithPdfcpuPageSource(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "real")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	src := testutils.WritePDF(t, dir, "real.pdf", 3)
	job := tasks.ConversionJob{Name: "real", TargetDirectory: dir, SourcePath: src}

	renderer := &fakeRenderer{}
	p := NewProcessor(pdf.NewInspector(), renderer, pdf.DefaultDPI, nil)

	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, tasks.PageImageNames("real", 3), listPNG(t, dir))
	assert.Len(t, renderer.rendered, 3)
}
