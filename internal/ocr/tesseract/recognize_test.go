package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/adverant/nexus/ocr-pipeline/internal/processor"
)

func requireTesseract(t *testing.T) *Engine {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
	e := NewEngine(Config{DPI: 300})
	info, err := e.Describe()
	if err != nil || len(MissingLanguages(info.Languages, []string{"eng"})) > 0 {
		t.Skip("tesseract eng language pack not installed")
	}
	return e
}

func textPNG(t *testing.T, text string) ([]byte, image.Rectangle) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString(text)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes(), img.Bounds()
}

func TestEngineRecognizeWordBoxes(t *testing.T) {
	e := requireTesseract(t)
	data, bounds := textPNG(t, "Hello PDF")

	regions, err := e.Recognize(context.Background(), data, "eng")
	require.NoError(t, err)
	require.NotEmpty(t, regions)

	var words []string
	for _, r := range regions {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		words = append(words, strings.ToLower(r.Text))
		assert.False(t, r.Box.Empty(), "word %q has an empty box", r.Text)
		assert.True(t, r.Box.In(bounds), "word %q box %v outside the image", r.Text, r.Box)
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 100.0)
	}
	joined := strings.Join(words, " ")
	assert.Contains(t, joined, "hello")
	assert.Contains(t, joined, "pdf")
}

func TestEngineRecognizeUnknownLanguage(t *testing.T) {
	e := requireTesseract(t)
	data, _ := textPNG(t, "Hello")

	_, err := e.Recognize(context.Background(), data, "zzz")
	assert.Error(t, err)
}

func TestEngineRecognizeCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(Config{}).Recognize(ctx, nil, "eng")
	assert.ErrorIs(t, err, context.Canceled)
}

// textPDF builds a PDF with one line of Helvetica text per page.
func textPDF(lines []string) []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	var kids []string
	for _, line := range lines {
		stream := fmt.Sprintf("BT /F1 36 Tf 40 80 Td (%s) Tj ET", line)
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
		content := len(objs)
		objs = append(objs, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 200] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>", content))
		kids = append(kids, fmt.Sprintf("%d 0 R", len(objs)))
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(lines))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestPipelineTwoPagePDF(t *testing.T) {
	e := requireTesseract(t)
	pdftoppm, err := exec.LookPath("pdftoppm")
	if err != nil {
		t.Skip("pdftoppm not installed")
	}

	pre, err := processor.NewImagePreprocessor(processor.DefaultPreprocessConfig())
	require.NoError(t, err)
	rast := processor.NewPdftoppmRasterizer(processor.RasterizerConfig{
		PdftoppmPath: pdftoppm,
		DPI:          300,
		TempDir:      t.TempDir(),
	})
	agg, err := processor.NewDocumentAggregator(processor.AggregatorConfig{
		SupportedLanguages: []string{"eng"},
		PageConcurrency:    2,
	}, processor.NewPageExtractor(pre, e), rast)
	require.NoError(t, err)

	res, err := agg.Process(context.Background(), textPDF([]string{"INVOICE", "RECEIPT"}), "scan.pdf", "eng", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalPages)

	first := strings.Index(res.FullText, "--- Page 1 ---")
	second := strings.Index(res.FullText, "--- Page 2 ---")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
	assert.Contains(t, res.FullText[first:second], "INVOICE")
	assert.Contains(t, res.FullText[second:], "RECEIPT")

	for _, b := range res.TextBlocks {
		assert.Contains(t, []int{1, 2}, b.Page)
		assert.Greater(t, b.BBox.Width, 0)
		assert.Greater(t, b.BBox.Height, 0)
	}
}
