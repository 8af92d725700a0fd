package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"unicode/utf8"

	svg "github.com/ajstarks/svgo"
)

// Style controls the geometry and colors of the rendered image.
type Style struct {
	FontFamily string
	FontSize   int
	LineHeight int
	Margin     int
	// CharWidth is the advance of one monospaced glyph at FontSize.
	CharWidth  float64
	Background string
	Foreground string
}

// DefaultStyle returns a dark theme sized for a 14px monospace font.
func DefaultStyle() Style {
	return Style{
		FontFamily: "ui-monospace,SFMono-Regular,Menlo,Consolas,monospace",
		FontSize:   14,
		LineHeight: 18,
		Margin:     16,
		CharWidth:  8.4,
		Background: "#0d1117",
		Foreground: "#c9d1d9",
	}
}

// Size returns the image width and height needed for doc.
func (s Style) Size(doc Document) (int, int) {
	widest := 0
	for _, line := range doc.lines {
		widest = max(widest, utf8.RuneCountInString(line))
	}
	width := 2*s.Margin + int(math.Ceil(float64(widest)*s.CharWidth))
	height := 2*s.Margin + len(doc.lines)*s.LineHeight
	return width, height
}

// RenderSVG writes doc as a standalone SVG with one text element per line.
// Line content is XML-escaped by svgo.
func RenderSVG(w io.Writer, doc Document, style Style) error {
	bw := bufio.NewWriter(w)
	width, height := style.Size(doc)

	canvas := svg.New(bw)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:"+style.Background)
	canvas.Gstyle(fmt.Sprintf("font-family:%s;font-size:%dpx;fill:%s", style.FontFamily, style.FontSize, style.Foreground))
	for i, line := range doc.lines {
		if line == "" {
			continue
		}
		y := style.Margin + i*style.LineHeight + style.FontSize
		canvas.Text(style.Margin, y, line, `xml:space="preserve"`)
	}
	canvas.Gend()
	canvas.End()

	return bw.Flush()
}

// WriteSVGFile renders doc to path. The image is written to a temporary file
// in the same directory and renamed into place, so path never holds a partial image.
func WriteSVGFile(path string, doc Document, style Style) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = RenderSVG(tmp, doc, style); err != nil {
		return fmt.Errorf("failed to render svg: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move svg into place: %w", err)
	}
	return nil
}
