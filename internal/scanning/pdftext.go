package scanning

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/zombor/billscan/internal/logger"
)

// PDFTextLayer reads the embedded text of digitally generated PDFs and only
// falls back to the wrapped engine for scans and images
type PDFTextLayer struct {
	next Engine
	log  zerolog.Logger
}

// NewPDFTextLayer wraps next
func NewPDFTextLayer(next Engine) *PDFTextLayer {
	return &PDFTextLayer{
		next: next,
		log:  logger.WithComponent("scanning"),
	}
}

// TextLayerFactory wraps the engines produced by factory with a PDFTextLayer
func TextLayerFactory(factory EngineFactory) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		next, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		return NewPDFTextLayer(next), nil
	}
}

// Recognize returns the text layer of a PDF when it has one
func (p *PDFTextLayer) Recognize(ctx context.Context, data []byte, contentType string) (string, error) {
	if contentType != "application/pdf" {
		return p.next.Recognize(ctx, data, contentType)
	}

	text, err := pdfText(data)
	if err != nil {
		p.log.Debug().Err(err).Msg("No usable PDF text layer, using recognition engine")
		return p.next.Recognize(ctx, data, contentType)
	}
	if strings.TrimSpace(text) == "" {
		return p.next.Recognize(ctx, data, contentType)
	}

	p.log.Debug().Int("text_length", len(text)).Msg("Using PDF text layer")
	return text, nil
}

// Close closes the wrapped engine
func (p *PDFTextLayer) Close() error {
	return p.next.Close()
}

// pdfText rebuilds the lines of every page from glyph positions. The parser
// panics on some malformed files.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, line := range pageLines(page.Content().Text) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String()), nil
}

// pageLines groups glyphs into lines, top to bottom, and orders each line
// left to right. Glyphs within half a font size of the line's baseline belong
// to it. A horizontal gap between glyphs becomes a space.
func pageLines(glyphs []pdf.Text) []string {
	kept := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S == "\n" || g.S == "\r" || g.S == "" {
			continue
		}
		kept = append(kept, g)
	}
	slices.SortStableFunc(kept, func(a, b pdf.Text) int {
		return cmp.Compare(b.Y, a.Y)
	})

	var lines [][]pdf.Text
	for _, g := range kept {
		if n := len(lines); n > 0 {
			first := lines[n-1][0]
			if math.Abs(first.Y-g.Y) <= lineTolerance(first, g) {
				lines[n-1] = append(lines[n-1], g)
				continue
			}
		}
		lines = append(lines, []pdf.Text{g})
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		slices.SortStableFunc(line, func(a, b pdf.Text) int {
			return cmp.Compare(a.X, b.X)
		})

		var b strings.Builder
		for i, g := range line {
			if i > 0 {
				prev := line[i-1]
				gap := g.X - (prev.X + prev.W)
				if gap > math.Max(g.FontSize*0.15, 1) && !isBlank(prev.S) && !isBlank(g.S) {
					b.WriteString(" ")
				}
			}
			b.WriteString(g.S)
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lineTolerance(a, b pdf.Text) float64 {
	size := math.Max(a.FontSize, b.FontSize)
	if size <= 0 {
		return 1
	}
	return size / 2
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
