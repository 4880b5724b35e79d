package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
)

const (
	// superSample is the supersampling factor: the canvas is drawn at this
	// multiple of the requested resolution and downscaled with a Lanczos
	// filter for anti-aliased text edges.
	superSample = 2

	// lineSpacingFactor is the extra gap between lines as a fraction of the
	// line height.
	lineSpacingFactor = 0.3
)

// Raster renders entirely in-process: gradient background, freetype-drawn
// white text at 2x resolution, Lanczos downscale, PNG encode. Output is
// byte-identical for identical requests.
type Raster struct {
	fonts *FontCache
}

// NewRaster creates the raster renderer on top of a shared font cache.
func NewRaster(fonts *FontCache) *Raster {
	return &Raster{fonts: fonts}
}

// Render implements Renderer. The context is accepted for interface parity;
// the raster path is synchronous CPU work with no external calls to bound.
func (r *Raster) Render(_ context.Context, req Request) ([]byte, error) {
	width := req.Width * superSample
	height := req.Height * superSample
	padding := req.Padding * superSample
	fontSize := float64(req.FontSize * superSample)

	img := Gradient(width, height)

	face := r.fonts.NewFace(fontSize)
	defer face.Close()

	maxTextWidth := width - 2*padding
	lines := WrapText(req.Text, func(s string) int {
		return font.MeasureString(face, s).Ceil()
	}, maxTextWidth)

	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := ascent + metrics.Descent.Ceil()
	spacing := int(float64(lineHeight) * lineSpacingFactor)

	blockHeight := 0
	if n := len(lines); n > 0 {
		blockHeight = n*lineHeight + (n-1)*spacing
	}
	// Center the block vertically; overlong blocks start at the top padding
	// and clip at the bottom edge.
	top := (height - blockHeight) / 2
	if top < padding {
		top = padding
	}

	fc := freetype.NewContext()
	fc.SetDPI(72)
	fc.SetFont(r.fonts.Font())
	fc.SetFontSize(fontSize)
	fc.SetClip(img.Bounds())
	fc.SetDst(img)
	fc.SetSrc(image.White)
	fc.SetHinting(font.HintingFull)

	y := top + ascent
	for _, line := range lines {
		if line != "" {
			if _, err := fc.DrawString(line, freetype.Pt(padding, y)); err != nil {
				return nil, fmt.Errorf("draw text: %w", err)
			}
		}
		y += lineHeight + spacing
	}

	out := imaging.Resize(img, req.Width, req.Height, imaging.Lanczos)
	return encodePNG(out)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
