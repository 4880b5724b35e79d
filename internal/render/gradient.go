package render

import (
	"image"
	"image/color"
)

// gradientTopGray is the gray level at the top row; the gradient fades
// linearly to pure black at the bottom.
const gradientTopGray = 30

// Gradient returns a width x height bitmap with a vertical linear gradient
// from dark gray at the top to black at the bottom. Deterministic pure
// function of its arguments.
func Gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		fade := float64(y) / float64(height)
		gray := uint8(gradientTopGray * (1 - fade))
		row := color.RGBA{R: gray, G: gray, B: gray, A: 255}
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, row)
		}
	}
	return img
}
