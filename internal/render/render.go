package render

import "context"

// Request describes a single image render job. The HTTP layer validates and
// coerces all values before they get here; Width and Height are always
// positive and Text is already sanitized.
type Request struct {
	Text     string
	Width    int
	Height   int
	FontSize int
	Padding  int
}

// Renderer turns a request into PNG bytes. Two implementations exist, the
// in-process raster path and the headless-Chrome path; exactly one is
// constructed at startup.
type Renderer interface {
	Render(ctx context.Context, req Request) ([]byte, error)
}
