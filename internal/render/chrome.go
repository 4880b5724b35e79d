package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"text2img/internal/chrome"
	u "text2img/internal/utils"
)

// Chrome renders by loading a styled HTML document in headless Chrome and
// capturing a screenshot at the requested viewport size. The document
// reproduces the raster path's look with CSS: the same vertical gradient,
// bold white text, padding and character-level word breaking; anti-aliasing
// comes from the browser's own text rasterizer.
type Chrome struct {
	cfg u.Config

	poolMu  sync.Mutex
	pool    *chrome.Pool
	poolErr error
}

// NewChrome creates the browser-backed renderer. The tab pool is started
// lazily on first use.
func NewChrome(cfg u.Config) *Chrome {
	return &Chrome{cfg: cfg}
}

// Pool returns the lazily initialized tab pool, or (nil, nil) when pooling
// is disabled by configuration.
func (r *Chrome) Pool() (*chrome.Pool, error) {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()

	if r.cfg.Image.ChromePoolSize <= 0 {
		return nil, nil
	}
	if r.pool != nil {
		return r.pool, nil
	}
	pool, err := chrome.NewPool(r.cfg)
	if err != nil {
		r.poolErr = err
		return nil, err
	}
	r.pool = pool
	return r.pool, nil
}

// Render implements Renderer.
func (r *Chrome) Render(ctx context.Context, req Request) ([]byte, error) {
	doc, err := buildDocument(req)
	if err != nil {
		return nil, err
	}

	pool, err := r.Pool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		// Fallback: start a new Chrome instance per request.
		return r.renderOnce(ctx, doc, req)
	}

	timeout := time.Duration(r.cfg.Image.TimeoutSecs) * time.Second

	runOnce := func() ([]byte, error) {
		acquireCtx, acquireCancel := context.WithTimeout(ctx, 5*time.Second)
		defer acquireCancel()

		tab, err := pool.Acquire(acquireCtx)
		if err != nil {
			return nil, err
		}

		tabCtx, cancel := context.WithTimeout(tab.Ctx, timeout)
		buf, renderErr := captureScreenshot(tabCtx, doc, req.Width, req.Height)
		cancel()

		pool.Release(tab, renderErr)
		return buf, renderErr
	}

	buf, renderErr := runOnce()
	if renderErr != nil && chrome.IsSessionInterrupted(renderErr) {
		u.Warn("Chrome session interrupted; restarting pool and retrying once", "error", renderErr)
		_ = pool.Restart()
		return runOnce()
	}
	return buf, renderErr
}

// renderOnce launches a throwaway browser for a single screenshot.
func (r *Chrome) renderOnce(ctx context.Context, doc string, req Request) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "text2img-chrome-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chrome.AllocatorOptions(r.cfg, tmpDir)...)
	defer allocCancel()

	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := time.Duration(r.cfg.Image.TimeoutSecs) * time.Second
	chromeCtx, cancel = context.WithTimeout(chromeCtx, timeout)
	defer cancel()

	return captureScreenshot(chromeCtx, doc, req.Width, req.Height)
}

// captureScreenshot sets the document content in an existing tab and grabs a
// PNG of the full viewport.
func captureScreenshot(ctx context.Context, doc string, width, height int) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, doc).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(200*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			shot, err := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				Do(ctx)
			if err != nil {
				return err
			}
			buf = shot
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

var documentTmpl = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  html, body { margin: 0; padding: 0; }
  body {
    width: {{.Width}}px;
    height: {{.Height}}px;
    background: linear-gradient(to bottom, rgb(30,30,30), rgb(0,0,0));
    display: flex;
    align-items: center;
    overflow: hidden;
  }
  pre {
    margin: 0;
    box-sizing: border-box;
    width: 100%;
    padding: {{.Padding}}px;
    font-family: "Manrope", "Helvetica Neue", Arial, sans-serif;
    font-weight: 700;
    font-size: {{.FontSize}}px;
    line-height: 1.3;
    color: #fff;
    white-space: pre-wrap;
    word-break: break-all;
  }
</style>
</head>
<body><pre>{{.Text}}</pre></body>
</html>`))

func buildDocument(req Request) (string, error) {
	var b bytes.Buffer
	if err := documentTmpl.Execute(&b, req); err != nil {
		return "", fmt.Errorf("build document: %w", err)
	}
	return b.String(), nil
}
