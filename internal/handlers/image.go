package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"text2img/internal/chrome"
	"text2img/internal/render"
	u "text2img/internal/utils"
)

// ImageRequestParams holds validated input parameters.
type ImageRequestParams struct {
	Text     string
	Width    int
	Height   int
	FontSize int
	Padding  int
}

// ImageService bundles configuration, the Redis cache and the active
// renderer strategy.
type ImageService struct {
	Config   *u.Config
	Redis    *redis.Client
	Renderer render.Renderer
}

// NewImageService constructs the service with the renderer selected by
// configuration: "chrome" for the headless-browser path, anything else gets
// the in-process raster path.
func NewImageService(cfg u.Config, rdb *redis.Client) *ImageService {
	var r render.Renderer
	if cfg.Image.Renderer == "chrome" {
		r = render.NewChrome(cfg)
	} else {
		r = render.NewRaster(render.NewFontCache(cfg.Image.FontPaths...))
	}
	return &ImageService{
		Config:   &cfg,
		Redis:    rdb,
		Renderer: r,
	}
}

// HandleRender generates a new image or serves a cached copy.
func (svc *ImageService) HandleRender(c *fiber.Ctx) error {
	params, err := extractImageParams(c, *svc.Config)
	if err != nil {
		return err
	}
	return svc.processImageGeneration(c, params)
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandleHealth reports service liveness. The body is part of the public
// contract and stays byte-stable.
func (svc *ImageService) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(healthResponse{
		Status:  "healthy",
		Message: "Text to Image Generator API",
	})
}

// processImageGeneration handles caching and rendering.
func (svc *ImageService) processImageGeneration(c *fiber.Ctx, params *ImageRequestParams) error {
	cacheKey := computeImageCacheKey(params, svc.Config.Image.Renderer)

	// Try to serve from Redis cache
	if svc.Redis != nil && svc.Config.Cache.ImageCacheEnabled {
		if cached, err := getCachedImage(c, svc.Redis, cacheKey); err == nil && cached != nil {
			return c.Send(cached)
		}
	}

	pngBuf, err := svc.Renderer.Render(c.Context(), render.Request{
		Text:     params.Text,
		Width:    params.Width,
		Height:   params.Height,
		FontSize: params.FontSize,
		Padding:  params.Padding,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			u.Error("Image generation timeout", "timeout_secs", svc.Config.Image.TimeoutSecs, "error", err.Error())
			return fiber.NewError(fiber.StatusRequestTimeout, "Image rendering took too long")
		}
		if chrome.IsSessionInterrupted(err) {
			u.Error("Chrome session interrupted", "error", err.Error())
			return fiber.NewError(fiber.StatusServiceUnavailable, "Chrome session interrupted")
		}
		u.Error("Image generation failed", "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Image generation failed")
	}

	// Cache rendered PNG
	if svc.Redis != nil && svc.Config.Cache.ImageCacheEnabled {
		setCachedImage(c, svc.Redis, cacheKey, pngBuf, time.Duration(svc.Config.Cache.ImageCacheTTL))
	}

	requestID := c.Get("X-Request-ID")
	u.Info("Image generated",
		"width", params.Width, "height", params.Height,
		"bytes", len(pngBuf), "request_id", requestID)

	setImageHeaders(c)
	return c.Send(pngBuf)
}

func setImageHeaders(c *fiber.Ctx) {
	c.Set("Content-Type", "image/png")
	c.Set("Cache-Control", "public, max-age=3600")
	c.Set("Content-Disposition", "inline")
}

// extractImageParams reads and coerces query parameters. Numeric params
// never error: missing, malformed or non-positive values fall back to
// defaults and oversized dimensions are clamped. Only text beyond the byte
// limit is rejected.
func extractImageParams(c *fiber.Ctx, cfg u.Config) (*ImageRequestParams, error) {
	text := c.Query("text", cfg.Image.DefaultText)
	if len(text) > cfg.Limits.MaxTextBytes {
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("Text input exceeds %d bytes", cfg.Limits.MaxTextBytes))
	}

	text = render.CleanText(text)
	if text == "" {
		text = cfg.Image.DefaultText
	}

	return &ImageRequestParams{
		Text:     text,
		Width:    positiveQueryInt(c, "width", cfg.Image.DefaultWidth, cfg.Image.MaxWidth),
		Height:   positiveQueryInt(c, "height", cfg.Image.DefaultHeight, cfg.Image.MaxHeight),
		FontSize: positiveQueryInt(c, "font_size", cfg.Image.DefaultFontSize, 0),
		Padding:  positiveQueryInt(c, "padding", cfg.Image.DefaultPadding, 0),
	}, nil
}

// positiveQueryInt parses a positive integer query param, falling back to
// def for anything missing, malformed or non-positive. A max of 0 means
// unclamped.
func positiveQueryInt(c *fiber.Ctx, name string, def, max int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v <= 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// computeImageCacheKey creates a SHA256-based cache key from all parameters
// that influence the output.
func computeImageCacheKey(params *ImageRequestParams, renderer string) string {
	h := sha256.New()
	h.Write([]byte(params.Text))
	fmt.Fprintf(h, "|%d|%d|%d|%d|%s",
		params.Width, params.Height, params.FontSize, params.Padding, renderer)
	return "imgcache:" + hex.EncodeToString(h.Sum(nil))
}

// getCachedImage attempts to retrieve a cached PNG from Redis.
func getCachedImage(c *fiber.Ctx, rdb *redis.Client, key string) ([]byte, error) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := rdb.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err)
		return nil, err
	}

	u.Info("Image cache hit", "key", key)
	setImageHeaders(c)
	return cached, nil
}

// setCachedImage stores a PNG in Redis. Failures are logged, never surfaced.
func setCachedImage(c *fiber.Ctx, rdb *redis.Client, key string, data []byte, ttl time.Duration) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = 1 * time.Minute
	}

	if err := rdb.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", err)
	}
}

// HandleRendererStats exposes basic observability for the Chrome pool
// (capacity / idle / in_use). With the raster renderer there is no pool and
// the endpoint reports it disabled.
func (svc *ImageService) HandleRendererStats(c *fiber.Ctx) error {
	cr, ok := svc.Renderer.(*render.Chrome)
	if !ok {
		return c.JSON(fiber.Map{
			"renderer": svc.Config.Image.Renderer,
			"enabled":  false,
			"capacity": 0,
			"idle":     0,
			"in_use":   0,
		})
	}

	pool, err := cr.Pool()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}

	// Pool disabled; each request launches its own browser.
	if pool == nil {
		return c.JSON(fiber.Map{
			"renderer":       "chrome",
			"enabled":        false,
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": svc.Config.Image.ChromePoolSize,
			"timeout_secs":   svc.Config.Image.TimeoutSecs,
			"restarts":       0,
		})
	}

	s := pool.Stats(svc.Config.Image.TimeoutSecs)
	return c.JSON(fiber.Map{
		"renderer":       "chrome",
		"enabled":        s.Enabled,
		"capacity":       s.Capacity,
		"idle":           s.Idle,
		"in_use":         s.InUse,
		"pool_size_conf": s.PoolSizeConf,
		"profile_dir":    s.ProfileDir,
		"timeout_secs":   s.TimeoutSecs,
		"restarts":       s.Restarts,
		"last_restart":   s.LastRestart,
	})
}
