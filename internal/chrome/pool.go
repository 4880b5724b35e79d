package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	u "text2img/internal/utils"
)

// Tab is one leased browser tab. Ctx carries the chromedp target and is
// valid until the tab is released.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// Pool keeps a single headless browser alive and bounds the number of
// concurrently leased tabs with a token semaphore. Tabs are created per
// lease; only the browser process is reused.
type Pool struct {
	cfg u.Config

	sem chan struct{}

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	profileDir    string
	closed        bool
	restarts      int
	lastRestart   time.Time
}

// Stats is a snapshot of pool state for the observability endpoint.
type Stats struct {
	Enabled      bool
	Capacity     int
	Idle         int
	InUse        int
	PoolSizeConf int
	ProfileDir   string
	TimeoutSecs  int
	Restarts     int
	LastRestart  string
}

// AllocatorOptions returns the exec allocator flags used for every browser
// launch. Software rendering is forced to avoid Vulkan/ANGLE issues in
// minimal container environments.
func AllocatorOptions(cfg u.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.Image.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Image.ChromePath))
	}
	if cfg.Image.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

func createProfileDir(cfg u.Config) (string, error) {
	base := cfg.Image.UserDataDir
	if base == "" {
		return os.MkdirTemp("", "text2img-chrome-*")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create profile base dir: %w", err)
	}
	return os.MkdirTemp(base, "profile-*")
}

// NewPool creates a pool sized by cfg.Image.ChromePoolSize.
func NewPool(cfg u.Config) (*Pool, error) {
	size := cfg.Image.ChromePoolSize
	if size <= 0 {
		return nil, errors.New("chrome pool disabled")
	}

	p := &Pool{cfg: cfg, sem: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	if err := p.start(); err != nil {
		return nil, err
	}
	return p, nil
}

// start provisions a fresh profile dir and browser context. The browser
// process itself launches lazily on first use.
func (p *Pool) start() error {
	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(p.cfg, dir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p.mu.Lock()
	p.profileDir = dir
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.allocCancel = allocCancel
	p.mu.Unlock()
	return nil
}

// Acquire leases a tab, blocking until one is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	closed := p.closed
	browserCtx := p.browserCtx
	p.mu.Unlock()

	if closed {
		return nil, errors.New("chrome pool closed")
	}

	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	return &Tab{Ctx: tabCtx, cancel: cancel}, nil
}

// Release closes the tab and returns its token to the pool.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab != nil && tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil {
		u.Debug("Tab released after render error", "error", renderErr.Error())
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}

	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Restart tears down the browser and starts a fresh one with a new profile
// dir. Tokens are refilled to capacity since in-flight tabs died with the
// old browser.
func (p *Pool) Restart() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("chrome pool closed")
	}
	browserCancel := p.browserCancel
	allocCancel := p.allocCancel
	oldDir := p.profileDir
	p.mu.Unlock()

	if browserCancel != nil {
		browserCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	if oldDir != "" {
		_ = os.RemoveAll(oldDir)
	}

	if err := p.start(); err != nil {
		return err
	}

	p.mu.Lock()
	p.restarts++
	p.lastRestart = time.Now()
	p.mu.Unlock()

refill:
	for {
		select {
		case p.sem <- struct{}{}:
		default:
			break refill
		}
	}

	u.Warn("Chrome pool restarted", "restarts", p.restarts)
	return nil
}

// Close shuts the pool down. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	browserCancel := p.browserCancel
	allocCancel := p.allocCancel
	dir := p.profileDir
	p.mu.Unlock()

	if browserCancel != nil {
		browserCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}

// Stats returns a snapshot for the stats endpoint.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := cap(p.sem)
	idle := len(p.sem)

	st := Stats{
		Enabled:      !p.closed && capacity > 0,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.Image.ChromePoolSize,
		ProfileDir:   p.profileDir,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
	}
	if !p.lastRestart.IsZero() {
		st.LastRestart = p.lastRestart.Format(time.RFC3339)
	}
	return st
}

// IsSessionInterrupted reports whether err looks like the browser session
// died underneath us rather than a problem with the render input.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"target closed",
		"session closed",
		"browser closed",
		"context canceled",
		"websocket: close",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
