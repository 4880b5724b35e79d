package render

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/flopp/go-findfont"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	u "text2img/internal/utils"
)

// FontCache loads and parses the display font exactly once per process. The
// parsed font is immutable and shared by reference across requests, so the
// per-request cost is face creation only, never filesystem I/O.
//
// Lookup order: the configured paths, then a system font with the same file
// name, then the embedded Go Bold face. A missing font never fails a render.
type FontCache struct {
	paths []string

	once   sync.Once
	font   *truetype.Font
	source string
}

// NewFontCache creates a cache that will try the given TTF paths in order.
func NewFontCache(paths ...string) *FontCache {
	return &FontCache{paths: paths}
}

// Font returns the parsed font, loading it on first use.
func (fc *FontCache) Font() *truetype.Font {
	fc.once.Do(fc.load)
	return fc.font
}

// Source reports where the loaded font came from. Mainly for logging and tests.
func (fc *FontCache) Source() string {
	fc.once.Do(fc.load)
	return fc.source
}

// NewFace returns a rendering face at the given pixel size. Faces keep
// internal glyph state and are not safe for concurrent use, so each render
// gets its own; creating one from the already-parsed font is cheap.
func (fc *FontCache) NewFace(size float64) font.Face {
	return truetype.NewFace(fc.Font(), &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func (fc *FontCache) load() {
	for _, path := range fc.paths {
		if f := parseFontFile(path); f != nil {
			fc.font, fc.source = f, path
			return
		}
	}

	// The bundled files are missing; look for the same font installed on
	// the system before giving up.
	for _, path := range fc.paths {
		found, err := findfont.Find(filepath.Base(path))
		if err != nil {
			continue
		}
		if f := parseFontFile(found); f != nil {
			u.Warn("Bundled font missing, using system font", "font", found)
			fc.font, fc.source = f, found
			return
		}
	}

	f, err := truetype.Parse(gobold.TTF)
	if err != nil {
		// The embedded font is known-good data; this cannot happen.
		panic("parse embedded fallback font: " + err.Error())
	}
	u.Warn("No configured font available, using embedded fallback", "paths", fc.paths)
	fc.font, fc.source = f, "embedded"
}

func parseFontFile(path string) *truetype.Font {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	f, err := truetype.Parse(data)
	if err != nil {
		u.Warn("Unparseable font file", "font", path, "error", err)
		return nil
	}
	return f
}
