package hostenv

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
	"github.com/iamgideonidoko/beacon/pkg/logger"
)

var errNoFamily = errors.New("font stack resolves to no family")

// Average advance and line height per em for the generic families when
// no installed face backs them.
var genericMetrics = map[string]struct{ advance, height float64 }{
	"monospace":  {advance: 0.6, height: 1.17},
	"sans-serif": {advance: 0.55, height: 1.15},
	"serif":      {advance: 0.5, height: 1.13},
}

func DefaultFontDirs() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return []string{"/System/Library/Fonts", "/Library/Fonts", filepath.Join(home, "Library", "Fonts")}
	case "windows":
		return []string{filepath.Join(os.Getenv("WINDIR"), "Fonts")}
	default:
		return []string{"/usr/share/fonts", "/usr/local/share/fonts", filepath.Join(home, ".fonts"), filepath.Join(home, ".local", "share", "fonts")}
	}
}

// FontMeasurer measures text with the TrueType and OpenType faces found
// in a set of directories. The directories are indexed on first use.
type FontMeasurer struct {
	dirs []string
	log  *logger.Logger

	once     sync.Once
	families map[string]*sfnt.Font
}

func NewFontMeasurer(dirs []string, log *logger.Logger) *FontMeasurer {
	if log == nil {
		log = logger.Default()
	}
	return &FontMeasurer{dirs: dirs, log: log}
}

func (m *FontMeasurer) Measure(ctx context.Context, families []string, text string, sizePx float64) (fingerprint.Box, error) {
	m.once.Do(m.index)

	for _, family := range families {
		if err := ctx.Err(); err != nil {
			return fingerprint.Box{}, err
		}
		key := strings.ToLower(family)
		if f, ok := m.families[key]; ok {
			return measureFace(f, text, sizePx)
		}
		if g, ok := genericMetrics[key]; ok {
			return fingerprint.Box{
				Width:  float64(len([]rune(text))) * g.advance * sizePx,
				Height: g.height * sizePx,
			}, nil
		}
	}
	return fingerprint.Box{}, errNoFamily
}

// Families reports the indexed family names.
func (m *FontMeasurer) Families() []string {
	m.once.Do(m.index)
	names := make([]string, 0, len(m.families))
	for name := range m.families {
		names = append(names, name)
	}
	return names
}

func (m *FontMeasurer) index() {
	m.families = make(map[string]*sfnt.Font)
	var buf sfnt.Buffer

	for _, dir := range m.dirs {
		if dir == "" {
			continue
		}
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".ttf", ".otf":
			default:
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			f, err := sfnt.Parse(data)
			if err != nil {
				m.log.Debug("Skipping unreadable font", map[string]any{"path": path, "error": err.Error()})
				return nil
			}
			name, err := f.Name(&buf, sfnt.NameIDFamily)
			if err != nil || name == "" {
				return nil
			}
			if _, seen := m.families[strings.ToLower(name)]; !seen {
				m.families[strings.ToLower(name)] = f
			}
			return nil
		})
	}
}

func measureFace(f *sfnt.Font, text string, sizePx float64) (fingerprint.Box, error) {
	var buf sfnt.Buffer
	ppem := fixed.Int26_6(sizePx * 64)

	var width fixed.Int26_6
	prev := sfnt.GlyphIndex(0)
	for i, r := range text {
		idx, err := f.GlyphIndex(&buf, r)
		if err != nil {
			return fingerprint.Box{}, err
		}
		if i > 0 {
			if kern, err := f.Kern(&buf, prev, idx, ppem, font.HintingNone); err == nil {
				width += kern
			}
		}
		advance, err := f.GlyphAdvance(&buf, idx, ppem, font.HintingNone)
		if err != nil {
			return fingerprint.Box{}, err
		}
		width += advance
		prev = idx
	}

	metrics, err := f.Metrics(&buf, ppem, font.HintingNone)
	if err != nil {
		return fingerprint.Box{}, err
	}
	return fingerprint.Box{
		Width:  float64(width) / 64,
		Height: float64(metrics.Ascent+metrics.Descent) / 64,
	}, nil
}
