package fonts

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfcompose/graphics"
)

// shapingSize is the size used for shaping; advances come back in 1/1000 em.
const shapingSize = fixed.Int26_6(1000 * 64)

// Metrics measures text by shaping it with HarfBuzz over the Go font
// family. The proportional Go fonts stand in for the sans and serif
// standard fonts and Go Mono for Courier, so widths approximate those of
// the PDF viewer's fonts.
type Metrics struct {
	mu    sync.Mutex
	faces map[Face]*gofont.Face
	cache map[measureKey]float64
}

type measureKey struct {
	face Face
	text string
}

// maxCacheEntries bounds the width cache.
const maxCacheEntries = 4096

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns a process-wide Metrics.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics returns an empty Metrics; faces are parsed on first use.
func NewMetrics() *Metrics {
	return &Metrics{
		faces: make(map[Face]*gofont.Face),
		cache: make(map[measureKey]float64),
	}
}

// Measure returns the width of the widest line of text and the height of
// all lines at the given style.
func (m *Metrics) Measure(text string, style graphics.TextStyle) (width, height float64, err error) {
	style = style.Normalized()
	face := FaceFor(style)
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		w, err := m.advance(face, line)
		if err != nil {
			return 0, 0, err
		}
		if w > width {
			width = w
		}
	}
	return width / 1000 * style.Size, float64(len(lines)) * style.Leading(), nil
}

// advance returns the advance of a single line in 1/1000 em.
func (m *Metrics) advance(face Face, line string) (float64, error) {
	if line == "" {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := measureKey{face, line}
	if w, ok := m.cache[key]; ok {
		return w, nil
	}
	f, err := m.faceLocked(face)
	if err != nil {
		return 0, err
	}

	runes := []rune(line)
	script := detectScript(runes)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      f,
		Size:      shapingSize,
		Script:    script,
		Language:  language.DefaultLanguage(),
	}
	shaper := &shaping.HarfbuzzShaper{}
	out := shaper.Shape(input)
	total := 0.0
	for _, g := range out.Glyphs {
		total += float64(g.XAdvance) / 64.0
	}
	if len(m.cache) >= maxCacheEntries {
		m.cache = make(map[measureKey]float64)
	}
	m.cache[key] = total
	return total, nil
}

func (m *Metrics) faceLocked(face Face) (*gofont.Face, error) {
	if f, ok := m.faces[face]; ok {
		return f, nil
	}
	f, err := gofont.ParseTTF(bytes.NewReader(face.ttf()))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", face, err)
	}
	m.faces[face] = f
	return f, nil
}

func (f Face) ttf() []byte {
	switch f {
	case FaceSansBold, FaceSerifBold:
		return gobold.TTF
	case FaceSansItalic, FaceSerifItalic:
		return goitalic.TTF
	case FaceSansBoldItalic, FaceSerifBoldItalic:
		return gobolditalic.TTF
	case FaceMono:
		return gomono.TTF
	case FaceMonoBold:
		return gomonobold.TTF
	case FaceMonoItalic:
		return gomonoitalic.TTF
	case FaceMonoBoldItalic:
		return gomonobolditalic.TTF
	default:
		return goregular.TTF
	}
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

func detectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	best := language.Latin
	for _, r := range runes {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			best = script
		}
	}
	return best
}

func scriptFromRune(r rune) language.Script {
	switch {
	case unicode.Is(unicode.Latin, r):
		return language.Latin
	case unicode.Is(unicode.Greek, r):
		return language.Greek
	case unicode.Is(unicode.Cyrillic, r):
		return language.Cyrillic
	case unicode.Is(unicode.Arabic, r):
		return language.Arabic
	case unicode.Is(unicode.Hebrew, r):
		return language.Hebrew
	}
	return language.Unknown
}
