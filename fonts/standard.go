// Package fonts selects the standard PDF fonts for a text style, encodes
// text for them and measures text extents.
package fonts

import (
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/pdfcompose/graphics"
)

// Face is one of the twelve non-symbolic standard fonts.
type Face int

const (
	FaceSans Face = iota
	FaceSansBold
	FaceSansItalic
	FaceSansBoldItalic
	FaceSerif
	FaceSerifBold
	FaceSerifItalic
	FaceSerifBoldItalic
	FaceMono
	FaceMonoBold
	FaceMonoItalic
	FaceMonoBoldItalic
)

var baseFonts = [...]string{
	FaceSans:            "Helvetica",
	FaceSansBold:        "Helvetica-Bold",
	FaceSansItalic:      "Helvetica-Oblique",
	FaceSansBoldItalic:  "Helvetica-BoldOblique",
	FaceSerif:           "Times-Roman",
	FaceSerifBold:       "Times-Bold",
	FaceSerifItalic:     "Times-Italic",
	FaceSerifBoldItalic: "Times-BoldItalic",
	FaceMono:            "Courier",
	FaceMonoBold:        "Courier-Bold",
	FaceMonoItalic:      "Courier-Oblique",
	FaceMonoBoldItalic:  "Courier-BoldOblique",
}

// BaseFont returns the PDF /BaseFont name of f.
func (f Face) BaseFont() string {
	if f < 0 || int(f) >= len(baseFonts) {
		return baseFonts[FaceSans]
	}
	return baseFonts[f]
}

func (f Face) String() string { return f.BaseFont() }

// FaceFor maps a text style to a standard font. Unknown families fall back
// to the sans family.
func FaceFor(style graphics.TextStyle) Face {
	base := FaceSans
	switch family := strings.ToLower(strings.TrimSpace(style.Family)); {
	case strings.Contains(family, "courier"), strings.Contains(family, "mono"):
		base = FaceMono
	case strings.Contains(family, "times"), strings.Contains(family, "serif") && !strings.Contains(family, "sans"):
		base = FaceSerif
	}
	bold := style.Weight == graphics.WeightBold
	italic := style.Slant == graphics.SlantItalic
	switch {
	case bold && italic:
		return base + 3
	case italic:
		return base + 2
	case bold:
		return base + 1
	}
	return base
}

// EncodeWinAnsi converts text to WinAnsiEncoding bytes. Runes outside the
// encoding become '?'.
func EncodeWinAnsi(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if b, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, b)
			continue
		}
		out = append(out, '?')
	}
	return out
}

// DecodeWinAnsi is the inverse of EncodeWinAnsi.
func DecodeWinAnsi(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		sb.WriteRune(charmap.Windows1252.DecodeByte(b))
	}
	return sb.String()
}
