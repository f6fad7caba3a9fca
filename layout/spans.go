package layout

import (
	"context"
	"strings"

	"github.com/wudi/pdfcompose/graphics"
)

// Span is a run of text with one style.
type Span struct {
	Text          string
	Style         graphics.TextStyle
	Underline     bool
	Strikethrough bool
}

// piece is a measured word or space of one span.
type piece struct {
	text  string
	span  int
	width float64
	space bool
}

type line struct {
	pieces []piece
	width  float64
	last   bool // ends a paragraph or a forced break
}

func (l *line) trim() {
	for len(l.pieces) > 0 && l.pieces[len(l.pieces)-1].space {
		l.width -= l.pieces[len(l.pieces)-1].width
		l.pieces = l.pieces[:len(l.pieces)-1]
	}
}

// Spans draws styled runs of text as one wrapped paragraph starting at the
// left margin. A '\n' in a span forces a line break.
func (e *Engine) Spans(ctx context.Context, spans []Span) error {
	return e.spansAt(ctx, spans, e.Margins.Left)
}

func (e *Engine) spansAt(ctx context.Context, spans []Span, x float64) error {
	if len(spans) == 0 {
		return nil
	}
	if err := e.ensurePage(ctx); err != nil {
		return err
	}
	spans = append([]Span(nil), spans...)
	for i := range spans {
		spans[i].Style = spans[i].Style.Normalized()
	}
	maxWidth := e.Margins.Left + e.contentWidth() - x
	lines, err := e.wrap(spans, maxWidth)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := e.drawLine(ctx, spans, l, x, maxWidth); err != nil {
			return err
		}
	}
	return nil
}

// wrap breaks spans into lines no wider than maxWidth. Words wider than a
// whole line are split between characters.
func (e *Engine) wrap(spans []Span, maxWidth float64) ([]line, error) {
	var lines []line
	var cur line
	flush := func(forced bool) {
		cur.trim()
		if len(cur.pieces) > 0 || forced {
			cur.last = forced
			lines = append(lines, cur)
		}
		cur = line{}
	}

	spaceWidths := make(map[int]float64)
	for si, span := range spans {
		if span.Text == "" {
			continue
		}
		measure := func(s string) (float64, error) {
			w, _, err := e.page.MeasureText(s, span.Style)
			return w, err
		}
		for _, tok := range tokenize(span.Text) {
			switch tok {
			case "\n":
				flush(true)
				continue
			case " ":
				if len(cur.pieces) == 0 {
					continue
				}
				sw, ok := spaceWidths[si]
				if !ok {
					var err error
					if sw, err = measure(" "); err != nil {
						return nil, err
					}
					spaceWidths[si] = sw
				}
				cur.pieces = append(cur.pieces, piece{text: " ", span: si, width: sw, space: true})
				cur.width += sw
				continue
			}

			w, err := measure(tok)
			if err != nil {
				return nil, err
			}
			if cur.width+w <= maxWidth {
				cur.pieces = append(cur.pieces, piece{text: tok, span: si, width: w})
				cur.width += w
				continue
			}
			flush(false)
			if w <= maxWidth {
				cur.pieces = append(cur.pieces, piece{text: tok, span: si, width: w})
				cur.width = w
				continue
			}
			// Character-level wrapping
			var sub strings.Builder
			subWidth := 0.0
			for _, r := range tok {
				rw, err := measure(string(r))
				if err != nil {
					return nil, err
				}
				if subWidth+rw > maxWidth && sub.Len() > 0 {
					cur.pieces = append(cur.pieces, piece{text: sub.String(), span: si, width: subWidth})
					cur.width = subWidth
					flush(false)
					sub.Reset()
					subWidth = 0
				}
				sub.WriteRune(r)
				subWidth += rw
			}
			if sub.Len() > 0 {
				cur.pieces = append(cur.pieces, piece{text: sub.String(), span: si, width: subWidth})
				cur.width = subWidth
			}
		}
	}
	flush(true)
	return lines, nil
}

// tokenize splits text into words, single spaces and line breaks. Runs of
// blanks collapse into one space.
func tokenize(text string) []string {
	var tokens []string
	var word strings.Builder
	emit := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		switch r {
		case '\n':
			emit()
			tokens = append(tokens, "\n")
		case ' ', '\t', '\r':
			emit()
			if n := len(tokens); n == 0 || tokens[n-1] != " " {
				tokens = append(tokens, " ")
			}
		default:
			word.WriteRune(r)
		}
	}
	emit()
	return tokens
}

// drawLine draws l at the cursor, aligned by the first span's style, and
// advances the cursor by the line's leading.
func (e *Engine) drawLine(ctx context.Context, spans []Span, l line, x, maxWidth float64) error {
	size, leading := 0.0, 0.0
	for _, p := range l.pieces {
		st := spans[p.span].Style
		if st.Size > size {
			size = st.Size
		}
		if st.Leading() > leading {
			leading = st.Leading()
		}
	}
	if len(l.pieces) == 0 {
		leading = spans[0].Style.Leading()
	}
	if err := e.checkPageBreak(ctx, leading); err != nil {
		return err
	}

	align := spans[0].Style.Align
	gap := 0.0
	switch align {
	case graphics.AlignCenter:
		x += (maxWidth - l.width) / 2
	case graphics.AlignRight:
		x += maxWidth - l.width
	case graphics.AlignJustify:
		if !l.last {
			spaces := 0
			for _, p := range l.pieces {
				if p.space {
					spaces++
				}
			}
			if spaces > 0 {
				gap = (maxWidth - l.width) / float64(spaces)
			}
		}
	}

	// Consecutive pieces of one span are drawn as one run, except when
	// justifying, where every space is widened.
	curX := x
	for i := 0; i < len(l.pieces); {
		j := i
		var sb strings.Builder
		width := 0.0
		for j < len(l.pieces) && l.pieces[j].span == l.pieces[i].span && !(gap > 0 && l.pieces[j].space) {
			sb.WriteString(l.pieces[j].text)
			width += l.pieces[j].width
			j++
		}
		if j == i {
			// A widened space.
			curX += l.pieces[i].width + gap
			i++
			continue
		}
		span := spans[l.pieces[i].span]
		st := span.Style
		top := e.cursorY + size - st.Size
		if err := e.page.AddText(ctx, sb.String(), curX, top, &st); err != nil {
			return err
		}
		if span.Underline {
			y := top + st.Size + 2
			if err := e.page.DrawLine(ctx, curX, y, curX+width, y, st.Color, 0.75); err != nil {
				return err
			}
		}
		if span.Strikethrough {
			y := top + st.Size*0.65
			if err := e.page.DrawLine(ctx, curX, y, curX+width, y, st.Color, 0.75); err != nil {
				return err
			}
		}
		curX += width
		i = j
	}
	e.cursorY += leading
	return nil
}
