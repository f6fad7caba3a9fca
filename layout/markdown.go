package layout

import (
	"context"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/wudi/pdfcompose/graphics"
	"github.com/wudi/pdfcompose/table"
)

const (
	listIndent  = 15.0
	quoteIndent = 20.0
	codeFamily  = "Courier"
)

// LinkColor is the color of link text in rendered markdown.
var LinkColor = graphics.RGB(0, 0, 0.8)

// Markdown renders CommonMark source with GFM tables and strikethrough.
// Headings, paragraphs, lists, code blocks, block quotes, thematic breaks
// and tables are supported; raw HTML is skipped.
func (e *Engine) Markdown(ctx context.Context, source string) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))
	r := &mdRenderer{e: e, src: src}
	return r.blocks(ctx, doc, e.Margins.Left, e.TextStyle.Normalized())
}

type mdRenderer struct {
	e   *Engine
	src []byte
}

// inlineState carries the decoration of the inline node being walked.
type inlineState struct {
	style         graphics.TextStyle
	underline     bool
	strikethrough bool
}

func (r *mdRenderer) gap(ctx context.Context, base graphics.TextStyle) error {
	return r.e.Space(ctx, base.Leading()/2)
}

func (r *mdRenderer) blocks(ctx context.Context, parent ast.Node, x float64, base graphics.TextStyle) error {
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		if err := r.block(ctx, child, x, base); err != nil {
			return err
		}
	}
	return nil
}

func (r *mdRenderer) block(ctx context.Context, node ast.Node, x float64, base graphics.TextStyle) error {
	switch n := node.(type) {
	case *ast.Heading:
		style := r.e.headingStyle(n.Level)
		style.Color = base.Color
		if err := r.e.spansAt(ctx, r.inline(n, inlineState{style: style}), x); err != nil {
			return err
		}
		return r.gap(ctx, base)
	case *ast.Paragraph:
		if err := r.e.spansAt(ctx, r.inline(n, inlineState{style: base}), x); err != nil {
			return err
		}
		return r.gap(ctx, base)
	case *ast.TextBlock:
		return r.e.spansAt(ctx, r.inline(n, inlineState{style: base}), x)
	case *ast.List:
		if err := r.list(ctx, n, x, base); err != nil {
			return err
		}
		if n.Parent().Kind() == ast.KindDocument {
			return r.gap(ctx, base)
		}
		return nil
	case *ast.FencedCodeBlock:
		return r.code(ctx, n.Lines(), x, base)
	case *ast.CodeBlock:
		return r.code(ctx, n.Lines(), x, base)
	case *ast.Blockquote:
		return r.blocks(ctx, n, x+quoteIndent, base.Italic())
	case *ast.ThematicBreak:
		return r.e.Rule(ctx)
	case *east.Table:
		if err := r.table(ctx, n, x, base); err != nil {
			return err
		}
		return r.gap(ctx, base)
	case *ast.HTMLBlock:
		return nil
	default:
		return r.blocks(ctx, n, x, base)
	}
}

func (r *mdRenderer) list(ctx context.Context, n *ast.List, x float64, base graphics.TextStyle) error {
	num := n.Start
	for item := n.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if n.IsOrdered() {
			marker = strconv.Itoa(num) + "."
			num++
		}
		leading := base.Leading()
		if err := r.e.checkPageBreak(ctx, leading); err != nil {
			return err
		}
		if err := r.e.page.AddText(ctx, marker, x, r.e.cursorY, &base); err != nil {
			return err
		}
		if item.ChildCount() == 0 {
			r.e.cursorY += leading
			continue
		}
		if err := r.blocks(ctx, item, x+listIndent, base); err != nil {
			return err
		}
	}
	return nil
}

// code draws the lines of a code block in a monospaced face, keeping their
// indentation. Lines are not wrapped.
func (r *mdRenderer) code(ctx context.Context, lines *text.Segments, x float64, base graphics.TextStyle) error {
	style := base
	style.Family = codeFamily
	style.Weight = graphics.WeightNormal
	style.Slant = graphics.SlantNormal
	leading := style.Leading()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(r.src)), "\r\n")
		line = strings.ReplaceAll(line, "\t", "    ")
		if err := r.e.checkPageBreak(ctx, leading); err != nil {
			return err
		}
		if line != "" {
			if err := r.e.page.AddText(ctx, line, x, r.e.cursorY, &style); err != nil {
				return err
			}
		}
		r.e.cursorY += leading
	}
	return r.gap(ctx, base)
}

// table converts a GFM table to a table.Table spanning the width available
// at x. The header row is bold and repeated on continuation pages.
func (r *mdRenderer) table(ctx context.Context, n *east.Table, x float64, base graphics.TextStyle) error {
	cols := len(n.Alignments)
	if cols == 0 {
		return nil
	}
	if err := r.e.ensurePage(ctx); err != nil {
		return err
	}
	width := (r.e.Margins.Left + r.e.contentWidth() - x) / float64(cols)
	widths := make([]float64, cols)
	for i := range widths {
		widths[i] = width
	}
	t := table.New(widths...)
	t.Style.TextStyle = base

	headers := 0
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		style := base
		if _, ok := row.(*east.TableHeader); ok {
			style = base.Bold()
			headers++
		}
		var cells []table.Cell
		for c := row.FirstChild(); c != nil; c = c.NextSibling() {
			cell, ok := c.(*east.TableCell)
			if !ok {
				continue
			}
			cs := style
			switch cell.Alignment {
			case east.AlignCenter:
				cs = cs.WithAlign(graphics.AlignCenter)
			case east.AlignRight:
				cs = cs.WithAlign(graphics.AlignRight)
			}
			cells = append(cells, table.Cell{Text: plain(r.inline(cell, inlineState{style: cs})), Style: &cs})
		}
		t.Rows = append(t.Rows, table.Row{Cells: cells})
	}
	return r.e.table(ctx, t, headers, x, nil)
}

// inline flattens the inline children of n into spans.
func (r *mdRenderer) inline(n ast.Node, st inlineState) []Span {
	var spans []Span
	add := func(s string) {
		if s == "" {
			return
		}
		spans = append(spans, Span{Text: s, Style: st.style, Underline: st.underline, Strikethrough: st.strikethrough})
	}
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			add(string(c.Segment.Value(r.src)))
			switch {
			case c.HardLineBreak():
				add("\n")
			case c.SoftLineBreak():
				add(" ")
			}
		case *ast.String:
			add(string(c.Value))
		case *ast.Emphasis:
			next := st
			if c.Level >= 2 {
				next.style = next.style.Bold()
			} else {
				next.style = next.style.Italic()
			}
			spans = append(spans, r.inline(c, next)...)
		case *ast.CodeSpan:
			next := st
			next.style.Family = codeFamily
			spans = append(spans, r.inline(c, next)...)
		case *ast.Link:
			next := st
			next.underline = true
			next.style.Color = LinkColor
			spans = append(spans, r.inline(c, next)...)
		case *ast.AutoLink:
			next := st
			next.underline = true
			next.style.Color = LinkColor
			spans = append(spans, Span{Text: string(c.Label(r.src)), Style: next.style, Underline: true, Strikethrough: st.strikethrough})
		case *east.Strikethrough:
			next := st
			next.strikethrough = true
			spans = append(spans, r.inline(c, next)...)
		case *ast.RawHTML:
		default:
			spans = append(spans, r.inline(c, st)...)
		}
	}
	return spans
}

func plain(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}
