package visualize

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/a-h/templ"
)

type palette struct {
	background string
	foreground string
	muted      string
	gap        string
}

func paletteFor(theme string) palette {
	if theme == "dark" {
		return palette{background: "#1e1e1e", foreground: "#e8e8e8", muted: "#666666", gap: "#ff7f50"}
	}
	return palette{background: "#ffffff", foreground: "#222222", muted: "#bbbbbb", gap: "#d9480f"}
}

// Page wraps body in a standalone HTML document styled for cfg.Theme.
func Page(title string, cfg Config, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := paletteFor(cfg.Theme)
		head := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { background: %s; color: %s; font-family: system-ui, sans-serif; margin: 2rem; }
svg text { fill: %s; font-size: 12px; }
</style>
</head>
<body>
<h1>%s</h1>
`, templ.EscapeString(title), p.background, p.foreground, p.foreground, templ.EscapeString(title))
		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n</body>\n</html>\n")
		return err
	})
}

// Image turns an <svg> body into a standalone SVG document. The page styles
// are moved inside the image with a background rect for cfg.Theme.
func Image(cfg Config, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		if err := body.Render(ctx, &b); err != nil {
			return err
		}
		markup := b.String()
		open := strings.IndexByte(markup, '>')
		if !strings.HasPrefix(markup, "<svg") || open < 0 {
			return fmt.Errorf("body is not an svg element")
		}
		p := paletteFor(cfg.Theme)
		_, err := fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
%s<style>text { fill: %s; font-family: system-ui, sans-serif; font-size: 12px; }</style><rect width="100%%" height="100%%" fill="%s"/>%s
`, markup[:open+1], p.foreground, p.background, markup[open+1:])
		return err
	})
}

// svg collects markup and writes it in one go.
type svg struct {
	b strings.Builder
}

func newSVG(cfg Config) *svg {
	s := &svg{}
	fmt.Fprintf(&s.b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height)
	return s
}

func (s *svg) add(format string, args ...any) {
	fmt.Fprintf(&s.b, format, args...)
}

// tooltip adds an SVG <title> child when interactive output is enabled.
func (s *svg) tooltip(cfg Config, text string) {
	if cfg.Interactive {
		s.add("<title>%s</title>", templ.EscapeString(text))
	}
}

func (s *svg) component() templ.Component {
	s.b.WriteString("</svg>")
	out := s.b.String()
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, out)
		return err
	})
}

// confidenceColor maps a confidence in [0,1] from red to green.
func confidenceColor(c float64) string {
	c = math.Max(0, math.Min(1, c))
	lerp := func(a, b float64) int { return int(math.Round(a + (b-a)*c)) }
	return fmt.Sprintf("#%02x%02x%02x", lerp(0xd7, 0x1a), lerp(0x30, 0x98), lerp(0x27, 0x50))
}

func esc(s string) string {
	return templ.EscapeString(s)
}
