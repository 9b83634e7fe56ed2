package markdown

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
)

// Theme picks the chroma styles used for code blocks in each color scheme.
type Theme struct {
	Light string
	Dark  string
}

var DefaultTheme = Theme{Light: "github", Dark: "monokai"}

var defaultThemeCSS = sync.OnceValue(func() template.CSS {
	css, err := DefaultTheme.CSS()
	if err != nil {
		return ""
	}
	return css
})

// ChromaCSS returns the stylesheet for code blocks rendered by ToHTML.
func ChromaCSS() template.CSS {
	return defaultThemeCSS()
}

// CSS renders both styles, each behind its prefers-color-scheme query.
// Unknown style names fall back to the chroma default style.
func (t Theme) CSS() (template.CSS, error) {
	var out strings.Builder
	for _, scheme := range []struct {
		media string
		style string
	}{
		{media: "light", style: t.Light},
		{media: "dark", style: t.Dark},
	} {
		css, err := styleCSS(scheme.style)
		if err != nil {
			return "", fmt.Errorf("%s scheme: %w", scheme.media, err)
		}
		out.WriteString("@media (prefers-color-scheme: " + scheme.media + ") {\n")
		out.WriteString(css)
		out.WriteString("}\n")
	}

	return template.CSS(out.String()), nil
}

func styleCSS(name string) (string, error) {
	style := styles.Get(name)
	if style == nil {
		style = styles.Fallback
	}

	formatter := chromahtml.New(chromahtml.WithClasses(true))
	var buffer bytes.Buffer
	if err := formatter.WriteCSS(&buffer, style); err != nil {
		return "", err
	}
	return buffer.String(), nil
}
