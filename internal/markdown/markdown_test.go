package markdown

import (
	"strings"
	"testing"
)

func TestToHTML_ExternalLinksOpenInNewTab(t *testing.T) {
	html := string(ToHTML("[external](https://example.com/read)", Options{
		SiteURL: "https://posts.example",
	}))

	if !strings.Contains(html, `href="https://example.com/read"`) {
		t.Fatalf("expected external href to stay as is, got %s", html)
	}
	if !strings.Contains(html, `target="_blank"`) {
		t.Fatalf("expected target blank, got %s", html)
	}
	if !strings.Contains(html, `rel="nofollow noopener noreferrer"`) {
		t.Fatalf("expected external rel attrs, got %s", html)
	}
}

func TestToHTML_DropsUnsafeLinkTargets(t *testing.T) {
	tests := []string{
		"[click](javascript:alert(document.cookie))",
		"[click](JavaScript:alert(1))",
		"[click](data:text/html;base64,PHNjcmlwdD4=)",
		"[click](vbscript:msgbox)",
	}

	for _, source := range tests {
		html := string(ToHTML(source, Options{SiteURL: "https://posts.example"}))
		if strings.Contains(html, "href=") {
			t.Fatalf("%s: expected no link, got %s", source, html)
		}
		if !strings.Contains(html, "<tt>click</tt>") {
			t.Fatalf("%s: expected link text kept as plain text, got %s", source, html)
		}
	}
}

func TestToHTML_KeepsSafeLinkTargets(t *testing.T) {
	html := string(ToHTML("[mail](mailto:team@posts.example) [top](#top) [up](../posts/)", Options{}))

	for _, href := range []string{`href="mailto:team@posts.example"`, `href="#top"`, `href="../posts/"`} {
		if !strings.Contains(html, href) {
			t.Fatalf("expected %s, got %s", href, html)
		}
	}
}

func TestToHTML_NormalizesSameSiteAbsoluteLinks(t *testing.T) {
	html := string(ToHTML("[same](https://posts.example/posts/1/?x=1#k)", Options{
		SiteURL: "https://posts.example/",
	}))

	if !strings.Contains(html, `href="/posts/1/?x=1#k"`) {
		t.Fatalf("expected normalized same-site href, got %s", html)
	}
	if strings.Contains(html, `target="_blank"`) {
		t.Fatalf("did not expect target blank for same-site links, got %s", html)
	}
}

func TestToHTML_KeepsRelativeLinksLocal(t *testing.T) {
	html := string(ToHTML("[list](/posts/)", Options{}))

	if !strings.Contains(html, `href="/posts/"`) {
		t.Fatalf("expected relative href, got %s", html)
	}
	if strings.Contains(html, "rel=") {
		t.Fatalf("did not expect rel attrs for relative links, got %s", html)
	}
}

func TestToHTML_KeepsLineBreaks(t *testing.T) {
	html := string(ToHTML("quia et suscipit\nsuscipit recusandae", Options{}))

	if !strings.Contains(html, "<br") {
		t.Fatalf("expected hard line break, got %s", html)
	}
}

func TestToHTML_HighlightsCodeBlocks(t *testing.T) {
	source := "```go\nfmt.Println(\"hello\")\n```"
	html := string(ToHTML(source, Options{}))

	if !strings.Contains(html, `class="chroma"`) {
		t.Fatalf("expected chroma class for fenced code block, got %s", html)
	}
	if !strings.Contains(html, "Println") {
		t.Fatalf("expected code content in rendered block, got %s", html)
	}
}

func TestToHTML_RendersInlineCodeClass(t *testing.T) {
	html := string(ToHTML("Use `go test ./...` now.", Options{}))

	if !strings.Contains(html, `<code class="inline-code">go test ./...</code>`) {
		t.Fatalf("expected inline code class, got %s", html)
	}
}

func TestToHTML_EmptyInput(t *testing.T) {
	if html := ToHTML("   ", Options{}); html != "" {
		t.Fatalf("expected empty output, got %q", html)
	}
}

func TestExcerpt_StripsLinkTargets(t *testing.T) {
	got := Excerpt("Read [the post](https://example.com/p/1) for **details**.", 300)

	if strings.Contains(got, "https://example.com") {
		t.Fatalf("expected no link target in excerpt, got %s", got)
	}
	if got != "Read the post for details." {
		t.Fatalf("unexpected excerpt %q", got)
	}
}

func TestExcerpt_TruncatesOnWordBoundary(t *testing.T) {
	got := Excerpt("alpha beta gamma delta", 12)
	if got != "alpha beta..." {
		t.Fatalf("expected graceful word truncation, got %q", got)
	}
}

func TestChromaCSS_CoversBothSchemes(t *testing.T) {
	css := string(ChromaCSS())
	if !strings.Contains(css, "prefers-color-scheme: light") || !strings.Contains(css, "prefers-color-scheme: dark") {
		t.Fatalf("expected light and dark blocks, got %q", css)
	}
}

func TestThemeCSSFallsBackForUnknownStyles(t *testing.T) {
	css, err := Theme{Light: "no-such-style", Dark: "monokai"}.CSS()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(css), ".chroma") {
		t.Fatalf("expected chroma rules, got %q", css)
	}
}
