package fetcher

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const dropSelectors = "script,noscript,style,iframe,svg,template,link[rel='stylesheet']"

// ToMarkdown converts rendered HTML into line-oriented markdown. Links and
// images keep absolute URLs resolved against pageURL, bold text is kept as
// **...** and every block element starts a new line.
func ToMarkdown(rawHTML, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(dropSelectors).Remove()

	base, _ := url.Parse(pageURL)
	r := &mdRenderer{base: base}
	for _, node := range doc.Find("body").Nodes {
		r.children(node)
	}
	return collapseBlankLines(r.out.String()), nil
}

type mdRenderer struct {
	base      *url.URL
	out       strings.Builder
	lastRune  rune
	listDepth int
}

func (r *mdRenderer) write(s string) {
	if s == "" {
		return
	}
	r.out.WriteString(s)
	for _, c := range s {
		r.lastRune = c
	}
}

func (r *mdRenderer) space() {
	if r.lastRune == 0 || r.lastRune == ' ' || r.lastRune == '\n' {
		return
	}
	r.write(" ")
}

func (r *mdRenderer) newline() {
	if r.lastRune == 0 || r.lastRune == '\n' {
		return
	}
	r.write("\n")
}

func (r *mdRenderer) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.node(c)
	}
}

func (r *mdRenderer) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text == "" {
			return
		}
		r.space()
		r.write(text)
	case html.ElementNode:
		r.element(n)
	case html.DocumentNode:
		r.children(n)
	}
}

func (r *mdRenderer) element(n *html.Node) {
	tag := strings.ToLower(n.Data)
	switch tag {
	case "br":
		r.write("\n")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		r.newline()
		r.write("\n" + strings.Repeat("#", int(tag[1]-'0')) + " ")
		r.write(r.inline(n))
		r.write("\n")
	case "strong", "b":
		if text := r.inline(n); text != "" {
			r.space()
			r.write("**" + text + "**")
		}
	case "a":
		text := r.inline(n)
		href := r.resolve(attr(n, "href"))
		switch {
		case href == "" || strings.HasPrefix(href, "javascript:"):
			if text != "" {
				r.space()
				r.write(text)
			}
		default:
			r.space()
			r.write("[" + text + "](" + href + ")")
		}
	case "img":
		src := imageSource(n)
		if src == "" {
			return
		}
		r.space()
		r.write("![" + strings.Join(strings.Fields(attr(n, "alt")), " ") + "](" + r.resolve(src) + ")")
	case "ul", "ol":
		r.newline()
		r.listDepth++
		r.children(n)
		r.listDepth--
		r.newline()
	case "li":
		r.newline()
		r.write(strings.Repeat("  ", max(r.listDepth-1, 0)) + "- ")
		r.children(n)
		r.newline()
	case "p", "div", "section", "article", "header", "footer", "main", "nav",
		"aside", "figure", "figcaption", "table", "tr", "form", "dl", "dt", "dd":
		r.newline()
		r.children(n)
		r.newline()
	case "td", "th":
		r.space()
		r.children(n)
		r.space()
	default:
		r.children(n)
	}
}

// inline renders n's subtree on a single line.
func (r *mdRenderer) inline(n *html.Node) string {
	sub := &mdRenderer{base: r.base}
	sub.children(n)
	return strings.Join(strings.Fields(sub.out.String()), " ")
}

func (r *mdRenderer) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.base != nil {
		u = r.base.ResolveReference(u)
	}
	return u.String()
}

func imageSource(n *html.Node) string {
	for _, key := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
		if v := strings.TrimSpace(attr(n, key)); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	if srcset := attr(n, "srcset"); srcset != "" {
		first := strings.TrimSpace(strings.Split(srcset, ",")[0])
		if fields := strings.Fields(first); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	result := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			result = append(result, "")
			continue
		}
		blank = 0
		result = append(result, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}
