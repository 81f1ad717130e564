package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// extractCSS applies a single CSS rule and returns matched values.
func (p *Parser) extractCSS(doc *goquery.Document, rule Rule) []string {
	var values []string

	doc.Find(rule.Selector).Each(func(i int, sel *goquery.Selection) {
		var val string

		switch rule.Attribute {
		case "", "text":
			val = Text(sel)
		case "html", "innerHTML":
			val, _ = sel.Html()
		case "outerHTML":
			val, _ = goquery.OuterHtml(sel)
		default:
			val, _ = sel.Attr(rule.Attribute)
		}

		if val != "" {
			values = append(values, val)
		}
	})

	return values
}

// Text returns the trimmed text of a selection. Line breaks (<br>) count
// as whitespace so that multi-valued cells stay splittable.
func Text(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	return strings.TrimSpace(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
	case html.CommentNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}
