package parser

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// extractXPath applies a single XPath expression and returns matched values.
func (p *Parser) extractXPath(doc *html.Node, rule Rule) ([]string, error) {
	nodes, err := htmlquery.QueryAll(doc, rule.Selector)
	if err != nil {
		p.logger.Warn("invalid xpath", "selector", rule.Selector, "error", err)
		return nil, err
	}

	var values []string
	for _, node := range nodes {
		var val string

		switch rule.Attribute {
		case "", "text":
			val = strings.TrimSpace(htmlquery.InnerText(node))
		case "html", "innerHTML":
			val = htmlquery.OutputHTML(node, false)
		case "outerHTML":
			val = htmlquery.OutputHTML(node, true)
		default:
			val = htmlquery.SelectAttr(node, rule.Attribute)
		}

		if val != "" {
			values = append(values, val)
		}
	}

	return values, nil
}
