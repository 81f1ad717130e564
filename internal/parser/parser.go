package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// RuleType selects how a Rule locates its values.
type RuleType string

const (
	CSS   RuleType = "css"
	XPath RuleType = "xpath"
)

// Rule is one (selector, extraction) pair of a page schema.
//
// CSS and XPath rules select nodes and read Attribute from each ("" or
// "text" for trimmed text, "html" for inner markup, otherwise the named
// attribute). When Pattern is set, values that do not match are dropped
// and, if the pattern has a capture group, the first group replaces the
// value.
type Rule struct {
	Name      string   `yaml:"name"`
	Type      RuleType `yaml:"type"`
	Selector  string   `yaml:"selector"`
	Attribute string   `yaml:"attribute,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty"`
}

// Document is a parsed page usable by both goquery and htmlquery.
type Document struct {
	Query *goquery.Document
	Root  *html.Node
}

// NewDocument parses UTF-8 markup.
func NewDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return newDocumentFromNode(root), nil
}

// NewDocumentBytes parses UTF-8 markup held in memory.
func NewDocumentBytes(b []byte) (*Document, error) {
	return NewDocument(bytes.NewReader(b))
}

// ParsePage parses a raw page capture, decoding it from the charset it
// declares (BOM or meta tag). Undeclared non-UTF-8 pages fall back to
// windows-1252.
func ParsePage(page []byte) (*Document, error) {
	r, err := charset.NewReader(bytes.NewReader(page), "")
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	return NewDocument(r)
}

func newDocumentFromNode(n *html.Node) *Document {
	return &Document{Query: goquery.NewDocumentFromNode(n), Root: n}
}

// Scope returns a document rooted at the first element matching the CSS
// selector, or false when nothing matches.
func (d *Document) Scope(selector string) (*Document, bool) {
	sel := d.Query.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return newDocumentFromNode(sel.Get(0)), true
}

// Parser evaluates rules against documents. Compiled patterns are cached;
// a Parser is not safe for concurrent use.
type Parser struct {
	logger *slog.Logger
	cache  map[string]*regexp.Regexp
}

// New creates a Parser.
func New(logger *slog.Logger) *Parser {
	return &Parser{
		logger: logger.With("component", "parser"),
		cache:  make(map[string]*regexp.Regexp),
	}
}

// Apply evaluates a single rule and returns the matched values in
// document order.
func (p *Parser) Apply(doc *Document, rule Rule) ([]string, error) {
	var (
		values []string
		err    error
	)

	switch rule.Type {
	case CSS, "":
		values = p.extractCSS(doc.Query, rule)
	case XPath:
		values, err = p.extractXPath(doc.Root, rule)
	default:
		return nil, fmt.Errorf("rule %q: unknown type %q", rule.Name, rule.Type)
	}
	if err != nil {
		return nil, wrapRuleErr(rule, err)
	}

	if rule.Pattern == "" {
		return values, nil
	}
	re, err := p.getOrCompile(rule.Pattern)
	if err != nil {
		return nil, wrapRuleErr(rule, err)
	}
	return p.filter(re, values), nil
}

// ApplyAll evaluates every rule and returns the values keyed by rule name.
func (p *Parser) ApplyAll(doc *Document, rules []Rule) (map[string][]string, error) {
	out := make(map[string][]string, len(rules))
	for _, rule := range rules {
		values, err := p.Apply(doc, rule)
		if err != nil {
			return nil, err
		}
		out[rule.Name] = values
	}
	return out, nil
}

func wrapRuleErr(rule Rule, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("rule %q: %w", rule.Name, err)
}
