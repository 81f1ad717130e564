package parser

import (
	"fmt"
	"regexp"
)

// filter keeps the values matching re. With a capture group, the first
// group replaces the value.
func (p *Parser) filter(re *regexp.Regexp, values []string) []string {
	var out []string
	for _, v := range values {
		m := re.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			out = append(out, m[1])
		} else {
			out = append(out, m[0])
		}
	}
	return out
}

// getOrCompile returns a cached compiled regex or compiles and caches a new one.
func (p *Parser) getOrCompile(pattern string) (*regexp.Regexp, error) {
	if re, ok := p.cache[pattern]; ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}

	p.cache[pattern] = re
	return re, nil
}
