package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/IshaanNene/keibastalk/internal/types"
)

// Category names a mapping table.
type Category string

const (
	Sex         Category = "sex"
	RaceType    Category = "race_type"
	Around      Category = "around"
	Weather     Category = "weather"
	GroundState Category = "ground_state"
	RaceClass   Category = "race_class"
	Margin      Category = "margin"
)

// Categories lists every mapping table that must be present at startup.
var Categories = []Category{Sex, RaceType, Around, Weather, GroundState, RaceClass, Margin}

// Code is the mapped value of a raw token. The zero Code is Unknown.
type Code struct {
	value string
	known bool
}

// Unknown is the code of tokens absent from their mapping table.
var Unknown = Code{}

// Known reports whether the token was mapped.
func (c Code) Known() bool { return c.known }

// String returns the mapped value, or "" for Unknown.
func (c Code) String() string { return c.value }

// Mapping is one token-to-code table. Keys keep their file order, which
// decides which key wins when several match inside free text.
type Mapping struct {
	Name    Category
	keys    []string
	codes   map[string]Code
	pattern *regexp.Regexp
}

// ParseMapping decodes a JSON object of token -> number or string.
func ParseMapping(name Category, data []byte) (*Mapping, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}

	m := &Mapping{Name: name, codes: make(map[string]Code)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string)

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value of %q: %w", key, err)
		}
		var value string
		switch v := raw.(type) {
		case json.Number:
			value = v.String()
		case string:
			value = v
		default:
			return nil, fmt.Errorf("value of %q: want number or string, got %T", key, raw)
		}

		if _, dup := m.codes[key]; !dup {
			m.keys = append(m.keys, key)
		}
		m.codes[key] = Code{value: value, known: true}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if len(m.keys) == 0 {
		return nil, errors.New("mapping is empty")
	}

	quoted := make([]string, len(m.keys))
	for i, k := range m.keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	m.pattern = regexp.MustCompile("(" + strings.Join(quoted, "|") + ")")
	return m, nil
}

// Lookup maps a whole token.
func (m *Mapping) Lookup(token string) Code {
	if c, ok := m.codes[token]; ok {
		return c
	}
	return Unknown
}

// Find maps the first key occurring in text, trying keys in file order at
// each position.
func (m *Mapping) Find(text string) Code {
	match := m.pattern.FindString(text)
	if match == "" {
		return Unknown
	}
	return m.codes[match]
}

// Keys returns the tokens in file order.
func (m *Mapping) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Mappings holds every table of Categories.
type Mappings map[Category]*Mapping

// LoadMappings reads <dir>/<category>.json for every category. Any missing
// or malformed table is a *types.MappingError.
func LoadMappings(dir string) (Mappings, error) {
	maps := make(Mappings, len(Categories))
	for _, c := range Categories {
		path := filepath.Join(dir, string(c)+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &types.MappingError{Name: string(c), Path: path, Err: err}
		}
		m, err := ParseMapping(c, data)
		if err != nil {
			return nil, &types.MappingError{Name: string(c), Path: path, Err: err}
		}
		maps[c] = m
	}
	return maps, nil
}

// Lookup maps a token through the named table.
func (ms Mappings) Lookup(c Category, token string) Code {
	m, ok := ms[c]
	if !ok {
		return Unknown
	}
	return m.Lookup(token)
}

// Find maps the first key of the named table found in text.
func (ms Mappings) Find(c Category, text string) Code {
	m, ok := ms[c]
	if !ok {
		return Unknown
	}
	return m.Find(text)
}
