// Package search extracts filter matches from a message stream.
package search

import (
	"regexp"
)

// Filter is one search predicate. A plain Value matches literally; IsRegex
// treats it as an RE2 pattern.
type Filter struct {
	Value      string `json:"value" yaml:"value" msgpack:"value"`
	IsRegex    bool   `json:"is_regex" yaml:"is_regex" msgpack:"is_regex"`
	IgnoreCase bool   `json:"ignore_case" yaml:"ignore_case" msgpack:"ignore_case"`
	IsWord     bool   `json:"is_word" yaml:"is_word" msgpack:"is_word"`
}

// Pattern returns the regular expression the filter compiles to.
func (f Filter) Pattern() string {
	p := f.Value
	if !f.IsRegex {
		p = regexp.QuoteMeta(p)
	}
	if f.IsWord {
		p = `\b(?:` + p + `)\b`
	}
	if f.IgnoreCase {
		p = `(?i)` + p
	}
	return p
}

// Compile compiles the filter.
func (f Filter) Compile() (*regexp.Regexp, error) {
	if f.Value == "" {
		return nil, &Error{Kind: ErrorConfig, Msg: "filter value is empty"}
	}
	re, err := regexp.Compile(f.Pattern())
	if err != nil {
		return nil, &Error{Kind: ErrorConfig, Msg: "invalid filter " + f.Value, Err: err}
	}
	return re, nil
}
