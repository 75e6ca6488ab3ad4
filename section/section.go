// Package section classifies message indices against sorted, disjoint
// inclusion ranges without buffering the stream.
package section

import (
	"fmt"
	"strconv"
	"strings"
)

// IndexSection is the closed interval [FirstLine, LastLine] over 0-based
// message ordinals.
type IndexSection struct {
	FirstLine int `json:"first_line" yaml:"first_line" msgpack:"first_line"`
	LastLine  int `json:"last_line" yaml:"last_line" msgpack:"last_line"`
}

// Contains reports whether i falls inside the section.
func (s IndexSection) Contains(i int) bool {
	return s.FirstLine <= i && i <= s.LastLine
}

func (s IndexSection) String() string {
	if s.FirstLine == s.LastLine {
		return strconv.Itoa(s.FirstLine)
	}
	return fmt.Sprintf("%d-%d", s.FirstLine, s.LastLine)
}

// InvalidError describes why a section list was rejected.
type InvalidError struct {
	// Index is the position of the offending section. For an overlap it is
	// the later section of the pair.
	Index  int
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid section at position %d: %s", e.Index, e.Reason)
}

// Validate checks that every section is well formed and that the list is
// sorted with no overlap. Touching sections (a.LastLine+1 == b.FirstLine)
// are allowed. An empty list is valid.
func Validate(sections []IndexSection) error {
	for i, s := range sections {
		if s.FirstLine < 0 {
			return &InvalidError{Index: i, Reason: fmt.Sprintf("first line %d is negative", s.FirstLine)}
		}
		if s.FirstLine > s.LastLine {
			return &InvalidError{
				Index:  i,
				Reason: fmt.Sprintf("first line %d is after last line %d", s.FirstLine, s.LastLine),
			}
		}
	}
	for i := 1; i < len(sections); i++ {
		prev, cur := sections[i-1], sections[i]
		if prev.LastLine >= cur.FirstLine {
			return &InvalidError{
				Index:  i,
				Reason: fmt.Sprintf("section %s overlaps or precedes %s", cur, prev),
			}
		}
	}
	return nil
}

// Valid reports whether Validate accepts sections.
func Valid(sections []IndexSection) bool {
	return Validate(sections) == nil
}

// Parse parses "N" or "N-M" into a section. It does not validate ordering.
func Parse(s string) (IndexSection, error) {
	s = strings.TrimSpace(s)
	first, last, isRange := strings.Cut(s, "-")

	a, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return IndexSection{}, fmt.Errorf("parse section %q: %w", s, err)
	}
	if !isRange {
		return IndexSection{FirstLine: a, LastLine: a}, nil
	}
	b, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return IndexSection{}, fmt.Errorf("parse section %q: %w", s, err)
	}
	return IndexSection{FirstLine: a, LastLine: b}, nil
}

// ParseList parses a comma-separated list such as "0-10,12,20-25".
// An empty string yields an empty list.
func ParseList(s string) ([]IndexSection, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]IndexSection, 0, len(parts))
	for _, p := range parts {
		sec, err := Parse(p)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, nil
}
