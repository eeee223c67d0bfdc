package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// Measurement is the outcome of parsing one weather message: either a
// matched (category, value) pair or no match. The zero value is NoMatch.
type Measurement struct {
	category string
	value    float64
	matched  bool
}

// NoMatch is the outcome for a message no pattern recognised.
var NoMatch = Measurement{}

// Match returns a matched measurement.
func Match(category string, value float64) Measurement {
	return Measurement{category: category, value: value, matched: true}
}

// IsMatch reports whether a pattern matched.
func (m Measurement) IsMatch() bool { return m.matched }

// Category returns the matched category, or "" for NoMatch.
func (m Measurement) Category() string { return m.category }

// Value returns the matched value, or 0 for NoMatch.
func (m Measurement) Value() float64 { return m.value }

func (m Measurement) String() string {
	if !m.matched {
		return "no match"
	}
	return fmt.Sprintf("%s=%g", m.category, m.value)
}

// Pattern is a named regular expression with at least one capture group.
type Pattern struct {
	Category string
	Expr     *regexp.Regexp
}

// Patterns is an ordered pattern set. Order decides which category wins
// when several patterns match the same message.
type Patterns []Pattern

// CompilePattern compiles expr for category and checks it can capture a value.
func CompilePattern(category, expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: %w", category, err)
	}
	if re.NumSubexp() == 0 {
		return Pattern{}, fmt.Errorf("pattern %q: needs at least one capture group", category)
	}
	return Pattern{Category: category, Expr: re}, nil
}

// Categories returns the category names in pattern order.
func (ps Patterns) Categories() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Category
	}
	return out
}

// ExtractMeasurement returns the measurement carried by message. Patterns are
// tried in order; for the first one that matches, the value is the first
// capture group that participated in the match and parses as a float. A
// match without such a group does not count and the next pattern is tried.
func ExtractMeasurement(message string, patterns Patterns) Measurement {
	for _, p := range patterns {
		loc := p.Expr.FindStringSubmatchIndex(message)
		if loc == nil {
			continue
		}
		for g := 1; 2*g+1 < len(loc); g++ {
			start, end := loc[2*g], loc[2*g+1]
			if start < 0 {
				continue
			}
			v, err := strconv.ParseFloat(message[start:end], 64)
			if err != nil {
				continue
			}
			return Match(p.Category, v)
		}
	}
	return NoMatch
}
