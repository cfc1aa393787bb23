// Package validate provides soft, accumulating field validation primitives.
//
// Primitives never fail hard. Each returns a tagged Field carrying the parsed
// value, whether that value is usable, and at most one Issue. A Collector
// gathers issues across a batch; a batch is valid only when no issue was
// collected.
package validate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Issue describes a single field-level problem. Path is "<row>.<field>".
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Path + ": " + i.Message
}

// Path builds the issue path for a zero-based row index and field name.
func Path(row int, field string) string {
	return fmt.Sprintf("%d.%s", row, field)
}

// Field is the tagged outcome of a primitive. OK reports whether Value is
// usable; Issue may be set even when OK is true.
type Field[T any] struct {
	Value T
	OK    bool
	Issue *Issue
}

func ok[T any](v T) Field[T] {
	return Field[T]{Value: v, OK: true}
}

func failed[T any](path, message string) Field[T] {
	return Field[T]{Issue: &Issue{Path: path, Message: message}}
}

// RequireString fails when value is absent or blank; otherwise it returns the trimmed value.
func RequireString(value string, present bool, path, label string) Field[string] {
	trimmed := strings.TrimSpace(value)
	if !present || trimmed == "" {
		return failed[string](path, label+" is required")
	}
	return ok(trimmed)
}

// OptionalString returns the trimmed value and false when it is blank.
func OptionalString(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

// DecimalOption tunes ParseDecimal.
type DecimalOption func(*decimalRules)

type decimalRules struct {
	min *decimal.Decimal
}

// WithMin reports values strictly below minimum.
func WithMin(minimum decimal.Decimal) DecimalOption {
	return func(r *decimalRules) {
		r.min = &minimum
	}
}

// ParseDecimal parses value as a decimal number. A value below the configured
// minimum is reported but still returned as usable.
func ParseDecimal(value, path, label string, opts ...DecimalOption) Field[decimal.Decimal] {
	var rules decimalRules
	for _, opt := range opts {
		if opt != nil {
			opt(&rules)
		}
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return failed[decimal.Decimal](path, label+" is required")
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return failed[decimal.Decimal](path, label+" must be a number")
	}
	field := ok(parsed)
	if rules.min != nil && parsed.LessThan(*rules.min) {
		field.Issue = &Issue{Path: path, Message: fmt.Sprintf("%s must be >= %s", label, rules.min.String())}
	}
	return field
}

// ParseDate parses a strict YYYY-MM-DD value.
func ParseDate(value, path, label string) Field[Date] {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return failed[Date](path, label+" is required")
	}
	parsed, err := ParseISODate(trimmed)
	if err != nil {
		return failed[Date](path, label+" must be a valid date (YYYY-MM-DD)")
	}
	return ok(parsed)
}

// Collector accumulates issues for one validation call.
type Collector struct {
	issues []Issue
}

// Add appends an issue.
func (c *Collector) Add(path, message string) {
	c.issues = append(c.issues, Issue{Path: path, Message: message})
}

// Issues returns a copy of the collected issues.
func (c *Collector) Issues() []Issue {
	out := make([]Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Len returns the number of collected issues.
func (c *Collector) Len() int { return len(c.issues) }

// Take records the field's issue, if any, and returns its value and usability.
func Take[T any](c *Collector, f Field[T]) (T, bool) {
	if f.Issue != nil {
		c.issues = append(c.issues, *f.Issue)
	}
	return f.Value, f.OK
}

// Report is the outcome of validating a batch of rows.
type Report[R any] struct {
	Data   []R
	Issues []Issue
}

// NewReport builds a report from assembled records and the collector's issues.
func NewReport[R any](data []R, c *Collector) Report[R] {
	if data == nil {
		data = []R{}
	}
	return Report[R]{Data: data, Issues: c.Issues()}
}

// Valid reports whether the batch produced no issues.
func (r Report[R]) Valid() bool {
	return len(r.Issues) == 0
}
