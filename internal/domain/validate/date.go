package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Date is a calendar date without time-of-day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseISODate parses a strict YYYY-MM-DD value.
func ParseISODate(value string) (Date, error) {
	if !datePattern.MatchString(value) {
		return Date{}, fmt.Errorf("date %q: expected YYYY-MM-DD", value)
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("date %q: %w", value, err)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON encodes the date as "YYYY-MM-DD", or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(d.String())), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD", an empty string, or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" {
		*d = Date{}
		return nil
	}
	unquoted, err := strconv.Unquote(raw)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if unquoted == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseISODate(unquoted)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
