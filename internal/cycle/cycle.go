package cycle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cycle is a billing cycle: the year-month anchor derived from a
// statement's payment-received date.
type Cycle struct {
	Year  int
	Month time.Month
}

// FromTime truncates a date to its billing cycle.
func FromTime(t time.Time) Cycle {
	return Cycle{Year: t.Year(), Month: t.Month()}
}

// String formats a cycle like "2025-01".
func (c Cycle) String() string {
	return fmt.Sprintf("%04d-%02d", c.Year, int(c.Month))
}

// IsZero reports whether the cycle is unset.
func (c Cycle) IsZero() bool {
	return c.Year == 0 && c.Month == 0
}

// Parse parses "2025-01" into a Cycle.
func Parse(s string) (Cycle, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Cycle{}, fmt.Errorf("invalid billing cycle format: %q", s)
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Cycle{}, fmt.Errorf("invalid year in billing cycle %q: %w", s, err)
	}

	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Cycle{}, fmt.Errorf("invalid month in billing cycle %q: %w", s, err)
	}
	if month < 1 || month > 12 {
		return Cycle{}, fmt.Errorf("month out of range in billing cycle %q", s)
	}

	return Cycle{Year: year, Month: time.Month(month)}, nil
}
