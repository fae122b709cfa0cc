package ledger

import (
	"fmt"
	"time"
)

// Period is a calendar month. Its string form, YYYY-MM, is what the store
// keeps, so comparing labels as strings orders them in time.
type Period struct {
	Year  int
	Month time.Month
}

func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return PeriodOf(t), nil
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// String returns the storage label, e.g. "2026-10".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Label returns the human form, e.g. "October 2026".
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Add moves the period by n months.
func (p Period) Add(n int) Period {
	return PeriodOf(p.Start().AddDate(0, n, 0))
}

func (p Period) Next() Period { return p.Add(1) }

func (p Period) Prev() Period { return p.Add(-1) }

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}
