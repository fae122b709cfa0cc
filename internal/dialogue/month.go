package dialogue

import (
	"sync"
	"time"

	"github.com/NgigiN/ledgerbot/internal/ledger"
)

// MonthBook answers "which month is this user recording against". The
// lookup order is the user's own choice, then the configured default, then
// the calendar month of the clock. The default is fixed at construction;
// only per-user choices change afterwards.
type MonthBook struct {
	mu        sync.RWMutex
	overrides map[string]ledger.Period
	fallback  ledger.Period
	now       func() time.Time
}

// NewMonthBook builds a book with an optional fixed default (zero means use
// the clock).
func NewMonthBook(fallback ledger.Period, now func() time.Time) *MonthBook {
	if now == nil {
		now = time.Now
	}
	return &MonthBook{
		overrides: make(map[string]ledger.Period),
		fallback:  fallback,
		now:       now,
	}
}

func (b *MonthBook) Current(userID string) ledger.Period {
	b.mu.RLock()
	p, ok := b.overrides[userID]
	b.mu.RUnlock()
	if ok {
		return p
	}
	if !b.fallback.IsZero() {
		return b.fallback
	}
	return ledger.PeriodOf(b.now())
}

func (b *MonthBook) Set(userID string, p ledger.Period) {
	b.mu.Lock()
	b.overrides[userID] = p
	b.mu.Unlock()
}
