package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/ledgerbot/internal/storage"
)

type Summary struct {
	Income  float64
	Expense float64
	Net     float64
}

// Summarize totals the user's income and expense for one period, in whole
// cents. An empty period is {0, 0, 0}.
func (l *Ledger) Summarize(ctx context.Context, userID string, p Period) (Summary, error) {
	totals, err := l.store.Totals(ctx, userID, storage.ForPeriod(p.String()))
	if err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", p, err)
	}
	income, expense := cents(totals.Income), cents(totals.Expense)
	return Summary{
		Income:  income.InexactFloat64(),
		Expense: expense.InexactFloat64(),
		Net:     income.Sub(expense).InexactFloat64(),
	}, nil
}

// PriorBalance is the user's signed net over every period strictly before p.
// Carry-forward rows only restate an earlier month's net, so they are left
// out of the sum.
func (l *Ledger) PriorBalance(ctx context.Context, userID string, before Period) (float64, error) {
	f := storage.BeforePeriod(before.String())
	f.ExcludeCategory = CategoryCarryForward
	totals, err := l.store.Totals(ctx, userID, f)
	if err != nil {
		return 0, fmt.Errorf("prior balance before %s: %w", before, err)
	}
	return cents(totals.Income).Sub(cents(totals.Expense)).InexactFloat64(), nil
}

// cents rounds a float sum to two decimal places, dropping the binary
// residue left by adding amounts like 0.1 and 0.2.
func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
