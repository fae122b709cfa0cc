package storage

import "time"

const (
	TypeExpense = "expense"
	TypeIncome  = "income"
)

// Transaction represents one stored ledger row. Amount is always
// non-negative; the sign comes from Type.
type Transaction struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"`
	UserID      string  `gorm:"not null;index:idx_transactions_user_period"`
	Amount      float64 `gorm:"not null"`
	Category    string  `gorm:"not null;default:''"`
	Account     string  `gorm:"not null;default:''"`
	Type        string  `gorm:"not null"`
	Period      string  `gorm:"not null;index:idx_transactions_user_period"` // YYYY-MM
	Description string  `gorm:"not null;default:''"`
	CreatedAt   time.Time
}

func (Transaction) TableName() string {
	return "transactions"
}

// Signed returns the row's contribution to a net balance.
func (t Transaction) Signed() float64 {
	if t.Type == TypeIncome {
		return t.Amount
	}
	return -t.Amount
}

// Filter narrows a Query. Period and Before are period labels; when both are
// empty every period matches.
type Filter struct {
	Period          string // exact period
	Before          string // periods strictly earlier than this one
	ExcludeCategory string
	Newest          bool // newest first instead of insertion order
	Limit           int
}

func ForPeriod(period string) Filter {
	return Filter{Period: period}
}

func BeforePeriod(period string) Filter {
	return Filter{Before: period}
}

// Totals holds the income and expense sums of a filtered set of rows.
type Totals struct {
	Income  float64
	Expense float64
}
