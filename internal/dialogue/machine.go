// Package dialogue tracks each user's multi-step entry (amount, then
// category, then account) and the month they are recording against.
//
// A new entry command always replaces the user's unfinished entry; there is
// no queue. Work for one user is serialized through a per-user lock, while
// different users never wait on each other.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/NgigiN/ledgerbot/internal/chat"
	"github.com/NgigiN/ledgerbot/internal/keylock"
	"github.com/NgigiN/ledgerbot/internal/ledger"
	"github.com/NgigiN/ledgerbot/internal/log"
	"github.com/NgigiN/ledgerbot/internal/storage"
)

// DefaultTTL bounds how long an unfinished entry is kept.
const DefaultTTL = 10 * time.Minute

// Ledger is what the dialogue needs from the ledger.
type Ledger interface {
	Record(ctx context.Context, tx *storage.Transaction) error
	CarryForward(ctx context.Context, userID string, from, to ledger.Period) (ledger.CarryResult, error)
}

// Catalog lists the options offered at each selection step.
type Catalog struct {
	Categories []string
	Accounts   []string
}

type Config struct {
	Catalog Catalog
	TTL     time.Duration
	Months  *MonthBook
	Now     func() time.Time
	Logger  *log.Logger
}

type Machine struct {
	ledger  Ledger
	catalog Catalog
	pending *pendingBook
	months  *MonthBook
	locks   *keylock.Locker
	seq     atomic.Uint64
	ttl     time.Duration
	now     func() time.Time
	log     *log.Logger
}

func NewMachine(l Ledger, cfg Config) *Machine {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Months == nil {
		cfg.Months = NewMonthBook(ledger.Period{}, cfg.Now)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	return &Machine{
		ledger:  l,
		catalog: cfg.Catalog,
		pending: newPendingBook(cfg.TTL),
		months:  cfg.Months,
		locks:   keylock.New(),
		ttl:     cfg.TTL,
		now:     cfg.Now,
		log:     cfg.Logger.WithComponent(log.ComponentDialogue),
	}
}

// BeginEntry starts a spend or save entry for the user and returns the first
// menu: categories for spend, accounts for save. Any unfinished entry the
// user had is discarded.
func (m *Machine) BeginEntry(ctx context.Context, userID string, kind Kind, amountText, description string) (chat.Reply, error) {
	amount, err := ParseAmount(amountText)
	if err != nil {
		return chat.Reply{}, err
	}

	unlock := m.locks.Lock(userID)
	defer unlock()

	e := PendingEntry{
		Seq:         m.seq.Add(1),
		Kind:        kind,
		Amount:      amount,
		Description: strings.TrimSpace(description),
		State:       AwaitingCategory,
		CreatedAt:   m.now(),
	}
	if kind == KindSave {
		e.Category = ledger.CategorySavings
		e.State = AwaitingAccount
	}

	if prev, ok := m.pending.get(userID, e.CreatedAt); ok {
		m.log.DebugContext(ctx, "discarding unfinished entry",
			log.FieldUserID, userID,
			"seq", prev.Seq,
			"state", prev.State.String())
	}
	m.pending.put(userID, e)

	if e.State == AwaitingCategory {
		return m.categoryMenu(e), nil
	}
	return m.accountMenu(e), nil
}

// Select applies a category or account choice. Taps that do not match the
// user's live entry (none pending, expired, an older menu, a step already
// answered, an index out of range) change nothing and return an error
// wrapping ErrNoPendingEntry. A store failure while finalizing leaves the
// entry in place so the same tap can be retried.
func (m *Machine) Select(ctx context.Context, userID string, tok chat.Token) (chat.Reply, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	e, ok := m.pending.get(userID, m.now())
	if !ok {
		return chat.Reply{}, ErrNoPendingEntry
	}
	if tok.Seq != e.Seq {
		return chat.Reply{}, fmt.Errorf("%w: menu %d is from an earlier entry than %d", ErrNoPendingEntry, tok.Seq, e.Seq)
	}

	switch tok.Step {
	case chat.StepCategory:
		if e.State != AwaitingCategory {
			return chat.Reply{}, fmt.Errorf("%w: category already chosen", ErrNoPendingEntry)
		}
		category, ok := pick(m.catalog.Categories, tok.Index)
		if !ok {
			return chat.Reply{}, fmt.Errorf("%w: category index %d out of range", ErrNoPendingEntry, tok.Index)
		}
		e.Category = category
		e.State = AwaitingAccount
		m.pending.put(userID, e)
		return m.accountMenu(e), nil

	case chat.StepAccount:
		if e.State != AwaitingAccount {
			return chat.Reply{}, fmt.Errorf("%w: entry is not waiting for an account", ErrNoPendingEntry)
		}
		account, ok := pick(m.catalog.Accounts, tok.Index)
		if !ok {
			return chat.Reply{}, fmt.Errorf("%w: account index %d out of range", ErrNoPendingEntry, tok.Index)
		}
		return m.finalize(ctx, userID, e, account)
	}

	return chat.Reply{}, fmt.Errorf("%w: step %q is not part of an entry", ErrNoPendingEntry, tok.Step)
}

func (m *Machine) finalize(ctx context.Context, userID string, e PendingEntry, account string) (chat.Reply, error) {
	period := m.months.Current(userID)
	tx := &storage.Transaction{
		UserID:      userID,
		Amount:      e.Amount,
		Category:    e.Category,
		Account:     account,
		Type:        e.Kind.TxType(),
		Period:      period.String(),
		Description: e.Description,
	}
	if err := m.ledger.Record(ctx, tx); err != nil {
		return chat.Reply{}, err
	}
	m.pending.remove(userID)

	var b strings.Builder
	if e.Kind == KindSave {
		fmt.Fprintf(&b, "✅ Savings recorded: $%.2f into %s for %s.", e.Amount, account, period.Label())
	} else {
		fmt.Fprintf(&b, "✅ Expense recorded: $%.2f in %s from %s for %s.", e.Amount, e.Category, account, period.Label())
	}
	if e.Description != "" {
		fmt.Fprintf(&b, " Description: %s", e.Description)
	}
	return chat.TextReply(b.String()), nil
}

// CurrentMonth is the month the user is recording against.
func (m *Machine) CurrentMonth(userID string) ledger.Period {
	return m.months.Current(userID)
}

// MonthMenu offers the five months before the user's current month through
// the six after it.
func (m *Machine) MonthMenu(userID string) chat.Reply {
	current := m.months.Current(userID)
	options := make([]chat.Option, 0, 12)
	for i := -5; i <= 6; i++ {
		p := current.Add(i)
		options = append(options, chat.Option{Label: p.Label(), Token: chat.MonthToken(p.String())})
	}
	return chat.ChoiceReply(fmt.Sprintf("Select the new month (currently %s):", current.Label()), options)
}

// ChangeMonth points the user at a new month, first carrying the current
// month's net balance into it. Choosing the current month again changes
// nothing. If the carry fails the pointer stays where it was.
//
// Moving back carries too: the current net, which may already include a
// carry from the earlier month, lands in that earlier month, so the same
// money then counts in both months' balances.
// PriorBalance skips carry rows and is unaffected.
func (m *Machine) ChangeMonth(ctx context.Context, userID string, to ledger.Period) (chat.Reply, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	from := m.months.Current(userID)
	if from == to {
		return chat.TextReply(fmt.Sprintf("Already recording against %s.", to.Label())), nil
	}

	res, err := m.ledger.CarryForward(ctx, userID, from, to)
	if err != nil {
		return chat.Reply{}, err
	}
	m.months.Set(userID, to)

	return chat.TextReply(fmt.Sprintf("✅ Month changed to %s. Net savings carried forward: %.2f",
		to.Label(), res.Net)), nil
}

// Pending returns the user's live entry, if any.
func (m *Machine) Pending(userID string) (PendingEntry, bool) {
	return m.pending.get(userID, m.now())
}

// Sweep drops entries older than the TTL.
func (m *Machine) Sweep() int {
	return m.pending.sweep(m.now())
}

// Run sweeps expired entries every half TTL until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.InfoContext(ctx, "expired pending entries",
					log.FieldOperation, log.OpSweep,
					"removed", n,
					"remaining", m.pending.len())
			}
		}
	}
}

func (m *Machine) categoryMenu(e PendingEntry) chat.Reply {
	options := make([]chat.Option, len(m.catalog.Categories))
	for i, c := range m.catalog.Categories {
		options[i] = chat.Option{Label: c, Token: chat.CategoryToken(e.Seq, i)}
	}
	return chat.ChoiceReply(fmt.Sprintf("Select a category for your $%.2f expense:", e.Amount), options)
}

func (m *Machine) accountMenu(e PendingEntry) chat.Reply {
	options := make([]chat.Option, len(m.catalog.Accounts))
	for i, a := range m.catalog.Accounts {
		options[i] = chat.Option{Label: a, Token: chat.AccountToken(e.Seq, i)}
	}
	prompt := fmt.Sprintf("Select the account for your $%.2f expense:", e.Amount)
	if e.Kind == KindSave {
		prompt = fmt.Sprintf("Select the account for your $%.2f savings:", e.Amount)
	}
	return chat.ChoiceReply(prompt, options)
}

func pick(options []string, i int) (string, bool) {
	if i < 0 || i >= len(options) {
		return "", false
	}
	return options[i], true
}
