// Package ledger holds the balance rules on top of the transaction store:
// recording and deleting rows, monthly summaries, and carrying a month's net
// balance into the next one.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NgigiN/ledgerbot/internal/amqp"
	"github.com/NgigiN/ledgerbot/internal/keylock"
	"github.com/NgigiN/ledgerbot/internal/log"
	"github.com/NgigiN/ledgerbot/internal/storage"
)

const (
	CategoryCarryForward = "Carry Forward"
	CategorySavings      = "Savings"
)

// ErrEmptyResult means a lookup found nothing. Callers report it as
// information, not as a failure.
var ErrEmptyResult = errors.New("no transactions found")

// Store is the slice of storage.Database the ledger depends on.
type Store interface {
	SaveTransaction(ctx context.Context, tx *storage.Transaction) error
	SaveUnique(ctx context.Context, tx *storage.Transaction) (bool, error)
	Query(ctx context.Context, userID string, f storage.Filter) ([]storage.Transaction, error)
	Totals(ctx context.Context, userID string, f storage.Filter) (storage.Totals, error)
	MostRecent(ctx context.Context, userID string) (*storage.Transaction, error)
	Delete(ctx context.Context, userID string, id uint) (*storage.Transaction, error)
	ActiveUsers(ctx context.Context, period string) ([]string, error)
}

// Publisher receives ledger change events. A nil Publisher disables events.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev amqp.LedgerEvent) error
}

type Ledger struct {
	store     Store
	publisher Publisher
	locks     *keylock.Locker
	log       *log.Logger
	now       func() time.Time
}

type Option func(*Ledger)

func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithLogger(lg *log.Logger) Option {
	return func(l *Ledger) { l.log = lg.WithComponent(log.ComponentLedger) }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		locks: keylock.New(),
		log:   log.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now exposes the ledger's clock so the session layer agrees with it.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Record persists a new transaction.
func (l *Ledger) Record(ctx context.Context, tx *storage.Transaction) error {
	if err := l.store.SaveTransaction(ctx, tx); err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	l.log.InfoContext(ctx, "transaction recorded",
		log.FieldOperation, log.OpRecord,
		log.FieldTxnID, tx.ID,
		log.FieldUserID, tx.UserID,
		log.FieldType, tx.Type,
		log.FieldAmount, tx.Amount,
		log.FieldPeriod, tx.Period)
	l.publish(ctx, amqp.KindTransactionRecorded, tx)
	return nil
}

// Transactions lists the user's rows for a period in insertion order.
func (l *Ledger) Transactions(ctx context.Context, userID string, p Period) ([]storage.Transaction, error) {
	return l.store.Query(ctx, userID, storage.ForPeriod(p.String()))
}

// Recent lists up to n of the user's rows, newest first.
func (l *Ledger) Recent(ctx context.Context, userID string, n int) ([]storage.Transaction, error) {
	rows, err := l.store.Query(ctx, userID, storage.Filter{Newest: true, Limit: n})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyResult
	}
	return rows, nil
}

// DeleteLatest removes the user's most recently inserted row.
func (l *Ledger) DeleteLatest(ctx context.Context, userID string) (*storage.Transaction, error) {
	latest, err := l.store.MostRecent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrEmptyResult
	}
	return l.Delete(ctx, userID, latest.ID)
}

// Delete removes one of the user's rows by id. ErrEmptyResult means there was
// nothing to delete, which includes a second tap on the same pick-list entry.
func (l *Ledger) Delete(ctx context.Context, userID string, id uint) (*storage.Transaction, error) {
	deleted, err := l.store.Delete(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("delete transaction: %w", err)
	}
	if deleted == nil {
		return nil, ErrEmptyResult
	}
	l.log.InfoContext(ctx, "transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTxnID, deleted.ID,
		log.FieldUserID, userID)
	l.publish(ctx, amqp.KindTransactionDeleted, deleted)
	return deleted, nil
}

func (l *Ledger) publish(ctx context.Context, kind string, tx *storage.Transaction) {
	if l.publisher == nil {
		return
	}
	ev := amqp.LedgerEvent{
		Kind:          kind,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		Type:          tx.Type,
		Category:      tx.Category,
		Account:       tx.Account,
		Period:        tx.Period,
		Timestamp:     l.now().UTC(),
	}
	if err := l.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		// Events are best effort, the row is already stored.
		l.log.WarnContext(ctx, "failed to publish ledger event",
			log.FieldEventKind, kind,
			log.FieldTxnID, tx.ID,
			log.FieldError, err)
	}
}
