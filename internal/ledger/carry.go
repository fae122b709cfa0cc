package ledger

import (
	"context"
	"fmt"

	"github.com/NgigiN/ledgerbot/internal/amqp"
	"github.com/NgigiN/ledgerbot/internal/log"
	"github.com/NgigiN/ledgerbot/internal/storage"
)

// CarryResult describes one carry-forward attempt.
type CarryResult struct {
	From    Period
	To      Period
	Net     float64
	Created *storage.Transaction // nil when nothing was inserted
}

// CarryForward moves the net balance of from into to as a single signed
// "Carry Forward" row. Nothing is inserted when the net is zero or the user
// already has a carry-forward row in to. Calls for the same user and target
// period are serialized, so concurrent triggers insert at most one row.
func (l *Ledger) CarryForward(ctx context.Context, userID string, from, to Period) (CarryResult, error) {
	unlock := l.locks.Lock(userID + "/" + to.String())
	defer unlock()

	res := CarryResult{From: from, To: to}

	sum, err := l.Summarize(ctx, userID, from)
	if err != nil {
		return res, fmt.Errorf("carry forward: %w", err)
	}
	net := cents(sum.Net)
	res.Net = net.InexactFloat64()
	if net.IsZero() {
		return res, nil
	}

	txType := storage.TypeIncome
	if net.IsNegative() {
		txType = storage.TypeExpense
	}
	tx := &storage.Transaction{
		UserID:      userID,
		Amount:      net.Abs().InexactFloat64(),
		Category:    CategoryCarryForward,
		Type:        txType,
		Period:      to.String(),
		Description: fmt.Sprintf("Carried forward net balance from %s", from.Label()),
	}

	created, err := l.store.SaveUnique(ctx, tx)
	if err != nil {
		return res, fmt.Errorf("carry forward: %w", err)
	}
	if !created {
		return res, nil
	}

	res.Created = tx
	l.log.InfoContext(ctx, "balance carried forward",
		log.FieldOperation, log.OpCarry,
		log.FieldUserID, userID,
		log.FieldFromPeriod, from.String(),
		log.FieldToPeriod, to.String(),
		log.FieldAmount, tx.Amount,
		log.FieldType, tx.Type)
	l.publish(ctx, amqp.KindCarryForwardCreated, tx)
	return res, nil
}
