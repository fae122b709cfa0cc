package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	KindTransactionRecorded = "transaction.recorded"
	KindTransactionDeleted  = "transaction.deleted"
	KindCarryForwardCreated = "carry_forward.created"
)

// LedgerEvent announces a change to the transactions table. Consumers get the
// full row so they don't need to read the bot's database.
type LedgerEvent struct {
	Kind          string    `json:"kind"`
	TransactionID uint      `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Amount        float64   `json:"amount"`
	Type          string    `json:"type"`
	Category      string    `json:"category"`
	Account       string    `json:"account,omitempty"`
	Period        string    `json:"period"`
	Timestamp     time.Time `json:"timestamp"`
}

// ToJSON converts the event to JSON bytes
func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown kinds.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Kind {
	case KindTransactionRecorded, KindTransactionDeleted, KindCarryForwardCreated:
	default:
		return nil, fmt.Errorf("unknown ledger event kind %q", ev.Kind)
	}
	return &ev, nil
}
