package dialogue

import (
	"sync"
	"time"

	"github.com/NgigiN/ledgerbot/internal/storage"
)

// Kind is the entry command that started a pending entry.
type Kind int

const (
	KindSpend Kind = iota
	KindSave
)

// TxType maps the command onto the stored transaction type.
func (k Kind) TxType() string {
	if k == KindSave {
		return storage.TypeIncome
	}
	return storage.TypeExpense
}

func (k Kind) String() string {
	if k == KindSave {
		return "save"
	}
	return "spend"
}

// State is where a user's dialogue stands.
type State int

const (
	Idle State = iota
	AwaitingCategory
	AwaitingAccount
)

func (s State) String() string {
	switch s {
	case AwaitingCategory:
		return "awaiting_category"
	case AwaitingAccount:
		return "awaiting_account"
	default:
		return "idle"
	}
}

// PendingEntry is a user's in-progress entry. Seq is stamped into every menu
// token issued for it, so taps on an older menu do not land on a newer entry.
type PendingEntry struct {
	Seq         uint64
	Kind        Kind
	Amount      float64
	Category    string
	Description string
	State       State
	CreatedAt   time.Time
}

// pendingBook holds at most one PendingEntry per user. Entries are stored by
// value; callers hold the user's key lock while they read-modify-write.
type pendingBook struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]PendingEntry
}

func newPendingBook(ttl time.Duration) *pendingBook {
	return &pendingBook{ttl: ttl, entries: make(map[string]PendingEntry)}
}

// get returns the user's live entry, dropping it if it has expired.
func (b *pendingBook) get(userID string, now time.Time) (PendingEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[userID]
	if !ok {
		return PendingEntry{}, false
	}
	if b.expired(e, now) {
		delete(b.entries, userID)
		return PendingEntry{}, false
	}
	return e, true
}

func (b *pendingBook) put(userID string, e PendingEntry) {
	b.mu.Lock()
	b.entries[userID] = e
	b.mu.Unlock()
}

func (b *pendingBook) remove(userID string) {
	b.mu.Lock()
	delete(b.entries, userID)
	b.mu.Unlock()
}

// sweep drops every expired entry and returns how many went.
func (b *pendingBook) sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for userID, e := range b.entries {
		if b.expired(e, now) {
			delete(b.entries, userID)
			removed++
		}
	}
	return removed
}

func (b *pendingBook) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *pendingBook) expired(e PendingEntry, now time.Time) bool {
	return b.ttl > 0 && now.Sub(e.CreatedAt) >= b.ttl
}
