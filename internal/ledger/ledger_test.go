package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/NgigiN/ledgerbot/internal/amqp"
	"github.com/NgigiN/ledgerbot/internal/storage"
)

var (
	oct = Period{Year: 2026, Month: time.October}
	nov = Period{Year: 2026, Month: time.November}
)

func newTestStore(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(ctx context.Context, ev amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

func record(t *testing.T, l *Ledger, userID, txType string, amount float64, p Period) *storage.Transaction {
	t.Helper()
	tx := &storage.Transaction{UserID: userID, Amount: amount, Type: txType, Category: "Test", Period: p.String()}
	if err := l.Record(context.Background(), tx); err != nil {
		t.Fatalf("Record: %v", err)
	}
	return tx
}

func carryRows(t *testing.T, store *storage.Database, userID string, p Period) []storage.Transaction {
	t.Helper()
	rows, err := store.Query(context.Background(), userID, storage.ForPeriod(p.String()))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	var out []storage.Transaction
	for _, r := range rows {
		if r.Category == CategoryCarryForward {
			out = append(out, r)
		}
	}
	return out
}

func TestSummarize(t *testing.T) {
	store := newTestStore(t)
	l := New(store)
	ctx := context.Background()

	got, err := l.Summarize(ctx, "u1", oct)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != (Summary{}) {
		t.Fatalf("expected {0,0,0}, got %+v", got)
	}

	record(t, l, "u1", storage.TypeIncome, 100, oct)
	record(t, l, "u1", storage.TypeExpense, 40, oct)
	record(t, l, "u1", storage.TypeExpense, 999, nov)
	record(t, l, "u2", storage.TypeExpense, 999, oct)

	got, err = l.Summarize(ctx, "u1", oct)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != (Summary{Income: 100, Expense: 40, Net: 60}) {
		t.Fatalf("expected {100,40,60}, got %+v", got)
	}
}

func TestCarryForwardSign(t *testing.T) {
	tests := []struct {
		name       string
		income     float64
		expense    float64
		wantRow    bool
		wantType   string
		wantAmount float64
	}{
		{name: "deficit", income: 50, expense: 100, wantRow: true, wantType: storage.TypeExpense, wantAmount: 50},
		{name: "surplus", income: 80, expense: 50, wantRow: true, wantType: storage.TypeIncome, wantAmount: 30},
		{name: "zero", income: 25, expense: 25, wantRow: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			l := New(store)

			record(t, l, "u1", storage.TypeIncome, tt.income, oct)
			record(t, l, "u1", storage.TypeExpense, tt.expense, oct)

			res, err := l.CarryForward(context.Background(), "u1", oct, nov)
			if err != nil {
				t.Fatalf("CarryForward: %v", err)
			}

			rows := carryRows(t, store, "u1", nov)
			if !tt.wantRow {
				if len(rows) != 0 || res.Created != nil {
					t.Fatalf("expected no carry row, got %+v", rows)
				}
				return
			}
			if len(rows) != 1 {
				t.Fatalf("expected one carry row, got %d", len(rows))
			}
			if rows[0].Type != tt.wantType || rows[0].Amount != tt.wantAmount {
				t.Fatalf("got type=%s amount=%v, want type=%s amount=%v",
					rows[0].Type, rows[0].Amount, tt.wantType, tt.wantAmount)
			}
			if rows[0].Description != "Carried forward net balance from October 2026" {
				t.Fatalf("unexpected description %q", rows[0].Description)
			}
		})
	}
}

func TestCarryForwardCentsThatCancel(t *testing.T) {
	store := newTestStore(t)
	l := New(store)
	ctx := context.Background()

	record(t, l, "u1", storage.TypeExpense, 0.1, oct)
	record(t, l, "u1", storage.TypeExpense, 0.2, oct)
	record(t, l, "u1", storage.TypeIncome, 0.3, oct)

	sum, err := l.Summarize(ctx, "u1", oct)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Net != 0 || sum.Expense != 0.3 || sum.Income != 0.3 {
		t.Fatalf("expected {0.3,0.3,0}, got %+v", sum)
	}

	res, err := l.CarryForward(ctx, "u1", oct, nov)
	if err != nil {
		t.Fatalf("CarryForward: %v", err)
	}
	if res.Created != nil || res.Net != 0 {
		t.Fatalf("expected no carry for a zero net, got %+v", res)
	}
	if rows := carryRows(t, store, "u1", nov); len(rows) != 0 {
		t.Fatalf("expected no carry row, got %+v", rows)
	}

	prior, err := l.PriorBalance(ctx, "u1", nov)
	if err != nil {
		t.Fatalf("PriorBalance: %v", err)
	}
	if prior != 0 {
		t.Fatalf("expected zero prior balance, got %v", prior)
	}
}

func TestCarryForwardRoundsToCents(t *testing.T) {
	store := newTestStore(t)
	l := New(store)

	record(t, l, "u1", storage.TypeIncome, 10.1, oct)
	record(t, l, "u1", storage.TypeExpense, 0.2, oct)

	res, err := l.CarryForward(context.Background(), "u1", oct, nov)
	if err != nil {
		t.Fatalf("CarryForward: %v", err)
	}
	if res.Net != 9.9 {
		t.Fatalf("net %v, want 9.9", res.Net)
	}
	rows := carryRows(t, store, "u1", nov)
	if len(rows) != 1 || rows[0].Amount != 9.9 || rows[0].Type != storage.TypeIncome {
		t.Fatalf("unexpected carry rows %+v", rows)
	}
}

func TestCarryForwardIdempotent(t *testing.T) {
	store := newTestStore(t)
	pub := &recordingPublisher{}
	l := New(store, WithPublisher(pub))
	ctx := context.Background()

	record(t, l, "u1", storage.TypeIncome, 30, oct)

	for i := 0; i < 2; i++ {
		if _, err := l.CarryForward(ctx, "u1", oct, nov); err != nil {
			t.Fatalf("CarryForward #%d: %v", i, err)
		}
	}
	rows := carryRows(t, store, "u1", nov)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one carry row, got %d", len(rows))
	}

	// A deleted carry-forward row may be recreated.
	if _, err := l.Delete(ctx, "u1", rows[0].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	res, err := l.CarryForward(ctx, "u1", oct, nov)
	if err != nil {
		t.Fatalf("CarryForward after delete: %v", err)
	}
	if res.Created == nil {
		t.Fatal("expected carry row to be recreated after deletion")
	}

	want := []string{
		amqp.KindTransactionRecorded,
		amqp.KindCarryForwardCreated,
		amqp.KindTransactionDeleted,
		amqp.KindCarryForwardCreated,
	}
	got := pub.kinds()
	if len(got) != len(want) {
		t.Fatalf("events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events %v, want %v", got, want)
		}
	}
}

func TestCarryForwardConcurrentTriggers(t *testing.T) {
	store := newTestStore(t)
	l := New(store)
	ctx := context.Background()

	record(t, l, "u1", storage.TypeExpense, 12.5, oct)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.CarryForward(ctx, "u1", oct, nov); err != nil {
				t.Errorf("CarryForward: %v", err)
			}
		}()
	}
	wg.Wait()

	if rows := carryRows(t, store, "u1", nov); len(rows) != 1 {
		t.Fatalf("expected one carry row, got %d", len(rows))
	}
}

func TestPriorBalanceSkipsCarryRows(t *testing.T) {
	store := newTestStore(t)
	l := New(store)
	ctx := context.Background()
	sep := oct.Prev()

	record(t, l, "u1", storage.TypeIncome, 100, sep)
	record(t, l, "u1", storage.TypeExpense, 30, sep)
	if _, err := l.CarryForward(ctx, "u1", sep, oct); err != nil {
		t.Fatalf("CarryForward: %v", err)
	}
	record(t, l, "u1", storage.TypeExpense, 20, oct)
	record(t, l, "u1", storage.TypeIncome, 500, nov)

	got, err := l.PriorBalance(ctx, "u1", nov)
	if err != nil {
		t.Fatalf("PriorBalance: %v", err)
	}
	if got != 50 {
		t.Fatalf("expected 50, got %v", got)
	}
}

func TestDeleteLatest(t *testing.T) {
	store := newTestStore(t)
	l := New(store)
	ctx := context.Background()

	t1 := record(t, l, "u1", storage.TypeExpense, 1, oct)
	t2 := record(t, l, "u1", storage.TypeExpense, 2, oct)
	t3 := record(t, l, "u1", storage.TypeExpense, 3, oct)

	deleted, err := l.DeleteLatest(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteLatest: %v", err)
	}
	if deleted.ID != t3.ID {
		t.Fatalf("deleted %d, want %d", deleted.ID, t3.ID)
	}

	rows, err := l.Transactions(ctx, "u1", oct)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != t1.ID || rows[1].ID != t2.ID {
		t.Fatalf("expected T1 and T2 to remain, got %+v", rows)
	}
}

func TestDeleteLatestEmpty(t *testing.T) {
	l := New(newTestStore(t))
	if _, err := l.DeleteLatest(context.Background(), "u1"); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
	if _, err := l.Recent(context.Background(), "u1", 5); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult from Recent, got %v", err)
	}
}

func TestPublishFailureDoesNotFailRecord(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	l := New(newTestStore(t), WithPublisher(pub))
	tx := record(t, l, "u1", storage.TypeIncome, 5, oct)
	if tx.ID == 0 {
		t.Fatal("expected transaction to be stored")
	}
}
