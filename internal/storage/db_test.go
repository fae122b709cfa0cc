package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func save(t *testing.T, db *Database, tx Transaction) Transaction {
	t.Helper()
	if err := db.SaveTransaction(context.Background(), &tx); err != nil {
		t.Fatalf("SaveTransaction: %v", err)
	}
	return tx
}

func TestSaveAndQueryOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t1 := save(t, db, Transaction{UserID: "u1", Amount: 10, Type: TypeExpense, Category: "Food", Period: "2026-10"})
	t2 := save(t, db, Transaction{UserID: "u1", Amount: 20, Type: TypeIncome, Category: "Savings", Period: "2026-10"})
	save(t, db, Transaction{UserID: "u2", Amount: 99, Type: TypeIncome, Period: "2026-10"})
	save(t, db, Transaction{UserID: "u1", Amount: 5, Type: TypeExpense, Period: "2026-09"})

	if t1.ID == 0 || t2.ID <= t1.ID {
		t.Fatalf("expected increasing ids, got %d then %d", t1.ID, t2.ID)
	}

	rows, err := db.Query(ctx, "u1", ForPeriod("2026-10"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != t1.ID || rows[1].ID != t2.ID {
		t.Fatalf("rows not in insertion order: %d, %d", rows[0].ID, rows[1].ID)
	}

	newest, err := db.Query(ctx, "u1", Filter{Newest: true, Limit: 1})
	if err != nil {
		t.Fatalf("Query newest: %v", err)
	}
	if len(newest) != 1 || newest[0].Period != "2026-09" {
		t.Fatalf("expected latest inserted row, got %+v", newest)
	}

	before, err := db.Query(ctx, "u1", BeforePeriod("2026-10"))
	if err != nil {
		t.Fatalf("Query before: %v", err)
	}
	if len(before) != 1 || before[0].Amount != 5 {
		t.Fatalf("expected only september row, got %+v", before)
	}
}

func TestTotals(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	empty, err := db.Totals(ctx, "nobody", ForPeriod("2026-10"))
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if empty != (Totals{}) {
		t.Fatalf("expected zero totals, got %+v", empty)
	}

	save(t, db, Transaction{UserID: "u1", Amount: 100, Type: TypeIncome, Period: "2026-10"})
	save(t, db, Transaction{UserID: "u1", Amount: 40, Type: TypeExpense, Period: "2026-10"})
	save(t, db, Transaction{UserID: "u1", Amount: 7, Type: TypeExpense, Category: "Carry Forward", Period: "2026-10"})

	got, err := db.Totals(ctx, "u1", Filter{Period: "2026-10", ExcludeCategory: "Carry Forward"})
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if got.Income != 100 || got.Expense != 40 {
		t.Fatalf("unexpected totals %+v", got)
	}
}

func TestDeleteMostRecent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t1 := save(t, db, Transaction{UserID: "u1", Amount: 1, Type: TypeExpense, Period: "2026-10"})
	t2 := save(t, db, Transaction{UserID: "u1", Amount: 2, Type: TypeExpense, Period: "2026-10"})
	t3 := save(t, db, Transaction{UserID: "u1", Amount: 3, Type: TypeExpense, Period: "2026-10"})

	latest, err := db.MostRecent(ctx, "u1")
	if err != nil {
		t.Fatalf("MostRecent: %v", err)
	}
	if latest == nil || latest.ID != t3.ID {
		t.Fatalf("expected T3 as most recent, got %+v", latest)
	}

	deleted, err := db.Delete(ctx, "u1", latest.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted == nil || deleted.Amount != 3 {
		t.Fatalf("expected T3 returned, got %+v", deleted)
	}

	rows, _ := db.Query(ctx, "u1", Filter{})
	if len(rows) != 2 || rows[0].ID != t1.ID || rows[1].ID != t2.ID {
		t.Fatalf("expected T1,T2 left, got %+v", rows)
	}
}

func TestDeleteMissingOrForeignIsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	other := save(t, db, Transaction{UserID: "u2", Amount: 1, Type: TypeIncome, Period: "2026-10"})

	if got, err := db.Delete(ctx, "u1", 4242); err != nil || got != nil {
		t.Fatalf("expected no-op for missing id, got %+v, %v", got, err)
	}
	if got, err := db.Delete(ctx, "u1", other.ID); err != nil || got != nil {
		t.Fatalf("expected no-op for foreign id, got %+v, %v", got, err)
	}
	if rows, _ := db.Query(ctx, "u2", Filter{}); len(rows) != 1 {
		t.Fatalf("foreign row should survive, got %d rows", len(rows))
	}

	if latest, err := db.MostRecent(ctx, "u1"); err != nil || latest != nil {
		t.Fatalf("expected nil most recent, got %+v, %v", latest, err)
	}
}

func TestSaveUniqueConcurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.SaveUnique(ctx, &Transaction{
				UserID: "u1", Amount: 5, Type: TypeIncome, Category: "Carry Forward", Period: "2026-11",
			})
			if err != nil {
				t.Errorf("SaveUnique: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one insert, got %d", created)
	}
	rows, _ := db.Query(ctx, "u1", ForPeriod("2026-11"))
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
}

func TestActiveUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	save(t, db, Transaction{UserID: "b", Amount: 1, Type: TypeIncome, Period: "2026-09"})
	save(t, db, Transaction{UserID: "a", Amount: 1, Type: TypeIncome, Period: "2026-09"})
	save(t, db, Transaction{UserID: "a", Amount: 2, Type: TypeExpense, Period: "2026-09"})
	save(t, db, Transaction{UserID: "c", Amount: 1, Type: TypeIncome, Period: "2026-10"})

	users, err := db.ActiveUsers(ctx, "2026-09")
	if err != nil {
		t.Fatalf("ActiveUsers: %v", err)
	}
	if len(users) != 2 || users[0] != "a" || users[1] != "b" {
		t.Fatalf("unexpected users %v", users)
	}
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	db := newTestDB(t)
	db.Close()

	err := db.SaveTransaction(context.Background(), &Transaction{UserID: "u1", Amount: 1, Type: TypeIncome, Period: "2026-10"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
