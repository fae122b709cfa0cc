package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NgigiN/ledgerbot/internal/log"
)

// ErrUnavailable wraps every failure that comes back from the database.
var ErrUnavailable = errors.New("ledger store unavailable")

type Database struct {
	db  *gorm.DB
	log *log.Logger
}

func NewDatabase(dbPath string, lg *log.Logger) (*Database, error) {
	if lg == nil {
		lg = log.Nop()
	}
	lg = lg.WithComponent(log.ComponentStorage)

	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewSlogLogger(lg.Logger, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			IgnoreRecordNotFoundError: true,
			LogLevel:                  logger.Warn,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// SQLite has a single writer; one connection keeps writes from tripping
	// over each other with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	return &Database{db: db, log: lg}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the database answers.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// SaveTransaction inserts tx and fills in its ID.
func (d *Database) SaveTransaction(ctx context.Context, tx *Transaction) error {
	if err := d.db.WithContext(ctx).Create(tx).Error; err != nil {
		return unavailable("save transaction", err)
	}
	d.log.DebugContext(ctx, "transaction saved",
		log.FieldTxnID, tx.ID,
		log.FieldUserID, tx.UserID,
		log.FieldPeriod, tx.Period)
	return nil
}

// SaveUnique inserts tx unless the user already has a row with the same
// period and category. The check and the insert share one transaction.
func (d *Database) SaveUnique(ctx context.Context, tx *Transaction) (bool, error) {
	created := false
	err := d.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var n int64
		if err := db.Model(&Transaction{}).
			Where("user_id = ? AND period = ? AND category = ?", tx.UserID, tx.Period, tx.Category).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := db.Create(tx).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, unavailable("save unique transaction", err)
	}
	return created, nil
}

// Query returns the user's rows matching f, oldest first unless f.Newest.
func (d *Database) Query(ctx context.Context, userID string, f Filter) ([]Transaction, error) {
	var rows []Transaction
	q := d.scoped(ctx, userID, f)
	if f.Newest {
		q = q.Order("id DESC")
	} else {
		q = q.Order("id ASC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, unavailable("query transactions", err)
	}
	return rows, nil
}

// Totals sums income and expense over the user's rows matching f.
func (d *Database) Totals(ctx context.Context, userID string, f Filter) (Totals, error) {
	var totals Totals
	err := d.scoped(ctx, userID, f).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS income, "+
			"COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS expense",
			TypeIncome, TypeExpense).
		Scan(&totals).Error
	if err != nil {
		return Totals{}, unavailable("sum transactions", err)
	}
	return totals, nil
}

// MostRecent returns the user's latest row by insertion order, or nil.
func (d *Database) MostRecent(ctx context.Context, userID string) (*Transaction, error) {
	rows, err := d.Query(ctx, userID, Filter{Newest: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Delete removes the user's row with the given id and returns it. A missing
// id, or one owned by another user, returns nil and no error.
func (d *Database) Delete(ctx context.Context, userID string, id uint) (*Transaction, error) {
	var deleted *Transaction
	err := d.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var rows []Transaction
		if err := db.Where("id = ? AND user_id = ?", id, userID).Limit(1).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := db.Delete(&Transaction{}, rows[0].ID).Error; err != nil {
			return err
		}
		deleted = &rows[0]
		return nil
	})
	if err != nil {
		return nil, unavailable("delete transaction", err)
	}
	return deleted, nil
}

// ActiveUsers lists users with at least one row in period.
func (d *Database) ActiveUsers(ctx context.Context, period string) ([]string, error) {
	var users []string
	err := d.db.WithContext(ctx).Model(&Transaction{}).
		Where("period = ?", period).
		Distinct().
		Order("user_id").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, unavailable("list active users", err)
	}
	return users, nil
}

func (d *Database) scoped(ctx context.Context, userID string, f Filter) *gorm.DB {
	q := d.db.WithContext(ctx).Model(&Transaction{}).Where("user_id = ?", userID)
	if f.Period != "" {
		q = q.Where("period = ?", f.Period)
	}
	if f.Before != "" {
		q = q.Where("period < ?", f.Before)
	}
	if f.ExcludeCategory != "" {
		q = q.Where("category <> ?", f.ExcludeCategory)
	}
	return q
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
