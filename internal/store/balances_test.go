package store

import (
	"context"
	"errors"
	"testing"

	"github.com/obaturn/chat-pay-BackEnd/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func seedUser(t *testing.T, db *gorm.DB, balance string) *models.User {
	t.Helper()
	u := &models.User{
		Name:    "user",
		Email:   t.Name() + "@test.com",
		Balance: decimal.RequireFromString(balance),
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return u
}

func TestCreditAndDebit(t *testing.T) {
	db := newTestDB(t)
	b := NewBalances(db)
	ctx := context.Background()

	u := seedUser(t, db, "100")

	if err := b.Credit(ctx, uint64(u.ID), decimal.RequireFromString("50")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := b.Debit(ctx, uint64(u.ID), decimal.RequireFromString("120")); err != nil {
		t.Fatalf("debit: %v", err)
	}

	got, err := b.Get(ctx, uint64(u.ID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("30")) {
		t.Errorf("balance = %s, want 30", got)
	}
}

func TestDebitFailsClosed(t *testing.T) {
	db := newTestDB(t)
	b := NewBalances(db)
	ctx := context.Background()

	u := seedUser(t, db, "50")

	err := b.Debit(ctx, uint64(u.ID), decimal.RequireFromString("50.01"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	got, _ := b.Get(ctx, uint64(u.ID))
	if !got.Equal(decimal.RequireFromString("50")) {
		t.Errorf("balance = %s, want unchanged 50", got)
	}
}

func TestDebitToExactlyZero(t *testing.T) {
	db := newTestDB(t)
	b := NewBalances(db)
	ctx := context.Background()

	u := seedUser(t, db, "50")

	if err := b.Debit(ctx, uint64(u.ID), decimal.RequireFromString("50")); err != nil {
		t.Fatalf("debit to zero: %v", err)
	}
	got, _ := b.Get(ctx, uint64(u.ID))
	if !got.IsZero() {
		t.Errorf("balance = %s, want 0", got)
	}
}

func TestUnknownUser(t *testing.T) {
	db := newTestDB(t)
	b := NewBalances(db)
	ctx := context.Background()

	if err := b.Credit(ctx, 9999, decimal.RequireFromString("10")); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("credit = %v, want ErrUserNotFound", err)
	}
	if err := b.Debit(ctx, 9999, decimal.RequireFromString("10")); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("debit = %v, want ErrUserNotFound", err)
	}
	if _, err := b.Get(ctx, 9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("get = %v, want ErrUserNotFound", err)
	}
}

func TestNegativeAmountsRejected(t *testing.T) {
	db := newTestDB(t)
	b := NewBalances(db)
	ctx := context.Background()

	u := seedUser(t, db, "100")

	if err := b.Credit(ctx, uint64(u.ID), decimal.RequireFromString("-1")); err == nil {
		t.Fatal("negative credit accepted")
	}
	if err := b.Debit(ctx, uint64(u.ID), decimal.RequireFromString("-1")); err == nil {
		t.Fatal("negative debit accepted")
	}
	got, _ := b.Get(ctx, uint64(u.ID))
	if !got.Equal(decimal.RequireFromString("100")) {
		t.Errorf("balance = %s, want unchanged 100", got)
	}
}

func TestDebitAndCreditRollBackTogether(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sender := seedUser(t, db, "100")
	receiverID := uint64(sender.ID) + 1000 // nobody

	err := db.Transaction(func(tx *gorm.DB) error {
		b := NewBalances(db).WithTx(tx)
		if err := b.Debit(ctx, uint64(sender.ID), decimal.RequireFromString("80")); err != nil {
			return err
		}
		return b.Credit(ctx, receiverID, decimal.RequireFromString("80"))
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}

	got, _ := NewBalances(db).Get(ctx, uint64(sender.ID))
	if !got.Equal(decimal.RequireFromString("100")) {
		t.Errorf("balance = %s, want 100 after rollback", got)
	}
}
