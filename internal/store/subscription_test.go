package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/gatekeeper/internal/database"
	"github.com/dukerupert/gatekeeper/internal/model"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupSubscriptionTestDB(t *testing.T) *SubscriptionStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSubscriptionStore(db)
}

func newSub(userID int64, bot string, expiry time.Time) model.Subscription {
	return model.Subscription{
		UserID:        userID,
		BotIdentity:   bot,
		Name:          "User",
		ExpiryAt:      expiry,
		AddedAt:       base,
		LastUpdatedAt: base,
	}
}

func TestSubscriptionUpsertCreates(t *testing.T) {
	ss := setupSubscriptionTestDB(t)
	ctx := context.Background()

	sub, err := ss.Upsert(ctx, newSub(42, "uploadbot", base.Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected non-zero id")
	}
	if sub.UserID != 42 {
		t.Errorf("user_id = %d, want 42", sub.UserID)
	}
	if !sub.ExpiryAt.Equal(base.Add(48 * time.Hour)) {
		t.Errorf("expiry_at = %v, want %v", sub.ExpiryAt, base.Add(48*time.Hour))
	}
}

func TestSubscriptionUpsertReplacesExpiry(t *testing.T) {
	ss := setupSubscriptionTestDB(t)
	ctx := context.Background()

	first, _ := ss.Upsert(ctx, newSub(42, "uploadbot", base.Add(10*24*time.Hour)))

	renewal := newSub(42, "uploadbot", base.Add(5*24*time.Hour))
	renewal.Name = "Renamed"
	second, err := ss.Upsert(ctx, renewal)
	if err != nil {
		t.Fatalf("upsert renewal: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("id = %d, want %d (same row)", second.ID, first.ID)
	}
	if !second.ExpiryAt.Equal(base.Add(5 * 24 * time.Hour)) {
		t.Errorf("expiry_at = %v, want overwrite to %v", second.ExpiryAt, base.Add(5*24*time.Hour))
	}
	if second.Name != "Renamed" {
		t.Errorf("name = %q, want %q", second.Name, "Renamed")
	}
}

func TestSubscriptionGetNotFound(t *testing.T) {
	ss := setupSubscriptionTestDB(t)

	sub, err := ss.Get(context.Background(), 999, "uploadbot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub != nil {
		t.Error("expected nil for missing subscription")
	}
}

func TestSubscriptionScopedByBot(t *testing.T) {
	ss := setupSubscriptionTestDB(t)
	ctx := context.Background()

	ss.Upsert(ctx, newSub(42, "uploadbot", base.Add(time.Hour)))

	sub, err := ss.Get(ctx, 42, "otherbot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub != nil {
		t.Error("expected no subscription on a different bot identity")
	}
}

func TestSubscriptionDelete(t *testing.T) {
	ss := setupSubscriptionTestDB(t)
	ctx := context.Background()

	ss.Upsert(ctx, newSub(42, "uploadbot", base.Add(time.Hour)))

	existed, err := ss.Delete(ctx, 42, "uploadbot")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !existed {
		t.Error("expected delete to report an existing row")
	}

	existed, err = ss.Delete(ctx, 42, "uploadbot")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if existed {
		t.Error("expected second delete to report no row")
	}
}

func TestSubscriptionListByBot(t *testing.T) {
	ss := setupSubscriptionTestDB(t)
	ctx := context.Background()

	ss.Upsert(ctx, newSub(1, "uploadbot", base.Add(3*time.Hour)))
	ss.Upsert(ctx, newSub(2, "uploadbot", base.Add(1*time.Hour)))
	ss.Upsert(ctx, newSub(3, "otherbot", base.Add(2*time.Hour)))

	subs, err := ss.ListByBot(ctx, "uploadbot")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("len = %d, want 2", len(subs))
	}
	if subs[0].UserID != 2 || subs[1].UserID != 1 {
		t.Errorf("order = [%d %d], want [2 1]", subs[0].UserID, subs[1].UserID)
	}
}

func TestSubscriptionListExpired(t *testing.T) {
	ss := setupSubscriptionTestDB(t)
	ctx := context.Background()

	ss.Upsert(ctx, newSub(1, "uploadbot", base.Add(-2*time.Hour)))
	ss.Upsert(ctx, newSub(2, "uploadbot", base))
	ss.Upsert(ctx, newSub(3, "uploadbot", base.Add(time.Hour)))
	ss.Upsert(ctx, newSub(100, "uploadbot", base.Add(-time.Hour)))
	ss.Upsert(ctx, newSub(4, "otherbot", base.Add(-time.Hour)))

	subs, err := ss.ListExpired(ctx, "uploadbot", base, []int64{100})
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("len = %d, want 1", len(subs))
	}
	if subs[0].UserID != 1 {
		t.Errorf("user_id = %d, want 1", subs[0].UserID)
	}

	all, err := ss.ListExpired(ctx, "", base, nil)
	if err != nil {
		t.Fatalf("list expired across bots: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want 3 (users 1, 100, 4)", len(all))
	}
}

func TestSubscriptionDeleteExpiredSkipsRenewed(t *testing.T) {
	ss := setupSubscriptionTestDB(t)
	ctx := context.Background()

	sub, _ := ss.Upsert(ctx, newSub(1, "uploadbot", base.Add(-time.Hour)))
	ss.Upsert(ctx, newSub(1, "uploadbot", base.Add(24*time.Hour)))

	deleted, err := ss.DeleteExpired(ctx, sub.ID, base)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted {
		t.Error("renewed subscription must not be deleted")
	}

	got, _ := ss.Get(ctx, 1, "uploadbot")
	if got == nil {
		t.Fatal("expected renewed subscription to remain")
	}
}
