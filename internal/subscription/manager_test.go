package subscription

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/gatekeeper/internal/database"
	"github.com/dukerupert/gatekeeper/internal/model"
	"github.com/dukerupert/gatekeeper/internal/store"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupManager(t *testing.T) (*Manager, *store.SubscriptionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ss := store.NewSubscriptionStore(db)
	return NewManager(ss, time.Second, slog.Default()), ss
}

type brokenStore struct {
	*store.SubscriptionStore
}

func (brokenStore) Upsert(context.Context, model.Subscription) (*model.Subscription, error) {
	return nil, errors.New("disk full")
}

func (brokenStore) Get(context.Context, int64, string) (*model.Subscription, error) {
	return nil, errors.New("disk full")
}

func (brokenStore) Delete(context.Context, int64, string) (bool, error) {
	return false, errors.New("disk full")
}

func TestGrantSetsExpiry(t *testing.T) {
	m, ss := setupManager(t)
	ctx := context.Background()

	expiry, err := m.Grant(ctx, 42, "Alice", 30, "uploadbot", now)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	want := now.Add(30 * 24 * time.Hour)
	if !expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", expiry, want)
	}

	sub, _ := ss.Get(ctx, 42, "uploadbot")
	if sub == nil {
		t.Fatal("expected stored subscription")
	}
	if sub.Name != "Alice" {
		t.Errorf("name = %q, want %q", sub.Name, "Alice")
	}
	if !sub.AddedAt.Equal(now) || !sub.LastUpdatedAt.Equal(now) {
		t.Errorf("added_at = %v, last_updated_at = %v, want %v", sub.AddedAt, sub.LastUpdatedAt, now)
	}
}

func TestGrantOverwritesRatherThanExtends(t *testing.T) {
	m, ss := setupManager(t)
	ctx := context.Background()

	m.Grant(ctx, 42, "Alice", 10, "uploadbot", now)
	expiry, err := m.Grant(ctx, 42, "Alice", 5, "uploadbot", now)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}

	want := now.Add(5 * 24 * time.Hour)
	if !expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", expiry, want)
	}
	sub, _ := ss.Get(ctx, 42, "uploadbot")
	if !sub.ExpiryAt.Equal(want) {
		t.Errorf("stored expiry = %v, want %v", sub.ExpiryAt, want)
	}
}

func TestGrantIdempotent(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	first, _ := m.Grant(ctx, 42, "Alice", 7, "uploadbot", now)
	second, _ := m.Grant(ctx, 42, "Alice", 7, "uploadbot", now)
	if !first.Equal(second) {
		t.Errorf("expiries differ: %v vs %v", first, second)
	}
}

func TestGrantRejectsNonPositiveDays(t *testing.T) {
	m, ss := setupManager(t)
	ctx := context.Background()

	for _, days := range []int{0, -3} {
		if _, err := m.Grant(ctx, 42, "Alice", days, "uploadbot", now); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("days = %d: err = %v, want ErrInvalidDuration", days, err)
		}
	}
	if sub, _ := ss.Get(ctx, 42, "uploadbot"); sub != nil {
		t.Error("invalid grant must not write a subscription")
	}
}

func TestGrantStoreFailure(t *testing.T) {
	_, ss := setupManager(t)
	m := NewManager(brokenStore{ss}, 0, slog.Default())

	if _, err := m.Grant(context.Background(), 42, "Alice", 3, "uploadbot", now); err == nil {
		t.Error("expected grant to report the store failure")
	}
}

func TestRevoke(t *testing.T) {
	m, ss := setupManager(t)
	ctx := context.Background()

	m.Grant(ctx, 42, "Alice", 3, "uploadbot", now)

	existed, err := m.Revoke(ctx, 42, "uploadbot")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !existed {
		t.Error("expected revoke to report an existing grant")
	}
	if sub, _ := ss.Get(ctx, 42, "uploadbot"); sub != nil {
		t.Error("expected subscription removed")
	}
}

func TestRevokeMissingLeavesStoreUnchanged(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	m.Grant(ctx, 7, "Bob", 3, "uploadbot", now)

	existed, err := m.Revoke(ctx, 42, "uploadbot")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if existed {
		t.Error("expected false for a missing grant")
	}
	subs, _ := m.List(ctx, "uploadbot")
	if len(subs) != 1 {
		t.Errorf("len = %d, want 1", len(subs))
	}
}

func TestList(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	m.Grant(ctx, 1, "A", 3, "uploadbot", now)
	m.Grant(ctx, 2, "B", 1, "uploadbot", now)
	m.Grant(ctx, 3, "C", 1, "otherbot", now)

	subs, err := m.List(ctx, "uploadbot")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("len = %d, want 2", len(subs))
	}
}

func TestExpiryInfo(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	m.Grant(ctx, 42, "Alice", 10, "uploadbot", now)

	info := m.ExpiryInfo(ctx, 42, "uploadbot", now.Add(36*time.Hour))
	if info == nil {
		t.Fatal("expected expiry info")
	}
	if info.DaysLeft != 8 {
		t.Errorf("days left = %d, want 8", info.DaysLeft)
	}
	if !info.IsActive {
		t.Error("expected active")
	}
	if info.Name != "Alice" {
		t.Errorf("name = %q, want %q", info.Name, "Alice")
	}
}

func TestExpiryInfoMissingOrBroken(t *testing.T) {
	m, ss := setupManager(t)

	if info := m.ExpiryInfo(context.Background(), 42, "uploadbot", now); info != nil {
		t.Errorf("info = %+v, want nil", info)
	}

	broken := NewManager(brokenStore{ss}, 0, slog.Default())
	if info := broken.ExpiryInfo(context.Background(), 42, "uploadbot", now); info != nil {
		t.Errorf("info = %+v, want nil on store error", info)
	}
}

func TestDaysLeft(t *testing.T) {
	tests := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"exactly two days", now.Add(48 * time.Hour), 2},
		{"just under a day", now.Add(23 * time.Hour), 0},
		{"just expired", now.Add(-time.Hour), -1},
		{"at expiry", now, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysLeft(tt.expiry, now); got != tt.want {
				t.Errorf("DaysLeft = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDescribeInactiveUnderOneDay(t *testing.T) {
	info := Describe(model.Subscription{UserID: 42, ExpiryAt: now.Add(5 * time.Hour)}, now)
	if info.IsActive {
		t.Error("less than a full day left reports inactive")
	}
}

func TestExpiredAndRemove(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	m.Grant(ctx, 1, "A", 1, "uploadbot", now.Add(-48*time.Hour))
	m.Grant(ctx, 2, "B", 1, "uploadbot", now)

	expired, err := m.Expired(ctx, "uploadbot", now, nil)
	if err != nil {
		t.Fatalf("expired: %v", err)
	}
	if len(expired) != 1 || expired[0].UserID != 1 {
		t.Fatalf("expired = %+v, want user 1 only", expired)
	}

	removed, err := m.RemoveExpired(ctx, expired[0], now)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("expected removal")
	}
	if removed, _ := m.RemoveExpired(ctx, expired[0], now); removed {
		t.Error("second removal must report false")
	}
}
