package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/gatekeeper/internal/model"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSubs struct {
	subs  map[int64]*model.Subscription
	err   error
	calls int
}

func (f *fakeSubs) Get(_ context.Context, userID int64, _ string) (*model.Subscription, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.subs[userID], nil
}

type fakeQuota struct {
	remaining int
	calls     int
}

func (f *fakeQuota) CanUse(_ context.Context, _ int64, _ string, _ time.Time, _ int) (bool, int) {
	f.calls++
	return f.remaining > 0, f.remaining
}

func newTestEngine(subs *fakeSubs, quota *fakeQuota) *Engine {
	return NewEngine(NewAdminSet(1, 2), subs, quota, Config{FreeTierMaxHours: 2}, slog.Default())
}

func TestAdminAlwaysAuthorized(t *testing.T) {
	subs := &fakeSubs{err: errors.New("store down")}
	quota := &fakeQuota{remaining: 0}
	e := newTestEngine(subs, quota)

	for _, id := range []int64{1, 2} {
		d := e.Decide(context.Background(), id, "uploadbot", now)
		if !d.Authorized || d.Reason != ReasonAdmin {
			t.Errorf("admin %d: decision = %+v, want authorized admin", id, d)
		}
	}
	if subs.calls != 0 || quota.calls != 0 {
		t.Errorf("admin check touched store: subs=%d quota=%d", subs.calls, quota.calls)
	}
}

func TestActiveSubscriptionAuthorized(t *testing.T) {
	subs := &fakeSubs{subs: map[int64]*model.Subscription{
		42: {UserID: 42, ExpiryAt: now.Add(time.Second)},
	}}
	quota := &fakeQuota{}
	e := newTestEngine(subs, quota)

	d := e.Decide(context.Background(), 42, "uploadbot", now)
	if !d.Authorized || d.Reason != ReasonSubscription {
		t.Errorf("decision = %+v, want authorized subscription", d)
	}
	if quota.calls != 0 {
		t.Error("free tier must not be checked for subscribed users")
	}
}

func TestExpiryBoundary(t *testing.T) {
	subs := &fakeSubs{subs: map[int64]*model.Subscription{
		42: {UserID: 42, ExpiryAt: now},
	}}
	e := newTestEngine(subs, &fakeQuota{})

	if !e.IsAuthorized(context.Background(), 42, "uploadbot", now.Add(-time.Nanosecond)) {
		t.Error("expected access just before expiry")
	}
	if e.IsAuthorized(context.Background(), 42, "uploadbot", now) {
		t.Error("expiry_at == now must count as expired")
	}
}

func TestExpiredSubscriptionFallsBackToFreeTier(t *testing.T) {
	subs := &fakeSubs{subs: map[int64]*model.Subscription{
		42: {UserID: 42, ExpiryAt: now.Add(-time.Hour)},
	}}
	quota := &fakeQuota{remaining: 600}
	e := newTestEngine(subs, quota)

	d := e.Decide(context.Background(), 42, "uploadbot", now)
	if !d.Authorized || d.Reason != ReasonFreeTier {
		t.Errorf("decision = %+v, want authorized free tier", d)
	}
	if d.RemainingSeconds != 600 {
		t.Errorf("remaining = %d, want 600", d.RemainingSeconds)
	}
}

func TestFreeTierExhaustedDenied(t *testing.T) {
	e := newTestEngine(&fakeSubs{}, &fakeQuota{remaining: 0})

	d := e.Decide(context.Background(), 42, "uploadbot", now)
	if d.Authorized || d.Reason != ReasonDenied {
		t.Errorf("decision = %+v, want denied", d)
	}
}

func TestStoreFailureFailsClosed(t *testing.T) {
	quota := &fakeQuota{remaining: 7200}
	e := newTestEngine(&fakeSubs{err: errors.New("timeout")}, quota)

	if e.IsAuthorized(context.Background(), 42, "uploadbot", now) {
		t.Error("store failure must deny access")
	}
}

func TestIsAdmin(t *testing.T) {
	e := newTestEngine(&fakeSubs{}, &fakeQuota{})
	if !e.IsAdmin(1) || !e.IsAdmin(2) {
		t.Error("owner and admin must be admins")
	}
	if e.IsAdmin(42) {
		t.Error("regular user must not be admin")
	}
}
