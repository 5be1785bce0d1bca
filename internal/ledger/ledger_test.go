package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsbot/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type failingStore struct {
	readErr, writeErr error
	writes            int
}

func (s *failingStore) LastRequest(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, s.readErr
}

func (s *failingStore) PutLastRequest(context.Context, string, time.Time) error {
	s.writes++
	return s.writeErr
}

func (s *failingStore) Close() error { return nil }

func newTestLedger(store storage.Store, clock *fakeClock) *Ledger {
	return New(store, Options{Period: 24 * time.Hour, AdminID: "1", Now: clock.Now})
}

func TestUnknownUserIsEligible(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	l := newTestLedger(storage.NewMemory(), clock)
	for _, id := range []string{"2", "3", "999999"} {
		e := l.IsEligible(context.Background(), id)
		if !e.Allowed || e.Wait != "" || e.Reason != ReasonNever {
			t.Fatalf("user %s: %+v", id, e)
		}
	}
}

func TestRecordThenIneligible(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	l := newTestLedger(storage.NewMemory(), clock)

	l.Record(ctx, "42", clock.Now())
	e := l.IsEligible(ctx, "42")
	if e.Allowed || e.Reason != ReasonCooling {
		t.Fatalf("right after record: %+v", e)
	}
	if want := "⏳ انتظر 24 ساعة و 0 دقيقة"; e.Wait != want {
		t.Fatalf("wait = %q, want %q", e.Wait, want)
	}
	if !e.NextAt.Equal(clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("next at = %v", e.NextAt)
	}

	clock.Advance(24 * time.Hour)
	if e := l.IsEligible(ctx, "42"); !e.Allowed || e.Reason != ReasonExpired {
		t.Fatalf("at exactly the period boundary: %+v", e)
	}
}

func TestWaitIsFlooredToMinutes(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	l := newTestLedger(storage.NewMemory(), clock)
	l.Record(ctx, "42", start)

	cases := []struct {
		elapsed time.Duration
		want    string
		remain  time.Duration
	}{
		{time.Second, "⏳ انتظر 23 ساعة و 59 دقيقة", 24*time.Hour - time.Second},
		{1500 * time.Millisecond, "⏳ انتظر 23 ساعة و 59 دقيقة", 24*time.Hour - 2*time.Second},
		{22*time.Hour + 30*time.Minute + 59*time.Second, "⏳ انتظر 1 ساعة و 29 دقيقة", time.Hour + 29*time.Minute + time.Second},
		{24*time.Hour - 30*time.Second, "⏳ انتظر 0 ساعة و 0 دقيقة", 30 * time.Second},
	}
	for _, tc := range cases {
		clock.t = start.Add(tc.elapsed)
		e := l.IsEligible(ctx, "42")
		if e.Allowed {
			t.Fatalf("elapsed %v: unexpectedly allowed", tc.elapsed)
		}
		if e.Wait != tc.want {
			t.Fatalf("elapsed %v: wait = %q, want %q", tc.elapsed, e.Wait, tc.want)
		}
		if e.Remaining != tc.remain {
			t.Fatalf("elapsed %v: remaining = %v, want %v", tc.elapsed, e.Remaining, tc.remain)
		}
	}
}

func TestLongPeriodKeepsTotalHours(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	l := New(storage.NewMemory(), Options{Period: 72 * time.Hour, Now: clock.Now})
	l.Record(ctx, "42", clock.Now())
	clock.Advance(90 * time.Minute)
	if e := l.IsEligible(ctx, "42"); e.Wait != "⏳ انتظر 70 ساعة و 30 دقيقة" {
		t.Fatalf("wait = %q", e.Wait)
	}
}

func TestAdminBypassAndNeverRecorded(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	store := storage.NewMemory()
	l := newTestLedger(store, clock)

	l.Record(ctx, "1", clock.Now())
	if _, ok, _ := store.LastRequest(ctx, "1"); ok {
		t.Fatal("admin request was written to the store")
	}
	if err := store.PutLastRequest(ctx, "1", clock.Now()); err != nil {
		t.Fatal(err)
	}
	if e := l.IsEligible(ctx, "1"); !e.Allowed || e.Reason != ReasonAdmin {
		t.Fatalf("admin should always be eligible: %+v", e)
	}
}

func TestNoAdminConfigured(t *testing.T) {
	l := New(storage.NewMemory(), Options{})
	if l.IsAdmin("") {
		t.Fatal("empty id must not match an unset admin")
	}
}

func TestStoreFailuresFailOpen(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
	store := &failingStore{readErr: errors.New("disk gone"), writeErr: errors.New("read-only")}
	l := newTestLedger(store, clock)

	if e := l.IsEligible(ctx, "42"); !e.Allowed || e.Reason != ReasonStoreError {
		t.Fatalf("read failure should fail open: %+v", e)
	}
	l.Record(ctx, "42", clock.Now())
	if store.writes != 1 {
		t.Fatalf("writes = %d", store.writes)
	}
}

func TestSplit(t *testing.T) {
	h, m := Split(25*time.Hour + 59*time.Minute + 59*time.Second)
	if h != 25 || m != 59 {
		t.Fatalf("Split = %d,%d", h, m)
	}
	if h, m := Split(-time.Minute); h != 0 || m != 0 {
		t.Fatalf("negative Split = %d,%d", h, m)
	}
}
