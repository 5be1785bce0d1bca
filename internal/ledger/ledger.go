// Package ledger enforces the per-user cooldown between digest requests.
package ledger

import (
	"context"
	"strings"
	"time"

	"newsbot/internal/locale"
	"newsbot/internal/storage"
	logx "newsbot/pkg/logx"
)

// Reason explains an eligibility decision.
type Reason string

const (
	ReasonNever      Reason = "never"
	ReasonExpired    Reason = "expired"
	ReasonCooling    Reason = "cooling"
	ReasonAdmin      Reason = "admin"
	ReasonStoreError Reason = "store_error"
)

// Eligibility is the result of IsEligible. Wait is empty when Allowed.
type Eligibility struct {
	Allowed   bool
	Wait      string
	Remaining time.Duration
	NextAt    time.Time
	Reason    Reason
}

type Options struct {
	Period  time.Duration
	AdminID string
	// Now defaults to time.Now.
	Now func() time.Time
	Log logx.Logger
}

// Ledger reads and writes last-request times through a storage.Store.
//
// Storage errors never block a user: reads fail open, writes are logged and
// dropped.
type Ledger struct {
	store  storage.Store
	period time.Duration
	admin  string
	now    func() time.Time
	log    logx.Logger
}

func New(store storage.Store, opt Options) *Ledger {
	if opt.Period <= 0 {
		opt.Period = 24 * time.Hour
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	return &Ledger{
		store:  store,
		period: opt.Period,
		admin:  strings.TrimSpace(opt.AdminID),
		now:    opt.Now,
		log:    opt.Log.With(logx.String("comp", "ledger")),
	}
}

func (l *Ledger) Period() time.Duration { return l.period }

// IsAdmin reports whether userID is the configured administrator.
func (l *Ledger) IsAdmin(userID string) bool {
	return l.admin != "" && userID == l.admin
}

func (l *Ledger) IsEligible(ctx context.Context, userID string) Eligibility {
	if l.IsAdmin(userID) {
		return Eligibility{Allowed: true, Reason: ReasonAdmin}
	}

	last, ok, err := l.store.LastRequest(ctx, userID)
	if err != nil {
		l.log.Warn("ledger read failed, allowing request", logx.String("user_id", userID), logx.Err(err))
		return Eligibility{Allowed: true, Reason: ReasonStoreError}
	}
	if !ok {
		return Eligibility{Allowed: true, Reason: ReasonNever}
	}

	next := last.Add(l.period)
	now := l.now()
	if !now.Before(next) {
		return Eligibility{Allowed: true, Reason: ReasonExpired}
	}

	remaining := next.Sub(now).Truncate(time.Second)
	hours, minutes := Split(remaining)
	return Eligibility{
		Allowed:   false,
		Wait:      locale.Wait(hours, minutes),
		Remaining: remaining,
		NextAt:    next,
		Reason:    ReasonCooling,
	}
}

// Record stores at as userID's last request. The admin is never written.
func (l *Ledger) Record(ctx context.Context, userID string, at time.Time) {
	if l.IsAdmin(userID) {
		return
	}
	if err := l.store.PutLastRequest(ctx, userID, at); err != nil {
		l.log.Warn("ledger write failed", logx.String("user_id", userID), logx.Err(err))
		return
	}
	l.log.Debug("cooldown recorded", logx.String("user_id", userID), logx.Time("at", at))
}

// NextEligibleAt is the first instant a request recorded at at expires.
func (l *Ledger) NextEligibleAt(at time.Time) time.Time {
	return at.Add(l.period)
}

// Split breaks d into whole hours and the leftover whole minutes. Hours are
// not wrapped at a day.
func Split(d time.Duration) (hours, minutes int) {
	if d < 0 {
		return 0, 0
	}
	total := int(d / time.Minute)
	return total / 60, total % 60
}
