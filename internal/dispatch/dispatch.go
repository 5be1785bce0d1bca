// Package dispatch runs the per-invocation digest flow: admission through
// the cooldown ledger, fetch, render, deliver, record.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsbot/internal/ledger"
	"newsbot/internal/locale"
	"newsbot/internal/metrics"
	"newsbot/internal/newsapi"
	"newsbot/internal/transport"
	logx "newsbot/pkg/logx"
)

// ErrNoRecipient is returned by RunScheduled when no recipient is set.
var ErrNoRecipient = errors.New("scheduled digest has no recipient")

const (
	pathOnDemand  = "on_demand"
	pathScheduled = "scheduled"

	recordTimeout = 5 * time.Second
)

type Ledger interface {
	IsAdmin(userID string) bool
	IsEligible(ctx context.Context, userID string) ledger.Eligibility
	Record(ctx context.Context, userID string, at time.Time)
	NextEligibleAt(at time.Time) time.Time
	Period() time.Duration
}

type Source interface {
	Fetch(ctx context.Context, query string, maxRaw int) newsapi.Result
}

type Renderer interface {
	Render(items []newsapi.Item, generatedAt time.Time) string
}

// Request identifies who asked and where replies go.
type Request struct {
	UserID string
	Chat   transport.ChatTarget
}

type Options struct {
	Query  string
	MaxRaw int
	// Recipient receives the scheduled digest. A zero ChatID disables it.
	Recipient transport.ChatTarget

	Now      func() time.Time
	// Location is the zone user-facing dates are shown in, normally the
	// scheduler's. Nil keeps the clock's zone.
	Location *time.Location
	Log      logx.Logger
	Metrics  *metrics.Metrics
}

type Controller struct {
	ledger   Ledger
	source   Source
	renderer Renderer
	sender   transport.Sender

	query     string
	maxRaw    int
	recipient transport.ChatTarget
	now       func() time.Time
	loc       *time.Location
	log       logx.Logger
	metrics   *metrics.Metrics
}

func New(l Ledger, src Source, r Renderer, sender transport.Sender, opt Options) *Controller {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.MaxRaw <= 0 {
		opt.MaxRaw = 20
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	return &Controller{
		ledger:    l,
		source:    src,
		renderer:  r,
		sender:    sender,
		query:     opt.Query,
		maxRaw:    opt.MaxRaw,
		recipient: opt.Recipient,
		now:       opt.Now,
		loc:       opt.Location,
		log:       opt.Log.With(logx.String("comp", "dispatch")),
		metrics:   opt.Metrics,
	}
}

func (c *Controller) HandleStart(ctx context.Context, req Request) error {
	hours := int(c.ledger.Period() / time.Hour)
	return c.reply(ctx, req, locale.Welcome(hours), transport.ParseModeMarkdown)
}

func (c *Controller) HandleStatus(ctx context.Context, req Request) error {
	e := c.ledger.IsEligible(ctx, req.UserID)
	if e.Allowed {
		return c.reply(ctx, req, locale.Allowed, transport.ParseModeNone)
	}
	return c.reply(ctx, req, e.Wait, transport.ParseModeNone)
}

// HandleNews serves an on-demand digest. An ineligible user gets the wait
// text and no upstream call is made.
func (c *Controller) HandleNews(ctx context.Context, req Request) error {
	log := c.log.With(logx.String("user_id", req.UserID), logx.Int64("chat_id", req.Chat.ChatID))
	admin := c.ledger.IsAdmin(req.UserID)

	if !admin {
		e := c.ledger.IsEligible(ctx, req.UserID)
		c.metrics.CooldownCheck(string(e.Reason))
		if !e.Allowed {
			log.Debug("request refused by cooldown", logx.Duration("remaining", e.Remaining))
			return c.reply(ctx, req, e.Wait, transport.ParseModeNone)
		}
	} else {
		c.metrics.CooldownCheck(string(ledger.ReasonAdmin))
	}

	// Progress is cosmetic.
	_ = c.reply(ctx, req, locale.Progress, transport.ParseModeNone)

	msg, res := c.Compose(ctx)
	_, sendErr := c.sender.SendText(ctx, req.Chat, msg, digestOptions())
	c.metrics.Delivery(pathOnDemand, sendErr)
	if sendErr != nil {
		log.Warn("digest delivery failed", logx.Err(sendErr))
	}

	if admin {
		return c.reply(ctx, req, locale.Done, transport.ParseModeNone)
	}
	if errors.Is(res.Err, newsapi.ErrBudget) {
		// Nothing left the process, so the window is not consumed.
		return c.reply(ctx, req, locale.Done, transport.ParseModeNone)
	}

	at := c.now()
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	c.ledger.Record(rctx, req.UserID, at)
	cancel()

	log.Info("digest served", logx.String("outcome", string(res.Outcome)), logx.Int("items", len(res.Items)))
	return c.reply(ctx, req, locale.DoneNext(c.local(c.ledger.NextEligibleAt(at))), transport.ParseModeNone)
}

// HandlePush sends the scheduled digest now. Only the admin may use it.
func (c *Controller) HandlePush(ctx context.Context, req Request) error {
	if !c.ledger.IsAdmin(req.UserID) {
		c.log.Info("push refused", logx.String("user_id", req.UserID))
		return c.reply(ctx, req, locale.AdminOnly, transport.ParseModeNone)
	}
	if err := c.RunScheduled(ctx); err != nil {
		return c.reply(ctx, req, locale.PushFailed, transport.ParseModeNone)
	}
	return c.reply(ctx, req, locale.PushDone, transport.ParseModeNone)
}

// RunScheduled delivers one digest to the configured recipient. The ledger
// is neither consulted nor written.
func (c *Controller) RunScheduled(ctx context.Context) error {
	if c.recipient.ChatID == 0 {
		c.log.Error("scheduled digest skipped", logx.Err(ErrNoRecipient))
		return ErrNoRecipient
	}
	msg, res := c.Compose(ctx)
	_, err := c.sender.SendText(ctx, c.recipient, msg, digestOptions())
	c.metrics.Delivery(pathScheduled, err)
	if err != nil {
		c.log.Warn("scheduled delivery failed", logx.Int64("chat_id", c.recipient.ChatID), logx.Err(err))
		return fmt.Errorf("deliver scheduled digest: %w", err)
	}
	c.log.Info("scheduled digest delivered",
		logx.Int64("chat_id", c.recipient.ChatID),
		logx.String("outcome", string(res.Outcome)),
		logx.Int("items", len(res.Items)),
	)
	return nil
}

// Compose fetches and renders one digest without sending it.
func (c *Controller) Compose(ctx context.Context) (string, newsapi.Result) {
	res := c.source.Fetch(ctx, c.query, c.maxRaw)
	c.metrics.ObserveFetch(string(res.Outcome), res.Took)
	return c.renderer.Render(res.Items, c.local(c.now())), res
}

func (c *Controller) local(t time.Time) time.Time {
	if c.loc == nil {
		return t
	}
	return t.In(c.loc)
}

func (c *Controller) reply(ctx context.Context, req Request, text, mode string) error {
	_, err := c.sender.SendText(ctx, req.Chat, text, &transport.SendOptions{ParseMode: mode, DisablePreview: true})
	if err != nil {
		c.log.Warn("reply failed", logx.Int64("chat_id", req.Chat.ChatID), logx.Err(err))
	}
	return err
}

func digestOptions() *transport.SendOptions {
	return &transport.SendOptions{ParseMode: transport.ParseModeMarkdown, DisablePreview: true}
}
