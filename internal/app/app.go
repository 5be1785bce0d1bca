// Package app wires the bot's components and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"newsbot/internal/config"
	"newsbot/internal/digest"
	"newsbot/internal/dispatch"
	"newsbot/internal/ledger"
	"newsbot/internal/metrics"
	"newsbot/internal/newsapi"
	"newsbot/internal/router"
	rtsup "newsbot/internal/runtime/supervisor"
	"newsbot/internal/scheduler"
	"newsbot/internal/storage"
	"newsbot/internal/transport"
	"newsbot/internal/transport/telegram"
	logx "newsbot/pkg/logx"
)

// DailyJob is the scheduler entry name of the unattended digest.
const DailyJob = "daily-digest"

type App struct {
	cfg *config.Config

	log  logx.Logger
	logs *logx.Service

	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	metricsSrv *metrics.Server

	store   storage.Store
	ledger  *ledger.Ledger
	adapter *telegram.Adapter
	ctrl    *dispatch.Controller
	router  *router.Router
	sched   *scheduler.Service

	sup     *rtsup.Supervisor
	updates chan transport.Update
}

type Option func(*options)

type options struct {
	offline bool
}

// WithOfflineTransport skips the Telegram identity check. One-shot CLI
// commands use it; sending still works.
func WithOfflineTransport() Option {
	return func(o *options) { o.offline = true }
}

// New builds every component from a validated config. Nothing runs until
// Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	// The Telegram log sink needs the adapter, which needs a logger; the
	// sender is attached once the adapter exists.
	logSvc, log := logx.New(mapLogConfig(cfg), nil)
	appLog := log.With(logx.String("comp", "app"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := storage.Open(mapStorageConfig(cfg), log)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	appLog.Info("storage ready", logx.String("driver", cfg.Storage.Driver))

	tcfg := mapTelegramConfig(cfg)
	tcfg.Offline = o.offline
	ad, err := telegram.New(tcfg, log, m)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logSvc.SetSender(ad)

	led := ledger.New(store, ledger.Options{
		Period:  config.MustDuration(cfg.Cooldown.Period, 24*time.Hour),
		AdminID: cfg.Telegram.AdminUserID,
		Log:     log,
	})
	news := newsapi.New(mapNewsOptions(cfg, log))
	// built first so user-facing dates follow the schedule's zone
	sched := scheduler.New(scheduler.Config{
		Timezone:       cfg.Schedule.Timezone,
		DefaultTimeout: config.MustDuration(cfg.Schedule.Timeout, 2*time.Minute),
	}, log, m)
	ctrl := dispatch.New(led, news, digest.New(mapDigestOptions(cfg)), ad, dispatch.Options{
		Query:     cfg.News.Query,
		MaxRaw:    cfg.News.MaxRaw,
		Recipient: scheduledRecipient(cfg),
		Location:  sched.Location(),
		Log:       log,
		Metrics:   m,
	})

	rt := router.New(router.Options{
		Workers:     cfg.Telegram.Workers,
		Timeout:     config.MustDuration(cfg.Telegram.CommandTimeout, 45*time.Second),
		BotUsername: ad.Username(),
		Log:         log,
		Metrics:     m,
	})
	registerCommands(rt, ctrl)

	if cfg.ScheduleEnabled() {
		if err := sched.AddDaily(DailyJob, cfg.Schedule.DailyAt, 0, ctrl.RunScheduled); err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("schedule: %w", err)
		}
	}

	var srv *metrics.Server
	if cfg.Metrics.Addr != "" {
		srv = metrics.NewServer(cfg.Metrics.Addr, reg, log, metrics.ServerOptions{Pprof: cfg.Metrics.Pprof})
	}

	return &App{
		cfg:        cfg,
		log:        appLog,
		logs:       logSvc,
		registry:   reg,
		metrics:    m,
		metricsSrv: srv,
		store:      store,
		ledger:     led,
		adapter:    ad,
		ctrl:       ctrl,
		router:     rt,
		sched:      sched,
		updates:    make(chan transport.Update, 256),
	}, nil
}

func registerCommands(rt *router.Router, ctrl *dispatch.Controller) {
	wrap := func(fn func(context.Context, dispatch.Request) error) router.Handler {
		return func(ctx context.Context, req *router.Request) error {
			return fn(ctx, dispatch.Request{UserID: req.UserID, Chat: req.Chat})
		}
	}
	rt.Handle("start", wrap(ctrl.HandleStart), "help")
	rt.Handle("news", wrap(ctrl.HandleNews), "getnews")
	rt.Handle("status", wrap(ctrl.HandleStatus))
	rt.Handle("push", wrap(ctrl.HandlePush))
}

func (a *App) Controller() *dispatch.Controller { return a.ctrl }

func (a *App) Ledger() *ledger.Ledger { return a.ledger }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app context is canceled by a fatal error or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	if a.metricsSrv != nil {
		// bind first so a taken port fails startup instead of a goroutine
		if err := a.metricsSrv.Listen(); err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		a.sup.Go("metrics.http", a.metricsSrv.Serve)
	}

	if err := a.adapter.Start(c, a.updates); err != nil {
		return err
	}
	a.sup.Go0("telegram.menu", func(c context.Context) {
		if err := a.adapter.SetMenu(menu); err != nil {
			a.log.Warn("menu update failed", logx.Err(err))
		}
	})

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	if a.cfg.ScheduleEnabled() {
		if err := a.sched.Start(c); err != nil {
			return err
		}
		for _, e := range a.sched.Entries() {
			a.log.Info("scheduled", logx.String("job", e.Name), logx.String("spec", e.Spec), logx.Time("next", e.Next))
		}
	}

	sdNotify(a.log, "READY=1")
	a.log.Info("app started",
		logx.String("bot", a.adapter.Username()),
		logx.Duration("cooldown", a.ledger.Period()),
		logx.Bool("admin", a.cfg.Telegram.AdminUserID != ""),
	)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return a.Close()
	}
	sdNotify(a.log, "STOPPING=1")
	a.log.Info("stopping")

	a.sup.Cancel()

	a.step(ctx, "scheduler", 3*time.Second, a.sched.Stop)
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	if a.metricsSrv != nil {
		a.step(ctx, "metrics", time.Second, a.metricsSrv.Shutdown)
	}
	// wait for in-flight commands before closing the store they write to
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// Close releases resources of an App that was never started.
func (a *App) Close() error {
	err := a.store.Close()
	if cerr := a.logs.Close(); err == nil {
		err = cerr
	}
	return err
}

// step runs one shutdown step with an upper bound so a stuck component
// cannot stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
