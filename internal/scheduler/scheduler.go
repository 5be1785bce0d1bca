// Package scheduler triggers jobs at fixed wall-clock times.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"newsbot/internal/metrics"
	logx "newsbot/pkg/logx"
)

type Config struct {
	Timezone string // IANA name; empty means the process local zone
	// DefaultTimeout bounds a run when AddDaily gets no timeout.
	DefaultTimeout time.Duration
}

type Job func(ctx context.Context) error

// EntryInfo describes one registered job.
type EntryInfo struct {
	Name string
	Spec string
	Next time.Time
}

type entry struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	running atomic.Bool
	id      cron.EntryID
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	loc     *time.Location
	parser  cron.Parser
	c       *cron.Cron
	entries map[string]*entry
	baseCtx context.Context
	wg      sync.WaitGroup

	log     logx.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, log logx.Logger, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:     cfg,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]*entry{},
		log:     log.With(logx.String("comp", "scheduler")),
		metrics: m,
	}
	s.loc = s.location()
	return s
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) Location() *time.Location { return s.loc }

// AddDaily runs job every day at atHHMM in the scheduler's zone. Jobs may be
// added before or after Start.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := ParseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.add(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

func (s *Service) add(name, spec string, timeout time.Duration, job Job) error {
	if job == nil {
		return errors.New("scheduler: nil job")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("scheduler: spec %q: %w", spec, err)
	}
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	e := &entry{name: name, spec: spec, timeout: timeout, job: job}
	s.entries[name] = e
	if s.c != nil {
		return s.registerLocked(e)
	}
	return nil
}

func (s *Service) registerLocked(e *entry) error {
	id, err := s.c.AddFunc(e.spec, func() { s.fire(e) })
	if err != nil {
		return err
	}
	e.id = id
	return nil
}

// Start begins firing registered jobs. Runs are derived from ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx = ctx
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
	for _, e := range s.entries {
		if err := s.registerLocked(e); err != nil {
			return err
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.entries)))
	return nil
}

// Stop halts the trigger and waits for in-flight runs or ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries lists jobs by name. Next is zero until Start.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		info := EntryInfo{Name: e.name, Spec: e.spec}
		if s.c != nil {
			info.Next = s.c.Entry(e.id).Next
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Trigger runs a job immediately, outside its schedule.
func (s *Service) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	e := s.entries[name]
	s.mu.Unlock()
	if e == nil {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.runOnce(ctx, e)
}

var errOverlap = errors.New("previous run still in progress")

func (s *Service) fire(e *entry) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(1)
	defer s.wg.Done()
	_ = s.runOnce(ctx, e)
}

func (s *Service) runOnce(ctx context.Context, e *entry) (err error) {
	if !e.running.CompareAndSwap(false, true) {
		s.log.Warn("job skipped", logx.String("job", e.name), logx.Err(errOverlap))
		s.metrics.ScheduledRun(e.name, "skipped")
		return errOverlap
	}
	defer e.running.Store(false)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", logx.String("job", e.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		took := time.Since(start)
		if err != nil {
			s.log.Warn("job failed", logx.String("job", e.name), logx.Duration("took", took), logx.Err(err))
			s.metrics.ScheduledRun(e.name, "error")
			return
		}
		s.log.Info("job done", logx.String("job", e.name), logx.Duration("took", took))
		s.metrics.ScheduledRun(e.name, "ok")
	}()
	return e.job(ctx)
}

// ParseHHMM parses a wall-clock time of day, "00:00" through "23:59".
func ParseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return 0, 0, fmt.Errorf("invalid time %q (use HH:MM)", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// cronLogger routes robfig/cron's own messages through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
