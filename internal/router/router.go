// Package router turns inbound chat updates into handler calls.
package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsbot/internal/metrics"
	"newsbot/internal/runtime/supervisor"
	"newsbot/internal/transport"
	logx "newsbot/pkg/logx"
)

// Request is one routed command.
type Request struct {
	ID      string
	Command string // canonical name after alias resolution
	Args    []string
	UserID  string
	Chat    transport.ChatTarget
	Message *transport.Message
	Log     logx.Logger
}

type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	// BotUsername filters "/cmd@otherbot" in group chats. Empty accepts all.
	BotUsername string
	Log         logx.Logger
	Metrics     *metrics.Metrics
}

type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	aliases  map[string]string

	workers int
	jobs    chan *Request
	mw      []Middleware
	botName string
	log     logx.Logger
	metrics *metrics.Metrics
}

func New(opt Options) *Router {
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 64
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	return &Router{
		handlers: map[string]Handler{},
		aliases:  map[string]string{},
		workers:  opt.Workers,
		jobs:     make(chan *Request, opt.QueueSize),
		mw:       []Middleware{Recover(), RequestLog(), Timeout(opt.Timeout)},
		botName:  strings.ToLower(strings.TrimPrefix(opt.BotUsername, "@")),
		log:      opt.Log.With(logx.String("comp", "router")),
		metrics:  opt.Metrics,
	}
}

// Handle registers h for name and any aliases.
func (r *Router) Handle(name string, h Handler, aliases ...string) {
	name = strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = Chain(h, r.mw...)
	for _, a := range aliases {
		r.aliases[strings.ToLower(a)] = name
	}
}

// Resolve maps a command word to its canonical name.
func (r *Router) Resolve(word string) (string, bool) {
	word = strings.ToLower(word)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canon, ok := r.aliases[word]; ok {
		word = canon
	}
	_, ok := r.handlers[word]
	return word, ok
}

// Route builds a Request from an update. ok is false when the update
// carries no command for this bot.
func (r *Router) Route(up transport.Update) (*Request, bool) {
	if up.Kind != transport.UpdateMessage || up.Message == nil {
		return nil, false
	}
	msg := up.Message
	cmd, ok := Parse(msg.Text)
	if !ok {
		return nil, false
	}
	if cmd.Mention != "" && r.botName != "" && strings.ToLower(cmd.Mention) != r.botName {
		return nil, false
	}
	name, ok := r.Resolve(cmd.Name)
	if !ok {
		r.log.Debug("unknown command ignored", logx.String("cmd", cmd.Name), logx.Int64("chat_id", msg.ChatID))
		return nil, false
	}

	id := uuid.NewString()
	userID := strconv.FormatInt(msg.FromID, 10)
	return &Request{
		ID:      id,
		Command: name,
		Args:    cmd.Args,
		UserID:  userID,
		Chat:    transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		Message: msg,
		Log:     r.log.With(logx.String("req_id", id), logx.String("cmd", name)),
	}, true
}

// Serve handles one request synchronously.
func (r *Router) Serve(ctx context.Context, req *Request) error {
	r.mu.RLock()
	h := r.handlers[req.Command]
	r.mu.RUnlock()
	if h == nil {
		return nil
	}
	r.metrics.Command(req.Command)
	return h(ctx, req)
}

// Run reads updates until ctx is done or updates is closed, fanning
// requests out to a bounded worker pool. A full queue drops the update.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	for i := 0; i < r.workers; i++ {
		sup.GoRestart("router.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case req, ok := <-r.jobs:
					if !ok {
						return nil
					}
					_ = r.Serve(c, req)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("queue_cap", cap(r.jobs)))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			req, ok := r.Route(up)
			if !ok {
				continue
			}
			select {
			case r.jobs <- req:
			default:
				r.metrics.DroppedUpdate()
				req.Log.Warn("dispatch queue full, dropping command", logx.Int64("chat_id", req.Chat.ChatID))
			}
		}
	}
}
