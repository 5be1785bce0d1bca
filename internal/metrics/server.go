package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "newsbot/pkg/logx"
)

// Server serves /metrics and /healthz.
type Server struct {
	addr string
	log  logx.Logger
	srv  *http.Server
	ln   net.Listener
}

// ServerOptions toggles optional routes.
type ServerOptions struct {
	// Pprof mounts net/http/pprof under /debug. Keep the listener private
	// when enabled.
	Pprof bool
}

func NewServer(addr string, g prometheus.Gatherer, log logx.Logger, opt ServerOptions) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		addr: addr,
		log:  log.With(logx.String("comp", "metrics")),
		srv: &http.Server{
			Handler:           Router(g, opt),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Router is exported for tests.
func Router(g prometheus.Gatherer, opt ServerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if opt.Pprof {
		r.Mount("/debug", chimw.Profiler())
	}
	return r
}

// Listen binds the address so bind errors surface at startup.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("metrics listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Serve blocks until ctx is done or Shutdown is called. Listen must have
// succeeded.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("metrics: Serve before Listen")
	}
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(sctx)
	})
	defer stop()
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
