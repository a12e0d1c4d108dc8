package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"vrptabu/internal/config"
	"vrptabu/internal/metrics"
	"vrptabu/internal/store"
)

type Server struct {
	Store  store.Store
	Broker EventBroker
	Log    logr.Logger
	Config config.Config

	limiter *rate.Limiter
	// background solves run under ctx and are awaited by Close
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// NewServer picks the store and broker from cfg: Postgres when DatabaseURL
// is set, else SQLite when SQLitePath is set, else memory; Redis when
// RedisURL is set, else in-process.
func NewServer(ctx context.Context, cfg config.Config, log logr.Logger) (*Server, error) {
	var st store.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		st = pg
	case cfg.SQLitePath != "":
		sq, err := store.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st = sq
	default:
		st = store.NewMemory()
	}

	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(ctx, cfg.RedisURL, log.WithName("redis"))
		if err != nil {
			log.Error(err, "redis broker unavailable; using in-process broker")
		} else {
			broker = rb
		}
	}
	return New(st, broker, cfg, log), nil
}

// New assembles a Server from ready-made parts.
func New(st store.Store, broker EventBroker, cfg config.Config, log logr.Logger) *Server {
	s := &Server{Store: st, Broker: broker, Log: log, Config: cfg}
	if cfg.RateRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Handler wires every route behind the metrics and rate-limit middleware.
func (s *Server) Handler() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/solve", s.SolveHandler)
	mux.HandleFunc("/v1/check", s.CheckHandler)
	mux.HandleFunc("/v1/runs", s.RunsIndexHandler)
	mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /ws and /events
	mux.HandleFunc("/v1/config", s.ConfigHandler)
	mux.HandleFunc("/v1/debug", s.DebugJSON)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return s.instrument(s.rateLimit(mux))
}

// Close cancels background solves, waits for them, and releases the store
// and broker.
func (s *Server) Close() error {
	s.cancel()
	s.running.Wait()
	var errs []error
	if c, ok := s.Store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.Broker.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
