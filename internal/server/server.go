package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgekv/internal/commands"
	"github.com/danmuck/edgekv/internal/observability"
	"github.com/danmuck/edgekv/internal/pool"
	"github.com/danmuck/edgekv/internal/protocol/frame"
	"github.com/danmuck/edgekv/internal/pubsub"
	"github.com/danmuck/edgekv/internal/store"
	"github.com/rs/zerolog/log"
)

var ErrServerClosed = errors.New("server: closed")

// Config configures the TCP server and its optional admin endpoint.
type Config struct {
	Name             string
	Addr             string
	AdminAddr        string
	Workers          int
	Shards           int
	MaxFrameBytes    uint32
	IdleTimeout      time.Duration
	SubscriberBuffer int
	CORSOrigins      []string
}

func DefaultConfig() Config {
	return Config{
		Name:             "edgekv",
		Addr:             "127.0.0.1:6379",
		Workers:          4,
		Shards:           store.DefaultShards,
		MaxFrameBytes:    frame.DefaultLimits().MaxPayloadBytes,
		IdleTimeout:      5 * time.Minute,
		SubscriberBuffer: pubsub.DefaultBuffer,
	}
}

// Server accepts connections and runs each decoded request on a worker pool.
type Server struct {
	cfg        Config
	limits     frame.Limits
	pool       *pool.Pool
	dispatcher *commands.Dispatcher
	started    time.Time

	closing atomic.Bool
	done    chan struct{}

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[*connState]struct{}
	connWG    sync.WaitGroup

	admin        *http.Server
	adminLn      net.Listener // guarded by mu with admin
	shutdownOnce sync.Once
}

func New(cfg Config) (*Server, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "edgekv"
	}
	p, err := pool.NewWithConfig(pool.Config{
		Name:    cfg.Name,
		Workers: cfg.Workers,
		OnPanic: func(recovered any, _ []byte) {
			log.Error().Str("server", cfg.Name).Interface("panic", recovered).Msg("command task panicked")
		},
	})
	if err != nil {
		return nil, err
	}
	observability.RegisterMetrics()

	return &Server{
		cfg:        cfg,
		limits:     frame.Limits{MaxPayloadBytes: cfg.MaxFrameBytes},
		pool:       p,
		dispatcher: commands.NewDispatcher(store.New(cfg.Shards), pubsub.NewBroker(cfg.SubscriberBuffer)),
		started:    time.Now(),
		done:       make(chan struct{}),
		listeners:  make(map[net.Listener]struct{}),
		conns:      make(map[*connState]struct{}),
	}, nil
}

func (s *Server) Dispatcher() *commands.Dispatcher { return s.dispatcher }

func (s *Server) Pool() *pool.Pool { return s.pool }

// ListenAndServe listens on cfg.Addr, starts the admin endpoint when
// configured, and serves until ctx is done or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(s.cfg.Addr))
	if err != nil {
		return err
	}
	if strings.TrimSpace(s.cfg.AdminAddr) != "" {
		if err := s.startAdmin(); err != nil {
			_ = ln.Close()
			return err
		}
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. It returns nil once the server is shut down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listeners[ln] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, ln)
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, s.Shutdown)
	defer stop()

	log.Info().Str("server", s.cfg.Name).Str("addr", ln.Addr().String()).Int("workers", s.pool.Workers()).Msg("server listening")

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = nextAcceptDelay(tempDelay)
				log.Warn().Err(err).Dur("retry_in", tempDelay).Msg("accept failed")
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		cs, ok := s.trackConn(conn)
		if !ok {
			_ = conn.Close()
			continue
		}
		go s.handleConn(cs)
	}
}

// Shutdown stops accepting, unblocks idle connections, waits for every
// connection goroutine, then drains the worker pool. Safe to call repeatedly.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closing.Store(true)
		close(s.done)
		for ln := range s.listeners {
			_ = ln.Close()
		}
		conns := make([]*connState, 0, len(s.conns))
		for cs := range s.conns {
			conns = append(conns, cs)
		}
		admin, adminLn := s.admin, s.adminLn
		s.mu.Unlock()

		for _, cs := range conns {
			cs.interruptIdle()
		}
		s.connWG.Wait()
		s.pool.Shutdown()

		if admin != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := admin.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("admin shutdown")
			}
			cancel()
			// Serve may not have tracked the listener yet.
			_ = adminLn.Close()
		}
		log.Info().Str("server", s.cfg.Name).Msg("server stopped")
	})
}

func (s *Server) trackConn(conn net.Conn) (*connState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return nil, false
	}
	cs := &connState{conn: conn, closing: &s.closing}
	s.conns[cs] = struct{}{}
	s.connWG.Add(1)
	return cs, true
}

func (s *Server) releaseConn(cs *connState) {
	_ = cs.conn.Close()
	s.mu.Lock()
	delete(s.conns, cs)
	s.mu.Unlock()
	s.connWG.Done()
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
