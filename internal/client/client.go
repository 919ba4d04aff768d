package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/edgekv/internal/protocol"
	"github.com/danmuck/edgekv/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed        = errors.New("client: closed")
	ErrSubscribed    = errors.New("client: connection is in subscribe mode")
	ErrNoArguments   = errors.New("client: empty command")
	ErrStopStreaming = errors.New("client: stop subscription")
)

// Config defines connection and retry behavior.
type Config struct {
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	MaxFrameBytes      uint32
	Backoff            Backoff
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     5 * time.Second,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		MaxConnectAttempts: 3,
		MaxFrameBytes:      frame.DefaultLimits().MaxPayloadBytes,
		Backoff: Backoff{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// Client is one connection. Calls are serialized; one request is in flight at a time.
type Client struct {
	cfg    Config
	limits frame.Limits
	addr   string

	mu         sync.Mutex
	conn       net.Conn
	closed     bool
	subscribed bool
}

// Dial connects to addr, retrying with backoff up to cfg.MaxConnectAttempts.
func Dial(ctx context.Context, addr string, cfg Config) (*Client, error) {
	addr = strings.TrimSpace(addr)
	attempts := cfg.MaxConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}

	for attempt := 1; ; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			log.Debug().Str("addr", addr).Int("attempt", attempt).Msg("client connected")
			return &Client{
				cfg:    cfg,
				limits: frame.Limits{MaxPayloadBytes: cfg.MaxFrameBytes},
				addr:   addr,
				conn:   conn,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("client: dial %s after %d attempts: %w", addr, attempt, err)
		}

		delay := NextBackoffDelay(cfg.Backoff, attempt, rng)
		log.Debug().Str("addr", addr).Int("attempt", attempt).Dur("retry_in", delay).Err(err).Msg("dial failed")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) Addr() string { return c.addr }

// Do sends one request and returns the decoded reply. An Error reply is a
// Value, not a Go error; a malformed reply is a *protocol.DecodeError.
// A zero-length reply frame yields a nil Value and nil error.
func (c *Client) Do(args ...[]byte) (protocol.Value, error) {
	if len(args) == 0 {
		return nil, ErrNoArguments
	}
	body, err := protocol.EncodeRequest(args)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.subscribed {
		return nil, ErrSubscribed
	}

	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := frame.WriteFrame(c.conn, body, c.limits); err != nil {
		return nil, fmt.Errorf("client: send: %w", err)
	}
	if c.cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	payload, err := frame.ReadFrame(c.conn, c.limits)
	if err != nil {
		return nil, fmt.Errorf("client: receive: %w", err)
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return protocol.UnmarshalValue(payload)
}

func (c *Client) DoStrings(args ...string) (protocol.Value, error) {
	return c.Do(protocol.RequestStrings(args...)...)
}

// Subscribe switches the connection into push mode and calls fn for every
// pushed value, confirmations included, until ctx is done, the server closes
// the connection, or fn returns an error. Returning ErrStopStreaming ends the
// stream without error. The client cannot send further requests afterwards.
func (c *Client) Subscribe(ctx context.Context, channels []string, fn func(protocol.Value) error) error {
	if len(channels) == 0 {
		return ErrNoArguments
	}
	args := append([]string{"SUBSCRIBE"}, channels...)
	body, err := protocol.EncodeRequest(protocol.RequestStrings(args...))
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.subscribed {
		c.mu.Unlock()
		return ErrSubscribed
	}
	c.subscribed = true
	conn := c.conn
	c.mu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := frame.WriteFrame(conn, body, c.limits); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		payload, err := frame.ReadFrame(conn, c.limits)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, frame.ErrConnClosed) {
				return nil
			}
			return fmt.Errorf("client: receive: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		v, err := protocol.UnmarshalValue(payload)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			if errors.Is(err, ErrStopStreaming) {
				return nil
			}
			return err
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
