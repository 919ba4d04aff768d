package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgekv/internal/commands"
	"github.com/danmuck/edgekv/internal/observability"
	"github.com/danmuck/edgekv/internal/protocol"
	"github.com/danmuck/edgekv/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// connState tracks whether a connection is waiting for its next request.
// Only idle connections are interrupted on shutdown.
type connState struct {
	conn    net.Conn
	closing *atomic.Bool

	mu   sync.Mutex
	busy bool
}

// beginRead arms the idle deadline unless the server is closing.
func (cs *connState) beginRead(idle time.Duration) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closing.Load() {
		return false
	}
	cs.busy = false
	var deadline time.Time
	if idle > 0 {
		deadline = time.Now().Add(idle)
	}
	_ = cs.conn.SetReadDeadline(deadline)
	return true
}

func (cs *connState) markBusy() {
	cs.mu.Lock()
	cs.busy = true
	cs.mu.Unlock()
}

func (cs *connState) interruptIdle() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.busy {
		_ = cs.conn.SetReadDeadline(time.Now())
	}
}

// handleConn serves one request at a time until the peer leaves, the idle
// timeout fires, or the server shuts down.
func (s *Server) handleConn(cs *connState) {
	defer s.releaseConn(cs)
	observability.ConnectionOpened()
	defer observability.ConnectionClosed()

	logger := log.With().Str("server", s.cfg.Name).Str("remote", cs.conn.RemoteAddr().String()).Logger()
	logger.Debug().Msg("client connected")
	defer logger.Debug().Msg("client disconnected")

	for {
		if !cs.beginRead(s.cfg.IdleTimeout) {
			return
		}
		payload, err := frame.ReadFrame(cs.conn, s.limits)
		if err != nil {
			s.logReadError(logger, err)
			return
		}
		cs.markBusy()
		observability.RecordFrameBytes("in", frame.HeaderLen+len(payload))

		req, err := protocol.DecodeRequest(payload)
		var reply protocol.Value
		switch {
		case err != nil:
			logger.Debug().Err(err).Msg("malformed request")
			reply = protocol.Errorf(commands.ErrCodeProtocol, "malformed request: %v", err)
		case len(req) > 0 && strings.EqualFold(string(req[0]), "SUBSCRIBE"):
			if len(req) < 2 {
				reply = commands.ArityError("subscribe")
				break
			}
			s.servePush(cs, logger, req[1:])
			return
		default:
			reply = s.execute(req)
		}

		if err := s.writeValue(cs.conn, reply); err != nil {
			logger.Debug().Err(err).Msg("write reply")
			return
		}
	}
}

// execute runs req on the pool and waits for its reply.
func (s *Server) execute(req [][]byte) protocol.Value {
	result := make(chan protocol.Value, 1)
	err := s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- protocol.Errorf(commands.ErrCodeInternal, "internal error")
				panic(r)
			}
		}()
		result <- s.dispatcher.Dispatch(req)
	})
	if err != nil {
		return protocol.Errorf(commands.ErrCodeBusy, "server is shutting down")
	}
	return <-result
}

func (s *Server) writeValue(conn net.Conn, v protocol.Value) error {
	body, err := protocol.EncodeValue(v)
	if err != nil {
		log.Error().Err(err).Msg("encode reply")
		body, _ = protocol.EncodeValue(protocol.Errorf(commands.ErrCodeInternal, "internal error"))
	}
	if err := frame.WriteFrame(conn, body, s.limits); err != nil {
		if !errors.Is(err, frame.ErrPayloadTooLarge) {
			return err
		}
		body, _ = protocol.EncodeValue(protocol.Errorf(commands.ErrCodeInternal, "reply exceeds %d bytes", s.limits.MaxPayloadBytes))
		if err := frame.WriteFrame(conn, body, s.limits); err != nil {
			return err
		}
	}
	observability.RecordFrameBytes("out", frame.HeaderLen+len(body))
	return nil
}

// servePush confirms each channel and then streams published messages until
// the peer disconnects or the server shuts down.
func (s *Server) servePush(cs *connState, logger zerolog.Logger, channels [][]byte) {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = string(ch)
	}
	sub := s.dispatcher.Broker().Subscribe(names...)
	defer sub.Close()

	for i, name := range sub.Channels() {
		confirm := protocol.ArrayOf(
			protocol.StringValue("subscribe"),
			protocol.StringValue(name),
			protocol.Integer(i+1),
		)
		if err := s.writeValue(cs.conn, confirm); err != nil {
			return
		}
	}
	logger.Debug().Strs("channels", sub.Channels()).Msg("push mode")

	_ = cs.conn.SetReadDeadline(time.Time{})
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = io.Copy(io.Discard, cs.conn)
	}()
	defer func() {
		_ = cs.conn.Close()
		<-gone
	}()

	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			push := protocol.ArrayOf(
				protocol.StringValue("message"),
				protocol.StringValue(msg.Channel),
				protocol.String(msg.Payload),
			)
			if err := s.writeValue(cs.conn, push); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.done:
			return
		}
	}
}

func (s *Server) logReadError(logger zerolog.Logger, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, frame.ErrConnClosed), errors.Is(err, net.ErrClosed):
	case errors.As(err, &ne) && ne.Timeout():
		if !s.closing.Load() {
			logger.Debug().Msg("idle timeout")
		}
	case errors.Is(err, frame.ErrPayloadTooLarge):
		logger.Warn().Err(err).Msg("oversized frame")
	default:
		logger.Debug().Err(err).Msg("read frame")
	}
}
