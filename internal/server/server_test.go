package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/edgekv/internal/commands"
	"github.com/danmuck/edgekv/internal/protocol"
	"github.com/danmuck/edgekv/internal/protocol/frame"
	"github.com/danmuck/edgekv/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, mutate func(*Config)) (*Server, string) {
	t.Helper()
	testlog.Start(t)

	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.Workers = 2
	cfg.IdleTimeout = 0
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
		select {
		case err := <-served:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatalf("serve did not return")
		}
	})
	return srv, ln.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func send(t *testing.T, conn net.Conn, args ...string) {
	t.Helper()
	body, err := protocol.EncodeRequest(protocol.RequestStrings(args...))
	require.NoError(t, err)
	require.NoError(t, frame.WriteFrame(conn, body, frame.DefaultLimits()))
}

func receive(t *testing.T, conn net.Conn) protocol.Value {
	t.Helper()
	payload, err := frame.ReadFrame(conn, frame.DefaultLimits())
	require.NoError(t, err)
	v, err := protocol.UnmarshalValue(payload)
	require.NoError(t, err)
	return v
}

func roundTrip(t *testing.T, conn net.Conn, args ...string) protocol.Value {
	t.Helper()
	send(t, conn, args...)
	return receive(t, conn)
}

func requireValue(t *testing.T, want, got protocol.Value) {
	t.Helper()
	require.Truef(t, protocol.Equal(want, got), "want %#v, got %#v", want, got)
}

func TestServerRoundTrip(t *testing.T) {
	_, addr := startServer(t, nil)
	conn := dial(t, addr)

	requireValue(t, protocol.StringValue("PONG"), roundTrip(t, conn, "PING"))
	requireValue(t, protocol.StringValue("OK"), roundTrip(t, conn, "SET", "k", "v"))
	requireValue(t, protocol.StringValue("v"), roundTrip(t, conn, "GET", "k"))
	requireValue(t, protocol.Nil{}, roundTrip(t, conn, "GET", "missing"))
	requireValue(t, protocol.Integer(3), roundTrip(t, conn, "INCRBY", "n", "3"))
	requireValue(t, protocol.StringArray("k", "n"), roundTrip(t, conn, "KEYS"))
}

func TestServerMalformedRequestKeepsConnection(t *testing.T) {
	_, addr := startServer(t, nil)
	conn := dial(t, addr)

	// argc claims two arguments but the body ends after the count.
	require.NoError(t, frame.WriteFrame(conn, []byte{2, 0, 0, 0}, frame.DefaultLimits()))
	e, ok := receive(t, conn).(protocol.Error)
	require.True(t, ok)
	require.Equal(t, commands.ErrCodeProtocol, e.Code)

	require.NoError(t, frame.WriteFrame(conn, nil, frame.DefaultLimits()))
	e, ok = receive(t, conn).(protocol.Error)
	require.True(t, ok)
	require.Equal(t, commands.ErrCodeProtocol, e.Code)

	requireValue(t, protocol.StringValue("PONG"), roundTrip(t, conn, "PING"))
}

func TestServerOversizedFrameClosesConnection(t *testing.T) {
	_, addr := startServer(t, func(cfg *Config) { cfg.MaxFrameBytes = 64 })
	conn := dial(t, addr)

	_, err := conn.Write(frame.EncodeHeader(1 << 20))
	require.NoError(t, err)
	_, err = frame.ReadFrame(conn, frame.DefaultLimits())
	require.ErrorIs(t, err, frame.ErrConnClosed)
}

func TestServerOversizedReplyBecomesError(t *testing.T) {
	srv, addr := startServer(t, func(cfg *Config) { cfg.MaxFrameBytes = 128 })
	srv.Dispatcher().Store().Set("big", make([]byte, 512))
	conn := dial(t, addr)

	e, ok := roundTrip(t, conn, "GET", "big").(protocol.Error)
	require.True(t, ok)
	require.Equal(t, commands.ErrCodeInternal, e.Code)
	requireValue(t, protocol.StringValue("PONG"), roundTrip(t, conn, "PING"))
}

func TestServerPanickingCommandKeepsServing(t *testing.T) {
	srv, addr := startServer(t, func(cfg *Config) { cfg.Workers = 1 })
	require.NoError(t, srv.Dispatcher().Registry().Register(commands.Spec{
		Name:  "BOOM",
		Arity: 1,
		Handler: func(*commands.Dispatcher, [][]byte) protocol.Value {
			panic("boom")
		},
	}))
	conn := dial(t, addr)

	e, ok := roundTrip(t, conn, "BOOM").(protocol.Error)
	require.True(t, ok)
	require.Equal(t, commands.ErrCodeInternal, e.Code)
	requireValue(t, protocol.StringValue("PONG"), roundTrip(t, conn, "PING"))
	require.Equal(t, 1, srv.Pool().Live())
}

func TestServerSubscribePublish(t *testing.T) {
	_, addr := startServer(t, nil)
	subConn := dial(t, addr)
	pubConn := dial(t, addr)

	send(t, subConn, "SUBSCRIBE", "news", "sport")
	requireValue(t, protocol.ArrayOf(
		protocol.StringValue("subscribe"), protocol.StringValue("news"), protocol.Integer(1),
	), receive(t, subConn))
	requireValue(t, protocol.ArrayOf(
		protocol.StringValue("subscribe"), protocol.StringValue("sport"), protocol.Integer(2),
	), receive(t, subConn))

	requireValue(t, protocol.Integer(1), roundTrip(t, pubConn, "PUBLISH", "sport", "goal"))
	requireValue(t, protocol.ArrayOf(
		protocol.StringValue("message"), protocol.StringValue("sport"), protocol.StringValue("goal"),
	), receive(t, subConn))

	e, ok := roundTrip(t, pubConn, "SUBSCRIBE").(protocol.Error)
	require.True(t, ok)
	require.Equal(t, commands.ErrCodeArity, e.Code)
}

func TestServerIdleTimeoutClosesConnection(t *testing.T) {
	_, addr := startServer(t, func(cfg *Config) { cfg.IdleTimeout = 50 * time.Millisecond })
	conn := dial(t, addr)

	requireValue(t, protocol.StringValue("PONG"), roundTrip(t, conn, "PING"))
	_, err := frame.ReadFrame(conn, frame.DefaultLimits())
	require.ErrorIs(t, err, frame.ErrConnClosed)
}

func TestServerShutdownClosesIdleAndPushConnections(t *testing.T) {
	srv, addr := startServer(t, nil)
	idle := dial(t, addr)
	push := dial(t, addr)

	requireValue(t, protocol.StringValue("PONG"), roundTrip(t, idle, "PING"))
	send(t, push, "SUBSCRIBE", "c")
	receive(t, push)

	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("shutdown blocked on open connections")
	}

	for _, conn := range []net.Conn{idle, push} {
		_, err := frame.ReadFrame(conn, frame.DefaultLimits())
		require.Error(t, err)
	}
	require.Equal(t, 0, srv.Connections())
	require.True(t, srv.Pool().Closed())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.True(t, errors.Is(srv.Serve(context.Background(), ln), ErrServerClosed))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestListenAndServeAfterShutdownStartsNoAdmin(t *testing.T) {
	testlog.Start(t)

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.AdminAddr = freeAddr(t)
	srv, err := New(cfg)
	require.NoError(t, err)

	srv.Shutdown()
	require.ErrorIs(t, srv.ListenAndServe(context.Background()), ErrServerClosed)

	srv.mu.Lock()
	admin := srv.admin
	srv.mu.Unlock()
	require.Nil(t, admin)
	_, err = net.DialTimeout("tcp", cfg.AdminAddr, time.Second)
	require.Error(t, err)
}

func TestShutdownRacingListenAndServeLeavesNoAdmin(t *testing.T) {
	testlog.Start(t)

	for i := 0; i < 5; i++ {
		cfg := DefaultConfig()
		cfg.Addr = "127.0.0.1:0"
		cfg.AdminAddr = freeAddr(t)
		srv, err := New(cfg)
		require.NoError(t, err)

		served := make(chan error, 1)
		go func() { served <- srv.ListenAndServe(context.Background()) }()
		srv.Shutdown()

		select {
		case err := <-served:
			if err != nil {
				require.ErrorIs(t, err, ErrServerClosed)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("ListenAndServe did not return after Shutdown")
		}
		_, err = net.DialTimeout("tcp", cfg.AdminAddr, time.Second)
		require.Errorf(t, err, "admin listener still open on %s", cfg.AdminAddr)
	}
}

func TestAdminRoutes(t *testing.T) {
	srv, _ := startServer(t, nil)
	srv.Dispatcher().Store().Set("a", []byte("1"))
	router := srv.AdminRouter()

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equalf(t, http.StatusOK, rr.Code, "GET %s", path)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.Keys)
	require.Equal(t, 2, stats.Workers)

	srv.Shutdown()
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
