package commands

import (
	"testing"

	"github.com/danmuck/edgekv/internal/protocol"
	"github.com/danmuck/edgekv/internal/pubsub"
	"github.com/danmuck/edgekv/internal/store"
	"github.com/danmuck/edgekv/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	testlog.Start(t)
	return NewDispatcher(store.New(4), pubsub.NewBroker(4))
}

func run(d *Dispatcher, args ...string) protocol.Value {
	return d.Dispatch(protocol.RequestStrings(args...))
}

func requireError(t *testing.T, v protocol.Value, code uint32) {
	t.Helper()
	e, ok := v.(protocol.Error)
	require.Truef(t, ok, "expected error, got %#v", v)
	require.Equal(t, code, e.Code)
}

func TestRegistryRejectsBadSpecs(t *testing.T) {
	r := NewRegistry()
	h := func(*Dispatcher, [][]byte) protocol.Value { return protocol.Nil{} }

	require.ErrorIs(t, r.Register(Spec{Name: "", Arity: 1, Handler: h}), ErrInvalidSpec)
	require.ErrorIs(t, r.Register(Spec{Name: "x", Arity: 1}), ErrInvalidSpec)
	require.ErrorIs(t, r.Register(Spec{Name: "x", Arity: 0, Handler: h}), ErrInvalidSpec)
	require.NoError(t, r.Register(Spec{Name: "x", Arity: 1, Handler: h}))
	require.ErrorIs(t, r.Register(Spec{Name: "X", Arity: 1, Handler: h}), ErrCommandExists)

	spec, ok := r.Resolve("x")
	require.True(t, ok)
	require.Equal(t, "X", spec.Name)
}

func TestSpecAccepts(t *testing.T) {
	require.True(t, Spec{Arity: 2}.Accepts(2))
	require.False(t, Spec{Arity: 2}.Accepts(3))
	require.True(t, Spec{Arity: -2}.Accepts(5))
	require.False(t, Spec{Arity: -2}.Accepts(1))
}

func TestPingEcho(t *testing.T) {
	d := newDispatcher(t)
	require.True(t, protocol.Equal(protocol.StringValue("PONG"), run(d, "PING")))
	require.True(t, protocol.Equal(protocol.StringValue("hi"), run(d, "ping", "hi")))
	requireError(t, run(d, "PING", "a", "b"), ErrCodeArity)
	require.True(t, protocol.Equal(protocol.StringValue("x y"), run(d, "ECHO", "x y")))
}

func TestGetSetDel(t *testing.T) {
	d := newDispatcher(t)
	require.True(t, protocol.Equal(protocol.Nil{}, run(d, "GET", "k")))
	require.True(t, protocol.Equal(protocol.StringValue("OK"), run(d, "SET", "k", "v")))
	require.True(t, protocol.Equal(protocol.StringValue("v"), run(d, "get", "k")))
	require.True(t, protocol.Equal(protocol.Integer(1), run(d, "EXISTS", "k", "nope")))
	require.True(t, protocol.Equal(protocol.Integer(1), run(d, "DBSIZE")))
	require.True(t, protocol.Equal(protocol.Integer(1), run(d, "DEL", "k", "nope")))
	require.True(t, protocol.Equal(protocol.Integer(0), run(d, "DBSIZE")))
}

func TestKeysAndFlush(t *testing.T) {
	d := newDispatcher(t)
	run(d, "SET", "b", "1")
	run(d, "SET", "a", "2")
	require.True(t, protocol.Equal(protocol.StringArray("a", "b"), run(d, "KEYS")))
	require.True(t, protocol.Equal(protocol.StringArray("a"), run(d, "KEYS", "a*")))
	requireError(t, run(d, "KEYS", "["), ErrCodeUnknown)
	requireError(t, run(d, "KEYS", "a", "b"), ErrCodeArity)

	require.True(t, protocol.Equal(protocol.StringValue("OK"), run(d, "FLUSHALL")))
	require.True(t, protocol.Equal(protocol.StringArray(), run(d, "KEYS")))
}

func TestCounters(t *testing.T) {
	d := newDispatcher(t)
	require.True(t, protocol.Equal(protocol.Integer(1), run(d, "INCR", "n")))
	require.True(t, protocol.Equal(protocol.Integer(11), run(d, "INCRBY", "n", "10")))
	require.True(t, protocol.Equal(protocol.Integer(10), run(d, "DECR", "n")))
	requireError(t, run(d, "INCRBY", "n", "ten"), ErrCodeType)

	run(d, "SET", "s", "abc")
	requireError(t, run(d, "INCR", "s"), ErrCodeType)

	run(d, "SET", "max", "9223372036854775807")
	requireError(t, run(d, "INCR", "max"), ErrCodeType)

	require.True(t, protocol.Equal(protocol.Double(2.5), run(d, "INCRBYFLOAT", "f", "2.5")))
	requireError(t, run(d, "INCRBYFLOAT", "f", "x"), ErrCodeType)
	requireError(t, run(d, "INCRBYFLOAT", "s", "1"), ErrCodeType)
}

func TestPublish(t *testing.T) {
	d := newDispatcher(t)
	sub := d.Broker().Subscribe("ch")
	defer sub.Close()

	require.True(t, protocol.Equal(protocol.Integer(1), run(d, "PUBLISH", "ch", "hello")))
	msg := <-sub.C()
	require.Equal(t, "hello", string(msg.Payload))
	require.True(t, protocol.Equal(protocol.Integer(0), run(d, "PUBLISH", "other", "x")))
}

func TestUnknownAndArity(t *testing.T) {
	d := newDispatcher(t)
	requireError(t, d.Dispatch(nil), ErrCodeProtocol)
	requireError(t, run(d, "NOPE"), ErrCodeUnknown)
	requireError(t, run(d, "GET"), ErrCodeArity)
	requireError(t, run(d, "SET", "k"), ErrCodeArity)
	requireError(t, run(d, "SUBSCRIBE", "ch"), ErrCodeUnknown)
}

func TestCommandListsNames(t *testing.T) {
	d := newDispatcher(t)
	v, ok := run(d, "COMMAND").(protocol.Array)
	require.True(t, ok)
	require.Len(t, v, len(builtins()))
	require.True(t, protocol.Equal(protocol.StringValue("COMMAND"), v[0]))
}
