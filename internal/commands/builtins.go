package commands

import (
	"errors"
	"strconv"

	"github.com/danmuck/edgekv/internal/protocol"
	"github.com/danmuck/edgekv/internal/store"
)

var okReply = protocol.StringValue("OK")

func builtins() []Spec {
	return []Spec{
		{Name: "PING", Arity: -1, Summary: "PING [message]", Handler: cmdPing},
		{Name: "ECHO", Arity: 2, Summary: "ECHO message", Handler: cmdEcho},
		{Name: "GET", Arity: 2, Summary: "GET key", Handler: cmdGet},
		{Name: "SET", Arity: 3, Summary: "SET key value", Handler: cmdSet},
		{Name: "DEL", Arity: -2, Summary: "DEL key [key ...]", Handler: cmdDel},
		{Name: "EXISTS", Arity: -2, Summary: "EXISTS key [key ...]", Handler: cmdExists},
		{Name: "KEYS", Arity: -1, Summary: "KEYS [pattern]", Handler: cmdKeys},
		{Name: "DBSIZE", Arity: 1, Summary: "DBSIZE", Handler: cmdDBSize},
		{Name: "INCR", Arity: 2, Summary: "INCR key", Handler: cmdIncr},
		{Name: "DECR", Arity: 2, Summary: "DECR key", Handler: cmdDecr},
		{Name: "INCRBY", Arity: 3, Summary: "INCRBY key increment", Handler: cmdIncrBy},
		{Name: "INCRBYFLOAT", Arity: 3, Summary: "INCRBYFLOAT key increment", Handler: cmdIncrByFloat},
		{Name: "FLUSHALL", Arity: 1, Summary: "FLUSHALL", Handler: cmdFlushAll},
		{Name: "PUBLISH", Arity: 3, Summary: "PUBLISH channel message", Handler: cmdPublish},
		{Name: "SUBSCRIBE", Arity: -2, Summary: "SUBSCRIBE channel [channel ...]", Handler: cmdSubscribe},
		{Name: "COMMAND", Arity: 1, Summary: "COMMAND", Handler: cmdCommand},
	}
}

func cmdPing(_ *Dispatcher, args [][]byte) protocol.Value {
	switch len(args) {
	case 0:
		return protocol.StringValue("PONG")
	case 1:
		return protocol.String(args[0])
	default:
		return ArityError("ping")
	}
}

func cmdEcho(_ *Dispatcher, args [][]byte) protocol.Value {
	return protocol.String(args[0])
}

func cmdGet(d *Dispatcher, args [][]byte) protocol.Value {
	v, found := d.store.Get(string(args[0]))
	if !found {
		return protocol.Nil{}
	}
	return protocol.String(v)
}

func cmdSet(d *Dispatcher, args [][]byte) protocol.Value {
	d.store.Set(string(args[0]), args[1])
	return okReply
}

func cmdDel(d *Dispatcher, args [][]byte) protocol.Value {
	return protocol.Integer(d.store.Delete(keys(args)...))
}

func cmdExists(d *Dispatcher, args [][]byte) protocol.Value {
	return protocol.Integer(d.store.Exists(keys(args)...))
}

func cmdKeys(d *Dispatcher, args [][]byte) protocol.Value {
	if len(args) > 1 {
		return ArityError("keys")
	}
	pattern := "*"
	if len(args) == 1 {
		pattern = string(args[0])
	}
	list, err := d.store.Keys(pattern)
	if err != nil {
		return protocol.Errorf(ErrCodeUnknown, "invalid pattern '%s'", pattern)
	}
	return protocol.StringArray(list...)
}

func cmdDBSize(d *Dispatcher, _ [][]byte) protocol.Value {
	return protocol.Integer(d.store.Len())
}

func cmdIncr(d *Dispatcher, args [][]byte) protocol.Value {
	return incrBy(d, args[0], 1)
}

func cmdDecr(d *Dispatcher, args [][]byte) protocol.Value {
	return incrBy(d, args[0], -1)
}

func cmdIncrBy(d *Dispatcher, args [][]byte) protocol.Value {
	delta, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return protocol.Errorf(ErrCodeType, "value is not an integer or out of range")
	}
	return incrBy(d, args[0], delta)
}

func incrBy(d *Dispatcher, key []byte, delta int64) protocol.Value {
	n, err := d.store.IncrBy(string(key), delta)
	switch {
	case err == nil:
		return protocol.Integer(n)
	case errors.Is(err, store.ErrOverflow):
		return protocol.Errorf(ErrCodeType, "increment or decrement would overflow")
	default:
		return protocol.Errorf(ErrCodeType, "value is not an integer or out of range")
	}
}

func cmdIncrByFloat(d *Dispatcher, args [][]byte) protocol.Value {
	delta, err := strconv.ParseFloat(string(args[1]), 64)
	if err != nil {
		return protocol.Errorf(ErrCodeType, "value is not a valid float")
	}
	f, err := d.store.IncrByFloat(string(args[0]), delta)
	if err != nil {
		return protocol.Errorf(ErrCodeType, "value is not a valid float")
	}
	return protocol.Double(f)
}

func cmdFlushAll(d *Dispatcher, _ [][]byte) protocol.Value {
	d.store.Flush()
	return okReply
}

func cmdPublish(d *Dispatcher, args [][]byte) protocol.Value {
	return protocol.Integer(d.broker.Publish(string(args[0]), args[1]))
}

// SUBSCRIBE changes connection state, so the server handles it before dispatch.
func cmdSubscribe(_ *Dispatcher, _ [][]byte) protocol.Value {
	return protocol.Errorf(ErrCodeUnknown, "SUBSCRIBE is only allowed on a client connection")
}

func cmdCommand(d *Dispatcher, _ [][]byte) protocol.Value {
	return protocol.StringArray(d.registry.Names()...)
}

func keys(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}
