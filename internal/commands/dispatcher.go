package commands

import (
	"strings"
	"time"

	"github.com/danmuck/edgekv/internal/observability"
	"github.com/danmuck/edgekv/internal/protocol"
	"github.com/danmuck/edgekv/internal/pubsub"
	"github.com/danmuck/edgekv/internal/store"
	"github.com/rs/zerolog/log"
)

// Error codes carried in protocol.Error.Code.
const (
	ErrCodeUnknown  uint32 = 1
	ErrCodeArity    uint32 = 2
	ErrCodeType     uint32 = 3
	ErrCodeProtocol uint32 = 4
	ErrCodeInternal uint32 = 5
	ErrCodeBusy     uint32 = 6
)

// Dispatcher maps decoded requests onto the store and broker.
type Dispatcher struct {
	registry *Registry
	store    *store.Store
	broker   *pubsub.Broker
}

// NewDispatcher builds a dispatcher with the builtin command table.
func NewDispatcher(st *store.Store, broker *pubsub.Broker) *Dispatcher {
	d := &Dispatcher{
		registry: NewRegistry(),
		store:    st,
		broker:   broker,
	}
	for _, spec := range builtins() {
		if err := d.registry.Register(spec); err != nil {
			panic(err)
		}
	}
	return d
}

func (d *Dispatcher) Registry() *Registry    { return d.registry }
func (d *Dispatcher) Store() *store.Store    { return d.store }
func (d *Dispatcher) Broker() *pubsub.Broker { return d.broker }

// Dispatch runs one request. The first element is the command name.
func (d *Dispatcher) Dispatch(req [][]byte) protocol.Value {
	if len(req) == 0 {
		return protocol.Errorf(ErrCodeProtocol, "empty request")
	}
	start := time.Now()
	spec, ok := d.registry.Resolve(string(req[0]))
	if !ok {
		observability.RecordCommand("unknown", "error", time.Since(start))
		return protocol.Errorf(ErrCodeUnknown, "unknown command '%s'", req[0])
	}
	label := strings.ToLower(spec.Name)
	if !spec.Accepts(len(req)) {
		observability.RecordCommand(label, "error", time.Since(start))
		return ArityError(spec.Name)
	}

	out := spec.Handler(d, req[1:])

	result := "ok"
	if e, isErr := out.(protocol.Error); isErr {
		result = "error"
		log.Debug().Str("command", label).Uint32("code", e.Code).Str("message", e.Message).Msg("command error")
	}
	observability.RecordCommand(label, result, time.Since(start))
	return out
}

// ArityError is the reply for a wrong argument count.
func ArityError(name string) protocol.Error {
	return protocol.Errorf(ErrCodeArity, "wrong number of arguments for '%s'", strings.ToLower(name))
}
