package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/edgekv/internal/protocol"
)

var (
	ErrCommandExists = errors.New("commands: command already registered")
	ErrInvalidSpec   = errors.New("commands: invalid command spec")
)

// Handler executes one command. args excludes the command name.
type Handler func(d *Dispatcher, args [][]byte) protocol.Value

// Spec describes a command. Arity counts the command name itself: a positive
// value is exact, a negative value is a minimum of -Arity.
type Spec struct {
	Name    string
	Arity   int
	Summary string
	Handler Handler
}

// Accepts reports whether argc (including the name) satisfies the arity.
func (s Spec) Accepts(argc int) bool {
	if s.Arity >= 0 {
		return argc == s.Arity
	}
	return argc >= -s.Arity
}

// Registry stores command specs by upper-cased name.
type Registry struct {
	items map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Spec)}
}

// Register adds spec. Names are matched case-insensitively.
func (r *Registry) Register(spec Spec) error {
	name := strings.ToUpper(strings.TrimSpace(spec.Name))
	if name == "" || spec.Handler == nil || spec.Arity == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidSpec, spec.Name)
	}
	if _, ok := r.items[name]; ok {
		return fmt.Errorf("%w: %s", ErrCommandExists, name)
	}
	spec.Name = name
	r.items[name] = spec
	return nil
}

func (r *Registry) Resolve(name string) (Spec, bool) {
	spec, ok := r.items[strings.ToUpper(name)]
	return spec, ok
}

// Names returns registered command names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.items))
	for name := range r.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// List returns specs ordered by name.
func (r *Registry) List() []Spec {
	names := r.Names()
	out := make([]Spec, 0, len(names))
	for _, name := range names {
		out = append(out, r.items[name])
	}
	return out
}
