package pool

import (
	"errors"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/danmuck/edgekv/internal/observability"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidWorkerCount = errors.New("pool: worker count must be at least 1")
	ErrPoolClosed         = errors.New("pool: submit after shutdown")
	ErrNilTask            = errors.New("pool: nil task")
)

// Task is one owned unit of work, executed exactly once.
type Task func()

// Config configures a Pool.
type Config struct {
	Name    string
	Workers int
	// OnPanic observes a recovered task panic. It runs on the worker goroutine
	// and must not panic itself.
	OnPanic func(recovered any, stack []byte)
}

// Pool is a fixed set of workers draining a shared FIFO queue.
type Pool struct {
	name    string
	workers int
	onPanic func(any, []byte)

	mu       sync.Mutex
	notEmpty *sync.Cond
	queue    []Task
	stopping bool
	live     int

	wg sync.WaitGroup
}

// New starts a pool named "default" with n workers.
func New(n int) (*Pool, error) {
	return NewWithConfig(Config{Workers: n})
}

// NewWithConfig starts cfg.Workers worker goroutines.
func NewWithConfig(cfg Config) (*Pool, error) {
	if cfg.Workers < 1 {
		return nil, ErrInvalidWorkerCount
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "default"
	}
	p := &Pool{
		name:    name,
		workers: cfg.Workers,
		onPanic: cfg.OnPanic,
		queue:   make([]Task, 0, 64),
	}
	p.notEmpty = sync.NewCond(&p.mu)

	p.mu.Lock()
	for i := 0; i < cfg.Workers; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()

	log.Debug().Str("pool", name).Int("workers", cfg.Workers).Msg("pool started")
	return p, nil
}

// Submit appends task to the tail of the queue and wakes one waiting worker.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		observability.RecordPoolTask(p.name, observability.TaskRejected)
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	depth := len(p.queue)
	p.mu.Unlock()
	p.notEmpty.Signal()

	observability.RecordPoolTask(p.name, observability.TaskSubmitted)
	observability.SetPoolQueueDepth(p.name, depth)
	return nil
}

// Shutdown stops accepting tasks, lets the workers drain everything already
// queued, and returns once every worker has exited. It is safe to call more
// than once. Calling it from inside a task deadlocks.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	first := !p.stopping
	p.stopping = true
	pending := len(p.queue)
	p.mu.Unlock()
	p.notEmpty.Broadcast()

	if first {
		log.Debug().Str("pool", p.name).Int("pending", pending).Msg("pool draining")
	}
	p.wg.Wait()
	if first {
		log.Debug().Str("pool", p.name).Msg("pool stopped")
	}
}

// Name returns the label used for logs and metrics.
func (p *Pool) Name() string {
	return p.name
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Live returns how many worker goroutines are currently running.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Closed reports whether Shutdown has been requested.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

func (p *Pool) spawnLocked() {
	p.live++
	p.wg.Add(1)
	go p.worker()
}

func (p *Pool) worker() {
	clean := false
	defer func() {
		p.mu.Lock()
		p.live--
		if !clean {
			// a task called runtime.Goexit; replace the worker to keep capacity
			log.Warn().Str("pool", p.name).Msg("worker exited inside task, respawning")
			p.spawnLocked()
		}
		p.mu.Unlock()
		p.wg.Done()
	}()

	for {
		task, ok := p.next()
		if !ok {
			clean = true
			return
		}
		p.run(task)
	}
}

// next blocks until a task is available or the pool is stopping with an empty queue.
func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	for len(p.queue) == 0 && !p.stopping {
		p.notEmpty.Wait()
	}
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return nil, false
	}
	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	depth := len(p.queue)
	p.mu.Unlock()

	observability.SetPoolQueueDepth(p.name, depth)
	return task, true
}

func (p *Pool) run(task Task) {
	returned := false
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			observability.RecordPoolTask(p.name, observability.TaskPanicked)
			log.Error().
				Str("pool", p.name).
				Interface("panic", r).
				Bytes("stack", stack).
				Msg("task panicked")
			if p.onPanic != nil {
				p.onPanic(r, stack)
			}
			return
		}
		if !returned {
			// runtime.Goexit unwound the task; worker() replaces this goroutine.
			observability.RecordPoolTask(p.name, observability.TaskExited)
			return
		}
		observability.RecordPoolTask(p.name, observability.TaskCompleted)
	}()
	task()
	returned = true
}
