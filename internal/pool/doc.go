// Package pool owns the fixed worker pool that executes server-side tasks.
//
// Ownership boundary:
// - FIFO task queue guarded by one mutex and one condition variable
// - N persistent worker goroutines, fixed at construction
// - drain-to-completion shutdown
//
// Policies:
//   - Submit after Shutdown has been requested returns ErrPoolClosed; the task is not queued.
//   - A panicking task is recovered, logged, counted, and handed to Config.OnPanic;
//     the worker keeps serving the queue.
//   - Tasks are dequeued in submission order. Completion order is only guaranteed
//     with a single worker.
//   - There is no cancellation; Shutdown never interrupts a running task.
package pool
