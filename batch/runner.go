// Package batch schedules container conversions over a fixed pool of
// workers and collects per-task results.
package batch

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"ncmdump"
)

// Task pairs one input container with the output stem its audio is written
// to.
type Task struct {
	Input  string
	Output string
}

// ConvertFunc performs the conversion for a single task.
type ConvertFunc func(task Task) error

// Summary aggregates the outcome of one Run.
type Summary struct {
	Completed int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

type result struct {
	task Task
	err  error
	took time.Duration
}

// Runner fans tasks out to a fixed number of workers. Results funnel
// through a single collector goroutine, so per-task log lines never
// interleave.
type Runner struct {
	log     ncmdump.Logger
	workers int
	convert ConvertFunc

	completed atomic.Uint32
}

// NewRunner returns a Runner with the given worker count. The count must
// be positive: zero is a configuration error, not a request for a default
// (callers wanting one use DefaultWorkers).
func NewRunner(log ncmdump.Logger, workers int, convert ConvertFunc) (*Runner, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive, got %d", ncmdump.ErrConfig, workers)
	}

	return &Runner{log: log, workers: workers, convert: convert}, nil
}

// DefaultWorkers returns the worker count used when the caller does not
// pick one: the CPU count, never less than two.
func DefaultWorkers() int {
	if n := runtime.NumCPU(); n > 2 {
		return n
	}

	return 2
}

// Run processes every task and blocks until all of them finished. Each
// task bumps the completed counter exactly once, whether it succeeded or
// failed.
func (r *Runner) Run(tasks []Task) *Summary {
	start := time.Now()

	jobs := make(chan Task, len(tasks))
	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)

	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for task := range jobs {
				begin := time.Now()
				err := r.convert(task)
				results <- result{task: task, err: err, took: time.Since(begin)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	summary := &Summary{}
	for res := range results {
		r.completed.Add(1)
		summary.Completed++

		if res.err != nil {
			summary.Failed++
			r.log.WithField("kind", ncmdump.Classify(res.err)).WithError(res.err).
				Errorf("failed converting %s", res.task.Input)
			continue
		}

		summary.Succeeded++
		r.log.Infof("converted %s in %dms", res.task.Input, res.took.Milliseconds())
	}

	summary.Elapsed = time.Since(start)
	return summary
}

// Completed returns how many tasks finished so far, failures included.
func (r *Runner) Completed() uint32 {
	return r.completed.Load()
}
