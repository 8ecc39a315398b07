package crawler

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// taskResult is what one worker reports back for one URLTask.
type taskResult struct {
	Task   URLTask
	Status FetchStatus
	Page   *PageRecord
	Links  []URLTask
	Err    error
}

type taskFunc func(ctx context.Context, task URLTask) taskResult

// workerPool runs one wave of tasks with at most maxWorkers in flight.
// A failing or panicking task never cancels its siblings.
type workerPool struct {
	maxWorkers int
}

func newWorkerPool(maxWorkers int) *workerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &workerPool{maxWorkers: maxWorkers}
}

// runWave attempts every task exactly once and returns when all have
// finished. Results arrive in completion order.
func (p *workerPool) runWave(ctx context.Context, tasks []URLTask, process taskFunc) []taskResult {
	results := make(chan taskResult, len(tasks))

	var g errgroup.Group
	g.SetLimit(p.maxWorkers)

	for _, task := range tasks {
		g.Go(func() error {
			results <- runTask(ctx, task, process)
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	collected := make([]taskResult, 0, len(tasks))
	for result := range results {
		collected = append(collected, result)
	}
	return collected
}

func runTask(ctx context.Context, task URLTask, process taskFunc) (result taskResult) {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			log.Error().
				Str("url", task.URL).
				Int("depth", task.Depth).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Worker task panicked")
			result = taskResult{
				Task:   task,
				Status: FetchStatusTransportError,
				Err:    fmt.Errorf("panic processing %s: %v", task.URL, r),
			}
		}
	}()

	return process(ctx, task)
}
