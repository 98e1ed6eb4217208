package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"upscaler/internal/services"
)

// DefaultConcurrency is used when the caller passes a non-positive value.
const DefaultConcurrency = 4

// Params are shared by every task of a batch.
type Params struct {
	Model string
	Scale int
}

// Task is one frame to enhance.
type Task struct {
	Index       int
	Source      string
	Destination string
	Params
}

// Func processes a single task. On error any partial destination is removed.
type Func func(ctx context.Context, task Task) error

// ProgressFunc receives the overall percentage after every finished task.
type ProgressFunc func(percent float64, completed, failed int)

// Result summarizes a batch. Completed+Failed always equals Total.
type Result struct {
	Completed int
	Failed    int
	Total     int
	// FirstErr is the error of the lowest-indexed failed task.
	FirstErr error
}

// OK reports whether every task succeeded.
func (r Result) OK() bool { return r.Failed == 0 }

// Err describes the failure, or returns nil when the batch succeeded. The
// error carries the first failure's services marker.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %d of %d frames failed: %s",
		services.MarkerOf(r.FirstErr), r.Failed, r.Total, services.Message(r.FirstErr))
}

type outcome struct {
	index int
	err   error
}

// Run processes tasks with at most concurrency workers. It returns after
// every task has been accounted for.
func Run(ctx context.Context, tasks []Task, fn Func, concurrency int, onProgress ProgressFunc) Result {
	result := Result{Total: len(tasks)}
	if len(tasks) == 0 {
		return result
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	concurrency = min(concurrency, len(tasks))

	queue := make(chan Task)
	outcomes := make(chan outcome, concurrency)

	var workers sync.WaitGroup
	for range concurrency {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for task := range queue {
				outcomes <- outcome{index: task.Index, err: runTask(ctx, fn, task)}
			}
		}()
	}

	go func() {
		defer close(queue)
		for _, task := range tasks {
			queue <- task
		}
	}()

	go func() {
		workers.Wait()
		close(outcomes)
	}()

	firstFailed := -1
	for out := range outcomes {
		if out.err != nil {
			result.Failed++
			if firstFailed < 0 || out.index < firstFailed {
				firstFailed = out.index
				result.FirstErr = out.err
			}
		} else {
			result.Completed++
		}
		if onProgress != nil {
			done := result.Completed + result.Failed
			onProgress(float64(done)/float64(result.Total)*100, result.Completed, result.Failed)
		}
	}
	return result
}

func runTask(ctx context.Context, fn Func, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame %d: panic: %v", task.Index, r)
		}
		if err != nil && task.Destination != "" {
			if rmErr := os.Remove(task.Destination); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = errors.Join(err, rmErr)
			}
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, task)
}

// PlanTasks maps every extracted frame in framesDir to the same file name in
// enhancedDir, each carrying params. PNG frames are preferred; JPEG frames
// are used when no PNGs exist. Tasks are ordered by file name.
func PlanTasks(framesDir, enhancedDir string, params Params) ([]Task, error) {
	var frames []string
	for _, pattern := range []string{"frame_*.png", "frame_*.jpg"} {
		matches, err := filepath.Glob(filepath.Join(framesDir, pattern))
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			frames = matches
			break
		}
	}
	if len(frames) == 0 {
		return nil, services.Wrap(services.ErrMissingOutput, "enhance", "plan", "no frames found in "+framesDir, nil)
	}
	sort.Strings(frames)

	tasks := make([]Task, 0, len(frames))
	for i, frame := range frames {
		tasks = append(tasks, Task{
			Index:       i,
			Source:      frame,
			Destination: filepath.Join(enhancedDir, filepath.Base(frame)),
			Params:      params,
		})
	}
	return tasks, nil
}
