package timer

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// TimerTask represents a task scheduled for future execution
type TimerTask struct {
	ID       string
	ExpiryAt time.Time
	Callback func()
	index    int // index in the heap (for heap.Interface)
}

// timerHeap is a min-heap of TimerTasks ordered by ExpiryAt
type timerHeap []*TimerTask

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	return h[i].ExpiryAt.Before(h[j].ExpiryAt)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	n := len(*h)
	task := x.(*TimerTask)
	task.index = n
	*h = append(*h, task)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil  // avoid memory leak
	task.index = -1 // for safety
	*h = old[0 : n-1]
	return task
}

// TimerManager manages scheduled tasks using a min-heap. Expired tasks are
// handed to a fixed pool of workers.
type TimerManager struct {
	heap      timerHeap
	mu        sync.Mutex
	wakeup    chan struct{}
	jobs      chan *TimerTask
	tasks     map[string]*TimerTask // for O(1) lookup by ID
	recurring map[string]uint64     // generation of each recurring job
	nextGen   uint64
	workers   int
	workerWg  sync.WaitGroup
	stopped   bool
	stopCh    chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewTimerManager creates a new timer manager with a worker pool
func NewTimerManager(workers int) *TimerManager {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	tm := &TimerManager{
		heap:      make(timerHeap, 0),
		wakeup:    make(chan struct{}, 1),
		jobs:      make(chan *TimerTask),
		tasks:     make(map[string]*TimerTask),
		recurring: make(map[string]uint64),
		workers:   workers,
		stopCh:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	heap.Init(&tm.heap)
	return tm
}

// Start starts the timer manager and its worker pool
func (tm *TimerManager) Start() {
	// Start worker goroutines
	for i := 0; i < tm.workers; i++ {
		tm.workerWg.Add(1)
		go tm.worker()
	}

	// Start the main scheduler goroutine
	go tm.run()
}

// Stop stops the timer manager and waits for running callbacks to return.
// The context passed to recurring jobs is cancelled first.
func (tm *TimerManager) Stop() {
	tm.mu.Lock()
	if tm.stopped {
		tm.mu.Unlock()
		return
	}
	tm.stopped = true
	tm.cancel()
	close(tm.stopCh)
	tm.mu.Unlock()

	// Wait for workers to finish
	tm.workerWg.Wait()
}

// Schedule adds a new task to be executed at the specified time
func (tm *TimerManager) Schedule(id string, expiryAt time.Time, callback func()) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.stopped {
		return ErrManagerStopped
	}

	delete(tm.recurring, id)
	tm.scheduleLocked(id, expiryAt, callback)
	return nil
}

// ScheduleEvery runs fn first at the given time and then interval after
// each run returns, so runs of the same job never overlap. fn receives a
// context that is cancelled when the manager stops.
func (tm *TimerManager) ScheduleEvery(id string, first time.Time, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.stopped {
		return ErrManagerStopped
	}

	tm.nextGen++
	gen := tm.nextGen
	tm.recurring[id] = gen

	var tick func()
	tick = func() {
		fn(tm.ctx)

		tm.mu.Lock()
		defer tm.mu.Unlock()
		// Cancelled, replaced or stopped while running
		if tm.stopped || tm.recurring[id] != gen {
			return
		}
		tm.scheduleLocked(id, time.Now().Add(interval), tick)
	}

	tm.scheduleLocked(id, first, tick)
	return nil
}

func (tm *TimerManager) scheduleLocked(id string, expiryAt time.Time, callback func()) {
	// Remove existing task with same ID if present
	if existing, ok := tm.tasks[id]; ok {
		heap.Remove(&tm.heap, existing.index)
		delete(tm.tasks, id)
	}

	task := &TimerTask{
		ID:       id,
		ExpiryAt: expiryAt,
		Callback: callback,
	}

	heap.Push(&tm.heap, task)
	tm.tasks[id] = task

	// Wake up the scheduler if this is the earliest task
	if tm.heap[0] == task {
		select {
		case tm.wakeup <- struct{}{}:
		default:
		}
	}
}

// Cancel removes a scheduled task. A recurring job that is currently
// running is not rescheduled.
func (tm *TimerManager) Cancel(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	_, wasRecurring := tm.recurring[id]
	delete(tm.recurring, id)

	task, ok := tm.tasks[id]
	if !ok {
		return wasRecurring
	}

	heap.Remove(&tm.heap, task.index)
	delete(tm.tasks, id)
	return true
}

// run is the main scheduler loop
func (tm *TimerManager) run() {
	for {
		tm.mu.Lock()

		if tm.stopped {
			tm.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if tm.heap.Len() == 0 {
			// No tasks, wait indefinitely
			waitDuration = 24 * time.Hour
		} else {
			// Calculate wait time until next task
			nextTask := tm.heap[0]
			waitDuration = time.Until(nextTask.ExpiryAt)

			if waitDuration <= 0 {
				// Task is ready to execute
				task := heap.Pop(&tm.heap).(*TimerTask)
				delete(tm.tasks, task.ID)
				tm.mu.Unlock()

				// Hand off to the worker pool; blocks while all workers are busy
				select {
				case tm.jobs <- task:
				case <-tm.stopCh:
					return
				}
				continue
			}
		}

		tm.mu.Unlock()

		// Wait for either timeout or wakeup signal
		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			// Time to check for expired tasks
		case <-tm.wakeup:
			// New task added or existing task updated
			timer.Stop()
		case <-tm.stopCh:
			timer.Stop()
			return
		}
	}
}

// worker processes tasks from the job channel
func (tm *TimerManager) worker() {
	defer tm.workerWg.Done()

	for {
		select {
		case task := <-tm.jobs:
			task.Callback()
		case <-tm.stopCh:
			return
		}
	}
}

// Stats returns statistics about the timer manager
func (tm *TimerManager) Stats() TimerStats {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return TimerStats{
		ScheduledTasks: len(tm.tasks),
		RecurringJobs:  len(tm.recurring),
		Workers:        tm.workers,
	}
}

// TimerStats contains statistics about the timer manager
type TimerStats struct {
	ScheduledTasks int
	RecurringJobs  int
	Workers        int
}

var (
	ErrManagerStopped  = &TimerError{"timer manager is stopped"}
	ErrInvalidInterval = &TimerError{"interval must be positive"}
)

// TimerError represents a timer error
type TimerError struct {
	msg string
}

func (e *TimerError) Error() string {
	return e.msg
}
