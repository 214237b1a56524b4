// Package timer runs jobs at wall-clock times: a min-heap ordered by due
// time feeds a small worker pool.
package timer

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a unit of work due at a point in time.
type Job struct {
	ID    string
	DueAt time.Time
	Run   func(ctx context.Context)
	index int // index in the heap (for heap.Interface)
}

// jobHeap is a min-heap of Jobs ordered by DueAt
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	return h[i].DueAt.Before(h[j].DueAt)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[0 : n-1]
	return job
}

// Scheduler runs jobs when they fall due. At most workers jobs run at once;
// a due job waits for a free worker.
type Scheduler struct {
	heap    jobHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	jobs    map[string]*Job
	queue   chan *Job
	workers int
	running int
	wg      sync.WaitGroup
	stopped bool
	stopCh  chan struct{}
	log     zerolog.Logger
}

// NewScheduler creates a new scheduler with a worker pool
func NewScheduler(workers int, log zerolog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{
		heap:    make(jobHeap, 0),
		wakeup:  make(chan struct{}, 1),
		jobs:    make(map[string]*Job),
		queue:   make(chan *Job, workers),
		workers: workers,
		stopCh:  make(chan struct{}),
		log:     log,
	}
	heap.Init(&s.heap)
	return s
}

// Start launches the dispatch loop and the workers. Jobs receive ctx,
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-s.stopCh
		cancel()
	}()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.wg.Add(1)
	go s.run()
}

// Stop stops dispatching and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Schedule adds a job, replacing any pending job with the same ID.
func (s *Scheduler) Schedule(id string, dueAt time.Time, run func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}

	if existing, ok := s.jobs[id]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.jobs, id)
	}

	job := &Job{ID: id, DueAt: dueAt, Run: run}
	heap.Push(&s.heap, job)
	s.jobs[id] = job

	if s.heap[0] == job {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
	return nil
}

// Cancel removes a pending job
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	heap.Remove(&s.heap, job.index)
	delete(s.jobs, id)
	return true
}

// NextDue returns the due time of the earliest pending job.
func (s *Scheduler) NextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heap.Len() == 0 {
		return time.Time{}, false
	}
	return s.heap[0].DueAt, true
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	defer close(s.queue)

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}

		wait := 24 * time.Hour
		if s.heap.Len() > 0 {
			wait = time.Until(s.heap[0].DueAt)
			if wait <= 0 {
				job := heap.Pop(&s.heap).(*Job)
				delete(s.jobs, job.ID)
				s.mu.Unlock()

				select {
				case s.queue <- job:
				case <-s.stopCh:
					return
				}
				continue
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for job := range s.queue {
		s.execute(ctx, job)
	}
}

func (s *Scheduler) execute(ctx context.Context, job *Job) {
	s.mu.Lock()
	s.running++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("job", job.ID).Msg("job panicked")
		}
	}()

	s.log.Debug().Str("job", job.ID).Msg("running job")
	job.Run(ctx)
}

// Stats returns statistics about the scheduler
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Pending: len(s.jobs),
		Running: s.running,
		Workers: s.workers,
	}
}

// Stats contains statistics about the scheduler
type Stats struct {
	Pending int
	Running int
	Workers int
}

var (
	ErrSchedulerStopped = &TimerError{"scheduler is stopped"}
)

// TimerError represents a timer error
type TimerError struct {
	msg string
}

func (e *TimerError) Error() string {
	return e.msg
}
