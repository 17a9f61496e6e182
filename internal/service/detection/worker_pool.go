package detection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
)

// JobHandler scores one event
type JobHandler func(ctx context.Context, e *behavior.Event) error

// WorkerPoolStatus is a point-in-time view of the pool
type WorkerPoolStatus struct {
	ActiveWorkers  int   `json:"activeWorkers"`
	QueuedTasks    int   `json:"queuedTasks"`
	CompletedTasks int64 `json:"completedTasks"`
	FailedTasks    int64 `json:"failedTasks"`
}

// WorkerPool runs detection jobs on a fixed number of goroutines fed by a
// bounded queue. Submission never blocks; an event already queued or running
// is not queued twice.
type WorkerPool struct {
	workers  int
	timeout  time.Duration
	handler  JobHandler
	logger   *zap.Logger
	taskChan chan *behavior.Event
	inFlight sync.Map

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	completedTasks int64
	failedTasks    int64
}

// NewWorkerPool creates a pool; call Start before submitting
func NewWorkerPool(workers, queueSize int, timeout time.Duration, handler JobHandler, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:  workers,
		timeout:  timeout,
		handler:  handler,
		logger:   logger,
		taskChan: make(chan *behavior.Event, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop stops accepting work, lets workers drain the queue and waits for
// them or for ctx, whichever comes first. Jobs still queued when ctx
// expires are abandoned and stay unscored.
func (wp *WorkerPool) Stop(ctx context.Context) {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.taskChan)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		wp.cancel()
		<-done
	}
	wp.cancel()
}

// SubmitTask queues e and reports whether it was accepted
func (wp *WorkerPool) SubmitTask(e *behavior.Event) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return false
	}

	if _, loaded := wp.inFlight.LoadOrStore(e.ID, struct{}{}); loaded {
		return true
	}

	select {
	case wp.taskChan <- e:
		return true
	default:
		wp.inFlight.Delete(e.ID)
		return false
	}
}

// QueueDepth returns the number of jobs waiting for a worker
func (wp *WorkerPool) QueueDepth() int {
	return len(wp.taskChan)
}

// GetStatus returns the current status of the worker pool
func (wp *WorkerPool) GetStatus() *WorkerPoolStatus {
	return &WorkerPoolStatus{
		ActiveWorkers:  wp.workers,
		QueuedTasks:    len(wp.taskChan),
		CompletedTasks: atomic.LoadInt64(&wp.completedTasks),
		FailedTasks:    atomic.LoadInt64(&wp.failedTasks),
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	logger := wp.logger.With(zap.Int("worker_id", id))
	logger.Debug("detection worker started")

	for e := range wp.taskChan {
		if wp.ctx.Err() != nil {
			wp.inFlight.Delete(e.ID)
			continue
		}
		wp.process(logger, e)
	}
	logger.Debug("detection worker stopped")
}

func (wp *WorkerPool) process(logger *zap.Logger, e *behavior.Event) {
	defer wp.inFlight.Delete(e.ID)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&wp.failedTasks, 1)
			logger.Error("detection job panicked", zap.String("event_id", e.ID.String()), zap.Any("panic", r))
		}
	}()

	ctx := wp.ctx
	if wp.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.timeout)
		defer cancel()
	}

	if err := wp.handler(ctx, e); err != nil {
		atomic.AddInt64(&wp.failedTasks, 1)
		logger.Warn("detection job failed; event left for reconciliation",
			zap.String("event_id", e.ID.String()),
			zap.Error(err))
		return
	}
	atomic.AddInt64(&wp.completedTasks, 1)
}

// queued reports whether id is waiting or running
func (wp *WorkerPool) queued(id uuid.UUID) bool {
	_, ok := wp.inFlight.Load(id)
	return ok
}
