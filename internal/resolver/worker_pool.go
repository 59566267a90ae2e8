package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btraven00/tinkuy/pkg/accessions"
	"github.com/btraven00/tinkuy/pkg/xref"
)

// WorkerPool manages parallel processing of accession lookup tasks.
type WorkerPool struct {
	ctx            context.Context
	cancel         context.CancelFunc
	tasks          chan LookupTask
	results        chan LookupResult
	progressChan   chan ProgressUpdate
	wg             sync.WaitGroup
	numWorkers     int
	taskTimeout    time.Duration
	totalTasks     int
	completedTasks int
	mu             sync.RWMutex
}

// LookupTask represents a single accession lookup against one source.
type LookupTask struct {
	Accession accessions.Accession
	Source    xref.Source
}

// LookupResult represents the outcome of a lookup task.
type LookupResult struct {
	Task    LookupTask
	Mapping *xref.Mapping
	Err     error
}

// ProgressUpdate provides progress information.
type ProgressUpdate struct {
	Accession   string
	Status      TaskStatus
	Message     string
	Completed   int
	Total       int
	ElapsedTime time.Duration
}

// TaskStatus represents the status of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// NewWorkerPool creates a new worker pool with the specified number of
// workers and per-lookup timeout.
func NewWorkerPool(ctx context.Context, numWorkers int, taskTimeout time.Duration) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 2
	}

	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Second
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		ctx:          poolCtx,
		cancel:       cancel,
		numWorkers:   numWorkers,
		taskTimeout:  taskTimeout,
		tasks:        make(chan LookupTask, numWorkers*2), // Buffer to prevent blocking
		results:      make(chan LookupResult, numWorkers*2),
		progressChan: make(chan ProgressUpdate, 100),
	}
}

// Start initializes and starts the worker pool.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task, ok := <-wp.tasks:
			if !ok {
				return // Channel closed
			}

			wp.processTask(workerID, task)
		}
	}
}

func (wp *WorkerPool) processTask(workerID int, task LookupTask) {
	start := time.Now()

	wp.sendProgress(ProgressUpdate{
		Accession: task.Accession.ID,
		Status:    TaskStatusProcessing,
		Message:   fmt.Sprintf("Worker %d started lookup", workerID),
	})

	ctx, cancel := context.WithTimeout(wp.ctx, wp.taskTimeout)
	mapping, err := task.Source.Resolve(ctx, task.Accession)
	cancel()

	elapsed := time.Since(start)

	wp.mu.Lock()
	wp.completedTasks++
	completed := wp.completedTasks
	total := wp.totalTasks
	wp.mu.Unlock()

	status := TaskStatusCompleted
	message := fmt.Sprintf("Worker %d completed in %v", workerID, elapsed)

	if err != nil {
		status = TaskStatusFailed
		message = fmt.Sprintf("Worker %d failed: %v", workerID, err)
	}

	wp.sendProgress(ProgressUpdate{
		Accession:   task.Accession.ID,
		Status:      status,
		Completed:   completed,
		Total:       total,
		ElapsedTime: elapsed,
		Message:     message,
	})

	wp.results <- LookupResult{
		Task:    task,
		Mapping: mapping,
		Err:     err,
	}
}

// sendProgress sends a progress update if the channel is not full.
func (wp *WorkerPool) sendProgress(update ProgressUpdate) {
	select {
	case wp.progressChan <- update:
	default:
		// Progress channel is full, skip this update to avoid blocking
	}
}

// Submit submits a task to the worker pool.
func (wp *WorkerPool) Submit(task LookupTask) {
	wp.mu.Lock()
	wp.totalTasks++
	wp.mu.Unlock()

	wp.sendProgress(ProgressUpdate{
		Accession: task.Accession.ID,
		Status:    TaskStatusPending,
		Message:   "Lookup queued",
	})

	select {
	case wp.tasks <- task:
	case <-wp.ctx.Done():
	}
}

// SubmitBatch submits multiple tasks at once.
func (wp *WorkerPool) SubmitBatch(tasks []LookupTask) {
	for _, task := range tasks {
		wp.Submit(task)
	}
}

// Results returns the results channel for reading results.
func (wp *WorkerPool) Results() <-chan LookupResult {
	return wp.results
}

// Progress returns the progress channel for reading progress updates.
func (wp *WorkerPool) Progress() <-chan ProgressUpdate {
	return wp.progressChan
}

// Wait waits for all submitted tasks to complete and closes the pool.
func (wp *WorkerPool) Wait() {
	close(wp.tasks)
	wp.wg.Wait()
	close(wp.results)
	close(wp.progressChan)
}

// Shutdown gracefully shuts down the worker pool.
func (wp *WorkerPool) Shutdown() {
	wp.cancel()
	wp.Wait()
}

// Stats returns current processing statistics.
func (wp *WorkerPool) Stats() WorkerPoolStats {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	return WorkerPoolStats{
		TotalTasks:     wp.totalTasks,
		CompletedTasks: wp.completedTasks,
		PendingTasks:   wp.totalTasks - wp.completedTasks,
		NumWorkers:     wp.numWorkers,
	}
}

// WorkerPoolStats provides statistics about the worker pool.
type WorkerPoolStats struct {
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	PendingTasks   int `json:"pending_tasks"`
	NumWorkers     int `json:"num_workers"`
}

// Batches splits ids into consecutive batches of at most size elements.
// With N ids this yields ceil(N/size) batches.
func Batches(ids []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}

	var batches [][]string

	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}

		batches = append(batches, ids[i:end])
	}

	return batches
}
