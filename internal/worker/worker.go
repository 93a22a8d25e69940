package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"transcriber/internal/models"
	"transcriber/internal/storage"
)

// JobHandler is a function that processes a job
type JobHandler func(ctx context.Context, job *models.ProcessingJob) error

type registration struct {
	handler    JobHandler
	maxRetries int
}

// lane is a pool of slots serving the jobs its filter matches
type lane struct {
	filter storage.JobFilter
	slots  chan struct{}
}

// Worker processes jobs from the queue, running up to concurrency of them at once.
// Job types given to Reserve run in their own lanes and never wait for those slots.
type Worker struct {
	jobRepo         *storage.JobRepository
	handlers        map[string]registration
	interval        time.Duration
	cleanupInterval time.Duration
	retentionDays   int
	main            *lane
	reserved        []*lane
	stop            chan struct{}
	wg              sync.WaitGroup
	mu              sync.RWMutex
}

// NewWorker creates a new worker
func NewWorker(jobRepo *storage.JobRepository, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		jobRepo:         jobRepo,
		handlers:        make(map[string]registration),
		interval:        1 * time.Second,
		cleanupInterval: 1 * time.Hour,
		main:            &lane{slots: make(chan struct{}, concurrency)},
		stop:            make(chan struct{}),
	}
}

// Reserve gives jobType its own lane of slots. Jobs of that type are claimed
// even when every regular slot is busy. Call it before Start.
func (w *Worker) Reserve(jobType string, slots int) {
	if slots < 1 {
		slots = 1
	}
	w.reserved = append(w.reserved, &lane{
		filter: storage.JobFilter{Types: []string{jobType}},
		slots:  make(chan struct{}, slots),
	})
	w.main.filter.Exclude = append(w.main.filter.Exclude, jobType)
}

// RegisterHandler registers a handler for a job type.
// A failed job is retried up to maxRetries times before it is marked failed.
func (w *Worker) RegisterHandler(jobType string, handler JobHandler, maxRetries int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = registration{handler: handler, maxRetries: maxRetries}
}

// SetInterval sets the polling interval
func (w *Worker) SetInterval(interval time.Duration) {
	if interval > 0 {
		w.interval = interval
	}
}

// SetRetention enables periodic removal of finished jobs older than days
func (w *Worker) SetRetention(days int) {
	w.retentionDays = days
}

// Start begins processing jobs
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	log.Printf("Worker started (concurrency: %d, reserved lanes: %d)", cap(w.main.slots), len(w.reserved))
}

// Stop gracefully stops the worker and waits for running jobs
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
	log.Println("Worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	cleanup := time.NewTicker(w.cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.dispatch(ctx)
		case <-cleanup.C:
			w.cleanup(ctx)
		}
	}
}

// dispatch fills the reserved lanes first, then the regular one
func (w *Worker) dispatch(ctx context.Context) {
	for _, l := range w.reserved {
		w.fill(ctx, l)
	}
	w.fill(ctx, w.main)
}

// fill claims queued jobs for l while it has free slots
func (w *Worker) fill(ctx context.Context, l *lane) {
	for {
		select {
		case l.slots <- struct{}{}:
		default:
			return
		}

		job, err := w.jobRepo.Claim(ctx, l.filter)
		if err != nil || job == nil {
			<-l.slots
			if err != nil {
				log.Printf("Error getting next job: %v", err)
			}
			return
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-l.slots }()
			w.process(ctx, job)
		}()
	}
}

func (w *Worker) process(ctx context.Context, job *models.ProcessingJob) {
	w.mu.RLock()
	reg, ok := w.handlers[job.Type]
	w.mu.RUnlock()

	if !ok {
		log.Printf("No handler for job type: %s", job.Type)
		_ = w.jobRepo.Fail(ctx, job.ID, "no handler registered for job type: "+job.Type)
		return
	}

	log.Printf("Processing job %s (type: %s)", job.ID, job.Type)

	if err := w.execute(ctx, reg.handler, job); err != nil {
		log.Printf("Job %s failed: %v", job.ID, err)
		w.handleJobFailure(ctx, job, reg.maxRetries, err)
		return
	}

	if err := w.jobRepo.Complete(ctx, job.ID); err != nil {
		log.Printf("Error completing job %s: %v", job.ID, err)
		return
	}

	log.Printf("Job %s completed", job.ID)
}

func (w *Worker) execute(ctx context.Context, handler JobHandler, job *models.ProcessingJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (w *Worker) handleJobFailure(ctx context.Context, job *models.ProcessingJob, maxRetries int, jobErr error) {
	if job.RetryCount < maxRetries {
		if err := w.jobRepo.Retry(ctx, job.ID); err != nil {
			log.Printf("Error retrying job %s: %v", job.ID, err)
		} else {
			log.Printf("Job %s queued for retry (attempt %d/%d)", job.ID, job.RetryCount+1, maxRetries)
		}
		return
	}

	if err := w.jobRepo.Fail(ctx, job.ID, jobErr.Error()); err != nil {
		log.Printf("Error failing job %s: %v", job.ID, err)
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if w.retentionDays <= 0 {
		return
	}
	n, err := w.jobRepo.CleanupCompleted(ctx, w.retentionDays)
	if err != nil {
		log.Printf("Error cleaning up jobs: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Removed %d finished jobs", n)
	}
}

// SubmitJob creates a new job and adds it to the queue
func (w *Worker) SubmitJob(ctx context.Context, jobType, payload string, priority int) (*models.ProcessingJob, error) {
	job := &models.ProcessingJob{
		Type:     jobType,
		Payload:  payload,
		Priority: priority,
	}

	if err := w.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	log.Printf("Job %s submitted (type: %s, priority: %d)", job.ID, jobType, priority)
	return job, nil
}
