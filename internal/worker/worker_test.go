package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"transcriber/internal/models"
	"transcriber/internal/storage"
)

func newTestWorker(t *testing.T, concurrency int) (*Worker, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	w := NewWorker(db.Jobs, concurrency)
	w.SetInterval(10 * time.Millisecond)
	return w, db
}

func waitForStatus(t *testing.T, db *storage.DB, id, status string) *models.ProcessingJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := db.Jobs.GetByID(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if job != nil && job.Status == status {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, status)
	return nil
}

func TestWorkerCompletesJob(t *testing.T) {
	w, db := newTestWorker(t, 2)
	ctx := context.Background()

	var got string
	w.RegisterHandler(models.JobTypeOptimize, func(_ context.Context, job *models.ProcessingJob) error {
		got = job.Payload
		return nil
	}, 0)

	job, err := w.SubmitJob(ctx, models.JobTypeOptimize, `{"id":"f1"}`, models.JobPriorityNormal)
	if err != nil {
		t.Fatal(err)
	}

	w.Start(ctx)
	defer w.Stop()

	done := waitForStatus(t, db, job.ID, models.JobStatusCompleted)
	if done.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if got != `{"id":"f1"}` {
		t.Errorf("payload = %q", got)
	}
}

func TestWorkerRetriesThenFails(t *testing.T) {
	w, db := newTestWorker(t, 1)
	ctx := context.Background()

	var calls atomic.Int32
	w.RegisterHandler(models.JobTypeOptimize, func(context.Context, *models.ProcessingJob) error {
		calls.Add(1)
		return errors.New("ffmpeg exploded")
	}, 2)

	job, err := w.SubmitJob(ctx, models.JobTypeOptimize, "{}", models.JobPriorityNormal)
	if err != nil {
		t.Fatal(err)
	}

	w.Start(ctx)
	defer w.Stop()

	failed := waitForStatus(t, db, job.ID, models.JobStatusFailed)
	if failed.Error != "ffmpeg exploded" {
		t.Errorf("error = %q", failed.Error)
	}
	if calls.Load() != 3 {
		t.Errorf("handler ran %d times, want 3", calls.Load())
	}
}

func TestWorkerFailsUnknownType(t *testing.T) {
	w, db := newTestWorker(t, 1)
	ctx := context.Background()

	job, err := w.SubmitJob(ctx, "mystery", "{}", models.JobPriorityNormal)
	if err != nil {
		t.Fatal(err)
	}

	w.Start(ctx)
	defer w.Stop()

	waitForStatus(t, db, job.ID, models.JobStatusFailed)
}

func TestWorkerRecoversPanics(t *testing.T) {
	w, db := newTestWorker(t, 1)
	ctx := context.Background()

	w.RegisterHandler(models.JobTypeTerminate, func(context.Context, *models.ProcessingJob) error {
		panic("boom")
	}, 0)

	job, err := w.SubmitJob(ctx, models.JobTypeTerminate, "{}", models.JobPriorityImmediate)
	if err != nil {
		t.Fatal(err)
	}

	w.Start(ctx)
	defer w.Stop()

	failed := waitForStatus(t, db, job.ID, models.JobStatusFailed)
	if failed.Error != "panic: boom" {
		t.Errorf("error = %q", failed.Error)
	}
}

func TestWorkerRunsJobsConcurrently(t *testing.T) {
	w, db := newTestWorker(t, 2)
	ctx := context.Background()

	release := make(chan struct{})
	var running, peak atomic.Int32
	w.RegisterHandler(models.JobTypeTranscribe, func(context.Context, *models.ProcessingJob) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return nil
	}, 0)

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := w.SubmitJob(ctx, models.JobTypeTranscribe, "{}", models.JobPriorityNormal)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, job.ID)
	}

	w.Start(ctx)
	waitForStatus(t, db, ids[0], models.JobStatusRunning)
	waitForStatus(t, db, ids[1], models.JobStatusRunning)
	time.Sleep(50 * time.Millisecond)
	close(release)

	for _, id := range ids {
		waitForStatus(t, db, id, models.JobStatusCompleted)
	}
	w.Stop()

	if peak.Load() != 2 {
		t.Errorf("peak concurrency = %d, want 2", peak.Load())
	}
}

func TestReservedLaneRunsWhileSlotsAreBusy(t *testing.T) {
	w, db := newTestWorker(t, 1)
	w.Reserve(models.JobTypeTerminate, 1)
	ctx := context.Background()

	release := make(chan struct{})
	w.RegisterHandler(models.JobTypeTranscribe, func(context.Context, *models.ProcessingJob) error {
		<-release
		return nil
	}, 0)
	w.RegisterHandler(models.JobTypeTerminate, func(context.Context, *models.ProcessingJob) error {
		return nil
	}, 0)

	long, err := w.SubmitJob(ctx, models.JobTypeTranscribe, "{}", models.JobPriorityNormal)
	if err != nil {
		t.Fatal(err)
	}
	queued, err := w.SubmitJob(ctx, models.JobTypeTranscribe, "{}", models.JobPriorityNormal)
	if err != nil {
		t.Fatal(err)
	}

	w.Start(ctx)
	defer func() {
		close(release)
		w.Stop()
	}()
	waitForStatus(t, db, long.ID, models.JobStatusRunning)

	stop, err := w.SubmitJob(ctx, models.JobTypeTerminate, "{}", models.JobPriorityImmediate)
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, db, stop.ID, models.JobStatusCompleted)

	// the reserved lane must not pick up regular work
	job, err := db.Jobs.GetByID(ctx, queued.ID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("second transcribe job = %s, want queued", job.Status)
	}
}
