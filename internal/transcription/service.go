// Package transcription admits, schedules and tracks transcriptions.
//
// The API process calls Transcribe, Download and Terminate. Those validate the
// request synchronously and persist a job; the worker process then calls
// Process or ProcessTermination with the job payload.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"transcriber/internal/apperr"
	"transcriber/internal/container"
	"transcriber/internal/media"
	"transcriber/internal/models"
	"transcriber/internal/notify"
	"transcriber/internal/storage"
	"transcriber/internal/subtitle"
)

// Accepted is returned when a request was queued.
type Accepted struct {
	TaskID string `json:"task_id"`
	Detail string `json:"detail"`
}

// Options configures a Service.
type Options struct {
	ContainerConfig container.Config
	Detach          bool
	Remove          bool
	Channel         string
	TerminateGrace  time.Duration // wait before failing a container that was stopped
}

// Service is the transcription state machine.
type Service struct {
	db        *storage.DB
	planner   *Planner
	executor  *Executor
	publisher notify.Publisher
	library   *media.Library
	prober    media.DurationProber
	opts      Options
}

// NewService wires the state machine to its collaborators.
func NewService(
	db *storage.DB,
	planner *Planner,
	executor *Executor,
	publisher notify.Publisher,
	library *media.Library,
	prober media.DurationProber,
	opts Options,
) *Service {
	if opts.Channel == "" {
		opts.Channel = models.ChannelNotifications
	}
	return &Service{
		db:        db,
		planner:   planner,
		executor:  executor,
		publisher: publisher,
		library:   library,
		prober:    prober,
		opts:      opts,
	}
}

// Transcribe admits a transcription of fileID and queues it for the worker.
// Validation, admission and the insert run in one write transaction so that
// concurrent requests cannot jointly exceed the concurrency policy.
func (s *Service) Transcribe(ctx context.Context, fileID, language, priority string) (*Accepted, error) {
	lang, err := models.ParseLanguage(language)
	if err != nil {
		return nil, apperr.BadRequest("Unsupported language")
	}
	prio, err := models.ParsePriority(priority)
	if err != nil {
		return nil, apperr.BadRequest("Unsupported priority")
	}

	var t *models.Transcription
	err = s.db.InTx(ctx, func(tx *storage.Tx) error {
		file, err := tx.Files.GetByID(ctx, fileID)
		if err != nil {
			return err
		}
		if err := checkFile(file); err != nil {
			return err
		}

		existing, err := tx.Transcriptions.GetByFileID(ctx, fileID)
		if err != nil {
			return err
		}
		if existing != nil {
			switch existing.Status {
			case models.StatusDone:
				return apperr.BadRequest("File is already transcribed")
			case models.StatusQueue, models.StatusProcessing:
				return apperr.BadRequest("File is already processing")
			default:
				if err := tx.Transcriptions.Delete(ctx, existing.ID); err != nil {
					return err
				}
			}
		}

		running, err := tx.Transcriptions.ListByStatus(ctx, models.StatusProcessing)
		if err != nil {
			return err
		}
		if err := Admit(CountByPriority(running), prio); err != nil {
			return err
		}

		plan, err := s.planner.Plan(fileID, lang, prio)
		if err != nil {
			return err
		}

		t = &models.Transcription{
			FileID:   fileID,
			Language: lang,
			Priority: prio,
			Status:   models.StatusQueue,
		}
		if err := tx.Transcriptions.Create(ctx, t); err != nil {
			return err
		}
		if err := tx.Transcriptions.UpdateStatus(ctx, t.ID, models.StatusProcessing, nil); err != nil {
			return err
		}
		t.Status = models.StatusProcessing

		payload, err := encode(&JobPayload{
			Version:         PayloadVersion,
			ID:              t.ID,
			FileID:          fileID,
			ContainerConfig: s.opts.ContainerConfig,
			Detach:          s.opts.Detach,
			Remove:          s.opts.Remove,
			Segments:        plan.Segments,
			Commands:        plan.Commands,
		})
		if err != nil {
			return err
		}
		log.Printf("Transcription %s admitted (%s, %s)", t.ID, prio, plan)
		return tx.Jobs.Create(ctx, &models.ProcessingJob{
			Type:     models.JobTypeTranscribe,
			Priority: models.JobPriorityFor(prio),
			Payload:  payload,
		})
	})
	if err != nil {
		return nil, classify(err)
	}

	s.publish(ctx, models.Notification{
		ID:      fileID,
		Status:  t.Status,
		Type:    models.NotificationInfo,
		Task:    models.TaskTranscription,
		Message: "transcription in process",
	})

	return &Accepted{TaskID: t.ID, Detail: "Success: File is added to transcription queue"}, nil
}

func checkFile(file *models.File) error {
	if file == nil {
		return apperr.NotFound("File not found")
	}
	switch file.Status {
	case models.StatusQueue, models.StatusProcessing:
		return apperr.BadRequest("File is not yet uploaded")
	case models.StatusError:
		return apperr.BadRequest("File upload failed")
	}
	if _, err := os.Stat(file.Path); err != nil {
		return apperr.NotFound("File not found")
	}
	return nil
}

// Terminate queues the termination of a running transcription.
func (s *Service) Terminate(ctx context.Context, fileID string) (*Accepted, error) {
	file, err := s.db.Files.GetByID(ctx, fileID)
	if err != nil {
		return nil, classify(err)
	}
	if file == nil {
		return nil, apperr.NotFound("File not found")
	}

	t, err := s.db.Transcriptions.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, classify(err)
	}
	if t == nil || t.Status != models.StatusProcessing {
		return nil, apperr.BadRequest("Transcription is not in process")
	}

	payload, err := encode(&TerminatePayload{Version: PayloadVersion, ID: t.ID, FileID: fileID})
	if err != nil {
		return nil, classify(err)
	}
	if err := s.db.Jobs.Create(ctx, &models.ProcessingJob{
		Type:     models.JobTypeTerminate,
		Priority: models.JobPriorityImmediate,
		Payload:  payload,
	}); err != nil {
		return nil, classify(err)
	}

	return &Accepted{TaskID: t.ID, Detail: "Success: Transcription is added to termination queue"}, nil
}

// Process runs a transcribe job: dispatch every segment, merge the output
// and move the transcription to DONE, or to ERROR on any failure.
func (s *Service) Process(ctx context.Context, p *JobPayload) error {
	t, err := s.db.Transcriptions.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if t == nil || t.Status != models.StatusProcessing {
		log.Printf("Transcription %s is no longer processing, skipping", p.ID)
		return nil
	}

	if err := s.run(ctx, p); err != nil {
		if errors.Is(err, container.ErrStopped) {
			// give a concurrent termination time to delete the row first
			sleep(ctx, s.opts.TerminateGrace)
		}
		s.fail(ctx, p.ID, p.FileID, models.TaskTranscription, "transcription failed")
		return err
	}

	s.complete(ctx, p.ID, p.FileID)
	return nil
}

func (s *Service) run(ctx context.Context, p *JobPayload) error {
	outDir := s.library.TranscriptionsDir(p.FileID)
	for _, seg := range p.Segments {
		if err := os.MkdirAll(filepath.Join(outDir, SegmentStem(seg)), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	record := func(ctx context.Context, id string) error {
		return s.db.Transcriptions.AppendTaskID(ctx, p.ID, id)
	}
	ids, err := s.executor.Dispatch(ctx, Launch{
		Config:   p.ContainerConfig,
		Commands: p.Commands,
		Detach:   p.Detach,
		Remove:   p.Remove,
	}, record)
	if err != nil {
		return err
	}
	log.Printf("Transcription %s: %d containers finished", p.ID, len(ids))

	if p.Detach {
		// detached containers are still running; there is nothing to merge yet
		return nil
	}
	return s.merge(ctx, p)
}

// merge shifts each segment's subtitles by the length of the segments
// before it and writes the combined artifacts.
func (s *Service) merge(ctx context.Context, p *JobPayload) error {
	durations, err := s.library.SegmentDurations(ctx, s.prober, p.FileID, p.Segments)
	if err != nil {
		return err
	}

	outDir := s.library.TranscriptionsDir(p.FileID)
	inputs := make([]string, len(p.Segments))
	for i, seg := range p.Segments {
		stem := SegmentStem(seg)
		inputs[i] = filepath.Join(outDir, stem, stem+".srt")
	}

	subs, err := subtitle.Merge(inputs, subtitle.Offsets(durations))
	if err != nil {
		return err
	}
	_, err = subtitle.WriteAll(subs, outDir)
	return err
}

// ProcessTermination stops every container of the transcription named by the
// payload and deletes the row. A row that is gone, replaced by a newer request
// or no longer PROCESSING is left alone.
func (s *Service) ProcessTermination(ctx context.Context, p *TerminatePayload) error {
	t, err := s.db.Transcriptions.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if t == nil || t.FileID != p.FileID || t.Status != models.StatusProcessing {
		log.Printf("Transcription %s is no longer processing, nothing to terminate", p.ID)
		return nil
	}

	if err := s.executor.StopAll(ctx, t.TaskIDs); err != nil {
		s.fail(ctx, t.ID, p.FileID, models.TaskTerminate, "transcription termination failed")
		return err
	}

	// the job may have finished while its containers were being stopped
	if err := s.db.Transcriptions.DeleteWithStatus(ctx, t.ID, models.StatusProcessing); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("Transcription %s finished before termination", t.ID)
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	s.publish(ctx, models.Notification{
		ID:          p.FileID,
		Status:      models.StatusDone,
		Type:        models.NotificationSuccess,
		Task:        models.TaskTerminate,
		Message:     "transcription terminated",
		CompletedAt: &now,
	})
	log.Printf("Transcription %s terminated (%d containers)", t.ID, len(t.TaskIDs))
	return nil
}

// Reconcile fails transcriptions left PROCESSING without a live job, which
// happens when a worker dies mid-job. Call it before the worker starts.
func (s *Service) Reconcile(ctx context.Context) error {
	n, err := s.db.Jobs.FailRunning(ctx, "interrupted by worker restart")
	if err != nil {
		return fmt.Errorf("failed to reset running jobs: %w", err)
	}
	if n > 0 {
		log.Printf("Marked %d interrupted jobs as failed", n)
	}

	running, err := s.db.Transcriptions.ListByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return err
	}
	for _, t := range running {
		active, err := s.db.Jobs.HasActive(ctx, models.JobTypeTranscribe, t.ID)
		if err != nil {
			return err
		}
		if !active {
			log.Printf("Transcription %s has no active job, marking as error", t.ID)
			s.fail(ctx, t.ID, t.FileID, models.TaskTranscription, "transcription interrupted")
		}
	}
	return nil
}

func (s *Service) complete(ctx context.Context, id, fileID string) {
	s.finish(ctx, id, fileID, models.StatusDone, models.NotificationSuccess, models.TaskTranscription, "transcription completed")
}

func (s *Service) fail(ctx context.Context, id, fileID string, task models.Task, message string) {
	s.finish(ctx, id, fileID, models.StatusError, models.NotificationError, task, message)
}

// finish stamps a terminal status and publishes it. A row deleted in the
// meantime is left alone.
func (s *Service) finish(ctx context.Context, id, fileID string, status models.Status, typ models.NotificationType, task models.Task, message string) {
	t, err := s.db.Transcriptions.GetByID(ctx, id)
	if err != nil {
		log.Printf("Error loading transcription %s: %v", id, err)
		return
	}
	if t == nil {
		return
	}

	now := time.Now().UTC()
	if err := s.db.Transcriptions.UpdateStatus(ctx, id, status, &now); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("Error updating transcription %s: %v", id, err)
		}
		return
	}

	s.publish(ctx, models.Notification{
		ID:          fileID,
		Status:      status,
		Type:        typ,
		Task:        task,
		Message:     message,
		CompletedAt: &now,
	})
}

func (s *Service) publish(ctx context.Context, n models.Notification) {
	s.publisher.Publish(context.WithoutCancel(ctx), s.opts.Channel, n)
}

// classify turns store and unexpected errors into caller-facing kinds.
func classify(err error) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, storage.ErrUnavailable):
		return apperr.Unavailable("Error: Service unavailable", err)
	default:
		return apperr.Internal("Error: Internal server error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
