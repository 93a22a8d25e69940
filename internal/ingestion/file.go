package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"transcriber/internal/apperr"
	"transcriber/internal/media"
	"transcriber/internal/models"
	"transcriber/internal/notify"
	"transcriber/internal/storage"
)

// sourceStem names the stored upload. It is removed once the file is split
// so it never shows up as a segment.
const sourceStem = "source"

// Processor is the subset of ffmpeg operations the pipeline needs
type Processor interface {
	ConvertToWav(ctx context.Context, inputPath, outputPath string) error
	Split(ctx context.Context, inputPath, dir, stem string, parts int) ([]string, error)
}

// FileIngester stores uploads and prepares them for transcription
type FileIngester struct {
	db         *storage.DB
	processor  Processor
	library    *media.Library
	publisher  notify.Publisher
	channel    string
	splitParts int
}

// NewFileIngester creates a new FileIngester
func NewFileIngester(
	db *storage.DB,
	processor Processor,
	library *media.Library,
	publisher notify.Publisher,
	channel string,
	splitParts int,
) *FileIngester {
	if splitParts < 1 {
		splitParts = 1
	}
	return &FileIngester{
		db:         db,
		processor:  processor,
		library:    library,
		publisher:  publisher,
		channel:    channel,
		splitParts: splitParts,
	}
}

// Upload represents an uploaded media file
type Upload struct {
	Filename string
	Name     string // display name; defaults to Filename
	Reader   io.Reader
}

// IngestResult contains the result of ingestion
type IngestResult struct {
	FileID string `json:"file_id"`
	JobID  string `json:"-"`
	Detail string `json:"detail"`
}

// OptimizePayload is the optimize job payload
type OptimizePayload struct {
	Version int    `json:"version"`
	ID      string `json:"id"`
}

// DecodeOptimizePayload parses and validates an optimize job payload
func DecodeOptimizePayload(s string) (*OptimizePayload, error) {
	var p OptimizePayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p.Version != 1 || p.ID == "" {
		return nil, fmt.Errorf("invalid optimize payload: %s", s)
	}
	return &p, nil
}

// Ingest saves the upload, creates the file record and queues its optimization
func (i *FileIngester) Ingest(ctx context.Context, up Upload) (*IngestResult, error) {
	fileType, ok := models.FileTypeOf(up.Filename)
	if !ok {
		return nil, apperr.BadRequest("Error: Unsupported file type")
	}

	fileID := uuid.New().String()
	dir := i.library.Dir(fileID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperr.Internal("Error: Internal server error", fmt.Errorf("failed to create file directory: %w", err))
	}

	ext := strings.ToLower(filepath.Ext(up.Filename))
	destPath := filepath.Join(dir, sourceStem+ext)
	if err := saveFile(destPath, up.Reader); err != nil {
		os.RemoveAll(dir)
		return nil, apperr.Internal("Error: Internal server error", err)
	}

	name := up.Name
	if name == "" {
		name = up.Filename
	}
	file := &models.File{
		ID:     fileID,
		Name:   name,
		Type:   fileType,
		Path:   destPath,
		Status: models.StatusQueue,
	}

	payload, _ := json.Marshal(OptimizePayload{Version: 1, ID: fileID})
	job := &models.ProcessingJob{
		Type:     models.JobTypeOptimize,
		Priority: models.JobPriorityNormal,
		Payload:  string(payload),
	}

	err := i.db.InTx(ctx, func(tx *storage.Tx) error {
		if err := tx.Files.Create(ctx, file); err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}
		if err := tx.Jobs.Create(ctx, job); err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		return nil
	})
	if err != nil {
		os.RemoveAll(dir)
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, apperr.Unavailable("Error: Service unavailable", err)
		}
		return nil, apperr.Internal("Error: Internal server error", err)
	}

	log.Printf("File %s uploaded (%s, %s)", fileID, fileType, name)
	return &IngestResult{
		FileID: fileID,
		JobID:  job.ID,
		Detail: fmt.Sprintf("File %s uploaded successfully", name),
	}, nil
}

func saveFile(path string, r io.Reader) error {
	dest, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	_, err = io.Copy(dest, r)
	if cerr := dest.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

// phase is one step of the optimization pipeline
type phase struct {
	task    models.Task
	running string
	done    string
	failed  string
}

var (
	phaseConversion = phase{models.TaskConversion,
		"video to audio conversion in process", "successfully converted video to audio", "video to audio conversion failed"}
	phaseResample = phase{models.TaskOptimization,
		"audio sample rate optimization in process", "successfully optimized audio sample rate", "audio optimization failed"}
	phaseSplit = phase{models.TaskOptimization,
		"audio split in process", "successfully split audio into parts", "audio split failed"}
)

// ProcessOptimization converts the upload to mono WAV and splits it into parts.
// The file ends DONE with its folder as path, or ERROR.
func (i *FileIngester) ProcessOptimization(ctx context.Context, p *OptimizePayload) error {
	file, err := i.db.Files.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if file == nil {
		log.Printf("File %s no longer exists, skipping optimization", p.ID)
		return nil
	}

	if err := i.db.Files.UpdateStatus(ctx, file.ID, models.StatusProcessing, nil); err != nil {
		return err
	}

	dir := i.library.Dir(file.ID)
	wav := filepath.Join(dir, "file.wav")

	first := phaseResample
	if file.Type == models.FileTypeVideo {
		first = phaseConversion
	}
	if err := i.runPhase(ctx, file.ID, first, func() error {
		return i.processor.ConvertToWav(ctx, file.Path, wav)
	}); err != nil {
		return err
	}
	var parts []string
	if err := i.runPhase(ctx, file.ID, phaseSplit, func() error {
		var err error
		parts, err = i.processor.Split(ctx, wav, dir, "file", i.splitParts)
		return err
	}); err != nil {
		return err
	}

	if err := os.Remove(file.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("Error removing upload %s: %v", file.Path, err)
	}

	now := time.Now().UTC()
	if err := i.db.Files.UpdatePath(ctx, file.ID, dir); err != nil {
		return i.failFile(ctx, file.ID, phaseSplit, err)
	}
	if err := i.db.Files.UpdateStatus(ctx, file.ID, models.StatusDone, &now); err != nil {
		return i.failFile(ctx, file.ID, phaseSplit, err)
	}

	i.publisher.Publish(ctx, i.channel, models.Notification{
		ID:          file.ID,
		Status:      models.StatusDone,
		Type:        models.NotificationSuccess,
		Task:        models.TaskOptimization,
		Message:     "file is ready for transcription",
		CompletedAt: &now,
	})
	log.Printf("File %s optimized into %d parts", file.ID, len(parts))
	return nil
}

func (i *FileIngester) runPhase(ctx context.Context, fileID string, ph phase, fn func() error) error {
	i.publisher.Publish(ctx, i.channel, models.Notification{
		ID:      fileID,
		Status:  models.StatusProcessing,
		Type:    models.NotificationInfo,
		Task:    ph.task,
		Message: ph.running,
	})

	if err := fn(); err != nil {
		return i.failFile(ctx, fileID, ph, err)
	}

	i.publisher.Publish(ctx, i.channel, models.Notification{
		ID:      fileID,
		Status:  models.StatusProcessing,
		Type:    models.NotificationSuccess,
		Task:    ph.task,
		Message: ph.done,
	})
	return nil
}

func (i *FileIngester) failFile(ctx context.Context, fileID string, ph phase, cause error) error {
	now := time.Now().UTC()
	if err := i.db.Files.UpdateStatus(ctx, fileID, models.StatusError, &now); err != nil {
		log.Printf("Error marking file %s as failed: %v", fileID, err)
	}
	i.publisher.Publish(ctx, i.channel, models.Notification{
		ID:          fileID,
		Status:      models.StatusError,
		Type:        models.NotificationError,
		Task:        ph.task,
		Message:     ph.failed,
		CompletedAt: &now,
	})
	return fmt.Errorf("%s: %w", ph.failed, cause)
}

// Delete removes a file, its transcription and its folder.
// Files still being optimized or transcribed cannot be deleted.
func (i *FileIngester) Delete(ctx context.Context, fileID string) error {
	err := i.db.InTx(ctx, func(tx *storage.Tx) error {
		file, err := tx.Files.GetByID(ctx, fileID)
		if err != nil {
			return err
		}
		if file == nil {
			return apperr.NotFound("File not found")
		}
		if file.Status.Active() {
			return apperr.BadRequest("File is being processed")
		}
		t, err := tx.Transcriptions.GetByFileID(ctx, fileID)
		if err != nil {
			return err
		}
		if t != nil && t.Status.Active() {
			return apperr.BadRequest("File is being transcribed")
		}
		return tx.Files.Delete(ctx, fileID)
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return err
		}
		if errors.Is(err, storage.ErrUnavailable) {
			return apperr.Unavailable("Error: Service unavailable", err)
		}
		return apperr.Internal("Error: Internal server error", err)
	}

	if err := os.RemoveAll(i.library.Dir(fileID)); err != nil {
		log.Printf("Error removing folder of file %s: %v", fileID, err)
	}
	return nil
}
