// Package app wires configuration, storage, transport and services together
// for the server and worker binaries.
package app

import (
	"context"
	"fmt"
	"log"
	"regexp"

	"transcriber/internal/config"
	"transcriber/internal/container"
	"transcriber/internal/ingestion"
	"transcriber/internal/media"
	"transcriber/internal/models"
	"transcriber/internal/notify"
	"transcriber/internal/storage"
	"transcriber/internal/transcription"
	"transcriber/internal/worker"
)

// App holds the long-lived clients of one process.
type App struct {
	Config         *config.Config
	DB             *storage.DB
	Broker         notify.Broker
	Runtime        *container.Docker
	Library        *media.Library
	Converter      *media.Converter
	Transcriptions *transcription.Service
	Ingester       *ingestion.FileIngester
}

// New connects to the database and the notification broker. The container
// runtime is only connected when withRuntime is set, since only the worker
// launches containers.
func New(ctx context.Context, cfg *config.Config, withRuntime bool) (*App, error) {
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}

	if cfg.RedisAddr != "" {
		broker, err := notify.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Broker = broker
	} else {
		log.Println("REDIS_ADDR not set, notifications stay in this process")
		a.Broker = notify.NewHub(64)
	}

	var runtime container.Runtime
	if withRuntime {
		docker, err := container.NewDocker(ctx, cfg.ContainerStopTimeout)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Runtime = docker
		runtime = docker
	}

	a.Library = media.NewLibrary(cfg.DataDir)
	a.Converter = media.NewConverter(cfg.SampleRate)

	planner := transcription.NewPlanner(a.Library, transcription.PlannerConfig{
		Bin:       cfg.WhisperBin,
		Model:     cfg.WhisperModel,
		Root:      cfg.ContainerDataDir,
		CPUCount:  cfg.CPUCount,
		Divisors:  cfg.ThreadDivisors,
		Reduction: cfg.ThreadReduction,
		Fine:      regexp.MustCompile(cfg.FineSegmentPattern),
	})

	a.Transcriptions = transcription.NewService(
		db,
		planner,
		transcription.NewExecutor(runtime, cfg.WorkerConcurrency),
		a.Broker,
		a.Library,
		a.Converter,
		transcription.Options{
			ContainerConfig: ContainerConfig(cfg),
			Remove:          true,
			Channel:         cfg.NotificationChannel,
			TerminateGrace:  cfg.TerminateGrace,
		},
	)

	a.Ingester = ingestion.NewFileIngester(db, a.Converter, a.Library, a.Broker, cfg.NotificationChannel, cfg.SplitParts)
	return a, nil
}

// ContainerConfig mounts the data directory at the path commands refer to.
func ContainerConfig(cfg *config.Config) container.Config {
	return container.Config{
		Image: cfg.ContainerImage,
		Volumes: map[string]container.Volume{
			cfg.DataDir: {Bind: cfg.ContainerDataDir, Mode: "rw"},
		},
	}
}

// NewWorker reconciles interrupted work and returns a worker with every job
// type registered. Terminate jobs get a reserved lane so a worker saturated
// by long transcriptions can still stop them. Transcribe and terminate jobs
// are never retried: their failure is recorded on the transcription itself.
func (a *App) NewWorker(ctx context.Context) (*worker.Worker, error) {
	if a.Runtime == nil {
		return nil, fmt.Errorf("worker needs a container runtime")
	}
	if err := a.Converter.CheckInstalled(); err != nil {
		return nil, err
	}
	if err := a.Transcriptions.Reconcile(ctx); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	w := worker.NewWorker(a.DB.Jobs, a.Config.WorkerConcurrency)
	w.SetInterval(a.Config.WorkerPollInterval)
	w.SetRetention(a.Config.JobRetentionDays)
	w.Reserve(models.JobTypeTerminate, 1)

	w.RegisterHandler(models.JobTypeOptimize, func(ctx context.Context, job *models.ProcessingJob) error {
		p, err := ingestion.DecodeOptimizePayload(job.Payload)
		if err != nil {
			return err
		}
		return a.Ingester.ProcessOptimization(ctx, p)
	}, 1)

	w.RegisterHandler(models.JobTypeTranscribe, func(ctx context.Context, job *models.ProcessingJob) error {
		p, err := transcription.DecodeJobPayload(job.Payload)
		if err != nil {
			return err
		}
		return a.Transcriptions.Process(ctx, p)
	}, 0)

	w.RegisterHandler(models.JobTypeTerminate, func(ctx context.Context, job *models.ProcessingJob) error {
		p, err := transcription.DecodeTerminatePayload(job.Payload)
		if err != nil {
			return err
		}
		return a.Transcriptions.ProcessTermination(ctx, p)
	}, 0)

	return w, nil
}

// Close releases every client that was opened.
func (a *App) Close() {
	if a.Runtime != nil {
		if err := a.Runtime.Close(); err != nil {
			log.Printf("Error closing container runtime: %v", err)
		}
	}
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			log.Printf("Error closing notification broker: %v", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}
}
