package transcription

import (
	"encoding/json"
	"errors"
	"fmt"

	"transcriber/internal/container"
)

// PayloadVersion is the job payload schema the worker understands.
const PayloadVersion = 1

// JobPayload is the transcribe job handed from the API to the worker.
type JobPayload struct {
	Version         int              `json:"version"`
	ID              string           `json:"id"`
	FileID          string           `json:"file_id"`
	ContainerConfig container.Config `json:"container_config"`
	Detach          bool             `json:"detach"`
	Remove          bool             `json:"remove"`
	Segments        []string         `json:"segments"`
	Commands        []string         `json:"commands"`
}

// Validate checks required fields.
func (p *JobPayload) Validate() error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("unsupported payload version %d", p.Version)
	}
	if p.ID == "" || p.FileID == "" {
		return errors.New("payload: id and file_id are required")
	}
	if len(p.Commands) == 0 {
		return errors.New("payload: no commands")
	}
	if len(p.Segments) != len(p.Commands) {
		return fmt.Errorf("payload: %d segments but %d commands", len(p.Segments), len(p.Commands))
	}
	return p.ContainerConfig.Validate()
}

// TerminatePayload is the terminate job handed from the API to the worker.
type TerminatePayload struct {
	Version int    `json:"version"`
	ID      string `json:"id"`
	FileID  string `json:"file_id"`
}

// Validate checks required fields.
func (p *TerminatePayload) Validate() error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("unsupported payload version %d", p.Version)
	}
	if p.ID == "" || p.FileID == "" {
		return errors.New("payload: id and file_id are required")
	}
	return nil
}

type validator interface {
	Validate() error
}

func encode(p validator) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decode(s string, p validator) error {
	if err := json.Unmarshal([]byte(s), p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return p.Validate()
}

// DecodeJobPayload parses and validates a transcribe payload.
func DecodeJobPayload(s string) (*JobPayload, error) {
	var p JobPayload
	if err := decode(s, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeTerminatePayload parses and validates a terminate payload.
func DecodeTerminatePayload(s string) (*TerminatePayload, error) {
	var p TerminatePayload
	if err := decode(s, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
