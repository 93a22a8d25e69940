// Package container starts and stops the isolated speech-recognition workers.
package container

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound is returned when the container (or its image) does not exist.
	ErrNotFound = errors.New("container not found")
	// ErrUnavailable is returned when the runtime cannot be reached.
	ErrUnavailable = errors.New("container runtime unavailable")
	// ErrStopped matches exit errors caused by a stop request (SIGTERM/SIGKILL).
	ErrStopped = errors.New("container stopped")
)

// Config describes the image and mounts a worker container runs with.
type Config struct {
	Image   string            `json:"image"`
	Volumes map[string]Volume `json:"volumes"`
	Env     []string          `json:"env,omitempty"`
}

// Volume binds a host path into the container.
type Volume struct {
	Bind string `json:"bind"`
	Mode string `json:"mode"`
}

// Binds renders the volumes as "host:container:mode" entries in a stable order.
func (c Config) Binds() []string {
	hosts := make([]string, 0, len(c.Volumes))
	for host := range c.Volumes {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	binds := make([]string, 0, len(hosts))
	for _, host := range hosts {
		v := c.Volumes[host]
		mode := v.Mode
		if mode == "" {
			mode = "rw"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", host, v.Bind, mode))
	}
	return binds
}

// Validate checks the fields a runtime needs to start a container.
func (c Config) Validate() error {
	if c.Image == "" {
		return errors.New("container config: image is required")
	}
	for host, v := range c.Volumes {
		if host == "" || v.Bind == "" {
			return fmt.Errorf("container config: invalid volume %q -> %q", host, v.Bind)
		}
	}
	return nil
}

// StartOptions controls how a single container is launched.
type StartOptions struct {
	Name   string
	Detach bool // return once the runtime accepted the start
	Remove bool // remove the container after it exits
}

// Runtime is the container runtime the scheduler drives.
type Runtime interface {
	// Start launches command in a new container. Unless opts.Detach is set it
	// blocks until the container exits and reports a non-zero exit as *ExitError.
	Start(ctx context.Context, cfg Config, command string, opts StartOptions) (string, error)
	// Stop asks the named container to stop.
	Stop(ctx context.Context, name string) error
}

// ExitError reports a container that exited with a non-zero status.
type ExitError struct {
	Name string
	Code int64
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("container %s exited with status %d", e.Name, e.Code)
}

// Is lets errors.Is(err, ErrStopped) match exits caused by SIGTERM or SIGKILL.
func (e *ExitError) Is(target error) bool {
	return target == ErrStopped && (e.Code == 137 || e.Code == 143)
}
