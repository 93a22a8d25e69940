package container

import (
	"context"
	"fmt"
	"log"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/google/shlex"
)

// Docker runs workers through the Docker Engine API.
type Docker struct {
	cli         *client.Client
	stopTimeout time.Duration
}

// NewDocker connects to the Docker daemon configured in the environment
// (DOCKER_HOST etc.) and verifies it answers.
func NewDocker(ctx context.Context, stopTimeout time.Duration) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	log.Println("Docker client connected")
	return &Docker{cli: cli, stopTimeout: stopTimeout}, nil
}

// Close releases the client connection.
func (d *Docker) Close() error {
	log.Println("Docker client disconnected")
	return d.cli.Close()
}

// Start creates and starts a container named opts.Name running command.
func (d *Docker) Start(ctx context.Context, cfg Config, command string, opts StartOptions) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	args, err := shlex.Split(command)
	if err != nil {
		return "", fmt.Errorf("parse command: %w", err)
	}

	created, err := d.cli.ContainerCreate(ctx,
		&dockercontainer.Config{Image: cfg.Image, Cmd: args, Env: cfg.Env},
		&dockercontainer.HostConfig{Binds: cfg.Binds(), AutoRemove: opts.Remove},
		nil, nil, opts.Name)
	if err != nil {
		return "", classify(err)
	}

	// Register the wait before starting so an auto-removed container cannot
	// exit unobserved.
	var waitC <-chan dockercontainer.WaitResponse
	var errC <-chan error
	if !opts.Detach {
		waitC, errC = d.cli.ContainerWait(ctx, created.ID, dockercontainer.WaitConditionNextExit)
	}

	if err := d.cli.ContainerStart(ctx, created.ID, dockercontainer.StartOptions{}); err != nil {
		_ = d.cli.ContainerRemove(context.WithoutCancel(ctx), created.ID, dockercontainer.RemoveOptions{Force: true})
		return created.ID, classify(err)
	}
	if opts.Detach {
		return created.ID, nil
	}

	select {
	case err := <-errC:
		return created.ID, classify(err)
	case res := <-waitC:
		if res.Error != nil {
			return created.ID, fmt.Errorf("container %s: %s", opts.Name, res.Error.Message)
		}
		if res.StatusCode != 0 {
			return created.ID, &ExitError{Name: opts.Name, Code: res.StatusCode}
		}
		return created.ID, nil
	}
}

// Stop sends a stop request and waits for the daemon to acknowledge it.
func (d *Docker) Stop(ctx context.Context, name string) error {
	timeout := int(d.stopTimeout.Seconds())
	if err := d.cli.ContainerStop(ctx, name, dockercontainer.StopOptions{Timeout: &timeout}); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
