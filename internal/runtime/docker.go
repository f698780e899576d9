package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
)

const (
	labelManaged = "botcrew.managed"
	labelScope   = "botcrew.scope"
	labelAgentID = "botcrew.agent-id"
)

// DockerRuntime implements Runtime on the Docker Engine API. Workers
// are containers named after their agent and labeled with the
// orchestrator scope so ListAll only sees containers we own.
type DockerRuntime struct {
	cli    *client.Client
	config config.DockerConfig
	logger *logger.Logger
}

// hostFileConfig is the shape of the optional endpoint config file.
type hostFileConfig struct {
	Host string `json:"host"`
}

// NewDockerRuntime creates a Docker-backed runtime. Endpoint
// resolution order: explicit config, ambient DOCKER_HOST or local
// socket, then the config file fallback.
func NewDockerRuntime(cfg config.DockerConfig, log *logger.Logger) (*DockerRuntime, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}

	host, err := resolveHost(cfg)
	if err != nil {
		return nil, err
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	log.Info("Docker runtime ready",
		zap.String("host", host),
		zap.String("scope", cfg.Scope),
		zap.String("network", cfg.Network),
	)
	return &DockerRuntime{cli: cli, config: cfg, logger: log}, nil
}

// resolveHost picks the Docker endpoint. An empty return lets the SDK
// use its own defaults (DOCKER_HOST env or the local socket).
func resolveHost(cfg config.DockerConfig) (string, error) {
	if cfg.Host != "" {
		return cfg.Host, nil
	}
	if os.Getenv(client.EnvOverrideHost) != "" {
		return "", nil
	}
	if cfg.ConfigFile == "" {
		return "", nil
	}

	data, err := os.ReadFile(cfg.ConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read docker config file: %w", err)
	}
	var fileCfg hostFileConfig
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return "", fmt.Errorf("failed to parse docker config file %s: %w", cfg.ConfigFile, err)
	}
	return fileCfg.Host, nil
}

// Launch creates and starts the worker container for an agent.
func (r *DockerRuntime) Launch(ctx context.Context, spec LaunchSpec) (string, error) {
	handle := HandleForAgent(spec.AgentID)

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	containerCfg := &container.Config{
		Image: r.config.Image,
		Env:   env,
		Labels: map[string]string{
			labelManaged: "true",
			labelScope:   r.config.Scope,
			labelAgentID: spec.AgentID,
		},
	}
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(r.config.Network),
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
	}

	resp, err := r.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, handle)
	if err != nil {
		if errdefs.IsConflict(err) {
			return "", apperr.Conflict("worker %s already exists", handle)
		}
		return "", apperr.Unavailable("failed to create worker %s: %v", handle, err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Clean up the half-launched container so the next attempt
		// does not hit the name conflict.
		_ = r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", apperr.Unavailable("failed to start worker %s: %v", handle, err)
	}

	r.logger.Info("Worker launched",
		zap.String("handle", handle),
		zap.String("agent_id", spec.AgentID),
	)
	return handle, nil
}

// Terminate stops and removes a worker container.
func (r *DockerRuntime) Terminate(ctx context.Context, handle string, graceSeconds int) error {
	stopOpts := container.StopOptions{}
	if graceSeconds > 0 {
		stopOpts.Timeout = &graceSeconds
	}

	if err := r.cli.ContainerStop(ctx, handle, stopOpts); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return apperr.Unavailable("failed to stop worker %s: %v", handle, err)
	}

	err := r.cli.ContainerRemove(ctx, handle, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return apperr.Unavailable("failed to remove worker %s: %v", handle, err)
	}

	r.logger.Info("Worker terminated", zap.String("handle", handle))
	return nil
}

// Inspect reports a worker's phase.
func (r *DockerRuntime) Inspect(ctx context.Context, handle string) (Phase, bool, error) {
	inspect, err := r.cli.ContainerInspect(ctx, handle)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, apperr.Unavailable("failed to inspect worker %s: %v", handle, err)
	}

	state := ""
	if inspect.State != nil {
		state = inspect.State.Status
	}
	return phaseFromContainerState(state), true, nil
}

// ListAll enumerates every container in this orchestrator's scope.
func (r *DockerRuntime) ListAll(ctx context.Context) ([]WorkerInfo, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", labelManaged+"=true")
	filterArgs.Add("label", labelScope+"="+r.config.Scope)

	containers, err := r.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, apperr.Unavailable("failed to list workers: %v", err)
	}

	infos := make([]WorkerInfo, 0, len(containers))
	for _, ctr := range containers {
		name := ""
		if len(ctr.Names) > 0 {
			name = strings.TrimPrefix(ctr.Names[0], "/")
		}
		infos = append(infos, WorkerInfo{
			Handle:  name,
			AgentID: ctr.Labels[labelAgentID],
			Phase:   phaseFromContainerState(ctr.State),
		})
	}
	return infos, nil
}

// phaseFromContainerState maps a Docker container state to a worker
// phase.
func phaseFromContainerState(state string) Phase {
	switch state {
	case "created", "restarting":
		return PhasePending
	case "running":
		return PhaseRunning
	default:
		// exited, dead, paused, removing
		return PhaseFailed
	}
}

// Ping checks that the Docker daemon is reachable.
func (r *DockerRuntime) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// Close closes the Docker client.
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}
