package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cockatrice/testatrice/internal/adapters/builder"
	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

// API is the subset of the Docker client the adapter uses.
type API interface {
	Ping(ctx context.Context) (types.Ping, error)
	NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (image.InspectResponse, []byte, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

// Options configures the adapter.
type Options struct {
	// Labels are applied to every created network, image and container.
	// ContainerList only returns containers carrying all of them.
	Labels      map[string]string
	StopTimeout time.Duration
	Log         zerolog.Logger
}

// Adapter implements ports.Runtime using the Docker SDK.
type Adapter struct {
	cli     API
	builder ports.BuilderService
	opts    Options
}

var _ ports.Runtime = (*Adapter)(nil)

// NewAdapter creates a Docker adapter from the environment (DOCKER_HOST etc.).
func NewAdapter(opts Options) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return New(cli, builder.NewBuilderAdapter(cli, opts.Log, opts.Labels), opts), nil
}

// New wraps an existing client.
func New(cli API, b ports.BuilderService, opts Options) *Adapter {
	return &Adapter{cli: cli, builder: b, opts: opts}
}

func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return domain.Connectivity("ping", err)
	}
	return nil
}

func (a *Adapter) NetworkExists(ctx context.Context, name string) (bool, error) {
	_, err := a.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	return exists("inspect", domain.Network(name), err)
}

// NetworkCreate creates a bridge network. User-defined bridge networks
// always resolve container names, so dnsEnabled needs no extra option.
func (a *Adapter) NetworkCreate(ctx context.Context, name string, dnsEnabled bool) error {
	_, err := a.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: a.opts.Labels,
	})
	return classify("create", domain.Network(name), err)
}

func (a *Adapter) ImageExists(ctx context.Context, name string) (bool, error) {
	_, _, err := a.cli.ImageInspectWithRaw(ctx, name)
	return exists("inspect", domain.Image(name), err)
}

func (a *Adapter) ImageRemove(ctx context.Context, name string) error {
	_, err := a.cli.ImageRemove(ctx, name, image.RemoveOptions{Force: true, PruneChildren: true})
	return classify("remove", domain.Image(name), err)
}

func (a *Adapter) ImageBuild(ctx context.Context, spec domain.BuildSpec) error {
	return classify("build", domain.Image(spec.Tag), a.builder.BuildImage(ctx, spec))
}

func (a *Adapter) ContainerExists(ctx context.Context, name string) (bool, error) {
	_, err := a.cli.ContainerInspect(ctx, name)
	return exists("inspect", domain.Container(name), err)
}

func (a *Adapter) ContainerStatus(ctx context.Context, name string) (domain.ContainerStatus, error) {
	info, err := a.cli.ContainerInspect(ctx, name)
	if err != nil {
		return "", classify("inspect", domain.Container(name), err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return "", nil
	}
	return domain.ContainerStatus(info.State.Status), nil
}

// ContainerCreate creates (but does not start) a container.
func (a *Adapter) ContainerCreate(ctx context.Context, spec domain.ContainerSpec) error {
	exposed, bindings, err := portMaps(spec.Ports)
	if err != nil {
		return err
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		Hostname:     spec.Hostname,
		ExposedPorts: exposed,
		Labels:       a.opts.Labels,
	}
	hostCfg := &container.HostConfig{
		AutoRemove:   spec.AutoRemove,
		PortBindings: bindings,
		Mounts:       mounts(spec.Mounts),
	}
	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.Network)
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: []string{spec.Hostname}},
			},
		}
	}

	_, err = a.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	return classify("create", domain.Container(spec.Name), err)
}

func (a *Adapter) ContainerStart(ctx context.Context, name string) error {
	return classify("start", domain.Container(name), a.cli.ContainerStart(ctx, name, container.StartOptions{}))
}

func (a *Adapter) ContainerStop(ctx context.Context, name string) error {
	opts := container.StopOptions{}
	if a.opts.StopTimeout > 0 {
		secs := int(a.opts.StopTimeout / time.Second)
		opts.Timeout = &secs
	}
	return classify("stop", domain.Container(name), a.cli.ContainerStop(ctx, name, opts))
}

// ContainerExec runs spec.Cmd in a running container and waits for it.
// Stdout and stderr are combined in the result.
func (a *Adapter) ContainerExec(ctx context.Context, name string, spec domain.ExecSpec) (domain.ExecResult, error) {
	h := domain.Container(name)
	created, err := a.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		User:         spec.User,
		AttachStdin:  spec.Stdin != "",
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          spec.Cmd,
	})
	if err != nil {
		return domain.ExecResult{}, classify("exec", h, err)
	}

	resp, err := a.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return domain.ExecResult{}, classify("exec", h, err)
	}
	defer resp.Close()

	var out bytes.Buffer
	var g errgroup.Group
	if spec.Stdin != "" {
		g.Go(func() error {
			if _, err := io.Copy(resp.Conn, strings.NewReader(spec.Stdin)); err != nil {
				return fmt.Errorf("failed to write exec stdin: %w", err)
			}
			return resp.CloseWrite()
		})
	}
	g.Go(func() error {
		if _, err := stdcopy.StdCopy(&out, &out, resp.Reader); err != nil {
			return fmt.Errorf("failed to read exec output: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.ExecResult{}, err
	}

	inspect, err := a.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return domain.ExecResult{}, classify("exec", h, err)
	}
	return domain.ExecResult{ExitCode: inspect.ExitCode, Output: out.String()}, nil
}

// ContainerList lists every container, running or not, carrying the
// adapter's labels.
func (a *Adapter) ContainerList(ctx context.Context) ([]domain.ContainerInfo, error) {
	args := filters.NewArgs()
	for k, v := range a.opts.Labels {
		args.Add("label", k+"="+v)
	}
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, classify("list", domain.Container("*"), err)
	}

	result := make([]domain.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		id := c.ID
		if len(id) > 12 {
			id = id[:12]
		}
		result = append(result, domain.ContainerInfo{
			ID:     id,
			Name:   name,
			Image:  c.Image,
			Status: domain.ContainerStatus(c.State),
		})
	}
	return result, nil
}

func portMaps(ports []domain.PortBinding) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(p.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid container port %d: %w", p.ContainerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{HostPort: strconv.Itoa(p.HostPort)})
	}
	return exposed, bindings, nil
}

func mounts(in []domain.Mount) []mount.Mount {
	var out []mount.Mount
	for _, m := range in {
		out = append(out, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return out
}

// exists turns a not-found inspect error into (false, nil).
func exists(op string, h domain.ResourceHandle, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if cerrdefs.IsNotFound(err) {
		return false, nil
	}
	return false, classify(op, h, err)
}

// classify maps Docker errors onto the domain error kinds.
func classify(op string, h domain.ResourceHandle, err error) error {
	if err == nil {
		return nil
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	switch {
	case client.IsErrConnectionFailed(err):
		return domain.Connectivity(op, err)
	case cerrdefs.IsNotFound(err):
		return &domain.Error{Kind: domain.ErrAbsent, Op: op, Resource: h.String(), Err: err}
	case cerrdefs.IsConflict(err):
		return &domain.Error{Kind: domain.ErrConflict, Op: op, Resource: h.String(), Err: err}
	}
	return fmt.Errorf("failed to %s %s: %w", op, h, err)
}
