package ports

import (
	"context"

	"github.com/cockatrice/testatrice/internal/core/domain"
)

// Runtime defines the container backend operations the orchestrator relies on.
// Resources are addressed by name. Implementations report missing resources
// with domain.ErrAbsent, duplicates with domain.ErrConflict and an unreachable
// backend with domain.ErrConnectivity.
type Runtime interface {
	Ping(ctx context.Context) error

	NetworkExists(ctx context.Context, name string) (bool, error)
	NetworkCreate(ctx context.Context, name string, dnsEnabled bool) error

	ImageExists(ctx context.Context, name string) (bool, error)
	ImageRemove(ctx context.Context, name string) error
	ImageBuild(ctx context.Context, spec domain.BuildSpec) error

	ContainerExists(ctx context.Context, name string) (bool, error)
	ContainerStatus(ctx context.Context, name string) (domain.ContainerStatus, error)
	ContainerCreate(ctx context.Context, spec domain.ContainerSpec) error
	ContainerStart(ctx context.Context, name string) error
	ContainerStop(ctx context.Context, name string) error
	ContainerExec(ctx context.Context, name string, spec domain.ExecSpec) (domain.ExecResult, error)
	ContainerList(ctx context.Context) ([]domain.ContainerInfo, error)
}
