package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

// Reconciler brings single resources to a desired state. Every method is a
// no-op when the state already holds, and "already exists" from the runtime
// counts as success.
type Reconciler struct {
	rt  ports.Runtime
	log zerolog.Logger
}

func NewReconciler(rt ports.Runtime, log zerolog.Logger) *Reconciler {
	return &Reconciler{rt: rt, log: log}
}

// EnsureNetwork creates the network, with DNS resolution, if it is absent.
func (r *Reconciler) EnsureNetwork(ctx context.Context, name string) error {
	exists, err := r.rt.NetworkExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		r.skip(domain.Network(name), "already exists")
		return nil
	}

	r.create(domain.Network(name))
	if err := r.rt.NetworkCreate(ctx, name, true); err != nil && !errors.Is(err, domain.ErrConflict) {
		return err
	}
	return nil
}

// EnsureImage builds spec.Tag if it is absent. With recreate, an existing
// image is removed first and the build bypasses the cache.
func (r *Reconciler) EnsureImage(ctx context.Context, spec domain.BuildSpec, recreate bool) error {
	h := domain.Image(spec.Tag)
	exists, err := r.rt.ImageExists(ctx, spec.Tag)
	if err != nil {
		return err
	}

	if exists && recreate {
		r.log.Info().Str("kind", string(h.Kind)).Str("name", h.Name).Msg("removing image for rebuild")
		if err := r.rt.ImageRemove(ctx, spec.Tag); err != nil && !errors.Is(err, domain.ErrAbsent) {
			return err
		}
		exists = false
	}
	if exists {
		r.skip(h, "already exists")
		return nil
	}

	r.create(h)
	spec.NoCache = spec.NoCache || recreate
	if err := r.rt.ImageBuild(ctx, spec); err != nil {
		return fmt.Errorf("failed to build %s: %w", h, err)
	}
	return nil
}

// EnsureContainerCreated creates the container without starting it. It
// reports whether this call created it.
func (r *Reconciler) EnsureContainerCreated(ctx context.Context, spec domain.ContainerSpec) (bool, error) {
	h := domain.Container(spec.Name)
	exists, err := r.rt.ContainerExists(ctx, spec.Name)
	if err != nil {
		return false, err
	}
	if exists {
		r.skip(h, "already exists")
		return false, nil
	}

	r.create(h)
	if err := r.rt.ContainerCreate(ctx, spec); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EnsureContainerRunning starts the container unless it is already running.
// It reports whether this call started it.
func (r *Reconciler) EnsureContainerRunning(ctx context.Context, name string) (bool, error) {
	h := domain.Container(name)
	status, err := r.rt.ContainerStatus(ctx, name)
	if err != nil {
		return false, err
	}
	if status == domain.StatusRunning {
		r.skip(h, "already running")
		return false, nil
	}

	r.log.Info().Str("kind", string(h.Kind)).Str("name", h.Name).Msg("starting")
	if err := r.rt.ContainerStart(ctx, name); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) create(h domain.ResourceHandle) {
	r.log.Info().Str("kind", string(h.Kind)).Str("name", h.Name).Msg("creating")
}

func (r *Reconciler) skip(h domain.ResourceHandle, reason string) {
	r.log.Info().Str("kind", string(h.Kind)).Str("name", h.Name).Msgf("skipping, %s", reason)
}
