package ports

import (
	"context"

	"github.com/cockatrice/testatrice/internal/core/domain"
)

// BuilderService defines operations for building container images from a
// local directory or a git repository.
type BuilderService interface {
	BuildImage(ctx context.Context, spec domain.BuildSpec) error
}
