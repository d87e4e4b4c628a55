package ports

import (
	"context"

	"github.com/cockatrice/testatrice/internal/core/domain"
)

// Template names understood by a Renderer.
const (
	TemplateServerConfig = "testatrice.ini"
	TemplateDatabaseSeed = "testatrice.sql"
)

// Renderer turns a parameter mapping into a configuration document.
type Renderer interface {
	Render(template string, params map[string]string) (string, error)
}

// EnvironmentService is the lifecycle surface consumed by the CLI and the
// HTTP API.
type EnvironmentService interface {
	BuildEnvironment(ctx context.Context, recreate bool) error
	DestroyEnvironment(ctx context.Context) error

	NewServerInstance(ctx context.Context, opts domain.InstanceOptions) (*domain.ServerInstance, error)
	Start(ctx context.Context, instance *domain.ServerInstance) error
	Stop(ctx context.Context, instance *domain.ServerInstance) error
	StopServer(ctx context.Context, identifier string) error
	StopAllServers(ctx context.Context) error
	ListServers(ctx context.Context) ([]domain.ServerInfo, error)
}

// TokenSource retrieves account tokens captured by the mail fixture.
type TokenSource interface {
	Activation(ctx context.Context, username string) (string, error)
	PasswordReset(ctx context.Context, username string) (string, error)
}
