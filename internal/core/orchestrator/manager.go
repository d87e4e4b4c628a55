package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cockatrice/testatrice/internal/config"
	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
	"github.com/cockatrice/testatrice/internal/identifier"
	"github.com/cockatrice/testatrice/internal/netport"
)

const maxIdentifierAttempts = 10

// Manager provisions the shared environment and manages server instances on
// top of it. Calls are not meant to run concurrently against one environment.
type Manager struct {
	rt         ports.Runtime
	renderer   ports.Renderer
	cfg        config.Config
	log        zerolog.Logger
	reconciler *Reconciler
	check      ServerCheck
	alloc      netport.Allocator
	generate   func() string
	onPhase    func(Phase)
}

var _ ports.EnvironmentService = (*Manager)(nil)

type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithServerCheck replaces the WebSocket readiness check run after start.
func WithServerCheck(p ServerCheck) Option {
	return func(m *Manager) { m.check = p }
}

// WithAllocator replaces the host port allocator.
func WithAllocator(a netport.Allocator) Option {
	return func(m *Manager) { m.alloc = a }
}

// WithIdentifierGenerator replaces the random identifier generator.
func WithIdentifierGenerator(fn func() string) Option {
	return func(m *Manager) { m.generate = fn }
}

// WithPhaseHook is called as each database readiness phase begins.
func WithPhaseHook(fn func(Phase)) Option {
	return func(m *Manager) { m.onPhase = fn }
}

func NewManager(rt ports.Runtime, renderer ports.Renderer, cfg config.Config, opts ...Option) *Manager {
	m := &Manager{
		rt:       rt,
		renderer: renderer,
		cfg:      cfg,
		log:      zerolog.Nop(),
		alloc:    netport.System{},
		generate: identifier.Generate,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.check == nil {
		m.check = WebSocketCheck(cfg.Readiness.ServerInterval)
	}
	m.reconciler = NewReconciler(rt, m.log)
	return m
}

// BuildEnvironment provisions the network, the database, the mail capture
// service and the base server image, in that order. The database readiness
// protocol runs whenever this call starts the database container.
func (m *Manager) BuildEnvironment(ctx context.Context, recreate bool) error {
	if err := m.ping(ctx); err != nil {
		return err
	}
	return m.buildEnvironment(ctx, recreate)
}

func (m *Manager) buildEnvironment(ctx context.Context, recreate bool) error {
	if err := m.reconciler.EnsureNetwork(ctx, m.cfg.Network); err != nil {
		return err
	}

	db := m.cfg.Database
	started, err := m.ensureService(ctx, db, nil, recreate)
	if err != nil {
		return err
	}
	if started {
		m.log.Info().Str("name", db.Name).Msg("waiting for database to finish initialization")
		d := Detector{
			Interval:     m.cfg.Readiness.DatabaseInterval,
			DownAttempts: m.cfg.Readiness.DatabaseDownAttempts,
			Log:          m.log,
			OnPhase:      m.onPhase,
		}
		if err := d.Wait(ctx, databaseCheck(m.rt, db.Name)); err != nil {
			return fmt.Errorf("database %s: %w", db.Name, err)
		}
		m.log.Info().Str("name", db.Name).Msg("database ready")
	}

	mail := m.cfg.Mailserver
	published := []domain.PortBinding{
		{ContainerPort: mail.ActivationPort, HostPort: mail.ActivationPort},
		{ContainerPort: mail.PasswordResetPort, HostPort: mail.PasswordResetPort},
	}
	if _, err := m.ensureService(ctx, mail.Service, published, recreate); err != nil {
		return err
	}

	return m.reconciler.EnsureImage(ctx, m.buildSpec(m.cfg.Server.Service), recreate)
}

// ensureService reconciles the image, container and running state of a
// shared service. It reports whether the container was started by this call.
func (m *Manager) ensureService(ctx context.Context, svc config.Service, published []domain.PortBinding, recreate bool) (bool, error) {
	if err := m.reconciler.EnsureImage(ctx, m.buildSpec(svc), recreate); err != nil {
		return false, err
	}
	if _, err := m.reconciler.EnsureContainerCreated(ctx, domain.ContainerSpec{
		Name:       svc.Name,
		Image:      svc.Name,
		Hostname:   svc.Name,
		Network:    m.cfg.Network,
		Ports:      published,
		AutoRemove: true,
	}); err != nil {
		return false, err
	}
	return m.reconciler.EnsureContainerRunning(ctx, svc.Name)
}

func (m *Manager) buildSpec(svc config.Service) domain.BuildSpec {
	return domain.BuildSpec{
		Tag:        svc.Name,
		ContextDir: m.cfg.Build.ContextDir,
		Repository: m.cfg.Build.Repository,
		Ref:        m.cfg.Build.Ref,
		Dockerfile: svc.Dockerfile,
	}
}

// NewServerInstance resolves a new instance. A generated identifier is
// redrawn while a container with the derived name already exists.
func (m *Manager) NewServerInstance(ctx context.Context, opts domain.InstanceOptions) (*domain.ServerInstance, error) {
	if opts.Identifier == "" {
		if err := m.ping(ctx); err != nil {
			return nil, err
		}
		id, err := m.unusedIdentifier(ctx)
		if err != nil {
			return nil, err
		}
		opts.Identifier = id
	}
	return newServerInstance(m.cfg.Server.Name, opts, m.alloc, m.generate)
}

func (m *Manager) unusedIdentifier(ctx context.Context) (string, error) {
	for range maxIdentifierAttempts {
		id := m.generate()
		exists, err := m.rt.ContainerExists(ctx, ContainerName(m.cfg.Server.Name, id))
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
		m.log.Debug().Str("identifier", id).Msg("identifier taken, drawing another")
	}
	return "", domain.Conflict("new server instance", "identifier",
		fmt.Sprintf("no unused identifier after %d attempts", maxIdentifierAttempts))
}

// Start provisions the environment, seeds the database, then creates, starts
// and configures the instance container and waits until it accepts
// WebSocket clients. A failure may leave the container behind.
func (m *Manager) Start(ctx context.Context, instance *domain.ServerInstance) error {
	if err := m.ping(ctx); err != nil {
		return err
	}

	name := instance.ContainerName()
	exists, err := m.rt.ContainerExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return domain.Conflict("start", domain.Container(name).String(),
			fmt.Sprintf("a test server with identifier %s already exists", instance.Identifier()))
	}

	if err := m.buildEnvironment(ctx, false); err != nil {
		return err
	}

	params := m.parameters(instance)
	ini, err := m.renderer.Render(ports.TemplateServerConfig, params)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", ports.TemplateServerConfig, err)
	}
	sql, err := m.renderer.Render(ports.TemplateDatabaseSeed, params)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", ports.TemplateDatabaseSeed, err)
	}

	m.log.Info().Str("name", m.cfg.Database.Name).Msg("seeding database")
	if err := m.exec(ctx, m.cfg.Database.Name, domain.ExecSpec{
		Cmd:   []string{"mysql"},
		User:  "root",
		Stdin: sql,
	}); err != nil {
		return fmt.Errorf("failed to seed database: %w", err)
	}

	spec := domain.ContainerSpec{
		Name:     name,
		Image:    m.cfg.Server.Name,
		Hostname: name,
		Network:  m.cfg.Network,
		Ports: []domain.PortBinding{
			{ContainerPort: m.cfg.Server.TCPPort, HostPort: instance.TCPPort()},
			{ContainerPort: m.cfg.Server.WebSocketPort, HostPort: instance.WebSocketPort()},
		},
		AutoRemove: true,
	}
	if instance.LogPath() != "" {
		spec.Mounts = []domain.Mount{{Source: instance.LogPath(), Target: m.cfg.Server.LogDir}}
		m.log.Info().Str("name", name).Str("log_path", instance.LogPath()).Msg("starting server with logging on host")
	} else {
		m.log.Info().Str("name", name).Msg("starting server without logging on host")
	}
	if _, err := m.reconciler.EnsureContainerCreated(ctx, spec); err != nil {
		return err
	}
	if err := m.rt.ContainerStart(ctx, name); err != nil {
		return err
	}

	m.log.Info().Str("name", name).Str("path", m.cfg.Server.ConfigPath).Msg("writing server configuration")
	if err := m.exec(ctx, name, domain.ExecSpec{
		Cmd:   []string{"sh", "-c", `cat > "$1.tmp" && mv "$1.tmp" "$1"`, "sh", m.cfg.Server.ConfigPath},
		User:  "root",
		Stdin: ini,
	}); err != nil {
		return fmt.Errorf("failed to write server configuration: %w", err)
	}

	m.log.Info().Str("name", name).Str("url", instance.WebSocketURL()).Msg("waiting for server to accept clients")
	err = Poll(ctx, m.cfg.Readiness.ServerInterval, m.cfg.Readiness.ServerAttempts, func(ctx context.Context) (bool, error) {
		return m.check(ctx, instance)
	})
	if errors.Is(err, ErrPollExhausted) {
		return fmt.Errorf("server %s did not accept clients after %d attempts", name, m.cfg.Readiness.ServerAttempts)
	}
	return err
}

// parameters merges the instance profile with the environment's addresses.
func (m *Manager) parameters(instance *domain.ServerInstance) map[string]string {
	params := Assemble(instance.Profile())
	params["database_host"] = m.cfg.Database.Name
	params["mailserver_host"] = m.cfg.Mailserver.Name
	params["tcp_port"] = strconv.Itoa(m.cfg.Server.TCPPort)
	params["websocket_port"] = strconv.Itoa(m.cfg.Server.WebSocketPort)
	return params
}

func (m *Manager) exec(ctx context.Context, container string, spec domain.ExecSpec) error {
	res, err := m.rt.ContainerExec(ctx, container, spec)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited with code %d: %s", spec.Cmd[0], res.ExitCode, strings.TrimSpace(res.Output))
	}
	return nil
}

// Stop stops the container of instance. The instance can be started again
// once the container is gone.
func (m *Manager) Stop(ctx context.Context, instance *domain.ServerInstance) error {
	if err := m.ping(ctx); err != nil {
		return err
	}
	return m.stopRunning(ctx, instance.ContainerName())
}

// StopServer stops the instance container derived from identifier.
func (m *Manager) StopServer(ctx context.Context, id string) error {
	if err := m.ping(ctx); err != nil {
		return err
	}
	return m.stopRunning(ctx, ContainerName(m.cfg.Server.Name, id))
}

// stopRunning fails with domain.ErrAbsent unless name exists and is running.
func (m *Manager) stopRunning(ctx context.Context, name string) error {
	h := domain.Container(name).String()
	exists, err := m.rt.ContainerExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return domain.Absent("stop", h, "does not exist")
	}
	status, err := m.rt.ContainerStatus(ctx, name)
	if err != nil {
		return err
	}
	if status != domain.StatusRunning {
		return domain.Absent("stop", h, fmt.Sprintf("is not running (%s)", status))
	}

	m.log.Info().Str("name", name).Msg("stopping")
	return m.rt.ContainerStop(ctx, name)
}

// StopAllServers stops every running server container. The shared services
// are left alone.
func (m *Manager) StopAllServers(ctx context.Context) error {
	if err := m.ping(ctx); err != nil {
		return err
	}
	return m.stopAllServers(ctx)
}

func (m *Manager) stopAllServers(ctx context.Context) error {
	servers, err := m.listServers(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, s := range servers {
		if s.Status != domain.StatusRunning {
			m.log.Debug().Str("name", s.ContainerName).Str("status", string(s.Status)).Msg("not running, leaving as is")
			continue
		}
		m.log.Info().Str("name", s.ContainerName).Msg("stopping")
		if err := m.rt.ContainerStop(ctx, s.ContainerName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DestroyEnvironment stops all server containers, then the mail capture and
// database containers. Images and the network are kept for reuse.
func (m *Manager) DestroyEnvironment(ctx context.Context) error {
	if err := m.ping(ctx); err != nil {
		return err
	}
	if err := m.stopAllServers(ctx); err != nil {
		return err
	}

	for _, name := range []string{m.cfg.Mailserver.Name, m.cfg.Database.Name} {
		err := m.stopRunning(ctx, name)
		if errors.Is(err, domain.ErrAbsent) {
			m.log.Info().Str("name", name).Msg(err.Error())
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ListServers returns the server containers known to the runtime, sorted by
// container name.
func (m *Manager) ListServers(ctx context.Context) ([]domain.ServerInfo, error) {
	if err := m.ping(ctx); err != nil {
		return nil, err
	}
	return m.listServers(ctx)
}

func (m *Manager) listServers(ctx context.Context) ([]domain.ServerInfo, error) {
	containers, err := m.rt.ContainerList(ctx)
	if err != nil {
		return nil, err
	}

	prefix := ContainerName(m.cfg.Server.Name, "")
	var servers []domain.ServerInfo
	for _, c := range containers {
		if !strings.HasPrefix(c.Name, prefix) {
			continue
		}
		servers = append(servers, domain.ServerInfo{
			Identifier:    strings.TrimPrefix(c.Name, prefix),
			ContainerName: c.Name,
			Status:        c.Status,
		})
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ContainerName < servers[j].ContainerName })
	return servers, nil
}

func (m *Manager) ping(ctx context.Context) error {
	if err := m.rt.Ping(ctx); err != nil {
		if errors.Is(err, domain.ErrConnectivity) {
			return err
		}
		return domain.Connectivity("ping", err)
	}
	return nil
}
