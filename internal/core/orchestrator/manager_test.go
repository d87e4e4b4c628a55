package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockatrice/testatrice/internal/adapters/fake"
	"github.com/cockatrice/testatrice/internal/config"
	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

type stubRenderer struct{}

func (stubRenderer) Render(template string, params map[string]string) (string, error) {
	return fmt.Sprintf("%s for %s on %s", template, params["server_identifier"], params["database_host"]), nil
}

// seqAllocator hands out increasing ports.
type seqAllocator struct{ next int }

func (a *seqAllocator) Ephemeral() (int, error) { a.next++; return a.next, nil }
func (a *seqAllocator) InUse(int) (bool, error) { return false, nil }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Readiness.DatabaseInterval = time.Millisecond
	cfg.Readiness.DatabaseDownAttempts = 3
	cfg.Readiness.ServerInterval = time.Millisecond
	cfg.Readiness.ServerAttempts = 3
	return cfg
}

func alwaysReady(context.Context, *domain.ServerInstance) (bool, error) { return true, nil }

func newTestManager(rt ports.Runtime, opts ...Option) *Manager {
	base := []Option{
		WithServerCheck(alwaysReady),
		WithAllocator(&seqAllocator{next: 50000}),
	}
	return NewManager(rt, stubRenderer{}, testConfig(), append(base, opts...)...)
}

func newInstance(t *testing.T, m *Manager, id string) *domain.ServerInstance {
	t.Helper()
	inst, err := m.NewServerInstance(context.Background(), domain.InstanceOptions{Identifier: id})
	require.NoError(t, err)
	return inst
}

func TestBuildEnvironment_Idempotent(t *testing.T) {
	ctx := context.Background()
	rt := fake.New()
	var phases []Phase
	m := newTestManager(rt, WithPhaseHook(func(p Phase) { phases = append(phases, p) }))

	require.NoError(t, m.BuildEnvironment(ctx, false))
	// network, 3 image builds, 2 container creates, 2 container starts
	assert.Equal(t, 8, rt.Mutations())
	assert.Equal(t, []Phase{PhaseUp1, PhaseDown, PhaseUp2}, phases)

	rt.ResetCalls()
	require.NoError(t, m.BuildEnvironment(ctx, false))
	assert.Zero(t, rt.Mutations())
	assert.Len(t, phases, 3, "readiness must not run against an already running database")

	cfg := testConfig()
	assert.True(t, rt.Networks[cfg.Network])
	assert.Equal(t, domain.StatusRunning, rt.Status(cfg.Database.Name))
	assert.Equal(t, domain.StatusRunning, rt.Status(cfg.Mailserver.Name))
	assert.Contains(t, rt.Images, cfg.Server.Name)
	assert.Empty(t, rt.Status(cfg.Server.Name), "base server image is never started")
}

func TestBuildEnvironment_Order(t *testing.T) {
	rt := fake.New()
	m := newTestManager(rt)
	require.NoError(t, m.BuildEnvironment(context.Background(), false))

	var order []string
	for _, c := range rt.Calls() {
		switch c.Op {
		case fake.OpNetworkCreate, fake.OpImageBuild, fake.OpContainerStart:
			order = append(order, c.Op+" "+c.Name)
		}
	}
	assert.Equal(t, []string{
		"NetworkCreate testatrice-network",
		"ImageBuild testatrice-database",
		"ContainerStart testatrice-database",
		"ImageBuild testatrice-mailserver",
		"ContainerStart testatrice-mailserver",
		"ImageBuild testatrice-server",
	}, order)
}

func TestBuildEnvironment_MailserverPorts(t *testing.T) {
	rt := fake.New()
	m := newTestManager(rt)
	require.NoError(t, m.BuildEnvironment(context.Background(), false))

	spec := rt.Containers["testatrice-mailserver"].Spec
	assert.Equal(t, []domain.PortBinding{
		{ContainerPort: 1110, HostPort: 1110},
		{ContainerPort: 1111, HostPort: 1111},
	}, spec.Ports)
	assert.Equal(t, "testatrice-network", spec.Network)
	assert.True(t, spec.AutoRemove)
}

func TestBuildEnvironment_Recreate(t *testing.T) {
	ctx := context.Background()
	rt := fake.New()
	m := newTestManager(rt)
	require.NoError(t, m.BuildEnvironment(ctx, false))

	rt.ResetCalls()
	require.NoError(t, m.BuildEnvironment(ctx, true))
	assert.Len(t, rt.CallsTo(fake.OpImageRemove), 3)
	assert.Len(t, rt.CallsTo(fake.OpImageBuild), 3)
	assert.True(t, rt.Images["testatrice-server"].NoCache)
	assert.Empty(t, rt.CallsTo(fake.OpContainerCreate), "running services are kept")
}

func TestBuildEnvironment_Connectivity(t *testing.T) {
	rt := fake.New()
	rt.SetError(fake.OpPing, errors.New("dial unix /var/run/docker.sock: connect: no such file"))
	m := newTestManager(rt)

	err := m.BuildEnvironment(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrConnectivity)
	assert.Len(t, rt.Calls(), 1)
}

func TestBuildEnvironment_DatabaseReadinessSequence(t *testing.T) {
	rt := fake.New()
	answers := []int{0, 1, 1, 1, 0}
	checks := 0
	rt.SetExec(func(container string, spec domain.ExecSpec) (domain.ExecResult, error) {
		if checks >= len(answers) {
			return domain.ExecResult{}, nil
		}
		code := answers[checks]
		checks++
		return domain.ExecResult{ExitCode: code}, nil
	})
	var phases []Phase
	m := newTestManager(rt, WithPhaseHook(func(p Phase) { phases = append(phases, p) }))

	require.NoError(t, m.BuildEnvironment(context.Background(), false))
	assert.Equal(t, 5, checks)
	assert.Equal(t, []Phase{PhaseUp1, PhaseDown, PhaseUp2}, phases)
	for _, e := range rt.Execs() {
		assert.Equal(t, "testatrice-database", e.Container)
		assert.Equal(t, []string{"mysql", "-e", "SELECT 1"}, e.Spec.Cmd)
	}
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	rt := fake.New()
	m := newTestManager(rt)
	inst, err := m.NewServerInstance(ctx, domain.InstanceOptions{Identifier: "alpha", LogPath: "/tmp/alpha-logs"})
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx, inst))

	c, ok := rt.Containers["testatrice-server-alpha"]
	require.True(t, ok)
	assert.Equal(t, domain.StatusRunning, c.Status)
	assert.Equal(t, "testatrice-server", c.Spec.Image)
	assert.Equal(t, "testatrice-server-alpha", c.Spec.Hostname)
	assert.Equal(t, []domain.PortBinding{
		{ContainerPort: 4747, HostPort: inst.TCPPort()},
		{ContainerPort: 4748, HostPort: inst.WebSocketPort()},
	}, c.Spec.Ports)
	assert.Equal(t, []domain.Mount{{Source: "/tmp/alpha-logs", Target: "/var/log/servatrice"}}, c.Spec.Mounts)

	var seed, write *fake.ExecCall
	for _, e := range rt.Execs() {
		switch {
		case e.Container == "testatrice-database" && e.Spec.Stdin != "":
			seed = &e
		case e.Container == "testatrice-server-alpha":
			write = &e
		}
	}
	require.NotNil(t, seed)
	assert.Equal(t, "root", seed.Spec.User)
	assert.Equal(t, "testatrice.sql for alpha on testatrice-database", seed.Spec.Stdin)

	require.NotNil(t, write)
	assert.Equal(t, "root", write.Spec.User)
	assert.Equal(t, "testatrice.ini for alpha on testatrice-database", write.Spec.Stdin)
	assert.Contains(t, write.Spec.Cmd, "/home/servatrice/config/testatrice.ini")
}

func TestStart_ConflictOnSameIdentifier(t *testing.T) {
	ctx := context.Background()
	rt := fake.New()
	m := newTestManager(rt)
	require.NoError(t, m.Start(ctx, newInstance(t, m, "alpha")))

	rt.ResetCalls()
	err := m.Start(ctx, newInstance(t, m, "alpha"))
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Zero(t, rt.Mutations())
	assert.Equal(t, []fake.Call{
		{Op: fake.OpPing},
		{Op: fake.OpContainerExists, Name: "testatrice-server-alpha"},
	}, rt.Calls())
}

func TestStart_SeedFailure(t *testing.T) {
	rt := fake.New()
	rt.SetExec(func(container string, spec domain.ExecSpec) (domain.ExecResult, error) {
		if spec.Stdin != "" && container == "testatrice-database" {
			return domain.ExecResult{ExitCode: 1, Output: "ERROR 1064 (42000)"}, nil
		}
		return domain.ExecResult{}, nil
	})
	m := newTestManager(rt)

	err := m.Start(context.Background(), newInstance(t, m, "alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERROR 1064")
	assert.Empty(t, rt.Status("testatrice-server-alpha"), "server container is not created after a failed seed")
}

func TestStart_ServerNeverReady(t *testing.T) {
	checks := 0
	m := newTestManager(fake.New(), WithServerCheck(func(context.Context, *domain.ServerInstance) (bool, error) {
		checks++
		return false, nil
	}))

	err := m.Start(context.Background(), newInstance(t, m, "alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not accept clients")
	assert.Equal(t, 3, checks)
}

func TestStart_Connectivity(t *testing.T) {
	rt := fake.New()
	m := newTestManager(rt)
	inst := newInstance(t, m, "alpha")
	rt.SetError(fake.OpPing, domain.Connectivity("ping", nil))

	assert.ErrorIs(t, m.Start(context.Background(), inst), domain.ErrConnectivity)
	assert.Zero(t, rt.Mutations())
}

func TestStopScoping(t *testing.T) {
	ctx := context.Background()
	rt := fake.New()
	m := newTestManager(rt)
	require.NoError(t, m.Start(ctx, newInstance(t, m, "a")))
	require.NoError(t, m.Start(ctx, newInstance(t, m, "b")))

	require.NoError(t, m.StopAllServers(ctx))
	assert.Empty(t, rt.Status("testatrice-server-a"))
	assert.Empty(t, rt.Status("testatrice-server-b"))
	assert.Equal(t, domain.StatusRunning, rt.Status("testatrice-database"))
	assert.Equal(t, domain.StatusRunning, rt.Status("testatrice-mailserver"))

	require.NoError(t, m.DestroyEnvironment(ctx))
	assert.Empty(t, rt.Status("testatrice-database"))
	assert.Empty(t, rt.Status("testatrice-mailserver"))
	assert.True(t, rt.Networks["testatrice-network"], "network is kept")
	assert.Len(t, rt.Images, 3, "images are kept")
}

func TestStopAllServers_LeavesStoppedAlone(t *testing.T) {
	rt := fake.New()
	rt.AddContainer("testatrice-server-idle", domain.StatusExited)
	rt.AddContainer("testatrice-server-busy", domain.StatusRunning)
	m := newTestManager(rt)

	require.NoError(t, m.StopAllServers(context.Background()))
	assert.Equal(t, []fake.Call{{Op: fake.OpContainerStop, Name: "testatrice-server-busy"}}, rt.CallsTo(fake.OpContainerStop))
}

func TestDestroyEnvironment_NothingRunning(t *testing.T) {
	rt := fake.New()
	m := newTestManager(rt)

	require.NoError(t, m.DestroyEnvironment(context.Background()))
	assert.Zero(t, rt.Mutations())
}

func TestStopServer_Absent(t *testing.T) {
	rt := fake.New()
	m := newTestManager(rt)

	err := m.StopServer(context.Background(), "never")
	assert.ErrorIs(t, err, domain.ErrAbsent)
	assert.Empty(t, rt.CallsTo(fake.OpContainerStop))
}

func TestStopServer_NotRunning(t *testing.T) {
	rt := fake.New()
	rt.AddContainer("testatrice-server-idle", domain.StatusCreated)
	m := newTestManager(rt)

	err := m.StopServer(context.Background(), "idle")
	assert.ErrorIs(t, err, domain.ErrAbsent)
	assert.Empty(t, rt.CallsTo(fake.OpContainerStop))
}

func TestStop_InstanceCanRestart(t *testing.T) {
	ctx := context.Background()
	rt := fake.New()
	m := newTestManager(rt)
	inst := newInstance(t, m, "alpha")

	require.NoError(t, m.Start(ctx, inst))
	require.NoError(t, m.Stop(ctx, inst))
	assert.ErrorIs(t, m.Stop(ctx, inst), domain.ErrAbsent)
	require.NoError(t, m.Start(ctx, inst))
}

func TestNewServerInstance_RedrawsTakenIdentifier(t *testing.T) {
	rt := fake.New()
	rt.AddContainer("testatrice-server-taken", domain.StatusRunning)
	ids := []string{"taken", "fresh"}
	m := newTestManager(rt, WithIdentifierGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))

	inst, err := m.NewServerInstance(context.Background(), domain.InstanceOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fresh", inst.Identifier())
}

func TestNewServerInstance_GiveUp(t *testing.T) {
	rt := fake.New()
	rt.AddContainer("testatrice-server-taken", domain.StatusRunning)
	m := newTestManager(rt, WithIdentifierGenerator(func() string { return "taken" }))

	_, err := m.NewServerInstance(context.Background(), domain.InstanceOptions{})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, rt.CallsTo(fake.OpContainerExists), maxIdentifierAttempts)
}

func TestListServers(t *testing.T) {
	rt := fake.New()
	rt.AddContainer("testatrice-server-b", domain.StatusRunning)
	rt.AddContainer("testatrice-server-a", domain.StatusExited)
	rt.AddContainer("testatrice-database", domain.StatusRunning)
	m := newTestManager(rt)

	servers, err := m.ListServers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ServerInfo{
		{Identifier: "a", ContainerName: "testatrice-server-a", Status: domain.StatusExited},
		{Identifier: "b", ContainerName: "testatrice-server-b", Status: domain.StatusRunning},
	}, servers)
}
