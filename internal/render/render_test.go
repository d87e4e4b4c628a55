package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/orchestrator"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

func params(mutate func(*domain.ConfigurationProfile)) map[string]string {
	p := domain.DefaultProfile()
	p.ServerIdentifier = "brave_lovelace"
	if mutate != nil {
		mutate(&p)
	}
	m := orchestrator.Assemble(p)
	m["database_host"] = "testatrice-database"
	m["mailserver_host"] = "testatrice-mailserver"
	m["tcp_port"] = "4747"
	m["websocket_port"] = "4748"
	return m
}

func TestRender_ServerConfig(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	out, err := r.Render(ports.TemplateServerConfig, params(func(p *domain.ConfigurationProfile) {
		p.EnableRegistration = true
	}))
	require.NoError(t, err)
	assert.Contains(t, out, `name="brave_lovelace"`)
	assert.Contains(t, out, "[registration]\nenabled=true\nrequireemail=false")
	assert.Contains(t, out, "method=sql")
	assert.Contains(t, out, "hostname=testatrice-database")
	assert.Contains(t, out, "host=testatrice-mailserver")
	assert.Contains(t, out, `body="%username|Activation|%token"`)
	assert.Contains(t, out, "websocket_port=4748")
}

func TestRender_DatabaseSeed(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	out, err := r.Render(ports.TemplateDatabaseSeed, params(nil))
	require.NoError(t, err)
	assert.Contains(t, out, "'brave_lovelace'")
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS `brave_lovelace_users` LIKE `cockatrice_users`;")
	assert.Contains(t, out, "INSERT INTO `brave_lovelace_servers`")
	assert.NotContains(t, out, "_rooms` (id")

	out, err = r.Render(ports.TemplateDatabaseSeed, params(func(p *domain.ConfigurationProfile) {
		p.RoomsMethod = domain.RoomsSQL
	}))
	require.NoError(t, err)
	assert.Contains(t, out, "INSERT INTO `brave_lovelace_rooms` (id")
	assert.Contains(t, out, "INSERT IGNORE INTO `brave_lovelace_rooms_gametypes`")
	assert.NotContains(t, out, "INSERT INTO `cockatrice_")
}

func TestRender_InstancesAreIsolated(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	render := func(name, id string) string {
		out, err := r.Render(name, params(func(p *domain.ConfigurationProfile) {
			p.ServerIdentifier = id
			p.RoomsMethod = domain.RoomsSQL
		}))
		require.NoError(t, err)
		return out
	}

	alpha := render(ports.TemplateServerConfig, "alpha")
	bravo := render(ports.TemplateServerConfig, "bravo")
	assert.Contains(t, alpha, "prefix=alpha\n")
	assert.Contains(t, bravo, "prefix=bravo\n")
	assert.Contains(t, alpha, "logfile=/var/log/servatrice/alpha.log")
	assert.Contains(t, bravo, "logfile=/var/log/servatrice/bravo.log")
	assert.Contains(t, alpha, "email=alpha@testatrice-mailserver")
	assert.Contains(t, bravo, "email=bravo@testatrice-mailserver")
	assert.NotContains(t, alpha, "bravo")
	assert.NotContains(t, bravo, "alpha")
	assert.NotContains(t, alpha, "prefix=cockatrice")

	alphaSeed := render(ports.TemplateDatabaseSeed, "alpha")
	bravoSeed := render(ports.TemplateDatabaseSeed, "bravo")
	assert.Contains(t, alphaSeed, "INSERT INTO `alpha_servers`")
	assert.Contains(t, bravoSeed, "INSERT INTO `bravo_servers`")
	assert.NotContains(t, alphaSeed, "bravo")
	assert.NotContains(t, bravoSeed, "alpha")
}

func TestRender_MissingParameter(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	_, err = r.Render(ports.TemplateServerConfig, map[string]string{"server_identifier": "x"})
	assert.Error(t, err)
}

func TestRender_UnknownTemplate(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	_, err = r.Render("nope.ini", nil)
	assert.ErrorContains(t, err, "unknown template")
}

func TestNew_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.ini")
	require.NoError(t, os.WriteFile(path, []byte("id={{.server_identifier}} auth={{.authentication_method}}"), 0o644))

	r, err := New(map[string]string{ports.TemplateServerConfig: path})
	require.NoError(t, err)

	out, err := r.Render(ports.TemplateServerConfig, params(nil))
	require.NoError(t, err)
	assert.Equal(t, "id=brave_lovelace auth=sql", out)
}

func TestNew_BadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.sql")
	require.NoError(t, os.WriteFile(path, []byte("{{.unterminated"), 0o644))

	_, err := New(map[string]string{ports.TemplateDatabaseSeed: path})
	assert.ErrorContains(t, err, "failed to parse template")

	_, err = New(map[string]string{ports.TemplateDatabaseSeed: filepath.Join(t.TempDir(), "missing.sql")})
	assert.ErrorContains(t, err, "failed to read template")
}
