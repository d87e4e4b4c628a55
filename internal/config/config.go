// Package config holds the fixed names, paths and timings the orchestrator
// works with, and loads overrides from a YAML file and the environment.
package config

import "time"

// Config is passed by value to the orchestrator and never mutated after load.
type Config struct {
	// Network every container joins. Containers resolve each other by hostname.
	Network string `mapstructure:"network"`
	// LabelPrefix namespaces the labels put on created resources.
	LabelPrefix string `mapstructure:"label_prefix"`

	Database    Service       `mapstructure:"database"`
	Mailserver  Mailserver    `mapstructure:"mailserver"`
	Server      Server        `mapstructure:"server"`
	Build       Build         `mapstructure:"build"`
	Readiness   Readiness     `mapstructure:"readiness"`
	API         API           `mapstructure:"api"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// Service is a shared infrastructure container built from its own image.
type Service struct {
	Name       string `mapstructure:"name"`
	Dockerfile string `mapstructure:"dockerfile"`
}

// Mailserver is the mail capture fixture. The token ports are published on
// the host with the same numbers.
type Mailserver struct {
	Service           `mapstructure:",squash"`
	Host              string `mapstructure:"host"`
	ActivationPort    int    `mapstructure:"activation_port"`
	PasswordResetPort int    `mapstructure:"password_reset_port"`
}

// Server is the game server base image and the per-instance container layout.
type Server struct {
	Service       `mapstructure:",squash"`
	TCPPort       int    `mapstructure:"tcp_port"`
	WebSocketPort int    `mapstructure:"websocket_port"`
	ConfigPath    string `mapstructure:"config_path"`
	LogDir        string `mapstructure:"log_dir"`
}

// Build selects the build context. A non-empty Repository is cloned and used
// instead of ContextDir.
type Build struct {
	ContextDir string `mapstructure:"context_dir"`
	Repository string `mapstructure:"repository"`
	Ref        string `mapstructure:"ref"`
}

// Readiness holds polling intervals and bounds. Zero attempts means unbounded.
type Readiness struct {
	DatabaseInterval     time.Duration `mapstructure:"database_interval"`
	DatabaseDownAttempts int           `mapstructure:"database_down_attempts"`
	ServerInterval       time.Duration `mapstructure:"server_interval"`
	ServerAttempts       int           `mapstructure:"server_attempts"`
}

type API struct {
	Listen string `mapstructure:"listen"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Network:     "testatrice-network",
		LabelPrefix: "org.cockatrice.testatrice",
		Database: Service{
			Name:       "testatrice-database",
			Dockerfile: "dockerfiles/testatrice-database.dockerfile",
		},
		Mailserver: Mailserver{
			Service: Service{
				Name:       "testatrice-mailserver",
				Dockerfile: "dockerfiles/testatrice-mailserver.dockerfile",
			},
			Host:              "localhost",
			ActivationPort:    1110,
			PasswordResetPort: 1111,
		},
		Server: Server{
			Service: Service{
				Name:       "testatrice-server",
				Dockerfile: "dockerfiles/testatrice-server.dockerfile",
			},
			TCPPort:       4747,
			WebSocketPort: 4748,
			ConfigPath:    "/home/servatrice/config/testatrice.ini",
			LogDir:        "/var/log/servatrice",
		},
		Build: Build{
			ContextDir: ".",
		},
		Readiness: Readiness{
			DatabaseInterval:     200 * time.Millisecond,
			DatabaseDownAttempts: 300,
			ServerInterval:       200 * time.Millisecond,
			ServerAttempts:       150,
		},
		API: API{
			Listen: ":3000",
		},
		StopTimeout: 10 * time.Second,
	}
}

// ManagedLabel is the label key marking resources created by testatrice.
func (c Config) ManagedLabel() string {
	return c.LabelPrefix + ".managed"
}

// Labels returns the labels applied to every created resource.
func (c Config) Labels() map[string]string {
	return map[string]string{c.ManagedLabel(): "true"}
}
