package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "TESTATRICE"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every key with its default so that environment
// overrides are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("network", d.Network)
	v.SetDefault("label_prefix", d.LabelPrefix)
	v.SetDefault("stop_timeout", d.StopTimeout)

	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.dockerfile", d.Database.Dockerfile)

	v.SetDefault("mailserver.name", d.Mailserver.Name)
	v.SetDefault("mailserver.dockerfile", d.Mailserver.Dockerfile)
	v.SetDefault("mailserver.host", d.Mailserver.Host)
	v.SetDefault("mailserver.activation_port", d.Mailserver.ActivationPort)
	v.SetDefault("mailserver.password_reset_port", d.Mailserver.PasswordResetPort)

	v.SetDefault("server.name", d.Server.Name)
	v.SetDefault("server.dockerfile", d.Server.Dockerfile)
	v.SetDefault("server.tcp_port", d.Server.TCPPort)
	v.SetDefault("server.websocket_port", d.Server.WebSocketPort)
	v.SetDefault("server.config_path", d.Server.ConfigPath)
	v.SetDefault("server.log_dir", d.Server.LogDir)

	v.SetDefault("build.context_dir", d.Build.ContextDir)
	v.SetDefault("build.repository", d.Build.Repository)
	v.SetDefault("build.ref", d.Build.Ref)

	v.SetDefault("readiness.database_interval", d.Readiness.DatabaseInterval)
	v.SetDefault("readiness.database_down_attempts", d.Readiness.DatabaseDownAttempts)
	v.SetDefault("readiness.server_interval", d.Readiness.ServerInterval)
	v.SetDefault("readiness.server_attempts", d.Readiness.ServerAttempts)

	v.SetDefault("api.listen", d.API.Listen)
}

// Load reads configuration from path, or from testatrice.yaml in the working
// directory when path is empty. A missing default file is not an error.
// TESTATRICE_* environment variables override both, e.g.
// TESTATRICE_SERVER_TCP_PORT.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("testatrice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late inside the runtime.
func (c Config) Validate() error {
	var errs []error
	for key, name := range map[string]string{
		"network":         c.Network,
		"database.name":   c.Database.Name,
		"mailserver.name": c.Mailserver.Name,
		"server.name":     c.Server.Name,
	} {
		if name == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", key))
		}
	}
	if c.Server.TCPPort == c.Server.WebSocketPort {
		errs = append(errs, fmt.Errorf("server.tcp_port and server.websocket_port must differ"))
	}
	if c.Readiness.DatabaseInterval <= 0 || c.Readiness.ServerInterval <= 0 {
		errs = append(errs, fmt.Errorf("readiness intervals must be positive"))
	}
	if c.Readiness.DatabaseDownAttempts < 0 || c.Readiness.ServerAttempts < 0 {
		errs = append(errs, fmt.Errorf("readiness attempts must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
