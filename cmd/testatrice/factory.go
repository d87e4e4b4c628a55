package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/cockatrice/testatrice/internal/adapters/docker"
	"github.com/cockatrice/testatrice/internal/config"
	"github.com/cockatrice/testatrice/internal/core/orchestrator"
	"github.com/cockatrice/testatrice/internal/core/ports"
	"github.com/cockatrice/testatrice/internal/logger"
	"github.com/cockatrice/testatrice/internal/mailtoken"
	"github.com/cockatrice/testatrice/internal/render"
)

// Factory creates the dependencies of a command once its flags are parsed.
// Tests replace the runtime and add manager options.
type Factory struct {
	Out    io.Writer
	ErrOut io.Writer

	Runtime        func(cfg config.Config, log zerolog.Logger) (ports.Runtime, error)
	Tokens         func(cfg config.Config) ports.TokenSource
	ManagerOptions []orchestrator.Option
}

func NewFactory() *Factory {
	return &Factory{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
		Runtime: func(cfg config.Config, log zerolog.Logger) (ports.Runtime, error) {
			return docker.NewAdapter(docker.Options{
				Labels:      cfg.Labels(),
				StopTimeout: cfg.StopTimeout,
				Log:         log,
			})
		},
		Tokens: func(cfg config.Config) ports.TokenSource {
			return mailtoken.NewClient(cfg.Mailserver.Host, cfg.Mailserver.ActivationPort, cfg.Mailserver.PasswordResetPort)
		},
	}
}

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logFile    string
	verbose    bool
	silent     bool
}

// session holds what a command needs to talk to the environment.
type session struct {
	cfg     config.Config
	log     zerolog.Logger
	service ports.EnvironmentService
	close   func() error
}

// templates maps a template name to an override file; nil uses the embedded ones.
func (f *Factory) open(g *globalOptions, templates map[string]string) (*session, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	log, closeLog := logger.New(logger.Options{
		Verbose: g.verbose,
		Silent:  g.silent,
		Out:     f.ErrOut,
		File:    g.logFile,
	})

	renderer, err := render.New(templates)
	if err != nil {
		closeLog()
		return nil, err
	}

	rt, err := f.Runtime(cfg, log)
	if err != nil {
		closeLog()
		return nil, err
	}

	opts := append([]orchestrator.Option{orchestrator.WithLogger(log)}, f.ManagerOptions...)
	return &session{
		cfg:     cfg,
		log:     log,
		service: orchestrator.NewManager(rt, renderer, cfg, opts...),
		close:   closeLog,
	}, nil
}
