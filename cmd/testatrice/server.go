package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

type serverOptions struct {
	instance    domain.InstanceOptions
	profile     domain.ConfigurationProfile
	iniTemplate string
	sqlTemplate string
	recreate    bool

	authenticationMethod string
	roomsMethod          string
	disallowLowercase    bool
	disallowUppercase    bool
	disallowNumerics     bool
}

func newCmdServer(f *Factory, g *globalOptions) *cobra.Command {
	opts := &serverOptions{}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the environment and a server container",
		Long: `Create all necessary images, start the environment containers, and start a
server container with the provided configuration. Already existing images are
reused unless --recreate is passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.complete(); err != nil {
				return err
			}

			s, err := f.open(g, opts.templates())
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if opts.recreate {
				if err := s.service.BuildEnvironment(ctx, true); err != nil {
					return err
				}
			}

			instance, err := s.service.NewServerInstance(ctx, opts.instance)
			if err != nil {
				return err
			}
			if err := s.service.Start(ctx, instance); err != nil {
				return err
			}

			fmt.Fprintf(f.Out, "Server %s running in %s\n", instance.Identifier(), instance.ContainerName())
			fmt.Fprintf(f.Out, "  tcp port:       %d\n", instance.TCPPort())
			fmt.Fprintf(f.Out, "  websocket port: %d\n", instance.WebSocketPort())
			fmt.Fprintf(f.Out, "  websocket url:  %s\n", instance.WebSocketURL())
			return nil
		},
	}

	general := cmd.Flags()
	general.StringVar(&opts.instance.Identifier, "server-identifier", "", "Letters, digits and underscores; used in the container name, the database table prefix and the log file name (default: chosen randomly)")
	general.IntVarP(&opts.instance.TCPPort, "tcp-port", "t", 0, "Host port for TCP connections (default: chosen randomly)")
	general.IntVarP(&opts.instance.WebSocketPort, "websocket-port", "w", 0, "Host port for WebSocket connections (default: chosen randomly)")
	general.StringVarP(&opts.instance.LogPath, "log-path", "l", "", "Host directory bound into the container for the server log file")
	general.StringVar(&opts.iniTemplate, "ini-template", "", "Template file for the server configuration (default: embedded template)")
	general.StringVar(&opts.sqlTemplate, "sql-template", "", "Template file for the database seed (default: embedded template)")
	general.BoolVarP(&opts.recreate, "recreate", "r", false, "Remove the stored images and build them from scratch")

	addProfileFlags(cmd.Flags(), opts)
	return cmd
}

func addProfileFlags(fs *pflag.FlagSet, opts *serverOptions) {
	d := domain.DefaultProfile()
	p := &opts.profile

	fs.BoolVar(&p.RequireClientID, "require-client-id", false, "Require the client to provide a client ID on login")
	fs.StringVar(&p.RequiredFeatures, "required-features", d.RequiredFeatures, `Comma separated features the client must advertise, e.g. "client_id,client_ver,websocket"`)
	fs.IntVar(&p.IdleClientTimeout, "idle-client-timeout", d.IdleClientTimeout, "Seconds a player can stay connected but idle, 0 disables")
	fs.IntVar(&p.MaxGameInactivityTime, "max-game-inactivity-time", d.MaxGameInactivityTime, "Seconds all players of a game can stay inactive before the game is closed")

	fs.StringVar(&opts.authenticationMethod, "authentication-method", string(d.AuthenticationMethod), "Authentication method: none|password|sql")
	fs.StringVarP(&p.CommonPassword, "password", "p", d.CommonPassword, "Common password used by the password authentication method")

	fs.BoolVar(&p.EnableRegistration, "enable-registration", false, "Allow users to register an account")
	fs.BoolVar(&p.RequireRegistration, "require-registration", false, "Require users to register an account")
	fs.BoolVar(&p.RequireEmail, "require-email", false, "Require an email address to register")
	fs.BoolVar(&p.RequireEmailActivation, "require-activation", false, "Require users to verify their email address")
	fs.IntVar(&p.MaxAccountsPerEmail, "max-accounts-per-email", d.MaxAccountsPerEmail, "Maximum number of accounts registered to one email address")

	fs.BoolVar(&p.EnableForgotPassword, "enable-forgot-password", false, "Allow users to reset their password with an emailed token")
	fs.IntVar(&p.ForgotPasswordTokenLife, "forgot-password-token-life", d.ForgotPasswordTokenLife, "Lifetime of the password reset token in minutes")
	fs.BoolVar(&p.EnableForgotPasswordChallenge, "enable-forgot-password-challenge", false, "Challenge the user about their account on password reset requests")

	fs.IntVar(&p.PasswordMinLength, "password-min-length", d.PasswordMinLength, "Minimum password length")
	fs.IntVar(&p.UsernameMinLength, "username-min-length", d.UsernameMinLength, "Minimum username length")
	fs.IntVar(&p.UsernameMaxLength, "username-max-length", d.UsernameMaxLength, "Maximum username length")
	fs.BoolVar(&opts.disallowLowercase, "username-disallow-lowercase", false, "Forbid lowercase letters in usernames")
	fs.BoolVar(&opts.disallowUppercase, "username-disallow-uppercase", false, "Forbid uppercase letters in usernames")
	fs.BoolVar(&opts.disallowNumerics, "username-disallow-numerics", false, "Forbid digits in usernames")
	fs.StringVar(&p.AllowedPunctuation, "allowed-punctuation", d.AllowedPunctuation, "Punctuation marks accepted in usernames")
	fs.BoolVar(&p.AllowPunctuationPrefix, "allow-punctuation-prefix", false, "Allow a punctuation mark as the first character of a username")
	fs.StringVar(&p.DisallowedWords, "disallowed-words", d.DisallowedWords, "Comma separated words not allowed in usernames")

	fs.StringVar(&opts.roomsMethod, "rooms-method", string(d.RoomsMethod), "Source of the room list: config|sql")
}

// complete resolves the enumerated and negated flags into the profile.
func (o *serverOptions) complete() error {
	auth, err := domain.ParseAuthenticationMethod(o.authenticationMethod)
	if err != nil {
		return err
	}
	rooms, err := domain.ParseRoomMethod(o.roomsMethod)
	if err != nil {
		return err
	}

	o.profile.AuthenticationMethod = auth
	o.profile.RoomsMethod = rooms
	o.profile.AllowLowercase = !o.disallowLowercase
	o.profile.AllowUppercase = !o.disallowUppercase
	o.profile.AllowNumerics = !o.disallowNumerics

	profile := o.profile
	o.instance.Profile = &profile
	return nil
}

func (o *serverOptions) templates() map[string]string {
	return map[string]string{
		ports.TemplateServerConfig: o.iniTemplate,
		ports.TemplateDatabaseSeed: o.sqlTemplate,
	}
}
