// Command testatrice-mailserver captures the mails sent by servatrice and
// serves the account tokens they carry. It runs inside the mail capture
// container.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cockatrice/testatrice/internal/logger"
	"github.com/cockatrice/testatrice/internal/mailcapture"
)

type options struct {
	hostname       string
	smtpAddr       string
	activationAddr string
	resetAddr      string
	mailLog        string
	verbose        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "testatrice-mailserver",
		Short:        "Capture servatrice mails and serve their tokens",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.hostname, "hostname", "testatrice-mailserver", "Name announced in the SMTP greeting")
	fs.StringVar(&opts.smtpAddr, "smtp", ":25", "SMTP listen address")
	fs.StringVar(&opts.activationAddr, "activation", ":1110", "Activation token lookup listen address")
	fs.StringVar(&opts.resetAddr, "reset", ":1111", "Password reset token lookup listen address")
	fs.StringVar(&opts.mailLog, "mail-log", "/mailserver/mails/mails.txt", "File receiving one line per captured token, empty disables")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Log every session")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	log, closeLog := logger.New(logger.Options{Verbose: opts.verbose})
	defer closeLog()

	var mails io.Writer
	if opts.mailLog != "" {
		lj := &lumberjack.Logger{Filename: opts.mailLog, MaxSize: 10, MaxBackups: 1}
		defer lj.Close()
		mails = lj
	}
	srv := mailcapture.NewServer(opts.hostname, log, mails)

	var lc net.ListenConfig
	listen := func(addr string) (net.Listener, error) {
		l, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		return l, nil
	}
	smtpL, err := listen(opts.smtpAddr)
	if err != nil {
		return err
	}
	actL, err := listen(opts.activationAddr)
	if err != nil {
		smtpL.Close()
		return err
	}
	resetL, err := listen(opts.resetAddr)
	if err != nil {
		smtpL.Close()
		actL.Close()
		return err
	}

	log.Info().
		Str("smtp", smtpL.Addr().String()).
		Str("activation", actL.Addr().String()).
		Str("reset", resetL.Addr().String()).
		Msg("mail capture listening")

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.ServeSMTP(ctx, smtpL) })
	eg.Go(func() error { return srv.ServeTokens(ctx, actL, mailcapture.KindActivation) })
	eg.Go(func() error { return srv.ServeTokens(ctx, resetL, mailcapture.KindReset) })
	return eg.Wait()
}
