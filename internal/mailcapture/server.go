// Package mailcapture is the mail fixture run inside the mail capture
// container. It accepts SMTP from the game server, extracts account tokens
// from message bodies and hands them out on per-kind lookup ports.
//
// A body line "alice|Activation|abc123" records the activation token of
// alice; "alice|Reset|abc123" records a password reset token. A lookup
// client sends a username terminated by a newline and receives the token
// once it has been captured.
package mailcapture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
)

// Server captures mail and serves token lookups.
type Server struct {
	Store    *Store
	Hostname string
	Log      zerolog.Logger

	// MailLog, when set, receives one "kind|username|token" line per token.
	MailLog io.Writer

	logMu sync.Mutex
}

func NewServer(hostname string, log zerolog.Logger, mailLog io.Writer) *Server {
	return &Server{Store: NewStore(), Hostname: hostname, Log: log, MailLog: mailLog}
}

// ServeSMTP accepts SMTP sessions on l until ctx is done. Any PLAIN
// credentials are accepted.
func (s *Server) ServeSMTP(ctx context.Context, l net.Listener) error {
	srv := smtp.NewServer(&backend{server: s})
	srv.Domain = s.Hostname
	srv.AllowInsecureAuth = true
	srv.ErrorLog = smtpLogger{s.Log}

	stop := context.AfterFunc(ctx, func() {
		l.Close()
		srv.Close()
	})
	defer stop()

	if err := srv.Serve(l); err != nil && ctx.Err() == nil && !errors.Is(err, smtp.ErrServerClosed) {
		return fmt.Errorf("failed to serve smtp: %w", err)
	}
	return nil
}

// ServeTokens answers token lookups of one kind on l until ctx is done.
func (s *Server) ServeTokens(ctx context.Context, l net.Listener, kind Kind) error {
	return serve(ctx, l, func(conn net.Conn) {
		if err := s.handleLookup(ctx, conn, kind); err != nil {
			s.Log.Debug().Err(err).Str("kind", string(kind)).Msg("token lookup failed")
		}
	})
}

func serve(ctx context.Context, l net.Listener, handle func(net.Conn)) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			closeOnDone := context.AfterFunc(ctx, func() { conn.Close() })
			defer closeOnDone()
			handle(conn)
		}()
	}
}

type backend struct {
	server *Server
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{server: b.server, remote: c.Conn().RemoteAddr().String()}, nil
}

type session struct {
	server *Server
	remote string
}

var _ smtp.AuthSession = (*session)(nil)

func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		return nil
	}), nil
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error { return nil }

func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error { return nil }

func (s *session) Data(r io.Reader) error {
	var body []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		body = append(body, sc.Text())
	}
	if err := sc.Err(); err != nil {
		s.server.Log.Debug().Err(err).Str("remote", s.remote).Msg("failed to read message")
		return err
	}
	s.server.capture(body)
	return nil
}

func (s *session) Reset() {}

func (s *session) Logout() error { return nil }

// smtpLogger routes go-smtp's internal errors to zerolog.
type smtpLogger struct {
	log zerolog.Logger
}

func (l smtpLogger) Printf(format string, v ...interface{}) {
	l.log.Debug().Msgf(format, v...)
}

func (l smtpLogger) Println(v ...interface{}) {
	l.log.Debug().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (s *Server) capture(body []string) {
	found := false
	for _, line := range body {
		username, kind, token, ok := parseTokenLine(line)
		if !ok {
			continue
		}
		found = true
		s.Store.Put(kind, username, token)
		s.Log.Info().Str("kind", string(kind)).Str("username", username).Msg("captured token")
		s.appendLog(fmt.Sprintf("%s|%s|%s\n", kind, username, token))
	}
	if !found {
		s.Log.Warn().Int("lines", len(body)).Msg("message carried no token")
		s.appendLog("Unknown message\n" + strings.Join(body, "\n") + "\n\n")
	}
}

func (s *Server) appendLog(text string) {
	if s.MailLog == nil {
		return
	}
	s.logMu.Lock()
	defer s.logMu.Unlock()
	if _, err := io.WriteString(s.MailLog, text); err != nil {
		s.Log.Error().Err(err).Msg("failed to append to mail log")
	}
}

func parseTokenLine(line string) (username string, kind Kind, token string, ok bool) {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", false
	}
	switch k := Kind(parts[1]); k {
	case KindActivation, KindReset:
		return parts[0], k, parts[2], true
	}
	return "", "", "", false
}

func (s *Server) handleLookup(ctx context.Context, conn net.Conn, kind Kind) error {
	r := bufio.NewReader(conn)
	username, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && username != "") {
		return fmt.Errorf("failed to read username: %w", err)
	}
	username = strings.TrimSpace(username)

	// A client that hangs up stops waiting for its token.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		io.Copy(io.Discard, r)
		cancel()
	}()

	token, err := s.Store.Wait(connCtx, kind, username)
	if err != nil {
		return err
	}
	_, err = io.WriteString(conn, token)
	return err
}
