// Package mailtoken fetches account tokens captured by the mail fixture.
package mailtoken

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

var _ ports.TokenSource = (*Client)(nil)

// Client implements ports.TokenSource over the fixture's lookup ports.
type Client struct {
	Host              string
	ActivationPort    int
	PasswordResetPort int

	dialer net.Dialer
}

func NewClient(host string, activationPort, passwordResetPort int) *Client {
	return &Client{Host: host, ActivationPort: activationPort, PasswordResetPort: passwordResetPort}
}

// Activation blocks until the activation token of username is captured.
func (c *Client) Activation(ctx context.Context, username string) (string, error) {
	return c.fetch(ctx, c.ActivationPort, username)
}

// PasswordReset blocks until the password reset token of username is captured.
func (c *Client) PasswordReset(ctx context.Context, username string) (string, error) {
	return c.fetch(ctx, c.PasswordResetPort, username)
}

func (c *Client) fetch(ctx context.Context, port int, username string) (string, error) {
	if username == "" || strings.ContainsAny(username, "\r\n") {
		return "", domain.Invalid("fetch token", fmt.Sprintf("invalid username %q", username))
	}

	addr := net.JoinHostPort(c.Host, strconv.Itoa(port))
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to dial mail fixture at %s: %w", addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := io.WriteString(conn, username+"\n"); err != nil {
		return "", fmt.Errorf("failed to send username: %w", err)
	}
	token, err := io.ReadAll(conn)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if len(token) == 0 {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.Absent("fetch token", username, "the mail fixture closed without a token")
	}
	return strings.TrimSpace(string(token)), nil
}
