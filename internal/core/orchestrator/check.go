package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

// ServerCheck reports whether a started instance accepts clients.
type ServerCheck func(ctx context.Context, instance *domain.ServerInstance) (bool, error)

// WebSocketCheck completes a WebSocket handshake against the instance. A
// failed dial counts as "not ready yet".
func WebSocketCheck(timeout time.Duration) ServerCheck {
	dialer := &websocket.Dialer{HandshakeTimeout: timeout}
	return func(ctx context.Context, instance *domain.ServerInstance) (bool, error) {
		conn, resp, err := dialer.DialContext(ctx, instance.WebSocketURL(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		}
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		conn.Close()
		return true, nil
	}
}

// databaseCheck runs a trivial query inside the database container. Exec
// failures other than an unreachable runtime mean "not answering".
func databaseCheck(rt ports.Runtime, container string) Check {
	return func(ctx context.Context) (bool, error) {
		res, err := rt.ContainerExec(ctx, container, domain.ExecSpec{Cmd: []string{"mysql", "-e", "SELECT 1"}})
		if err != nil {
			if errors.Is(err, domain.ErrConnectivity) {
				return false, err
			}
			return false, nil
		}
		return res.ExitCode == 0, nil
	}
}
