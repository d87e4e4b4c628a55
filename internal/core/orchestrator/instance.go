package orchestrator

import (
	"fmt"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/identifier"
	"github.com/cockatrice/testatrice/internal/netport"
)

const maxPortAttempts = 10

// ContainerName derives the container name of an instance.
func ContainerName(baseName, id string) string {
	return baseName + "-" + id
}

// NewServerInstance resolves the identifier and ports of a new instance
// without touching the container runtime. Missing values are generated;
// explicit ports must be free and distinct.
func NewServerInstance(baseName string, opts domain.InstanceOptions) (*domain.ServerInstance, error) {
	return newServerInstance(baseName, opts, netport.System{}, identifier.Generate)
}

func newServerInstance(baseName string, opts domain.InstanceOptions, alloc netport.Allocator, generate func() string) (*domain.ServerInstance, error) {
	id := opts.Identifier
	if id == "" {
		id = generate()
	}
	if err := identifier.Validate(id); err != nil {
		return nil, domain.Invalid("new server instance", err.Error())
	}

	if opts.TCPPort != 0 && opts.TCPPort == opts.WebSocketPort {
		return nil, domain.Invalid("new server instance", fmt.Sprintf("tcp and websocket ports must differ, both are %d", opts.TCPPort))
	}
	for _, p := range []int{opts.TCPPort, opts.WebSocketPort} {
		if p == 0 {
			continue
		}
		if p < 0 || p > 65535 {
			return nil, domain.Invalid("new server instance", fmt.Sprintf("port %d out of range", p))
		}
		inUse, err := alloc.InUse(p)
		if err != nil {
			return nil, err
		}
		if inUse {
			return nil, domain.PortInUse(p)
		}
	}

	tcp := opts.TCPPort
	ws := opts.WebSocketPort
	var err error
	if tcp == 0 {
		if tcp, err = allocateExcept(alloc, ws); err != nil {
			return nil, err
		}
	}
	if ws == 0 {
		if ws, err = allocateExcept(alloc, tcp); err != nil {
			return nil, err
		}
	}

	profile := domain.DefaultProfile()
	if opts.Profile != nil {
		profile = *opts.Profile
	}

	return domain.NewServerInstance(id, ContainerName(baseName, id), tcp, ws, opts.LogPath, profile), nil
}

// allocateExcept returns an ephemeral port different from taken.
func allocateExcept(alloc netport.Allocator, taken int) (int, error) {
	for range maxPortAttempts {
		p, err := alloc.Ephemeral()
		if err != nil {
			return 0, err
		}
		if p != taken {
			return p, nil
		}
	}
	return 0, fmt.Errorf("failed to allocate a port distinct from %d after %d attempts", taken, maxPortAttempts)
}
