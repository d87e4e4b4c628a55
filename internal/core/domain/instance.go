package domain

import "fmt"

// InstanceOptions are the caller's choices for a new server instance.
// Zero values mean "pick for me": a generated identifier, allocated ports,
// no host log directory and the default profile.
type InstanceOptions struct {
	Identifier    string                `json:"identifier"`
	TCPPort       int                   `json:"tcp_port"`
	WebSocketPort int                   `json:"websocket_port"`
	LogPath       string                `json:"log_path"`
	Profile       *ConfigurationProfile `json:"profile"`
}

// ServerInstance is one game server container layered on the shared
// environment. It is built with NewServerInstance and not modified after.
type ServerInstance struct {
	identifier    string
	containerName string
	tcpPort       int
	websocketPort int
	logPath       string
	profile       ConfigurationProfile
}

// NewServerInstance assembles an instance from already resolved values. The
// profile's ServerIdentifier is overwritten with identifier.
func NewServerInstance(identifier, containerName string, tcpPort, websocketPort int, logPath string, profile ConfigurationProfile) *ServerInstance {
	profile.ServerIdentifier = identifier
	return &ServerInstance{
		identifier:    identifier,
		containerName: containerName,
		tcpPort:       tcpPort,
		websocketPort: websocketPort,
		logPath:       logPath,
		profile:       profile,
	}
}

func (s *ServerInstance) Identifier() string    { return s.identifier }
func (s *ServerInstance) ContainerName() string { return s.containerName }
func (s *ServerInstance) TCPPort() int          { return s.tcpPort }
func (s *ServerInstance) WebSocketPort() int    { return s.websocketPort }
func (s *ServerInstance) LogPath() string       { return s.logPath }

// Profile returns a copy of the instance configuration.
func (s *ServerInstance) Profile() ConfigurationProfile { return s.profile }

// WebSocketURL is the address clients use to reach the instance over WebSocket.
func (s *ServerInstance) WebSocketURL() string {
	return fmt.Sprintf("ws://localhost:%d", s.websocketPort)
}

// ServerInfo describes a server container found on the runtime.
type ServerInfo struct {
	Identifier    string          `json:"identifier"`
	ContainerName string          `json:"container_name"`
	Status        ContainerStatus `json:"status"`
}
