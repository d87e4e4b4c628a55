package domain

import "fmt"

// ResourceKind is the kind of a backend-managed resource.
type ResourceKind string

const (
	KindNetwork   ResourceKind = "network"
	KindImage     ResourceKind = "image"
	KindContainer ResourceKind = "container"
)

// ResourceHandle identifies a resource by kind and deterministic name.
// Existence and status are always observed from the backend, never cached.
type ResourceHandle struct {
	Kind ResourceKind
	Name string
}

func (h ResourceHandle) String() string {
	return fmt.Sprintf("%s %s", h.Kind, h.Name)
}

// Network returns the handle of a network resource.
func Network(name string) ResourceHandle { return ResourceHandle{Kind: KindNetwork, Name: name} }

// Image returns the handle of an image resource.
func Image(name string) ResourceHandle { return ResourceHandle{Kind: KindImage, Name: name} }

// Container returns the handle of a container resource.
func Container(name string) ResourceHandle { return ResourceHandle{Kind: KindContainer, Name: name} }

// ContainerStatus is the state reported by the runtime (running, created, exited, ...).
type ContainerStatus string

const (
	StatusRunning ContainerStatus = "running"
	StatusCreated ContainerStatus = "created"
	StatusExited  ContainerStatus = "exited"
)

// ContainerInfo represents a container as listed by the runtime.
type ContainerInfo struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Image  string          `json:"image"`
	Status ContainerStatus `json:"status"`
}

// PortBinding publishes a container port on the host.
type PortBinding struct {
	ContainerPort int
	HostPort      int
}

// Mount binds a host directory into a container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerSpec describes a container to create (but not start).
type ContainerSpec struct {
	Name       string
	Image      string
	Cmd        []string
	Hostname   string
	Network    string
	Ports      []PortBinding
	Mounts     []Mount
	AutoRemove bool
}

// BuildSpec describes how to build an image. Repository, when set, takes
// precedence over ContextDir and is cloned to form the build context.
type BuildSpec struct {
	Tag        string
	ContextDir string
	Repository string
	Ref        string
	Dockerfile string
	NoCache    bool
}

// ExecSpec is a command run inside a running container. Stdin, when not
// empty, is piped to the command and then closed.
type ExecSpec struct {
	Cmd   []string
	User  string
	Stdin string
}

// ExecResult holds the exit code and combined output of an exec.
type ExecResult struct {
	ExitCode int
	Output   string
}
