// Package fake provides an in-memory ports.Runtime that records every call.
package fake

import (
	"context"
	"sort"
	"sync"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

// Operation names recorded in the call log and used as keys of Errors.
const (
	OpPing            = "Ping"
	OpNetworkExists   = "NetworkExists"
	OpNetworkCreate   = "NetworkCreate"
	OpImageExists     = "ImageExists"
	OpImageRemove     = "ImageRemove"
	OpImageBuild      = "ImageBuild"
	OpContainerExists = "ContainerExists"
	OpContainerStatus = "ContainerStatus"
	OpContainerCreate = "ContainerCreate"
	OpContainerStart  = "ContainerStart"
	OpContainerStop   = "ContainerStop"
	OpContainerExec   = "ContainerExec"
	OpContainerList   = "ContainerList"
)

var mutations = map[string]bool{
	OpNetworkCreate:   true,
	OpImageRemove:     true,
	OpImageBuild:      true,
	OpContainerCreate: true,
	OpContainerStart:  true,
	OpContainerStop:   true,
}

// Call is one recorded runtime call.
type Call struct {
	Op   string
	Name string
}

// Container is the state of a fake container.
type Container struct {
	Spec   domain.ContainerSpec
	Status domain.ContainerStatus
}

// ExecFunc computes the result of an exec. Returning an error makes the exec
// itself fail.
type ExecFunc func(container string, spec domain.ExecSpec) (domain.ExecResult, error)

// Runtime is a recording in-memory runtime. The zero value is not usable;
// call New.
type Runtime struct {
	mu sync.Mutex

	Networks   map[string]bool
	Images     map[string]domain.BuildSpec
	Containers map[string]*Container

	// Errors injects a failure for every call of an operation.
	Errors map[string]error

	// Exec, when set, decides exec results. The default succeeds with no output.
	Exec ExecFunc

	calls []Call
	execs []ExecCall
}

// ExecCall is a recorded exec.
type ExecCall struct {
	Container string
	Spec      domain.ExecSpec
}

var _ ports.Runtime = (*Runtime)(nil)

func New() *Runtime {
	return &Runtime{
		Networks:   make(map[string]bool),
		Images:     make(map[string]domain.BuildSpec),
		Containers: make(map[string]*Container),
		Errors:     make(map[string]error),
	}
}

// SetError injects err for op.
func (r *Runtime) SetError(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors[op] = err
}

// SetExec replaces the exec behaviour.
func (r *Runtime) SetExec(fn ExecFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Exec = fn
}

// AddContainer seeds a container in the given status.
func (r *Runtime) AddContainer(name string, status domain.ContainerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Containers[name] = &Container{Spec: domain.ContainerSpec{Name: name}, Status: status}
}

// Calls returns a copy of the call log.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the recorded calls of op.
func (r *Runtime) CallsTo(op string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Execs returns the recorded execs.
func (r *Runtime) Execs() []ExecCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ExecCall(nil), r.execs...)
}

// Mutations counts calls that change runtime state.
func (r *Runtime) Mutations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if mutations[c.Op] {
			n++
		}
	}
	return n
}

// ResetCalls clears the call and exec logs but keeps resource state.
func (r *Runtime) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.execs = nil
}

// Status returns the status of a container, or "" when it does not exist.
func (r *Runtime) Status(name string) domain.ContainerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.Containers[name]; ok {
		return c.Status
	}
	return ""
}

func (r *Runtime) record(op, name string) error {
	r.calls = append(r.calls, Call{Op: op, Name: name})
	return r.Errors[op]
}

func (r *Runtime) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(OpPing, "")
}

func (r *Runtime) NetworkExists(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpNetworkExists, name); err != nil {
		return false, err
	}
	return r.Networks[name], nil
}

func (r *Runtime) NetworkCreate(ctx context.Context, name string, dnsEnabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpNetworkCreate, name); err != nil {
		return err
	}
	if r.Networks[name] {
		return domain.Conflict("create", domain.Network(name).String(), "already exists")
	}
	r.Networks[name] = true
	return nil
}

func (r *Runtime) ImageExists(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpImageExists, name); err != nil {
		return false, err
	}
	_, ok := r.Images[name]
	return ok, nil
}

func (r *Runtime) ImageRemove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpImageRemove, name); err != nil {
		return err
	}
	if _, ok := r.Images[name]; !ok {
		return domain.Absent("remove", domain.Image(name).String(), "does not exist")
	}
	delete(r.Images, name)
	return nil
}

func (r *Runtime) ImageBuild(ctx context.Context, spec domain.BuildSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpImageBuild, spec.Tag); err != nil {
		return err
	}
	r.Images[spec.Tag] = spec
	return nil
}

func (r *Runtime) ContainerExists(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpContainerExists, name); err != nil {
		return false, err
	}
	_, ok := r.Containers[name]
	return ok, nil
}

func (r *Runtime) ContainerStatus(ctx context.Context, name string) (domain.ContainerStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpContainerStatus, name); err != nil {
		return "", err
	}
	c, ok := r.Containers[name]
	if !ok {
		return "", domain.Absent("inspect", domain.Container(name).String(), "does not exist")
	}
	return c.Status, nil
}

func (r *Runtime) ContainerCreate(ctx context.Context, spec domain.ContainerSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpContainerCreate, spec.Name); err != nil {
		return err
	}
	if _, ok := r.Containers[spec.Name]; ok {
		return domain.Conflict("create", domain.Container(spec.Name).String(), "already exists")
	}
	r.Containers[spec.Name] = &Container{Spec: spec, Status: domain.StatusCreated}
	return nil
}

func (r *Runtime) ContainerStart(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpContainerStart, name); err != nil {
		return err
	}
	c, ok := r.Containers[name]
	if !ok {
		return domain.Absent("start", domain.Container(name).String(), "does not exist")
	}
	c.Status = domain.StatusRunning
	return nil
}

// ContainerStop stops the container and, like the real runtime, removes it
// when it was created with AutoRemove.
func (r *Runtime) ContainerStop(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpContainerStop, name); err != nil {
		return err
	}
	c, ok := r.Containers[name]
	if !ok {
		return domain.Absent("stop", domain.Container(name).String(), "does not exist")
	}
	if c.Spec.AutoRemove {
		delete(r.Containers, name)
		return nil
	}
	c.Status = domain.StatusExited
	return nil
}

func (r *Runtime) ContainerExec(ctx context.Context, name string, spec domain.ExecSpec) (domain.ExecResult, error) {
	r.mu.Lock()
	if err := r.record(OpContainerExec, name); err != nil {
		r.mu.Unlock()
		return domain.ExecResult{}, err
	}
	r.execs = append(r.execs, ExecCall{Container: name, Spec: spec})
	var status domain.ContainerStatus
	c, ok := r.Containers[name]
	if ok {
		status = c.Status
	}
	fn := r.Exec
	r.mu.Unlock()

	if !ok {
		return domain.ExecResult{}, domain.Absent("exec", domain.Container(name).String(), "does not exist")
	}
	if status != domain.StatusRunning {
		return domain.ExecResult{}, domain.Conflict("exec", domain.Container(name).String(), "is not running")
	}
	if fn != nil {
		return fn(name, spec)
	}
	return domain.ExecResult{}, nil
}

func (r *Runtime) ContainerList(ctx context.Context) ([]domain.ContainerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(OpContainerList, ""); err != nil {
		return nil, err
	}
	out := make([]domain.ContainerInfo, 0, len(r.Containers))
	for name, c := range r.Containers {
		out = append(out, domain.ContainerInfo{ID: name, Name: name, Image: c.Spec.Image, Status: c.Status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
