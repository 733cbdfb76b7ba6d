// Package adapter describes how to launch and reach a concrete debug
// adapter. Python/debugpy is the only wired profile; the interface
// exists so the Process Supervisor and Handshake Orchestrator are not
// hardcoded to one interpreter.
package adapter

import (
	"fmt"
	"os/exec"

	"github.com/debugbridge/server/internal/dap"
)

// LaunchSpec describes the program being debugged and how to run it.
type LaunchSpec struct {
	Script string
	Args   []string
	Cwd    string
	Env    map[string]string
	Port   int
	Host   string
}

// Adapter builds the spawn command and attach arguments for one
// concrete debug adapter.
type Adapter interface {
	// Name identifies the adapter for logging and tool-call responses.
	Name() string

	// Validate checks spec is complete enough to launch.
	Validate(spec LaunchSpec) error

	// Command builds the interpreter invocation that puts the adapter
	// in listen-and-wait mode against spec.
	Command(spec LaunchSpec) (*exec.Cmd, error)

	// AttachArgs builds this adapter's attach request arguments.
	AttachArgs(spec LaunchSpec) dap.AttachArguments

	// ImportCheck names the module ProbeAvailability should try to
	// import before a real spawn is attempted.
	ImportCheck() string

	// Address is the host:port the supervisor should connect to.
	Address(spec LaunchSpec) string

	// Interpreter resolves the executable ProbeAvailability should run,
	// independent of any particular LaunchSpec.
	Interpreter() (string, error)
}

// Registry resolves an Adapter by name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns a Registry with the Python adapter pre-registered.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register(NewPythonAdapter(""))
	return r
}

// Register adds or replaces an adapter under its own Name().
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get resolves an adapter by name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("adapter: unknown adapter %q", name)
	}
	return a, nil
}
