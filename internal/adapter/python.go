package adapter

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/debugbridge/server/internal/dap"
)

// PythonAdapter launches the target script under debugpy's embedded
// server: `python -m debugpy --listen host:port --wait-for-client
// <script> [args...]`. The adapter is the debuggee process itself, not
// a separate broker, so the handshake only ever attaches to it.
type PythonAdapter struct {
	pythonPath string
}

// NewPythonAdapter returns a PythonAdapter. An empty pythonPath means
// resolve python3 (falling back to python) from PATH at Command time.
func NewPythonAdapter(pythonPath string) *PythonAdapter {
	return &PythonAdapter{pythonPath: pythonPath}
}

func (a *PythonAdapter) Name() string { return "python" }

func (a *PythonAdapter) ImportCheck() string { return "debugpy" }

func (a *PythonAdapter) Validate(spec LaunchSpec) error {
	if spec.Script == "" {
		return fmt.Errorf("adapter: python launch requires a script path")
	}
	if spec.Port <= 0 {
		return fmt.Errorf("adapter: python launch requires a listen port")
	}
	return nil
}

// Interpreter resolves the python executable independent of any launch.
func (a *PythonAdapter) Interpreter() (string, error) {
	return a.resolveInterpreter()
}

func (a *PythonAdapter) resolveInterpreter() (string, error) {
	if a.pythonPath != "" {
		return a.pythonPath, nil
	}
	if path, err := exec.LookPath("python3"); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath("python"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adapter: no python interpreter found in PATH (install Python 3 and debugpy: pip install debugpy)")
}

func (a *PythonAdapter) Command(spec LaunchSpec) (*exec.Cmd, error) {
	if err := a.Validate(spec); err != nil {
		return nil, err
	}
	python, err := a.resolveInterpreter()
	if err != nil {
		return nil, err
	}

	host := spec.Host
	if host == "" {
		host = "localhost"
	}

	args := []string{
		"-m", "debugpy",
		"--listen", fmt.Sprintf("%s:%d", host, spec.Port),
		"--wait-for-client",
		spec.Script,
	}
	args = append(args, spec.Args...)

	cmd := exec.Command(python, args...)
	if spec.Cwd != "" {
		cmd.Dir = spec.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return cmd, nil
}

// AttachArgs builds the attach request's path mappings. Per spec, the
// local and remote roots are always equal to the current working
// directory: if spec.Cwd was left unset (attach's cwd argument is
// optional), it falls back to the bridge process's own working
// directory rather than mapping to an empty string.
func (a *PythonAdapter) AttachArgs(spec LaunchSpec) dap.AttachArguments {
	root := spec.Cwd
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}
	return dap.AttachArguments{
		PathMappings: []dap.PathMapping{{LocalRoot: root, RemoteRoot: root}},
		JustMyCode:   false,
	}
}

func (a *PythonAdapter) Address(spec LaunchSpec) string {
	host := spec.Host
	if host == "" {
		host = "localhost"
	}
	return host + ":" + strconv.Itoa(spec.Port)
}
