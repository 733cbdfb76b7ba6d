// Package toolserver implements the thin outer tool-call envelope: one
// newline-delimited JSON object in, one newline-delimited JSON object
// out, exactly the tool table spec.md §6 names and nothing more.
package toolserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/debugbridge/server/internal/adapter"
	"github.com/debugbridge/server/internal/bridgeconfig"
	"github.com/debugbridge/server/internal/bridgeerr"
	"github.com/debugbridge/server/internal/debugsession"
	"github.com/debugbridge/server/internal/eventbus"
	"github.com/debugbridge/server/internal/logx"
	"github.com/debugbridge/server/internal/process"
	"github.com/debugbridge/server/internal/registry"
)

// Dispatcher routes one decoded tool call to the Registry/Session
// operation it names and renders the reply envelope.
type Dispatcher struct {
	registry   *registry.Registry
	supervisor *process.Supervisor
	adapters   *adapter.Registry
	bus        *eventbus.Bus
	cfg        bridgeconfig.Config
	log        *logx.Logger
}

// New builds a Dispatcher wired to the given collaborators.
func New(reg *registry.Registry, sup *process.Supervisor, adapters *adapter.Registry, bus *eventbus.Bus, cfg bridgeconfig.Config, log *logx.Logger) *Dispatcher {
	if log == nil {
		log = logx.Null
	}
	return &Dispatcher{registry: reg, supervisor: sup, adapters: adapters, bus: bus, cfg: cfg, log: log.WithComponent("toolserver")}
}

// Serve reads newline-delimited tool-call objects from r until EOF or
// ctx is canceled, writing one reply line per call to w. It returns
// nil on a clean EOF.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		reply := d.Dispatch(ctx, line)
		if _, err := w.Write(append(reply, '\n')); err != nil {
			return fmt.Errorf("toolserver: write reply: %w", err)
		}
	}
	return scanner.Err()
}

// Dispatch decodes one tool-call object and returns its reply as a
// single JSON object: {"ok": bool, "result": ..., "error": {...}}.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) []byte {
	tool := gjson.GetBytes(raw, "tool").String()
	params := gjson.GetBytes(raw, "params")

	result, err := d.call(ctx, tool, params)
	if err != nil {
		d.log.Warn("tool call failed: tool=%s err=%v", tool, err)
		return errorEnvelope(err)
	}
	return okEnvelope(result)
}

func (d *Dispatcher) call(ctx context.Context, tool string, params gjson.Result) (any, error) {
	switch tool {
	case "start_debug_session":
		return d.startDebugSession(ctx, params)
	case "attach_to_debugpy":
		return d.attachToDebugpy(ctx, params)
	case "stop_debug_session":
		return d.stopDebugSession(ctx, params)
	case "list_debug_sessions":
		return d.listDebugSessions(params)
	case "set_breakpoint":
		return d.setBreakpoint(params)
	case "remove_breakpoint":
		return d.removeBreakpoint(params)
	case "list_breakpoints":
		return d.listBreakpoints(params)
	case "debug_continue":
		return d.sessionOp(params, func(s *debugsession.Session) error { return s.Continue() })
	case "debug_step_over":
		return d.sessionOp(params, func(s *debugsession.Session) error { return s.StepOver() })
	case "debug_step_in":
		return d.sessionOp(params, func(s *debugsession.Session) error { return s.StepIn() })
	case "debug_step_out":
		return d.sessionOp(params, func(s *debugsession.Session) error { return s.StepOut() })
	case "get_variables":
		return d.getVariables(params)
	case "get_call_stack":
		return d.getCallStack(params)
	case "evaluate_expression":
		return d.evaluateExpression(params)
	case "check_python_setup":
		return d.checkPythonSetup(ctx)
	default:
		return nil, bridgeerr.InvalidArgumentf("dispatch", "unknown tool %q", tool)
	}
}

// requestTimeout converts the configured per-request timeout from
// seconds to a time.Duration for dap.Client.
func (d *Dispatcher) requestTimeout() time.Duration {
	return time.Duration(d.cfg.RequestTimeoutSeconds) * time.Second
}

func (d *Dispatcher) resolveAdapter(name string) (adapter.Adapter, error) {
	if name == "" {
		name = d.cfg.DefaultAdapter
	}
	return d.adapters.Get(name)
}

func (d *Dispatcher) session(params gjson.Result) (*debugsession.Session, error) {
	id := params.Get("session_id").String()
	if id == "" {
		return nil, bridgeerr.InvalidArgumentf("session_lookup", "session_id is required")
	}
	return d.registry.Get(id)
}

func (d *Dispatcher) startDebugSession(ctx context.Context, params gjson.Result) (any, error) {
	script := params.Get("script_path").String()
	if script == "" {
		return nil, bridgeerr.InvalidArgumentf("start_debug_session", "script_path is required")
	}

	a, err := d.resolveAdapter(params.Get("adapter").String())
	if err != nil {
		return nil, bridgeerr.InvalidArgumentf("start_debug_session", "%v", err)
	}

	cfg := debugsession.Config{
		ID:                     uuid.New().String(),
		ScriptPath:             script,
		Args:                   stringArray(params.Get("args")),
		Cwd:                    params.Get("cwd").String(),
		Port:                   d.registry.AllocatePort(),
		Adapter:                a,
		Bus:                    d.bus,
		RequestTimeout:         d.requestTimeout(),
		HandshakeRetryAttempts: d.cfg.HandshakeRetryAttempts,
	}

	session, err := debugsession.StartOwned(ctx, d.supervisor, cfg)
	if err != nil {
		return nil, err
	}
	d.registry.Add(session)
	return sessionSummary(session), nil
}

func (d *Dispatcher) attachToDebugpy(ctx context.Context, params gjson.Result) (any, error) {
	script := params.Get("script_path").String()
	if script == "" {
		return nil, bridgeerr.InvalidArgumentf("attach_to_debugpy", "script_path is required")
	}

	port := d.cfg.ReservedAttachPort
	if p := params.Get("port"); p.Exists() {
		port = int(p.Int())
	}

	a, err := d.resolveAdapter(params.Get("adapter").String())
	if err != nil {
		return nil, bridgeerr.InvalidArgumentf("attach_to_debugpy", "%v", err)
	}

	cfg := debugsession.Config{
		ID:                     uuid.New().String(),
		ScriptPath:             script,
		Args:                   stringArray(params.Get("args")),
		Cwd:                    params.Get("cwd").String(),
		Port:                   port,
		Adapter:                a,
		Bus:                    d.bus,
		RequestTimeout:         d.requestTimeout(),
		HandshakeRetryAttempts: d.cfg.HandshakeRetryAttempts,
	}

	session, err := debugsession.Attach(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.registry.Add(session)
	return sessionSummary(session), nil
}

func (d *Dispatcher) stopDebugSession(ctx context.Context, params gjson.Result) (any, error) {
	session, err := d.session(params)
	if err != nil {
		return nil, err
	}
	if err := session.Terminate(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"stopped": true, "session_id": session.ID()}, nil
}

func (d *Dispatcher) listDebugSessions(gjson.Result) (any, error) {
	summaries, counts := d.registry.List()
	return map[string]any{"sessions": summaries, "counts": counts}, nil
}

func (d *Dispatcher) setBreakpoint(params gjson.Result) (any, error) {
	session, err := d.session(params)
	if err != nil {
		return nil, err
	}
	file := params.Get("file").String()
	line := int(params.Get("line").Int())
	if file == "" {
		return nil, bridgeerr.InvalidArgumentf("set_breakpoint", "file is required")
	}
	bp, err := session.SetBreakpoint(file, line)
	if err != nil {
		return nil, err
	}
	return map[string]any{"file": file, "line": bp.Line, "verified": bp.Verified}, nil
}

func (d *Dispatcher) removeBreakpoint(params gjson.Result) (any, error) {
	session, err := d.session(params)
	if err != nil {
		return nil, err
	}
	file := params.Get("file").String()
	line := int(params.Get("line").Int())
	if file == "" {
		return nil, bridgeerr.InvalidArgumentf("remove_breakpoint", "file is required")
	}
	if err := session.RemoveBreakpoint(file, line); err != nil {
		return nil, err
	}
	return map[string]any{"removed": true, "file": file, "line": line}, nil
}

func (d *Dispatcher) listBreakpoints(params gjson.Result) (any, error) {
	session, err := d.session(params)
	if err != nil {
		return nil, err
	}
	return session.ListBreakpoints(params.Get("file").String()), nil
}

func (d *Dispatcher) sessionOp(params gjson.Result, op func(*debugsession.Session) error) (any, error) {
	session, err := d.session(params)
	if err != nil {
		return nil, err
	}
	if err := op(session); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "session_id": session.ID()}, nil
}

func (d *Dispatcher) getVariables(params gjson.Result) (any, error) {
	session, err := d.session(params)
	if err != nil {
		return nil, err
	}
	scope := params.Get("scope").String()
	if scope == "" {
		scope = "local"
	}
	return session.GetVariables(scope)
}

func (d *Dispatcher) getCallStack(params gjson.Result) (any, error) {
	session, err := d.session(params)
	if err != nil {
		return nil, err
	}
	return session.GetCallStack()
}

func (d *Dispatcher) evaluateExpression(params gjson.Result) (any, error) {
	session, err := d.session(params)
	if err != nil {
		return nil, err
	}
	expr := params.Get("expression").String()
	if expr == "" {
		return nil, bridgeerr.InvalidArgumentf("evaluate_expression", "expression is required")
	}
	return session.Evaluate(expr)
}

func (d *Dispatcher) checkPythonSetup(ctx context.Context) (any, error) {
	a, err := d.resolveAdapter("python")
	if err != nil {
		return nil, err
	}
	interpreter, err := a.Interpreter()
	if err != nil {
		return map[string]any{"available": false, "reason": err.Error()}, nil
	}
	if err := d.supervisor.ProbeAvailability(ctx, interpreter, a.ImportCheck()); err != nil {
		return map[string]any{"available": false, "interpreter": interpreter, "reason": err.Error()}, nil
	}
	return map[string]any{"available": true, "interpreter": interpreter}, nil
}

func sessionSummary(s *debugsession.Session) any {
	return map[string]any{
		"id":     s.ID(),
		"script": s.ScriptPath(),
		"port":   s.Port(),
		"state":  s.State().String(),
	}
}

func stringArray(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}
