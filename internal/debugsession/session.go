// Package debugsession implements the session state machine that sits
// between the outer tool dispatcher and one DAP-speaking debug adapter:
// handshake orchestration, breakpoint reconciliation, run-control, and
// inspection, all serialized behind the Session's own mutex.
package debugsession

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/debugbridge/server/internal/adapter"
	"github.com/debugbridge/server/internal/bridgeerr"
	"github.com/debugbridge/server/internal/dap"
	"github.com/debugbridge/server/internal/eventbus"
	"github.com/debugbridge/server/internal/handshake"
	"github.com/debugbridge/server/internal/process"
)

// State is a Session's position in Starting -> Running -> (Paused <->
// Running)* -> Stopped|Error.
type State int

const (
	StateStarting State = iota
	StateRunning
	StatePaused
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// terminal reports whether no further operations are accepted in this state.
func (s State) terminal() bool { return s == StateStopped || s == StateError }

// Config describes one session to create. Port is pre-allocated by the
// caller (the Registry owns the monotonic port counter). RequestTimeout
// and HandshakeRetryAttempts come from bridgeconfig.Config; a zero value
// for either falls back to the dap/handshake package defaults.
type Config struct {
	ID                     string
	ScriptPath             string
	Args                   []string
	Cwd                    string
	Port                   int
	Adapter                adapter.Adapter
	Bus                    *eventbus.Bus
	RequestTimeout         time.Duration
	HandshakeRetryAttempts int
}

// Session is one debug session: its DAP client, its owned subprocess
// (nil in attach-only mode), its breakpoint table, and its current
// thread/frame context.
type Session struct {
	id          string
	scriptPath  string
	port        int
	adapterName string

	client *dap.Client
	proc   *process.Process
	bus    *eventbus.Bus

	mu                 sync.RWMutex
	state              State
	capabilities       dap.Capabilities
	breakpoints        map[string][]Breakpoint
	currentThreadID    int
	currentFrameID     int
	hasThread          bool
	hasFrame           bool
	pausedSinceRunning bool
	startedAt          time.Time

	onTerminal func(*Session)
}

// ID returns the session's identity.
func (s *Session) ID() string { return s.id }

// ScriptPath returns the absolute path of the target program.
func (s *Session) ScriptPath() string { return s.scriptPath }

// Port returns the TCP port used to reach the adapter.
func (s *Session) Port() int { return s.port }

// Owned reports whether this Session spawned its own adapter subprocess.
func (s *Session) Owned() bool { return s.proc != nil }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Capabilities returns the capabilities reported by initialize.
func (s *Session) Capabilities() dap.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

// StartedAt returns the session's creation timestamp.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// PausedSinceRunning reports whether at least one "stopped" event has
// been received since the session's last transition to Running — the
// invariant a Paused session must satisfy.
func (s *Session) PausedSinceRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pausedSinceRunning
}

// SetOnTerminal registers a callback invoked once, holding no lock,
// when the session reaches Stopped or Error, so a Registry can evict it.
func (s *Session) SetOnTerminal(fn func(*Session)) { s.onTerminal = fn }

func newSession(cfg Config, client *dap.Client, proc *process.Process) *Session {
	s := &Session{
		id:          cfg.ID,
		scriptPath:  cfg.ScriptPath,
		port:        cfg.Port,
		adapterName: cfg.Adapter.Name(),
		client:      client,
		proc:        proc,
		bus:         cfg.Bus,
		state:       StateStarting,
		breakpoints: make(map[string][]Breakpoint),
		startedAt:   time.Now(),
	}

	router := client.Router()
	router.OnStopped(s.onStopped)
	router.OnContinued(s.onContinued)
	router.OnTerminated(s.onTerminated)
	router.OnExited(s.onExited)
	router.OnOutput(s.onOutput)
	router.OnThread(s.onThread)
	router.OnBreakpoint(s.onBreakpoint)
	router.OnModule(s.onModule)

	return s
}

// StartOwned spawns the adapter's subprocess via supervisor, dials the
// listening port, and runs the handshake. On any failure the partially
// created session is torn down before the error is returned.
func StartOwned(ctx context.Context, supervisor *process.Supervisor, cfg Config) (*Session, error) {
	spec := adapter.LaunchSpec{Script: cfg.ScriptPath, Args: cfg.Args, Cwd: cfg.Cwd, Port: cfg.Port}

	if err := cfg.Adapter.Validate(spec); err != nil {
		return nil, bridgeerr.InvalidArgumentf("start_debug_session", "%s", err)
	}

	cmd, err := cfg.Adapter.Command(spec)
	if err != nil {
		return nil, bridgeerr.Unavailablef("start_debug_session", "%s", err)
	}

	if err := supervisor.ProbeAvailability(ctx, cmd.Path, cfg.Adapter.ImportCheck()); err != nil {
		return nil, bridgeerr.Unavailablef("start_debug_session", "adapter unavailable: %s", err)
	}

	proc, err := supervisor.SpawnWithID(cfg.ID, cfg.Adapter.Name(), cmd)
	if err != nil {
		return nil, bridgeerr.Lifecyclef("start_debug_session", "spawn failed: %s", err)
	}

	conn, err := handshake.DialOwned(ctx, cfg.Adapter.Address(spec))
	if err != nil {
		proc.GroupKill()
		return nil, bridgeerr.WrapTransport("start_debug_session", err)
	}

	session, err := runHandshake(ctx, cfg, conn, proc)
	if err != nil {
		proc.GroupKill()
		return nil, err
	}
	return session, nil
}

// Attach dials an already-listening, user-controlled adapter and runs
// the handshake without owning a subprocess.
func Attach(ctx context.Context, cfg Config) (*Session, error) {
	spec := adapter.LaunchSpec{Script: cfg.ScriptPath, Port: cfg.Port}
	address := cfg.Adapter.Address(spec)

	conn, err := handshake.DialAttach(ctx, address)
	if err != nil {
		return nil, bridgeerr.WrapTransport("attach_to_debugpy", err)
	}

	return runHandshake(ctx, cfg, conn, nil)
}

func runHandshake(ctx context.Context, cfg Config, conn net.Conn, proc *process.Process) (*Session, error) {
	transport := dap.New(conn)
	client := dap.NewClient(transport, cfg.RequestTimeout)
	session := newSession(cfg, client, proc)
	client.Start()

	spec := adapter.LaunchSpec{Script: cfg.ScriptPath, Args: cfg.Args, Cwd: cfg.Cwd, Port: cfg.Port}
	opts := handshake.Options{
		ClientID:      "debugbridge",
		ClientName:    "Debug Bridge Server",
		AdapterID:     cfg.Adapter.Name(),
		AttachArgs:    cfg.Adapter.AttachArgs(spec),
		RetryAttempts: cfg.HandshakeRetryAttempts,
	}

	result, err := handshake.Run(ctx, client, opts)
	if err != nil {
		session.setState(StateError)
		client.Close()
		return nil, bridgeerr.Lifecyclef("start_debug_session", "handshake failed: %s", err)
	}

	session.mu.Lock()
	session.capabilities = result.Capabilities
	session.currentThreadID = result.CurrentThreadID
	session.currentFrameID = result.CurrentFrameID
	session.hasThread = result.HasThread
	session.hasFrame = result.HasFrame
	session.pausedSinceRunning = false
	session.mu.Unlock()

	session.setState(StateRunning)
	session.publish(eventbus.TopicSessionStarted, eventbus.SessionStarted{SessionID: cfg.ID, Adapter: cfg.Adapter.Name()})

	return session, nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	if state.terminal() && s.onTerminal != nil {
		s.onTerminal(s)
	}
}

func (s *Session) publish(topic string, payload any) {
	if s.bus != nil {
		s.bus.Publish(topic, payload)
	}
}

// guard returns an invalid-argument error if the session is in a
// terminal state or not in one of the allowed states for op.
func (s *Session) guard(op string, allowed ...State) error {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if state.terminal() {
		return bridgeerr.InvalidArgumentf(op, "session %s is %s, no operations accepted", s.id, state)
	}
	for _, a := range allowed {
		if state == a {
			return nil
		}
	}
	return bridgeerr.InvalidArgumentf(op, "session %s is %s, expected one of %v", s.id, state, allowed)
}

// Terminate closes the DAP socket, SIGTERMs the owned subprocess (if
// any) with a 5-second grace before SIGKILL, and transitions to Stopped.
func (s *Session) Terminate(ctx context.Context) error {
	s.mu.RLock()
	alreadyTerminal := s.state.terminal()
	s.mu.RUnlock()
	if alreadyTerminal {
		return nil
	}

	s.client.Close()

	if s.proc != nil {
		s.terminateProcess()
	}

	s.setState(StateStopped)
	s.publish(eventbus.TopicSessionStopped, eventbus.SessionStopped{SessionID: s.id, Reason: "terminated"})
	return nil
}

func (s *Session) terminateProcess() {
	const grace = 5 * time.Second

	if err := s.proc.GroupTerminate(); err != nil {
		return
	}

	select {
	case <-s.proc.Done():
		return
	case <-time.After(grace):
	}

	if s.proc.IsRunning() {
		s.proc.GroupKill()
	}
	<-s.proc.Done()
}

// Event handlers, invoked synchronously from the Client's receive loop.

func (s *Session) onStopped(body dap.StoppedEventBody) {
	s.mu.Lock()
	s.currentThreadID = body.ThreadID
	s.hasThread = true
	s.pausedSinceRunning = true
	s.mu.Unlock()

	s.primeFrame(body.ThreadID)

	s.setState(StatePaused)
	s.publish(eventbus.TopicSessionPaused, eventbus.SessionPaused{SessionID: s.id, ThreadID: body.ThreadID, Reason: body.Reason})
}

// primeFrame fetches the top stack frame for threadID, retrying once
// on failure, and sets currentFrameID if a frame was returned.
func (s *Session) primeFrame(threadID int) {
	var frames []dap.StackFrame
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		frames, err = s.client.StackTrace(threadID)
		if err == nil {
			break
		}
	}
	if err != nil || len(frames) == 0 {
		s.mu.Lock()
		s.hasFrame = false
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.currentFrameID = frames[0].ID
	s.hasFrame = true
	s.mu.Unlock()
}

func (s *Session) onContinued(body dap.ContinuedEventBody) {
	s.mu.Lock()
	s.hasFrame = false
	s.currentFrameID = 0
	s.pausedSinceRunning = false
	s.mu.Unlock()

	s.setState(StateRunning)
	s.publish(eventbus.TopicSessionResumed, eventbus.SessionResumed{SessionID: s.id, ThreadID: body.ThreadID})
}

func (s *Session) onTerminated() {
	s.setState(StateStopped)
	s.publish(eventbus.TopicSessionStopped, eventbus.SessionStopped{SessionID: s.id, Reason: "terminated"})
}

func (s *Session) onExited(body dap.ExitedEventBody) {
	s.setState(StateStopped)
	reason := "exited"
	if body.ExitCode != 0 {
		reason = "exited abnormally"
	}
	s.publish(eventbus.TopicSessionStopped, eventbus.SessionStopped{SessionID: s.id, ExitCode: body.ExitCode, Reason: reason})
}

func (s *Session) onOutput(body dap.OutputEventBody) {
	fromStderr := body.Category == "stderr"
	category := "stdout"
	if process.ClassifyDAPOutput(body.Output, fromStderr) == process.CategoryProgramError {
		category = "stderr"
	}
	s.publish(eventbus.TopicOutputReceived, eventbus.OutputReceived{SessionID: s.id, Category: category, Text: body.Output})
}

func (s *Session) onThread(body dap.ThreadEventBody) {
	topic := eventbus.TopicThreadStarted
	if body.Reason == "exited" {
		topic = eventbus.TopicThreadExited
	}
	s.publish(topic, eventbus.ThreadEvent{SessionID: s.id, ThreadID: body.ThreadID})
}

func (s *Session) onBreakpoint(body dap.BreakpointEventBody) {
	s.publish(eventbus.TopicBreakpointChanged, eventbus.BreakpointEvent{
		SessionID: s.id,
		Line:      body.Breakpoint.Line,
		Verified:  body.Breakpoint.Verified,
	})
}

func (s *Session) onModule(body dap.ModuleEventBody) {
	s.publish(eventbus.TopicModuleLoaded, eventbus.ModuleLoaded{SessionID: s.id, Name: body.Module.Name})
}
