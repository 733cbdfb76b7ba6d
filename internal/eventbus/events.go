package eventbus

// Topic constants for session lifecycle and debug-state events, trimmed
// to exactly what the Event Router needs to carry: informational
// broadcasts a session emits as it moves through its state machine and
// as the adapter reports stops, output, threads, and modules.
const (
	TopicSessionStarted = "debug.session.started"
	TopicSessionPaused  = "debug.session.paused"
	TopicSessionResumed = "debug.session.resumed"
	TopicSessionStopped = "debug.session.stopped"

	TopicBreakpointHit     = "debug.breakpoint.hit"
	TopicBreakpointAdded   = "debug.breakpoint.added"
	TopicBreakpointRemoved = "debug.breakpoint.removed"
	TopicBreakpointChanged = "debug.breakpoint.changed"

	TopicOutputReceived = "debug.output.received"

	TopicThreadStarted = "debug.thread.started"
	TopicThreadExited  = "debug.thread.exited"

	TopicModuleLoaded = "debug.module.loaded"
)

// SessionStarted is published when a session's handshake completes and
// the debuggee is attached and ready.
type SessionStarted struct {
	SessionID string
	Adapter   string
}

// SessionPaused is published when a session transitions to Paused,
// carrying the stop reason reported by the adapter's stopped event.
type SessionPaused struct {
	SessionID string
	ThreadID  int
	Reason    string
}

// SessionResumed is published when a session transitions back to
// Running on a continued event.
type SessionResumed struct {
	SessionID string
	ThreadID  int
}

// SessionStopped is published when a session terminates, whether by
// user request, debuggee exit, or adapter disconnect.
type SessionStopped struct {
	SessionID string
	ExitCode  int
	Reason    string
}

// BreakpointEvent describes one breakpoint-table or adapter-reported
// breakpoint change.
type BreakpointEvent struct {
	SessionID string
	File      string
	Line      int
	Verified  bool
}

// OutputReceived carries one line of classified debuggee output.
type OutputReceived struct {
	SessionID string
	Category  string
	Text      string
}

// ThreadEvent reports a debuggee thread starting or exiting.
type ThreadEvent struct {
	SessionID string
	ThreadID  int
	Name      string
}

// ModuleLoaded reports a module the debuggee loaded, as surfaced by
// the adapter's module event.
type ModuleLoaded struct {
	SessionID string
	Name      string
	Path      string
}
