package debugsession

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/debugbridge/server/internal/adapter"
	"github.com/debugbridge/server/internal/dap"
	"github.com/debugbridge/server/internal/eventbus"
)

// fakeAdapter plays the debugpy side of the wire for tests: it answers
// the handshake sequence and a handful of inspection/run-control
// requests with canned responses, and can push events on demand.
type fakeAdapter struct {
	tr *dap.Transport

	threads []dap.Thread
	frames  []dap.StackFrame
	scopes  []dap.Scope
	vars    []dap.Variable
}

func newFakeAdapter(conn net.Conn) *fakeAdapter {
	return &fakeAdapter{tr: dap.New(conn)}
}

func (f *fakeAdapter) respond(req dap.Request, body any) {
	raw, _ := json.Marshal(body)
	resp, _ := json.Marshal(dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		RequestSeq:      req.Seq,
		Success:         true,
		Command:         req.Command,
		Body:            raw,
	})
	f.tr.Send(resp)
}

func (f *fakeAdapter) event(name string, body any) {
	raw, _ := json.Marshal(body)
	ev, _ := json.Marshal(dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
		Body:            raw,
	})
	f.tr.Send(ev)
}

func (f *fakeAdapter) run(t *testing.T) {
	for {
		frame, err := f.tr.Receive()
		if err != nil {
			return
		}
		var req dap.Request
		if json.Unmarshal(frame.Raw, &req) != nil {
			continue
		}

		switch req.Command {
		case "initialize":
			f.respond(req, dap.Capabilities{SupportsConfigurationDoneRequest: true})
		case "attach":
			f.respond(req, struct{}{})
			go func() { time.Sleep(5 * time.Millisecond); f.event("initialized", struct{}{}) }()
		case "configurationDone":
			f.respond(req, struct{}{})
		case "threads":
			f.respond(req, dap.ThreadsResponseBody{Threads: f.threads})
		case "stackTrace":
			f.respond(req, dap.StackTraceResponseBody{StackFrames: f.frames})
		case "setBreakpoints":
			var args dap.SetBreakpointsArguments
			json.Unmarshal(req.Arguments, &args)
			bps := make([]dap.Breakpoint, len(args.Breakpoints))
			for i, sb := range args.Breakpoints {
				bps[i] = dap.Breakpoint{ID: i + 1, Line: sb.Line, Verified: true}
			}
			f.respond(req, dap.SetBreakpointsResponseBody{Breakpoints: bps})
		case "continue":
			f.respond(req, dap.ContinueResponseBody{})
			go func() {
				time.Sleep(5 * time.Millisecond)
				f.event("continued", dap.ContinuedEventBody{ThreadID: 1})
			}()
		case "next", "stepIn", "stepOut":
			f.respond(req, struct{}{})
			go func() {
				time.Sleep(5 * time.Millisecond)
				f.event("continued", dap.ContinuedEventBody{ThreadID: 1})
			}()
		case "scopes":
			f.respond(req, dap.ScopesResponseBody{Scopes: f.scopes})
		case "variables":
			f.respond(req, dap.VariablesResponseBody{Variables: f.vars})
		case "evaluate":
			f.respond(req, dap.EvaluateResponseBody{Result: "42", Type: "int"})
		case "disconnect":
			f.respond(req, struct{}{})
		default:
			f.respond(req, struct{}{})
		}
	}
}

// newTestSession drives a real handshake over an in-memory pipe against
// a fakeAdapter, returning an attach-mode Session (no owned subprocess).
func newTestSession(t *testing.T, configure func(*fakeAdapter)) (*Session, *eventbus.Bus) {
	t.Helper()
	clientConn, adapterConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); adapterConn.Close() })

	fa := newFakeAdapter(adapterConn)
	if configure != nil {
		configure(fa)
	}
	go fa.run(t)

	bus := eventbus.New()
	cfg := Config{
		ID:         "sess-1",
		ScriptPath: "/tmp/prog.py",
		Port:       5679,
		Adapter:    adapter.NewPythonAdapter(""),
		Bus:        bus,
	}

	session, err := runHandshake(context.Background(), cfg, clientConn, nil)
	if err != nil {
		t.Fatalf("runHandshake: %v", err)
	}
	return session, bus
}

func TestSessionHandshakeReachesRunning(t *testing.T) {
	session, _ := newTestSession(t, func(fa *fakeAdapter) {
		fa.threads = []dap.Thread{{ID: 1, Name: "MainThread"}}
	})
	if session.State() != StateRunning {
		t.Fatalf("expected StateRunning after handshake, got %s", session.State())
	}
}

func TestSessionStoppedEventTransitionsToPausedWithFrame(t *testing.T) {
	session, bus := newTestSession(t, func(fa *fakeAdapter) {
		fa.threads = []dap.Thread{{ID: 1, Name: "MainThread"}}
		fa.frames = []dap.StackFrame{{ID: 10, Name: "main", Line: 5}}
	})

	sub := bus.Subscribe("debug.session.paused", 4)
	defer sub.Unsubscribe()

	session.client.Router().Dispatch(&dap.Event{
		Event: "stopped",
		Body:  mustMarshal(dap.StoppedEventBody{Reason: "breakpoint", ThreadID: 1}),
	})

	if session.State() != StatePaused {
		t.Fatalf("expected StatePaused, got %s", session.State())
	}
	session.mu.RLock()
	hasFrame, frameID := session.hasFrame, session.currentFrameID
	session.mu.RUnlock()
	if !hasFrame || frameID != 10 {
		t.Fatalf("expected primed frame 10, got hasFrame=%v frameID=%d", hasFrame, frameID)
	}

	select {
	case ev := <-sub.Events():
		payload := ev.Payload.(eventbus.SessionPaused)
		if payload.SessionID != "sess-1" || payload.Reason != "breakpoint" {
			t.Fatalf("unexpected paused payload: %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a session.paused event to be published")
	}
}

func TestSessionContinueRequiresPaused(t *testing.T) {
	session, _ := newTestSession(t, nil)
	if err := session.Continue(); err == nil {
		t.Fatalf("expected error continuing a session that is Running, not Paused")
	}
}

func TestSessionContinueTransitionsOnContinuedEventNotResponse(t *testing.T) {
	session, _ := newTestSession(t, func(fa *fakeAdapter) {
		fa.threads = []dap.Thread{{ID: 1, Name: "MainThread"}}
		fa.frames = []dap.StackFrame{{ID: 10, Name: "main"}}
	})
	session.client.Router().Dispatch(&dap.Event{
		Event: "stopped",
		Body:  mustMarshal(dap.StoppedEventBody{Reason: "breakpoint", ThreadID: 1}),
	})
	if session.State() != StatePaused {
		t.Fatalf("expected StatePaused before continue")
	}

	if err := session.Continue(); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	// Immediately after the call returns, the response has arrived but
	// the continued event fires 5ms later on a separate goroutine.
	time.Sleep(50 * time.Millisecond)
	if session.State() != StateRunning {
		t.Fatalf("expected StateRunning once continued event arrives, got %s", session.State())
	}
}

func TestSessionTerminateRejectsFurtherOperations(t *testing.T) {
	session, _ := newTestSession(t, nil)
	if err := session.Terminate(context.Background()); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if session.State() != StateStopped {
		t.Fatalf("expected StateStopped, got %s", session.State())
	}
	if err := session.Continue(); err == nil {
		t.Fatalf("expected operations on a terminal session to be rejected")
	}
}

func mustMarshal(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
