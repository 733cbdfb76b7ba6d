package dap

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client is the typed request/response surface over one adapter
// connection. It owns a Transport, a Correlator, and a Router, and
// drives them from a single receive loop so that event ordering on the
// socket is preserved end to end.
type Client struct {
	transport  *Transport
	correlator *Correlator
	router     *Router

	loopDone chan struct{}
	loopErr  error

	onDisconnect func(error)
}

// NewClient wraps conn (already connected to the adapter) as a Client.
// requestTimeout bounds how long each outbound request waits for its
// response; a non-positive value falls back to RequestTimeout. Register
// event handlers on Router() before calling Start.
func NewClient(transport *Transport, requestTimeout time.Duration) *Client {
	return &Client{
		transport:  transport,
		correlator: NewCorrelator(transport, requestTimeout),
		router:     NewRouter(),
		loopDone:   make(chan struct{}),
	}
}

// Router exposes the event router so callers can register typed
// handlers before Start.
func (c *Client) Router() *Router { return c.router }

// OnDisconnect registers a callback invoked once, from the receive
// loop's goroutine, when the transport is lost.
func (c *Client) OnDisconnect(fn func(error)) { c.onDisconnect = fn }

// Start launches the receive loop in its own goroutine. It returns
// immediately; use Wait to block until the loop exits.
func (c *Client) Start() {
	go c.receiveLoop()
}

// Wait blocks until the receive loop exits (transport closed or a
// framing error) and returns the error that ended it.
func (c *Client) Wait() error {
	<-c.loopDone
	return c.loopErr
}

func (c *Client) receiveLoop() {
	defer close(c.loopDone)
	for {
		frame, err := c.transport.Receive()
		if err != nil {
			c.loopErr = err
			c.correlator.Shutdown()
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
			return
		}

		switch frame.Kind {
		case KindResponse:
			var resp Response
			if jerr := json.Unmarshal(frame.Raw, &resp); jerr == nil {
				c.correlator.HandleResponse(&resp)
			}
		case KindEvent:
			var ev Event
			if jerr := json.Unmarshal(frame.Raw, &ev); jerr == nil {
				c.router.Dispatch(&ev)
			}
		case KindRequest:
			// Adapter-initiated requests (runInTerminal, etc.) are never
			// expected from a headless debugpy adapter; drop them.
		}
	}
}

// Close shuts down the correlator (rejecting any pending requests) and
// closes the underlying transport.
func (c *Client) Close() error {
	c.correlator.Shutdown()
	return c.transport.Close()
}

func unmarshalBody[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("dap: unmarshal response body: %w", err)
	}
	return v, nil
}

// Initialize sends the initialize request and returns the adapter's
// capabilities.
func (c *Client) Initialize(args InitializeRequestArguments) (Capabilities, error) {
	body, err := c.correlator.Send("initialize", args)
	if err != nil {
		return Capabilities{}, err
	}
	return unmarshalBody[Capabilities](body)
}

// Attach sends the attach request with the given arguments. Callers
// build args from an adapter profile (see internal/adapter) so the
// path-mapping and justMyCode settings stay adapter-specific.
func (c *Client) Attach(args AttachArguments) error {
	_, err := c.correlator.Send("attach", args)
	return err
}

// ConfigurationDone sends the configurationDone request.
func (c *Client) ConfigurationDone() error {
	_, err := c.correlator.Send("configurationDone", nil)
	return err
}

// SetBreakpoints replaces the full set of breakpoints for one source
// with the given lines, returning the adapter's per-line verdicts in
// the same order.
func (c *Client) SetBreakpoints(path string, lines []int) ([]Breakpoint, error) {
	sbs := make([]SourceBreakpoint, len(lines))
	for i, line := range lines {
		sbs[i] = SourceBreakpoint{Line: line}
	}
	args := SetBreakpointsArguments{
		Source:      Source{Path: path},
		Breakpoints: sbs,
		Lines:       lines,
	}
	body, err := c.correlator.Send("setBreakpoints", args)
	if err != nil {
		return nil, err
	}
	result, err := unmarshalBody[SetBreakpointsResponseBody](body)
	if err != nil {
		return nil, err
	}
	return result.Breakpoints, nil
}

// Threads lists the adapter's known threads.
func (c *Client) Threads() ([]Thread, error) {
	body, err := c.correlator.Send("threads", nil)
	if err != nil {
		return nil, err
	}
	result, err := unmarshalBody[ThreadsResponseBody](body)
	if err != nil {
		return nil, err
	}
	return result.Threads, nil
}

// StackTrace fetches the call stack for a thread.
func (c *Client) StackTrace(threadID int) ([]StackFrame, error) {
	body, err := c.correlator.Send("stackTrace", StackTraceArguments{ThreadID: threadID})
	if err != nil {
		return nil, err
	}
	result, err := unmarshalBody[StackTraceResponseBody](body)
	if err != nil {
		return nil, err
	}
	return result.StackFrames, nil
}

// Scopes fetches the variable scopes visible at a stack frame.
func (c *Client) Scopes(frameID int) ([]Scope, error) {
	body, err := c.correlator.Send("scopes", ScopesArguments{FrameID: frameID})
	if err != nil {
		return nil, err
	}
	result, err := unmarshalBody[ScopesResponseBody](body)
	if err != nil {
		return nil, err
	}
	return result.Scopes, nil
}

// Variables fetches the variables under a variablesReference.
func (c *Client) Variables(reference int) ([]Variable, error) {
	body, err := c.correlator.Send("variables", VariablesArguments{VariablesReference: reference})
	if err != nil {
		return nil, err
	}
	result, err := unmarshalBody[VariablesResponseBody](body)
	if err != nil {
		return nil, err
	}
	return result.Variables, nil
}

// Evaluate evaluates an expression in the context of a stack frame.
func (c *Client) Evaluate(expression string, frameID int) (EvaluateResponseBody, error) {
	body, err := c.correlator.Send("evaluate", EvaluateArguments{
		Expression: expression,
		FrameID:    frameID,
		Context:    "repl",
	})
	if err != nil {
		return EvaluateResponseBody{}, err
	}
	return unmarshalBody[EvaluateResponseBody](body)
}

// Continue resumes a stopped thread.
func (c *Client) Continue(threadID int) (ContinueResponseBody, error) {
	body, err := c.correlator.Send("continue", ContinueArguments{ThreadID: threadID})
	if err != nil {
		return ContinueResponseBody{}, err
	}
	return unmarshalBody[ContinueResponseBody](body)
}

// Next steps over on the given thread.
func (c *Client) Next(threadID int) error {
	_, err := c.correlator.Send("next", NextArguments{ThreadID: threadID})
	return err
}

// StepIn steps into a call on the given thread.
func (c *Client) StepIn(threadID int) error {
	_, err := c.correlator.Send("stepIn", StepInArguments{ThreadID: threadID})
	return err
}

// StepOut steps out of the current function on the given thread.
func (c *Client) StepOut(threadID int) error {
	_, err := c.correlator.Send("stepOut", StepOutArguments{ThreadID: threadID})
	return err
}

// Pause requests the adapter suspend the given thread.
func (c *Client) Pause(threadID int) error {
	_, err := c.correlator.Send("pause", PauseArguments{ThreadID: threadID})
	return err
}

// Disconnect sends the disconnect request.
func (c *Client) Disconnect(terminateDebuggee bool) error {
	_, err := c.correlator.Send("disconnect", DisconnectArguments{TerminateDebuggee: terminateDebuggee})
	return err
}
