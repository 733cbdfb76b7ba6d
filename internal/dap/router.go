package dap

import (
	"encoding/json"
	"sync"
)

// Router fans out adapter-pushed events to typed handlers, in the order
// they arrive on the socket. It does not itself serialize delivery
// across goroutines — callers must invoke Dispatch from a single
// receive loop, which is how Client uses it.
type Router struct {
	mu sync.RWMutex

	onInitialized func()
	onStopped     func(StoppedEventBody)
	onContinued   func(ContinuedEventBody)
	onTerminated  func()
	onExited      func(ExitedEventBody)
	onThread      func(ThreadEventBody)
	onOutput      func(OutputEventBody)
	onBreakpoint  func(BreakpointEventBody)
	onModule      func(ModuleEventBody)
	onAny         func(name string, raw json.RawMessage)
}

// NewRouter returns an empty Router; handlers are registered with the
// OnXxx setters before the owning Client starts its receive loop.
func NewRouter() *Router {
	return &Router{}
}

func (r *Router) OnInitialized(fn func())                      { r.set(func() { r.onInitialized = fn }) }
func (r *Router) OnStopped(fn func(StoppedEventBody))           { r.set(func() { r.onStopped = fn }) }
func (r *Router) OnContinued(fn func(ContinuedEventBody))       { r.set(func() { r.onContinued = fn }) }
func (r *Router) OnTerminated(fn func())                        { r.set(func() { r.onTerminated = fn }) }
func (r *Router) OnExited(fn func(ExitedEventBody))             { r.set(func() { r.onExited = fn }) }
func (r *Router) OnThread(fn func(ThreadEventBody))             { r.set(func() { r.onThread = fn }) }
func (r *Router) OnOutput(fn func(OutputEventBody))             { r.set(func() { r.onOutput = fn }) }
func (r *Router) OnBreakpoint(fn func(BreakpointEventBody))     { r.set(func() { r.onBreakpoint = fn }) }
func (r *Router) OnModule(fn func(ModuleEventBody))             { r.set(func() { r.onModule = fn }) }
func (r *Router) OnAny(fn func(name string, raw json.RawMessage)) { r.set(func() { r.onAny = fn }) }

func (r *Router) set(mutate func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate()
}

// Dispatch decodes one adapter event and invokes the matching typed
// handler. Unrecognized event names are still passed to OnAny, if set,
// with their raw body so that informational events (module, process,
// capabilities) are never silently swallowed.
func (r *Router) Dispatch(ev *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch ev.Event {
	case "initialized":
		if r.onInitialized != nil {
			r.onInitialized()
		}
	case "stopped":
		var body StoppedEventBody
		if json.Unmarshal(ev.Body, &body) == nil && r.onStopped != nil {
			r.onStopped(body)
		}
	case "continued":
		var body ContinuedEventBody
		if json.Unmarshal(ev.Body, &body) == nil && r.onContinued != nil {
			r.onContinued(body)
		}
	case "terminated":
		if r.onTerminated != nil {
			r.onTerminated()
		}
	case "exited":
		var body ExitedEventBody
		if json.Unmarshal(ev.Body, &body) == nil && r.onExited != nil {
			r.onExited(body)
		}
	case "thread":
		var body ThreadEventBody
		if json.Unmarshal(ev.Body, &body) == nil && r.onThread != nil {
			r.onThread(body)
		}
	case "output":
		var body OutputEventBody
		if json.Unmarshal(ev.Body, &body) == nil && r.onOutput != nil {
			r.onOutput(body)
		}
	case "breakpoint":
		var body BreakpointEventBody
		if json.Unmarshal(ev.Body, &body) == nil && r.onBreakpoint != nil {
			r.onBreakpoint(body)
		}
	case "module":
		var body ModuleEventBody
		if json.Unmarshal(ev.Body, &body) == nil && r.onModule != nil {
			r.onModule(body)
		}
	}

	if r.onAny != nil {
		r.onAny(ev.Event, ev.Body)
	}
}
