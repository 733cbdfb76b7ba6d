package debugsession

import (
	"strings"

	"github.com/debugbridge/server/internal/bridgeerr"
)

// currentThread returns the thread id to act on, failing if none is set.
func (s *Session) currentThread(op string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasThread {
		return 0, bridgeerr.InvalidArgumentf(op, "no active thread")
	}
	return s.currentThreadID, nil
}

// currentFrame returns the frame id to act on, failing if none is set.
func (s *Session) currentFrame(op string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasFrame {
		return 0, bridgeerr.InvalidArgumentf(op, "no active frame")
	}
	return s.currentFrameID, nil
}

// Continue resumes the current thread. The session's state transitions
// to Running only when the adapter's "continued" event arrives, not on
// this call's response.
func (s *Session) Continue() error {
	if err := s.guard("debug_continue", StatePaused); err != nil {
		return err
	}
	threadID, err := s.currentThread("debug_continue")
	if err != nil {
		return err
	}
	if _, err := s.client.Continue(threadID); err != nil {
		return bridgeerr.WrapProtocol("continue", err)
	}
	return nil
}

// StepOver performs "next" on the current thread.
func (s *Session) StepOver() error { return s.step("debug_step_over", s.client.Next) }

// StepIn performs "stepIn" on the current thread.
func (s *Session) StepIn() error { return s.step("debug_step_in", s.client.StepIn) }

// StepOut performs "stepOut" on the current thread.
func (s *Session) StepOut() error { return s.step("debug_step_out", s.client.StepOut) }

func (s *Session) step(op string, send func(threadID int) error) error {
	if err := s.guard(op, StatePaused); err != nil {
		return err
	}
	threadID, err := s.currentThread(op)
	if err != nil {
		return err
	}
	if err := send(threadID); err != nil {
		return bridgeerr.WrapProtocol(op, err)
	}
	return nil
}

// Pause requests the adapter suspend the current thread.
func (s *Session) Pause() error {
	if err := s.guard("pause", StateRunning); err != nil {
		return err
	}
	threadID, err := s.currentThread("pause")
	if err != nil {
		return err
	}
	if err := s.client.Pause(threadID); err != nil {
		return bridgeerr.WrapProtocol("pause", err)
	}
	return nil
}

// CallStackEntry is one frame returned by GetCallStack.
type CallStackEntry struct {
	Name string `json:"name"`
	File string `json:"file"`
	Line int    `json:"line"`
}

// GetCallStack returns the call stack for the current thread.
func (s *Session) GetCallStack() ([]CallStackEntry, error) {
	if err := s.guard("get_call_stack", StatePaused); err != nil {
		return nil, err
	}
	threadID, err := s.currentThread("get_call_stack")
	if err != nil {
		return nil, err
	}

	frames, err := s.client.StackTrace(threadID)
	if err != nil {
		return nil, bridgeerr.WrapProtocol("stackTrace", err)
	}

	out := make([]CallStackEntry, len(frames))
	for i, f := range frames {
		entry := CallStackEntry{Name: f.Name, Line: f.Line}
		if f.Source != nil {
			entry.File = f.Source.Path
		}
		out[i] = entry
	}
	return out, nil
}

// VariableEntry is one inspected variable, tagged with the scope it
// came from.
type VariableEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
	Scope string `json:"scope"`
}

// GetVariables returns variables from the current frame's scopes whose
// name matches scopeFilter via case-insensitive substring ("local",
// "global", or "all" to take every scope).
func (s *Session) GetVariables(scopeFilter string) ([]VariableEntry, error) {
	if err := s.guard("get_variables", StatePaused); err != nil {
		return nil, err
	}
	frameID, err := s.currentFrame("get_variables")
	if err != nil {
		return nil, err
	}

	scopes, err := s.client.Scopes(frameID)
	if err != nil {
		return nil, bridgeerr.WrapProtocol("scopes", err)
	}

	filter := strings.ToLower(scopeFilter)
	if filter == "" {
		filter = "local"
	}

	var out []VariableEntry
	for _, scope := range scopes {
		if filter != "all" && !strings.Contains(strings.ToLower(scope.Name), filter) {
			continue
		}
		vars, err := s.client.Variables(scope.VariablesReference)
		if err != nil {
			return nil, bridgeerr.WrapProtocol("variables", err)
		}
		for _, v := range vars {
			out = append(out, VariableEntry{Name: v.Name, Value: v.Value, Type: v.Type, Scope: scope.Name})
		}
	}
	return out, nil
}

// EvaluateResult is the outcome of evaluating an expression in the
// current frame. AdapterError is set (and Result/Type empty) when the
// adapter reports an inspection failure; that failure is surfaced as
// data here, never returned as the method's error.
type EvaluateResult struct {
	Result       string `json:"result"`
	Type         string `json:"type"`
	AdapterError string `json:"error,omitempty"`
}

// Evaluate evaluates expression in the context of the current frame.
func (s *Session) Evaluate(expression string) (EvaluateResult, error) {
	if err := s.guard("evaluate_expression", StatePaused); err != nil {
		return EvaluateResult{}, err
	}
	frameID, err := s.currentFrame("evaluate_expression")
	if err != nil {
		return EvaluateResult{}, err
	}

	body, err := s.client.Evaluate(expression, frameID)
	if err != nil {
		return EvaluateResult{AdapterError: err.Error()}, nil
	}
	return EvaluateResult{Result: body.Result, Type: body.Type}, nil
}
