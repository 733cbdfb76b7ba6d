package debugsession

import (
	"sort"

	"github.com/debugbridge/server/internal/bridgeerr"
	"github.com/debugbridge/server/internal/eventbus"
)

// Breakpoint is the server's view of one line breakpoint: the server
// owns File/Line, the adapter owns ID/Verified.
type Breakpoint struct {
	ID       int    `json:"id"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Verified bool   `json:"verified"`
}

// SetBreakpoint adds line to the desired set for file (a no-op if
// already present) and sends the entire set as an absolute replacement,
// positionally matching the adapter's response back onto the cached
// list by index when the adapter omits an id.
func (s *Session) SetBreakpoint(file string, line int) (Breakpoint, error) {
	if err := s.guard("set_breakpoint", StateStarting, StateRunning, StatePaused); err != nil {
		return Breakpoint{}, err
	}
	if line < 1 {
		return Breakpoint{}, bridgeerr.InvalidArgumentf("set_breakpoint", "line must be >= 1, got %d", line)
	}

	s.mu.Lock()
	lines := addLine(linesForFile(s.breakpoints[file]), line)
	s.mu.Unlock()

	reconciled, err := s.reconcile(file, lines)
	if err != nil {
		return Breakpoint{}, err
	}

	for _, bp := range reconciled {
		if bp.Line == line {
			s.publish(eventbus.TopicBreakpointAdded, eventbus.BreakpointEvent{SessionID: s.id, File: bp.File, Line: bp.Line, Verified: bp.Verified})
			return bp, nil
		}
	}
	return Breakpoint{}, bridgeerr.InvalidArgumentf("set_breakpoint", "adapter response omitted line %d", line)
}

// RemoveBreakpoint removes line from the desired set for file and sends
// the reduced set as the new absolute replacement.
func (s *Session) RemoveBreakpoint(file string, line int) error {
	if err := s.guard("remove_breakpoint", StateStarting, StateRunning, StatePaused); err != nil {
		return err
	}

	s.mu.Lock()
	lines := removeLine(linesForFile(s.breakpoints[file]), line)
	s.mu.Unlock()

	if _, err := s.reconcile(file, lines); err != nil {
		return err
	}
	s.publish(eventbus.TopicBreakpointRemoved, eventbus.BreakpointEvent{SessionID: s.id, File: file, Line: line})
	return nil
}

// ListBreakpoints returns the cached breakpoint list for file, or for
// every file when file is empty.
func (s *Session) ListBreakpoints(file string) []Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if file != "" {
		return append([]Breakpoint{}, s.breakpoints[file]...)
	}

	var all []Breakpoint
	files := make([]string, 0, len(s.breakpoints))
	for f := range s.breakpoints {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		all = append(all, s.breakpoints[f]...)
	}
	return all
}

// reconcile sends the full desired line list for file through the DAP
// client and replaces the cached entries with the adapter's response,
// preserving positional correspondence even when the adapter omits an id.
func (s *Session) reconcile(file string, lines []int) ([]Breakpoint, error) {
	result, err := s.client.SetBreakpoints(file, lines)
	if err != nil {
		return nil, bridgeerr.WrapProtocol("setBreakpoints", err)
	}

	out := make([]Breakpoint, len(lines))
	for i, line := range lines {
		bp := Breakpoint{File: file, Line: line, ID: i}
		if i < len(result) {
			adapterBP := result[i]
			bp.Verified = adapterBP.Verified
			if adapterBP.ID != 0 {
				bp.ID = adapterBP.ID
			}
			if adapterBP.Line != 0 {
				bp.Line = adapterBP.Line
			}
		}
		out[i] = bp
	}

	s.mu.Lock()
	if len(out) == 0 {
		delete(s.breakpoints, file)
	} else {
		s.breakpoints[file] = out
	}
	s.mu.Unlock()

	return out, nil
}

func linesForFile(bps []Breakpoint) []int {
	lines := make([]int, len(bps))
	for i, bp := range bps {
		lines[i] = bp.Line
	}
	return lines
}

func addLine(lines []int, line int) []int {
	for _, l := range lines {
		if l == line {
			return lines
		}
	}
	return append(lines, line)
}

func removeLine(lines []int, line int) []int {
	out := lines[:0:0]
	for _, l := range lines {
		if l != line {
			out = append(out, l)
		}
	}
	return out
}
