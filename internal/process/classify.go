package process

import "strings"

// OutputCategory classifies one line of captured adapter output.
type OutputCategory int

const (
	// CategorySuppressed is a bootstrap line that carries no information
	// worth surfacing (the adapter announcing itself, waiting for a client).
	CategorySuppressed OutputCategory = iota
	CategoryProgramOutput
	CategoryProgramError
)

// bootstrapMarkers are substrings of debugpy/CPython startup chatter on
// stderr that carry no diagnostic value once the adapter is running.
var bootstrapMarkers = []string{
	"debugpy",
	"Waiting for debugger",
}

// errorPrefixes are the line prefixes (after trimming) that mark a line
// as program-reported error rather than ordinary program output: a
// Python traceback header or one of the common built-in exception names.
var errorPrefixes = []string{
	"Traceback",
	"Exception",
	"TypeError:",
	"ValueError:",
	"KeyError:",
	"IndexError:",
	"AttributeError:",
	"NameError:",
	"SyntaxError:",
	"RuntimeError:",
	"ImportError:",
	"ModuleNotFoundError:",
	"FileNotFoundError:",
	"PermissionError:",
}

// Classify categorizes one already-trimmed line of captured output by
// content alone: a line matching a known error prefix is a program
// error, an unmatched bootstrap marker on stderr is suppressed, and
// everything else is program output. This is the Process Supervisor's
// own classification of a subprocess's raw stdout/stderr capture: an
// ordinary stderr line (a warning, a log message) is not, by itself,
// evidence of a program error. fromStderr only gates which lines count
// as bootstrap chatter, matching where the adapter actually emits it.
func Classify(line string, fromStderr bool) OutputCategory {
	if fromStderr {
		for _, marker := range bootstrapMarkers {
			if strings.Contains(line, marker) {
				return CategorySuppressed
			}
		}
	}

	for _, prefix := range errorPrefixes {
		if strings.HasPrefix(line, prefix) {
			return CategoryProgramError
		}
	}

	return CategoryProgramOutput
}

// ClassifyDAPOutput categorizes one line from a DAP "output" event,
// where the adapter's own category field is itself meaningful: debugpy
// routes a line to its stderr category to mean the program wrote to its
// error stream, so an unmatched stderr line is still reported as a
// program error here, unlike Classify's stream-agnostic verdict.
func ClassifyDAPOutput(line string, fromStderr bool) OutputCategory {
	if cat := Classify(line, fromStderr); cat != CategoryProgramOutput {
		return cat
	}
	if fromStderr {
		return CategoryProgramError
	}
	return CategoryProgramOutput
}
