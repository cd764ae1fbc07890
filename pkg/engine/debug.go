package engine

import (
	"fmt"
	"io"
	"os"
	"time"
)

// DebugLevel defines verbosity
type DebugLevel int

const (
	DebugNone DebugLevel = iota
	DebugOps
	DebugTrace
	DebugExplain
)

// DebugEnvVar selects the level read by DebugContextFromEnv
const DebugEnvVar = "CHAMELEON_MOCK_DEBUG"

// DebugContext holds debug configuration
type DebugContext struct {
	Level  DebugLevel
	Writer io.Writer // Where to write (stdout, file, etc)

	EnableTiming bool
	ColorOutput  bool
}

// DefaultDebugContext is silent
func DefaultDebugContext() *DebugContext {
	return &DebugContext{
		Level:       DebugNone,
		Writer:      os.Stdout,
		ColorOutput: true,
	}
}

// DebugContextFromEnv reads from environment
func DebugContextFromEnv() *DebugContext {
	return &DebugContext{
		Level:        ParseDebugLevel(os.Getenv(DebugEnvVar)),
		Writer:       os.Stdout,
		EnableTiming: true,
		ColorOutput:  true,
	}
}

// ParseDebugLevel maps "1"/"ops", "trace" and "explain" to a level
func ParseDebugLevel(s string) DebugLevel {
	switch s {
	case "1", "ops":
		return DebugOps
	case "trace":
		return DebugTrace
	case "explain":
		return DebugExplain
	}
	return DebugNone
}

// Log writes debug output
func (dc *DebugContext) Log(level DebugLevel, format string, args ...any) {
	if dc == nil || dc.Level < level {
		return
	}

	var prefix string
	if dc.ColorOutput {
		prefix = colorPrefix(level)
	} else {
		prefix = textPrefix(level)
	}

	fmt.Fprintf(dc.Writer, prefix+format+"\n", args...)
}

// LogOp logs one delegate call
func (dc *DebugContext) LogOp(entity, op string, duration time.Duration, rows int) {
	if dc == nil || dc.Level < DebugOps {
		return
	}

	if dc.Level < DebugTrace {
		dc.Log(DebugOps, "%s.%s (%d rows)", entity, op, rows)
		return
	}

	fmt.Fprintf(dc.Writer, "\n")
	fmt.Fprintf(dc.Writer, "┌─────────────────────────────────────\n")
	fmt.Fprintf(dc.Writer, "│ Operation Trace\n")
	fmt.Fprintf(dc.Writer, "├─────────────────────────────────────\n")
	fmt.Fprintf(dc.Writer, "│ Op: %s.%s\n", entity, op)
	if dc.EnableTiming {
		fmt.Fprintf(dc.Writer, "│ Duration: %v\n", duration)
	}
	fmt.Fprintf(dc.Writer, "│ Rows: %d\n", rows)
	fmt.Fprintf(dc.Writer, "└─────────────────────────────────────\n\n")
}

// LogLookup reports whether an index bucket or a full scan served a read
func (dc *DebugContext) LogLookup(entity string, indexed bool, candidates int) {
	if indexed {
		dc.Log(DebugExplain, "%s: index lookup, %d candidates", entity, candidates)
		return
	}
	dc.Log(DebugExplain, "%s: full scan over %d records", entity, candidates)
}

func colorPrefix(level DebugLevel) string {
	switch level {
	case DebugOps:
		return "\033[36m[DEBUG]\033[0m "
	case DebugTrace:
		return "\033[33m[TRACE]\033[0m "
	case DebugExplain:
		return "\033[35m[EXPLAIN]\033[0m "
	default:
		return ""
	}
}

func textPrefix(level DebugLevel) string {
	switch level {
	case DebugOps:
		return "[DEBUG] "
	case DebugTrace:
		return "[TRACE] "
	case DebugExplain:
		return "[EXPLAIN] "
	default:
		return ""
	}
}
