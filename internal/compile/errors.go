package compile

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies pipeline failures for diagnostics and job events.
type Kind string

const (
	KindInput       Kind = "input"
	KindWorkspace   Kind = "workspace"
	KindTypeset     Kind = "typeset"
	KindToolMissing Kind = "tool_missing"
	KindRasterize   Kind = "rasterize"
	KindTimeout     Kind = "timeout"
	KindCancelled   Kind = "cancelled"
	KindUnexpected  Kind = "unexpected"
)

// ToolMissingMessage names the two acceptable rasterizers.
const ToolMissingMessage = "Error: install `pdftoppm` (poppler-utils) or `convert` (ImageMagick)."

const compileFailedPrefix = "LaTeX compilation failed. Check your code."

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage          string        `json:"stage"`
	Kind           Kind          `json:"kind"`
	Message        string        `json:"message"`
	CommandLog     CommandLog    `json:"commandLog"`
	CompilerLog    string        `json:"compilerLog,omitempty"`
	HasCompilerLog bool          `json:"hasCompilerLog"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	Err            error         `json:"-"`
}

// Error formats pipeline failures for logs.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Diagnostic converts a Run error into the text shown in the message slot.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}

	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		return fmt.Sprintf("%s %v", compileFailedPrefix, err)
	}

	switch pErr.Kind {
	case KindInput:
		return pErr.Message
	case KindToolMissing:
		return ToolMissingMessage
	case KindCancelled:
		return "Compilation cancelled."
	}

	var b strings.Builder
	if pErr.Kind == KindTimeout {
		fmt.Fprintf(&b, "Timed out while %s after %s.", pErr.Stage, pErr.Timeout)
	} else {
		fmt.Fprintf(&b, "%s %s", compileFailedPrefix, pErr.Error())
		if pErr.Err != nil {
			fmt.Fprintf(&b, ": %v", pErr.Err)
		}
	}
	if pErr.HasCompilerLog {
		b.WriteString("\nLog Contents:\n")
		b.WriteString(pErr.CompilerLog)
	}
	return b.String()
}
