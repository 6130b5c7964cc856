package compile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// maxCapturedOutput bounds how much of each output stream is kept.
const maxCapturedOutput = 1 << 20

// texRestrictions puts kpathsea into paranoid mode so documents can only
// read and write below the working directory and never run shell commands.
var texRestrictions = []string{
	"openin_any=p",
	"openout_any=p",
	"shell_escape=f",
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct {
	env       []string
	waitDelay time.Duration
}

func newExecRunner() *execRunner {
	return &execRunner{
		env:       texRestrictions,
		waitDelay: 2 * time.Second,
	}
}

// Run executes one command in dir and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, dir, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = r.environ(dir)
	cmd.WaitDelay = r.waitDelay

	stdout := &cappedBuffer{limit: maxCapturedOutput}
	stderr := &cappedBuffer{limit: maxCapturedOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// environ returns the process environment for a run in dir, or nil to
// inherit the parent's. TEXMFOUTPUT names dir as the one absolute prefix
// paranoid mode still accepts.
func (r *execRunner) environ(dir string) []string {
	if len(r.env) == 0 {
		return nil
	}
	env := append(os.Environ(), r.env...)
	if dir != "" {
		env = append(env, "TEXMFOUTPUT="+dir)
	}
	return env
}

// cappedBuffer keeps the first limit bytes written and discards the rest
// while still reporting full writes to the producer.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
