package compile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	StageValidating  = "validating"
	StageTypesetting = "typesetting"
	StageRasterizing = "rasterizing"
)

// Fixed artifact names inside a workspace.
const (
	TeXFileName         = "drawing.tex"
	PDFFileName         = "drawing.pdf"
	PNGFileName         = "drawing.png"
	StdoutLogFileName   = "stdout.log"
	CompilerLogFileName = "drawing.log"
)

const (
	defaultCompiler = "pdflatex"
	defaultDensity  = 300
)

// Request contains drawing source and execution callbacks for one run.
type Request struct {
	JobID   string
	Source  string
	OnStage func(stage string)
	OnLog   func(log CommandLog)
}

// Result contains artifact paths and command logs of a successful run.
type Result struct {
	JobID      string
	Dir        string
	TeXPath    string
	PDFPath    string
	ImagePath  string
	Rasterizer string
	Logs       []CommandLog
	tempDir    string
}

// Cleanup removes the per-job workspace created by Run. It is a no-op for
// the shared workspace.
func (r *Result) Cleanup() error {
	if r == nil || r.tempDir == "" {
		return nil
	}

	if err := os.RemoveAll(r.tempDir); err != nil {
		return err
	}
	r.tempDir = ""
	return nil
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string        `json:"command"`
	Args     []string      `json:"args"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// Rasterizer describes one external PDF to PNG converter.
type Rasterizer struct {
	Name string
	Args func(pdfPath, pngPath string) []string
}

// DefaultRasterizers returns pdftoppm followed by ImageMagick convert, the
// order in which availability is probed.
func DefaultRasterizers(density int) []Rasterizer {
	if density <= 0 {
		density = defaultDensity
	}
	return []Rasterizer{
		{Name: "pdftoppm", Args: buildPdftoppmArgs},
		{Name: "convert", Args: func(pdfPath, pngPath string) []string {
			return buildConvertArgs(density, pdfPath, pngPath)
		}},
	}
}

// Options configures the production pipeline.
type Options struct {
	CompilerPath    string
	Rasterizers     []Rasterizer
	WorkDir         string
	Shared          bool
	CompileTimeout  time.Duration
	RasterTimeout   time.Duration
	PreviewMaxWidth int
}

// Pipeline orchestrates template substitution, pdflatex and rasterization.
type Pipeline struct {
	opts      Options
	runner    commandRunner
	lookPath  func(file string) (string, error)
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	stat      func(name string) (os.FileInfo, error)
	mkdirAll  func(path string, perm os.FileMode) error
	writeFile func(name string, data []byte, perm os.FileMode) error
	readFile  func(name string) ([]byte, error)

	// shared holds one token; runs reusing the fixed filenames take it first.
	shared chan struct{}
}

// NewPipeline constructs the production pipeline with OS dependencies.
func NewPipeline(opts Options) *Pipeline {
	return newPipeline(opts, newExecRunner(), exec.LookPath, os.MkdirTemp, os.RemoveAll, os.Stat)
}

func newPipeline(
	opts Options,
	runner commandRunner,
	lookPath func(string) (string, error),
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
) *Pipeline {
	if strings.TrimSpace(opts.CompilerPath) == "" {
		opts.CompilerPath = defaultCompiler
	}
	if opts.Rasterizers == nil {
		opts.Rasterizers = DefaultRasterizers(defaultDensity)
	}
	if strings.TrimSpace(opts.WorkDir) == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "tikz-playground")
	}

	return &Pipeline{
		opts:      opts,
		runner:    runner,
		lookPath:  lookPath,
		mkdirTemp: mkdirTemp,
		removeAll: removeAll,
		stat:      stat,
		mkdirAll:  os.MkdirAll,
		writeFile: os.WriteFile,
		readFile:  os.ReadFile,
		shared:    make(chan struct{}, 1),
	}
}

// WorkDir returns the root directory under which workspaces are created.
func (p *Pipeline) WorkDir() string {
	return p.opts.WorkDir
}

// Run validates the source, typesets it and rasterizes the resulting PDF.
// Every failure is returned as a *PipelineError.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Source) == "" {
		return Result{}, &PipelineError{
			Stage:   StageValidating,
			Kind:    KindInput,
			Message: "Please enter TikZ code.",
		}
	}

	if p.opts.Shared {
		select {
		case p.shared <- struct{}{}:
			defer func() { <-p.shared }()
		case <-ctx.Done():
			return Result{}, &PipelineError{
				Stage:   StageTypesetting,
				Kind:    KindCancelled,
				Message: "job cancelled while waiting for the shared workspace",
				Err:     ctx.Err(),
			}
		}
	}

	dir, tempDir, err := p.workspace(req.JobID)
	if err != nil {
		return Result{}, &PipelineError{
			Stage:   StageTypesetting,
			Kind:    KindWorkspace,
			Message: "failed to prepare workspace",
			Err:     err,
		}
	}

	result := Result{
		JobID:     req.JobID,
		Dir:       dir,
		TeXPath:   filepath.Join(dir, TeXFileName),
		PDFPath:   filepath.Join(dir, PDFFileName),
		ImagePath: filepath.Join(dir, PNGFileName),
		tempDir:   tempDir,
	}

	if err := p.execute(ctx, req, &result); err != nil {
		var pErr *PipelineError
		if !errors.As(err, &pErr) {
			pErr = &PipelineError{Stage: StageTypesetting, Kind: KindUnexpected, Message: err.Error(), Err: err}
		}
		if pErr.Kind != KindToolMissing {
			p.attachCompilerLog(pErr, dir)
		}
		if tempDir != "" {
			_ = p.removeAll(tempDir)
		}
		return Result{}, pErr
	}

	return result, nil
}

// workspace returns the directory for this run and, for per-job
// workspaces, the path Cleanup must remove.
func (p *Pipeline) workspace(jobID string) (string, string, error) {
	if err := p.mkdirAll(p.opts.WorkDir, 0o755); err != nil {
		return "", "", err
	}
	if p.opts.Shared {
		return p.opts.WorkDir, "", nil
	}

	pattern := "job-*"
	if id := sanitizeJobID(jobID); id != "" {
		pattern = "job-" + id + "-*"
	}
	dir, err := p.mkdirTemp(p.opts.WorkDir, pattern)
	if err != nil {
		return "", "", err
	}
	return dir, dir, nil
}

// execute runs the linear write, typeset, rasterize sequence.
func (p *Pipeline) execute(ctx context.Context, req Request, result *Result) error {
	if err := p.writeFile(result.TeXPath, []byte(RenderDocument(req.Source)), 0o644); err != nil {
		return &PipelineError{
			Stage:   StageTypesetting,
			Kind:    KindWorkspace,
			Message: fmt.Sprintf("cannot write document source: %s", result.TeXPath),
			Err:     err,
		}
	}

	emitStage(req.OnStage, StageTypesetting)
	args := buildCompilerArgs(TeXFileName)
	texLog, err := p.invoke(ctx, StageTypesetting, p.opts.CompileTimeout, result.Dir, p.opts.CompilerPath, args)
	emitLog(req.OnLog, texLog)
	result.Logs = append(result.Logs, texLog)
	_ = p.writeFile(filepath.Join(result.Dir, StdoutLogFileName), []byte(strings.TrimSpace(texLog.Stdout)), 0o644)
	if err != nil {
		if pErr := asPipelineError(err); pErr != nil {
			return pErr
		}
		return &PipelineError{
			Stage:      StageTypesetting,
			Kind:       KindTypeset,
			Message:    fmt.Sprintf("%s returned a failure", p.opts.CompilerPath),
			CommandLog: texLog,
			Err:        err,
		}
	}

	if _, err := p.stat(result.PDFPath); err != nil {
		return &PipelineError{
			Stage:      StageTypesetting,
			Kind:       KindTypeset,
			Message:    fmt.Sprintf("%s completed but %s is missing", p.opts.CompilerPath, PDFFileName),
			CommandLog: texLog,
			Err:        err,
		}
	}

	rasterizer, ok := lo.Find(p.opts.Rasterizers, func(r Rasterizer) bool {
		_, err := p.lookPath(r.Name)
		return err == nil
	})
	if !ok {
		names := lo.Map(p.opts.Rasterizers, func(r Rasterizer, _ int) string { return r.Name })
		return &PipelineError{
			Stage:   StageRasterizing,
			Kind:    KindToolMissing,
			Message: fmt.Sprintf("no rasterizer found on PATH (tried %s)", strings.Join(names, ", ")),
		}
	}

	emitStage(req.OnStage, StageRasterizing)
	result.Rasterizer = rasterizer.Name
	rasterArgs := rasterizer.Args(result.PDFPath, result.ImagePath)
	rasterLog, err := p.invoke(ctx, StageRasterizing, p.opts.RasterTimeout, result.Dir, rasterizer.Name, rasterArgs)
	emitLog(req.OnLog, rasterLog)
	result.Logs = append(result.Logs, rasterLog)
	if err != nil {
		if pErr := asPipelineError(err); pErr != nil {
			return pErr
		}
		return &PipelineError{
			Stage:      StageRasterizing,
			Kind:       KindRasterize,
			Message:    fmt.Sprintf("%s conversion failed", rasterizer.Name),
			CommandLog: rasterLog,
			Err:        err,
		}
	}

	info, err := p.stat(result.ImagePath)
	if err == nil && info.Size() == 0 {
		err = fmt.Errorf("empty image file: %s", result.ImagePath)
	}
	if err != nil {
		return &PipelineError{
			Stage:      StageRasterizing,
			Kind:       KindRasterize,
			Message:    fmt.Sprintf("%s completed but %s is missing", rasterizer.Name, PNGFileName),
			CommandLog: rasterLog,
			Err:        err,
		}
	}

	if err := limitWidth(result.ImagePath, p.opts.PreviewMaxWidth); err != nil {
		return &PipelineError{
			Stage:   StageRasterizing,
			Kind:    KindRasterize,
			Message: "cannot scale preview image",
			Err:     err,
		}
	}

	return nil
}

// invoke runs one external command under its own deadline and translates
// deadline expiry and caller cancellation into pipeline errors.
func (p *Pipeline) invoke(
	ctx context.Context,
	stage string,
	timeout time.Duration,
	dir string,
	name string,
	args []string,
) (CommandLog, error) {
	stepCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	started := time.Now()
	res, runErr := p.runner.Run(stepCtx, dir, name, args...)
	log := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: time.Since(started),
	}
	if runErr == nil {
		return log, nil
	}

	if ctx.Err() != nil {
		return log, &PipelineError{
			Stage:      stage,
			Kind:       KindCancelled,
			Message:    "job cancelled",
			CommandLog: log,
			Err:        ctx.Err(),
		}
	}
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return log, &PipelineError{
			Stage:      stage,
			Kind:       KindTimeout,
			Message:    fmt.Sprintf("%s timed out after %s", name, timeout),
			CommandLog: log,
			Timeout:    timeout,
			Err:        stepCtx.Err(),
		}
	}
	return log, runErr
}

// attachCompilerLog reads drawing.log from the workspace when present.
func (p *Pipeline) attachCompilerLog(pErr *PipelineError, dir string) {
	content, err := p.readFile(filepath.Join(dir, CompilerLogFileName))
	if err != nil {
		return
	}
	pErr.CompilerLog = string(content)
	pErr.HasCompilerLog = true
}

func asPipelineError(err error) *PipelineError {
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr
	}
	return nil
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// buildCompilerArgs builds non-interactive pdflatex args. texFile is
// relative to the workspace: paranoid kpathsea refuses absolute input names.
func buildCompilerArgs(texFile string) []string {
	return []string{
		"--interaction=nonstopmode",
		"-no-shell-escape",
		texFile,
	}
}

// buildPdftoppmArgs converts the single page at default resolution.
// pdftoppm appends the extension itself.
func buildPdftoppmArgs(pdfPath, pngPath string) []string {
	return []string{
		"-png",
		"-singlefile",
		pdfPath,
		strings.TrimSuffix(pngPath, filepath.Ext(pngPath)),
	}
}

// buildConvertArgs builds ImageMagick args at a fixed density.
func buildConvertArgs(density int, pdfPath, pngPath string) []string {
	return []string{
		"-density", fmt.Sprintf("%d", density),
		pdfPath,
		pngPath,
	}
}

// sanitizeJobID keeps only characters safe for a directory name.
func sanitizeJobID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(id))
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	opts Options,
	runner commandRunner,
	lookPath func(string) (string, error),
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
) *Pipeline {
	return newPipeline(opts, runner, lookPath, mkdirTemp, removeAll, stat)
}
