package bootstrap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/bytes"
	"github.com/labstack/gommon/log"

	"tikz-playground/internal/compile"
	"tikz-playground/internal/config"
	"tikz-playground/internal/diagnostics"
	"tikz-playground/internal/domain"
	"tikz-playground/internal/jobs"
	"tikz-playground/internal/web"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// SuccessMessage is shown in the message slot after a successful compile.
const SuccessMessage = "Success!"

// App wires configuration, jobs, pipeline, and UI surfaces.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Registry
	Pipeline    pipelineRunner
	Diagnostics domain.DiagnosticReport
	Logger      *log.Logger
	checker     *diagnostics.Checker
	newJobID    func() string

	mu         sync.Mutex
	events     *jobs.EventBus
	runtimeCtx context.Context
}

// pipelineRunner isolates the compilation pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req compile.Request) (compile.Result, error)
}

// New builds the application with persisted settings, environment
// overrides and startup diagnostics.
func New() (*App, error) {
	store := config.NewJSONStore(config.SettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings, err = config.ApplyEnv(settings, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	settings = config.Normalize(settings)

	logger := NewLogger(settings.LogLevel, os.Stderr)
	checker := diagnostics.NewChecker()
	report := checker.Run(settings)
	for _, item := range report.Items {
		if item.Status == domain.DiagnosticStatusFail {
			logger.Warnf("diagnostic %s: %s", item.ID, item.Message)
		}
	}

	return &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewRegistry(settings.EventHistory),
		Pipeline:    compile.NewPipeline(pipelineOptions(settings)),
		Diagnostics: report,
		Logger:      logger,
		checker:     checker,
		events:      jobs.NewEventBus(settings.EventHistory),
	}, nil
}

// pipelineOptions maps settings onto the compile pipeline.
func pipelineOptions(settings domain.Settings) compile.Options {
	return compile.Options{
		CompilerPath:    settings.CompilerPath,
		Rasterizers:     compile.DefaultRasterizers(settings.RasterDensity),
		WorkDir:         settings.WorkDir,
		Shared:          settings.SharedWorkDir,
		CompileTimeout:  time.Duration(settings.CompileTimeoutSeconds) * time.Second,
		RasterTimeout:   time.Duration(settings.RasterTimeoutSeconds) * time.Second,
		PreviewMaxWidth: settings.PreviewMaxWidth,
	}
}

// Serve runs the browser playground until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	srv, err := web.NewServer(a, a.Logger)
	if err != nil {
		return fmt.Errorf("build web server: %w", err)
	}
	return srv.Start(ctx, a.Settings.ListenAddr)
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings returns the effective runtime settings.
func (a *App) GetSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings
}

// RefreshDiagnostics reruns dependency checks against current settings.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	if a.checker == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostics checker is not configured")
	}
	return a.refreshDiagnosticsFromSettings(a.GetSettings()), nil
}

// Compile runs one compilation and returns the image-or-message pair.
func (a *App) Compile(source string) domain.CompileResponse {
	return a.CompileContext(context.Background(), source)
}

// CompileContext runs one compilation job synchronously. The job is
// cancelled when ctx is done or CancelJob is called with its ID.
func (a *App) CompileContext(ctx context.Context, source string) domain.CompileResponse {
	jobID := a.nextJobID()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := a.Jobs.Start(jobID, cancel); err != nil {
		return domain.CompileResponse{JobID: jobID, Message: err.Error()}
	}
	a.publishStatus(jobID, domain.JobStatusQueued, "Job queued")

	req := compile.Request{
		JobID:  jobID,
		Source: source,
		OnStage: func(stage string) {
			status, ok := mapStageToStatus(stage)
			if !ok {
				return
			}
			if err := a.Jobs.Transition(jobID, status, ""); err == nil {
				a.publishStatus(jobID, status, "Running "+stage+" stage")
			}
		},
		OnLog: func(cmdLog compile.CommandLog) {
			a.publishEvent(commandEvent(jobID, "Command completed", cmdLog))
		},
	}

	result, err := a.Pipeline.Run(ctx, req)
	if err != nil {
		return a.failJob(jobID, err)
	}
	defer func() {
		if cleanupErr := result.Cleanup(); cleanupErr != nil {
			a.Logger.Warnf("job %s: cleanup %s: %v", jobID, result.Dir, cleanupErr)
			a.publishEvent(jobs.Event{
				JobID:   jobID,
				Type:    jobs.EventTypeError,
				Message: fmt.Sprintf("cleanup temporary files: %v", cleanupErr),
			})
		}
	}()

	data, err := os.ReadFile(result.ImagePath)
	if err != nil {
		return a.failJob(jobID, &compile.PipelineError{
			Stage:   compile.StageRasterizing,
			Kind:    compile.KindUnexpected,
			Message: fmt.Sprintf("cannot read rendered image: %s", result.ImagePath),
			Err:     err,
		})
	}

	summary := fmt.Sprintf("Rendered %s with %s", bytes.Format(int64(len(data))), result.Rasterizer)
	if ctx.Err() != nil {
		return a.failJob(jobID, cancelledAfterRun(ctx.Err()))
	}
	if err := a.Jobs.Transition(jobID, domain.JobStatusDone, summary); err != nil {
		// CancelJob won the race after the pipeline finished.
		return a.failJob(jobID, cancelledAfterRun(fmt.Errorf("%w: %v", context.Canceled, err)))
	}
	a.publishStatus(jobID, domain.JobStatusDone, "Job completed")
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeResult,
		Status:  domain.JobStatusDone,
		Message: summary,
	})
	a.Logger.Infof("job %s: %s", jobID, summary)

	return domain.CompileResponse{
		JobID:   jobID,
		OK:      true,
		Message: SuccessMessage,
		Image:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(data),
	}
}

// failJob records a failed or cancelled job and builds its response.
func (a *App) failJob(jobID string, err error) domain.CompileResponse {
	message := compile.Diagnostic(err)

	if errors.Is(err, context.Canceled) {
		_ = a.Jobs.Transition(jobID, domain.JobStatusCancelled, message)
		a.publishStatus(jobID, domain.JobStatusCancelled, "Job cancelled")
		a.Logger.Infof("job %s: cancelled", jobID)
		return domain.CompileResponse{JobID: jobID, Message: message}
	}

	_ = a.Jobs.Transition(jobID, domain.JobStatusFailed, message)
	a.publishStatus(jobID, domain.JobStatusFailed, "Job failed")
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeError,
		Status:  domain.JobStatusFailed,
		Message: message,
	})

	var pipelineErr *compile.PipelineError
	if errors.As(err, &pipelineErr) {
		if pipelineErr.CommandLog.Command != "" {
			a.publishEvent(commandEvent(jobID, "Failed command", pipelineErr.CommandLog))
		}
		if pipelineErr.Kind == compile.KindInput {
			a.Logger.Debugf("job %s: rejected: %s", jobID, pipelineErr.Message)
			return domain.CompileResponse{JobID: jobID, Message: message}
		}
	}

	a.Logger.Warnf("job %s: %v", jobID, err)
	return domain.CompileResponse{JobID: jobID, Message: message}
}

// cancelledAfterRun reports a cancellation that arrived once rendering was done.
func cancelledAfterRun(err error) error {
	return &compile.PipelineError{
		Stage:   compile.StageRasterizing,
		Kind:    compile.KindCancelled,
		Message: "job cancelled",
		Err:     err,
	}
}

// GetJob returns one job's status.
func (a *App) GetJob(jobID string) (domain.Job, error) {
	return a.Jobs.Get(jobID)
}

// CancelJob cancels a running job by ID.
func (a *App) CancelJob(jobID string) error {
	if err := a.Jobs.Cancel(jobID); err != nil {
		return err
	}
	a.publishStatus(jobID, domain.JobStatusCancelled, "Cancellation requested")
	return nil
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// SubscribeEvents registers a live event listener.
func (a *App) SubscribeEvents() (<-chan jobs.Event, func()) {
	return a.events.Subscribe()
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits desktop push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

func (a *App) nextJobID() string {
	if a.newJobID != nil {
		return a.newJobID()
	}
	return uuid.NewString()
}

// commandEvent converts a command log into a log event.
func commandEvent(jobID, message string, cmdLog compile.CommandLog) jobs.Event {
	return jobs.Event{
		JobID:      jobID,
		Type:       jobs.EventTypeLog,
		Message:    message,
		Command:    cmdLog.Command,
		Args:       cmdLog.Args,
		ExitCode:   cmdLog.ExitCode,
		Stdout:     cmdLog.Stdout,
		Stderr:     cmdLog.Stderr,
		DurationMs: cmdLog.Duration.Milliseconds(),
	}
}

// mapStageToStatus maps pipeline stage names to job statuses.
func mapStageToStatus(stage string) (domain.JobStatus, bool) {
	switch stage {
	case compile.StageTypesetting:
		return domain.JobStatusTypesetting, true
	case compile.StageRasterizing:
		return domain.JobStatusRasterizing, true
	default:
		return "", false
	}
}
