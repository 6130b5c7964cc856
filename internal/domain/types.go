package domain

// JobStatus tracks each pipeline stage for a single compilation job.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusTypesetting JobStatus = "typesetting"
	JobStatusRasterizing JobStatus = "rasterizing"
	JobStatusDone        JobStatus = "done"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Settings contains runtime configuration loaded from disk and environment.
type Settings struct {
	ListenAddr            string `json:"listenAddr"`
	WorkDir               string `json:"workDir"`
	SharedWorkDir         bool   `json:"sharedWorkDir"`
	CompilerPath          string `json:"compilerPath"`
	CompileTimeoutSeconds int    `json:"compileTimeoutSeconds"`
	RasterTimeoutSeconds  int    `json:"rasterTimeoutSeconds"`
	RasterDensity         int    `json:"rasterDensity"`
	PreviewMaxWidth       int    `json:"previewMaxWidth"`
	LogLevel              string `json:"logLevel"`
	EventHistory          int    `json:"eventHistory"`
}

// Job stores one compilation's identity and lifecycle status.
type Job struct {
	ID      string    `json:"id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

// CompileResponse is the image-or-diagnostic pair returned to the UI.
// Exactly one of Image and a failure Message is meaningful: OK reports which.
type CompileResponse struct {
	JobID   string `json:"jobId,omitempty"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Image   string `json:"image,omitempty"`
}
