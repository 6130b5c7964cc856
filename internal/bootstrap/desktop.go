package bootstrap

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"tikz-playground/internal/domain"
	"tikz-playground/internal/web"
)

// desktopBridge is the subset of App bound into the desktop webview.
type desktopBridge struct {
	app *App
}

// Compile runs one compilation and returns the image-or-message pair.
func (b *desktopBridge) Compile(source string) domain.CompileResponse {
	return b.app.Compile(source)
}

// Examples returns the snippet catalog.
func (b *desktopBridge) Examples() []domain.ExampleSnippet {
	return b.app.Examples()
}

// Diagnostics returns the latest environment report.
func (b *desktopBridge) Diagnostics() domain.DiagnosticReport {
	return b.app.GetDiagnostics()
}

// CancelJob cancels a running job by ID.
func (b *desktopBridge) CancelJob(jobID string) error {
	return b.app.CancelJob(jobID)
}

// RunDesktop serves the playground inside a native window. The webview
// loads the same page and API as the browser server.
func (a *App) RunDesktop() error {
	srv, err := web.NewServer(a, a.Logger)
	if err != nil {
		return fmt.Errorf("build web server: %w", err)
	}

	return wails.Run(&options.App{
		Title:  "TikZ Playground",
		Width:  1100,
		Height: 820,
		AssetServer: &assetserver.Options{
			Handler: srv.Handler(),
		},
		OnStartup: a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{&desktopBridge{app: a}},
	})
}

// Startup stores the wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}
