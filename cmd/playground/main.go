package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"tikz-playground/internal/bootstrap"
	"tikz-playground/internal/domain"
)

func main() {
	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	printDiagnostics(app.GetDiagnostics())
	pterm.Info.Println(fmt.Sprintf("TikZ playground listening on http://%s", app.GetSettings().ListenAddr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Serve(ctx); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func printDiagnostics(report domain.DiagnosticReport) {
	data := [][]string{{"Check", "Status", "Details"}}
	for _, item := range report.Items {
		data = append(data, []string{item.Name, string(item.Status), item.Message})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	if report.HasFailures {
		pterm.Error.Println("Some checks failed; compiles may return errors until they are fixed.")
	}
}
