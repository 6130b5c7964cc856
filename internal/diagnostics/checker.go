package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/lo"

	"tikz-playground/internal/domain"
)

const (
	ItemCompiler   = "tool_pdflatex"
	ItemRasterizer = "tool_rasterizer"
	ItemWorkDir    = "work_dir"
)

// Rasterizers lists the accepted PDF to PNG converters in preference order.
var Rasterizers = []string{"pdftoppm", "convert"}

// Checker validates external tools and the working directory.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkCompiler(settings.CompilerPath),
		c.checkRasterizer(),
		c.checkWorkDir(settings.WorkDir),
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: lo.SomeBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Items: items,
	}
}

// checkCompiler verifies the LaTeX compiler is on PATH.
func (c *Checker) checkCompiler(name string) domain.DiagnosticItem {
	if strings.TrimSpace(name) == "" {
		name = "pdflatex"
	}

	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      ItemCompiler,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install a TeX distribution with pgf/tikz and standalone (e.g. texlive-latex-extra).",
			Fixable: true,
		}
	}

	return domain.DiagnosticItem{
		ID:      ItemCompiler,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkRasterizer passes when either accepted converter is on PATH.
func (c *Checker) checkRasterizer() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   ItemRasterizer,
		Name: "Rasterizer",
	}

	for _, name := range Rasterizers {
		if path, err := c.lookPath(name); err == nil {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Using %s at %s", name, path)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = "Neither pdftoppm nor convert found in PATH."
	item.Hint = "Install `pdftoppm` (poppler-utils) or `convert` (ImageMagick)."
	item.Fixable = true
	return item
}

// checkWorkDir validates work directory existence and write access.
func (c *Checker) checkWorkDir(workDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   ItemWorkDir,
		Name: "Work directory",
	}

	if strings.TrimSpace(workDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Work directory is empty."
		item.Hint = "Set workDir in settings or TIKZ_WORKDIR in the environment."
		item.Fixable = true
		return item
	}

	if err := c.mkdirAll(workDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create work directory: %s", workDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		item.Fixable = true
		return item
	}

	tmpFile, err := c.createTemp(workDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Work directory is not writable: %s", workDir)
		item.Hint = "Choose a writable directory for compiler artifacts."
		item.Fixable = true
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", workDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
