package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/samber/lo"

	"tikz-playground/internal/config"
	"tikz-playground/internal/diagnostics"
	"tikz-playground/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// commandRunFunc runs one remediation command to completion.
type commandRunFunc func(name string, args ...string) error

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings := a.GetSettings()
	settingsChanged := false
	var fixErr error

	switch id {
	case diagnostics.ItemCompiler:
		fixErr = installCompilerForCurrentOS()
	case diagnostics.ItemRasterizer:
		fixErr = installRasterizerForCurrentOS()
	case diagnostics.ItemWorkDir:
		settings, settingsChanged, fixErr = installOrFixWorkDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged && a.Store != nil {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		a.Logger.Warnf("fix %s: %v", id, fixErr)
		return report, fixErr
	}
	return report, nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

func installCompilerForCurrentOS() error {
	if err := runFirstSuccessfulInstall(compilerInstallOptions(goruntime.GOOS), runCommandWithPossibleElevation); err != nil {
		return fmt.Errorf("install pdflatex: %w", err)
	}
	if err := requireAnyToolOnPath("pdflatex"); err != nil {
		return fmt.Errorf("verify pdflatex on PATH: %w", err)
	}
	return nil
}

func installRasterizerForCurrentOS() error {
	if err := runFirstSuccessfulInstall(rasterizerInstallOptions(goruntime.GOOS), runCommandWithPossibleElevation); err != nil {
		return fmt.Errorf("install pdftoppm/convert: %w", err)
	}
	if err := requireAnyToolOnPath(diagnostics.Rasterizers...); err != nil {
		return fmt.Errorf("verify rasterizer on PATH: %w", err)
	}
	return nil
}

// compilerInstallOptions lists TeX distributions carrying pgf, pgfplots and
// standalone, per package manager.
func compilerInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{
				{"winget", "install", "--id", "MiKTeX.MiKTeX", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{manager: "choco", commands: [][]string{{"choco", "install", "miktex", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "latex"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{
				{"brew", "install", "--cask", "basictex"},
				{"sudo", "-n", "tlmgr", "install", "standalone", "pgfplots"},
			}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "texlive-latex-base", "texlive-latex-extra", "texlive-pictures"},
			}},
			{manager: "dnf", commands: [][]string{
				{"dnf", "install", "-y", "texlive-scheme-basic", "texlive-standalone", "texlive-pgfplots"},
			}},
			{manager: "pacman", commands: [][]string{
				{"pacman", "-Sy", "--noconfirm", "texlive-basic", "texlive-latexextra", "texlive-pictures"},
			}},
			{manager: "zypper", commands: [][]string{
				{"zypper", "install", "-y", "texlive-latex", "texlive-standalone", "texlive-pgfplots"},
			}},
		}
	}
}

// rasterizerInstallOptions prefers poppler (pdftoppm) and falls back to
// ImageMagick where poppler is not packaged.
func rasterizerInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{
				{"winget", "install", "--id", "ImageMagick.ImageMagick", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{manager: "choco", commands: [][]string{{"choco", "install", "poppler", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "poppler"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "poppler"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "poppler-utils"},
			}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "poppler-utils"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "poppler"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "poppler-tools"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "poppler"}}},
		}
	}
}

func runFirstSuccessfulInstall(options []installOption, run commandRunFunc) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		if err := runInstallCommands(option.commands, run); err == nil {
			return nil
		} else {
			errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
		}
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func runInstallCommands(commands [][]string, run commandRunFunc) error {
	for _, command := range commands {
		if len(command) == 0 {
			return fmt.Errorf("empty command")
		}
		if err := run(command[0], command[1:]...); err != nil {
			return err
		}
	}
	return nil
}

func runCommandWithPossibleElevation(name string, args ...string) error {
	command := append([]string{name}, args...)
	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(name) {
		if commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if err := runCommand(candidate[0], candidate[1:]...); err == nil {
			return nil
		} else {
			attemptErrors = append(attemptErrors, err.Error())
		}
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

func requiresElevation(manager string) bool {
	return lo.Contains([]string{"apt-get", "dnf", "pacman", "zypper"}, manager)
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// requireAnyToolOnPath succeeds when at least one of names resolves.
func requireAnyToolOnPath(names ...string) error {
	if lo.SomeBy(names, commandAvailable) {
		return nil
	}
	return fmt.Errorf("missing tools on PATH: %s", strings.Join(names, ", "))
}

func installOrFixWorkDir(settings domain.Settings) (domain.Settings, bool, error) {
	workDir := strings.TrimSpace(settings.WorkDir)
	changed := false
	if workDir == "" {
		workDir = config.DefaultSettings().WorkDir
		settings.WorkDir = workDir
		changed = true
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create work directory %s: %w", workDir, err)
	}

	return settings, changed, nil
}
