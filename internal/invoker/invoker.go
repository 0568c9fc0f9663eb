// Package invoker implements the production ModelInvoker (spec.md §6,
// §9 design note): shelling out to the Claude CLI the way the teacher's
// internal/agents/spawner.go and internal/supervisor/executor.go spawn
// worker processes, generalized from WezTerm-pane spawning to a single
// cross-platform exec.CommandContext call.
package invoker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/CLIAIMONITOR/internal/executor"
)

// EnvRealBin overrides the default binary path.
const EnvRealBin = "CLAUDE_REAL_BIN"

// defaultBinRelPath is joined onto the user's home directory when
// EnvRealBin is unset.
const defaultBinRelPath = ".local/bin/claude"

// maxTurns is passed to every invocation (spec.md §6).
const maxTurns = 50

// tierModelIDs maps the three exposed tier names to the vendor-specific
// model identifier the CLI expects on --model.
var tierModelIDs = map[string]string{
	"haiku":  "claude-haiku-4-5",
	"sonnet": "claude-sonnet-4-5",
	"opus":   "claude-opus-4-5",
}

// ClaudeInvoker shells out to the Claude CLI binary for each
// invocation. It satisfies executor.ModelInvoker.
type ClaudeInvoker struct {
	binPath string
	workDir string
}

// New resolves the CLI binary path (CLAUDE_REAL_BIN, else
// ~/.local/bin/claude) and returns a ClaudeInvoker that runs with the
// user's home directory as its working directory, per spec.md §6.
func New() (*ClaudeInvoker, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("invoker: resolve home directory: %w", err)
	}

	binPath := os.Getenv(EnvRealBin)
	if binPath == "" {
		binPath = filepath.Join(home, defaultBinRelPath)
	}

	return &ClaudeInvoker{binPath: binPath, workDir: home}, nil
}

// Invoke runs the CLI once against inv.Model and inv.Prompt, enforcing
// inv.Timeout via ctx. A non-zero exit or a timeout is reported in the
// result, not returned as an error — only an unknown model tier or a
// failure to start the process (missing binary, permission denied) is
// an error.
func (c *ClaudeInvoker) Invoke(ctx context.Context, inv executor.Invocation) (executor.InvocationResult, error) {
	modelID, ok := tierModelIDs[inv.Model]
	if !ok {
		return executor.InvocationResult{}, fmt.Errorf("invoker: unknown model tier %q", inv.Model)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.binPath, "--model", modelID, "--max-turns", fmt.Sprintf("%d", maxTurns), "-p", inv.Prompt)
	cmd.Dir = c.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return executor.InvocationResult{
			Output:   stdout.String(),
			ExitCode: -1,
			TimedOut: true,
		}, nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return executor.InvocationResult{}, fmt.Errorf("invoker: start %s: %w", c.binPath, err)
		}
	}

	return executor.InvocationResult{
		Output:   stdout.String(),
		ExitCode: exitCode,
		TimedOut: false,
	}, nil
}
