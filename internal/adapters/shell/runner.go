// Package shell provides the external tool runner adapter.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
	"go.trai.ch/zerr"
)

// allowListedEnvVars are the system environment variables that external
// tools are allowed to inherit. This keeps tool invocations reproducible
// while still allowing basic system tools to function.
var allowListedEnvVars = map[string]struct{}{
	"HOME":   {},
	"TERM":   {},
	"USER":   {},
	"PATH":   {},
	"LANG":   {},
	"TMPDIR": {},
}

// Runner implements ports.ToolRunner using os/exec.
type Runner struct {
	logger ports.Logger
}

// NewRunner creates a new Runner.
func NewRunner(logger ports.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run executes one tool invocation and captures its output.
//
// Exit classification: a zero exit returns a nil error. A non-zero exit
// returns domain.ErrToolExited with the result still populated, so callers
// can inspect the tool's diagnostics. A process that could not start, was
// signalled, or exceeded the invocation timeout returns
// domain.ErrToolInvocation.
func (r *Runner) Run(ctx context.Context, inv domain.ToolInvocation) (domain.ToolResult, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	//nolint:gosec // tool and arguments come from trusted configuration
	cmd := exec.CommandContext(ctx, inv.Tool, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = resolveEnvironment(os.Environ(), inv.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info(fmt.Sprintf("running %s %s", inv.Tool, strings.Join(inv.Args, " ")))

	start := time.Now()
	err := cmd.Run()

	res := domain.ToolResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: 0,
		Duration: time.Since(start),
	}

	if err == nil {
		return res, nil
	}

	res.ExitCode = -1

	// A timeout kills the process, which also surfaces as an ExitError.
	// Classify on the context first.
	if ctxErr := ctx.Err(); ctxErr != nil {
		invErr := zerr.With(domain.ErrToolInvocation, "tool", inv.Tool)
		invErr = zerr.With(invErr, "cause", ctxErr.Error())
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			invErr = zerr.With(invErr, "timeout", inv.Timeout.String())
		}
		return res, invErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code >= 0 {
			res.ExitCode = code
			exited := zerr.With(domain.ErrToolExited, "tool", inv.Tool)
			exited = zerr.With(exited, "exit_code", code)
			return res, exited
		}
		// Signalled; fall through to the invocation error.
	}

	invErr := zerr.With(domain.ErrToolInvocation, "tool", inv.Tool)
	invErr = zerr.With(invErr, "cause", err.Error())
	return res, invErr
}

// resolveEnvironment builds the tool environment from the allow-listed
// system environment plus the invocation's extra entries. Extra PATH
// entries are prepended to the system PATH.
func resolveEnvironment(sysEnv, extraEnv []string) []string {
	envMap := filterSystemEnv(sysEnv)
	applyExtraEnv(envMap, extraEnv)

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	return result
}

func filterSystemEnv(sysEnv []string) map[string]string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		k, v, ok := strings.Cut(entry, "=")
		if ok {
			if _, allowed := allowListedEnvVars[k]; allowed {
				envMap[k] = v
			}
		}
	}
	return envMap
}

func applyExtraEnv(envMap map[string]string, extraEnv []string) {
	for _, entry := range extraEnv {
		k, v, ok := strings.Cut(entry, "=")
		if ok {
			if k == "PATH" {
				if sysPath, exists := envMap["PATH"]; exists && sysPath != "" {
					envMap[k] = v + string(os.PathListSeparator) + sysPath
				} else {
					envMap[k] = v
				}
			} else {
				envMap[k] = v
			}
		}
	}
}
