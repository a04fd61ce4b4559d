package domain

import "time"

// ToolInvocation describes one external tool call: the package-manager
// resolver, the container build tool, or anything else the pipeline shells
// out to. The orchestrator treats these as black boxes with defined inputs,
// outputs and exit status.
type ToolInvocation struct {
	// Tool is the executable name or path.
	Tool string

	// Args are the command line arguments.
	Args []string

	// Dir is the working directory for the invocation.
	Dir string

	// Env is extra environment in "KEY=VALUE" form, appended to the
	// allow-listed base environment.
	Env []string

	// Timeout bounds the invocation. Zero means no per-call budget.
	Timeout time.Duration
}

// ToolResult captures the observable outcome of a completed tool process.
type ToolResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}
