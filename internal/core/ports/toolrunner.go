package ports

import (
	"context"

	"go.trai.ch/forge/internal/core/domain"
)

// ToolRunner executes external tool processes for stage executors.
//
//go:generate go run go.uber.org/mock/mockgen -source=toolrunner.go -destination=mocks/mock_toolrunner.go -package=mocks
type ToolRunner interface {
	// Run executes the invocation and waits for it to finish.
	//
	// A zero exit yields a nil error. A non-zero exit yields
	// domain.ErrToolExited together with the captured result. A
	// process-level failure (could not start, signalled, or the invocation
	// timeout elapsed) yields domain.ErrToolInvocation.
	Run(ctx context.Context, inv domain.ToolInvocation) (domain.ToolResult, error)
}
