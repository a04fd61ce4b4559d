package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/muesli/termenv"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/ui/output"
	"go.trai.ch/forge/internal/ui/style"
)

// runSymbol returns the colored status icon for a run.
func runSymbol(out *termenv.Output, status domain.RunStatus) string {
	switch status {
	case domain.RunStatusSucceeded:
		return out.String(style.Check).Foreground(termenv.RGBColor(style.Green)).String()
	case domain.RunStatusFailed:
		return out.String(style.Cross).Foreground(termenv.RGBColor(style.Red)).String()
	case domain.RunStatusRunning:
		return out.String(style.Dot).Foreground(termenv.RGBColor(style.Yellow)).String()
	default:
		return out.String(style.Circle).Foreground(termenv.RGBColor(style.Slate)).String()
	}
}

// stageSymbol returns the colored status icon for a stage result.
func stageSymbol(out *termenv.Output, status domain.StageStatus) string {
	switch status {
	case domain.StageStatusSucceeded:
		return out.String(style.Check).Foreground(termenv.RGBColor(style.Green)).String()
	case domain.StageStatusCached:
		return out.String(style.Tilde).Foreground(termenv.RGBColor(style.Green)).String()
	case domain.StageStatusFailed:
		return out.String(style.Cross).Foreground(termenv.RGBColor(style.Red)).String()
	case domain.StageStatusRunning:
		return out.String(style.Dot).Foreground(termenv.RGBColor(style.Yellow)).String()
	default:
		return out.String(style.Circle).Foreground(termenv.RGBColor(style.Slate)).String()
	}
}

// printRun writes a full run report including per-stage results.
func printRun(w io.Writer, run domain.BuildRun) {
	out := output.New(w)

	_, _ = fmt.Fprintf(w, "%s run %s  %s %s  %s\n",
		runSymbol(out, run.Status), run.ID, run.Spec.Name, orDash(run.Version), run.Status)
	if run.PatchedBy != "" {
		_, _ = fmt.Fprintf(w, "  patched by rule %s\n", run.PatchedBy)
	}

	for _, stage := range domain.Stages() {
		res, ok := run.Result(stage)
		if !ok {
			continue
		}

		_, _ = fmt.Fprintf(w, "  %s %-16s %s", stageSymbol(out, res.Status), stage, res.Status)
		if !res.StartedAt.IsZero() && !res.EndedAt.IsZero() {
			_, _ = fmt.Fprintf(w, " in %s", res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond))
		}
		if res.Attempts > 1 {
			_, _ = fmt.Fprintf(w, " (%d attempts)", res.Attempts)
		}
		if res.Error != "" {
			_, _ = fmt.Fprintf(w, ": %s", res.Error)
		}
		_, _ = fmt.Fprintln(w)
	}

	if run.ArtifactRef != "" {
		_, _ = fmt.Fprintf(w, "  artifacts: %s\n", run.ArtifactRef)
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "  error: %s\n", run.Error)
	}
}

// printRunLine writes a one-line summary for the run listing.
func printRunLine(w io.Writer, out *termenv.Output, run domain.BuildRun) {
	_, _ = fmt.Fprintf(w, "%s %s  %-24s %-10s %-9s %s\n",
		runSymbol(out, run.Status),
		run.ID,
		run.Spec.Name,
		orDash(run.Version),
		run.Status,
		run.CreatedAt.Format(time.RFC3339),
	)
}

// orDash substitutes a dash for values absent from early-failed runs.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
