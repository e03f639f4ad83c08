package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"marketdb/internal/metadata"
	"marketdb/logger"
)

// Status tells whether a planned step has run before.
type Status string

const (
	StatusNew     Status = "NEW"
	StatusRebuild Status = "REBUILD"
)

// PlannedStep is a step selected to run.
type PlannedStep struct {
	Step
	Status Status
}

// Plan selects the steps to run, in step order. With full every step runs.
// Otherwise a step runs when it is missing from the manifest, when its target
// was requested or lies downstream of a requested target, or when one of its
// dependencies is rebuilt earlier in the same plan.
func (s Steps) Plan(m *metadata.Manifest, targets []string, full bool) []PlannedStep {
	status := func(st Step) Status {
		if m.Has(st.ID) {
			return StatusRebuild
		}
		return StatusNew
	}

	if full {
		out := make([]PlannedStep, 0, len(s))
		for _, st := range s {
			out = append(out, PlannedStep{Step: st, Status: status(st)})
		}
		return out
	}

	forced := map[string]struct{}{}
	for _, t := range targets {
		forced[t] = struct{}{}
		for d := range s.Downstream(t) {
			forced[d] = struct{}{}
		}
	}

	rebuilt := map[string]struct{}{}
	var out []PlannedStep
	for _, st := range s {
		run := !m.Has(st.ID)
		if _, ok := forced[st.Target]; ok {
			run = true
		}
		for _, dep := range st.DependsOn {
			if _, ok := rebuilt[dep]; ok {
				run = true
			}
		}
		if run {
			out = append(out, PlannedStep{Step: st, Status: status(st)})
			rebuilt[st.Target] = struct{}{}
		}
	}
	return out
}

// PrintPlan writes the dry-run view of a plan.
func PrintPlan(w io.Writer, plan []PlannedStep) {
	fmt.Fprintln(w, "Dry run, would execute these steps:")
	for _, p := range plan {
		fmt.Fprintf(w, "  %s (target=%s) [%s]\n", p.ID, p.Target, p.Status)
	}
}

// List writes every step with its manifest status and dependencies.
func (s Steps) List(w io.Writer, m *metadata.Manifest) {
	for _, st := range s {
		status := "PENDING"
		if rec, ok := m.Get(st.ID); ok {
			status = fmt.Sprintf("DONE (%s, %.1fs)", rec.CompletedAt.Format("2006-01-02T15:04:05"), rec.ElapsedSeconds)
		}
		deps := ""
		if len(st.DependsOn) > 0 {
			deps = fmt.Sprintf(" depends_on=(%s)", strings.Join(st.DependsOn, ", "))
		}
		fmt.Fprintf(w, "  %-30s target=%-20s %s%s\n", st.ID, st.Target, status, deps)
	}
}

// IsStaleArtifact reports whether an output directory entry is left over from
// an interrupted build.
func IsStaleArtifact(name string) bool {
	return strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, "_old") ||
		strings.HasSuffix(name, "_building") ||
		strings.HasPrefix(name, "_")
}

// CleanupStale removes leftover temporary files and directories from the top
// level of outputDir. A missing directory is not an error.
func CleanupStale(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory %s: %w", outputDir, err)
	}

	log := logger.GetLogger().WithComponent("build")
	var removed []string
	for _, e := range entries {
		if !IsStaleArtifact(e.Name()) {
			continue
		}
		log.WithFields(logger.Fields{"artifact": e.Name()}).Info("cleaning stale artifact")
		if err := os.RemoveAll(filepath.Join(outputDir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}
