package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"marketdb/config"
	"marketdb/internal/metrics"
	"marketdb/logger"
	"marketdb/models"
	"marketdb/writer"
)

// ErrUnknownTarget is returned when a requested target has no step.
var ErrUnknownTarget = errors.New("unknown target")

// Env is what a step gets to work with.
type Env struct {
	Config  config.Config
	Writer  *writer.TableWriter
	Metrics *metrics.Recorder
	Log     *logger.Log
	RunID   string
}

// Root is the output directory of the build.
func (e *Env) Root() string {
	return e.Writer.Root()
}

// Workers is the configured parallelism, never below one.
func (e *Env) Workers() int {
	if e.Config.Build.Workers < 1 {
		return 1
	}
	return e.Config.Build.Workers
}

// RunFunc builds one table and returns the files it committed.
type RunFunc func(ctx context.Context, env *Env) (writer.TableFiles, error)

// Step is one versioned unit of the build. The ID carries the version so a
// changed step is rebuilt even when its target already exists.
type Step struct {
	ID        string
	Target    string
	DependsOn []string
	Run       RunFunc
}

// Steps is an ordered step list. Dependencies always come before their
// dependents.
type Steps []Step

// DefaultSteps returns the steps of a full market database build.
func DefaultSteps() Steps {
	return Steps{
		{ID: "tickers_v1", Target: models.TableTickers, Run: buildTickers},
		{ID: "prices_v2", Target: models.TablePrices, DependsOn: []string{models.TableTickers}, Run: buildPrices},
		{ID: "daily_aggs_v2", Target: models.TableDailyAggs, DependsOn: []string{models.TablePrices}, Run: buildDailyAggs},
		{ID: "ten_day_aggs_v1", Target: models.TableTenDayAggs, DependsOn: []string{models.TableDailyAggs}, Run: blockStep(models.TableTenDayAggs, 10)},
		{ID: "hundred_day_aggs_v1", Target: models.TableHundredDayAggs, DependsOn: []string{models.TableDailyAggs}, Run: blockStep(models.TableHundredDayAggs, 100)},
		{ID: "market_cap_v2", Target: models.TableMarketCap, DependsOn: []string{models.TableTickers}, Run: buildMarketCap},
		{ID: "insider_trades_v2", Target: models.TableInsiderTrades, DependsOn: []string{models.TableTickers}, Run: buildInsiderTrades},
	}
}

// Targets returns the distinct targets in sorted order.
func (s Steps) Targets() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, st := range s {
		if _, ok := seen[st.Target]; ok {
			continue
		}
		seen[st.Target] = struct{}{}
		out = append(out, st.Target)
	}
	sort.Strings(out)
	return out
}

// ValidateTargets fails with ErrUnknownTarget for the first target no step
// builds.
func (s Steps) ValidateTargets(targets []string) error {
	known := map[string]struct{}{}
	for _, st := range s {
		known[st.Target] = struct{}{}
	}
	for _, t := range targets {
		if _, ok := known[t]; !ok {
			return fmt.Errorf("%w: '%s'. Known targets: %s", ErrUnknownTarget, t, strings.Join(s.Targets(), ", "))
		}
	}
	return nil
}

// Downstream returns every target that depends on target, directly or
// transitively. The target itself is not included.
func (s Steps) Downstream(target string) map[string]struct{} {
	dependents := map[string][]string{}
	for _, st := range s {
		for _, dep := range st.DependsOn {
			dependents[dep] = append(dependents[dep], st.Target)
		}
	}

	visited := map[string]struct{}{}
	queue := []string{target}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if _, ok := visited[t]; ok {
			continue
		}
		visited[t] = struct{}{}
		queue = append(queue, dependents[t]...)
	}
	delete(visited, target)
	return visited
}
