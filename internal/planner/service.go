// Package planner composes the dataset source, a recipe index backend, the
// machine bonus index, and the graph builder into one explicitly
// constructed service object. Nothing here is process-global; callers own
// the service lifecycle.
package planner

import (
	"context"
	"time"

	"craftplan/internal/bonus"
	"craftplan/internal/dataset"
	"craftplan/internal/index"
	"craftplan/internal/plan"
	"craftplan/internal/recipe"
)

// Service answers planner queries for one open dataset version. Safe for
// concurrent use.
type Service struct {
	source  dataset.Source
	ds      *dataset.Dataset
	backend index.Backend
	builder *plan.Builder
	metrics MetricsRecorder
}

// New wires a service. source may be nil when version listing is not
// needed; metrics may be nil for no observation.
func New(source dataset.Source, ds *dataset.Dataset, backend index.Backend, bonuses *bonus.Index, metrics MetricsRecorder) *Service {
	if metrics == nil {
		metrics = NoopMetricsRecorder{}
	}
	return &Service{
		source:  source,
		ds:      ds,
		backend: backend,
		builder: plan.New(backend, bonuses, ds.Version),
		metrics: metrics,
	}
}

// Version returns the open dataset version.
func (s *Service) Version() string { return s.ds.Version }

// ListVersions lists the versions the configured source carries.
func (s *Service) ListVersions(ctx context.Context) ([]string, error) {
	if s.source == nil {
		return []string{s.ds.Version}, nil
	}
	return s.source.ListVersions(ctx)
}

// WarmUp starts background index loading when the backend supports it.
func (s *Service) WarmUp() {
	if w, ok := s.backend.(index.Warmer); ok {
		w.WarmUp()
	}
}

// WaitUntilReady blocks until the backend can serve queries.
func (s *Service) WaitUntilReady(ctx context.Context) error {
	if w, ok := s.backend.(index.Warmer); ok {
		return w.WaitUntilReady(ctx)
	}
	return nil
}

// Close releases the backend.
func (s *Service) Close() error { return s.backend.Close() }

// observe records one operation outcome.
func (s *Service) observe(ctx context.Context, operation string, start time.Time, err error) {
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
}

// BuildGraph expands the request into an annotated production graph.
func (s *Service) BuildGraph(ctx context.Context, req plan.Request) (resp *plan.Response, err error) {
	defer func(start time.Time) { s.observe(ctx, "build_graph", start, err) }(time.Now())
	return s.builder.Build(ctx, req)
}

// SearchItems matches item ids by substring.
func (s *Service) SearchItems(ctx context.Context, query string, limit int) (items []recipe.Item, err error) {
	defer func(start time.Time) { s.observe(ctx, "search_items", start, err) }(time.Now())
	return s.backend.SearchItems(ctx, query, limit)
}

// SearchFluids matches fluid ids by substring.
func (s *Service) SearchFluids(ctx context.Context, query string, limit int) (fluids []recipe.Fluid, err error) {
	defer func(start time.Time) { s.observe(ctx, "search_fluids", start, err) }(time.Now())
	return s.backend.SearchFluids(ctx, query, limit)
}

// RecipeByRID returns one recipe summary, nil when unknown.
func (s *Service) RecipeByRID(ctx context.Context, rid string) (sum *recipe.Summary, err error) {
	defer func(start time.Time) { s.observe(ctx, "recipe_by_rid", start, err) }(time.Now())
	return s.backend.RecipeByRID(ctx, rid)
}

// RecipeInputs returns a recipe's input slots.
func (s *Service) RecipeInputs(ctx context.Context, rid string) (io recipe.IO, err error) {
	defer func(start time.Time) { s.observe(ctx, "recipe_inputs", start, err) }(time.Now())
	return s.backend.RecipeInputs(ctx, rid)
}

// RecipeOutputs returns a recipe's output slots.
func (s *Service) RecipeOutputs(ctx context.Context, rid string) (io recipe.IO, err error) {
	defer func(start time.Time) { s.observe(ctx, "recipe_outputs", start, err) }(time.Now())
	return s.backend.RecipeOutputs(ctx, rid)
}

// RecipesByOutput lists recipes producing key.
func (s *Service) RecipesByOutput(ctx context.Context, key index.Key, limit int, machineID string) (sums []recipe.Summary, err error) {
	defer func(start time.Time) { s.observe(ctx, "recipes_by_output", start, err) }(time.Now())
	return s.backend.RecipesByOutput(ctx, key, limit, machineID)
}

// RecipesByInput lists recipes consuming key.
func (s *Service) RecipesByInput(ctx context.Context, key index.Key, limit int, machineID string) (sums []recipe.Summary, err error) {
	defer func(start time.Time) { s.observe(ctx, "recipes_by_input", start, err) }(time.Now())
	return s.backend.RecipesByInput(ctx, key, limit, machineID)
}

// MachinesByOutput lists machines producing key.
func (s *Service) MachinesByOutput(ctx context.Context, key index.Key, limit int) (machines []string, err error) {
	defer func(start time.Time) { s.observe(ctx, "machines_by_output", start, err) }(time.Now())
	return s.backend.MachinesByOutput(ctx, key, limit)
}

// MachinesByInput lists machines consuming key.
func (s *Service) MachinesByInput(ctx context.Context, key index.Key, limit int) (machines []string, err error) {
	defer func(start time.Time) { s.observe(ctx, "machines_by_input", start, err) }(time.Now())
	return s.backend.MachinesByInput(ctx, key, limit)
}

// MachineCountsByOutput lists producing machines with recipe counts.
func (s *Service) MachineCountsByOutput(ctx context.Context, key index.Key, limit int) (counts []recipe.MachineCount, err error) {
	defer func(start time.Time) { s.observe(ctx, "machine_counts_by_output", start, err) }(time.Now())
	return s.backend.MachineCountsByOutput(ctx, key, limit)
}

// MachineCountsByInput lists consuming machines with recipe counts.
func (s *Service) MachineCountsByInput(ctx context.Context, key index.Key, limit int) (counts []recipe.MachineCount, err error) {
	defer func(start time.Time) { s.observe(ctx, "machine_counts_by_input", start, err) }(time.Now())
	return s.backend.MachineCountsByInput(ctx, key, limit)
}

// DownstreamReachableRecipes answers bounded-depth reachability.
func (s *Service) DownstreamReachableRecipes(ctx context.Context, input, output index.Key, maxDepth, limit int, machineID string) (sums []recipe.Summary, err error) {
	defer func(start time.Time) { s.observe(ctx, "downstream_reachable", start, err) }(time.Now())
	return s.backend.DownstreamReachableRecipes(ctx, input, output, maxDepth, limit, machineID)
}
