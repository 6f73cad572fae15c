// Package scan implements the recipe index as a stateless scan engine over
// the dataset's columnar files. Every call re-reads the files it needs; the
// only state a backend instance holds is the dataset handle with its
// open-time capability flags.
package scan

import (
	"context"
	"errors"
	"sort"
	"strings"

	"craftplan/internal/dataset"
	"craftplan/internal/index"
	"craftplan/internal/recipe"
)

// Backend queries a single open dataset version.
type Backend struct {
	ds *dataset.Dataset
}

var _ index.Backend = (*Backend)(nil)

// New constructs a scan backend over the dataset.
func New(ds *dataset.Dataset) *Backend {
	return &Backend{ds: ds}
}

// Close is a no-op; the backend holds no resources beyond the dataset handle.
func (b *Backend) Close() error { return nil }

var errStopScan = errors.New("stop scan")

// SearchItems matches item ids across the input and output tables; any id
// may appear only as an input or only as an output. Results sort by
// lowercased id then meta, which fixes the tie-break across calls.
func (b *Backend) SearchItems(_ context.Context, query string, limit int) ([]recipe.Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	needle := strings.ToLower(query)
	seen := map[recipe.Item]struct{}{}
	collect := func(_ string, s recipe.ItemStack) error {
		if !strings.Contains(strings.ToLower(s.ItemID), needle) {
			return nil
		}
		seen[recipe.Item{ItemID: s.ItemID, Meta: s.Meta}] = struct{}{}
		return nil
	}
	if err := b.ds.ForEachItemInput(collect); err != nil {
		return nil, err
	}
	if err := b.ds.ForEachItemOutput(collect); err != nil {
		return nil, err
	}
	items := make([]recipe.Item, 0, len(seen))
	for item := range seen {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		li, lj := strings.ToLower(items[i].ItemID), strings.ToLower(items[j].ItemID)
		if li != lj {
			return li < lj
		}
		if items[i].Meta != items[j].Meta {
			return items[i].Meta < items[j].Meta
		}
		return items[i].ItemID < items[j].ItemID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// SearchFluids matches fluid ids across the input and output tables.
func (b *Backend) SearchFluids(_ context.Context, query string, limit int) ([]recipe.Fluid, error) {
	if limit <= 0 {
		return nil, nil
	}
	needle := strings.ToLower(query)
	seen := map[string]struct{}{}
	collect := func(_ string, s recipe.FluidStack) error {
		if strings.Contains(strings.ToLower(s.FluidID), needle) {
			seen[s.FluidID] = struct{}{}
		}
		return nil
	}
	if err := b.ds.ForEachFluidInput(collect); err != nil {
		return nil, err
	}
	if err := b.ds.ForEachFluidOutput(collect); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		li, lj := strings.ToLower(ids[i]), strings.ToLower(ids[j])
		if li != lj {
			return li < lj
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	fluids := make([]recipe.Fluid, len(ids))
	for i, id := range ids {
		fluids[i] = recipe.Fluid{FluidID: id}
	}
	return fluids, nil
}

// RecipeByRID returns the first recipe row carrying rid, or nil.
func (b *Backend) RecipeByRID(_ context.Context, rid string) (*recipe.Summary, error) {
	var found *recipe.Summary
	err := b.ds.ForEachRecipe(func(s recipe.Summary) error {
		if s.RID == rid {
			found = &s
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	return found, nil
}

// RecipeInputs returns the recipe's item and fluid inputs in file order.
func (b *Backend) RecipeInputs(_ context.Context, rid string) (recipe.IO, error) {
	var io recipe.IO
	if err := b.ds.ForEachItemInput(func(r string, s recipe.ItemStack) error {
		if r == rid {
			io.Items = append(io.Items, s)
		}
		return nil
	}); err != nil {
		return recipe.IO{}, err
	}
	if err := b.ds.ForEachFluidInput(func(r string, s recipe.FluidStack) error {
		if r == rid {
			io.Fluids = append(io.Fluids, s)
		}
		return nil
	}); err != nil {
		return recipe.IO{}, err
	}
	return io, nil
}

// RecipeOutputs returns the recipe's item and fluid outputs in file order,
// with chance populated when the dataset carries the column.
func (b *Backend) RecipeOutputs(_ context.Context, rid string) (recipe.IO, error) {
	var io recipe.IO
	if err := b.ds.ForEachItemOutput(func(r string, s recipe.ItemStack) error {
		if r == rid {
			io.Items = append(io.Items, s)
		}
		return nil
	}); err != nil {
		return recipe.IO{}, err
	}
	if err := b.ds.ForEachFluidOutput(func(r string, s recipe.FluidStack) error {
		if r == rid {
			io.Fluids = append(io.Fluids, s)
		}
		return nil
	}); err != nil {
		return recipe.IO{}, err
	}
	return io, nil
}

// ridsForKey collects the rids whose output (or input) side references key.
func (b *Backend) ridsForKey(key index.Key, inputs bool) (map[string]struct{}, error) {
	rids := map[string]struct{}{}
	switch key.Kind {
	case index.KindItem:
		collect := func(rid string, s recipe.ItemStack) error {
			if s.ItemID == key.ID && s.Meta == key.Meta {
				rids[rid] = struct{}{}
			}
			return nil
		}
		if inputs {
			return rids, b.ds.ForEachItemInput(collect)
		}
		return rids, b.ds.ForEachItemOutput(collect)
	case index.KindFluid:
		collect := func(rid string, s recipe.FluidStack) error {
			if s.FluidID == key.ID {
				rids[rid] = struct{}{}
			}
			return nil
		}
		if inputs {
			return rids, b.ds.ForEachFluidInput(collect)
		}
		return rids, b.ds.ForEachFluidOutput(collect)
	}
	return rids, nil
}

// summariesFor returns recipe summaries for the rid set in recipes-file
// order, optionally machine-filtered, capped at limit.
func (b *Backend) summariesFor(rids map[string]struct{}, machineID string, limit int) ([]recipe.Summary, error) {
	if limit <= 0 || len(rids) == 0 {
		return nil, nil
	}
	var out []recipe.Summary
	err := b.ds.ForEachRecipe(func(s recipe.Summary) error {
		if _, ok := rids[s.RID]; !ok {
			return nil
		}
		if machineID != "" && s.MachineID != machineID {
			return nil
		}
		out = append(out, s)
		if len(out) >= limit {
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	return out, nil
}

// RecipesByOutput lists recipes producing key in the dataset's own order.
func (b *Backend) RecipesByOutput(_ context.Context, key index.Key, limit int, machineID string) ([]recipe.Summary, error) {
	rids, err := b.ridsForKey(key, false)
	if err != nil {
		return nil, err
	}
	return b.summariesFor(rids, machineID, limit)
}

// RecipesByInput lists recipes consuming key in the dataset's own order.
func (b *Backend) RecipesByInput(_ context.Context, key index.Key, limit int, machineID string) ([]recipe.Summary, error) {
	rids, err := b.ridsForKey(key, true)
	if err != nil {
		return nil, err
	}
	return b.summariesFor(rids, machineID, limit)
}

func (b *Backend) machineCounts(key index.Key, inputs bool, limit int) ([]recipe.MachineCount, error) {
	if limit <= 0 {
		return nil, nil
	}
	rids, err := b.ridsForKey(key, inputs)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	if err := b.ds.ForEachRecipe(func(s recipe.Summary) error {
		if _, ok := rids[s.RID]; ok {
			counts[s.MachineID]++
		}
		return nil
	}); err != nil {
		return nil, err
	}
	machines := make([]string, 0, len(counts))
	for m := range counts {
		machines = append(machines, m)
	}
	sort.Strings(machines)
	if len(machines) > limit {
		machines = machines[:limit]
	}
	out := make([]recipe.MachineCount, len(machines))
	for i, m := range machines {
		out[i] = recipe.MachineCount{MachineID: m, RecipeCount: counts[m]}
	}
	return out, nil
}

// MachinesByOutput lists distinct machines producing key, sorted.
func (b *Backend) MachinesByOutput(ctx context.Context, key index.Key, limit int) ([]string, error) {
	counts, err := b.machineCounts(key, false, limit)
	if err != nil {
		return nil, err
	}
	return machineIDs(counts), nil
}

// MachinesByInput lists distinct machines consuming key, sorted.
func (b *Backend) MachinesByInput(ctx context.Context, key index.Key, limit int) ([]string, error) {
	counts, err := b.machineCounts(key, true, limit)
	if err != nil {
		return nil, err
	}
	return machineIDs(counts), nil
}

// MachineCountsByOutput lists machines producing key with distinct-recipe
// counts, sorted by machine id.
func (b *Backend) MachineCountsByOutput(_ context.Context, key index.Key, limit int) ([]recipe.MachineCount, error) {
	return b.machineCounts(key, false, limit)
}

// MachineCountsByInput lists machines consuming key with distinct-recipe
// counts, sorted by machine id.
func (b *Backend) MachineCountsByInput(_ context.Context, key index.Key, limit int) ([]recipe.MachineCount, error) {
	return b.machineCounts(key, true, limit)
}

func machineIDs(counts []recipe.MachineCount) []string {
	ids := make([]string, len(counts))
	for i, c := range counts {
		ids[i] = c.MachineID
	}
	return ids
}

// adjacency is the per-call view of the recipe graph used by reachability.
// It is rebuilt on every call; the backend itself stays stateless.
type adjacency struct {
	outputsByKey map[string]map[string]struct{} // item/fluid key -> rids producing it
	inputsByRID  map[string][]string            // rid -> input item/fluid keys
	consumers    map[string]map[string]struct{} // item/fluid key -> rids consuming it
}

func (b *Backend) loadAdjacency() (*adjacency, error) {
	adj := &adjacency{
		outputsByKey: map[string]map[string]struct{}{},
		inputsByRID:  map[string][]string{},
		consumers:    map[string]map[string]struct{}{},
	}
	addSet := func(m map[string]map[string]struct{}, key, rid string) {
		set, ok := m[key]
		if !ok {
			set = map[string]struct{}{}
			m[key] = set
		}
		set[rid] = struct{}{}
	}
	if err := b.ds.ForEachItemOutput(func(rid string, s recipe.ItemStack) error {
		addSet(adj.outputsByKey, recipe.ItemKey(s.ItemID, s.Meta), rid)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := b.ds.ForEachFluidOutput(func(rid string, s recipe.FluidStack) error {
		addSet(adj.outputsByKey, recipe.FluidKey(s.FluidID), rid)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := b.ds.ForEachItemInput(func(rid string, s recipe.ItemStack) error {
		key := recipe.ItemKey(s.ItemID, s.Meta)
		adj.inputsByRID[rid] = append(adj.inputsByRID[rid], key)
		addSet(adj.consumers, key, rid)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := b.ds.ForEachFluidInput(func(rid string, s recipe.FluidStack) error {
		key := recipe.FluidKey(s.FluidID)
		adj.inputsByRID[rid] = append(adj.inputsByRID[rid], key)
		addSet(adj.consumers, key, rid)
		return nil
	}); err != nil {
		return nil, err
	}
	return adj, nil
}

// DownstreamReachableRecipes expands breadth-first from the output side back
// toward inputs, then intersects the reachable recipe set with the direct
// consumers of input.
func (b *Backend) DownstreamReachableRecipes(_ context.Context, input, output index.Key, maxDepth, limit int, machineID string) ([]recipe.Summary, error) {
	if maxDepth <= 0 || limit <= 0 {
		return nil, nil
	}
	adj, err := b.loadAdjacency()
	if err != nil {
		return nil, err
	}
	reachable := expandReachable(adj, output.String(), maxDepth)
	direct, ok := adj.consumers[input.String()]
	if !ok {
		return nil, nil
	}
	matched := map[string]struct{}{}
	for rid := range reachable {
		if _, ok := direct[rid]; ok {
			matched[rid] = struct{}{}
		}
	}
	return b.summariesFor(matched, machineID, limit)
}

func expandReachable(adj *adjacency, outputKey string, maxDepth int) map[string]struct{} {
	frontier := []string{outputKey}
	seenKeys := map[string]struct{}{outputKey: {}}
	seenRecipes := map[string]struct{}{}
	reachable := map[string]struct{}{}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, key := range frontier {
			for rid := range adj.outputsByKey[key] {
				if _, ok := seenRecipes[rid]; ok {
					continue
				}
				seenRecipes[rid] = struct{}{}
				reachable[rid] = struct{}{}
				for _, inKey := range adj.inputsByRID[rid] {
					if _, ok := seenKeys[inKey]; ok {
						continue
					}
					seenKeys[inKey] = struct{}{}
					next = append(next, inKey)
				}
			}
		}
		frontier = next
	}
	return reachable
}
