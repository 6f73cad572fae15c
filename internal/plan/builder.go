package plan

import (
	"context"

	"craftplan/internal/bonus"
	"craftplan/internal/index"
	"craftplan/internal/recipe"
	"craftplan/internal/tuning"
)

// Builder expands demand targets into annotated dependency graphs through a
// recipe index backend. Safe for concurrent use; every build works on fresh
// request-scoped state.
type Builder struct {
	backend index.Backend
	bonuses *bonus.Index
	version string
}

// New constructs a builder over the backend. bonuses may be nil when no
// machine bonus index is configured.
func New(backend index.Backend, bonuses *bonus.Index, version string) *Builder {
	if bonuses == nil {
		bonuses = bonus.Empty()
	}
	return &Builder{backend: backend, bonuses: bonuses, version: version}
}

// frame is one pending expansion. path is the set of node keys on the chain
// from the target down to this node; it is copied at branch points so
// sibling subtrees do not suppress each other's cycles.
type frame struct {
	key   index.Key
	rate  float64
	depth int
	path  map[string]struct{}
}

func branchPath(path map[string]struct{}, key string) map[string]struct{} {
	next := make(map[string]struct{}, len(path)+1)
	for k := range path {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return next
}

// Build validates the request and expands every target. Expansion is
// iterative over an explicit stack; recursion depth never tracks chain
// length.
func (b *Builder) Build(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	g := newGraph()
	var stack []frame
	for _, t := range req.Targets {
		key := t.key()
		stack = append(stack, frame{
			key:   key,
			rate:  t.DesiredRate,
			depth: 0,
			path:  map[string]struct{}{key.String(): {}},
		})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		pushed, err := b.expand(ctx, g, req, f)
		if err != nil {
			return nil, err
		}
		stack = append(stack, pushed...)
	}
	return &Response{
		Nodes: g.nodes,
		Edges: g.edges,
		Meta:  Meta{Version: b.version, Targets: req.Targets, MaxDepth: req.MaxDepth},
	}, nil
}

// expand resolves one frame: pick the producing recipe, annotate it, emit
// its flow edges, and return the input frames to expand next. A node with no
// producing recipe, or one past the depth bound, stays a leaf.
func (b *Builder) expand(ctx context.Context, g *graph, req Request, f frame) ([]frame, error) {
	nodeKey := f.key.String()
	g.node(materialNode(f.key))
	if f.depth > req.MaxDepth {
		return nil, nil
	}

	sum, err := b.resolveRecipe(ctx, req, f.key)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, nil // raw material
	}

	tiers := req.Tuning.OverclockTiers
	if override, ok := req.OverclockOverrides[sum.RID]; ok {
		tiers = override
	}
	machineBonus, _ := b.bonuses.For(sum.MachineID)
	duration, eut := tuning.ApplyOverclock(sum.DurationTicks, sum.EUt, tiers)
	duration, eut = tuning.ApplyMachineBonus(duration, eut, machineBonus)
	parallel := tuning.EffectiveParallel(req.Tuning, machineBonus)

	outputs, err := b.backend.RecipeOutputs(ctx, sum.RID)
	if err != nil {
		return nil, err
	}
	amount, chance := outputAmount(outputs, f.key)
	perMachine := tuning.RatePerSecond(amount, duration) * parallel * chance
	machines := 0.0
	if perMachine > 0 {
		machines = f.rate / perMachine
	}

	recipeKey := recipe.RecipeNodeKey(sum.RID, nodeKey)
	rn := g.node(Node{
		Key:           recipeKey,
		Kind:          NodeRecipe,
		RID:           sum.RID,
		MachineID:     sum.MachineID,
		DurationTicks: duration,
		EUt:           eut,
	})
	rn.MachinesRequired += machines
	rn.RatePerSecond += f.rate

	g.edge(recipeKey, nodeKey, EdgeProduces, f.rate, amount)

	inputs, err := b.backend.RecipeInputs(ctx, sum.RID)
	if err != nil {
		return nil, err
	}
	var pushed []frame
	recurse := func(key index.Key, rate float64) {
		childKey := key.String()
		if _, onPath := f.path[childKey]; onPath {
			return
		}
		pushed = append(pushed, frame{
			key:   key,
			rate:  rate,
			depth: f.depth + 1,
			path:  branchPath(f.path, childKey),
		})
	}
	for _, in := range inputs.Items {
		key := index.ItemKey(in.ItemID, in.Meta)
		rate := machines * tuning.RatePerSecond(in.Count, duration) * parallel
		g.node(materialNode(key))
		g.edge(key.String(), recipeKey, EdgeConsumes, rate, in.Count)
		recurse(key, rate)
	}
	for _, in := range inputs.Fluids {
		key := index.FluidKey(in.FluidID)
		rate := machines * tuning.RatePerSecond(in.MB, duration) * parallel
		g.node(materialNode(key))
		g.edge(key.String(), recipeKey, EdgeConsumes, rate, in.MB)
		if key.String() != nodeKey { // fluid self-loop guard
			recurse(key, rate)
		}
	}

	// Byproducts follow from the machine count already fixed by the demanded
	// output; they drive nothing downstream.
	for _, out := range outputs.Items {
		key := index.ItemKey(out.ItemID, out.Meta)
		if key.String() == nodeKey {
			continue
		}
		rate := machines * tuning.RatePerSecond(out.Count, duration) * parallel * chanceOf(out.Chance)
		g.node(materialNode(key))
		g.edge(recipeKey, key.String(), EdgeByproduct, rate, out.Count)
	}
	for _, out := range outputs.Fluids {
		key := index.FluidKey(out.FluidID)
		if key.String() == nodeKey {
			continue
		}
		rate := machines * tuning.RatePerSecond(out.MB, duration) * parallel * chanceOf(out.Chance)
		g.node(materialNode(key))
		g.edge(recipeKey, key.String(), EdgeByproduct, rate, out.MB)
	}
	return pushed, nil
}

// resolveRecipe honors a valid per-node override, else takes the backend's
// first producer. Nil means no producing recipe exists.
func (b *Builder) resolveRecipe(ctx context.Context, req Request, key index.Key) (*recipe.Summary, error) {
	if rid, ok := req.RecipeOverrides[key.String()]; ok {
		sum, err := b.backend.RecipeByRID(ctx, rid)
		if err != nil {
			return nil, err
		}
		if sum != nil {
			outputs, err := b.backend.RecipeOutputs(ctx, sum.RID)
			if err != nil {
				return nil, err
			}
			if amount, _ := outputAmount(outputs, key); amount > 0 {
				return sum, nil
			}
		}
		// invalid override falls back to the default producer
	}
	producers, err := b.backend.RecipesByOutput(ctx, key, 1, "")
	if err != nil {
		return nil, err
	}
	if len(producers) == 0 {
		return nil, nil
	}
	return &producers[0], nil
}

func materialNode(key index.Key) Node {
	if key.Kind == index.KindFluid {
		return Node{Key: key.String(), Kind: NodeFluid, FluidID: key.ID}
	}
	return Node{Key: key.String(), Kind: NodeItem, ItemID: key.ID, Meta: key.Meta}
}

// outputAmount finds the recipe's per-cycle amount for key, with its drop
// chance (1.0 when none).
func outputAmount(outputs recipe.IO, key index.Key) (int, float64) {
	if key.Kind == index.KindFluid {
		for _, out := range outputs.Fluids {
			if out.FluidID == key.ID {
				return out.MB, chanceOf(out.Chance)
			}
		}
		return 0, 1.0
	}
	for _, out := range outputs.Items {
		if out.ItemID == key.ID && out.Meta == key.Meta {
			return out.Count, chanceOf(out.Chance)
		}
	}
	return 0, 1.0
}

func chanceOf(chance *float64) float64 {
	if chance == nil || *chance <= 0 {
		return 1.0
	}
	return *chance
}
