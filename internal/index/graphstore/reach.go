package graphstore

import (
	"context"
	"sort"

	"craftplan/internal/index"
	"craftplan/internal/recipe"
)

// reachKey addresses a node in the stored relationship tables. Item
// relationships carry the canonical item key, fluid relationships the raw
// fluid id, so the two cannot share one string space.
type reachKey struct {
	fluid bool
	key   string
}

// reachWalk caches per-request adjacency lookups so a key or recipe touched
// through several chains hits the database once.
type reachWalk struct {
	s             *Store
	producersByKey map[reachKey][]string
	inputsByRID    map[string][]reachKey
}

func (w *reachWalk) producers(ctx context.Context, k reachKey) ([]string, error) {
	if rids, ok := w.producersByKey[k]; ok {
		return rids, nil
	}
	op := opReachRecipesByOutputItem
	if k.fluid {
		op = opReachRecipesByOutputFluid
	}
	rows, err := w.s.query(ctx, op, k.key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var rids []string
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, err
		}
		rids = append(rids, rid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	w.producersByKey[k] = rids
	return rids, nil
}

func (w *reachWalk) inputs(ctx context.Context, rid string) ([]reachKey, error) {
	if keys, ok := w.inputsByRID[rid]; ok {
		return keys, nil
	}
	var keys []reachKey
	rows, err := w.s.query(ctx, opReachItemInputsOf, rid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, reachKey{key: k})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	fluidRows, err := w.s.query(ctx, opReachFluidInputsOf, rid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fluidRows.Close() }()
	for fluidRows.Next() {
		var k string
		if err := fluidRows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, reachKey{fluid: true, key: k})
	}
	if err := fluidRows.Err(); err != nil {
		return nil, err
	}
	w.inputsByRID[rid] = keys
	return keys, nil
}

// DownstreamReachableRecipes walks producer chains backwards from output for
// at most maxDepth hops, then keeps the reachable recipes that directly
// consume input. Results are ordered by rid.
func (s *Store) DownstreamReachableRecipes(ctx context.Context, input, output index.Key, maxDepth, limit int, machineID string) ([]recipe.Summary, error) {
	if maxDepth <= 0 || limit <= 0 {
		return nil, nil
	}
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	walk := &reachWalk{
		s:              s,
		producersByKey: make(map[reachKey][]string),
		inputsByRID:    make(map[string][]reachKey),
	}

	start := reachKey{fluid: output.Kind == index.KindFluid, key: sqlKey(output)}
	reachable := make(map[string]struct{})
	seenKeys := map[reachKey]struct{}{start: {}}
	frontier := []reachKey{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []reachKey
		for _, k := range frontier {
			rids, err := walk.producers(ctx, k)
			if err != nil {
				return nil, err
			}
			for _, rid := range rids {
				if _, ok := reachable[rid]; ok {
					continue
				}
				reachable[rid] = struct{}{}
				inputs, err := walk.inputs(ctx, rid)
				if err != nil {
					return nil, err
				}
				for _, in := range inputs {
					if _, ok := seenKeys[in]; ok {
						continue
					}
					seenKeys[in] = struct{}{}
					next = append(next, in)
				}
			}
		}
		frontier = next
	}
	if len(reachable) == 0 {
		return nil, nil
	}

	consumerOp := opReachConsumersOfItem
	if input.Kind == index.KindFluid {
		consumerOp = opReachConsumersOfFluid
	}
	rows, err := s.query(ctx, consumerOp, sqlKey(input))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var hits []string
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, err
		}
		if _, ok := reachable[rid]; ok {
			hits = append(hits, rid)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(hits)

	var out []recipe.Summary
	for _, rid := range hits {
		sum, err := s.RecipeByRID(ctx, rid)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			continue
		}
		if machineID != "" && sum.MachineID != machineID {
			continue
		}
		out = append(out, *sum)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
