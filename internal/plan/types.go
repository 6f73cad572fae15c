// Package plan builds annotated production dependency graphs: given demand
// targets with desired rates, it expands producing recipes upstream through
// the recipe index and reports per-node throughput, machine-count, and
// energy figures under the requested tuning.
package plan

import (
	"fmt"

	"craftplan/internal/index"
	"craftplan/internal/tuning"
)

// TargetKind discriminates demand targets.
type TargetKind string

const (
	TargetItem  TargetKind = "item"
	TargetFluid TargetKind = "fluid"
)

// Target is one demanded item or fluid with its desired per-second rate.
type Target struct {
	Kind        TargetKind `json:"kind"`
	ID          string     `json:"id"`
	Meta        int        `json:"meta,omitempty"`
	DesiredRate float64    `json:"desired_rate"`
}

// key resolves the target to an index key.
func (t Target) key() index.Key {
	if t.Kind == TargetFluid {
		return index.FluidKey(t.ID)
	}
	return index.ItemKey(t.ID, t.Meta)
}

// Request describes one build: targets, expansion bound, tuning, and
// optional per-node recipe and per-recipe overclock overrides. Recipe
// overrides are keyed by canonical node key, overclock overrides by rid.
type Request struct {
	Targets            []Target             `json:"targets"`
	MaxDepth           int                  `json:"max_depth"`
	Tuning             tuning.MachineTuning `json:"tuning"`
	RecipeOverrides    map[string]string    `json:"recipe_overrides,omitempty"`
	OverclockOverrides map[string]int       `json:"overclock_overrides,omitempty"`
}

// Validate rejects malformed requests with a single clear error.
func (r Request) Validate() error {
	if len(r.Targets) == 0 {
		return fmt.Errorf("request has no targets")
	}
	for i, t := range r.Targets {
		if t.Kind != TargetItem && t.Kind != TargetFluid {
			return fmt.Errorf("target %d: unknown kind %q", i, t.Kind)
		}
		if t.ID == "" {
			return fmt.Errorf("target %d: empty id", i)
		}
		if t.DesiredRate <= 0 {
			return fmt.Errorf("target %d: desired rate must be positive", i)
		}
	}
	if r.MaxDepth < 0 {
		return fmt.Errorf("max depth must be >= 0")
	}
	if r.Tuning.OverclockTiers < 0 {
		return fmt.Errorf("overclock tiers must be >= 0")
	}
	if r.Tuning.Parallel < 0 {
		return fmt.Errorf("parallel must be >= 0")
	}
	return nil
}

// NodeKind discriminates graph nodes.
type NodeKind string

const (
	NodeItem   NodeKind = "item"
	NodeFluid  NodeKind = "fluid"
	NodeRecipe NodeKind = "recipe"
)

// Node is one graph node. Item and fluid nodes carry identity only; recipe
// nodes additionally carry the tuned duration/energy figures and the machine
// count required for the rate that reached them.
type Node struct {
	Key  string   `json:"key"`
	Kind NodeKind `json:"kind"`

	ItemID  string `json:"item_id,omitempty"`
	Meta    int    `json:"meta,omitempty"`
	FluidID string `json:"fluid_id,omitempty"`

	RID              string  `json:"rid,omitempty"`
	MachineID        string  `json:"machine_id,omitempty"`
	DurationTicks    int     `json:"duration_ticks,omitempty"`
	EUt              int     `json:"eut,omitempty"`
	MachinesRequired float64 `json:"machines_required,omitempty"`
	RatePerSecond    float64 `json:"rate_per_second,omitempty"`
}

// EdgeKind discriminates flow edges.
type EdgeKind string

const (
	EdgeProduces  EdgeKind = "produces"
	EdgeConsumes  EdgeKind = "consumes"
	EdgeByproduct EdgeKind = "byproduct"
)

// Edge is one directed flow. Rediscovering an existing (source, target,
// kind) triple accumulates Rate instead of duplicating the edge. PerCycle is
// the per-cycle item count or fluid volume of the underlying recipe slot.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Kind     EdgeKind `json:"kind"`
	Rate     float64  `json:"rate"`
	PerCycle int      `json:"per_cycle"`
}

// Meta echoes what the build resolved.
type Meta struct {
	Version  string   `json:"version"`
	Targets  []Target `json:"targets"`
	MaxDepth int      `json:"max_depth"`
}

// Response is the built graph in insertion order.
type Response struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Meta  Meta   `json:"meta"`
}

// graph accumulates nodes and edges with first-insertion ordering.
type graph struct {
	nodes     []Node
	nodeIndex map[string]int
	edges     []Edge
	edgeIndex map[string]int
}

func newGraph() *graph {
	return &graph{nodeIndex: map[string]int{}, edgeIndex: map[string]int{}}
}

// node returns the existing node for key, adding it on first sight.
func (g *graph) node(n Node) *Node {
	if i, ok := g.nodeIndex[n.Key]; ok {
		return &g.nodes[i]
	}
	g.nodeIndex[n.Key] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return &g.nodes[len(g.nodes)-1]
}

// edge adds rate to the (source, target, kind) edge, creating it on first
// sight.
func (g *graph) edge(source, target string, kind EdgeKind, rate float64, perCycle int) {
	key := source + "->" + target + ":" + string(kind)
	if i, ok := g.edgeIndex[key]; ok {
		g.edges[i].Rate += rate
		return
	}
	g.edgeIndex[key] = len(g.edges)
	g.edges = append(g.edges, Edge{Source: source, Target: target, Kind: kind, Rate: rate, PerCycle: perCycle})
}
