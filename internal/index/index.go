// Package index defines the query contract every recipe index backend
// satisfies. Two engines implement it: a stateless scan over the dataset's
// columnar files and a persistent graph store. Callers never depend on which
// one is behind the interface.
package index

import (
	"context"
	"errors"

	"craftplan/internal/recipe"
)

// ErrUnknownBackend marks an unrecognized backend name. Fatal at startup;
// the process must not serve requests with a misconfigured index.
var ErrUnknownBackend = errors.New("unknown index backend")

// Kind discriminates item and fluid keys.
type Kind string

const (
	KindItem  Kind = "item"
	KindFluid Kind = "fluid"
)

// Key identifies an item (id, meta) or fluid (id) uniformly.
type Key struct {
	Kind Kind
	ID   string
	Meta int
}

// ItemKey builds an item key.
func ItemKey(id string, meta int) Key { return Key{Kind: KindItem, ID: id, Meta: meta} }

// FluidKey builds a fluid key.
func FluidKey(id string) Key { return Key{Kind: KindFluid, ID: id} }

// String returns the canonical path/node key string.
func (k Key) String() string {
	if k.Kind == KindFluid {
		return recipe.FluidKey(k.ID)
	}
	return recipe.ItemKey(k.ID, k.Meta)
}

// Backend is the uniform query surface over one dataset version.
//
// Queries for nonexistent ids return empty results, never errors. Result
// order is backend-defined but stable across repeated calls; limit is a hard
// cap, not a page.
type Backend interface {
	// SearchItems and SearchFluids match case-insensitively on id substring.
	SearchItems(ctx context.Context, query string, limit int) ([]recipe.Item, error)
	SearchFluids(ctx context.Context, query string, limit int) ([]recipe.Fluid, error)

	// RecipeByRID returns nil when the rid is unknown.
	RecipeByRID(ctx context.Context, rid string) (*recipe.Summary, error)
	RecipeInputs(ctx context.Context, rid string) (recipe.IO, error)
	RecipeOutputs(ctx context.Context, rid string) (recipe.IO, error)

	// machineID, when non-empty, restricts results to that machine.
	RecipesByOutput(ctx context.Context, key Key, limit int, machineID string) ([]recipe.Summary, error)
	RecipesByInput(ctx context.Context, key Key, limit int, machineID string) ([]recipe.Summary, error)

	// Machine lookups return distinct machine ids sorted lexicographically.
	MachinesByOutput(ctx context.Context, key Key, limit int) ([]string, error)
	MachinesByInput(ctx context.Context, key Key, limit int) ([]string, error)
	MachineCountsByOutput(ctx context.Context, key Key, limit int) ([]recipe.MachineCount, error)
	MachineCountsByInput(ctx context.Context, key Key, limit int) ([]recipe.MachineCount, error)

	// DownstreamReachableRecipes returns recipes that directly consume input
	// and lie on a chain of at most maxDepth recipe-hops eventually producing
	// output. Fails closed (empty) for maxDepth<=0, limit<=0, or an output
	// that resolves to nothing.
	DownstreamReachableRecipes(ctx context.Context, input, output Key, maxDepth, limit int, machineID string) ([]recipe.Summary, error)

	Close() error
}

// Warmer is implemented by backends that can pre-load state in the
// background at process start.
type Warmer interface {
	WarmUp()
	WaitUntilReady(ctx context.Context) error
}
