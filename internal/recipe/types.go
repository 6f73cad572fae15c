// Package recipe defines the identity types shared by the index backends and
// the graph builder. Items, fluids, and recipes are loaded wholesale from a
// dataset version and immutable thereafter.
package recipe

import "fmt"

// Item identifies an item by id and meta-variant. Purely a key.
type Item struct {
	ItemID string `json:"item_id"`
	Meta   int    `json:"meta"`
}

// Key returns the canonical node/path key for the item.
func (i Item) Key() string { return ItemKey(i.ItemID, i.Meta) }

// Fluid identifies a fluid by id.
type Fluid struct {
	FluidID string `json:"fluid_id"`
}

// Key returns the canonical node/path key for the fluid.
func (f Fluid) Key() string { return FluidKey(f.FluidID) }

// ItemKey formats the canonical key for an (item_id, meta) pair.
func ItemKey(itemID string, meta int) string {
	return fmt.Sprintf("item:%s:%d", itemID, meta)
}

// FluidKey formats the canonical key for a fluid id.
func FluidKey(fluidID string) string {
	return fmt.Sprintf("fluid:%s", fluidID)
}

// RecipeNodeKey formats the key for a recipe node reached as the producer of
// outputKey. The same rid may appear once per distinct output within a graph.
func RecipeNodeKey(rid, outputKey string) string {
	return fmt.Sprintf("recipe:%s:%s", rid, outputKey)
}

// Summary is the compact recipe view returned by index lookups.
type Summary struct {
	RID           string `json:"rid"`
	MachineID     string `json:"machine_id"`
	DurationTicks int    `json:"duration_ticks"`
	EUt           int    `json:"eut"`
}

// ItemStack is an item input or output with its per-cycle count. Chance is
// set only for outputs in datasets that carry the optional chance column.
type ItemStack struct {
	ItemID string   `json:"item_id"`
	Meta   int      `json:"meta"`
	Count  int      `json:"count"`
	Chance *float64 `json:"chance,omitempty"`
}

// FluidStack is a fluid input or output with its per-cycle volume in
// millibuckets.
type FluidStack struct {
	FluidID string   `json:"fluid_id"`
	MB      int      `json:"mb"`
	Chance  *float64 `json:"chance,omitempty"`
}

// IO holds the ordered input or output sets of one recipe.
type IO struct {
	Items  []ItemStack  `json:"items"`
	Fluids []FluidStack `json:"fluids"`
}

// MachineCount pairs a machine id with its number of distinct recipes for a
// given item/fluid lookup.
type MachineCount struct {
	MachineID   string `json:"machine_id"`
	RecipeCount int    `json:"recipe_count"`
}
