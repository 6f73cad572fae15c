package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"craftplan/internal/index"
	"craftplan/internal/recipe"
)

// queryOp enumerates the closed set of query shapes the backend serves.
// Each op's SQL is a fixed template; nothing is assembled at call time
// beyond placeholder rebinding for the postgres dialect.
type queryOp int

const (
	opSearchItems queryOp = iota
	opSearchFluids
	opRecipeByRID
	opRecipeItemInputs
	opRecipeFluidInputs
	opRecipeItemOutputs
	opRecipeFluidOutputs
	opRecipesByOutputItem
	opRecipesByOutputItemMachine
	opRecipesByOutputFluid
	opRecipesByOutputFluidMachine
	opRecipesByInputItem
	opRecipesByInputItemMachine
	opRecipesByInputFluid
	opRecipesByInputFluidMachine
	opMachinesByOutputItem
	opMachinesByOutputFluid
	opMachinesByInputItem
	opMachinesByInputFluid
	opMachineCountsByOutputItem
	opMachineCountsByOutputFluid
	opMachineCountsByInputItem
	opMachineCountsByInputFluid
	opReachRecipesByOutputItem
	opReachRecipesByOutputFluid
	opReachItemInputsOf
	opReachFluidInputsOf
	opReachConsumersOfItem
	opReachConsumersOfFluid
)

const summaryColumns = "r.rid, r.machine_id, r.duration_ticks, r.eut"

var querySQL = map[queryOp]string{
	opSearchItems: `SELECT item_id, meta FROM items
		WHERE lower(item_id) LIKE ? ESCAPE '\'
		ORDER BY lower(item_id), meta, item_id LIMIT ?`,
	opSearchFluids: `SELECT fluid_id FROM fluids
		WHERE lower(fluid_id) LIKE ? ESCAPE '\'
		ORDER BY lower(fluid_id), fluid_id LIMIT ?`,
	opRecipeByRID: `SELECT rid, machine_id, duration_ticks, eut FROM recipes WHERE rid = ?`,
	opRecipeItemInputs: `SELECT it.item_id, it.meta, i.count
		FROM input_items i JOIN items it ON it.item_key = i.item_key
		WHERE i.rid = ? ORDER BY it.item_id, it.meta`,
	opRecipeFluidInputs: `SELECT fluid_id, mb FROM input_fluids WHERE rid = ? ORDER BY fluid_id`,
	opRecipeItemOutputs: `SELECT it.item_id, it.meta, o.count, o.chance
		FROM output_items o JOIN items it ON it.item_key = o.item_key
		WHERE o.rid = ? ORDER BY it.item_id, it.meta`,
	opRecipeFluidOutputs: `SELECT fluid_id, mb, chance FROM output_fluids WHERE rid = ? ORDER BY fluid_id`,
	opRecipesByOutputItem: `SELECT ` + summaryColumns + `
		FROM recipes r JOIN output_items o ON o.rid = r.rid
		WHERE o.item_key = ? ORDER BY r.rid LIMIT ?`,
	opRecipesByOutputItemMachine: `SELECT ` + summaryColumns + `
		FROM recipes r JOIN output_items o ON o.rid = r.rid
		WHERE o.item_key = ? AND r.machine_id = ? ORDER BY r.rid LIMIT ?`,
	opRecipesByOutputFluid: `SELECT ` + summaryColumns + `
		FROM recipes r JOIN output_fluids o ON o.rid = r.rid
		WHERE o.fluid_id = ? ORDER BY r.rid LIMIT ?`,
	opRecipesByOutputFluidMachine: `SELECT ` + summaryColumns + `
		FROM recipes r JOIN output_fluids o ON o.rid = r.rid
		WHERE o.fluid_id = ? AND r.machine_id = ? ORDER BY r.rid LIMIT ?`,
	opRecipesByInputItem: `SELECT ` + summaryColumns + `
		FROM recipes r JOIN input_items i ON i.rid = r.rid
		WHERE i.item_key = ? ORDER BY r.rid LIMIT ?`,
	opRecipesByInputItemMachine: `SELECT ` + summaryColumns + `
		FROM recipes r JOIN input_items i ON i.rid = r.rid
		WHERE i.item_key = ? AND r.machine_id = ? ORDER BY r.rid LIMIT ?`,
	opRecipesByInputFluid: `SELECT ` + summaryColumns + `
		FROM recipes r JOIN input_fluids i ON i.rid = r.rid
		WHERE i.fluid_id = ? ORDER BY r.rid LIMIT ?`,
	opRecipesByInputFluidMachine: `SELECT ` + summaryColumns + `
		FROM recipes r JOIN input_fluids i ON i.rid = r.rid
		WHERE i.fluid_id = ? AND r.machine_id = ? ORDER BY r.rid LIMIT ?`,
	opMachinesByOutputItem: `SELECT DISTINCT r.machine_id
		FROM recipes r JOIN output_items o ON o.rid = r.rid
		WHERE o.item_key = ? ORDER BY r.machine_id LIMIT ?`,
	opMachinesByOutputFluid: `SELECT DISTINCT r.machine_id
		FROM recipes r JOIN output_fluids o ON o.rid = r.rid
		WHERE o.fluid_id = ? ORDER BY r.machine_id LIMIT ?`,
	opMachinesByInputItem: `SELECT DISTINCT r.machine_id
		FROM recipes r JOIN input_items i ON i.rid = r.rid
		WHERE i.item_key = ? ORDER BY r.machine_id LIMIT ?`,
	opMachinesByInputFluid: `SELECT DISTINCT r.machine_id
		FROM recipes r JOIN input_fluids i ON i.rid = r.rid
		WHERE i.fluid_id = ? ORDER BY r.machine_id LIMIT ?`,
	opMachineCountsByOutputItem: `SELECT r.machine_id, COUNT(DISTINCT r.rid)
		FROM recipes r JOIN output_items o ON o.rid = r.rid
		WHERE o.item_key = ? GROUP BY r.machine_id ORDER BY r.machine_id LIMIT ?`,
	opMachineCountsByOutputFluid: `SELECT r.machine_id, COUNT(DISTINCT r.rid)
		FROM recipes r JOIN output_fluids o ON o.rid = r.rid
		WHERE o.fluid_id = ? GROUP BY r.machine_id ORDER BY r.machine_id LIMIT ?`,
	opMachineCountsByInputItem: `SELECT r.machine_id, COUNT(DISTINCT r.rid)
		FROM recipes r JOIN input_items i ON i.rid = r.rid
		WHERE i.item_key = ? GROUP BY r.machine_id ORDER BY r.machine_id LIMIT ?`,
	opMachineCountsByInputFluid: `SELECT r.machine_id, COUNT(DISTINCT r.rid)
		FROM recipes r JOIN input_fluids i ON i.rid = r.rid
		WHERE i.fluid_id = ? GROUP BY r.machine_id ORDER BY r.machine_id LIMIT ?`,
	opReachRecipesByOutputItem:  `SELECT rid FROM output_items WHERE item_key = ?`,
	opReachRecipesByOutputFluid: `SELECT rid FROM output_fluids WHERE fluid_id = ?`,
	opReachItemInputsOf:         `SELECT item_key FROM input_items WHERE rid = ?`,
	opReachFluidInputsOf:        `SELECT fluid_id FROM input_fluids WHERE rid = ?`,
	opReachConsumersOfItem:      `SELECT rid FROM input_items WHERE item_key = ?`,
	opReachConsumersOfFluid:     `SELECT rid FROM input_fluids WHERE fluid_id = ?`,
}

// rebind rewrites ? placeholders to $n for the postgres dialect; sqlite
// takes the template as-is.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) query(ctx context.Context, op queryOp, args ...any) (*sql.Rows, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(querySQL[op]), args...)
	if err != nil {
		return nil, fmt.Errorf("graph query: %w", err)
	}
	return rows, nil
}

func escapeLike(raw string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(raw)
}

func likePattern(query string) string {
	return "%" + escapeLike(strings.ToLower(query)) + "%"
}

// sqlKey maps an index key to the stored relationship key.
func sqlKey(key index.Key) string {
	if key.Kind == index.KindFluid {
		return key.ID
	}
	return recipe.ItemKey(key.ID, key.Meta)
}

// SearchItems matches item ids case-insensitively, ordered by lowercased id
// then meta.
func (s *Store) SearchItems(ctx context.Context, query string, limit int) ([]recipe.Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.query(ctx, opSearchItems, likePattern(query), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var items []recipe.Item
	for rows.Next() {
		var it recipe.Item
		if err := rows.Scan(&it.ItemID, &it.Meta); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SearchFluids matches fluid ids case-insensitively.
func (s *Store) SearchFluids(ctx context.Context, query string, limit int) ([]recipe.Fluid, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.query(ctx, opSearchFluids, likePattern(query), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var fluids []recipe.Fluid
	for rows.Next() {
		var f recipe.Fluid
		if err := rows.Scan(&f.FluidID); err != nil {
			return nil, err
		}
		fluids = append(fluids, f)
	}
	return fluids, rows.Err()
}

// RecipeByRID returns the stored recipe node, or nil when absent.
func (s *Store) RecipeByRID(ctx context.Context, rid string) (*recipe.Summary, error) {
	rows, err := s.query(ctx, opRecipeByRID, rid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var sum recipe.Summary
	if err := rows.Scan(&sum.RID, &sum.MachineID, &sum.DurationTicks, &sum.EUt); err != nil {
		return nil, err
	}
	return &sum, nil
}

// RecipeInputs returns the recipe's input relationships.
func (s *Store) RecipeInputs(ctx context.Context, rid string) (recipe.IO, error) {
	var io recipe.IO
	rows, err := s.query(ctx, opRecipeItemInputs, rid)
	if err != nil {
		return recipe.IO{}, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var st recipe.ItemStack
		if err := rows.Scan(&st.ItemID, &st.Meta, &st.Count); err != nil {
			return recipe.IO{}, err
		}
		io.Items = append(io.Items, st)
	}
	if err := rows.Err(); err != nil {
		return recipe.IO{}, err
	}
	fluidRows, err := s.query(ctx, opRecipeFluidInputs, rid)
	if err != nil {
		return recipe.IO{}, err
	}
	defer func() { _ = fluidRows.Close() }()
	for fluidRows.Next() {
		var st recipe.FluidStack
		if err := fluidRows.Scan(&st.FluidID, &st.MB); err != nil {
			return recipe.IO{}, err
		}
		io.Fluids = append(io.Fluids, st)
	}
	return io, fluidRows.Err()
}

// RecipeOutputs returns the recipe's output relationships with chance when
// the loaded dataset carried it.
func (s *Store) RecipeOutputs(ctx context.Context, rid string) (recipe.IO, error) {
	var io recipe.IO
	rows, err := s.query(ctx, opRecipeItemOutputs, rid)
	if err != nil {
		return recipe.IO{}, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var st recipe.ItemStack
		var chance sql.NullFloat64
		if err := rows.Scan(&st.ItemID, &st.Meta, &st.Count, &chance); err != nil {
			return recipe.IO{}, err
		}
		if chance.Valid {
			st.Chance = &chance.Float64
		}
		io.Items = append(io.Items, st)
	}
	if err := rows.Err(); err != nil {
		return recipe.IO{}, err
	}
	fluidRows, err := s.query(ctx, opRecipeFluidOutputs, rid)
	if err != nil {
		return recipe.IO{}, err
	}
	defer func() { _ = fluidRows.Close() }()
	for fluidRows.Next() {
		var st recipe.FluidStack
		var chance sql.NullFloat64
		if err := fluidRows.Scan(&st.FluidID, &st.MB, &chance); err != nil {
			return recipe.IO{}, err
		}
		if chance.Valid {
			st.Chance = &chance.Float64
		}
		io.Fluids = append(io.Fluids, st)
	}
	return io, fluidRows.Err()
}

func (s *Store) scanSummaries(rows *sql.Rows) ([]recipe.Summary, error) {
	defer func() { _ = rows.Close() }()
	var out []recipe.Summary
	for rows.Next() {
		var sum recipe.Summary
		if err := rows.Scan(&sum.RID, &sum.MachineID, &sum.DurationTicks, &sum.EUt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) recipesBy(ctx context.Context, key index.Key, limit int, machineID string, ops [4]queryOp) ([]recipe.Summary, error) {
	if limit <= 0 {
		return nil, nil
	}
	// ops: [item, itemMachine, fluid, fluidMachine]
	var op queryOp
	args := []any{sqlKey(key)}
	switch {
	case key.Kind == index.KindItem && machineID == "":
		op = ops[0]
	case key.Kind == index.KindItem:
		op = ops[1]
		args = append(args, machineID)
	case machineID == "":
		op = ops[2]
	default:
		op = ops[3]
		args = append(args, machineID)
	}
	args = append(args, limit)
	rows, err := s.query(ctx, op, args...)
	if err != nil {
		return nil, err
	}
	return s.scanSummaries(rows)
}

// RecipesByOutput lists recipes producing key, ordered by rid.
func (s *Store) RecipesByOutput(ctx context.Context, key index.Key, limit int, machineID string) ([]recipe.Summary, error) {
	return s.recipesBy(ctx, key, limit, machineID, [4]queryOp{
		opRecipesByOutputItem, opRecipesByOutputItemMachine,
		opRecipesByOutputFluid, opRecipesByOutputFluidMachine,
	})
}

// RecipesByInput lists recipes consuming key, ordered by rid.
func (s *Store) RecipesByInput(ctx context.Context, key index.Key, limit int, machineID string) ([]recipe.Summary, error) {
	return s.recipesBy(ctx, key, limit, machineID, [4]queryOp{
		opRecipesByInputItem, opRecipesByInputItemMachine,
		opRecipesByInputFluid, opRecipesByInputFluidMachine,
	})
}

func (s *Store) machines(ctx context.Context, key index.Key, limit int, itemOp, fluidOp queryOp) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	op := itemOp
	if key.Kind == index.KindFluid {
		op = fluidOp
	}
	rows, err := s.query(ctx, op, sqlKey(key), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var machines []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// MachinesByOutput lists distinct machines producing key, sorted.
func (s *Store) MachinesByOutput(ctx context.Context, key index.Key, limit int) ([]string, error) {
	return s.machines(ctx, key, limit, opMachinesByOutputItem, opMachinesByOutputFluid)
}

// MachinesByInput lists distinct machines consuming key, sorted.
func (s *Store) MachinesByInput(ctx context.Context, key index.Key, limit int) ([]string, error) {
	return s.machines(ctx, key, limit, opMachinesByInputItem, opMachinesByInputFluid)
}

func (s *Store) machineCounts(ctx context.Context, key index.Key, limit int, itemOp, fluidOp queryOp) ([]recipe.MachineCount, error) {
	if limit <= 0 {
		return nil, nil
	}
	op := itemOp
	if key.Kind == index.KindFluid {
		op = fluidOp
	}
	rows, err := s.query(ctx, op, sqlKey(key), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var counts []recipe.MachineCount
	for rows.Next() {
		var c recipe.MachineCount
		if err := rows.Scan(&c.MachineID, &c.RecipeCount); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// MachineCountsByOutput lists producing machines with distinct-recipe counts.
func (s *Store) MachineCountsByOutput(ctx context.Context, key index.Key, limit int) ([]recipe.MachineCount, error) {
	return s.machineCounts(ctx, key, limit, opMachineCountsByOutputItem, opMachineCountsByOutputFluid)
}

// MachineCountsByInput lists consuming machines with distinct-recipe counts.
func (s *Store) MachineCountsByInput(ctx context.Context, key index.Key, limit int) ([]recipe.MachineCount, error) {
	return s.machineCounts(ctx, key, limit, opMachineCountsByInputItem, opMachineCountsByInputFluid)
}
