package graphstore

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"craftplan/internal/recipe"
)

// Completion sentinels. Phase 1 (nodes + output relationships) and phase 2
// (input relationships) complete independently so stores built before the
// input tables existed gain them without a full rebuild.
const (
	markOutputsLoaded = "outputs_loaded"
	markInputsLoaded  = "inputs_loaded"
)

const insertBatchSize = 1000

func (s *Store) hasMark(ctx context.Context, key string) bool {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM graph_meta WHERE key = ?`), key).Scan(&value)
	return err == nil
}

func (s *Store) setMark(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO graph_meta (key, value) VALUES (?, ?) ON CONFLICT DO NOTHING`), key, "true")
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// load runs whichever phases the store is missing. A store with both
// sentinels present loads nothing.
func (s *Store) load(ctx context.Context) error {
	if !s.hasMark(ctx, markOutputsLoaded) {
		if err := s.loadOutputs(ctx); err != nil {
			return err
		}
	}
	if !s.hasMark(ctx, markInputsLoaded) {
		if err := s.loadInputs(ctx); err != nil {
			return err
		}
	}
	return nil
}

// stagedTable is one deduplicated node or relationship set staged as an
// intermediate file before being copied into its store table.
type stagedTable struct {
	name    string
	columns []string
	rows    [][]string
}

// loadOutputs runs phase 1: node tables plus output relationships, marked
// complete with the first sentinel.
func (s *Store) loadOutputs(ctx context.Context) error {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()

	staged, err := s.stageOutputs()
	if err != nil {
		return err
	}
	if err := s.copyStaged(ctx, staged); err != nil {
		return err
	}
	return s.setMark(ctx, markOutputsLoaded)
}

// loadInputs runs phase 2: input relationships, marked complete with the
// second sentinel.
func (s *Store) loadInputs(ctx context.Context) error {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()

	staged, err := s.stageInputs()
	if err != nil {
		return err
	}
	if err := s.copyStaged(ctx, staged); err != nil {
		return err
	}
	return s.setMark(ctx, markInputsLoaded)
}

// stageOutputs derives the deduplicated node and output-relationship sets
// from the dataset files via set-based aggregation.
func (s *Store) stageOutputs() ([]stagedTable, error) {
	itemNodes := map[string][]string{}   // item_key -> row
	fluidNodes := map[string]struct{}{}  // fluid_id
	recipeNodes := map[string][]string{} // rid -> row (first occurrence wins)
	outputItems := map[string][]string{} // rid|item_key -> row
	outputFluids := map[string][]string{}

	collectItem := func(_ string, st recipe.ItemStack) error {
		key := recipe.ItemKey(st.ItemID, st.Meta)
		if _, ok := itemNodes[key]; !ok {
			itemNodes[key] = []string{key, st.ItemID, strconv.Itoa(st.Meta)}
		}
		return nil
	}
	if err := s.ds.ForEachItemInput(collectItem); err != nil {
		return nil, err
	}
	if err := s.ds.ForEachItemOutput(func(rid string, st recipe.ItemStack) error {
		if err := collectItem(rid, st); err != nil {
			return err
		}
		key := recipe.ItemKey(st.ItemID, st.Meta)
		rel := rid + "|" + key
		if _, ok := outputItems[rel]; !ok {
			outputItems[rel] = []string{rid, key, strconv.Itoa(st.Count), chanceString(st.Chance)}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	collectFluid := func(_ string, st recipe.FluidStack) error {
		fluidNodes[st.FluidID] = struct{}{}
		return nil
	}
	if err := s.ds.ForEachFluidInput(collectFluid); err != nil {
		return nil, err
	}
	if err := s.ds.ForEachFluidOutput(func(rid string, st recipe.FluidStack) error {
		fluidNodes[st.FluidID] = struct{}{}
		rel := rid + "|" + st.FluidID
		if _, ok := outputFluids[rel]; !ok {
			outputFluids[rel] = []string{rid, st.FluidID, strconv.Itoa(st.MB), chanceString(st.Chance)}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.ds.ForEachRecipe(func(sum recipe.Summary) error {
		if _, ok := recipeNodes[sum.RID]; !ok {
			recipeNodes[sum.RID] = []string{
				sum.RID, sum.MachineID, strconv.Itoa(sum.DurationTicks), strconv.Itoa(sum.EUt),
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	fluidRows := make([][]string, 0, len(fluidNodes))
	for id := range fluidNodes {
		fluidRows = append(fluidRows, []string{id})
	}
	return stageTables([]stagedTable{
		{"items", []string{"item_key", "item_id", "meta"}, rowsOf(itemNodes)},
		{"fluids", []string{"fluid_id"}, fluidRows},
		{"recipes", []string{"rid", "machine_id", "duration_ticks", "eut"}, rowsOf(recipeNodes)},
		{"output_items", []string{"rid", "item_key", "count", "chance"}, rowsOf(outputItems)},
		{"output_fluids", []string{"rid", "fluid_id", "mb", "chance"}, rowsOf(outputFluids)},
	})
}

func (s *Store) stageInputs() ([]stagedTable, error) {
	inputItems := map[string][]string{}
	inputFluids := map[string][]string{}
	if err := s.ds.ForEachItemInput(func(rid string, st recipe.ItemStack) error {
		key := recipe.ItemKey(st.ItemID, st.Meta)
		rel := rid + "|" + key
		if _, ok := inputItems[rel]; !ok {
			inputItems[rel] = []string{rid, key, strconv.Itoa(st.Count)}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.ds.ForEachFluidInput(func(rid string, st recipe.FluidStack) error {
		rel := rid + "|" + st.FluidID
		if _, ok := inputFluids[rel]; !ok {
			inputFluids[rel] = []string{rid, st.FluidID, strconv.Itoa(st.MB)}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return stageTables([]stagedTable{
		{"input_items", []string{"rid", "item_key", "count"}, rowsOf(inputItems)},
		{"input_fluids", []string{"rid", "fluid_id", "mb"}, rowsOf(inputFluids)},
	})
}

func chanceString(chance *float64) string {
	if chance == nil {
		return ""
	}
	return strconv.FormatFloat(*chance, 'f', -1, 64)
}

func rowsOf(m map[string][]string) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = m[k]
	}
	return rows
}

// stageTables writes each table's rows to an intermediate CSV in a scratch
// directory and reads them back, so the copy step always works from staged
// files rather than live dataset scans.
func stageTables(tables []stagedTable) ([]stagedTable, error) {
	stageDir, err := os.MkdirTemp("", "craftplan-graph-import-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(stageDir) }()
	out := make([]stagedTable, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(stageDir, t.name+".csv")
		if err := writeStageFile(path, t); err != nil {
			return nil, err
		}
		rows, err := readStageFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, stagedTable{name: t.name, columns: t.columns, rows: rows})
	}
	return out, nil
}

func writeStageFile(path string, t stagedTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stage %s: %w", t.name, err)
	}
	w := csv.NewWriter(f)
	for _, row := range t.rows {
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return fmt.Errorf("stage %s: %w", t.name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("stage %s: %w", t.name, err)
	}
	return f.Close()
}

func readStageFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read staged %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read staged %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// copyStaged bulk-copies each staged table in fixed-size batches. A failed
// batch falls back to row-by-row inserts for that batch only, so one
// malformed row does not lose its whole batch.
func (s *Store) copyStaged(ctx context.Context, tables []stagedTable) error {
	for _, t := range tables {
		for start := 0; start < len(t.rows); start += insertBatchSize {
			end := min(start+insertBatchSize, len(t.rows))
			batch := t.rows[start:end]
			if err := s.insertBatch(ctx, t, batch); err == nil {
				continue
			}
			for _, row := range batch {
				if err := s.insertBatch(ctx, t, [][]string{row}); err != nil {
					return fmt.Errorf("copy %s: %w", t.name, err)
				}
			}
		}
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, t stagedTable, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(t.columns)), ",") + ")"
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(t.name)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(t.columns, ", "))
	sb.WriteString(") VALUES ")
	args := make([]any, 0, len(rows)*len(t.columns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder)
		for col, field := range row {
			args = append(args, fieldValue(t.columns[col], field))
		}
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")
	_, err := s.db.ExecContext(ctx, s.rebind(sb.String()), args...)
	return err
}

// fieldValue maps a staged CSV field to its SQL value; empty chance fields
// become NULL and integer columns are passed as integers.
func fieldValue(column, field string) any {
	switch column {
	case "chance":
		if field == "" {
			return nil
		}
		if v, err := strconv.ParseFloat(field, 64); err == nil {
			return v
		}
		return nil
	case "meta", "count", "mb", "duration_ticks", "eut":
		n, _ := strconv.Atoi(field)
		return n
	}
	return field
}
