// Package dataset reads the static columnar recipe dataset. One directory
// holds one dataset version as a fixed set of CSV files; the files are
// immutable once published and a new version replaces them wholesale.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"craftplan/internal/recipe"
)

// Required dataset files. A version directory missing any of them fails at
// open time, never per query.
const (
	FileRecipes      = "recipes.csv"
	FileItemInputs   = "item_inputs.csv"
	FileItemOutputs  = "item_outputs.csv"
	FileFluidInputs  = "fluid_inputs.csv"
	FileFluidOutputs = "fluid_outputs.csv"
	FileMachineIndex = "machine_index.csv" // optional
)

var requiredFiles = []string{
	FileRecipes,
	FileItemInputs,
	FileItemOutputs,
	FileFluidInputs,
	FileFluidOutputs,
}

// Capabilities records which optional columns the open dataset carries.
// Resolved once at open time rather than re-probed per call.
type Capabilities struct {
	ItemOutputChance  bool
	FluidOutputChance bool
}

// table caches a file's resolved header so per-call scans skip re-parsing it.
type table struct {
	path string
	cols map[string]int
}

func (t table) col(name string) (int, bool) {
	idx, ok := t.cols[name]
	return idx, ok
}

// Dataset is an open, immutable dataset version.
type Dataset struct {
	Version string
	Dir     string

	caps   Capabilities
	tables map[string]table
}

// Open validates the version directory's file set and header schemas, and
// resolves optional-column capabilities.
func Open(dir, version string) (*Dataset, error) {
	d := &Dataset{Version: version, Dir: dir, tables: make(map[string]table)}
	for _, name := range requiredFiles {
		path := filepath.Join(dir, name)
		cols, err := readHeader(path)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", version, err)
		}
		if err := requireColumns(name, cols, requiredColumns[name]); err != nil {
			return nil, fmt.Errorf("dataset %s: %w", version, err)
		}
		d.tables[name] = table{path: path, cols: cols}
	}
	// Chance is optional in the source format; absence is a reduced
	// projection, not an error.
	_, d.caps.ItemOutputChance = d.tables[FileItemOutputs].col("chance")
	_, d.caps.FluidOutputChance = d.tables[FileFluidOutputs].col("chance")
	return d, nil
}

var requiredColumns = map[string][]string{
	FileRecipes:      {"rid", "machine_id", "duration_ticks", "eut"},
	FileItemInputs:   {"rid", "item_id", "meta", "count"},
	FileItemOutputs:  {"rid", "item_id", "meta", "count"},
	FileFluidInputs:  {"rid", "fluid_id", "mb"},
	FileFluidOutputs: {"rid", "fluid_id", "mb"},
}

func readHeader(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("missing dataset file: %w", err)
	}
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", filepath.Base(path), err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	return cols, nil
}

func requireColumns(file string, cols map[string]int, names []string) error {
	for _, name := range names {
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("%s: missing column %q", file, name)
		}
	}
	return nil
}

// Caps reports the dataset's optional-column capabilities.
func (d *Dataset) Caps() Capabilities { return d.caps }

// scan streams a file's data rows through fn. Row order is the file's own
// order; callers relying on ordering get the dataset's, nothing more.
func (d *Dataset) scan(file string, fn func(rec []string, t table) error) error {
	t, ok := d.tables[file]
	if !ok {
		return fmt.Errorf("unknown dataset table %s", file)
	}
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil { // header
		return fmt.Errorf("read %s: %w", file, err)
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if err := fn(rec, t); err != nil {
			return err
		}
	}
}

func atoi(field string) int {
	n, _ := strconv.Atoi(field)
	return n
}

func chanceField(rec []string, t table) *float64 {
	idx, ok := t.col("chance")
	if !ok || idx >= len(rec) || rec[idx] == "" {
		return nil
	}
	v, err := strconv.ParseFloat(rec[idx], 64)
	if err != nil {
		return nil
	}
	return &v
}

// ForEachRecipe streams all recipe rows in file order.
func (d *Dataset) ForEachRecipe(fn func(recipe.Summary) error) error {
	return d.scan(FileRecipes, func(rec []string, t table) error {
		return fn(recipe.Summary{
			RID:           rec[t.cols["rid"]],
			MachineID:     rec[t.cols["machine_id"]],
			DurationTicks: atoi(rec[t.cols["duration_ticks"]]),
			EUt:           atoi(rec[t.cols["eut"]]),
		})
	})
}

// ForEachItemInput streams item input rows.
func (d *Dataset) ForEachItemInput(fn func(rid string, s recipe.ItemStack) error) error {
	return d.scan(FileItemInputs, func(rec []string, t table) error {
		return fn(rec[t.cols["rid"]], recipe.ItemStack{
			ItemID: rec[t.cols["item_id"]],
			Meta:   atoi(rec[t.cols["meta"]]),
			Count:  atoi(rec[t.cols["count"]]),
		})
	})
}

// ForEachItemOutput streams item output rows, carrying the chance column when
// the dataset has it.
func (d *Dataset) ForEachItemOutput(fn func(rid string, s recipe.ItemStack) error) error {
	return d.scan(FileItemOutputs, func(rec []string, t table) error {
		s := recipe.ItemStack{
			ItemID: rec[t.cols["item_id"]],
			Meta:   atoi(rec[t.cols["meta"]]),
			Count:  atoi(rec[t.cols["count"]]),
		}
		if d.caps.ItemOutputChance {
			s.Chance = chanceField(rec, t)
		}
		return fn(rec[t.cols["rid"]], s)
	})
}

// ForEachFluidInput streams fluid input rows.
func (d *Dataset) ForEachFluidInput(fn func(rid string, s recipe.FluidStack) error) error {
	return d.scan(FileFluidInputs, func(rec []string, t table) error {
		return fn(rec[t.cols["rid"]], recipe.FluidStack{
			FluidID: rec[t.cols["fluid_id"]],
			MB:      atoi(rec[t.cols["mb"]]),
		})
	})
}

// ForEachFluidOutput streams fluid output rows with optional chance.
func (d *Dataset) ForEachFluidOutput(fn func(rid string, s recipe.FluidStack) error) error {
	return d.scan(FileFluidOutputs, func(rec []string, t table) error {
		s := recipe.FluidStack{
			FluidID: rec[t.cols["fluid_id"]],
			MB:      atoi(rec[t.cols["mb"]]),
		}
		if d.caps.FluidOutputChance {
			s.Chance = chanceField(rec, t)
		}
		return fn(rec[t.cols["rid"]], s)
	})
}

// MachineIndexPath returns the path of the optional columnar bonus index, or
// "" when the version does not ship one.
func (d *Dataset) MachineIndexPath() string {
	path := filepath.Join(d.Dir, FileMachineIndex)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
