package dataset

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"craftplan/internal/recipe"
)

// fixtureFiles is a small four-recipe chain shared by the tests in this
// package. The item output table carries a chance column, the fluid output
// table does not.
func fixtureFiles() map[string][][]string {
	return map[string][][]string{
		FileRecipes: {
			{"rid", "machine_id", "duration_ticks", "eut"},
			{"r1", "assembler", "100", "30"},
			{"r2", "bender", "40", "8"},
			{"r3", "smelter", "200", "16"},
			{"r4", "mixer", "20", "8"},
		},
		FileItemInputs: {
			{"rid", "item_id", "meta", "count"},
			{"r1", "plate", "0", "2"},
			{"r2", "ingot", "0", "1"},
			{"r3", "ore", "0", "1"},
		},
		FileItemOutputs: {
			{"rid", "item_id", "meta", "count", "chance"},
			{"r1", "frame", "0", "1", ""},
			{"r2", "plate", "0", "1", ""},
			{"r3", "ingot", "0", "1", ""},
			{"r3", "dust", "0", "1", "0.5"},
		},
		FileFluidInputs: {
			{"rid", "fluid_id", "mb"},
			{"r1", "lube", "100"},
			{"r4", "water", "1000"},
		},
		FileFluidOutputs: {
			{"rid", "fluid_id", "mb"},
			{"r4", "lube", "50"},
		},
	}
}

func writeFixture(t *testing.T, dir string, files map[string][][]string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, rows := range files {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		w := csv.NewWriter(f)
		if err := w.WriteAll(rows); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close %s: %v", name, err)
		}
	}
}

func openFixture(t *testing.T) *Dataset {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "v1")
	writeFixture(t, dir, fixtureFiles())
	d, err := Open(dir, "v1")
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	return d
}

func TestOpenResolvesCapabilities(t *testing.T) {
	d := openFixture(t)
	caps := d.Caps()
	if !caps.ItemOutputChance {
		t.Fatal("item output chance capability not detected")
	}
	if caps.FluidOutputChance {
		t.Fatal("fluid output chance capability detected without column")
	}
}

func TestOpenMissingFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "v1")
	files := fixtureFiles()
	delete(files, FileFluidOutputs)
	writeFixture(t, dir, files)
	if _, err := Open(dir, "v1"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpenMissingColumn(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "v1")
	files := fixtureFiles()
	files[FileRecipes] = [][]string{
		{"rid", "machine_id", "duration_ticks"},
		{"r1", "assembler", "100"},
	}
	writeFixture(t, dir, files)
	if _, err := Open(dir, "v1"); err == nil {
		t.Fatal("expected error for missing column")
	}
}

func TestForEachRecipe(t *testing.T) {
	d := openFixture(t)
	var rids []string
	err := d.ForEachRecipe(func(s recipe.Summary) error {
		rids = append(rids, s.RID)
		if s.RID == "r1" && (s.MachineID != "assembler" || s.DurationTicks != 100 || s.EUt != 30) {
			t.Fatalf("r1 = %+v", s)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rids) != 4 || rids[0] != "r1" || rids[3] != "r4" {
		t.Fatalf("rids = %v", rids)
	}
}

func TestForEachItemOutputChance(t *testing.T) {
	d := openFixture(t)
	byID := map[string]*float64{}
	err := d.ForEachItemOutput(func(rid string, s recipe.ItemStack) error {
		if rid == "r3" {
			byID[s.ItemID] = s.Chance
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if byID["ingot"] != nil {
		t.Fatalf("ingot chance = %v", *byID["ingot"])
	}
	if byID["dust"] == nil || *byID["dust"] != 0.5 {
		t.Fatalf("dust chance = %v", byID["dust"])
	}
}

func TestForEachFluidIO(t *testing.T) {
	d := openFixture(t)
	var inputs, outputs int
	if err := d.ForEachFluidInput(func(rid string, s recipe.FluidStack) error {
		inputs++
		if rid == "r4" && (s.FluidID != "water" || s.MB != 1000) {
			t.Fatalf("r4 input = %+v", s)
		}
		return nil
	}); err != nil {
		t.Fatalf("scan inputs: %v", err)
	}
	if err := d.ForEachFluidOutput(func(rid string, s recipe.FluidStack) error {
		outputs++
		if s.Chance != nil {
			t.Fatalf("fluid chance without column = %v", *s.Chance)
		}
		return nil
	}); err != nil {
		t.Fatalf("scan outputs: %v", err)
	}
	if inputs != 2 || outputs != 1 {
		t.Fatalf("fluid rows = %d inputs, %d outputs", inputs, outputs)
	}
}

func TestMachineIndexPath(t *testing.T) {
	d := openFixture(t)
	if got := d.MachineIndexPath(); got != "" {
		t.Fatalf("machine index path without file = %q", got)
	}
	writeFixture(t, d.Dir, map[string][][]string{
		FileMachineIndex: {
			{"machine_id", "speed_bonus"},
			{"assembler", "1.5"},
		},
	})
	if got := d.MachineIndexPath(); got != filepath.Join(d.Dir, FileMachineIndex) {
		t.Fatalf("machine index path = %q", got)
	}
}
