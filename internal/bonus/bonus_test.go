package bonus

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeIndexCSV(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "machine_index.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func TestFromCSV(t *testing.T) {
	path := writeIndexCSV(t, [][]string{
		{"machine_id", "parallel_bonus", "max_parallel", "speed_bonus", "efficiency_bonus", "coil_bonus"},
		{"ebf", "1", "0", "2", "0.9", "1.5"},
		{"assembler", "4", "2", "1", "", ""},
	})
	ix, err := FromCSV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ix.Len() != 2 {
		t.Fatalf("machines = %d", ix.Len())
	}

	b, ok := ix.For("ebf")
	if !ok {
		t.Fatal("ebf bonus missing")
	}
	// coil bonus folds into speed
	if b.SpeedBonus != 3.0 || b.EfficiencyBonus != 0.9 {
		t.Fatalf("ebf bonus = %+v", b)
	}

	b, ok = ix.For("assembler")
	if !ok {
		t.Fatal("assembler bonus missing")
	}
	if b.ParallelBonus != 4 || b.MaxParallel != 2 || b.SpeedBonus != 1.0 || b.EfficiencyBonus != 1.0 {
		t.Fatalf("assembler bonus = %+v", b)
	}

	if _, ok := ix.For("unknown"); ok {
		t.Fatal("unexpected bonus for unknown machine")
	}
}

func TestFromCSVRequiresMachineID(t *testing.T) {
	path := writeIndexCSV(t, [][]string{
		{"speed_bonus"},
		{"2"},
	})
	if _, err := FromCSV(path); err == nil {
		t.Fatal("expected error for missing machine_id column")
	}
}

func TestFromJSON(t *testing.T) {
	doc := `{"machineIndex":[
		{"machineId":"ebf","speedBonus":2,"efficiencyBonus":80},
		{"machineId":"ebf","speedBonus":1.5}
	]}`
	ix, err := FromJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, ok := ix.For("ebf")
	if !ok {
		t.Fatal("ebf bonus missing")
	}
	// the faster record wins; its percentage efficiency scales down
	if b.SpeedBonus != 2 || b.EfficiencyBonus != 0.8 {
		t.Fatalf("ebf bonus = %+v", b)
	}
}

func TestSelectionTieBreak(t *testing.T) {
	doc := `{"machineIndex":[
		{"machineId":"lcr","speedBonus":2,"parallelBonus":2,"efficiencyBonus":0.9},
		{"machineId":"lcr","speedBonus":2,"parallelBonus":2,"efficiencyBonus":0.5},
		{"machineId":"lcr","speedBonus":4,"parallelBonus":1,"efficiencyBonus":1.0}
	]}`
	ix, err := FromJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, _ := ix.For("lcr")
	// all three score 4.0; the lowest efficiency wins
	if b.EfficiencyBonus != 0.5 {
		t.Fatalf("tie-break bonus = %+v", b)
	}
}

func TestSelectionHonorsParallelCap(t *testing.T) {
	doc := `{"machineIndex":[
		{"machineId":"mega","speedBonus":1,"parallelBonus":256,"maxParallel":4},
		{"machineId":"mega","speedBonus":2,"parallelBonus":4}
	]}`
	ix, err := FromJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, _ := ix.For("mega")
	// capped 256-parallel scores 4; uncapped 2x4 scores 8
	if b.SpeedBonus != 2 || b.ParallelBonus != 4 {
		t.Fatalf("selected bonus = %+v", b)
	}
}

func TestLoadPrecedence(t *testing.T) {
	csvPath := writeIndexCSV(t, [][]string{
		{"machine_id", "speed_bonus"},
		{"ebf", "3"},
	})
	jsonPath := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(jsonPath, []byte(`{"machineIndex":[{"machineId":"ebf","speedBonus":9}]}`), 0o600); err != nil {
		t.Fatalf("write json: %v", err)
	}

	ix, err := Load(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b, _ := ix.For("ebf"); b.SpeedBonus != 3 {
		t.Fatalf("columnar precedence bonus = %+v", b)
	}

	ix, err = Load("", jsonPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b, _ := ix.For("ebf"); b.SpeedBonus != 9 {
		t.Fatalf("json fallback bonus = %+v", b)
	}

	ix, err = Load("", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ix.Len() != 0 {
		t.Fatalf("empty load = %d machines", ix.Len())
	}
}
