package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"craftplan/internal/dataset"
	"craftplan/internal/plan"
)

func writeDataset(t *testing.T, root, version string) {
	t.Helper()
	dir := filepath.Join(root, version)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string][][]string{
		dataset.FileRecipes: {
			{"rid", "machine_id", "duration_ticks", "eut"},
			{"r1", "smelter", "200", "16"},
		},
		dataset.FileItemInputs: {
			{"rid", "item_id", "meta", "count"},
			{"r1", "ore", "0", "1"},
		},
		dataset.FileItemOutputs: {
			{"rid", "item_id", "meta", "count"},
			{"r1", "ingot", "0", "1"},
		},
		dataset.FileFluidInputs: {
			{"rid", "fluid_id", "mb"},
		},
		dataset.FileFluidOutputs: {
			{"rid", "fluid_id", "mb"},
		},
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

func TestCLISummary(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "v1")
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-data-dir", root, "-version", "v1"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "dataset v1 ok") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestCLISearch(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "v1")
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-data-dir", root, "-version", "v1", "-search", "ingot"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "item\tingot\t0") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestCLIBuild(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "v1")
	var stdout, stderr bytes.Buffer
	code := cli([]string{
		"-data-dir", root, "-version", "v1",
		"-target", "item:ingot:0", "-rate", "2", "-depth", "3",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	var resp plan.Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Meta.Version != "v1" || len(resp.Nodes) == 0 {
		t.Fatalf("response = %+v", resp.Meta)
	}
}

func TestCLIMissingDataset(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-data-dir", t.TempDir(), "-version", "v1"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit %d", code)
	}
}

func TestParseTarget(t *testing.T) {
	tgt, err := parseTarget("item:gt.metaitem.01:32", 5)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tgt.Kind != plan.TargetItem || tgt.ID != "gt.metaitem.01" || tgt.Meta != 32 || tgt.DesiredRate != 5 {
		t.Fatalf("target = %+v", tgt)
	}

	tgt, err = parseTarget("fluid:lubricant", 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tgt.Kind != plan.TargetFluid || tgt.ID != "lubricant" {
		t.Fatalf("target = %+v", tgt)
	}

	for _, bad := range []string{"", "ingot", "item:", "item:ingot", "item:ingot:x", "fluid:"} {
		if _, err := parseTarget(bad, 1); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
