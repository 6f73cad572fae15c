package graphstore

import (
	"context"
	"testing"

	"craftplan/internal/index"
	"craftplan/internal/index/scan"
)

func TestDownstreamReachableRecipes(t *testing.T) {
	s := openFixtureStore(t)
	ctx := context.Background()
	ingot := index.ItemKey("ingot", 0)
	frame := index.ItemKey("frame", 0)

	// Depth 1 covers only the frame assembler, which does not consume ingot.
	got, err := s.DownstreamReachableRecipes(ctx, ingot, frame, 1, 10, "")
	if err != nil {
		t.Fatalf("reach: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("depth-1 matches = %+v", got)
	}

	// Depth 2 reaches the plate bender, which does.
	got, err = s.DownstreamReachableRecipes(ctx, ingot, frame, 2, 10, "")
	if err != nil {
		t.Fatalf("reach: %v", err)
	}
	if len(got) != 1 || got[0].RID != "r2" {
		t.Fatalf("depth-2 matches = %+v", got)
	}

	// The mixer feeds the assembler through lube.
	got, err = s.DownstreamReachableRecipes(ctx, index.FluidKey("water"), frame, 2, 10, "")
	if err != nil {
		t.Fatalf("reach: %v", err)
	}
	if len(got) != 1 || got[0].RID != "r4" {
		t.Fatalf("fluid chain matches = %+v", got)
	}

	got, err = s.DownstreamReachableRecipes(ctx, ingot, frame, 2, 10, "smelter")
	if err != nil {
		t.Fatalf("reach: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("machine-filtered matches = %+v", got)
	}
}

func TestDownstreamReachableFailsClosed(t *testing.T) {
	s := openFixtureStore(t)
	ctx := context.Background()
	ingot := index.ItemKey("ingot", 0)
	frame := index.ItemKey("frame", 0)

	for _, tc := range []struct {
		name            string
		input, output   index.Key
		maxDepth, limit int
	}{
		{"zero depth", ingot, frame, 0, 10},
		{"zero limit", ingot, frame, 5, 0},
		{"unknown output", ingot, index.ItemKey("missing", 0), 5, 10},
		{"unknown input", index.ItemKey("missing", 0), frame, 5, 10},
	} {
		got, err := s.DownstreamReachableRecipes(ctx, tc.input, tc.output, tc.maxDepth, tc.limit, "")
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != 0 {
			t.Fatalf("%s: matches = %+v", tc.name, got)
		}
	}
}

// Both backends answer reachability over the same dataset identically.
func TestReachAgreesWithScanBackend(t *testing.T) {
	s := openFixtureStore(t)
	sc := scan.New(s.ds)
	ctx := context.Background()

	cases := []struct {
		input, output index.Key
		maxDepth      int
	}{
		{index.ItemKey("ingot", 0), index.ItemKey("frame", 0), 1},
		{index.ItemKey("ingot", 0), index.ItemKey("frame", 0), 2},
		{index.ItemKey("ore", 0), index.ItemKey("frame", 0), 3},
		{index.FluidKey("water"), index.ItemKey("frame", 0), 2},
		{index.ItemKey("plate", 0), index.ItemKey("frame", 0), 1},
	}
	for _, tc := range cases {
		fromGraph, err := s.DownstreamReachableRecipes(ctx, tc.input, tc.output, tc.maxDepth, 10, "")
		if err != nil {
			t.Fatalf("graph reach: %v", err)
		}
		fromScan, err := sc.DownstreamReachableRecipes(ctx, tc.input, tc.output, tc.maxDepth, 10, "")
		if err != nil {
			t.Fatalf("scan reach: %v", err)
		}
		if len(fromGraph) != len(fromScan) {
			t.Fatalf("depth %d: graph %+v vs scan %+v", tc.maxDepth, fromGraph, fromScan)
		}
		for i := range fromGraph {
			if fromGraph[i] != fromScan[i] {
				t.Fatalf("depth %d result %d: graph %+v vs scan %+v", tc.maxDepth, i, fromGraph[i], fromScan[i])
			}
		}
	}
}
