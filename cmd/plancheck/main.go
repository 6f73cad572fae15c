// Command plancheck opens a dataset version, answers ad-hoc index queries,
// and builds production graphs from the command line. It exists for fixture
// validation and operational spot checks, not as the serving surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"craftplan/internal/plan"
	"craftplan/internal/planner"
	"craftplan/internal/tuning"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("plancheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dataDir   = fs.String("data-dir", ".", "dataset root, one directory per version")
		version   = fs.String("version", "", "dataset version to open")
		backend   = fs.String("backend", "scan", "index backend: scan or graph")
		graphPath = fs.String("graph-path", "", "sqlite path for the graph backend")
		bonusJSON = fs.String("bonus-json", "", "machine bonus document path")
		warm      = fs.Bool("warm", false, "wait for the index to finish loading before querying")
		search    = fs.String("search", "", "substring to search items and fluids for")
		limit     = fs.Int("limit", 10, "search result cap")
		target    = fs.String("target", "", "build target, item:<id>:<meta> or fluid:<id>")
		rate      = fs.Float64("rate", 1, "desired target rate per second")
		depth     = fs.Int("depth", 10, "max expansion depth")
		tiers     = fs.Int("overclock", 0, "overclock tiers")
		parallel  = fs.Int("parallel", 1, "parallel machine multiplier")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	svc, err := planner.Open(ctx, planner.Config{
		DataDir:          *dataDir,
		Version:          *version,
		IndexBackend:     *backend,
		SQLitePath:       *graphPath,
		MachineIndexJSON: *bonusJSON,
	})
	if err != nil {
		fmt.Fprintf(stderr, "plancheck: %v\n", err)
		return 1
	}
	defer func() { _ = svc.Close() }()

	if *warm {
		svc.WarmUp()
		if err := svc.WaitUntilReady(ctx); err != nil {
			fmt.Fprintf(stderr, "plancheck: index load: %v\n", err)
			return 1
		}
	}

	if *search != "" {
		items, err := svc.SearchItems(ctx, *search, *limit)
		if err != nil {
			fmt.Fprintf(stderr, "plancheck: %v\n", err)
			return 1
		}
		fluids, err := svc.SearchFluids(ctx, *search, *limit)
		if err != nil {
			fmt.Fprintf(stderr, "plancheck: %v\n", err)
			return 1
		}
		for _, it := range items {
			fmt.Fprintf(stdout, "item\t%s\t%d\n", it.ItemID, it.Meta)
		}
		for _, f := range fluids {
			fmt.Fprintf(stdout, "fluid\t%s\n", f.FluidID)
		}
	}

	if *target != "" {
		tgt, err := parseTarget(*target, *rate)
		if err != nil {
			fmt.Fprintf(stderr, "plancheck: %v\n", err)
			return 2
		}
		resp, err := svc.BuildGraph(ctx, plan.Request{
			Targets:  []plan.Target{tgt},
			MaxDepth: *depth,
			Tuning:   tuning.MachineTuning{OverclockTiers: *tiers, Parallel: *parallel},
		})
		if err != nil {
			fmt.Fprintf(stderr, "plancheck: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(stderr, "plancheck: %v\n", err)
			return 1
		}
	}

	if *search == "" && *target == "" {
		fmt.Fprintf(stdout, "dataset %s ok\n", svc.Version())
	}
	return 0
}

// parseTarget reads the canonical key syntax: item:<id>:<meta> or
// fluid:<id>.
func parseTarget(arg string, rate float64) (plan.Target, error) {
	switch {
	case strings.HasPrefix(arg, "fluid:"):
		id := strings.TrimPrefix(arg, "fluid:")
		if id == "" {
			return plan.Target{}, fmt.Errorf("invalid target %q", arg)
		}
		return plan.Target{Kind: plan.TargetFluid, ID: id, DesiredRate: rate}, nil
	case strings.HasPrefix(arg, "item:"):
		rest := strings.TrimPrefix(arg, "item:")
		i := strings.LastIndex(rest, ":")
		if i <= 0 {
			return plan.Target{}, fmt.Errorf("invalid target %q", arg)
		}
		meta, err := strconv.Atoi(rest[i+1:])
		if err != nil {
			return plan.Target{}, fmt.Errorf("invalid target meta in %q", arg)
		}
		return plan.Target{Kind: plan.TargetItem, ID: rest[:i], Meta: meta, DesiredRate: rate}, nil
	}
	return plan.Target{}, fmt.Errorf("invalid target %q", arg)
}
