package planner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"craftplan/internal/dataset"
	"craftplan/internal/index"
	"craftplan/internal/index/graphstore"
)

func TestNewBackendUnknownName(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "v1")
	ds, err := dataset.Open(filepath.Join(root, "v1"), "v1")
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	if _, err := NewBackend("neo4j", ds, graphstore.Config{}); !errors.Is(err, index.ErrUnknownBackend) {
		t.Fatalf("unknown backend error = %v", err)
	}
}

func TestOpenLocalScan(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "2.7.4")
	svc, err := Open(context.Background(), Config{
		DataDir: root,
		Version: "2.7.4",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = svc.Close() }()
	if svc.Version() != "2.7.4" {
		t.Fatalf("version = %q", svc.Version())
	}
	items, err := svc.SearchItems(context.Background(), "ingot", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
}

func TestOpenLocalGraph(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "v1")
	svc, err := Open(context.Background(), Config{
		DataDir:      root,
		Version:      "v1",
		IndexBackend: "graph",
		SQLitePath:   filepath.Join(t.TempDir(), "graph.db"),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = svc.Close() }()
	svc.WarmUp()
	if err := svc.WaitUntilReady(context.Background()); err != nil {
		t.Fatalf("warm up: %v", err)
	}
	sums, err := svc.RecipesByOutput(context.Background(), index.ItemKey("frame", 0), 5, "")
	if err != nil {
		t.Fatalf("recipes: %v", err)
	}
	if len(sums) != 1 || sums[0].RID != "r1" {
		t.Fatalf("producers = %+v", sums)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Config{DataSource: "ftp"}); err == nil {
		t.Fatal("expected error for unknown data source")
	}
	if _, err := Open(ctx, Config{DataDir: t.TempDir()}); err == nil {
		t.Fatal("expected error for missing version")
	}
	root := t.TempDir()
	writeDataset(t, root, "v1")
	if _, err := Open(ctx, Config{DataDir: root, Version: "v1", Metrics: "statsd"}); err == nil {
		t.Fatal("expected error for unknown metrics recorder")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CRAFTPLAN_DATA_SOURCE", "local")
	t.Setenv("CRAFTPLAN_DATA_DIR", "/data")
	t.Setenv("CRAFTPLAN_DEFAULT_VERSION", "2.7.4")
	t.Setenv("CRAFTPLAN_INDEX_BACKEND", "graph")
	t.Setenv("CRAFTPLAN_GRAPH_DRIVER", "postgres")
	t.Setenv("CRAFTPLAN_POSTGRES_DSN", "postgres://localhost/craftplan")

	cfg := ConfigFromEnv()
	if cfg.DataSource != "local" || cfg.DataDir != "/data" || cfg.Version != "2.7.4" {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.IndexBackend != "graph" || cfg.GraphDriver != "postgres" || cfg.PostgresDSN != "postgres://localhost/craftplan" {
		t.Fatalf("config = %+v", cfg)
	}
}
