package dataset

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestLocalSource(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "2.7.4")
	writeFixture(t, dir, fixtureFiles())
	src := NewLocalSource(dir, "2.7.4")
	ctx := context.Background()

	versions, err := src.ListVersions(ctx)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 1 || versions[0] != "2.7.4" {
		t.Fatalf("versions = %v", versions)
	}

	d, err := src.OpenDataset(ctx, "2.7.4")
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	if d.Version != "2.7.4" {
		t.Fatalf("version = %q", d.Version)
	}

	if _, err := src.OpenDataset(ctx, "9.9.9"); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("unknown version error = %v", err)
	}
}
