package dataset

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownVersion marks requests for a version the source does not carry.
// Callers surface it as a not-found condition, not a failure.
var ErrUnknownVersion = errors.New("unknown dataset version")

// Source resolves dataset versions to open datasets.
type Source interface {
	ListVersions(ctx context.Context) ([]string, error)
	OpenDataset(ctx context.Context, version string) (*Dataset, error)
}

// LocalSource serves a single dataset version from a local directory.
type LocalSource struct {
	Dir            string
	DefaultVersion string
}

// NewLocalSource constructs a local single-version source.
func NewLocalSource(dir, defaultVersion string) *LocalSource {
	return &LocalSource{Dir: dir, DefaultVersion: defaultVersion}
}

// ListVersions returns the single local version.
func (s *LocalSource) ListVersions(context.Context) ([]string, error) {
	return []string{s.DefaultVersion}, nil
}

// OpenDataset opens the local version directory.
func (s *LocalSource) OpenDataset(_ context.Context, version string) (*Dataset, error) {
	if version != s.DefaultVersion {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	return Open(s.Dir, version)
}
