package planner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"craftplan/internal/bonus"
	"craftplan/internal/dataset"
	"craftplan/internal/index"
	"craftplan/internal/index/graphstore"
	"craftplan/internal/index/scan"
)

// Config selects the dataset source, index backend, and ambient pieces of a
// service. The zero value is a local scan-backed service rooted at the
// current directory.
type Config struct {
	DataSource       string // local (default) or s3
	DataDir          string // local source root, one directory per version
	Version          string // dataset version; for s3, empty means newest
	IndexBackend     string // scan (default) or graph
	GraphDriver      string // sqlite (default) or postgres
	SQLitePath       string
	PostgresDSN      string
	MachineIndexJSON string // bonus document path; dataset columnar file wins
	Metrics          string // none (default), expvar, or prometheus
}

// ConfigFromEnv reads the CRAFTPLAN_* process environment.
func ConfigFromEnv() Config {
	return Config{
		DataSource:       os.Getenv("CRAFTPLAN_DATA_SOURCE"),
		DataDir:          os.Getenv("CRAFTPLAN_DATA_DIR"),
		Version:          os.Getenv("CRAFTPLAN_DEFAULT_VERSION"),
		IndexBackend:     os.Getenv("CRAFTPLAN_INDEX_BACKEND"),
		GraphDriver:      os.Getenv("CRAFTPLAN_GRAPH_DRIVER"),
		SQLitePath:       os.Getenv("CRAFTPLAN_SQLITE_PATH"),
		PostgresDSN:      os.Getenv("CRAFTPLAN_POSTGRES_DSN"),
		MachineIndexJSON: os.Getenv("CRAFTPLAN_MACHINE_INDEX_JSON"),
		Metrics:          os.Getenv("CRAFTPLAN_METRICS"),
	}
}

// NewBackend constructs the named index backend over an open dataset.
// Unrecognized names fail with ErrUnknownBackend; a misconfigured index must
// stop startup, not degrade silently.
func NewBackend(name string, ds *dataset.Dataset, graphCfg graphstore.Config) (index.Backend, error) {
	switch name {
	case "", "scan":
		return scan.New(ds), nil
	case "graph":
		return graphstore.Open(graphCfg, ds)
	default:
		return nil, fmt.Errorf("%w: %s", index.ErrUnknownBackend, name)
	}
}

// Open builds a service from config: resolve the source, open the dataset
// version, construct the backend, and load the bonus index.
func Open(ctx context.Context, cfg Config) (*Service, error) {
	var source dataset.Source
	version := cfg.Version
	switch cfg.DataSource {
	case "", "local":
		dir := cfg.DataDir
		if dir == "" {
			dir = "."
		}
		if version == "" {
			return nil, fmt.Errorf("dataset version required for local source")
		}
		source = dataset.NewLocalSource(filepath.Join(dir, version), version)
	case "s3":
		s3src, err := dataset.OpenS3SourceFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		source = s3src
		if version == "" {
			versions, err := s3src.ListVersions(ctx)
			if err != nil {
				return nil, err
			}
			if len(versions) == 0 {
				return nil, fmt.Errorf("s3 source has no dataset versions")
			}
			version = versions[len(versions)-1]
		}
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}

	ds, err := source.OpenDataset(ctx, version)
	if err != nil {
		return nil, err
	}

	backend, err := NewBackend(cfg.IndexBackend, ds, graphstore.Config{
		Driver: graphstore.Driver(cfg.GraphDriver),
		Path:   cfg.SQLitePath,
		DSN:    cfg.PostgresDSN,
	})
	if err != nil {
		return nil, err
	}

	bonuses, err := bonus.Load(ds.MachineIndexPath(), cfg.MachineIndexJSON)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	metrics, err := newMetrics(cfg.Metrics)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return New(source, ds, backend, bonuses, metrics), nil
}

// OpenFromEnv builds a service from the process environment.
func OpenFromEnv(ctx context.Context) (*Service, error) {
	return Open(ctx, ConfigFromEnv())
}

func newMetrics(name string) (MetricsRecorder, error) {
	switch name {
	case "", "none":
		return NoopMetricsRecorder{}, nil
	case "expvar":
		return NewExpvarMetricsRecorder(), nil
	case "prometheus":
		return NewPrometheusMetricsRecorder(prometheus.DefaultRegisterer)
	default:
		return nil, fmt.Errorf("unknown metrics recorder %q", name)
	}
}
