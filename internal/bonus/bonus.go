// Package bonus resolves per-machine tuning bonuses from an external index.
// Two source formats exist: a columnar file shipped alongside the dataset and
// a structured JSON document; the columnar file takes precedence when both
// are configured. A machine can carry several bonus records (different coil
// or upgrade setups); the index keeps the one maximizing throughput.
package bonus

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"craftplan/internal/tuning"
)

// record is one raw bonus source before normalization.
type record struct {
	MachineID       string  `json:"machineId"`
	ParallelBonus   float64 `json:"parallelBonus"`
	MaxParallel     float64 `json:"maxParallel"`
	SpeedBonus      float64 `json:"speedBonus"`
	EfficiencyBonus float64 `json:"efficiencyBonus"`
	CoilBonus       float64 `json:"coilBonus"`
}

// document is the JSON index shape.
type document struct {
	MachineIndex []record `json:"machineIndex"`
}

// Index maps machine ids to their selected bonus.
type Index struct {
	best map[string]tuning.MachineBonus
}

// Empty returns an index with no bonuses; every lookup misses.
func Empty() *Index {
	return &Index{best: map[string]tuning.MachineBonus{}}
}

// For returns the machine's selected bonus, or a zero bonus and false when
// the machine carries none.
func (ix *Index) For(machineID string) (tuning.MachineBonus, bool) {
	b, ok := ix.best[machineID]
	return b, ok
}

// Len reports how many machines carry a bonus.
func (ix *Index) Len() int { return len(ix.best) }

// normalize folds a raw record into the multiplier set the tuning math
// consumes. The coil bonus is a further speed multiplier; efficiency values
// above 5 are percentages in the source data and are scaled down.
func normalize(r record) tuning.MachineBonus {
	speed := r.SpeedBonus
	if speed <= 0 {
		speed = 1.0
	}
	if r.CoilBonus > 0 {
		speed *= r.CoilBonus
	}
	efficiency := r.EfficiencyBonus
	if efficiency > 5 {
		efficiency /= 100
	}
	if efficiency <= 0 {
		efficiency = 1.0
	}
	parallel := r.ParallelBonus
	if parallel <= 0 {
		parallel = 1.0
	}
	maxParallel := r.MaxParallel
	if maxParallel < 0 {
		maxParallel = 0
	}
	return tuning.MachineBonus{
		SpeedBonus:      speed,
		EfficiencyBonus: efficiency,
		ParallelBonus:   parallel,
		MaxParallel:     maxParallel,
	}
}

// score ranks a bonus by speed times effective parallel headroom.
func score(b tuning.MachineBonus) float64 {
	parallel := b.ParallelBonus
	if b.MaxParallel > 0 {
		parallel = math.Min(parallel, b.MaxParallel)
	}
	return b.SpeedBonus * parallel
}

// build selects, per machine, the record maximizing score; ties go to the
// lower efficiency multiplier so throughput-equal bonuses do not also cut
// energy cost.
func build(records []record) *Index {
	ix := Empty()
	for _, r := range records {
		if r.MachineID == "" {
			continue
		}
		candidate := normalize(r)
		current, ok := ix.best[r.MachineID]
		if !ok {
			ix.best[r.MachineID] = candidate
			continue
		}
		cs, bs := score(candidate), score(current)
		if cs > bs || (cs == bs && candidate.EfficiencyBonus < current.EfficiencyBonus) {
			ix.best[r.MachineID] = candidate
		}
	}
	return ix
}

// FromJSON parses the structured bonus document.
func FromJSON(r io.Reader) (*Index, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse bonus document: %w", err)
	}
	return build(doc.MachineIndex), nil
}

// FromJSONFile parses the structured bonus document at path.
func FromJSONFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bonus document: %w", err)
	}
	defer func() { _ = f.Close() }()
	return FromJSON(f)
}

// FromCSV reads the columnar bonus index. Only machine_id is required;
// absent multiplier columns default to no-op values.
func FromCSV(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bonus index: %w", err)
	}
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read bonus index header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	if _, ok := cols["machine_id"]; !ok {
		return nil, fmt.Errorf("bonus index missing machine_id column")
	}
	field := func(rec []string, name string) float64 {
		idx, ok := cols[name]
		if !ok || idx >= len(rec) || rec[idx] == "" {
			return 0
		}
		v, err := strconv.ParseFloat(rec[idx], 64)
		if err != nil {
			return 0
		}
		return v
	}
	var records []record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bonus index: %w", err)
		}
		records = append(records, record{
			MachineID:       rec[cols["machine_id"]],
			ParallelBonus:   field(rec, "parallel_bonus"),
			MaxParallel:     field(rec, "max_parallel"),
			SpeedBonus:      field(rec, "speed_bonus"),
			EfficiencyBonus: field(rec, "efficiency_bonus"),
			CoilBonus:       field(rec, "coil_bonus"),
		})
	}
	return build(records), nil
}

// Load resolves the index with columnar precedence: csvPath when non-empty,
// else jsonPath, else an empty index.
func Load(csvPath, jsonPath string) (*Index, error) {
	if csvPath != "" {
		return FromCSV(csvPath)
	}
	if jsonPath != "" {
		return FromJSONFile(jsonPath)
	}
	return Empty(), nil
}
