package portfolio

import (
	"fmt"
	"sort"

	"github.com/autostack-ml/autostack/core/dataset"
)

// Spec describes the dataset and environment the portfolio is built for.
type Spec struct {
	Problem  dataset.ProblemType
	Rows     int
	Features int
	Classes  int
	Preset   Preset
	GPUs     int
}

// knnRowLimit prunes neighbour-based candidates on large datasets, where
// their quadratic predict cost dwarfs their contribution.
const knnRowLimit = 100000

// entry is one row of the static candidate table. MinPreset is the
// weakest preset that admits the entry.
type entry struct {
	family    string
	suffix    string
	params    Hyperparams
	priority  int
	minPreset Preset
	weightsID string
}

// candidateTable is the prioritized portfolio, best expected marginal
// contribution first (lowest priority number). Hyperparameter variants
// added by stronger presets carry higher priorities so they train after
// the proven configurations.
var candidateTable = []entry{
	{family: "linear", suffix: "", params: Hyperparams{"alpha": 1.0}, priority: 10, minPreset: PresetMedium},
	{family: "tab_foundation", suffix: "base", params: Hyperparams{}, priority: 15, minPreset: PresetHigh, weightsID: "tabfm-base-v1"},
	{family: "knn", suffix: "k5", params: Hyperparams{"k": 5}, priority: 20, minPreset: PresetMedium},
	{family: "gpu_linear", suffix: "", params: Hyperparams{"alpha": 1.0}, priority: 25, minPreset: PresetGood},
	{family: "baseline", suffix: "", params: Hyperparams{}, priority: 30, minPreset: PresetMedium},
	{family: "linear", suffix: "a01", params: Hyperparams{"alpha": 0.1}, priority: 40, minPreset: PresetGood},
	{family: "knn", suffix: "k15", params: Hyperparams{"k": 15}, priority: 50, minPreset: PresetGood},
	{family: "linear", suffix: "a10", params: Hyperparams{"alpha": 10.0}, priority: 60, minPreset: PresetHigh},
	{family: "knn", suffix: "k30", params: Hyperparams{"k": 30}, priority: 70, minPreset: PresetBest},
	{family: "linear", suffix: "a001", params: Hyperparams{"alpha": 0.01}, priority: 80, minPreset: PresetExtreme},
	{family: "knn", suffix: "k1", params: Hyperparams{"k": 1}, priority: 90, minPreset: PresetExtreme},
}

// Build assembles the ordered candidate list for one fit, highest
// expected value first, pruned by dataset characteristics and hardware.
// The returned notes explain whole-group exclusions (GPU gating, preset
// fallback) so they are reported once instead of per candidate.
func Build(reg *Registry, spec Spec) ([]Candidate, []string) {
	var notes []string

	preset := spec.Preset
	if preset == PresetExtreme && spec.Rows > ExtremeRowCutoff {
		// Hard policy boundary, not a heuristic.
		preset = PresetBest
		notes = append(notes, fmt.Sprintf(
			"preset %s requires at most %d rows (got %d); falling back to %s",
			PresetExtreme, ExtremeRowCutoff, spec.Rows, PresetBest))
	}

	gpuExcluded := false
	var cands []Candidate
	for _, e := range candidateTable {
		if e.minPreset.Rank() > preset.Rank() {
			continue
		}
		fam, err := reg.Get(e.family)
		if err != nil {
			continue
		}
		caps := fam.Capabilities()
		if !caps.Supports(spec.Problem) {
			continue
		}
		if caps.GPUOnly && spec.GPUs == 0 {
			gpuExcluded = true
			continue
		}
		if e.family == "knn" && spec.Rows > knnRowLimit {
			continue
		}

		name := e.family
		if e.suffix != "" {
			name = e.family + "_" + e.suffix
		}
		cands = append(cands, Candidate{
			Name:                      name,
			Family:                    e.family,
			Params:                    e.params,
			Estimate:                  fam.Estimate(spec.Rows, spec.Features, e.params),
			Priority:                  e.priority,
			RequiresGPU:               caps.GPUOnly,
			RequiresPretrainedWeights: caps.NeedsPretrainedWeights,
			WeightsID:                 e.weightsID,
		})
	}

	if gpuExcluded {
		notes = append(notes, "GPU-only candidates excluded: no GPU detected")
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Priority < cands[j].Priority
	})
	return cands, notes
}
