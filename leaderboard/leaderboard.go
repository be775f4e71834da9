// Package leaderboard records every fitted candidate in an append-only
// log and acts as the model registry for inference-time routing. Entries
// are never mutated, only appended and read; ranking direction comes from
// the metric, never from the score values.
package leaderboard

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/autostack-ml/autostack/metrics"
	"github.com/autostack-ml/autostack/pkg/errors"
	"github.com/autostack-ml/autostack/portfolio"
)

// FittedModel owns a trained artifact, its source candidate, its stack
// layer and its out-of-fold prediction matrix (one row per training row).
// Never mutated after creation; retraining produces a new FittedModel.
type FittedModel struct {
	ID        string
	Candidate portfolio.Candidate
	Layer     int

	// OOF holds out-of-fold predictions for every training row.
	OOF *mat.Dense

	// FoldModels are the K per-fold artifacts. When Refit is true,
	// Artifact is a single model refit on the full training set and is
	// used for inference instead of averaging the fold models.
	FoldModels []portfolio.Model
	Artifact   portfolio.Model
	Refit      bool

	// StoreRef is the persistence reference handed back by the artifact
	// store, when the caller persisted this model.
	StoreRef string
}

// PredictAvg runs inference with the artifact the model carries: the
// refit artifact when present, otherwise the average of the fold models
// (bagging without refit).
func (fm *FittedModel) PredictAvg(X mat.Matrix) (*mat.Dense, error) {
	if fm.Refit && fm.Artifact != nil {
		return fm.Artifact.Predict(X)
	}
	if len(fm.FoldModels) == 0 {
		return nil, errors.NewNotFittedError(fm.Candidate.Name, "Predict")
	}
	var sum *mat.Dense
	for _, m := range fm.FoldModels {
		p, err := m.Predict(X)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			sum = p
		} else {
			sum.Add(sum, p)
		}
	}
	sum.Scale(1/float64(len(fm.FoldModels)), sum)
	return sum, nil
}

// Entry is one append-only leaderboard record.
type Entry struct {
	ModelID     string
	Name        string
	Family      string
	Layer       int
	Score       float64
	FitTime     time.Duration
	PredictTime time.Duration
	MemoryMB    int

	// Seq is the insertion order, the deterministic tie-breaker for
	// ensemble selection.
	Seq int
}

// Board is the leaderboard plus model registry for one fit. The stack
// builder is its sole writer; reads are safe concurrently.
type Board struct {
	mu      sync.RWMutex
	metric  metrics.Metric
	entries []Entry
	models  map[string]*FittedModel

	// layers is the arena-style layer DAG: layer index to the model ids
	// fitted in that layer, in insertion order.
	layers [][]string
}

// NewBoard creates an empty board ranked by the given metric.
func NewBoard(metric metrics.Metric) *Board {
	return &Board{
		metric: metric,
		models: make(map[string]*FittedModel),
	}
}

// Metric returns the ranking metric.
func (b *Board) Metric() metrics.Metric {
	return b.metric
}

// Append records a fitted model and its entry. The entry's Seq is
// assigned here.
func (b *Board) Append(fm *FittedModel, e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.ModelID = fm.ID
	e.Seq = len(b.entries)
	b.entries = append(b.entries, e)
	b.models[fm.ID] = fm
	for len(b.layers) <= fm.Layer {
		b.layers = append(b.layers, nil)
	}
	b.layers[fm.Layer] = append(b.layers[fm.Layer], fm.ID)
}

// Len returns the number of entries.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Entries returns a copy of the append-only log in insertion order.
func (b *Board) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Entry(nil), b.entries...)
}

// Rank returns entries ordered best first under the board's metric.
// Ties keep insertion order.
func (b *Board) Rank() []Entry {
	ranked := b.Entries()
	sort.SliceStable(ranked, func(i, j int) bool {
		return b.metric.Better(ranked[i].Score, ranked[j].Score)
	})
	return ranked
}

// EntryFor returns the entry recorded for a model id.
func (b *Board) EntryFor(id string) (Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.entries {
		if e.ModelID == id {
			return e, nil
		}
	}
	return Entry{}, errors.Newf("leaderboard: no entry for model id %q", id)
}

// Model looks up a fitted model by id.
func (b *Board) Model(id string) (*FittedModel, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fm, ok := b.models[id]
	if !ok {
		return nil, errors.Newf("leaderboard: unknown model id %q", id)
	}
	return fm, nil
}

// NumLayers returns the number of stack layers with at least one model.
func (b *Board) NumLayers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.layers)
}

// LayerModels returns the model ids of one layer in insertion order.
func (b *Board) LayerModels(layer int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if layer < 0 || layer >= len(b.layers) {
		return nil
	}
	return append([]string(nil), b.layers[layer]...)
}

// BestScore returns the best score among entries of the given layer and
// whether the layer has any entry.
func (b *Board) BestScore(layer int) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	best := b.metric.Worst()
	found := false
	for _, e := range b.entries {
		if e.Layer != layer {
			continue
		}
		if !found || b.metric.Better(e.Score, best) {
			best = e.Score
			found = true
		}
	}
	return best, found
}

// ResolveSupport expands an ensemble support set into the full set of
// models required at inference time. A layer-L model consumes the
// out-of-fold prediction columns of every layer-L-1 model as input
// features, so the closure walks the layer DAG transitively: all models
// of every layer below the deepest supported layer are included. The
// result is ordered layer by layer in insertion order.
func (b *Board) ResolveSupport(ids []string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	maxLayer := -1
	support := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fm, ok := b.models[id]
		if !ok {
			return nil, errors.Newf("leaderboard: unknown model id %q", id)
		}
		support[id] = struct{}{}
		if fm.Layer > maxLayer {
			maxLayer = fm.Layer
		}
	}
	if maxLayer < 0 {
		return nil, nil
	}

	var resolved []string
	for layer := 0; layer < maxLayer; layer++ {
		resolved = append(resolved, b.layers[layer]...)
	}
	for _, id := range b.layers[maxLayer] {
		if _, ok := support[id]; ok {
			resolved = append(resolved, id)
		}
	}
	return resolved, nil
}
