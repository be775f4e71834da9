package families

import (
	"context"
	"time"

	"github.com/autostack-ml/autostack/core/dataset"
	"github.com/autostack-ml/autostack/pkg/errors"
	"github.com/autostack-ml/autostack/portfolio"
)

// gpuLinearFamily is the ridge/logistic family flagged GPU-only so its
// candidates are scheduled one per device and excluded from the portfolio
// entirely when no GPU is detected. The numerical path is shared with the
// CPU family.
type gpuLinearFamily struct {
	linearFamily
}

func (f *gpuLinearFamily) Name() string { return "gpu_linear" }

func (f *gpuLinearFamily) Capabilities() portfolio.Capabilities {
	return portfolio.Capabilities{
		Problems: []dataset.ProblemType{dataset.Binary, dataset.Multiclass, dataset.Regression},
		GPUOnly:  true,
	}
}

// foundationFamily is a foundation-model-backed tabular family: it needs
// a pretrained weight artifact resolved through the external weights
// provider before it can fit. With the artifact in hand it trains a
// linear probe on top of the (frozen) representation; unavailability of
// the artifact is a candidate-local failure.
type foundationFamily struct {
	weights portfolio.WeightsProvider
}

func (f *foundationFamily) Name() string { return "tab_foundation" }

func (f *foundationFamily) Capabilities() portfolio.Capabilities {
	return portfolio.Capabilities{
		Problems:               []dataset.ProblemType{dataset.Binary, dataset.Multiclass, dataset.Regression},
		NeedsPretrainedWeights: true,
	}
}

func (f *foundationFamily) Estimate(rows, features int, _ portfolio.Hyperparams) portfolio.ResourceEstimate {
	return portfolio.ResourceEstimate{
		Time:     time.Duration(float64(rows*features)/1e7*float64(time.Second)) + 100*time.Millisecond,
		MemoryMB: 256,
	}
}

func (f *foundationFamily) Fit(ctx context.Context, data *portfolio.TrainData, params portfolio.Hyperparams) (portfolio.Model, error) {
	if f.weights == nil {
		return nil, errors.NewMissingWeightsError(f.Name(), params.String("weights_id", "tabfm-base-v1"), "no weights provider configured")
	}
	if _, err := f.weights.Fetch(params.String("weights_id", "tabfm-base-v1")); err != nil {
		return nil, errors.Wrap(err, "tab_foundation: fetching weights")
	}
	probe := linearFamily{name: f.Name()}
	return probe.Fit(ctx, data, params)
}
