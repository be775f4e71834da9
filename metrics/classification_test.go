package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLogLossBinary(t *testing.T) {
	yTrue := mat.NewVecDense(2, []float64{1, 0})
	proba := mat.NewDense(2, 1, []float64{0.8, 0.3})

	got, err := LogLoss(yTrue, proba)
	if err != nil {
		t.Fatalf("LogLoss() error = %v", err)
	}
	want := -(math.Log(0.8) + math.Log(0.7)) / 2
	if math.Abs(got-want) > 1e-10 {
		t.Errorf("LogLoss() = %v, want %v", got, want)
	}
}

func TestLogLossMulticlass(t *testing.T) {
	yTrue := mat.NewVecDense(2, []float64{0, 2})
	proba := mat.NewDense(2, 3, []float64{
		0.7, 0.2, 0.1,
		0.1, 0.1, 0.8,
	})

	got, err := LogLoss(yTrue, proba)
	if err != nil {
		t.Fatalf("LogLoss() error = %v", err)
	}
	want := -(math.Log(0.7) + math.Log(0.8)) / 2
	if math.Abs(got-want) > 1e-10 {
		t.Errorf("LogLoss() = %v, want %v", got, want)
	}
}

func TestLogLossClipsExtremes(t *testing.T) {
	yTrue := mat.NewVecDense(1, []float64{1})
	proba := mat.NewDense(1, 1, []float64{0})

	got, err := LogLoss(yTrue, proba)
	if err != nil {
		t.Fatalf("LogLoss() error = %v", err)
	}
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("LogLoss() = %v, want finite value", got)
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name  string
		yTrue *mat.VecDense
		proba *mat.Dense
		want  float64
	}{
		{
			name:  "binary single column",
			yTrue: mat.NewVecDense(4, []float64{1, 0, 1, 0}),
			proba: mat.NewDense(4, 1, []float64{0.9, 0.2, 0.4, 0.6}),
			want:  0.5,
		},
		{
			name:  "multiclass argmax",
			yTrue: mat.NewVecDense(2, []float64{2, 1}),
			proba: mat.NewDense(2, 3, []float64{
				0.1, 0.2, 0.7,
				0.5, 0.3, 0.2,
			}),
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(tt.yTrue, tt.proba)
			if err != nil {
				t.Fatalf("Accuracy() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-10 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetricDirection(t *testing.T) {
	loss := LogLossMetric()
	if loss.Better(0.5, 0.4) {
		t.Error("lower-is-better metric preferred the higher value")
	}
	if !loss.Better(0.4, 0.5) {
		t.Error("lower-is-better metric rejected the lower value")
	}
	if loss.Improvement(0.4, 0.5) != 0.1 {
		t.Errorf("Improvement = %v, want 0.1", loss.Improvement(0.4, 0.5))
	}
	if !math.IsInf(loss.Worst(), 1) {
		t.Error("lower-is-better worst sentinel should be +Inf")
	}

	acc := AccuracyMetric()
	if !acc.Better(0.9, 0.8) {
		t.Error("higher-is-better metric rejected the higher value")
	}
	if !math.IsInf(acc.Worst(), -1) {
		t.Error("higher-is-better worst sentinel should be -Inf")
	}
}
