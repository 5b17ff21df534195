package analysis

import (
	"context"
	"math/rand/v2"

	"github.com/tidwall/sjson"
)

const (
	DiagnosisDetected    = "Parkinson's detected"
	DiagnosisNotDetected = "No Parkinson's detected"
)

// Placeholder answers locally with a random 0/1 prediction, for running the
// front end without an analysis service.
type Placeholder struct {
	IntN func(n int) int
}

func NewPlaceholder() *Placeholder {
	return &Placeholder{IntN: rand.IntN}
}

func (p *Placeholder) Analyze(ctx context.Context, filename string, needsClassification bool) (Result, error) {
	prediction := p.IntN(2)
	diagnosis := DiagnosisNotDetected
	if prediction == 1 {
		diagnosis = DiagnosisDetected
	}

	raw, err := sjson.SetBytes([]byte(`{"status":"placeholder"}`), "prediction.prediction", prediction)
	if err != nil {
		return Result{}, err
	}
	raw, err = sjson.SetBytes(raw, "prediction.diagnosis", diagnosis)
	if err != nil {
		return Result{}, err
	}
	return Parse(raw)
}
