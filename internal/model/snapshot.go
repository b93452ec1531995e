package model

import (
	"fmt"
	"time"

	"rwa-portfolio-lab/internal/domain"
)

// Snapshot is an immutable fitted model state together with the records it
// was trained on. Readers never observe a partially trained snapshot.
type Snapshot struct {
	ID        string
	TrainedAt time.Time

	scaler  *Scaler
	models  map[string]*Forest
	records []*domain.AssetRecord
	index   map[string]int
}

// Records returns copies of the training records with predictions attached.
func (s *Snapshot) Records() []*domain.AssetRecord {
	out := make([]*domain.AssetRecord, len(s.records))
	for i, r := range s.records {
		c := *r
		out[i] = &c
	}
	return out
}

// Record returns a copy of the record for symbol.
func (s *Snapshot) Record(symbol string) (*domain.AssetRecord, bool) {
	i, ok := s.index[symbol]
	if !ok {
		return nil, false
	}
	c := *s.records[i]
	return &c, true
}

// Symbols returns the known symbols in training order.
func (s *Snapshot) Symbols() []string {
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Symbol
	}
	return out
}

// Predictions returns the stored predictions for symbols, in the given
// order. Unknown symbols are skipped. With no symbols, every record is returned.
func (s *Snapshot) Predictions(symbols []string) []domain.Prediction {
	if len(symbols) == 0 {
		out := make([]domain.Prediction, len(s.records))
		for i, r := range s.records {
			out[i] = r.Prediction()
		}
		return out
	}

	out := make([]domain.Prediction, 0, len(symbols))
	for _, sym := range symbols {
		if i, ok := s.index[sym]; ok {
			out = append(out, s.records[i].Prediction())
		}
	}
	return out
}

// Predict evaluates the three models on a raw feature vector in
// domain.FeatureNames order. The fitted scaler is reapplied, never refit.
func (s *Snapshot) Predict(features []float64) (domain.Prediction, error) {
	if len(features) != len(domain.FeatureNames) {
		return domain.Prediction{}, fmt.Errorf("predict: expected %d features, got %d", len(domain.FeatureNames), len(features))
	}
	return s.predictScaled(s.scaler.Transform(features))
}

func (s *Snapshot) predictScaled(row []float64) (domain.Prediction, error) {
	var p domain.Prediction
	var err error
	if p.PredReturn, err = s.models[TargetReturn].Predict(row); err != nil {
		return p, fmt.Errorf("return model: %w", err)
	}
	if p.PredLiquidity, err = s.models[TargetLiquidity].Predict(row); err != nil {
		return p, fmt.Errorf("liquidity model: %w", err)
	}
	if p.PredRisk, err = s.models[TargetRisk].Predict(row); err != nil {
		return p, fmt.Errorf("risk model: %w", err)
	}
	return p, nil
}
