package mocks

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/godilite/aiticket/internal/api/models"
)

// MockClassifier is a mock implementation of the Classifier interface.
type MockClassifier struct {
	PredictFunc func(ctx context.Context, token, text string) (models.Prediction, error)

	calls atomic.Int32
}

// Predict implements the Classifier interface
func (m *MockClassifier) Predict(ctx context.Context, token, text string) (models.Prediction, error) {
	m.calls.Add(1)
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, token, text)
	}
	return models.Prediction{}, errors.New("PredictFunc not implemented")
}

// Calls returns how many times Predict was invoked.
func (m *MockClassifier) Calls() int {
	return int(m.calls.Load())
}
