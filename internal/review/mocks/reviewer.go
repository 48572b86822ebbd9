package mocks

import (
	"context"
	"errors"
)

// MockReviewer is a mock implementation of the Reviewer interface.
type MockReviewer struct {
	ApplyReviewFunc func(ctx context.Context, ticketID int64, rating int) error
	Calls           int
}

// ApplyReview implements the Reviewer interface
func (m *MockReviewer) ApplyReview(ctx context.Context, ticketID int64, rating int) error {
	m.Calls++
	if m.ApplyReviewFunc != nil {
		return m.ApplyReviewFunc(ctx, ticketID, rating)
	}
	return errors.New("ApplyReviewFunc not implemented")
}
