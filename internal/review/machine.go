// Package review tracks the single post-resolution satisfaction review a
// user may be asked for.
package review

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrNoPendingReview = errors.New("no review is pending")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
)

// Reviewer records a rating against a ticket.
type Reviewer interface {
	ApplyReview(ctx context.Context, ticketID int64, rating int) error
}

// Machine is either idle or awaiting a rating for one ticket.
type Machine struct {
	reviewer Reviewer
	logger   *zap.Logger

	mu       sync.Mutex
	ticketID int64
	awaiting bool
}

func NewMachine(reviewer Reviewer, logger *zap.Logger) *Machine {
	if reviewer == nil {
		panic("reviewer must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{reviewer: reviewer, logger: logger.Named("review")}
}

// Open asks for a rating of ticketID, abandoning any earlier target.
func (m *Machine) Open(ticketID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.awaiting && m.ticketID != ticketID {
		m.logger.Debug("abandoning pending review", zap.Int64("ticket_id", m.ticketID))
	}
	m.ticketID = ticketID
	m.awaiting = true
}

// Submit sends the rating for the pending ticket. Whatever the outcome the
// machine returns to idle; failures are returned, not retried.
func (m *Machine) Submit(ctx context.Context, rating int) error {
	m.mu.Lock()
	if !m.awaiting {
		m.mu.Unlock()
		return ErrNoPendingReview
	}
	if rating < 1 || rating > 5 {
		m.mu.Unlock()
		return ErrInvalidRating
	}
	ticketID := m.ticketID
	m.awaiting = false
	m.ticketID = 0
	m.mu.Unlock()

	if err := m.reviewer.ApplyReview(ctx, ticketID, rating); err != nil {
		m.logger.Warn("review not recorded", zap.Int64("ticket_id", ticketID), zap.Error(err))
		return err
	}
	return nil
}

// Dismiss returns to idle without contacting the backend.
func (m *Machine) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awaiting = false
	m.ticketID = 0
}

// State reports the ticket awaiting a rating, if any.
func (m *Machine) State() (ticketID int64, awaiting bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticketID, m.awaiting
}
