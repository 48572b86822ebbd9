package mocks

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/godilite/aiticket/internal/api/models"
)

// MockBackend is a mock implementation of the tickets Backend interface.
type MockBackend struct {
	ListTicketsFunc  func(ctx context.Context, token string) ([]models.Ticket, error)
	CreateTicketFunc func(ctx context.Context, token string, req models.CreateTicketRequest) (models.Ticket, error)
	ReviewTicketFunc func(ctx context.Context, token string, ticketID int64, rating int) error

	ListCalls   atomic.Int32
	CreateCalls atomic.Int32
	ReviewCalls atomic.Int32
}

// ListTickets implements the Backend interface
func (m *MockBackend) ListTickets(ctx context.Context, token string) ([]models.Ticket, error) {
	m.ListCalls.Add(1)
	if m.ListTicketsFunc != nil {
		return m.ListTicketsFunc(ctx, token)
	}
	return nil, errors.New("ListTicketsFunc not implemented")
}

// CreateTicket implements the Backend interface
func (m *MockBackend) CreateTicket(ctx context.Context, token string, req models.CreateTicketRequest) (models.Ticket, error) {
	m.CreateCalls.Add(1)
	if m.CreateTicketFunc != nil {
		return m.CreateTicketFunc(ctx, token, req)
	}
	return models.Ticket{}, errors.New("CreateTicketFunc not implemented")
}

// ReviewTicket implements the Backend interface
func (m *MockBackend) ReviewTicket(ctx context.Context, token string, ticketID int64, rating int) error {
	m.ReviewCalls.Add(1)
	if m.ReviewTicketFunc != nil {
		return m.ReviewTicketFunc(ctx, token, ticketID, rating)
	}
	return errors.New("ReviewTicketFunc not implemented")
}
