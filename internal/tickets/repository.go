package tickets

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/godilite/aiticket/internal/analysis"
	"github.com/godilite/aiticket/internal/api/models"
	"github.com/godilite/aiticket/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "tickets:refresh"

type Backend interface {
	ListTickets(ctx context.Context, token string) ([]models.Ticket, error)
	CreateTicket(ctx context.Context, token string, req models.CreateTicketRequest) (models.Ticket, error)
	ReviewTicket(ctx context.Context, token string, ticketID int64, rating int) error
}

type Authenticator interface {
	Call(ctx context.Context, fn func(ctx context.Context, token string) error) (uint64, error)
	Epoch() uint64
}

// Repository is the client's authoritative mirror of the server's tickets.
// Its collection only changes by replacing it with a complete server
// response; it is never patched locally.
type Repository struct {
	backend Backend
	auth    Authenticator
	logger  *zap.Logger

	group  singleflight.Group
	issued atomic.Uint64

	mu      sync.RWMutex
	tickets []models.Ticket
	applied uint64
}

func NewRepository(backend Backend, auth Authenticator, logger *zap.Logger) *Repository {
	if backend == nil {
		panic("backend must not be nil")
	}
	if auth == nil {
		panic("authenticator must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		backend: backend,
		auth:    auth,
		logger:  logger.Named("tickets"),
		tickets: []models.Ticket{},
	}
}

// Refresh fetches the full collection and replaces the local one. Calls
// that overlap an in-flight refresh share its result. On failure the
// previous collection is kept.
//
// The shared request is detached from any single caller's cancellation: a
// caller whose ctx ends gets ctx.Err() while the others keep waiting.
func (r *Repository) Refresh(ctx context.Context) ([]models.Ticket, error) {
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		return r.fetch(detached)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.Debug("refresh shared with in-flight request")
		}
		return cloneAll(res.Val.([]models.Ticket)), nil
	}
}

// fresh refreshes without joining a request issued before the caller's mutation.
func (r *Repository) fresh(ctx context.Context) ([]models.Ticket, error) {
	r.group.Forget(refreshKey)
	return r.Refresh(ctx)
}

func (r *Repository) fetch(ctx context.Context) ([]models.Ticket, error) {
	seq := r.issued.Add(1)

	var list []models.Ticket
	epoch, err := r.auth.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		list, err = r.backend.ListTickets(ctx, token)
		return err
	})
	if err != nil {
		if isSessionError(err) {
			return nil, err
		}
		r.logger.Warn("refresh failed, keeping previous tickets", zap.Error(err))
		return nil, wrapError("refresh tickets", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.auth.Epoch() != epoch {
		r.logger.Debug("dropping refresh for a previous session", zap.Uint64("seq", seq))
		return cloneAll(r.tickets), nil
	}
	if seq <= r.applied {
		r.logger.Debug("dropping superseded refresh", zap.Uint64("seq", seq), zap.Uint64("applied", r.applied))
		return cloneAll(r.tickets), nil
	}

	r.tickets = cloneAll(list)
	r.applied = seq
	r.logger.Debug("tickets refreshed", zap.Int("count", len(list)), zap.Uint64("seq", seq))
	return cloneAll(list), nil
}

// Create submits a pending analysis as a new ticket and refreshes. A nil
// pending analysis means there is nothing to submit and returns (nil, nil).
func (r *Repository) Create(ctx context.Context, pending *analysis.Pending) (*models.Ticket, error) {
	if pending == nil {
		return nil, nil
	}

	req := models.CreateTicketRequest{
		Title:             pending.Title,
		Description:       pending.Description,
		Category:          pending.Category,
		Priority:          pending.Priority,
		ExtractedEntities: pending.ExtractedEntities.Clone(),
	}
	if req.ExtractedEntities == nil {
		req.ExtractedEntities = models.Entities{}
	}

	var created models.Ticket
	_, err := r.auth.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		created, err = r.backend.CreateTicket(ctx, token, req)
		return err
	})
	if err != nil {
		if isSessionError(err) {
			return nil, err
		}
		return nil, wrapError("create ticket", err)
	}

	r.logger.Info("ticket created", zap.Int64("ticket_id", created.ID), zap.String("category", created.Category))

	if _, err := r.fresh(ctx); err != nil {
		r.logger.Warn("refresh after create failed", zap.Int64("ticket_id", created.ID), zap.Error(err))
	}

	out := created.Clone()
	return &out, nil
}

// ApplyReview posts a rating and refreshes so the rating shown is the
// server's, not a local patch.
func (r *Repository) ApplyReview(ctx context.Context, ticketID int64, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	_, err := r.auth.Call(ctx, func(ctx context.Context, token string) error {
		return r.backend.ReviewTicket(ctx, token, ticketID, rating)
	})
	if err != nil {
		if isSessionError(err) {
			return err
		}
		return wrapError("submit review", err)
	}

	r.logger.Info("review submitted", zap.Int64("ticket_id", ticketID), zap.Int("rating", rating))

	if _, err := r.fresh(ctx); err != nil {
		r.logger.Warn("refresh after review failed", zap.Int64("ticket_id", ticketID), zap.Error(err))
	}
	return nil
}

// Snapshot returns a copy of the current collection.
func (r *Repository) Snapshot() []models.Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.tickets)
}

// Get looks a ticket up in the current collection.
func (r *Repository) Get(id int64) (models.Ticket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tickets {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return models.Ticket{}, false
}

// Reset empties the collection. Refreshes already in flight are discarded.
func (r *Repository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = []models.Ticket{}
	r.applied = r.issued.Load()
}

func isSessionError(err error) bool {
	return errors.Is(err, session.ErrSessionInvalidated) || errors.Is(err, session.ErrNotAuthenticated)
}

func cloneAll(in []models.Ticket) []models.Ticket {
	out := make([]models.Ticket, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
