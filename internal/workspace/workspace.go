// Package workspace owns the client's application state and exposes the
// user-level flows: sign in, analyze, submit, review, browse and export.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/godilite/aiticket/internal/analysis"
	"github.com/godilite/aiticket/internal/api"
	"github.com/godilite/aiticket/internal/api/models"
	"github.com/godilite/aiticket/internal/review"
	"github.com/godilite/aiticket/internal/session"
	"github.com/godilite/aiticket/internal/stats"
	"github.com/godilite/aiticket/internal/tickets"
	"github.com/godilite/aiticket/internal/view"
	"github.com/godilite/aiticket/pkg/tokenstore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrForbidden = errors.New("administrator access required")

// Backend is everything the workspace needs from the API client.
type Backend interface {
	session.Backend
	analysis.Classifier
	tickets.Backend
	Ping(ctx context.Context) error
	ListUsers(ctx context.Context, token string) ([]models.User, error)
}

// Workspace wires the session, ticket repository, analysis pipeline and
// review machine together. Destroying the session resets all of them.
type Workspace struct {
	backend Backend
	logger  *zap.Logger

	session  *session.Manager
	pipeline *analysis.Pipeline
	tickets  *tickets.Repository
	review   *review.Machine

	submitMu sync.Mutex
	online   atomic.Bool
}

func New(backend Backend, store tokenstore.Store, logger *zap.Logger) *Workspace {
	if backend == nil {
		panic("backend must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sess := session.NewManager(backend, store, logger)
	repo := tickets.NewRepository(backend, sess, logger)
	w := &Workspace{
		backend:  backend,
		logger:   logger.Named("workspace"),
		session:  sess,
		pipeline: analysis.NewPipeline(backend, sess, logger),
		tickets:  repo,
		review:   review.NewMachine(repo, logger),
	}

	sess.OnReset(w.tickets.Reset)
	sess.OnReset(w.pipeline.Discard)
	sess.OnReset(w.review.Dismiss)
	return w
}

// Start probes the backend and restores a previous session concurrently.
// A restored session is followed by a ticket refresh. A refresh rejected
// with 401 leaves the workspace signed out, the same as a failed restore.
func (w *Workspace) Start(ctx context.Context) (session.Session, bool, error) {
	var (
		g        errgroup.Group
		restored session.Session
		ok       bool
	)

	g.Go(func() error {
		w.Probe(ctx)
		return nil
	})
	g.Go(func() error {
		var err error
		restored, ok, err = w.session.Restore(ctx)
		if err != nil || !ok {
			return err
		}
		if _, err := w.tickets.Refresh(ctx); err != nil {
			if errors.Is(err, session.ErrSessionInvalidated) {
				ok = false
				return nil
			}
			w.logger.Warn("initial refresh failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return session.Session{}, false, err
	}
	if !ok {
		return session.Session{}, false, nil
	}
	return restored, true, nil
}

// Session returns the active session, if any.
func (w *Workspace) Session() (session.Session, bool) {
	return w.session.Current()
}

func (w *Workspace) Login(ctx context.Context, email, password string) (session.Session, error) {
	s, err := w.session.Login(ctx, email, password)
	if err != nil {
		return session.Session{}, err
	}
	w.refreshAfterSignIn(ctx)
	return s, nil
}

func (w *Workspace) Register(ctx context.Context, fullName, email, password string) (session.Session, error) {
	s, err := w.session.Register(ctx, fullName, email, password)
	if err != nil {
		return session.Session{}, err
	}
	w.refreshAfterSignIn(ctx)
	return s, nil
}

func (w *Workspace) refreshAfterSignIn(ctx context.Context) {
	if _, err := w.tickets.Refresh(ctx); err != nil {
		w.logger.Warn("refresh after sign-in failed", zap.Error(err))
	}
}

// Logout destroys the session and every piece of state derived from it.
func (w *Workspace) Logout(ctx context.Context) error {
	return w.session.Logout(ctx)
}

func (w *Workspace) Analyze(ctx context.Context, text string) (analysis.Pending, error) {
	return w.pipeline.Analyze(ctx, text)
}

func (w *Workspace) PendingAnalysis() (analysis.Pending, bool) {
	return w.pipeline.Pending()
}

func (w *Workspace) DiscardAnalysis() {
	w.pipeline.Discard()
}

// Submit turns the pending analysis into a ticket and opens a review for
// it. With nothing pending it does nothing and reports false. If the
// session changes while the ticket is being created, the new session's
// analysis and review state are left alone.
func (w *Workspace) Submit(ctx context.Context) (models.Ticket, bool, error) {
	w.submitMu.Lock()
	defer w.submitMu.Unlock()

	pending, ok := w.pipeline.Pending()
	if !ok {
		return models.Ticket{}, false, nil
	}

	epoch := w.session.Epoch()
	created, err := w.tickets.Create(ctx, &pending)
	if err != nil {
		return models.Ticket{}, false, err
	}

	// The session that submitted is gone; its successor's pending analysis
	// and review belong to someone else.
	if w.session.Epoch() != epoch {
		w.logger.Info("session changed during submit, not opening review", zap.Int64("ticket_id", created.ID))
		return *created, true, nil
	}

	w.pipeline.Discard()
	w.review.Open(created.ID)
	return *created, true, nil
}

// Rate submits the rating for the ticket awaiting review.
func (w *Workspace) Rate(ctx context.Context, rating int) error {
	return w.review.Submit(ctx, rating)
}

// ReopenReview asks for a (new) rating of an existing ticket.
func (w *Workspace) ReopenReview(ticketID int64) {
	w.review.Open(ticketID)
}

func (w *Workspace) DismissReview() {
	w.review.Dismiss()
}

func (w *Workspace) PendingReview() (int64, bool) {
	return w.review.State()
}

func (w *Workspace) Refresh(ctx context.Context) ([]models.Ticket, error) {
	return w.tickets.Refresh(ctx)
}

// Tickets returns the current collection, newest first as served.
func (w *Workspace) Tickets() []models.Ticket {
	return w.tickets.Snapshot()
}

func (w *Workspace) Stats() stats.Summary {
	return stats.Compute(w.tickets.Snapshot())
}

func (w *Workspace) History(c view.Criteria) []models.Ticket {
	return view.Filter(w.tickets.Snapshot(), c)
}

// Export writes the whole collection as CSV.
func (w *Workspace) Export(out io.Writer) error {
	return view.WriteCSV(out, w.tickets.Snapshot())
}

// AdminUsers lists every account. Non-admins are refused locally.
func (w *Workspace) AdminUsers(ctx context.Context) ([]models.User, error) {
	current, ok := w.session.Current()
	if !ok {
		return nil, session.ErrNotAuthenticated
	}
	if !current.User.IsAdmin {
		return nil, ErrForbidden
	}

	var users []models.User
	_, err := w.session.Call(ctx, func(ctx context.Context, token string) error {
		var err error
		users, err = w.backend.ListUsers(ctx, token)
		return err
	})
	if err != nil {
		if api.StatusCode(err) == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
		}
		return nil, err
	}
	return users, nil
}

// Probe checks backend liveness. Failures only flip the online flag.
func (w *Workspace) Probe(ctx context.Context) bool {
	err := w.backend.Ping(ctx)
	online := err == nil
	if prev := w.online.Swap(online); prev != online {
		w.logger.Info("backend status changed", zap.Bool("online", online))
	}
	if err != nil {
		w.logger.Debug("liveness probe failed", zap.Error(err))
	}
	return online
}

// Online reports the result of the last probe.
func (w *Workspace) Online() bool {
	return w.online.Load()
}
