package workspace

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/godilite/aiticket/internal/analysis"
	"github.com/godilite/aiticket/internal/api"
	"github.com/godilite/aiticket/internal/api/apitest"
	"github.com/godilite/aiticket/internal/api/models"
	"github.com/godilite/aiticket/internal/session"
	"github.com/godilite/aiticket/internal/view"
	"github.com/godilite/aiticket/pkg/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	backend *apitest.Backend
	client  *api.Client
	store   tokenstore.Store
	ws      *Workspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := apitest.NewBackend()
	t.Cleanup(backend.Close)

	client, err := api.NewClient(api.ClientConfig{BaseURL: backend.URL()})
	require.NoError(t, err)

	store := tokenstore.NewMemory()
	return &fixture{
		backend: backend,
		client:  client,
		store:   store,
		ws:      New(client, store, zap.NewNop()),
	}
}

// reopen simulates a process restart sharing the same durable store.
func (f *fixture) reopen() *Workspace {
	return New(f.client, f.store, zap.NewNop())
}

func (f *fixture) signIn(t *testing.T, admin bool) session.Session {
	t.Helper()
	f.backend.AddUser("Grace Hopper", "grace@example.com", "cobol", admin)
	s, err := f.ws.Login(context.Background(), "grace@example.com", "cobol")
	require.NoError(t, err)
	return s
}

func TestNew_PanicsWithoutBackend(t *testing.T) {
	assert.Panics(t, func() { New(nil, tokenstore.NewMemory(), zap.NewNop()) })
}

func TestStart(t *testing.T) {
	ctx := context.Background()

	t.Run("no stored token", func(t *testing.T) {
		f := newFixture(t)
		_, ok, err := f.ws.Start(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, f.ws.Online())
		assert.Equal(t, 0, f.backend.Calls("GET /users/me"))
	})

	t.Run("restores session and loads tickets", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t, false)
		f.backend.SeedTicket(models.Ticket{Title: "seeded", Priority: models.PriorityLow})

		ws := f.reopen()
		s, ok, err := ws.Start(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "grace@example.com", s.User.Email)
		assert.Len(t, ws.Tickets(), 1)
	})

	t.Run("401 on first refresh equals failed restore", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t, false)
		f.backend.Fail("GET /tickets", http.StatusUnauthorized)

		ws := f.reopen()
		_, ok, err := ws.Start(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		_, active := ws.Session()
		assert.False(t, active)
		_, err = f.store.Load(ctx)
		assert.ErrorIs(t, err, tokenstore.ErrNotFound)
	})

	t.Run("backend offline", func(t *testing.T) {
		f := newFixture(t)
		f.backend.Fail("GET /", http.StatusServiceUnavailable)
		_, _, err := f.ws.Start(ctx)
		require.NoError(t, err)
		assert.False(t, f.ws.Online())
	})
}

func TestLogoutThenRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, false)

	require.NoError(t, f.ws.Logout(ctx))

	_, ok, err := f.reopen().Start(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefresh_UnauthorizedMatchesFailedRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, false)
	f.backend.SeedTicket(models.Ticket{Title: "seeded"})
	_, err := f.ws.Refresh(ctx)
	require.NoError(t, err)

	f.backend.RevokeAll()
	_, err = f.ws.Refresh(ctx)
	assert.ErrorIs(t, err, session.ErrSessionInvalidated)

	_, active := f.ws.Session()
	assert.False(t, active)
	assert.Empty(t, f.ws.Tickets())

	_, ok, err := f.reopen().Start(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalyze_EmptyInputMakesNoRequest(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, false)
	before := f.backend.TotalCalls()

	for _, input := range []string{"", "   "} {
		_, err := f.ws.Analyze(context.Background(), input)
		assert.ErrorIs(t, err, analysis.ErrEmptyInput)
	}
	assert.Equal(t, before, f.backend.TotalCalls())
}

func TestSubmitFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, false)

	pending, err := f.ws.Analyze(ctx, "My router keeps rebooting every few minutes")
	require.NoError(t, err)
	assert.Equal(t, "Technical", pending.Category)
	assert.Equal(t, models.PriorityHigh, pending.Priority)

	created, ok, err := f.ws.Submit(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pending.Title, created.Title)

	id, awaiting := f.ws.PendingReview()
	assert.True(t, awaiting)
	assert.Equal(t, created.ID, id)

	_, stillPending := f.ws.PendingAnalysis()
	assert.False(t, stillPending)
	require.Len(t, f.ws.Tickets(), 1)

	_, ok, err = f.ws.Submit(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.backend.Calls("POST /tickets"))

	require.NoError(t, f.ws.Rate(ctx, 5))
	_, awaiting = f.ws.PendingReview()
	assert.False(t, awaiting)

	summary := f.ws.Stats()
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Rated)
	require.NotNil(t, summary.AverageRating)
	assert.Equal(t, 5.0, *summary.AverageRating)
	assert.Equal(t, 100, summary.AutomationRate)
}

func TestSubmit_FailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, false)

	_, err := f.ws.Analyze(ctx, "cannot print")
	require.NoError(t, err)
	f.backend.Fail("POST /tickets", http.StatusInternalServerError)

	_, ok, err := f.ws.Submit(ctx)
	require.Error(t, err)
	assert.False(t, ok)

	_, stillPending := f.ws.PendingAnalysis()
	assert.True(t, stillPending)
	_, awaiting := f.ws.PendingReview()
	assert.False(t, awaiting)
}

func TestSubmit_SessionChangedDuringCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, false)
	f.backend.AddUser("Ada Lovelace", "ada@example.com", "engine", false)

	_, err := f.ws.Analyze(ctx, "printer jams on every page")
	require.NoError(t, err)

	creating := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.backend.Before(func(r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/tickets" {
			once.Do(func() {
				close(creating)
				<-release
			})
		}
	})

	type result struct {
		ticket models.Ticket
		ok     bool
		err    error
	}
	done := make(chan result, 1)
	go func() {
		created, ok, err := f.ws.Submit(ctx)
		done <- result{created, ok, err}
	}()
	<-creating

	require.NoError(t, f.ws.Logout(ctx))
	_, err = f.ws.Login(ctx, "ada@example.com", "engine")
	require.NoError(t, err)
	next, err := f.ws.Analyze(ctx, "vpn drops every hour")
	require.NoError(t, err)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.ok)

	_, awaiting := f.ws.PendingReview()
	assert.False(t, awaiting)

	pending, ok := f.ws.PendingAnalysis()
	require.True(t, ok)
	assert.Equal(t, next.Description, pending.Description)
}

func TestReopenReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, false)
	seeded := f.backend.SeedTicket(models.Ticket{Title: "old"})

	f.ws.ReopenReview(seeded.ID)
	require.NoError(t, f.ws.Rate(ctx, 2))

	require.Len(t, f.ws.Tickets(), 1)
	require.NotNil(t, f.ws.Tickets()[0].Rating)
	assert.Equal(t, 2, *f.ws.Tickets()[0].Rating)
}

func TestLogout_ResetsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, false)

	_, err := f.ws.Analyze(ctx, "printer on fire")
	require.NoError(t, err)
	f.backend.SeedTicket(models.Ticket{Title: "x"})
	_, err = f.ws.Refresh(ctx)
	require.NoError(t, err)
	f.ws.ReopenReview(1)

	require.NoError(t, f.ws.Logout(ctx))

	_, active := f.ws.Session()
	assert.False(t, active)
	assert.Empty(t, f.ws.Tickets())
	_, pending := f.ws.PendingAnalysis()
	assert.False(t, pending)
	_, awaiting := f.ws.PendingReview()
	assert.False(t, awaiting)
}

func TestHistoryAndExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, false)
	f.backend.SeedTicket(models.Ticket{Title: "VPN down", Category: "Network", Priority: models.PriorityHigh})
	f.backend.SeedTicket(models.Ticket{Title: "Refund", Category: "Billing", Priority: models.PriorityLow})
	_, err := f.ws.Refresh(ctx)
	require.NoError(t, err)

	got := f.ws.History(view.Criteria{Query: "vpn"})
	require.Len(t, got, 1)
	assert.Equal(t, "VPN down", got[0].Title)

	var buf bytes.Buffer
	require.NoError(t, f.ws.Export(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
}

func TestExport_Empty(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	assert.ErrorIs(t, f.ws.Export(&buf), view.ErrNothingToExport)
}

func TestAdminUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("signed out", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ws.AdminUsers(ctx)
		assert.ErrorIs(t, err, session.ErrNotAuthenticated)
	})

	t.Run("non-admin is refused without a request", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t, false)
		_, err := f.ws.AdminUsers(ctx)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, 0, f.backend.Calls("GET /admin/users"))
	})

	t.Run("admin lists users", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t, true)
		f.backend.AddUser("Alan", "alan@example.com", "enigma", false)

		users, err := f.ws.AdminUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})

	t.Run("server refusal maps to forbidden", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t, true)
		f.backend.Fail("GET /admin/users", http.StatusForbidden)

		_, err := f.ws.AdminUsers(ctx)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestProbe(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.ws.Probe(context.Background()))
	assert.True(t, f.ws.Online())

	f.backend.Fail("GET /", http.StatusBadGateway)
	assert.False(t, f.ws.Probe(context.Background()))
	assert.False(t, f.ws.Online())
}
