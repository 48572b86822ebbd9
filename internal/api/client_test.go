package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/godilite/aiticket/internal/api/apitest"
	"github.com/godilite/aiticket/internal/api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{BaseURL: baseURL, Logger: zap.NewNop()})
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("missing base url", func(t *testing.T) {
		_, err := NewClient(ClientConfig{})
		assert.Error(t, err)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := NewClient(ClientConfig{BaseURL: "ftp://example.com"})
		assert.Error(t, err)
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		c, err := NewClient(ClientConfig{BaseURL: "http://localhost:8000/"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8000", c.BaseURL())
	})
}

func TestClient_TokenAndMe(t *testing.T) {
	backend := apitest.NewBackend()
	defer backend.Close()
	backend.AddUser("Ada Lovelace", "ada@example.com", "secret", false)
	c := newTestClient(t, backend.URL())
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		resp, err := c.Token(ctx, "ada@example.com", "secret")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		require.NotNil(t, resp.User)
		assert.Equal(t, "Ada Lovelace", resp.User.FullName)

		me, err := c.Me(ctx, resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", me.Email)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		_, err := c.Token(ctx, "ada@example.com", "wrong")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, StatusCode(err))

		var apiErr *Error
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "Incorrect email or password", apiErr.Detail)
	})

	t.Run("me without token is unauthorized", func(t *testing.T) {
		_, err := c.Me(ctx, "")
		assert.True(t, IsUnauthorized(err))
	})
}

func TestClient_Register(t *testing.T) {
	backend := apitest.NewBackend()
	defer backend.Close()
	backend.AddUser("Existing", "taken@example.com", "pw", false)
	c := newTestClient(t, backend.URL())

	err := c.Register(context.Background(), models.RegisterRequest{
		Email: "taken@example.com", Password: "pw", FullName: "Dup",
	})
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Email already registered", apiErr.Detail)
	assert.False(t, IsUnauthorized(err))
}

func TestClient_TicketLifecycle(t *testing.T) {
	backend := apitest.NewBackend()
	defer backend.Close()
	backend.AddUser("Ada", "ada@example.com", "secret", false)
	token := backend.IssueToken("ada@example.com")
	c := newTestClient(t, backend.URL())
	ctx := context.Background()

	prediction, err := c.Predict(ctx, token, "my router keeps dropping")
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, prediction.Priority)

	created, err := c.CreateTicket(ctx, token, models.CreateTicketRequest{
		Title:             "Ticket: router...",
		Description:       "my router keeps dropping",
		Category:          prediction.Category,
		Priority:          prediction.Priority,
		ExtractedEntities: prediction.ExtractedEntities,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "New", created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	require.NoError(t, c.ReviewTicket(ctx, token, created.ID, 5))

	tickets, err := c.ListTickets(ctx, token)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.NotNil(t, tickets[0].Rating)
	assert.Equal(t, 5, *tickets[0].Rating)
	assert.Equal(t, "router", tickets[0].ExtractedEntities["product"])

	assert.Equal(t, 1, backend.Calls("POST /tickets/{id}/review"))
}

func TestClient_RequestHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	tickets, err := c.ListTickets(context.Background(), "abc")
	require.NoError(t, err)
	assert.NotNil(t, tickets)
	assert.Empty(t, tickets)

	assert.Equal(t, "Bearer abc", got.Get("Authorization"))
	assert.NotEmpty(t, got.Get(requestIDHeader))
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 0, StatusCode(err))
}

func TestParseDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"Email already registered"}`, "Email already registered"},
		{"validation list", `{"detail":[{"msg":"field required"},{"msg":"value is not a valid email"}]}`, "field required"},
		{"validation list skips empty msg", `{"detail":[{"loc":["body"]},{"msg":"too short"}]}`, "too short"},
		{"plain text body", "Internal Server Error", "Internal Server Error"},
		{"empty body", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDetail([]byte(tt.body)))
		})
	}
}
