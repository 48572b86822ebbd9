// Package apitest provides an in-process fake of the ticket backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/godilite/aiticket/internal/api/models"
)

type account struct {
	user     models.User
	password string
}

// Backend is a fake ticket backend. All fields are guarded by its mutex;
// use the helper methods rather than touching them from tests directly.
type Backend struct {
	Server *httptest.Server

	mu         sync.Mutex
	accounts   map[string]*account
	tokens     map[string]int64
	tickets    []models.Ticket
	nextUserID int64
	nextID     int64
	prediction models.Prediction
	failures   map[string]int
	calls      map[string]int
	before     func(r *http.Request)
	omitUser   bool
	clock      func() time.Time
}

// NewBackend starts a fake backend. Call Close when done.
func NewBackend() *Backend {
	b := &Backend{
		accounts:   make(map[string]*account),
		tokens:     make(map[string]int64),
		failures:   make(map[string]int),
		calls:      make(map[string]int),
		nextUserID: 1,
		nextID:     1,
		prediction: models.Prediction{
			Category:          "Technical",
			Priority:          models.PriorityHigh,
			ExtractedEntities: models.Entities{"product": "router"},
		},
		clock: func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

func (b *Backend) URL() string { return b.Server.URL }

func (b *Backend) Close() { b.Server.Close() }

// AddUser registers an account and returns it.
func (b *Backend) AddUser(fullName, email, password string, admin bool) models.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(fullName, email, password, admin)
}

func (b *Backend) addUserLocked(fullName, email, password string, admin bool) models.User {
	u := models.User{ID: b.nextUserID, FullName: fullName, Email: email, IsAdmin: admin}
	b.nextUserID++
	b.accounts[email] = &account{user: u, password: password}
	return u
}

// IssueToken creates a valid token for email without going through /token.
func (b *Backend) IssueToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accounts[email]
	token := fmt.Sprintf("tok-%d-%d", acc.user.ID, len(b.tokens)+1)
	b.tokens[token] = acc.user.ID
	return token
}

// RevokeAll invalidates every issued token.
func (b *Backend) RevokeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]int64)
}

// SeedTicket stores a ticket as if it had been created earlier. ID is assigned when zero.
func (b *Backend) SeedTicket(t models.Ticket) models.Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.ID == 0 {
		t.ID = b.nextID
	}
	if t.ID >= b.nextID {
		b.nextID = t.ID + 1
	}
	if t.Status == "" {
		t.Status = "New"
	}
	b.tickets = append(b.tickets, t)
	return t
}

func (b *Backend) SetPrediction(p models.Prediction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prediction = p
}

// Fail forces the given route (e.g. "GET /tickets") to answer with status.
// A zero status clears the override.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, route)
		return
	}
	b.failures[route] = status
}

// Before installs a hook run before each request is handled, outside the lock.
func (b *Backend) Before(fn func(r *http.Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.before = fn
}

// OmitUserInToken makes /token answer without the embedded user profile.
func (b *Backend) OmitUserInToken(omit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.omitUser = omit
}

// Calls returns how many times route was requested.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// TotalCalls returns the number of requests handled.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.calls {
		total += n
	}
	return total
}

func routeOf(r *http.Request) string {
	path := r.URL.Path
	if strings.HasPrefix(path, "/tickets/") && strings.HasSuffix(path, "/review") {
		path = "/tickets/{id}/review"
	}
	return r.Method + " " + path
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)

	b.mu.Lock()
	b.calls[route]++
	before := b.before
	forced := b.failures[route]
	b.mu.Unlock()

	if before != nil {
		before(r)
	}
	if forced != 0 {
		writeJSON(w, forced, map[string]string{"detail": http.StatusText(forced)})
		return
	}

	switch route {
	case "GET /":
		writeJSON(w, http.StatusOK, map[string]string{"message": "Ticket AI API is running"})
	case "POST /token":
		b.handleToken(w, r)
	case "POST /register":
		b.handleRegister(w, r)
	case "GET /users/me":
		b.withUser(w, r, func(u models.User) { writeJSON(w, http.StatusOK, u) })
	case "POST /predict":
		b.withUser(w, r, func(models.User) { b.handlePredict(w, r) })
	case "GET /tickets":
		b.withUser(w, r, func(models.User) { b.handleList(w) })
	case "POST /tickets":
		b.withUser(w, r, func(models.User) { b.handleCreate(w, r) })
	case "POST /tickets/{id}/review":
		b.withUser(w, r, func(models.User) { b.handleReview(w, r) })
	case "GET /admin/users":
		b.withUser(w, r, func(u models.User) { b.handleUsers(w, u) })
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
	}
}

func (b *Backend) withUser(w http.ResponseWriter, r *http.Request, fn func(models.User)) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	id, ok := b.tokens[token]
	var user models.User
	if ok {
		for _, acc := range b.accounts {
			if acc.user.ID == id {
				user = acc.user
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
		return
	}
	fn(user)
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad form"})
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")

	b.mu.Lock()
	acc, ok := b.accounts[email]
	if !ok || acc.password != password {
		b.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
		return
	}
	token := fmt.Sprintf("tok-%d-%d", acc.user.ID, len(b.tokens)+1)
	b.tokens[token] = acc.user.ID
	user := acc.user
	omit := b.omitUser
	b.mu.Unlock()

	resp := map[string]any{"access_token": token, "token_type": "bearer"}
	if !omit {
		resp["user"] = user
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]string{{"msg": "invalid body"}},
		})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[req.Email]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Email already registered"})
		return
	}
	u := b.addUserLocked(req.FullName, req.Email, req.Password, false)
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "text required"})
		return
	}
	b.mu.Lock()
	p := b.prediction
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) handleList(w http.ResponseWriter) {
	b.mu.Lock()
	out := make([]models.Ticket, len(b.tickets))
	copy(out, b.tickets)
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid ticket"})
		return
	}

	b.mu.Lock()
	t := models.Ticket{
		ID:                b.nextID,
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Priority:          req.Priority,
		Status:            "New",
		ExtractedEntities: req.ExtractedEntities,
		CreatedAt:         models.Timestamp{Time: b.clock()},
	}
	b.nextID++
	b.tickets = append(b.tickets, t)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, t)
}

func (b *Backend) handleReview(w http.ResponseWriter, r *http.Request) {
	idText := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/tickets/"), "/review")
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Ticket not found"})
		return
	}
	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rating < 1 || req.Rating > 5 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "rating must be 1-5"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.tickets {
		if b.tickets[i].ID == id {
			rating := req.Rating
			b.tickets[i].Rating = &rating
			writeJSON(w, http.StatusOK, map[string]string{"message": "Review submitted"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Ticket not found"})
}

func (b *Backend) handleUsers(w http.ResponseWriter, caller models.User) {
	if !caller.IsAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Admin access required"})
		return
	}
	b.mu.Lock()
	users := make([]models.User, 0, len(b.accounts))
	for _, acc := range b.accounts {
		users = append(users, acc.user)
	}
	b.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	writeJSON(w, http.StatusOK, users)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
