package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/bustix/internal/auth"
	"github.com/kirinyoku/bustix/internal/credential"
	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository/memory"
	redisrepo "github.com/kirinyoku/bustix/internal/repository/redis"
	"github.com/kirinyoku/bustix/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memIdempotency struct {
	mu      sync.Mutex
	locks   map[string]bool
	results map[string][]byte
	getErr  error
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{locks: map[string]bool{}, results: map[string][]byte{}}
}

func (m *memIdempotency) GetResult(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	b, ok := m.results[key]
	return b, ok, nil
}

func (m *memIdempotency) AcquireLock(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memIdempotency) SaveResult(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = payload
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

type testServer struct {
	router *gin.Engine
	tokens *auth.Manager
	idem   *memIdempotency
	logs   *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	codec := credential.New(credential.Config{Secret: "router-test-secret"})
	svcs := service.NewServices(service.Repositories{
		Tx:       store,
		Routes:   store.Routes(),
		Bookings: store.Bookings(),
		Tickets:  store.Tickets(),
	}, codec, service.Deps{}, service.Config{})

	tokens := auth.NewManager("jwt-secret", time.Hour)
	idem := newMemIdempotency()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	return &testServer{
		router: NewRouter(svcs, RouterDeps{Auth: tokens, Idempotency: idem, Hub: NewRouteHub()}, logger),
		tokens: tokens,
		idem:   idem,
		logs:   logs,
	}
}

func (s *testServer) token(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	tok, err := s.tokens.Issue(domain.Principal{ID: id, Role: role}, time.Now())
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createRoute(t *testing.T, seats int) domain.Route {
	t.Helper()

	dep := time.Now().UTC()
	w := s.do(t, http.MethodPost, "/admin/routes", s.token(t, "a-1", domain.RoleAdmin), CreateRouteRequest{
		From:          "Kyiv",
		To:            "Lviv",
		DepartureTime: dep.Format(time.RFC3339),
		ArrivalTime:   dep.Add(6 * time.Hour).Format(time.RFC3339),
		Price:         2500,
		TotalSeats:    seats,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[domain.Route](t, w)
}

func bookingRequest(routeID string, n int) CreateBookingRequest {
	req := CreateBookingRequest{RouteID: routeID, TotalAmount: int64(n) * 2500}
	for i := 0; i < n; i++ {
		req.Passengers = append(req.Passengers, PassengerInput{Name: "Olena", Age: 31})
	}
	return req
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/bookings", "", bookingRequest("r-1", 1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/bookings", "garbage", bookingRequest("r-1", 1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/admin/routes", s.token(t, "u-1", domain.RoleUser), CreateRouteRequest{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/tickets/scan", s.token(t, "u-1", domain.RoleUser), ScanTicketRequest{Credential: "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBookAndScan(t *testing.T) {
	s := newTestServer(t)
	route := s.createRoute(t, 2)
	user := s.token(t, "u-1", domain.RoleUser)
	staff := s.token(t, "s-1", domain.RoleStaff)

	w := s.do(t, http.MethodPost, "/bookings", user, bookingRequest(route.ID, 3))
	require.Equal(t, http.StatusConflict, w.Code)
	seats := decode[InsufficientSeatsResponse](t, w)
	assert.Equal(t, 2, seats.Available)

	w = s.do(t, http.MethodPost, "/bookings", user, bookingRequest(route.ID, 2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode[domain.BookingWithTickets](t, w)
	require.Len(t, out.Tickets, 2)
	assert.EqualValues(t, 2500, out.Tickets[0].Price)

	w = s.do(t, http.MethodGet, "/routes/"+route.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[domain.Route](t, w).AvailableSeats)

	w = s.do(t, http.MethodPost, "/tickets/scan", staff, ScanTicketRequest{Credential: "forged"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid or expired ticket", decode[ErrorResponse](t, w).Error)

	w = s.do(t, http.MethodPost, "/tickets/scan", staff, ScanTicketRequest{Credential: out.Tickets[0].Credential})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.TicketUsed, decode[domain.Ticket](t, w).Status)

	w = s.do(t, http.MethodPost, "/tickets/scan", staff, ScanTicketRequest{Credential: out.Tickets[0].Credential})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/tickets/verify", staff, VerifyTicketRequest{TicketNumber: out.Tickets[1].TicketNumber})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, "/bookings/"+out.Booking.ID, s.token(t, "u-2", domain.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateBookingIdempotent(t *testing.T) {
	s := newTestServer(t)
	route := s.createRoute(t, 5)
	user := s.token(t, "u-1", domain.RoleUser)

	first := s.do(t, http.MethodPost, "/bookings", user, bookingRequest(route.ID, 1), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := s.do(t, http.MethodPost, "/bookings", user, bookingRequest(route.ID, 1), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := s.do(t, http.MethodGet, "/routes/"+route.ID, "", nil)
	assert.Equal(t, 4, decode[domain.Route](t, w).AvailableSeats)

	_, _ = s.idem.AcquireLock(context.Background(), redisrepo.KeyIdemBooking("u-1", "k-2"))
	w = s.do(t, http.MethodPost, "/bookings", user, bookingRequest(route.ID, 1), "Idempotency-Key", "k-2")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestCreateBookingIdempotencyLookupFailure(t *testing.T) {
	s := newTestServer(t)
	route := s.createRoute(t, 5)
	user := s.token(t, "u-1", domain.RoleUser)

	s.idem.getErr = errors.New("redis: connection refused")

	w := s.do(t, http.MethodPost, "/bookings", user, bookingRequest(route.ID, 1), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "k-1", w.Header().Get("Idempotency-Key"))

	logs := s.logs.String()
	assert.Contains(t, logs, "level=WARN")
	assert.Contains(t, logs, "idempotency lookup failed")
	assert.Contains(t, logs, "connection refused")

	// the lock is still held, so a retry cannot book twice
	w = s.do(t, http.MethodPost, "/bookings", user, bookingRequest(route.ID, 1), "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/routes/"+route.ID, "", nil)
	assert.Equal(t, 4, decode[domain.Route](t, w).AvailableSeats)
}

func TestBookingLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t)
	route := s.createRoute(t, 3)
	user := s.token(t, "u-1", domain.RoleUser)

	w := s.do(t, http.MethodPost, "/bookings", user, bookingRequest(route.ID, 1))
	require.Equal(t, http.StatusCreated, w.Code)
	out := decode[domain.BookingWithTickets](t, w)

	w = s.do(t, http.MethodGet, "/bookings/"+out.Booking.ID, user, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/tickets/"+out.Tickets[0].ID+"/pdf", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	w = s.do(t, http.MethodPatch, "/tickets/"+out.Tickets[0].ID+"/status", user, UpdateTicketStatusRequest{Status: "active"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/bookings/"+out.Booking.ID+"/status", user, UpdateBookingStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, "/bookings/"+out.Booking.ID, user, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPatch, "/bookings/"+out.Booking.ID+"/status", user, UpdateBookingStatusRequest{Status: "pending"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/bookings", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[BookingListResponse](t, w).Bookings, 1)
}

func TestListRoutesETag(t *testing.T) {
	s := newTestServer(t)
	s.createRoute(t, 3)

	w := s.do(t, http.MethodGet, "/routes?from=kyiv", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	w = s.do(t, http.MethodGet, "/routes?from=kyiv", "", nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = s.do(t, http.MethodGet, "/routes?date=tomorrow", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEtagMatches(t *testing.T) {
	assert.True(t, etagMatches(`W/"abc"`, `W/"abc"`))
	assert.True(t, etagMatches(`"abc"`, `W/"abc"`))
	assert.True(t, etagMatches(`"x", W/"abc"`, `W/"abc"`))
	assert.True(t, etagMatches(`*`, `"abc"`))
	assert.False(t, etagMatches(``, `"abc"`))
	assert.False(t, etagMatches(`"abd"`, `"abc"`))
}

func TestRouteHubBroadcast(t *testing.T) {
	hub := NewRouteHub()
	ch := hub.subscribe()
	assert.Equal(t, 1, hub.clients())

	hub.Broadcast(context.Background(), routeChanged("r-1", 4))
	msg := <-ch
	assert.Equal(t, "r-1", msg.RouteID)

	// a full buffer drops instead of blocking
	for i := 0; i < 100; i++ {
		hub.Broadcast(context.Background(), routeChanged("r-1", i))
	}

	hub.unsubscribe(ch)
	assert.Equal(t, 0, hub.clients())
}

func routeChanged(routeID string, available int) redisrepo.RouteChanged {
	return redisrepo.RouteChanged{Type: "route_changed", RouteID: routeID, AvailableSeats: available}
}
