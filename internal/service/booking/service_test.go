package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirinyoku/bustix/internal/credential"
	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository"
	"github.com/kirinyoku/bustix/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	svc    *Service
	codec  *credential.Codec
	events *recordingEvents
	cache  *recordingCache
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) Publish(_ context.Context, eventType, _ string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

func (r *recordingEvents) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

type recordingCache struct {
	invalidated atomic.Int64
}

func (c *recordingCache) InvalidateRoute(context.Context, string) error {
	c.invalidated.Add(1)
	return nil
}

// failingTickets fails CreateBatch and delegates everything else.
type failingTickets struct {
	repository.TicketRepository
	err error
}

func (f failingTickets) CreateBatch(context.Context, []domain.Ticket) error {
	return f.err
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 1500 * time.Millisecond, nil
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()

	store := memory.NewStore()
	codec := credential.New(credential.Config{Secret: "test-secret", Now: func() time.Time { return fixedNow }})
	f := &fixture{
		store:  store,
		codec:  codec,
		events: &recordingEvents{},
		cache:  &recordingCache{},
	}

	d := Deps{
		Tx:       store,
		Routes:   store.Routes(),
		Bookings: store.Bookings(),
		Tickets:  store.Tickets(),
		Codec:    codec,
		Cache:    f.cache,
		Events:   f.events,
		Now:      func() time.Time { return fixedNow },
	}
	for _, o := range opts {
		o(&d)
	}

	f.svc = New(d)
	return f
}

func (f *fixture) route(t *testing.T, seats int) *domain.Route {
	t.Helper()

	r := &domain.Route{
		From:          "Kyiv",
		To:            "Odesa",
		DepartureTime: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		ArrivalTime:   time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC),
		Price:         2500,
		TotalSeats:    seats,
	}
	require.NoError(t, f.store.Routes().Create(context.Background(), r))
	return r
}

func (f *fixture) available(t *testing.T, routeID string) int {
	t.Helper()

	r, err := f.store.Routes().Get(context.Background(), routeID)
	require.NoError(t, err)
	return r.AvailableSeats
}

func passengers(n int) []domain.Passenger {
	out := make([]domain.Passenger, n)
	for i := range out {
		out[i] = domain.Passenger{Name: fmt.Sprintf("Passenger %d", i+1), Age: 30, Gender: "female"}
	}
	return out
}

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 10)

	out, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:      "u-1",
		RouteID:     route.ID,
		Passengers:  passengers(2),
		TotalAmount: 5000,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.BookingPending, out.Booking.Status)
	assert.Equal(t, domain.PaymentPending, out.Booking.PaymentStatus)
	assert.Equal(t, route.Snapshot(), out.Booking.Journey)
	require.Len(t, out.Tickets, 2)
	assert.Len(t, out.Booking.TicketIDs, 2)
	assert.NotEqual(t, out.Tickets[0].TicketNumber, out.Tickets[1].TicketNumber)

	for i, tk := range out.Tickets {
		assert.Equal(t, out.Booking.TicketIDs[i], tk.ID)
		assert.EqualValues(t, 2500, tk.Price)
		assert.Equal(t, domain.TicketActive, tk.Status)
		assert.Equal(t, "u-1", tk.UserID)
		assert.Regexp(t, `^TKT-\d+-\d{4}$`, tk.TicketNumber)

		claims, err := f.codec.Decode(tk.Credential)
		require.NoError(t, err)
		assert.Equal(t, tk.TicketNumber, claims.TicketNumber)
		assert.Equal(t, "u-1", claims.UserID)
	}

	assert.Equal(t, 8, f.available(t, route.ID))

	stored, err := f.store.Bookings().Get(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Booking.TicketIDs, stored.TicketIDs)

	assert.Equal(t, []string{domain.EventBookingCreated}, f.events.all())
	assert.EqualValues(t, 1, f.cache.invalidated.Load())
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 10)

	dupSeat := passengers(2)
	dupSeat[0].SeatNumber, dupSeat[1].SeatNumber = "3A", "3A"

	cases := map[string]CreateBookingInput{
		"no passengers":   {UserID: "u-1", RouteID: route.ID, TotalAmount: 100},
		"no user":         {RouteID: route.ID, Passengers: passengers(1)},
		"no route":        {UserID: "u-1", Passengers: passengers(1)},
		"negative amount": {UserID: "u-1", RouteID: route.ID, Passengers: passengers(1), TotalAmount: -1},
		"duplicate seat":  {UserID: "u-1", RouteID: route.ID, Passengers: dupSeat},
		"blank name":      {UserID: "u-1", RouteID: route.ID, Passengers: []domain.Passenger{{Age: 20}}},
	}

	for name, in := range cases {
		_, err := f.svc.CreateBooking(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}

	assert.Equal(t, 10, f.available(t, route.ID))
}

func TestCreateBookingRouteNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:     "u-1",
		RouteID:    "missing",
		Passengers: passengers(1),
	})
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestCreateBookingInsufficientSeats(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 1)

	_, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:     "u-1",
		RouteID:    route.ID,
		Passengers: passengers(2),
	})
	require.ErrorIs(t, err, ErrInsufficientSeats)
	assert.NotErrorIs(t, err, ErrSeatReservationFailed)

	var seatsErr InsufficientSeatsError
	require.ErrorAs(t, err, &seatsErr)
	assert.Equal(t, 1, seatsErr.Available)
	assert.Equal(t, 2, seatsErr.Requested)

	bookings, err := f.store.Bookings().ListByUser(context.Background(), "u-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func sequentialNumbers(d *Deps) {
	var seq atomic.Int64
	d.TicketNumber = func(now time.Time) string {
		return fmt.Sprintf("TKT-%d-%04d", now.UnixMilli(), seq.Add(1))
	}
}

func TestCreateBookingNoOversell(t *testing.T) {
	f := newFixture(t, sequentialNumbers)
	route := f.route(t, 5)

	const clients = 30
	var (
		wg      sync.WaitGroup
		ok      atomic.Int64
		refused atomic.Int64
	)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
				UserID:      fmt.Sprintf("u-%d", i),
				RouteID:     route.ID,
				Passengers:  passengers(1),
				TotalAmount: 2500,
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInsufficientSeats):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 5, ok.Load())
	assert.EqualValues(t, clients-5, refused.Load())
	assert.Equal(t, 0, f.available(t, route.ID))

	// losers leave no pending booking behind
	var total int
	for i := 0; i < clients; i++ {
		bs, err := f.store.Bookings().ListByUser(context.Background(), fmt.Sprintf("u-%d", i), 10, 0)
		require.NoError(t, err)
		total += len(bs)
	}
	assert.Equal(t, 5, total)
}

func TestCreateBookingLastSeatRace(t *testing.T) {
	f := newFixture(t, sequentialNumbers)
	route := f.route(t, 1)

	start := make(chan struct{})
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.CreateBooking(context.Background(), CreateBookingInput{
				UserID:     fmt.Sprintf("u-%d", i),
				RouteID:    route.ID,
				Passengers: passengers(1),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientSeats)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, f.available(t, route.ID))
}

func TestCreateBookingRollsBackWhenTicketsFail(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Tickets = failingTickets{TicketRepository: d.Tickets, err: errors.New("disk full")}
	})
	route := f.route(t, 4)

	_, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:     "u-1",
		RouteID:    route.ID,
		Passengers: passengers(3),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTicketNumberCollision)

	assert.Equal(t, 4, f.available(t, route.ID))

	bookings, err := f.store.Bookings().ListByUser(context.Background(), "u-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, bookings)

	tickets, err := f.store.Tickets().ListByUser(context.Background(), "u-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Empty(t, f.events.all())
}

func TestCreateBookingTicketNumberCollision(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.TicketNumber = func(time.Time) string { return "TKT-1-0001" }
	})
	route := f.route(t, 4)

	_, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:     "u-1",
		RouteID:    route.ID,
		Passengers: passengers(1),
	})
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:     "u-2",
		RouteID:    route.ID,
		Passengers: passengers(1),
	})
	assert.ErrorIs(t, err, ErrTicketNumberCollision)
	assert.Equal(t, 3, f.available(t, route.ID))

	bookings, err := f.store.Bookings().ListByUser(context.Background(), "u-2", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestCreateBookingSurvivesCancelledContext(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.tickets = cancelOnCreate{TicketRepository: f.svc.tickets, cancel: cancel}

	out, err := f.svc.CreateBooking(ctx, CreateBookingInput{
		UserID:     "u-1",
		RouteID:    route.ID,
		Passengers: passengers(1),
	})
	require.NoError(t, err)
	assert.Len(t, out.Tickets, 1)
	assert.Equal(t, 1, f.available(t, route.ID))
}

type cancelOnCreate struct {
	repository.TicketRepository
	cancel context.CancelFunc
}

func (c cancelOnCreate) CreateBatch(ctx context.Context, ts []domain.Ticket) error {
	c.cancel()
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.TicketRepository.CreateBatch(ctx, ts)
}

func TestCreateBookingRateLimited(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Limiter = denyLimiter{} })
	route := f.route(t, 2)

	_, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:       "u-1",
		RouteID:      route.ID,
		Passengers:   passengers(1),
		RateLimitKey: "u-1",
	})
	require.ErrorIs(t, err, ErrRateLimited)

	var rl RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 2, rl.RetryAfter)
	assert.Equal(t, 2, f.available(t, route.ID))
}

func book(t *testing.T, f *fixture, routeID, userID string, n int) *domain.BookingWithTickets {
	t.Helper()

	out, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:      userID,
		RouteID:     routeID,
		Passengers:  passengers(n),
		TotalAmount: int64(n) * 2500,
	})
	require.NoError(t, err)
	return out
}

func TestDeleteBooking(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 5)
	out := book(t, f, route.ID, "u-1", 2)
	require.Equal(t, 3, f.available(t, route.ID))

	owner := domain.Principal{ID: "u-1", Role: domain.RoleUser}

	err := f.svc.DeleteBooking(context.Background(), domain.Principal{ID: "u-2", Role: domain.RoleUser}, out.Booking.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.DeleteBooking(context.Background(), owner, out.Booking.ID))
	assert.Equal(t, 5, f.available(t, route.ID))

	_, err = f.store.Bookings().Get(context.Background(), out.Booking.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	for _, tk := range out.Tickets {
		_, err := f.store.Tickets().Get(context.Background(), tk.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	}

	err = f.svc.DeleteBooking(context.Background(), owner, out.Booking.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	assert.Contains(t, f.events.all(), domain.EventBookingDeleted)
}

func TestDeleteConfirmedBookingRefused(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 5)
	out := book(t, f, route.ID, "u-1", 1)

	admin := domain.Principal{ID: "a-1", Role: domain.RoleAdmin}
	_, err := f.svc.UpdateBookingStatus(context.Background(), admin, out.Booking.ID, UpdateStatusInput{Status: domain.BookingConfirmed})
	require.NoError(t, err)

	err = f.svc.DeleteBooking(context.Background(), admin, out.Booking.ID)
	assert.ErrorIs(t, err, ErrInvalidStateForDeletion)
	assert.Equal(t, 4, f.available(t, route.ID))

	tickets, err := f.store.Tickets().ListByBooking(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestUpdateBookingStatus(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 5)
	out := book(t, f, route.ID, "u-1", 2)
	owner := domain.Principal{ID: "u-1", Role: domain.RoleUser}

	paid := domain.PaymentPaid
	b, err := f.svc.UpdateBookingStatus(context.Background(), owner, out.Booking.ID, UpdateStatusInput{
		Status:        domain.BookingConfirmed,
		PaymentStatus: &paid,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.Equal(t, domain.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, 3, f.available(t, route.ID))

	_, err = f.svc.UpdateBookingStatus(context.Background(), owner, out.Booking.ID, UpdateStatusInput{Status: domain.BookingPending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	b, err = f.svc.UpdateBookingStatus(context.Background(), owner, out.Booking.ID, UpdateStatusInput{Status: domain.BookingCancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, b.Status)
	assert.Equal(t, 5, f.available(t, route.ID))

	tickets, err := f.store.Tickets().ListByBooking(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	for _, tk := range tickets {
		assert.Equal(t, domain.TicketCancelled, tk.Status)
	}

	_, err = f.svc.UpdateBookingStatus(context.Background(), owner, out.Booking.ID, UpdateStatusInput{Status: domain.BookingCompleted})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateBookingStatusRules(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 5)
	out := book(t, f, route.ID, "u-1", 1)

	_, err := f.svc.UpdateBookingStatus(context.Background(), domain.Principal{ID: "u-2", Role: domain.RoleStaff}, out.Booking.ID, UpdateStatusInput{Status: domain.BookingConfirmed})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.UpdateBookingStatus(context.Background(), domain.Principal{ID: "u-1"}, out.Booking.ID, UpdateStatusInput{Status: "boarding"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdateBookingStatus(context.Background(), domain.Principal{ID: "u-1"}, "missing", UpdateStatusInput{Status: domain.BookingConfirmed})
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = f.svc.UpdateBookingStatus(context.Background(), domain.Principal{ID: "u-1"}, out.Booking.ID, UpdateStatusInput{Status: domain.BookingCompleted})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNewTicketNumber(t *testing.T) {
	n := NewTicketNumber(time.UnixMilli(1772357400000))
	assert.Regexp(t, `^TKT-1772357400000-\d{4}$`, n)
}

// hookedRoutes runs beforeReserve ahead of every seat reservation.
type hookedRoutes struct {
	repository.RouteRepository
	beforeReserve func()
}

func (h hookedRoutes) ReserveSeats(ctx context.Context, routeID string, count int) (int, error) {
	h.beforeReserve()
	return h.RouteRepository.ReserveSeats(ctx, routeID, count)
}

// failingRelease fails every seat release.
type failingRelease struct {
	repository.RouteRepository
}

func (failingRelease) ReleaseSeats(context.Context, string, int) (int, error) {
	return 0, errors.New("connection reset")
}

// capturingBookings remembers the ID of the last booking it created.
type capturingBookings struct {
	repository.BookingRepository
	created *string
}

func (c capturingBookings) Create(ctx context.Context, b *domain.Booking) error {
	if err := c.BookingRepository.Create(ctx, b); err != nil {
		return err
	}
	*c.created = b.ID
	return nil
}

func TestCreateBookingInFlightCannotBeDeleted(t *testing.T) {
	owner := domain.Principal{ID: "u-1", Role: domain.RoleUser}

	var (
		f               *fixture
		created         string
		svcErr, repoErr error
	)
	f = newFixture(t, func(d *Deps) {
		d.Bookings = capturingBookings{BookingRepository: d.Bookings, created: &created}
		d.Routes = hookedRoutes{RouteRepository: d.Routes, beforeReserve: func() {
			svcErr = f.svc.DeleteBooking(context.Background(), owner, created)
			repoErr = f.store.Bookings().Delete(context.Background(), created, domain.BookingPending)
		}}
	})
	route := f.route(t, 5)

	out := book(t, f, route.ID, "u-1", 2)

	assert.ErrorIs(t, svcErr, ErrBookingNotFound)
	assert.ErrorIs(t, repoErr, repository.ErrConflict)

	b, err := f.store.Bookings().Get(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Len(t, b.TicketIDs, 2)
	assert.Equal(t, 3, f.available(t, route.ID))
	assert.NotContains(t, f.events.all(), domain.EventBookingDeleted)
}

func TestCreateBookingInFlightCannotBeCancelled(t *testing.T) {
	admin := domain.Principal{ID: "a-1", Role: domain.RoleAdmin}

	var (
		f               *fixture
		created         string
		svcErr, repoErr error
	)
	f = newFixture(t, func(d *Deps) {
		d.Bookings = capturingBookings{BookingRepository: d.Bookings, created: &created}
		d.Routes = hookedRoutes{RouteRepository: d.Routes, beforeReserve: func() {
			_, svcErr = f.svc.UpdateBookingStatus(context.Background(), admin, created, UpdateStatusInput{Status: domain.BookingCancelled})
			_, repoErr = f.store.Bookings().TransitionStatus(context.Background(), created, domain.BookingPending, domain.BookingCancelled, nil)
		}}
	})
	route := f.route(t, 5)

	out := book(t, f, route.ID, "u-1", 2)

	assert.ErrorIs(t, svcErr, ErrBookingNotFound)
	assert.ErrorIs(t, repoErr, repository.ErrConflict)
	assert.Equal(t, domain.BookingPending, out.Booking.Status)

	b, err := f.store.Bookings().Get(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)

	tickets, err := f.store.Tickets().ListByBooking(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, tk := range tickets {
		assert.Equal(t, domain.TicketActive, tk.Status)
	}
	assert.Equal(t, 3, f.available(t, route.ID))
}

// removingTickets deletes the issuing booking and hands its seats back, the
// way a concurrent remover would, then fails the batch.
type removingTickets struct {
	repository.TicketRepository
	store   *memory.Store
	created *string
	seats   int
}

func (r removingTickets) CreateBatch(context.Context, []domain.Ticket) error {
	// the remover runs in its own transaction
	ctx := context.Background()

	b, err := r.store.Bookings().Get(ctx, *r.created)
	if err != nil {
		return err
	}
	if err := r.store.Bookings().Delete(ctx, b.ID, domain.BookingIssuing); err != nil {
		return err
	}
	if _, err := r.store.Routes().ReleaseSeats(ctx, b.RouteID, r.seats); err != nil {
		return err
	}
	return errors.New("insert tickets: connection reset")
}

func TestCreateBookingRollbackSkipsReleaseForRemovedBooking(t *testing.T) {
	var created string
	f := newFixture(t)
	route := f.route(t, 5)
	book(t, f, route.ID, "u-1", 2)
	require.Equal(t, 3, f.available(t, route.ID))

	svc := New(Deps{
		Tx:       f.store,
		Routes:   f.store.Routes(),
		Bookings: capturingBookings{BookingRepository: f.store.Bookings(), created: &created},
		Tickets:  removingTickets{TicketRepository: f.store.Tickets(), store: f.store, created: &created, seats: 2},
		Codec:    f.codec,
		Now:      func() time.Time { return fixedNow },
	})

	_, err := svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:     "u-2",
		RouteID:    route.ID,
		Passengers: passengers(2),
	})
	require.Error(t, err)

	// released once by the remover, not again by the rollback
	assert.Equal(t, 3, f.available(t, route.ID))

	_, err = f.store.Bookings().Get(context.Background(), created)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateBookingRollbackRemovesIssuingBooking(t *testing.T) {
	var created string
	f := newFixture(t, func(d *Deps) {
		d.Bookings = capturingBookings{BookingRepository: d.Bookings, created: &created}
		d.Tickets = failingTickets{TicketRepository: d.Tickets, err: errors.New("disk full")}
	})
	route := f.route(t, 4)

	_, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		UserID:     "u-1",
		RouteID:    route.ID,
		Passengers: passengers(2),
	})
	require.Error(t, err)
	require.NotEmpty(t, created)

	_, err = f.store.Bookings().Get(context.Background(), created)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 4, f.available(t, route.ID))
}

func TestDeleteBookingRollsBackWhenReleaseFails(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 5)
	out := book(t, f, route.ID, "u-1", 2)

	f.svc.routes = failingRelease{RouteRepository: f.svc.routes}

	owner := domain.Principal{ID: "u-1", Role: domain.RoleUser}
	err := f.svc.DeleteBooking(context.Background(), owner, out.Booking.ID)
	require.Error(t, err)

	b, err := f.store.Bookings().Get(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)

	tickets, err := f.store.Tickets().ListByBooking(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	for _, tk := range out.Tickets {
		got, err := f.store.Tickets().GetByNumber(context.Background(), tk.TicketNumber)
		require.NoError(t, err)
		assert.Equal(t, tk.ID, got.ID)
	}

	assert.Equal(t, 3, f.available(t, route.ID))
	assert.NotContains(t, f.events.all(), domain.EventBookingDeleted)
}

func TestCancelBookingRollsBackWhenReleaseFails(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 5)
	out := book(t, f, route.ID, "u-1", 2)

	f.svc.routes = failingRelease{RouteRepository: f.svc.routes}

	owner := domain.Principal{ID: "u-1", Role: domain.RoleUser}
	_, err := f.svc.UpdateBookingStatus(context.Background(), owner, out.Booking.ID, UpdateStatusInput{Status: domain.BookingCancelled})
	require.Error(t, err)

	b, err := f.store.Bookings().Get(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)

	tickets, err := f.store.Tickets().ListByBooking(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	for _, tk := range tickets {
		assert.Equal(t, domain.TicketActive, tk.Status)
	}
	assert.Equal(t, 3, f.available(t, route.ID))
}

func TestCancelBookingKeepsUsedSeats(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 5)
	out := book(t, f, route.ID, "u-1", 3)
	require.Equal(t, 2, f.available(t, route.ID))

	admin := domain.Principal{ID: "a-1", Role: domain.RoleAdmin}
	_, err := f.svc.UpdateBookingStatus(context.Background(), admin, out.Booking.ID, UpdateStatusInput{Status: domain.BookingConfirmed})
	require.NoError(t, err)

	used := out.Tickets[0].ID
	_, err = f.store.Tickets().TransitionStatus(context.Background(), used, domain.TicketActive, domain.TicketUsed, fixedNow)
	require.NoError(t, err)

	_, err = f.svc.UpdateBookingStatus(context.Background(), admin, out.Booking.ID, UpdateStatusInput{Status: domain.BookingCancelled})
	require.NoError(t, err)

	assert.Equal(t, 4, f.available(t, route.ID))

	tickets, err := f.store.Tickets().ListByBooking(context.Background(), out.Booking.ID)
	require.NoError(t, err)
	for _, tk := range tickets {
		if tk.ID == used {
			assert.Equal(t, domain.TicketUsed, tk.Status)
			continue
		}
		assert.Equal(t, domain.TicketCancelled, tk.Status)
	}
}

func TestCancelBookingWithAllTicketsUsed(t *testing.T) {
	f := newFixture(t)
	route := f.route(t, 3)
	out := book(t, f, route.ID, "u-1", 1)

	_, err := f.store.Tickets().TransitionStatus(context.Background(), out.Tickets[0].ID, domain.TicketActive, domain.TicketUsed, fixedNow)
	require.NoError(t, err)

	owner := domain.Principal{ID: "u-1", Role: domain.RoleUser}
	b, err := f.svc.UpdateBookingStatus(context.Background(), owner, out.Booking.ID, UpdateStatusInput{Status: domain.BookingCancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, b.Status)
	assert.Equal(t, 2, f.available(t, route.ID))
}
