package query

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	routes map[string]*domain.Route
	misses atomic.Int64
}

func (c *mapCache) Route(
	ctx context.Context,
	id string,
	loader func(ctx context.Context) (*domain.Route, error),
) (*domain.Route, error) {
	if r, ok := c.routes[id]; ok {
		return r, nil
	}
	c.misses.Add(1)
	r, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	c.routes[id] = r
	return r, nil
}

func seed(t *testing.T) (*memory.Store, *domain.Booking, []domain.Ticket) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	route := &domain.Route{
		From:          "Kyiv",
		To:            "Lviv",
		DepartureTime: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		ArrivalTime:   time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC),
		TotalSeats:    10,
	}
	require.NoError(t, store.Routes().Create(ctx, route))

	b := &domain.Booking{UserID: "u-1", RouteID: route.ID, Status: domain.BookingPending}
	require.NoError(t, store.Bookings().Create(ctx, b))

	tickets := []domain.Ticket{
		{TicketNumber: "TKT-1-0001", UserID: "u-1", BookingID: b.ID, Status: domain.TicketActive},
		{TicketNumber: "TKT-1-0002", UserID: "u-1", BookingID: b.ID, Status: domain.TicketActive},
	}
	require.NoError(t, store.Tickets().CreateBatch(ctx, tickets))

	return store, b, tickets
}

func TestGetRouteUsesCache(t *testing.T) {
	store, b, _ := seed(t)
	cache := &mapCache{routes: map[string]*domain.Route{}}
	svc := New(store.Routes(), store.Bookings(), store.Tickets(), cache, Config{})

	for i := 0; i < 3; i++ {
		r, err := svc.GetRoute(context.Background(), b.RouteID)
		require.NoError(t, err)
		assert.Equal(t, "Lviv", r.To)
	}
	assert.EqualValues(t, 1, cache.misses.Load())

	_, err := svc.GetRoute(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestGetRouteWithoutCache(t *testing.T) {
	store, b, _ := seed(t)
	svc := New(store.Routes(), store.Bookings(), store.Tickets(), nil, Config{})

	r, err := svc.GetRoute(context.Background(), b.RouteID)
	require.NoError(t, err)
	assert.Equal(t, 10, r.AvailableSeats)
}

func TestGetBookingWithTickets(t *testing.T) {
	store, b, _ := seed(t)
	svc := New(store.Routes(), store.Bookings(), store.Tickets(), nil, Config{})

	out, err := svc.GetBookingWithTickets(context.Background(), domain.Principal{ID: "u-1", Role: domain.RoleUser}, b.ID)
	require.NoError(t, err)
	assert.Len(t, out.Tickets, 2)

	_, err = svc.GetBookingWithTickets(context.Background(), domain.Principal{ID: "u-2", Role: domain.RoleUser}, b.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetBookingWithTickets(context.Background(), domain.Principal{ID: "s-1", Role: domain.RoleStaff}, b.ID)
	assert.NoError(t, err)

	_, err = svc.GetBookingWithTickets(context.Background(), domain.Principal{ID: "u-1"}, "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestBookingBeingIssuedIsHidden(t *testing.T) {
	store, b, _ := seed(t)
	svc := New(store.Routes(), store.Bookings(), store.Tickets(), nil, Config{})
	ctx := context.Background()

	issuing := &domain.Booking{UserID: "u-1", RouteID: b.RouteID, Status: domain.BookingIssuing}
	require.NoError(t, store.Bookings().Create(ctx, issuing))

	_, err := svc.GetBookingWithTickets(ctx, domain.Principal{ID: "a-1", Role: domain.RoleAdmin}, issuing.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	list, err := svc.ListBookings(ctx, domain.Principal{ID: "u-1"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestTicketReads(t *testing.T) {
	store, _, tickets := seed(t)
	svc := New(store.Routes(), store.Bookings(), store.Tickets(), nil, Config{})

	own, err := svc.ListTickets(context.Background(), domain.Principal{ID: "u-1"}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	none, err := svc.ListTickets(context.Background(), domain.Principal{ID: "u-2"}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.GetTicket(context.Background(), domain.Principal{ID: "u-2", Role: domain.RoleUser}, tickets[0].ID)
	assert.ErrorIs(t, err, ErrForbidden)

	tk, err := svc.GetTicket(context.Background(), domain.Principal{ID: "a-1", Role: domain.RoleAdmin}, tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "TKT-1-0001", tk.TicketNumber)

	_, err = svc.GetTicket(context.Background(), domain.Principal{ID: "u-1"}, "missing")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestListBookingsClampsPage(t *testing.T) {
	store, _, _ := seed(t)
	svc := New(store.Routes(), store.Bookings(), store.Tickets(), nil, Config{})

	out, err := svc.ListBookings(context.Background(), domain.Principal{ID: "u-1"}, 1000, -5)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 100, svc.page(1000))
	assert.Equal(t, 50, svc.page(0))
}
