package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository"
)

// RouteCache serves routes through a read-through cache.
type RouteCache interface {
	Route(ctx context.Context, routeID string, loader func(ctx context.Context) (*domain.Route, error)) (*domain.Route, error)
}

type Config struct {
	DefaultPage int
	MaxPage     int
}

type Service struct {
	routes   repository.RouteRepository
	bookings repository.BookingRepository
	tickets  repository.TicketRepository
	cache    RouteCache
	cfg      Config
}

// New builds the read side. cache may be nil, in which case routes are
// always read from the store.
func New(
	routes repository.RouteRepository,
	bookings repository.BookingRepository,
	tickets repository.TicketRepository,
	cache RouteCache,
	cfg Config,
) *Service {
	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 50
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 100
	}

	return &Service{
		routes:   routes,
		bookings: bookings,
		tickets:  tickets,
		cache:    cache,
		cfg:      cfg,
	}
}

func (s *Service) page(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultPage
	}
	if limit > s.cfg.MaxPage {
		return s.cfg.MaxPage
	}
	return limit
}

// GetRoute retrieves a route by its ID, utilizing a caching layer to improve performance.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the route to retrieve.
//
// Returns:
//   - *domain.Route: the retrieved route, or nil if not found.
//   - error: query.ErrRouteNotFound if the route is not found.
func (s *Service) GetRoute(ctx context.Context, id string) (*domain.Route, error) {
	const op = "service.query.GetRoute"

	load := func(ctx context.Context) (*domain.Route, error) {
		r, err := s.routes.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrRouteNotFound
			}
			return nil, err
		}
		return r, nil
	}

	var (
		route *domain.Route
		err   error
	)
	if s.cache != nil {
		route, err = s.cache.Route(ctx, id, load)
	} else {
		route, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return route, nil
}

// ListRoutes lists routes matching f. Date matches the calendar day of
// departure in UTC.
func (s *Service) ListRoutes(ctx context.Context, f domain.RouteFilter) ([]domain.Route, error) {
	const op = "service.query.ListRoutes"

	f.Limit = s.page(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}

	routes, err := s.routes.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return routes, nil
}

// GetBookingWithTickets retrieves a booking along with its tickets.
//
// Parameters:
//   - ctx: request-scoped context.
//   - p: the requesting principal; must own the booking or be staff or admin.
//   - bookingID: ID of the booking to retrieve.
//
// Returns:
//   - *domain.BookingWithTickets: the booking and its tickets.
//   - error: query.ErrBookingNotFound if the booking is not found.
//   - error: query.ErrForbidden if p may not see the booking.
func (s *Service) GetBookingWithTickets(
	ctx context.Context,
	p domain.Principal,
	bookingID string,
) (*domain.BookingWithTickets, error) {
	const op = "service.query.GetBookingWithTickets"

	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if b.Status == domain.BookingIssuing {
		return nil, fmt.Errorf("%s:%w", op, ErrBookingNotFound)
	}

	if b.UserID != p.ID && !p.Privileged() {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	tickets, err := s.tickets.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &domain.BookingWithTickets{Booking: *b, Tickets: tickets}, nil
}

func (s *Service) ListBookings(ctx context.Context, p domain.Principal, limit, offset int) ([]domain.Booking, error) {
	const op = "service.query.ListBookings"

	bookings, err := s.bookings.ListByUser(ctx, p.ID, s.page(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return bookings, nil
}

// GetTicket returns a ticket visible to p.
//
// Returns:
//   - error: query.ErrTicketNotFound if the ticket is not found.
//   - error: query.ErrForbidden if p neither owns the ticket nor is staff or admin.
func (s *Service) GetTicket(ctx context.Context, p domain.Principal, ticketID string) (*domain.Ticket, error) {
	const op = "service.query.GetTicket"

	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if t.UserID != p.ID && !p.Privileged() {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	return t, nil
}

func (s *Service) ListTickets(ctx context.Context, p domain.Principal, limit, offset int) ([]domain.Ticket, error) {
	const op = "service.query.ListTickets"

	tickets, err := s.tickets.ListByUser(ctx, p.ID, s.page(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tickets, nil
}
