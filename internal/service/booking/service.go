package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/metrics"
	"github.com/kirinyoku/bustix/internal/repository"
	"github.com/kirinyoku/bustix/internal/tracing"
	"github.com/kirinyoku/bustix/internal/uow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CredentialEncoder mints the signed QR payload for a ticket.
type CredentialEncoder interface {
	Encode(ticketNumber, userID string, now time.Time) (string, error)
}

type RouteCache interface {
	InvalidateRoute(ctx context.Context, routeID string) error
}

type RouteNotifier interface {
	PublishRouteChanged(ctx context.Context, routeID string, available int) error
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, data map[string]any) error
}

type RateLimiter interface {
	Allow(ctx context.Context, suffix string) (bool, time.Duration, error)
}

// Deps wires the service. Cache, Notifier, Events and Limiter are optional.
type Deps struct {
	Tx       repository.Transactor
	Routes   repository.RouteRepository
	Bookings repository.BookingRepository
	Tickets  repository.TicketRepository
	Codec    CredentialEncoder

	Cache    RouteCache
	Notifier RouteNotifier
	Events   EventPublisher
	Limiter  RateLimiter
	Logger   *slog.Logger

	// Now and TicketNumber default to time.Now and NewTicketNumber.
	Now          func() time.Time
	TicketNumber func(now time.Time) string
}

type Service struct {
	routes   repository.RouteRepository
	bookings repository.BookingRepository
	tickets  repository.TicketRepository
	uow      *uow.UoW
	codec    CredentialEncoder

	cache    RouteCache
	notifier RouteNotifier
	events   EventPublisher
	limiter  RateLimiter
	logger   *slog.Logger

	now          func() time.Time
	ticketNumber func(now time.Time) string
}

func New(d Deps) *Service {
	s := &Service{
		routes:       d.Routes,
		bookings:     d.Bookings,
		tickets:      d.Tickets,
		uow:          uow.NewUoW(d.Tx),
		codec:        d.Codec,
		cache:        d.Cache,
		notifier:     d.Notifier,
		events:       d.Events,
		limiter:      d.Limiter,
		logger:       d.Logger,
		now:          d.Now,
		ticketNumber: d.TicketNumber,
	}

	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ticketNumber == nil {
		s.ticketNumber = NewTicketNumber
	}

	return s
}

// NewTicketNumber returns TKT-<unix ms>-<4 random digits>. Uniqueness is
// enforced by storage, not here.
func NewTicketNumber(now time.Time) string {
	return fmt.Sprintf("TKT-%d-%04d", now.UnixMilli(), rand.IntN(10000))
}

type CreateBookingInput struct {
	UserID      string
	RouteID     string
	Passengers  []domain.Passenger
	TotalAmount int64

	// RateLimitKey identifies the client for the booking rate limit. Empty
	// disables the check.
	RateLimitKey string
}

func (in CreateBookingInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.RouteID) == "" {
		return fmt.Errorf("%w: route id is required", ErrInvalidInput)
	}
	if len(in.Passengers) == 0 {
		return fmt.Errorf("%w: at least one passenger is required", ErrInvalidInput)
	}
	if in.TotalAmount < 0 {
		return fmt.Errorf("%w: total amount must not be negative", ErrInvalidInput)
	}

	seats := make(map[string]struct{}, len(in.Passengers))
	for i, p := range in.Passengers {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: passenger %d: name is required", ErrInvalidInput, i)
		}
		if p.Age < 0 || p.Age > 150 {
			return fmt.Errorf("%w: passenger %d: age out of range", ErrInvalidInput, i)
		}
		if p.SeatNumber == "" {
			continue
		}
		if _, dup := seats[p.SeatNumber]; dup {
			return fmt.Errorf("%w: seat %s assigned twice", ErrInvalidInput, p.SeatNumber)
		}
		seats[p.SeatNumber] = struct{}{}
	}

	return nil
}

// CreateBooking reserves seats on a route and issues one ticket per
// passenger.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: the booking request.
//
// Returns:
//   - *domain.BookingWithTickets: the booking and its tickets, in passenger order.
//   - error: booking.ErrInvalidInput if the request is malformed.
//   - error: booking.ErrRouteNotFound if the route does not exist.
//   - error: booking.InsufficientSeatsError if the route cannot take the passengers.
//   - error: booking.ErrTicketNumberCollision if a ticket number was already taken.
//   - error: booking.ErrRateLimited if the client exceeded the booking rate.
//
// Once seats are reserved the operation runs to completion or is fully
// rolled back even if ctx is cancelled.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*domain.BookingWithTickets, error) {
	const op = "service.booking.CreateBooking"

	ctx, span := tracing.StartSpan(ctx, op)
	defer span.End()
	span.SetAttributes(
		attribute.String("route.id", in.RouteID),
		attribute.Int("passengers", len(in.Passengers)),
	)

	out, err := s.createBooking(ctx, in)
	if err != nil {
		metrics.BookingsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, failureReason(err))
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	metrics.BookingsCreatedTotal.Inc()
	metrics.TicketsIssuedTotal.Add(float64(len(out.Tickets)))

	return out, nil
}

func (s *Service) createBooking(ctx context.Context, in CreateBookingInput) (*domain.BookingWithTickets, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if err := s.allow(ctx, in.RateLimitKey); err != nil {
		return nil, err
	}

	route, err := s.routes.Get(ctx, in.RouteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}

	n := len(in.Passengers)
	if route.AvailableSeats < n {
		return nil, InsufficientSeatsError{Available: route.AvailableSeats, Requested: n}
	}

	b := &domain.Booking{
		UserID:        in.UserID,
		RouteID:       route.ID,
		Journey:       route.Snapshot(),
		Passengers:    append([]domain.Passenger(nil), in.Passengers...),
		TotalAmount:   in.TotalAmount,
		Status:        domain.BookingIssuing,
		PaymentStatus: domain.PaymentPending,
	}

	if err := s.bookings.Create(ctx, b); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}

	// Past this point a half-finished booking must not survive a client
	// disconnect.
	ctx = context.WithoutCancel(ctx)

	remaining, err := s.reserve(ctx, route.ID, n)
	if err != nil {
		_ = s.compensate(ctx, "delete_booking", func(ctx context.Context) error {
			return s.bookings.Delete(ctx, b.ID, domain.BookingIssuing)
		})

		switch {
		case errors.Is(err, repository.ErrInsufficientSeats):
			return nil, InsufficientSeatsError{Available: remaining, Requested: n, Lost: true}
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRouteNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrSeatReservationFailed, err)
	}

	tickets, err := s.issue(ctx, b, route, remaining)
	if err != nil {
		s.rollback(ctx, b, n)

		if errors.Is(err, ErrTicketNumberCollision) {
			s.logger.Warn("ticket number collision",
				slog.String("reason", "ticket_number_collision"),
				slog.String("booking_id", b.ID),
			)
		}
		return nil, err
	}

	b.Status = domain.BookingPending
	b.TicketIDs = make([]string, len(tickets))
	for i, t := range tickets {
		b.TicketIDs[i] = t.ID
	}

	return &domain.BookingWithTickets{Booking: *b, Tickets: tickets}, nil
}

func (s *Service) allow(ctx context.Context, key string) error {
	if s.limiter == nil || key == "" {
		return nil
	}

	ok, retry, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// limiter outage must not block bookings
		s.logger.Warn("rate limiter unavailable", slog.Any("error", err))
		return nil
	}
	if !ok {
		return RateLimitedError{RetryAfter: int(math.Ceil(retry.Seconds()))}
	}

	return nil
}

func (s *Service) reserve(ctx context.Context, routeID string, n int) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "service.booking.reserveSeats")
	defer span.End()

	start := time.Now()
	remaining, err := s.routes.ReserveSeats(ctx, routeID, n)
	metrics.SeatReserveLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		reason := "error"
		if errors.Is(err, repository.ErrInsufficientSeats) {
			reason = "insufficient_seats"
		}
		metrics.SeatReservationsFailed.WithLabelValues(reason).Inc()
		span.RecordError(err)
		return remaining, err
	}

	return remaining, nil
}

// issue mints one ticket per passenger and persists them together with the
// booking's ticket list, moving the booking from issuing to pending.
func (s *Service) issue(
	ctx context.Context,
	b *domain.Booking,
	route *domain.Route,
	remaining int,
) ([]domain.Ticket, error) {
	now := s.now().UTC()
	n := len(b.Passengers)
	price := b.TotalAmount / int64(n)

	tickets := make([]domain.Ticket, n)
	seen := make(map[string]struct{}, n)

	for i, p := range b.Passengers {
		number := s.ticketNumber(now)
		// avoid colliding with a sibling minted in the same millisecond
		for tries := 0; tries < 10; tries++ {
			if _, dup := seen[number]; !dup {
				break
			}
			number = s.ticketNumber(now)
		}
		seen[number] = struct{}{}

		cred, err := s.codec.Encode(number, b.UserID, now)
		if err != nil {
			return nil, err
		}

		tickets[i] = domain.Ticket{
			TicketNumber: number,
			UserID:       b.UserID,
			BookingID:    b.ID,
			Journey: domain.JourneyDetails{
				RouteSnapshot: b.Journey,
				SeatNumber:    p.SeatNumber,
			},
			Passenger: domain.TicketPassenger{
				Name:   p.Name,
				Age:    p.Age,
				Gender: p.Gender,
			},
			Price:      price,
			Status:     domain.TicketActive,
			Credential: cred,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		if err := s.tickets.CreateBatch(ctx, tickets); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: %w", ErrTicketNumberCollision, err)
			}
			return err
		}

		ids := make([]string, len(tickets))
		for i, t := range tickets {
			ids[i] = t.ID
		}

		if err := s.bookings.MarkIssued(ctx, b.ID, ids); err != nil {
			if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %w", ErrBookingChanged, err)
			}
			return err
		}

		after(func(ctx context.Context) {
			s.routeChanged(ctx, route.ID, remaining)
			s.publish(ctx, domain.EventBookingCreated, b.ID, map[string]any{
				"booking_id":   b.ID,
				"user_id":      b.UserID,
				"route_id":     b.RouteID,
				"passengers":   n,
				"total_amount": b.TotalAmount,
				"ticket_ids":   ids,
			})
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return tickets, nil
}

// rollback undoes a booking whose seats were reserved but whose tickets
// could not be issued. The seats go back only once the issuing booking is
// gone; if it was already removed or moved on, they are no longer ours.
func (s *Service) rollback(ctx context.Context, b *domain.Booking, seats int) {
	_ = s.compensate(ctx, "delete_tickets", func(ctx context.Context) error {
		return s.tickets.DeleteByBooking(ctx, b.ID)
	})

	err := s.compensate(ctx, "delete_booking", func(ctx context.Context) error {
		return s.bookings.Delete(ctx, b.ID, domain.BookingIssuing)
	})
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrConflict) {
		s.logger.Warn("booking left issuing during rollback, seats kept",
			slog.String("booking_id", b.ID),
			slog.Int("seats", seats),
		)
		return
	}

	_ = s.compensate(ctx, "release_seats", func(ctx context.Context) error {
		_, err := s.routes.ReleaseSeats(ctx, b.RouteID, seats)
		return err
	})
}

func (s *Service) compensate(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		metrics.CompensationsTotal.WithLabelValues(action, "error").Inc()
		s.logger.Error("compensation failed",
			slog.String("action", action),
			slog.Any("error", err),
		)
		return err
	}
	metrics.CompensationsTotal.WithLabelValues(action, "ok").Inc()
	return nil
}

// DeleteBooking removes a pending booking, its tickets, and gives its seats
// back to the route.
//
// Returns:
//   - error: booking.ErrBookingNotFound if the booking does not exist.
//   - error: booking.ErrForbidden if p is neither the owner nor an admin.
//   - error: booking.ErrInvalidStateForDeletion if the booking is not pending.
func (s *Service) DeleteBooking(ctx context.Context, p domain.Principal, bookingID string) error {
	const op = "service.booking.DeleteBooking"

	ctx, span := tracing.StartSpan(ctx, op)
	defer span.End()

	b, err := s.loadOwned(ctx, p, bookingID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if b.Status != domain.BookingPending {
		return fmt.Errorf("%s:%w", op, ErrInvalidStateForDeletion)
	}

	ctx = context.WithoutCancel(ctx)
	seats := len(b.Passengers)

	err = s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		if err := s.bookings.Delete(ctx, b.ID, domain.BookingPending); err != nil {
			switch {
			case errors.Is(err, repository.ErrConflict):
				return ErrInvalidStateForDeletion
			case errors.Is(err, repository.ErrNotFound):
				return ErrBookingNotFound
			}
			return err
		}

		if err := s.tickets.DeleteByBooking(ctx, b.ID); err != nil {
			return err
		}

		available, err := s.routes.ReleaseSeats(ctx, b.RouteID, seats)
		if err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.routeChanged(ctx, b.RouteID, available)
			s.publish(ctx, domain.EventBookingDeleted, b.ID, map[string]any{
				"booking_id":     b.ID,
				"route_id":       b.RouteID,
				"released_seats": seats,
				"deleted_by":     p.ID,
			})
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	metrics.BookingsDeletedTotal.Inc()

	return nil
}

var bookingTransitions = map[domain.BookingStatus][]domain.BookingStatus{
	domain.BookingPending:   {domain.BookingConfirmed, domain.BookingCancelled},
	domain.BookingConfirmed: {domain.BookingCompleted, domain.BookingCancelled},
}

func canTransition(from, to domain.BookingStatus) bool {
	for _, s := range bookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type UpdateStatusInput struct {
	Status        domain.BookingStatus
	PaymentStatus *domain.PaymentStatus
}

// UpdateBookingStatus moves a booking along its lifecycle. Cancelling
// cancels every active ticket of the booking and releases the seats of all
// tickets that were not already used.
//
// Returns:
//   - *domain.Booking: the updated booking.
//   - error: booking.ErrBookingNotFound if the booking does not exist.
//   - error: booking.ErrForbidden if p is neither the owner nor an admin.
//   - error: booking.ErrInvalidTransition if the move is not allowed from the current status.
func (s *Service) UpdateBookingStatus(
	ctx context.Context,
	p domain.Principal,
	bookingID string,
	in UpdateStatusInput,
) (*domain.Booking, error) {
	const op = "service.booking.UpdateBookingStatus"

	ctx, span := tracing.StartSpan(ctx, op)
	defer span.End()

	if !in.Status.Valid() {
		return nil, fmt.Errorf("%s:%w: unknown status %q", op, ErrInvalidInput, in.Status)
	}
	if in.PaymentStatus != nil && !in.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%s:%w: unknown payment status %q", op, ErrInvalidInput, *in.PaymentStatus)
	}

	b, err := s.loadOwned(ctx, p, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !canTransition(b.Status, in.Status) {
		return nil, fmt.Errorf("%s:%w: %s -> %s", op, ErrInvalidTransition, b.Status, in.Status)
	}

	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()

	var updated *domain.Booking
	err = s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		u, err := s.bookings.TransitionStatus(ctx, b.ID, b.Status, in.Status, in.PaymentStatus)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrInvalidTransition
			}
			return err
		}
		updated = u

		available, released := -1, 0
		if in.Status == domain.BookingCancelled {
			if _, err := s.tickets.CancelByBooking(ctx, b.ID, now); err != nil {
				return err
			}
			if released, err = s.releasable(ctx, b); err != nil {
				return err
			}
			if released > 0 {
				if available, err = s.routes.ReleaseSeats(ctx, b.RouteID, released); err != nil {
					return err
				}
			}
		}

		after(func(ctx context.Context) {
			if available >= 0 {
				s.routeChanged(ctx, b.RouteID, available)
			}
			s.publish(ctx, domain.EventBookingStatusChanged, b.ID, map[string]any{
				"booking_id":     b.ID,
				"from":           string(b.Status),
				"to":             string(in.Status),
				"changed_by":     p.ID,
				"released_seats": released,
			})
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	metrics.BookingStatusChangesTotal.WithLabelValues(string(in.Status)).Inc()

	return updated, nil
}

// releasable returns how many of the booking's seats can go back to the
// route. A seat whose ticket was used stays consumed.
func (s *Service) releasable(ctx context.Context, b *domain.Booking) (int, error) {
	tickets, err := s.tickets.ListByBooking(ctx, b.ID)
	if err != nil {
		return 0, err
	}

	used := 0
	for _, t := range tickets {
		if t.Status == domain.TicketUsed {
			used++
		}
	}

	return max(len(b.Passengers)-used, 0), nil
}

func (s *Service) loadOwned(ctx context.Context, p domain.Principal, bookingID string) (*domain.Booking, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	// still being created by CreateBooking
	if b.Status == domain.BookingIssuing {
		return nil, ErrBookingNotFound
	}

	if b.UserID != p.ID && p.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}

	return b, nil
}

func (s *Service) routeChanged(ctx context.Context, routeID string, available int) {
	if s.cache != nil {
		if err := s.cache.InvalidateRoute(ctx, routeID); err != nil {
			s.logger.Warn("failed to invalidate route cache", slog.String("route_id", routeID), slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.PublishRouteChanged(ctx, routeID, available); err != nil {
			s.logger.Warn("failed to publish route change", slog.String("route_id", routeID), slog.Any("error", err))
		}
	}
}

func (s *Service) publish(ctx context.Context, eventType, key string, data map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, eventType, key, data)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRouteNotFound):
		return "route_not_found"
	case errors.Is(err, ErrSeatReservationFailed):
		return "seat_reservation_failed"
	case errors.Is(err, ErrInsufficientSeats):
		return "insufficient_seats"
	case errors.Is(err, ErrTicketNumberCollision):
		return "ticket_number_collision"
	case errors.Is(err, ErrBookingChanged):
		return "booking_changed"
	}
	return "internal"
}
