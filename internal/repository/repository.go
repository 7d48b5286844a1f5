// Package repository declares the storage contracts shared by the Postgres
// and in-memory stores.
package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/bustix/internal/domain"
)

// Transactor runs fn so that every repository call made with the ctx it
// receives commits or rolls back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RouteRepository is the route inventory store. AvailableSeats changes only
// through ReserveSeats and ReleaseSeats.
type RouteRepository interface {
	Create(ctx context.Context, r *domain.Route) error
	Get(ctx context.Context, id string) (*domain.Route, error)
	List(ctx context.Context, f domain.RouteFilter) ([]domain.Route, error)

	// ReserveSeats checks available_seats >= count and decrements it in one
	// step. It returns the remaining count, ErrNotFound or
	// ErrInsufficientSeats.
	ReserveSeats(ctx context.Context, routeID string, count int) (int, error)

	// ReleaseSeats gives count seats back and returns the new available count.
	ReleaseSeats(ctx context.Context, routeID string, count int) (int, error)
}

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id string) (*domain.Booking, error)

	// ListByUser leaves out bookings that are still issuing.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Booking, error)

	// MarkIssued records the booking's tickets and moves it from issuing to
	// pending. ErrConflict means the booking is no longer issuing.
	MarkIssued(ctx context.Context, id string, ticketIDs []string) error

	// TransitionStatus moves the booking from one status to another and
	// optionally records a payment status. ErrConflict means the booking was
	// not in from.
	TransitionStatus(
		ctx context.Context,
		id string,
		from, to domain.BookingStatus,
		payment *domain.PaymentStatus,
	) (*domain.Booking, error)

	// Delete removes the booking only while it is in status. ErrConflict
	// means it exists with another status.
	Delete(ctx context.Context, id string, status domain.BookingStatus) error
}

type TicketRepository interface {
	// CreateBatch inserts all tickets or none. A duplicate ticket number is
	// ErrConflict.
	CreateBatch(ctx context.Context, tickets []domain.Ticket) error
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error)
	ListByBooking(ctx context.Context, bookingID string) ([]domain.Ticket, error)

	// TransitionStatus is a compare-and-set on status. UsedAt is stamped with
	// at when moving to used. ErrConflict means the ticket was not in from.
	TransitionStatus(
		ctx context.Context,
		id string,
		from, to domain.TicketStatus,
		at time.Time,
	) (*domain.Ticket, error)

	// CancelByBooking cancels every active ticket of the booking.
	CancelByBooking(ctx context.Context, bookingID string, at time.Time) (int64, error)
	DeleteByBooking(ctx context.Context, bookingID string) error
}
