package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository"
)

type BookingRepo struct {
	s *Store
}

func cloneBooking(b domain.Booking) domain.Booking {
	b.Passengers = append([]domain.Passenger(nil), b.Passengers...)
	b.TicketIDs = append([]string{}, b.TicketIDs...)
	return b
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "memory.BookingRepo.Create"

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.TicketIDs == nil {
		b.TicketIDs = []string{}
	}

	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.routes[b.RouteID]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if _, ok := r.s.bookings[b.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	r.s.bookings[b.ID] = cloneBooking(*b)

	id := b.ID
	record(ctx, func() {
		r.s.mu.Lock()
		delete(r.s.bookings, id)
		r.s.mu.Unlock()
	})

	return nil
}

func (r *BookingRepo) Get(_ context.Context, id string) (*domain.Booking, error) {
	const op = "memory.BookingRepo.Get"

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	out := cloneBooking(b)
	return &out, nil
}

func (r *BookingRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.Booking, error) {
	r.s.mu.RLock()
	out := make([]domain.Booking, 0)
	for _, b := range r.s.bookings {
		if b.UserID == userID && b.Status != domain.BookingIssuing {
			out = append(out, cloneBooking(b))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return page(out, limit, offset), nil
}

func (r *BookingRepo) MarkIssued(ctx context.Context, id string, ticketIDs []string) error {
	const op = "memory.BookingRepo.MarkIssued"

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if b.Status != domain.BookingIssuing {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	prev := b
	b.TicketIDs = append([]string{}, ticketIDs...)
	b.Status = domain.BookingPending
	b.UpdatedAt = time.Now().UTC()
	r.s.bookings[id] = b
	record(ctx, func() { r.s.restoreBooking(prev) })

	return nil
}

func (r *BookingRepo) TransitionStatus(
	ctx context.Context,
	id string,
	from, to domain.BookingStatus,
	payment *domain.PaymentStatus,
) (*domain.Booking, error) {
	const op = "memory.BookingRepo.TransitionStatus"

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if b.Status != from {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	prev := cloneBooking(b)
	b.Status = to
	if payment != nil {
		b.PaymentStatus = *payment
	}
	b.UpdatedAt = time.Now().UTC()
	r.s.bookings[id] = b
	record(ctx, func() { r.s.restoreBooking(prev) })

	out := cloneBooking(b)
	return &out, nil
}

// Delete removes the booking and, like the foreign-key cascade in Postgres,
// its tickets.
func (r *BookingRepo) Delete(ctx context.Context, id string, status domain.BookingStatus) error {
	const op = "memory.BookingRepo.Delete"

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if b.Status != status {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	delete(r.s.bookings, id)
	removed := r.s.deleteTicketsLocked(id)
	record(ctx, func() {
		r.s.restoreBooking(b)
		r.s.restoreTickets(removed)
	})

	return nil
}

func (s *Store) restoreBooking(b domain.Booking) {
	s.mu.Lock()
	s.bookings[b.ID] = b
	s.mu.Unlock()
}
