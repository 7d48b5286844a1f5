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

type TicketRepo struct {
	s *Store
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.UsedAt != nil {
		at := *t.UsedAt
		t.UsedAt = &at
	}
	return t
}

func sortTickets(ts []domain.Ticket) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].TicketNumber < ts[j].TicketNumber
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}

// CreateBatch validates every ticket before inserting any of them.
func (r *TicketRepo) CreateBatch(ctx context.Context, tickets []domain.Ticket) error {
	const op = "memory.TicketRepo.CreateBatch"

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	seen := make(map[string]struct{}, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}

		if _, ok := r.s.bookings[t.BookingID]; !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		if _, ok := r.s.numbers[t.TicketNumber]; ok {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		if _, ok := seen[t.TicketNumber]; ok {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		if _, ok := r.s.tickets[t.ID]; ok {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		seen[t.TicketNumber] = struct{}{}
	}

	for _, t := range tickets {
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		r.s.tickets[t.ID] = cloneTicket(t)
		r.s.numbers[t.TicketNumber] = t.ID
	}

	created := append([]domain.Ticket(nil), tickets...)
	record(ctx, func() {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		for _, t := range created {
			delete(r.s.numbers, t.TicketNumber)
			delete(r.s.tickets, t.ID)
		}
	})

	return nil
}

func (r *TicketRepo) Get(_ context.Context, id string) (*domain.Ticket, error) {
	const op = "memory.TicketRepo.Get"

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	out := cloneTicket(t)
	return &out, nil
}

func (r *TicketRepo) GetByNumber(_ context.Context, ticketNumber string) (*domain.Ticket, error) {
	const op = "memory.TicketRepo.GetByNumber"

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.numbers[ticketNumber]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	out := cloneTicket(r.s.tickets[id])
	return &out, nil
}

func (r *TicketRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	out := make([]domain.Ticket, 0)
	for _, t := range r.s.tickets {
		if t.UserID == userID {
			out = append(out, cloneTicket(t))
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

func (r *TicketRepo) ListByBooking(_ context.Context, bookingID string) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	out := make([]domain.Ticket, 0)
	for _, t := range r.s.tickets {
		if t.BookingID == bookingID {
			out = append(out, cloneTicket(t))
		}
	}
	r.s.mu.RUnlock()

	sortTickets(out)

	return out, nil
}

func (r *TicketRepo) TransitionStatus(
	ctx context.Context,
	id string,
	from, to domain.TicketStatus,
	at time.Time,
) (*domain.Ticket, error) {
	const op = "memory.TicketRepo.TransitionStatus"

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if t.Status != from {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	prev := cloneTicket(t)
	t.Status = to
	if to == domain.TicketUsed {
		usedAt := at
		t.UsedAt = &usedAt
	}
	t.UpdatedAt = at
	r.s.tickets[id] = t
	record(ctx, func() { r.s.restoreTickets([]domain.Ticket{prev}) })

	out := cloneTicket(t)
	return &out, nil
}

func (r *TicketRepo) CancelByBooking(ctx context.Context, bookingID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var prev []domain.Ticket
	for id, t := range r.s.tickets {
		if t.BookingID != bookingID || t.Status != domain.TicketActive {
			continue
		}
		prev = append(prev, cloneTicket(t))
		t.Status = domain.TicketCancelled
		t.UpdatedAt = at
		r.s.tickets[id] = t
	}
	record(ctx, func() { r.s.restoreTickets(prev) })

	return int64(len(prev)), nil
}

func (r *TicketRepo) DeleteByBooking(ctx context.Context, bookingID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	removed := r.s.deleteTicketsLocked(bookingID)
	record(ctx, func() { r.s.restoreTickets(removed) })

	return nil
}

func (s *Store) deleteTicketsLocked(bookingID string) []domain.Ticket {
	var removed []domain.Ticket
	for id, t := range s.tickets {
		if t.BookingID == bookingID {
			removed = append(removed, t)
			delete(s.numbers, t.TicketNumber)
			delete(s.tickets, id)
		}
	}
	return removed
}

func (s *Store) restoreTickets(ts []domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ts {
		s.tickets[t.ID] = t
		s.numbers[t.TicketNumber] = t.ID
	}
}
