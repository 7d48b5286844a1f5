// Package memory is an in-process implementation of the repository
// contracts. Seat reservation is serialized per route with a mutex, so it
// has the same no-oversell guarantee as the Postgres conditional update.
package memory

import (
	"context"
	"sync"

	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository"
)

var (
	_ repository.Transactor        = (*Store)(nil)
	_ repository.RouteRepository   = (*RouteRepo)(nil)
	_ repository.BookingRepository = (*BookingRepo)(nil)
	_ repository.TicketRepository  = (*TicketRepo)(nil)
)

type routeEntry struct {
	mu    sync.Mutex
	route domain.Route
}

type Store struct {
	mu sync.RWMutex

	routes   map[string]*routeEntry
	bookings map[string]domain.Booking
	tickets  map[string]domain.Ticket
	numbers  map[string]string // ticket number -> ticket id
}

func NewStore() *Store {
	return &Store{
		routes:   make(map[string]*routeEntry),
		bookings: make(map[string]domain.Booking),
		tickets:  make(map[string]domain.Ticket),
		numbers:  make(map[string]string),
	}
}

type journalKey struct{}

// journal collects undo steps for the writes made inside one WithinTx.
type journal struct {
	mu   sync.Mutex
	undo []func()
}

// record registers undo for the write just made with ctx. Outside WithinTx
// it does nothing.
func record(ctx context.Context, undo func()) {
	j, ok := ctx.Value(journalKey{}).(*journal)
	if !ok {
		return
	}

	j.mu.Lock()
	j.undo = append(j.undo, undo)
	j.mu.Unlock()
}

func (j *journal) rollback() {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// WithinTx runs fn and, if it fails, undoes every write fn made in reverse
// order. Writes are not isolated from concurrent callers while fn runs.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}

	return nil
}

func (s *Store) Routes() *RouteRepo     { return &RouteRepo{s: s} }
func (s *Store) Bookings() *BookingRepo { return &BookingRepo{s: s} }
func (s *Store) Tickets() *TicketRepo   { return &TicketRepo{s: s} }

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	return items[offset:end]
}
