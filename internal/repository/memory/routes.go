package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository"
)

type RouteRepo struct {
	s *Store
}

func (r *RouteRepo) Create(ctx context.Context, route *domain.Route) error {
	const op = "memory.RouteRepo.Create"

	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	route.AvailableSeats = route.TotalSeats
	if route.CreatedAt.IsZero() {
		route.CreatedAt = time.Now().UTC()
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.routes[route.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	r.s.routes[route.ID] = &routeEntry{route: *route}

	id := route.ID
	record(ctx, func() {
		r.s.mu.Lock()
		delete(r.s.routes, id)
		r.s.mu.Unlock()
	})

	return nil
}

func (r *RouteRepo) entry(id string) (*routeEntry, bool) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.routes[id]
	return e, ok
}

func (r *RouteRepo) Get(_ context.Context, id string) (*domain.Route, error) {
	const op = "memory.RouteRepo.Get"

	e, ok := r.entry(id)
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	e.mu.Lock()
	route := e.route
	e.mu.Unlock()

	return &route, nil
}

func (r *RouteRepo) List(_ context.Context, f domain.RouteFilter) ([]domain.Route, error) {
	r.s.mu.RLock()
	entries := make([]*routeEntry, 0, len(r.s.routes))
	for _, e := range r.s.routes {
		entries = append(entries, e)
	}
	r.s.mu.RUnlock()

	out := make([]domain.Route, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		route := e.route
		e.mu.Unlock()

		if f.From != "" && !strings.EqualFold(route.From, f.From) {
			continue
		}
		if f.To != "" && !strings.EqualFold(route.To, f.To) {
			continue
		}
		if f.Date != nil {
			dep := route.DepartureTime.In(f.Date.Location())
			y1, m1, d1 := dep.Date()
			y2, m2, d2 := f.Date.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				continue
			}
		}

		out = append(out, route)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DepartureTime.Equal(out[j].DepartureTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].DepartureTime.Before(out[j].DepartureTime)
	})

	return page(out, f.Limit, f.Offset), nil
}

func (r *RouteRepo) ReserveSeats(ctx context.Context, routeID string, count int) (int, error) {
	const op = "memory.RouteRepo.ReserveSeats"

	if count <= 0 {
		return 0, fmt.Errorf("%s: count must be positive", op)
	}

	e, ok := r.entry(routeID)
	if !ok {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.route.AvailableSeats < count {
		return e.route.AvailableSeats, fmt.Errorf("%s:%w", op, repository.ErrInsufficientSeats)
	}

	e.route.AvailableSeats -= count
	record(ctx, func() { e.adjust(count) })

	return e.route.AvailableSeats, nil
}

func (r *RouteRepo) ReleaseSeats(ctx context.Context, routeID string, count int) (int, error) {
	const op = "memory.RouteRepo.ReleaseSeats"

	if count <= 0 {
		return 0, fmt.Errorf("%s: count must be positive", op)
	}

	e, ok := r.entry(routeID)
	if !ok {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.route.AvailableSeats+count > e.route.TotalSeats {
		return e.route.AvailableSeats, fmt.Errorf("%s: release of %d exceeds capacity", op, count)
	}

	e.route.AvailableSeats += count
	record(ctx, func() { e.adjust(-count) })

	return e.route.AvailableSeats, nil
}

func (e *routeEntry) adjust(delta int) {
	e.mu.Lock()
	e.route.AvailableSeats += delta
	e.mu.Unlock()
}
