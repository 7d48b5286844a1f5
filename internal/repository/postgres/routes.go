package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository"
)

const routeColumns = `id, origin, destination, departure_time, arrival_time, price,
	agency, bus_type, total_seats, available_seats, created_at`

type RouteRepo struct {
	pool *pgxpool.Pool
}

func scanRoute(row pgx.Row) (*domain.Route, error) {
	var r domain.Route
	if err := row.Scan(
		&r.ID,
		&r.From,
		&r.To,
		&r.DepartureTime,
		&r.ArrivalTime,
		&r.Price,
		&r.Agency,
		&r.BusType,
		&r.TotalSeats,
		&r.AvailableSeats,
		&r.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a route. ID and CreatedAt are filled in when empty and
// AvailableSeats starts at TotalSeats.
func (r *RouteRepo) Create(ctx context.Context, route *domain.Route) error {
	const op = "postgres.RouteRepo.Create"

	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	route.AvailableSeats = route.TotalSeats

	err := handle(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO routes(id, origin, destination, departure_time, arrival_time,
		                    price, agency, bus_type, total_seats, available_seats)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 RETURNING created_at`,
		route.ID, route.From, route.To, route.DepartureTime, route.ArrivalTime,
		route.Price, route.Agency, route.BusType, route.TotalSeats,
	).Scan(&route.CreatedAt)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves a route by its ID.
//
// Returns:
//   - *domain.Route: the route when found.
//   - error: repository.ErrNotFound if the route is not found.
func (r *RouteRepo) Get(ctx context.Context, id string) (*domain.Route, error) {
	const op = "postgres.RouteRepo.Get"

	route, err := scanRoute(handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return route, nil
}

// List lists routes matching the filter ordered by departure time. Date
// matches the calendar day of the departure in the date's location.
func (r *RouteRepo) List(ctx context.Context, f domain.RouteFilter) ([]domain.Route, error) {
	const op = "postgres.RouteRepo.List"

	var (
		where []string
		args  []any
	)

	if f.From != "" {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("origin ILIKE $%d", len(args)))
	}
	if f.To != "" {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("destination ILIKE $%d", len(args)))
	}
	if f.Date != nil {
		d := *f.Date
		start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		args = append(args, start, start.AddDate(0, 0, 1))
		where = append(where, fmt.Sprintf("departure_time >= $%d AND departure_time < $%d", len(args)-1, len(args)))
	}

	limit, offset := clampPage(f.Limit, f.Offset)

	q := `SELECT ` + routeColumns + ` FROM routes`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	q += fmt.Sprintf(` ORDER BY departure_time, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := handle(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := make([]domain.Route, 0)
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// ReserveSeats atomically checks and decrements available seats.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - routeID: unique identifier of the route.
//   - count: number of seats to take.
//
// Returns:
//   - int: seats still available after the reservation.
//   - error: repository.ErrInsufficientSeats if fewer than count seats remain.
//   - error: repository.ErrNotFound if the route is not found.
func (r *RouteRepo) ReserveSeats(ctx context.Context, routeID string, count int) (int, error) {
	const op = "postgres.RouteRepo.ReserveSeats"

	if count <= 0 {
		return 0, fmt.Errorf("%s: count must be positive", op)
	}

	db := handle(ctx, r.pool)

	var remaining int
	err := db.QueryRow(ctx,
		`UPDATE routes
		 SET available_seats = available_seats - $2
		 WHERE id = $1 AND available_seats >= $2
		 RETURNING available_seats`,
		routeID, count,
	).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapDBErr(op, err)
	}

	// No row updated: either the route is gone or it is short of seats.
	var available int
	err = db.QueryRow(ctx, `SELECT available_seats FROM routes WHERE id = $1`, routeID).Scan(&available)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return available, fmt.Errorf("%s:%w", op, repository.ErrInsufficientSeats)
}

// ReleaseSeats returns seats to the route. The range check on the table
// rejects a release beyond total_seats.
func (r *RouteRepo) ReleaseSeats(ctx context.Context, routeID string, count int) (int, error) {
	const op = "postgres.RouteRepo.ReleaseSeats"

	if count <= 0 {
		return 0, fmt.Errorf("%s: count must be positive", op)
	}

	var available int
	err := handle(ctx, r.pool).QueryRow(ctx,
		`UPDATE routes
		 SET available_seats = available_seats + $2
		 WHERE id = $1
		 RETURNING available_seats`,
		routeID, count,
	).Scan(&available)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return available, nil
}
