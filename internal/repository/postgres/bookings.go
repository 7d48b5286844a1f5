package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository"
)

const bookingColumns = `id, user_id, route_id, journey_from, journey_to,
	journey_departure_time, journey_arrival_time, passengers, total_amount,
	status, payment_status, ticket_ids, created_at, updated_at`

type BookingRepo struct {
	pool *pgxpool.Pool
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b          domain.Booking
		passengers []byte
		status     string
		payment    string
	)

	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.RouteID,
		&b.Journey.From,
		&b.Journey.To,
		&b.Journey.DepartureTime,
		&b.Journey.ArrivalTime,
		&passengers,
		&b.TotalAmount,
		&status,
		&payment,
		&b.TicketIDs,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(passengers, &b.Passengers); err != nil {
		return nil, fmt.Errorf("decode passengers: %w", err)
	}

	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(payment)
	if b.TicketIDs == nil {
		b.TicketIDs = []string{}
	}

	return &b, nil
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.TicketIDs == nil {
		b.TicketIDs = []string{}
	}

	passengers, err := marshalJSONB(b.Passengers)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	err = handle(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO bookings(id, user_id, route_id, journey_from, journey_to,
		                      journey_departure_time, journey_arrival_time,
		                      passengers, total_amount, status, payment_status, ticket_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		b.ID, b.UserID, b.RouteID, b.Journey.From, b.Journey.To,
		b.Journey.DepartureTime, b.Journey.ArrivalTime,
		passengers, b.TotalAmount, string(b.Status), string(b.PaymentStatus), b.TicketIDs,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves a booking by its ID.
//
// Returns:
//   - *domain.Booking: the booking when found.
//   - error: repository.ErrNotFound if the booking is not found.
func (r *BookingRepo) Get(ctx context.Context, id string) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	b, err := scanBooking(handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

func (r *BookingRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListByUser"

	limit, offset = clampPage(limit, offset)

	rows, err := handle(ctx, r.pool).Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_id = $1 AND status <> $4
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset, string(domain.BookingIssuing),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// MarkIssued stores the ticket ids and flips the booking from issuing to
// pending in one conditional update.
//
// Returns:
//   - error: repository.ErrConflict if the booking is no longer issuing.
//   - error: repository.ErrNotFound if the booking is not found.
func (r *BookingRepo) MarkIssued(ctx context.Context, id string, ticketIDs []string) error {
	const op = "postgres.BookingRepo.MarkIssued"

	db := handle(ctx, r.pool)

	tag, err := db.Exec(ctx,
		`UPDATE bookings
		 SET ticket_ids = $2, status = $4, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id, ticketIDs, string(domain.BookingIssuing), string(domain.BookingPending),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	if err := r.existsOrNotFound(ctx, db, id); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

// TransitionStatus moves a booking from one status to another.
//
// Returns:
//   - *domain.Booking: the updated booking.
//   - error: repository.ErrConflict if the booking is not in from.
//   - error: repository.ErrNotFound if the booking is not found.
func (r *BookingRepo) TransitionStatus(
	ctx context.Context,
	id string,
	from, to domain.BookingStatus,
	payment *domain.PaymentStatus,
) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.TransitionStatus"

	var paymentArg *string
	if payment != nil {
		s := string(*payment)
		paymentArg = &s
	}

	db := handle(ctx, r.pool)

	b, err := scanBooking(db.QueryRow(ctx,
		`UPDATE bookings
		 SET status = $3,
		     payment_status = COALESCE($4, payment_status),
		     updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+bookingColumns,
		id, string(from), string(to), paymentArg,
	))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrapDBErr(op, err)
	}

	if err := r.existsOrNotFound(ctx, db, id); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

// Delete removes the booking while it is still in status. Its tickets go
// with it.
func (r *BookingRepo) Delete(ctx context.Context, id string, status domain.BookingStatus) error {
	const op = "postgres.BookingRepo.Delete"

	db := handle(ctx, r.pool)

	tag, err := db.Exec(ctx,
		`DELETE FROM bookings WHERE id = $1 AND status = $2`,
		id, string(status),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	if err := r.existsOrNotFound(ctx, db, id); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

func (r *BookingRepo) existsOrNotFound(ctx context.Context, db DB, id string) error {
	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`,
		id,
	).Scan(&exists); err != nil {
		return translateDBErr(err)
	}

	if !exists {
		return repository.ErrNotFound
	}

	return nil
}
