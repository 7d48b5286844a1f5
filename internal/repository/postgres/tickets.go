package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository"
)

const ticketColumns = `id, ticket_number, user_id, booking_id, journey_from, journey_to,
	journey_departure_time, journey_arrival_time, seat_number,
	passenger_name, passenger_age, passenger_gender, price, status,
	credential, used_at, created_at, updated_at`

type TicketRepo struct {
	pool *pgxpool.Pool
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t      domain.Ticket
		status string
	)

	if err := row.Scan(
		&t.ID,
		&t.TicketNumber,
		&t.UserID,
		&t.BookingID,
		&t.Journey.From,
		&t.Journey.To,
		&t.Journey.DepartureTime,
		&t.Journey.ArrivalTime,
		&t.Journey.SeatNumber,
		&t.Passenger.Name,
		&t.Passenger.Age,
		&t.Passenger.Gender,
		&t.Price,
		&status,
		&t.Credential,
		&t.UsedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = domain.TicketStatus(status)

	return &t, nil
}

func collectTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	defer rows.Close()

	out := make([]domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}

	return out, rows.Err()
}

// CreateBatch inserts the tickets in one round trip. Callers run it inside
// WithinTx so a failure leaves none of them behind.
//
// Returns:
//   - error: repository.ErrConflict if a ticket number is already taken.
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *TicketRepo) CreateBatch(ctx context.Context, tickets []domain.Ticket) error {
	const op = "postgres.TicketRepo.CreateBatch"

	if len(tickets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range tickets {
		t := &tickets[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}

		batch.Queue(
			`INSERT INTO tickets(id, ticket_number, user_id, booking_id,
			                     journey_from, journey_to, journey_departure_time, journey_arrival_time,
			                     seat_number, passenger_name, passenger_age, passenger_gender,
			                     price, status, credential, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`,
			t.ID, t.TicketNumber, t.UserID, t.BookingID,
			t.Journey.From, t.Journey.To, t.Journey.DepartureTime, t.Journey.ArrivalTime,
			t.Journey.SeatNumber, t.Passenger.Name, t.Passenger.Age, t.Passenger.Gender,
			t.Price, string(t.Status), t.Credential, t.CreatedAt,
		)
	}

	if err := handle(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *TicketRepo) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	const op = "postgres.TicketRepo.Get"

	t, err := scanTicket(handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (r *TicketRepo) GetByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	const op = "postgres.TicketRepo.GetByNumber"

	t, err := scanTicket(handle(ctx, r.pool).QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE ticket_number = $1`,
		ticketNumber,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (r *TicketRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.ListByUser"

	limit, offset = clampPage(limit, offset)

	rows, err := handle(ctx, r.pool).Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectTickets(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *TicketRepo) ListByBooking(ctx context.Context, bookingID string) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.ListByBooking"

	rows, err := handle(ctx, r.pool).Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE booking_id = $1
		 ORDER BY created_at, ticket_number`,
		bookingID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectTickets(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// TransitionStatus flips a ticket from one status to another in a single
// conditional update, so two concurrent scans cannot both consume it.
//
// Returns:
//   - *domain.Ticket: the updated ticket.
//   - error: repository.ErrConflict if the ticket is not in from.
//   - error: repository.ErrNotFound if the ticket is not found.
func (r *TicketRepo) TransitionStatus(
	ctx context.Context,
	id string,
	from, to domain.TicketStatus,
	at time.Time,
) (*domain.Ticket, error) {
	const op = "postgres.TicketRepo.TransitionStatus"

	db := handle(ctx, r.pool)

	t, err := scanTicket(db.QueryRow(ctx,
		`UPDATE tickets
		 SET status = $3,
		     used_at = CASE WHEN $3 = 'used' THEN $4 ELSE used_at END,
		     updated_at = $4
		 WHERE id = $1 AND status = $2
		 RETURNING `+ticketColumns,
		id, string(from), string(to), at,
	))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrapDBErr(op, err)
	}

	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`,
		id,
	).Scan(&exists); err != nil {
		return nil, wrapDBErr(op, err)
	}

	if !exists {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

func (r *TicketRepo) CancelByBooking(ctx context.Context, bookingID string, at time.Time) (int64, error) {
	const op = "postgres.TicketRepo.CancelByBooking"

	tag, err := handle(ctx, r.pool).Exec(ctx,
		`UPDATE tickets
		 SET status = 'cancelled', updated_at = $2
		 WHERE booking_id = $1 AND status = 'active'`,
		bookingID, at,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *TicketRepo) DeleteByBooking(ctx context.Context, bookingID string) error {
	const op = "postgres.TicketRepo.DeleteByBooking"

	if _, err := handle(ctx, r.pool).Exec(ctx,
		`DELETE FROM tickets WHERE booking_id = $1`,
		bookingID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
