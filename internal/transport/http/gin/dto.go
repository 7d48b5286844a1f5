package httpgin

import (
	"time"

	"github.com/kirinyoku/bustix/internal/domain"
)

type PassengerInput struct {
	Name       string `json:"name" binding:"required"`
	Age        int    `json:"age" binding:"gte=0,lte=150"`
	Gender     string `json:"gender"`
	SeatNumber string `json:"seat_number"`
}

type CreateBookingRequest struct {
	RouteID     string           `json:"route_id" binding:"required"`
	Passengers  []PassengerInput `json:"passengers" binding:"required,min=1,dive"`
	TotalAmount int64            `json:"total_amount" binding:"gte=0"`
}

type UpdateBookingStatusRequest struct {
	Status        string  `json:"status" binding:"required"`
	PaymentStatus *string `json:"payment_status"`
}

type ScanTicketRequest struct {
	Credential string `json:"credential" binding:"required"`
}

type VerifyTicketRequest struct {
	TicketNumber string `json:"ticket_number" binding:"required"`
}

type UpdateTicketStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=used cancelled"`
}

type CreateRouteRequest struct {
	From          string `json:"from" binding:"required"`
	To            string `json:"to" binding:"required"`
	DepartureTime string `json:"departure_time" binding:"required"`
	ArrivalTime   string `json:"arrival_time" binding:"required"`
	Price         int64  `json:"price" binding:"gte=0"`
	Agency        string `json:"agency"`
	BusType       string `json:"bus_type"`
	TotalSeats    int    `json:"total_seats" binding:"required,gt=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type InsufficientSeatsResponse struct {
	Error     string `json:"error"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

type BookingListResponse struct {
	Bookings []domain.Booking `json:"bookings"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type TicketListResponse struct {
	Tickets []domain.Ticket `json:"tickets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

func (p PassengerInput) toDomain() domain.Passenger {
	return domain.Passenger{
		Name:       p.Name,
		Age:        p.Age,
		Gender:     p.Gender,
		SeatNumber: p.SeatNumber,
	}
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
