package domain

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// Principal is an authenticated actor as supplied by the auth layer.
type Principal struct {
	ID   string
	Role Role
}

// Privileged reports whether the principal may operate the scanning desk.
func (p Principal) Privileged() bool {
	return p.Role == RoleStaff || p.Role == RoleAdmin
}

type BookingStatus string

const (
	// BookingIssuing marks a booking whose seats and tickets are still being
	// created. It is invisible to readers and cannot be deleted or moved by
	// anyone but the request that created it.
	BookingIssuing   BookingStatus = "issuing"
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentRefunded, PaymentFailed:
		return true
	}
	return false
}

type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketActive, TicketUsed, TicketCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s TicketStatus) Terminal() bool {
	return s == TicketUsed || s == TicketCancelled
}

type Route struct {
	ID             string    `json:"id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	DepartureTime  time.Time `json:"departure_time"`
	ArrivalTime    time.Time `json:"arrival_time"`
	Price          int64     `json:"price"`
	Agency         string    `json:"agency"`
	BusType        string    `json:"bus_type"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	CreatedAt      time.Time `json:"created_at"`
}

type RouteFilter struct {
	From   string
	To     string
	Date   *time.Time
	Limit  int
	Offset int
}

// RouteSnapshot is the part of a route copied into bookings and tickets
// at issuance time.
type RouteSnapshot struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
}

func (r Route) Snapshot() RouteSnapshot {
	return RouteSnapshot{
		From:          r.From,
		To:            r.To,
		DepartureTime: r.DepartureTime,
		ArrivalTime:   r.ArrivalTime,
	}
}

type Passenger struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Gender     string `json:"gender"`
	SeatNumber string `json:"seat_number"`
}

type Booking struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	RouteID       string        `json:"route_id"`
	Journey       RouteSnapshot `json:"journey"`
	Passengers    []Passenger   `json:"passengers"`
	TotalAmount   int64         `json:"total_amount"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TicketIDs     []string      `json:"ticket_ids"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type JourneyDetails struct {
	RouteSnapshot
	SeatNumber string `json:"seat_number"`
}

type TicketPassenger struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

type Ticket struct {
	ID           string          `json:"id"`
	TicketNumber string          `json:"ticket_number"`
	UserID       string          `json:"user_id"`
	BookingID    string          `json:"booking_id"`
	Journey      JourneyDetails  `json:"journey"`
	Passenger    TicketPassenger `json:"passenger"`
	Price        int64           `json:"price"`
	Status       TicketStatus    `json:"status"`
	Credential   string          `json:"credential"`
	UsedAt       *time.Time      `json:"used_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type BookingWithTickets struct {
	Booking Booking  `json:"booking"`
	Tickets []Ticket `json:"tickets"`
}
