package booking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput            = errors.New("invalid booking input")
	ErrRouteNotFound           = errors.New("route not found")
	ErrInsufficientSeats       = errors.New("insufficient seats")
	ErrSeatReservationFailed   = errors.New("seat reservation failed")
	ErrTicketNumberCollision   = errors.New("ticket number collision")
	ErrBookingChanged          = errors.New("booking changed while tickets were issued")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrInvalidStateForDeletion = errors.New("booking is not pending")
	ErrInvalidTransition       = errors.New("invalid booking status transition")
	ErrForbidden               = errors.New("forbidden")
	ErrRateLimited             = errors.New("rate limited")
)

// InsufficientSeatsError reports how many seats the route had left. Lost is
// set when the pre-check passed but another booking took the seats first;
// such an error also matches ErrSeatReservationFailed.
type InsufficientSeatsError struct {
	Available int
	Requested int
	Lost      bool
}

func (e InsufficientSeatsError) Error() string {
	return fmt.Sprintf("insufficient seats: requested %d, available %d", e.Requested, e.Available)
}

func (e InsufficientSeatsError) Is(target error) bool {
	return target == ErrInsufficientSeats || (e.Lost && target == ErrSeatReservationFailed)
}

type RateLimitedError struct {
	RetryAfter int // seconds
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %ds", e.RetryAfter)
}

func (e RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
