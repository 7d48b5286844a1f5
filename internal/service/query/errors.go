package query

import (
	"errors"
)

var (
	ErrRouteNotFound   = errors.New("route not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrForbidden       = errors.New("forbidden")
)
