package verification

import (
	"errors"
)

var (
	ErrTicketNotActive   = errors.New("ticket not found or not active")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrOwnerMismatch     = errors.New("ticket owner does not match credential")
	ErrWrongDay          = errors.New("ticket is not valid for travel today")
	ErrInvalidTransition = errors.New("invalid ticket status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
)
