package admin

import (
	"errors"
)

var (
	ErrInvalidRoute  = errors.New("invalid route")
	ErrRouteConflict = errors.New("route already exists")
)
