package service

import (
	"log/slog"
	"time"

	"github.com/kirinyoku/bustix/internal/credential"
	"github.com/kirinyoku/bustix/internal/repository"
	"github.com/kirinyoku/bustix/internal/service/admin"
	"github.com/kirinyoku/bustix/internal/service/booking"
	"github.com/kirinyoku/bustix/internal/service/query"
	"github.com/kirinyoku/bustix/internal/service/verification"
)

type Services struct {
	Booking      *booking.Service
	Verification *verification.Service
	Query        *query.Service
	Admin        *admin.Service
}

// Repositories is what every service needs from storage.
type Repositories struct {
	Tx       repository.Transactor
	Routes   repository.RouteRepository
	Bookings repository.BookingRepository
	Tickets  repository.TicketRepository
}

// Deps carries the optional collaborators. Leave a field nil to disable
// it; do not assign a typed nil pointer.
type Deps struct {
	Cache interface {
		booking.RouteCache
		query.RouteCache
	}
	Notifier booking.RouteNotifier
	Events   booking.EventPublisher
	Limiter  booking.RateLimiter
	Logger   *slog.Logger
}

type Config struct {
	Query    query.Config
	Location *time.Location
}

func NewServices(repos Repositories, codec *credential.Codec, deps Deps, cfg Config) *Services {
	var (
		bookingCache booking.RouteCache
		queryCache   query.RouteCache
	)
	if deps.Cache != nil {
		bookingCache, queryCache = deps.Cache, deps.Cache
	}

	return &Services{
		Booking: booking.New(booking.Deps{
			Tx:       repos.Tx,
			Routes:   repos.Routes,
			Bookings: repos.Bookings,
			Tickets:  repos.Tickets,
			Codec:    codec,
			Cache:    bookingCache,
			Notifier: deps.Notifier,
			Events:   deps.Events,
			Limiter:  deps.Limiter,
			Logger:   deps.Logger,
		}),
		Verification: verification.New(verification.Deps{
			Tickets:  repos.Tickets,
			Codec:    codec,
			Events:   deps.Events,
			Logger:   deps.Logger,
			Location: cfg.Location,
		}),
		Query: query.New(repos.Routes, repos.Bookings, repos.Tickets, queryCache, cfg.Query),
		Admin: admin.New(repos.Tx, repos.Routes, deps.Notifier, deps.Logger),
	}
}
