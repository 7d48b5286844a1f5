package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/repository"
	"github.com/kirinyoku/bustix/internal/uow"
)

type RouteNotifier interface {
	PublishRouteChanged(ctx context.Context, routeID string, available int) error
}

type Service struct {
	routes   repository.RouteRepository
	notifier RouteNotifier
	uow      *uow.UoW
	logger   *slog.Logger
}

// New builds the admin service. notifier may be nil.
func New(tx repository.Transactor, routes repository.RouteRepository, notifier RouteNotifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Service{
		routes:   routes,
		notifier: notifier,
		uow:      uow.NewUoW(tx),
		logger:   logger,
	}
}

type CreateRouteInput struct {
	From          string
	To            string
	DepartureTime time.Time
	ArrivalTime   time.Time
	Price         int64
	Agency        string
	BusType       string
	TotalSeats    int
}

func (in CreateRouteInput) validate() error {
	switch {
	case strings.TrimSpace(in.From) == "" || strings.TrimSpace(in.To) == "":
		return fmt.Errorf("%w: from and to are required", ErrInvalidRoute)
	case strings.EqualFold(strings.TrimSpace(in.From), strings.TrimSpace(in.To)):
		return fmt.Errorf("%w: from and to must differ", ErrInvalidRoute)
	case in.DepartureTime.IsZero() || in.ArrivalTime.IsZero():
		return fmt.Errorf("%w: departure and arrival times are required", ErrInvalidRoute)
	case !in.ArrivalTime.After(in.DepartureTime):
		return fmt.Errorf("%w: arrival must be after departure", ErrInvalidRoute)
	case in.Price < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalidRoute)
	case in.TotalSeats <= 0:
		return fmt.Errorf("%w: total seats must be positive", ErrInvalidRoute)
	}
	return nil
}

// CreateRoute adds a route to the catalog with every seat available.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: route details.
//
// Returns:
//   - *domain.Route: the created route.
//   - error: admin.ErrInvalidRoute if the input is invalid.
//   - error: admin.ErrRouteConflict if a route with the same ID already exists.
func (s *Service) CreateRoute(ctx context.Context, in CreateRouteInput) (*domain.Route, error) {
	const op = "service.admin.CreateRoute"

	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	route := &domain.Route{
		From:          strings.TrimSpace(in.From),
		To:            strings.TrimSpace(in.To),
		DepartureTime: in.DepartureTime.UTC(),
		ArrivalTime:   in.ArrivalTime.UTC(),
		Price:         in.Price,
		Agency:        in.Agency,
		BusType:       in.BusType,
		TotalSeats:    in.TotalSeats,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		if err := s.routes.Create(ctx, route); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrRouteConflict
			}
			return err
		}

		after(func(ctx context.Context) {
			if s.notifier == nil {
				return
			}
			if err := s.notifier.PublishRouteChanged(ctx, route.ID, route.AvailableSeats); err != nil {
				s.logger.Warn("failed to publish route change", slog.String("route_id", route.ID), slog.Any("error", err))
			}
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.Info("route created",
		slog.String("route_id", route.ID),
		slog.String("from", route.From),
		slog.String("to", route.To),
		slog.Int("total_seats", route.TotalSeats),
	)

	return route, nil
}
