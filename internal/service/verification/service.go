// Package verification consumes tickets at boarding.
//
// Scan authenticates the QR credential before it touches storage and then
// flips the ticket from active to used with a compare-and-set, so two
// scanners racing on the same ticket produce exactly one success.
// VerifyByTicketNumber skips the credential and therefore the ownership
// check; it exists for printed tickets and is limited to staff and admins.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/bustix/internal/credential"
	"github.com/kirinyoku/bustix/internal/domain"
	"github.com/kirinyoku/bustix/internal/metrics"
	"github.com/kirinyoku/bustix/internal/repository"
	"github.com/kirinyoku/bustix/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	methodScan     = "scan"
	methodByNumber = "ticket_number"
)

type CredentialDecoder interface {
	Decode(credential string) (*credential.Claims, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, data map[string]any) error
}

type Deps struct {
	Tickets repository.TicketRepository
	Codec   CredentialDecoder
	Events  EventPublisher // optional
	Logger  *slog.Logger

	// Location defines the verifier's calendar day. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	tickets repository.TicketRepository
	codec   CredentialDecoder
	events  EventPublisher
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		tickets: d.Tickets,
		codec:   d.Codec,
		events:  d.Events,
		logger:  d.Logger,
		loc:     d.Location,
		now:     d.Now,
	}

	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Scan verifies a presented credential and consumes the ticket it names.
//
// Parameters:
//   - ctx: request-scoped context.
//   - p: the scanning principal, must be staff or admin.
//   - cred: the credential read from the QR code.
//
// Returns:
//   - *domain.Ticket: the ticket, now used.
//   - error: one of the credential package errors if the credential is not genuine or has expired.
//   - error: verification.ErrTicketNotActive if the ticket is unknown, used or cancelled.
//   - error: verification.ErrOwnerMismatch if the ticket belongs to someone other than the credential's holder.
//   - error: verification.ErrWrongDay if the ticket is for another travel day.
//   - error: verification.ErrForbidden if p may not scan.
func (s *Service) Scan(ctx context.Context, p domain.Principal, cred string) (*domain.Ticket, error) {
	const op = "service.verification.Scan"

	ctx, span := tracing.StartSpan(ctx, op)
	defer span.End()

	t, err := s.scan(ctx, p, cred)
	s.observe(methodScan, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, resultLabel(err))
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	span.SetAttributes(attribute.String("ticket.number", t.TicketNumber))

	return t, nil
}

func (s *Service) scan(ctx context.Context, p domain.Principal, cred string) (*domain.Ticket, error) {
	if !p.Privileged() {
		return nil, ErrForbidden
	}

	claims, err := s.codec.Decode(strings.TrimSpace(cred))
	if err != nil {
		reason := rejectReason(err)
		s.logger.Warn("ticket scan rejected",
			slog.String("reason", reason),
			slog.String("scanned_by", p.ID),
		)
		s.publish(ctx, domain.EventTicketScanRejected, p.ID, map[string]any{
			"reason":     reason,
			"scanned_by": p.ID,
		})
		return nil, err
	}

	t, err := s.activeTicket(ctx, claims.TicketNumber)
	if err != nil {
		return nil, err
	}

	if t.UserID != claims.UserID {
		s.logger.Warn("ticket scan rejected",
			slog.String("reason", "owner_mismatch"),
			slog.String("ticket_number", t.TicketNumber),
			slog.String("scanned_by", p.ID),
		)
		s.publish(ctx, domain.EventTicketScanRejected, t.TicketNumber, map[string]any{
			"reason":        "owner_mismatch",
			"ticket_number": t.TicketNumber,
			"scanned_by":    p.ID,
		})
		return nil, ErrOwnerMismatch
	}

	return s.consume(ctx, p, t, methodScan)
}

// VerifyByTicketNumber consumes a ticket identified only by its printed
// number. Nothing proves the bearer owns the ticket, so it is restricted to
// staff and admins.
//
// Returns:
//   - *domain.Ticket: the ticket, now used.
//   - error: verification.ErrTicketNotActive if the ticket is unknown, used or cancelled.
//   - error: verification.ErrWrongDay if the ticket is for another travel day.
//   - error: verification.ErrForbidden if p may not verify.
func (s *Service) VerifyByTicketNumber(ctx context.Context, p domain.Principal, ticketNumber string) (*domain.Ticket, error) {
	const op = "service.verification.VerifyByTicketNumber"

	ctx, span := tracing.StartSpan(ctx, op)
	defer span.End()

	t, err := s.verifyByNumber(ctx, p, strings.TrimSpace(ticketNumber))
	s.observe(methodByNumber, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, resultLabel(err))
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return t, nil
}

func (s *Service) verifyByNumber(ctx context.Context, p domain.Principal, ticketNumber string) (*domain.Ticket, error) {
	if !p.Privileged() {
		return nil, ErrForbidden
	}
	if ticketNumber == "" {
		return nil, fmt.Errorf("%w: ticket number is required", ErrInvalidInput)
	}

	t, err := s.activeTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket verified by number without credential",
		slog.String("ticket_number", t.TicketNumber),
		slog.String("verified_by", p.ID),
	)

	return s.consume(ctx, p, t, methodByNumber)
}

func (s *Service) activeTicket(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	t, err := s.tickets.GetByNumber(ctx, ticketNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTicketNotActive
		}
		return nil, err
	}

	if t.Status != domain.TicketActive {
		return nil, ErrTicketNotActive
	}

	return t, nil
}

// consume checks the travel day and marks t used.
func (s *Service) consume(ctx context.Context, p domain.Principal, t *domain.Ticket, method string) (*domain.Ticket, error) {
	now := s.now()
	if !sameDay(t.Journey.DepartureTime, now, s.loc) {
		return nil, ErrWrongDay
	}

	used, err := s.tickets.TransitionStatus(ctx, t.ID, domain.TicketActive, domain.TicketUsed, now.UTC())
	if err != nil {
		// lost the race to another scanner
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTicketNotActive
		}
		return nil, err
	}

	metrics.TicketStatusChangesTotal.WithLabelValues(string(domain.TicketUsed)).Inc()
	s.publish(ctx, domain.EventTicketUsed, used.TicketNumber, map[string]any{
		"ticket_id":     used.ID,
		"ticket_number": used.TicketNumber,
		"booking_id":    used.BookingID,
		"method":        method,
		"scanned_by":    p.ID,
	})

	return used, nil
}

// UpdateStatus lets a ticket's owner mark it used or cancelled. Only active
// tickets can move.
//
// Returns:
//   - *domain.Ticket: the updated ticket.
//   - error: verification.ErrTicketNotFound if the ticket does not exist.
//   - error: verification.ErrForbidden if p does not own the ticket.
//   - error: verification.ErrInvalidTransition if the ticket is not active or status is not a valid target.
func (s *Service) UpdateStatus(
	ctx context.Context,
	p domain.Principal,
	ticketID string,
	status domain.TicketStatus,
) (*domain.Ticket, error) {
	const op = "service.verification.UpdateStatus"

	ctx, span := tracing.StartSpan(ctx, op)
	defer span.End()

	if status != domain.TicketUsed && status != domain.TicketCancelled {
		return nil, fmt.Errorf("%s:%w: cannot move a ticket to %q", op, ErrInvalidTransition, status)
	}

	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if t.UserID != p.ID {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}

	if t.Status != domain.TicketActive {
		return nil, fmt.Errorf("%s:%w: ticket is %s", op, ErrInvalidTransition, t.Status)
	}

	updated, err := s.tickets.TransitionStatus(ctx, t.ID, domain.TicketActive, status, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, ErrInvalidTransition)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	metrics.TicketStatusChangesTotal.WithLabelValues(string(status)).Inc()

	eventType := domain.EventTicketUsed
	if status == domain.TicketCancelled {
		eventType = domain.EventTicketCancelled
	}
	s.publish(ctx, eventType, updated.TicketNumber, map[string]any{
		"ticket_id":     updated.ID,
		"ticket_number": updated.TicketNumber,
		"booking_id":    updated.BookingID,
		"method":        "owner",
	})

	return updated, nil
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func (s *Service) observe(method string, err error) {
	metrics.TicketScansTotal.WithLabelValues(method, resultLabel(err)).Inc()
}

func (s *Service) publish(ctx context.Context, eventType, key string, data map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, eventType, key, data)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, credential.ErrMalformed):
		return "malformed_credential"
	case errors.Is(err, credential.ErrIncomplete):
		return "incomplete_credential"
	case errors.Is(err, credential.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, credential.ErrExpired):
		return "expired"
	}
	return "invalid_credential"
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case credential.IsCredentialError(err):
		return rejectReason(err)
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrTicketNotActive):
		return "not_active"
	case errors.Is(err, ErrOwnerMismatch):
		return "owner_mismatch"
	case errors.Is(err, ErrWrongDay):
		return "wrong_day"
	}
	return "error"
}
