package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bustix_bookings_created_total",
		Help: "Total number of bookings created with all tickets issued",
	})

	BookingsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bustix_bookings_failed_total",
		Help: "Total number of failed booking attempts",
	}, []string{"reason"})

	BookingsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bustix_bookings_deleted_total",
		Help: "Total number of pending bookings deleted",
	})

	BookingStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bustix_booking_status_changes_total",
		Help: "Total number of booking status transitions",
	}, []string{"to"})

	CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bustix_booking_compensations_total",
		Help: "Total number of compensating actions run after a failed booking",
	}, []string{"action", "result"})

	TicketsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bustix_tickets_issued_total",
		Help: "Total number of tickets issued",
	})

	SeatReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bustix_seat_reserve_latency_seconds",
		Help:    "Latency of seat reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	SeatReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bustix_seat_reservations_failed_total",
		Help: "Total number of failed seat reservations",
	}, []string{"reason"})

	TicketScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bustix_ticket_scans_total",
		Help: "Ticket verification attempts by method and outcome",
	}, []string{"method", "result"})

	TicketStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bustix_ticket_status_changes_total",
		Help: "Owner initiated ticket status changes",
	}, []string{"to"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
