package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/bustix/internal/credential"
	"github.com/kirinyoku/bustix/internal/domain"
	redisrepo "github.com/kirinyoku/bustix/internal/repository/redis"
	"github.com/kirinyoku/bustix/internal/service"
	"github.com/kirinyoku/bustix/internal/service/admin"
	"github.com/kirinyoku/bustix/internal/service/booking"
	"github.com/kirinyoku/bustix/internal/service/query"
	"github.com/kirinyoku/bustix/internal/service/verification"
	"github.com/kirinyoku/bustix/internal/ticketpdf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Idempotency stores the first response for an Idempotency-Key so retries
// replay it.
type Idempotency interface {
	GetResult(ctx context.Context, key string) ([]byte, bool, error)
	AcquireLock(ctx context.Context, key string) (bool, error)
	SaveResult(ctx context.Context, key string, payload []byte) error
	Release(ctx context.Context, key string) error
}

type RouterDeps struct {
	Auth        TokenParser
	Idempotency Idempotency // optional
	Hub         *RouteHub   // optional
	Health      func(ctx context.Context) error
	// Location is used to print journey times on ticket PDFs.
	Location *time.Location
}

func NewRouter(
	svcs *service.Services,
	deps RouterDeps,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS(), MetricsMiddleware())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", handleHealth(deps.Health))

	// Public catalog
	r.GET("/routes", handleListRoutes(svcs))
	r.GET("/routes/events", handleRouteEvents(deps.Hub))
	r.GET("/routes/:id", handleGetRoute(svcs))

	authed := r.Group("/", AuthMiddleware(deps.Auth))
	{
		authed.POST("/bookings", handleCreateBooking(svcs, deps.Idempotency, logger))
		authed.GET("/bookings", handleListBookings(svcs))
		authed.GET("/bookings/:id", handleGetBooking(svcs))
		authed.DELETE("/bookings/:id", handleDeleteBooking(svcs))
		authed.PATCH("/bookings/:id/status", handleUpdateBookingStatus(svcs))

		authed.GET("/tickets", handleListTickets(svcs))
		authed.GET("/tickets/:id", handleGetTicket(svcs))
		authed.GET("/tickets/:id/pdf", handleTicketPDF(svcs, deps.Location))
		authed.PATCH("/tickets/:id/status", handleUpdateTicketStatus(svcs))

		desk := authed.Group("/tickets", RequireRoles(domain.RoleStaff, domain.RoleAdmin))
		desk.POST("/scan", handleScanTicket(svcs))
		desk.POST("/verify", handleVerifyTicket(svcs))

		adm := authed.Group("/admin", RequireRoles(domain.RoleAdmin))
		adm.POST("/routes", handleCreateRoute(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

func handleHealth(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// @Summary  List routes
// @Param    from    query  string  false  "origin city"
// @Param    to      query  string  false  "destination city"
// @Param    date    query  string  false  "departure day (YYYY-MM-DD)"
// @Param    limit   query  int     false  "page size"
// @Param    offset  query  int     false  "offset"
// @Success  200  {array}   domain.Route
// @Failure  400  {object}  ErrorResponse
// @Router   /routes [get]
func handleListRoutes(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := domain.RouteFilter{
			From:   strings.TrimSpace(c.Query("from")),
			To:     strings.TrimSpace(c.Query("to")),
			Limit:  parseIntDefault(c.Query("limit"), 50),
			Offset: parseIntDefault(c.Query("offset"), 0),
		}
		if d := c.Query("date"); d != "" {
			day, err := time.Parse(time.DateOnly, d)
			if err != nil {
				badRequest(c, "invalid date (YYYY-MM-DD)")
				return
			}
			f.Date = &day
		}

		routes, err := svcs.Query.ListRoutes(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, routes, "public, max-age=15", true)
	}
}

// @Summary  Get route
// @Param    id  path  string  true  "Route ID"
// @Success  200  {object}  domain.Route
// @Failure  404  {object}  ErrorResponse
// @Router   /routes/{id} [get]
func handleGetRoute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, err := svcs.Query.GetRoute(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, route, "public, max-age=5", true)
	}
}

// @Summary  Create booking (idempotent)
// @Security BearerAuth
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} domain.BookingWithTickets
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "route not found"
// @Failure  409 {object} InsufficientSeatsResponse "insufficient seats / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(svcs *service.Services, idem Idempotency, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		p := principal(c)

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(p.ID, idemKey)

			if payload, ok := storedResult(c, idem, idemStorageKey, logger); ok {
				replay(c, idemKey, payload)
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok := storedResult(c, idem, idemStorageKey, logger); ok {
					replay(c, idemKey, payload)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		passengers := make([]domain.Passenger, len(req.Passengers))
		for i, pi := range req.Passengers {
			passengers[i] = pi.toDomain()
		}

		out, err := svcs.Booking.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
			UserID:       p.ID,
			RouteID:      req.RouteID,
			Passengers:   passengers,
			TotalAmount:  req.TotalAmount,
			RateLimitKey: "ip:" + c.ClientIP(),
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(context.WithoutCancel(c.Request.Context()), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			b, _ := json.Marshal(out)
			_ = idem.SaveResult(context.WithoutCancel(c.Request.Context()), idemStorageKey, b)
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, out)
	}
}

// storedResult looks up a saved response. A lookup failure is logged and
// treated as a miss; the lock still guards against a double booking.
func storedResult(c *gin.Context, idem Idempotency, key string, logger *slog.Logger) ([]byte, bool) {
	payload, ok, err := idem.GetResult(c.Request.Context(), key)
	if err != nil {
		logger.Warn("idempotency lookup failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return nil, false
	}
	return payload, ok
}

func replay(c *gin.Context, idemKey string, payload []byte) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", payload)
}

// @Summary  List own bookings
// @Security BearerAuth
// @Param    limit   query  int  false  "page size"
// @Param    offset  query  int  false  "offset"
// @Success  200 {object} BookingListResponse
// @Router   /bookings [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 50)
		offset := parseIntDefault(c.Query("offset"), 0)

		bookings, err := svcs.Query.ListBookings(c.Request.Context(), principal(c), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, BookingListResponse{Bookings: bookings, Limit: limit, Offset: offset})
	}
}

// @Summary  Get booking with tickets
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID"
// @Success  200 {object} domain.BookingWithTickets
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svcs.Query.GetBookingWithTickets(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Delete pending booking
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "booking is not pending"
// @Router   /bookings/{id} [delete]
func handleDeleteBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Booking.DeleteBooking(c.Request.Context(), principal(c), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Update booking status
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID"
// @Param    req body  UpdateBookingStatusRequest true "payload"
// @Success  200 {object} domain.Booking
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "invalid transition"
// @Router   /bookings/{id}/status [patch]
func handleUpdateBookingStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateBookingStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		in := booking.UpdateStatusInput{Status: domain.BookingStatus(req.Status)}
		if req.PaymentStatus != nil {
			ps := domain.PaymentStatus(*req.PaymentStatus)
			in.PaymentStatus = &ps
		}

		b, err := svcs.Booking.UpdateBookingStatus(c.Request.Context(), principal(c), c.Param("id"), in)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Scan ticket QR credential
// @Security BearerAuth
// @Param    req body  ScanTicketRequest true "payload"
// @Success  200 {object} domain.Ticket
// @Failure  401 {object} ErrorResponse "invalid or expired ticket"
// @Failure  403 {object} ErrorResponse "owner mismatch"
// @Failure  404 {object} ErrorResponse "ticket not active"
// @Failure  409 {object} ErrorResponse "wrong day"
// @Router   /tickets/scan [post]
func handleScanTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScanTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		t, err := svcs.Verification.Scan(c.Request.Context(), principal(c), req.Credential)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// @Summary  Verify ticket by printed number
// @Description Does not check ownership. Staff and admins only.
// @Security BearerAuth
// @Param    req body  VerifyTicketRequest true "payload"
// @Success  200 {object} domain.Ticket
// @Failure  404 {object} ErrorResponse "ticket not active"
// @Failure  409 {object} ErrorResponse "wrong day"
// @Router   /tickets/verify [post]
func handleVerifyTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		t, err := svcs.Verification.VerifyByTicketNumber(c.Request.Context(), principal(c), req.TicketNumber)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// @Summary  Update own ticket status
// @Security BearerAuth
// @Param    id  path  string  true  "Ticket ID"
// @Param    req body  UpdateTicketStatusRequest true "payload"
// @Success  200 {object} domain.Ticket
// @Failure  403 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "invalid transition"
// @Router   /tickets/{id}/status [patch]
func handleUpdateTicketStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateTicketStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		t, err := svcs.Verification.UpdateStatus(
			c.Request.Context(),
			principal(c),
			c.Param("id"),
			domain.TicketStatus(req.Status),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// @Summary  List own tickets
// @Security BearerAuth
// @Param    limit   query  int  false  "page size"
// @Param    offset  query  int  false  "offset"
// @Success  200 {object} TicketListResponse
// @Router   /tickets [get]
func handleListTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 50)
		offset := parseIntDefault(c.Query("offset"), 0)

		tickets, err := svcs.Query.ListTickets(c.Request.Context(), principal(c), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, TicketListResponse{Tickets: tickets, Limit: limit, Offset: offset})
	}
}

// @Summary  Get ticket
// @Security BearerAuth
// @Param    id  path  string  true  "Ticket ID"
// @Success  200 {object} domain.Ticket
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /tickets/{id} [get]
func handleGetTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svcs.Query.GetTicket(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// @Summary  Download printable ticket
// @Security BearerAuth
// @Param    id  path  string  true  "Ticket ID"
// @Produce  application/pdf
// @Success  200
// @Failure  404 {object} ErrorResponse
// @Router   /tickets/{id}/pdf [get]
func handleTicketPDF(svcs *service.Services, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svcs.Query.GetTicket(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		b, name, err := ticketpdf.Render(t, loc)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Data(http.StatusOK, "application/pdf", b)
	}
}

// @Summary  Create route
// @Security BearerAuth
// @Param    req body  CreateRouteRequest true "payload"
// @Success  201 {object} domain.Route
// @Failure  400 {object} ErrorResponse
// @Router   /admin/routes [post]
func handleCreateRoute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		dep, err := parseRFC3339(req.DepartureTime)
		if err != nil {
			badRequest(c, "invalid departure_time (RFC3339)")
			return
		}
		arr, err := parseRFC3339(req.ArrivalTime)
		if err != nil {
			badRequest(c, "invalid arrival_time (RFC3339)")
			return
		}

		route, err := svcs.Admin.CreateRoute(c.Request.Context(), admin.CreateRouteInput{
			From:          req.From,
			To:            req.To,
			DepartureTime: dep,
			ArrivalTime:   arr,
			Price:         req.Price,
			Agency:        req.Agency,
			BusType:       req.BusType,
			TotalSeats:    req.TotalSeats,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, route)
	}
}

// --- Helpers ---

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var seats booking.InsufficientSeatsError
	var limited booking.RateLimitedError

	switch {
	// credentials: one message for every failure reason
	case credential.IsCredentialError(err):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or expired ticket"})

	// validation
	case errors.Is(err, booking.ErrInvalidInput),
		errors.Is(err, verification.ErrInvalidInput),
		errors.Is(err, admin.ErrInvalidRoute):
		badRequest(c, err.Error())

	// booking service
	case errors.As(err, &seats):
		c.JSON(http.StatusConflict, InsufficientSeatsResponse{
			Error:     "insufficient seats",
			Available: seats.Available,
			Requested: seats.Requested,
		})
	case errors.As(err, &limited):
		c.Header("Retry-After", strconv.Itoa(max(limited.RetryAfter, 1)))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
	case errors.Is(err, booking.ErrRouteNotFound), errors.Is(err, query.ErrRouteNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "route not found"})
	case errors.Is(err, booking.ErrBookingNotFound), errors.Is(err, query.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	case errors.Is(err, booking.ErrBookingChanged):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking changed while it was being created"})
	case errors.Is(err, booking.ErrInvalidStateForDeletion):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "only pending bookings can be deleted"})
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, verification.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid status transition"})

	// verification service
	case errors.Is(err, verification.ErrTicketNotActive):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found or not active"})
	case errors.Is(err, verification.ErrTicketNotFound), errors.Is(err, query.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
	case errors.Is(err, verification.ErrOwnerMismatch):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "ticket owner mismatch"})
	case errors.Is(err, verification.ErrWrongDay):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket is not valid today"})

	// access
	case errors.Is(err, booking.ErrForbidden),
		errors.Is(err, verification.ErrForbidden),
		errors.Is(err, query.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})

	// admin service
	case errors.Is(err, admin.ErrRouteConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "route conflict"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
