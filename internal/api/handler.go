package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"booking-service/internal/auth"
	"booking-service/internal/models"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

type BookingService interface {
	CreateBooking(ctx context.Context, req service.CreateBookingRequest) (*service.CreateBookingResult, error)
	GetBooking(ctx context.Context, bookingID int64, agentID uuid.UUID) (*models.Booking, []models.BookingConfirmation, error)
}

type WebhookService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

type ReconfirmationRunner interface {
	RunOnce(ctx context.Context) (service.PollStats, error)
}

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	bookings        BookingService
	webhooks        WebhookService
	reconfirmations ReconfirmationRunner
	auth            *auth.Service
	dependencies    map[string]Pinger
	logger          *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	bookings BookingService,
	webhooks WebhookService,
	reconfirmations ReconfirmationRunner,
	authService *auth.Service,
	dependencies map[string]Pinger,
) *Handler {
	return &Handler{
		bookings:        bookings,
		webhooks:        webhooks,
		reconfirmations: reconfirmations,
		auth:            authService,
		dependencies:    dependencies,
		logger:          util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, corsOrigins []string) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	if len(corsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     corsOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/payments", h.paymentWebhook)

	v1 := router.Group("/api/v1", auth.Middleware(h.auth))
	{
		v1.POST("/bookings", h.createBooking)
		v1.GET("/bookings/:id", h.getBooking)
	}

	admin := router.Group("/admin", auth.Middleware(h.auth), auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/reconfirmations/run", h.runReconfirmations)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(h.dependencies))
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

type createBookingBody struct {
	QuoteID          int64                 `json:"quoteId"`
	PaymentReference string                `json:"paymentReference"`
	CustomerInfo     *service.CustomerInfo `json:"customerInfo"`
}

// createBooking converts a quote owned by the calling agent
func (h *Handler) createBooking(c *gin.Context) {
	claims, _ := auth.GetClaims(c)

	var body createBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.bookings.CreateBooking(c.Request.Context(), service.CreateBookingRequest{
		QuoteID:          body.QuoteID,
		PaymentReference: body.PaymentReference,
		AgentID:          claims.AgentID,
		CustomerInfo:     body.CustomerInfo,
	})
	if err != nil {
		h.writeError(c, "Failed to create booking", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// getBooking returns a booking with its confirmation history
func (h *Handler) getBooking(c *gin.Context) {
	claims, _ := auth.GetClaims(c)

	bookingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || bookingID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid booking ID",
		})
		return
	}

	booking, confirmations, err := h.bookings.GetBooking(c.Request.Context(), bookingID, claims.AgentID)
	if err != nil {
		h.writeError(c, "Failed to load booking", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking":       booking,
		"confirmations": confirmations,
	})
}

// paymentWebhook receives payment processor events. Any non-2xx response makes
// the processor redeliver.
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "Unable to read request body",
		})
		return
	}

	result, err := h.webhooks.HandleEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.writeError(c, "Webhook handling failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"duplicate": result.Duplicate,
	})
}

// runReconfirmations triggers one poll cycle on demand
func (h *Handler) runReconfirmations(c *gin.Context) {
	stats, err := h.reconfirmations.RunOnce(c.Request.Context())
	if err != nil {
		h.writeError(c, "Reconfirmation poll failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) writeError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message,
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConversionInProgress), errors.Is(err, service.ErrQuoteConverted):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
