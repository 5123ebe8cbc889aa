// Package handler содержит HTTP обработчики для REST API.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/payment-service/internal/domain"
	"example.com/payment-service/internal/service"
	"example.com/payment-service/pkg/logger"
)

// PaymentHandler — обработчик платежей.
type PaymentHandler struct {
	paymentService service.PaymentService
}

// NewPaymentHandler создаёт новый обработчик платежей.
func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// === Request/Response DTOs ===

// CreatePaymentRequest — запрос на создание платежа.
type CreatePaymentRequest struct {
	Amount        int64          `json:"amount" binding:"required,min=1"`
	Currency      string         `json:"currency" binding:"required,len=3"`
	Card          CardRequest    `json:"card" binding:"required"`
	CustomerEmail string         `json:"customer_email" binding:"omitempty,email"`
	CustomerName  string         `json:"customer_name"`
	Description   string         `json:"description"`
	Metadata      map[string]any `json:"metadata"`
}

// CardRequest — карточные данные в запросе.
// Полный номер карты не сохраняется и не логируется.
type CardRequest struct {
	Number   string `json:"number" binding:"required"`
	ExpMonth int    `json:"exp_month" binding:"required,min=1,max=12"`
	ExpYear  int    `json:"exp_year" binding:"required"`
	CVC      string `json:"cvc" binding:"required"`
}

// CaptureRequest — запрос на списание средств.
// amount не задан — списывается полная сумма платежа.
type CaptureRequest struct {
	Amount *int64 `json:"amount" binding:"omitempty,min=1"`
}

// RefundRequest — запрос на возврат средств.
// amount не задан — возвращается полная сумма платежа.
type RefundRequest struct {
	Amount *int64 `json:"amount" binding:"omitempty,min=1"`
	Reason string `json:"reason"`
}

// CardResponse — карточные данные в ответе (только безопасные поля).
type CardResponse struct {
	Last4    string `json:"last4"`
	Brand    string `json:"brand"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// PaymentResponse — информация о платеже в ответе.
type PaymentResponse struct {
	ID                string         `json:"id"`
	Amount            int64          `json:"amount"`
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	Card              CardResponse   `json:"card"`
	CustomerEmail     string         `json:"customer_email,omitempty"`
	CustomerName      string         `json:"customer_name,omitempty"`
	Description       string         `json:"description,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	AuthorizationCode string         `json:"authorization_code,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	AuthorizedAt      *time.Time     `json:"authorized_at,omitempty"`
	CapturedAt        *time.Time     `json:"captured_at,omitempty"`
}

// RefundResponse — информация о возврате в ответе.
type RefundResponse struct {
	ID          string     `json:"id"`
	PaymentID   string     `json:"payment_id"`
	Amount      int64      `json:"amount"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// EventResponse — событие журнала аудита в ответе.
type EventResponse struct {
	ID            string         `json:"id"`
	PaymentID     string         `json:"payment_id"`
	EventType     string         `json:"event_type"`
	PaymentStatus string         `json:"payment_status"`
	Data          map[string]any `json:"data"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ListEventsResponse — ответ на запрос журнала событий.
type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
}

// === Handlers ===

// CreatePayment создаёт новое платёжное намерение.
// POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос на создание платежа")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Невалидные данные запроса",
		})
		return
	}

	payment, err := h.paymentService.CreatePayment(ctx, service.CreatePaymentRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Card: service.CardInput{
			Number:   req.Card.Number,
			ExpMonth: req.Card.ExpMonth,
			ExpYear:  req.Card.ExpYear,
			CVC:      req.Card.CVC,
		},
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Description:   req.Description,
		Metadata:      req.Metadata,
	})
	if err != nil {
		HandleDomainError(c, err, "CreatePayment")
		return
	}

	c.JSON(http.StatusCreated, paymentToResponse(payment))
}

// GetPayment возвращает платёж по ID.
// GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	ctx := c.Request.Context()

	paymentID := c.Param("id")
	payment, err := h.paymentService.GetPayment(ctx, paymentID)
	if err != nil {
		HandleDomainError(c, err, "GetPayment")
		return
	}

	c.JSON(http.StatusOK, paymentToResponse(payment))
}

// AuthorizePayment запрашивает авторизацию платежа.
// POST /api/v1/payments/:id/authorize
//
// Отказ авторизации — не ошибка HTTP: возвращается 200 со статусом failed.
func (h *PaymentHandler) AuthorizePayment(c *gin.Context) {
	ctx := c.Request.Context()

	paymentID := c.Param("id")
	payment, err := h.paymentService.AuthorizePayment(ctx, paymentID)
	if err != nil {
		HandleDomainError(c, err, "AuthorizePayment")
		return
	}

	c.JSON(http.StatusOK, paymentToResponse(payment))
}

// CapturePayment списывает зарезервированные средства.
// POST /api/v1/payments/:id/capture
//
// Body опционален: пустое тело означает списание полной суммы.
func (h *PaymentHandler) CapturePayment(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	paymentID := c.Param("id")

	var req CaptureRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Debug().Err(err).Msg("Невалидный запрос на capture")
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "Невалидные данные запроса",
			})
			return
		}
	}

	payment, err := h.paymentService.CapturePayment(ctx, paymentID, req.Amount)
	if err != nil {
		HandleDomainError(c, err, "CapturePayment")
		return
	}

	c.JSON(http.StatusOK, paymentToResponse(payment))
}

// CancelPayment отменяет платёж до списания средств.
// POST /api/v1/payments/:id/cancel
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	ctx := c.Request.Context()

	paymentID := c.Param("id")
	payment, err := h.paymentService.CancelPayment(ctx, paymentID)
	if err != nil {
		HandleDomainError(c, err, "CancelPayment")
		return
	}

	c.JSON(http.StatusOK, paymentToResponse(payment))
}

// CreateRefund создаёт возврат средств по платежу.
// POST /api/v1/payments/:id/refund
func (h *PaymentHandler) CreateRefund(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	paymentID := c.Param("id")

	var req RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Debug().Err(err).Msg("Невалидный запрос на возврат")
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "Невалидные данные запроса",
			})
			return
		}
	}

	refund, err := h.paymentService.CreateRefund(ctx, paymentID, req.Amount, req.Reason)
	if err != nil {
		HandleDomainError(c, err, "CreateRefund")
		return
	}

	c.JSON(http.StatusCreated, refundToResponse(refund))
}

// ListEvents возвращает журнал аудита платежа.
// GET /api/v1/payments/:id/events
func (h *PaymentHandler) ListEvents(c *gin.Context) {
	ctx := c.Request.Context()

	paymentID := c.Param("id")
	events, err := h.paymentService.GetPaymentEvents(ctx, paymentID)
	if err != nil {
		HandleDomainError(c, err, "ListEvents")
		return
	}

	resp := ListEventsResponse{
		Events: make([]EventResponse, len(events)),
	}
	for i, e := range events {
		resp.Events[i] = EventResponse{
			ID:            e.ID,
			PaymentID:     e.PaymentID,
			EventType:     e.EventType,
			PaymentStatus: string(e.Status),
			Data:          e.Data,
			CreatedAt:     e.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// === Helper functions ===

// paymentToResponse преобразует domain.Payment в PaymentResponse.
func paymentToResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:       p.ID,
		Amount:   p.Amount,
		Currency: p.Currency,
		Status:   string(p.Status),
		Card: CardResponse{
			Last4:    p.CardLast4,
			Brand:    p.CardBrand,
			ExpMonth: p.CardExpMonth,
			ExpYear:  p.CardExpYear,
		},
		CustomerEmail:     p.CustomerEmail,
		CustomerName:      p.CustomerName,
		Description:       p.Description,
		Metadata:          p.Metadata,
		AuthorizationCode: p.AuthorizationCode,
		ErrorMessage:      p.ErrorMessage,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		AuthorizedAt:      p.AuthorizedAt,
		CapturedAt:        p.CapturedAt,
	}
}

// refundToResponse преобразует domain.Refund в RefundResponse.
func refundToResponse(r *domain.Refund) RefundResponse {
	return RefundResponse{
		ID:          r.ID,
		PaymentID:   r.PaymentID,
		Amount:      r.Amount,
		Reason:      r.Reason,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}
