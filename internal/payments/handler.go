package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jntims/jntims/internal/companies"
	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/platform/httpx"
	"github.com/jntims/jntims/internal/shared"
)

const idempotencyModule = "payments"

// Handler wires HTTP endpoints for the payment ledger.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	formatter   *money.Formatter
}

// NewHandler constructs the payments handler. idem may be nil.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore, formatter *money.Formatter) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idem, formatter: formatter}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/companies/{companyID}/payments", h.handleList)
	r.Post("/companies/{companyID}/payments", h.handleAdd)
	r.Get("/companies/{companyID}/balance", h.handleBalance)
	r.Delete("/companies/{companyID}/payments/{paymentID}", h.handleDelete)
	r.Post("/companies/{companyID}/payments/{paymentID}/restore", h.handleRestore)
	r.Post("/companies/{companyID}/adjustments", h.handleAdjustment)
}

type paymentRequest struct {
	CheckNumber string `json:"checkNumber" validate:"required,max=64"`
	Amount      string `json:"amount" validate:"required"`
}

type restoreRequest struct {
	Amount string `json:"amount"`
}

type adjustmentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Date   string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// PaymentResponse is the JSON shape of a payment.
type PaymentResponse struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"companyId"`
	CheckNumber string    `json:"checkNumber"`
	AmountPaid  string    `json:"amountPaid"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BalanceResponse is the JSON shape of a balance.
type BalanceResponse struct {
	CompanyID      string `json:"companyId"`
	TotalPayable   string `json:"totalPayable"`
	CumulativePaid string `json:"cumulativePaid"`
	Remaining      string `json:"remaining"`
	Display        string `json:"display"`
}

// NewPaymentResponse converts a payment for JSON output.
func NewPaymentResponse(p Payment) PaymentResponse {
	return PaymentResponse{
		ID:          p.ID,
		CompanyID:   p.CompanyID,
		CheckNumber: p.CheckNumber,
		AmountPaid:  p.AmountPaid.StringFixed(money.Scale),
		CreatedAt:   p.CreatedAt,
	}
}

func parseAmount(raw string, optional bool) (decimal.Decimal, error) {
	if optional && raw == "" {
		return decimal.Zero, nil
	}
	amount, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, shared.NewValidationError("amount", "must be a number")
	}
	return amount, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if shared.IsRetryable(err) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPayments(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	out := make([]PaymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, NewPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	companyID := chi.URLParam(r, "companyID")
	key := r.Header.Get("Idempotency-Key")
	guarded := key != "" && h.idempotency != nil
	if guarded {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			if !errors.Is(err, shared.ErrIdempotencyConflict) {
				err = shared.StoreError("idempotency", "key", key, err)
			}
			h.fail(w, r, "add payment", err)
			return
		}
	}
	payment, err := h.service.AddPayment(r.Context(), companyID, req.CheckNumber, amount)
	if err != nil {
		if guarded {
			if derr := h.idempotency.Delete(r.Context(), key, idempotencyModule); derr != nil {
				h.logger.Warn("idempotency key not released", slog.Any("error", derr))
			}
		}
		h.fail(w, r, "add payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewPaymentResponse(payment))
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.RemainingBalance(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		h.fail(w, r, "balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, BalanceResponse{
		CompanyID:      b.CompanyID,
		TotalPayable:   b.TotalPayable.StringFixed(money.Scale),
		CumulativePaid: b.CumulativePaid.StringFixed(money.Scale),
		Remaining:      b.Remaining.StringFixed(money.Scale),
		Display:        h.formatter.Format(b.Display),
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePayment(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "paymentID")); err != nil {
		h.fail(w, r, "delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	amount, err := parseAmount(req.Amount, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.RestorePayment(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "paymentID"), amount)
	if err != nil {
		h.fail(w, r, "restore payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewPaymentResponse(payment))
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.service.AddManualAdjustment(r.Context(), chi.URLParam(r, "companyID"), amount, req.Date)
	if err != nil {
		h.fail(w, r, "manual adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, companies.NewBatchResponse(batch))
}
