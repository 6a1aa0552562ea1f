package stock

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jntims/jntims/internal/companies"
	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/platform/httpx"
	"github.com/jntims/jntims/internal/pricing"
	"github.com/jntims/jntims/internal/shared"
)

const idempotencyModule = "sales"

// Handler wires HTTP endpoints for stock items and sales.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	formatter   *money.Formatter
}

// NewHandler constructs the stock handler. idem may be nil.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore, formatter *money.Formatter) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idem, formatter: formatter}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock/preview", h.handlePreview)
	r.Get("/stock/totals", h.handleTotals)
	r.Post("/companies/{companyID}/batches/{batchID}/restock", h.handleRestock)
	r.Get("/companies/{companyID}/batches/{batchID}/summary", h.handleSummary)
	r.Post("/companies/{companyID}/batches/{batchID}/items", h.handleCreateItem)
	r.Get("/companies/{companyID}/batches/{batchID}/items", h.handleListItems)
	r.Get("/companies/{companyID}/batches/{batchID}/items/{itemID}", h.handleGetItem)
	r.Delete("/companies/{companyID}/batches/{batchID}/items/{itemID}", h.handleDeleteItem)
	r.Post("/companies/{companyID}/batches/{batchID}/items/{itemID}/sales", h.handleRecordSale)
	r.Get("/companies/{companyID}/batches/{batchID}/items/{itemID}/sales", h.handleListSales)
}

type pricingRequest struct {
	Boxes               json.Number `json:"boxes"`
	UnitsPerBox         json.Number `json:"unitsPerBox"`
	BoxPrice            json.Number `json:"boxPrice"`
	GSTPercent          json.Number `json:"gstPercent"`
	SellingPricePerUnit json.Number `json:"sellingPricePerUnit"`
}

func (p pricingRequest) raw() pricing.RawInput {
	return pricing.RawInput{
		Boxes:               p.Boxes.String(),
		UnitsPerBox:         p.UnitsPerBox.String(),
		BoxPrice:            p.BoxPrice.String(),
		GSTPercent:          p.GSTPercent.String(),
		SellingPricePerUnit: p.SellingPricePerUnit.String(),
	}
}

type itemRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	pricingRequest
}

type saleRequest struct {
	Units int64  `json:"units" validate:"gt=0"`
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// PricingResponse renders derived pricing fields.
type PricingResponse struct {
	Units               int64  `json:"units"`
	BoxPriceWithGST     string `json:"boxPriceWithGst"`
	TotalCostWithoutGST string `json:"totalCostWithoutGst"`
	TotalCostWithGST    string `json:"totalCostWithGst"`
	PerUnitWithoutGST   string `json:"perUnitWithoutGst"`
	PerUnitWithGST      string `json:"perUnitWithGst"`
	ProfitPerUnit       string `json:"profitPerUnit"`
}

// ItemResponse is the JSON shape of a stock item.
type ItemResponse struct {
	ID                  string    `json:"id"`
	CompanyID           string    `json:"companyId"`
	BatchID             string    `json:"batchId"`
	Name                string    `json:"name"`
	Boxes               int64     `json:"boxes"`
	UnitsPerBox         int64     `json:"unitsPerBox"`
	Units               int64     `json:"units"`
	Sold                int64     `json:"sold"`
	Remaining           int64     `json:"remaining"`
	GSTPercent          string    `json:"gstPercent"`
	BoxPrice            string    `json:"boxPrice"`
	BoxPriceWithGST     string    `json:"boxPriceWithGst"`
	TotalCostWithoutGST string    `json:"totalCostWithoutGst"`
	TotalCostWithGST    string    `json:"totalCostWithGst"`
	PerUnitWithoutGST   string    `json:"perUnitWithoutGst"`
	PerUnitWithGST      string    `json:"perUnitWithGst"`
	SellingPricePerUnit string    `json:"sellingPricePerUnit"`
	CreatedAt           time.Time `json:"createdAt"`
}

// SaleResponse is the JSON shape of a sale event.
type SaleResponse struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"itemId"`
	ItemName  string    `json:"itemName"`
	CompanyID string    `json:"companyId"`
	UnitsSold int64     `json:"unitsSold"`
	Date      string    `json:"date"`
	Revenue   string    `json:"revenue"`
	Profit    string    `json:"profit"`
	CreatedAt time.Time `json:"createdAt"`
}

func fixed(d interface{ StringFixed(int32) string }) string { return d.StringFixed(money.Scale) }

func newPricingResponse(res pricing.Result) PricingResponse {
	return PricingResponse{
		Units:               res.Units,
		BoxPriceWithGST:     fixed(res.BoxPriceWithGST),
		TotalCostWithoutGST: fixed(res.TotalCostWithoutGST),
		TotalCostWithGST:    fixed(res.TotalCostWithGST),
		PerUnitWithoutGST:   fixed(res.PerUnitWithoutGST),
		PerUnitWithGST:      fixed(res.PerUnitWithGST),
		ProfitPerUnit:       fixed(res.ProfitPerUnit),
	}
}

// NewItemResponse converts an item for JSON output.
func NewItemResponse(i StockItem) ItemResponse {
	return ItemResponse{
		ID:                  i.ID,
		CompanyID:           i.CompanyID,
		BatchID:             i.BatchID,
		Name:                i.Name,
		Boxes:               i.Boxes,
		UnitsPerBox:         i.UnitsPerBox,
		Units:               i.Units,
		Sold:                i.Sold,
		Remaining:           i.Remaining(),
		GSTPercent:          i.GSTPercent.String(),
		BoxPrice:            fixed(i.BoxPrice),
		BoxPriceWithGST:     fixed(i.BoxPriceWithGST),
		TotalCostWithoutGST: fixed(i.TotalCostWithoutGST),
		TotalCostWithGST:    fixed(i.TotalCostWithGST),
		PerUnitWithoutGST:   fixed(i.PerUnitWithoutGST),
		PerUnitWithGST:      fixed(i.PerUnitWithGST),
		SellingPricePerUnit: fixed(i.SellingPricePerUnit),
		CreatedAt:           i.CreatedAt,
	}
}

// NewSaleResponse converts a sale event for JSON output.
func NewSaleResponse(e SaleEvent) SaleResponse {
	return SaleResponse{
		ID:        e.ID,
		ItemID:    e.ItemID,
		ItemName:  e.ItemName,
		CompanyID: e.CompanyID,
		UnitsSold: e.UnitsSold,
		Date:      e.Date,
		Revenue:   fixed(e.Revenue),
		Profit:    fixed(e.Profit),
		CreatedAt: e.CreatedAt,
	}
}

func itemRef(r *http.Request) ItemRef {
	return ItemRef{
		CompanyID: chi.URLParam(r, "companyID"),
		BatchID:   chi.URLParam(r, "batchID"),
		ItemID:    chi.URLParam(r, "itemID"),
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if shared.IsRetryable(err) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req pricingRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	preview := pricing.PreviewRaw(req.raw())
	body := map[string]any{"errors": preview.Errors}
	if preview.Result != nil {
		body["result"] = newPricingResponse(*preview.Result)
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := pricing.ParseInput(req.raw())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "batchID"), req.Name, in)
	if err != nil {
		h.fail(w, r, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewItemResponse(item))
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "batchID"))
	if err != nil {
		h.fail(w, r, "list items", err)
		return
	}
	out := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), itemRef(r))
	if err != nil {
		h.fail(w, r, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewItemResponse(item))
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteItem(r.Context(), itemRef(r)); err != nil {
		h.fail(w, r, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			if !errors.Is(err, shared.ErrIdempotencyConflict) {
				err = shared.StoreError("idempotency", "key", key, err)
			}
			h.fail(w, r, "record sale", err)
			return
		}
	}
	event, err := h.service.RecordSale(r.Context(), itemRef(r), req.Units, req.Date)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(r.Context(), key, idempotencyModule); derr != nil {
				h.logger.Warn("idempotency key not released", slog.Any("error", derr))
			}
		}
		h.fail(w, r, "record sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewSaleResponse(event))
}

func (h *Handler) handleListSales(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ItemSales(r.Context(), itemRef(r))
	if err != nil {
		h.fail(w, r, "list sales", err)
		return
	}
	out := make([]SaleResponse, 0, len(events))
	for _, e := range events {
		out = append(out, NewSaleResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": out})
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.Restock(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "batchID"))
	if err != nil {
		h.fail(w, r, "restock batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, companies.NewBatchResponse(batch))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "batchID"))
	if err != nil {
		h.fail(w, r, "batch summary", err)
		return
	}
	items := make([]ItemResponse, 0, len(sum.Items))
	for _, item := range sum.Items {
		items = append(items, NewItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":            items,
		"totalBill":        fixed(sum.TotalBill),
		"totalBillDisplay": h.formatter.Format(sum.TotalBill),
		"totalUnits":       sum.TotalUnits,
		"soldUnits":        sum.SoldUnits,
		"realisedProfit":   fixed(sum.RealisedProfit),
		"potentialProfit":  fixed(sum.PotentialProfit),
	})
}

func (h *Handler) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.Totals(r.Context())
	if err != nil {
		h.fail(w, r, "global totals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"totalRevenue": fixed(totals.TotalRevenue),
		"totalProfit":  fixed(totals.TotalProfit),
	})
}
