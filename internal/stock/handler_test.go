package stock

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/platform/docstore"
	"github.com/jntims/jntims/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t, docstore.NewMemory())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.stock, shared.NewIdempotencyStore(f.store), money.NewFormatter("en", "₹"))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, f
}

func send(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const itemBody = `{"name":"Soap","boxes":10,"unitsPerBox":20,"boxPrice":500,"gstPercent":18,"sellingPricePerUnit":35}`

func TestHandlerItemAndSaleFlow(t *testing.T) {
	h, f := newTestRouter(t)
	batchURL := "/companies/" + f.company.ID + "/batches/" + f.batch.ID

	rec := send(t, h, http.MethodPost, batchURL+"/items", itemBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var item ItemResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))
	require.Equal(t, int64(200), item.Units)
	require.Equal(t, "29.50", item.PerUnitWithGST)

	salesURL := batchURL + "/items/" + item.ID + "/sales"
	rec = send(t, h, http.MethodPost, salesURL, `{"units":50}`, map[string]string{"Idempotency-Key": "sale-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sale SaleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sale))
	require.Equal(t, "1750.00", sale.Revenue)
	require.Equal(t, "275.00", sale.Profit)
	require.Equal(t, "2024-03-15", sale.Date)

	rec = send(t, h, http.MethodPost, salesURL, `{"units":50}`, map[string]string{"Idempotency-Key": "sale-1"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = send(t, h, http.MethodPost, salesURL, `{"units":151}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = send(t, h, http.MethodPost, salesURL, `{"units":0}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, h, http.MethodGet, salesURL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sales struct {
		Sales []SaleResponse `json:"sales"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sales))
	require.Len(t, sales.Sales, 1)

	rec = send(t, h, http.MethodGet, "/stock/totals", "", nil)
	var totals map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&totals))
	require.Equal(t, "1750.00", totals["totalRevenue"])
	require.Equal(t, "275.00", totals["totalProfit"])

	rec = send(t, h, http.MethodGet, batchURL+"/summary", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	require.Equal(t, "5900.00", summary["totalBill"])
	require.Equal(t, float64(50), summary["soldUnits"])
}

func TestHandlerPreviewReportsFieldErrors(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := send(t, h, http.MethodPost, "/stock/preview", `{"boxes":10,"unitsPerBox":20,"boxPrice":500,"gstPercent":18,"sellingPricePerUnit":35}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ok struct {
		Errors map[string]string `json:"errors"`
		Result PricingResponse   `json:"result"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ok))
	require.Empty(t, ok.Errors)
	require.Equal(t, "5900.00", ok.Result.TotalCostWithGST)
	require.Equal(t, "5.50", ok.Result.ProfitPerUnit)

	rec = send(t, h, http.MethodPost, "/stock/preview", `{"boxes":0,"unitsPerBox":20,"boxPrice":500,"gstPercent":180,"sellingPricePerUnit":35}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bad struct {
		Errors map[string]string `json:"errors"`
		Result *PricingResponse  `json:"result"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&bad))
	require.Nil(t, bad.Result)
	require.Contains(t, bad.Errors, "boxes")
	require.Contains(t, bad.Errors, "gstPercent")
}

func TestHandlerCreateItemInvalid(t *testing.T) {
	h, f := newTestRouter(t)
	rec := send(t, h, http.MethodPost, "/companies/"+f.company.ID+"/batches/"+f.batch.ID+"/items",
		`{"name":"Soap","boxes":-1,"unitsPerBox":20,"boxPrice":500,"gstPercent":18,"sellingPricePerUnit":35}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = send(t, h, http.MethodPost, "/companies/"+f.company.ID+"/batches/missing/items", itemBody, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
