package payments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/jntims/jntims/internal/platform/docstore"
	"github.com/jntims/jntims/internal/platform/httpx"
	"github.com/jntims/jntims/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	store := docstore.NewMemory()
	f := newFixture(t, store, "1000")
	h := NewHandler(f.payments.logger, f.payments, shared.NewIdempotencyStore(store), nil)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, f
}

func do(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPaymentFlow(t *testing.T) {
	h, f := newTestRouter(t)
	base := "/companies/" + f.company.ID

	rec := do(t, h, http.MethodPost, base+"/payments", `{"checkNumber":"CHK-1","amount":"1200"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = do(t, h, http.MethodPost, base+"/payments", `{"checkNumber":"CHK-1","amount":"400"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created PaymentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, "400.00", created.AmountPaid)

	rec = do(t, h, http.MethodGet, base+"/balance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance BalanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&balance))
	require.Equal(t, "600.00", balance.Remaining)
	require.Equal(t, "600.00", balance.Display)

	rec = do(t, h, http.MethodPost, base+"/payments/"+created.ID+"/restore", `{"amount":"10"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/payments/"+created.ID+"/restore", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, base+"/payments/"+created.ID, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, base+"/balance", "", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&balance))
	require.Equal(t, "0.00", balance.CumulativePaid)
}

func TestHandlerValidationProblem(t *testing.T) {
	h, f := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/companies/"+f.company.ID+"/payments", `{"checkNumber":"","amount":"abc"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	require.Contains(t, problem.Errors, "checkNumber")

	rec = do(t, h, http.MethodPost, "/companies/"+f.company.ID+"/payments", `{"checkNumber":"A","amount":"1","extra":true}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerIdempotentPayment(t *testing.T) {
	h, f := newTestRouter(t)
	path := "/companies/" + f.company.ID + "/payments"
	key := map[string]string{"Idempotency-Key": "pay-1"}

	rec := do(t, h, http.MethodPost, path, `{"checkNumber":"CHK","amount":"100"}`, key)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, path, `{"checkNumber":"CHK","amount":"100"}`, key)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "100.00", f.paid(t).StringFixed(2))

	// A rejected payment releases its key.
	retry := map[string]string{"Idempotency-Key": "pay-2"}
	rec = do(t, h, http.MethodPost, path, `{"checkNumber":"CHK","amount":"5000"}`, retry)
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, h, http.MethodPost, path, `{"checkNumber":"CHK","amount":"50"}`, retry)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandlerManualAdjustment(t *testing.T) {
	h, f := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/companies/"+f.company.ID+"/adjustments", `{"amount":"250.50","date":"2024-05-01"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	b, err := f.payments.RemainingBalance(t.Context(), f.company.ID)
	require.NoError(t, err)
	require.Equal(t, "1250.50", b.TotalPayable.StringFixed(2))

	rec = do(t, h, http.MethodPost, "/companies/missing/adjustments", `{"amount":"1"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerMalformedCompanyID(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/companies//balance", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	require.Equal(t, "Validation Failed", problem.Title)
	require.NotContains(t, problem.Detail, "retry")
}
