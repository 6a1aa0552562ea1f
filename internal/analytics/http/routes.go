package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/jntims/jntims/internal/platform/httpx"
)

// MountRoutes registers report endpoints onto the router. Full scans
// (verification and CSV exports) are rate limited per client address.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "report rate limit exceeded")
		}),
	)

	r.Get("/reports/monthly", h.handleMonthly)
	r.Get("/reports/monthly/{month}/comparison", h.handleComparison)
	r.Get("/reports/stock-on-hand", h.handleStockOnHand)
	r.Get("/reports/current-month-units", h.handleCurrentMonthUnits)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/reports/verify", h.handleVerify)
		gr.Get("/reports/monthly.csv", h.handleMonthlyCSV)
		gr.Get("/reports/stock-on-hand.csv", h.handleStockCSV)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
