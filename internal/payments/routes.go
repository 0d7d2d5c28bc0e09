package payments

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anot-platform/anot-client/internal/middleware"
)

// SetupRoutes mounts the payment return listener.
func SetupRoutes(h *Handler, allowedOrigins []string, l *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(l))
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/payment-status", h.PaymentStatus)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}
