package payments

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/anot-platform/anot-client/internal/i18n"
	"github.com/anot-platform/anot-client/internal/logging"
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// Classify maps the provider's error_code onto an outcome. 0 is a completed
// payment; -1 and -9 are cancellations.
func Classify(errorCode string) Outcome {
	switch strings.TrimSpace(errorCode) {
	case "0":
		return OutcomeSuccess
	case "-1", "-9":
		return OutcomeCancelled
	}
	return OutcomeError
}

// RedirectFor returns the page a payment for merchantTransID returns to.
func RedirectFor(merchantTransID string) string {
	switch {
	case strings.HasPrefix(merchantTransID, "article_"):
		return "/my-articles"
	case strings.HasPrefix(merchantTransID, "service_"):
		switch {
		case strings.Contains(merchantTransID, "plagiarism"):
			return "/plagiarism-check"
		case strings.Contains(merchantTransID, "ai-document"):
			return "/ai-document-utilities"
		}
		return "/services"
	}
	return "/dashboard"
}

type StatusResponse struct {
	Status          Outcome `json:"status"`
	Message         string  `json:"message"`
	MerchantTransID string  `json:"merchant_trans_id,omitempty"`
	Redirect        string  `json:"redirect"`
}

// Handler serves the payment return page.
type Handler struct {
	ledger *Ledger
	log    *zap.Logger
}

func NewHandler(ledger *Ledger, l *zap.Logger) *Handler {
	return &Handler{ledger: ledger, log: logging.OrNop(l)}
}

// PaymentStatus records a successful payment in the ledger and tells the
// caller where to go next.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	transID := q.Get("merchant_trans_id")
	code := q.Get("error_code")

	lang := i18n.Negotiate(r.Header.Get("Accept-Language"))
	if l, err := i18n.Parse(q.Get("lang")); err == nil {
		lang = l
	}
	loc := i18n.New(lang)

	outcome := Classify(code)
	resp := StatusResponse{
		Status:          outcome,
		MerchantTransID: transID,
		Redirect:        RedirectFor(transID),
	}
	switch outcome {
	case OutcomeSuccess:
		if transID == "" {
			http.Error(w, "merchant_trans_id is required", http.StatusBadRequest)
			return
		}
		if h.ledger.Add(transID) {
			h.log.Info("payment completed", zap.String("merchant_trans_id", transID))
		}
		resp.Message = loc.Text(i18n.MsgPaymentSuccess)
	case OutcomeCancelled:
		resp.Message = loc.Text(i18n.MsgPaymentCancelled)
	case OutcomeError:
		h.log.Warn("payment failed", zap.String("merchant_trans_id", transID), zap.String("error_code", code))
		resp.Message = loc.Text(i18n.MsgPaymentError, code)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.LogError(h.log, component, "encode status", err)
	}
}
