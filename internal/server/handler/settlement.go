package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
)

// PayoutService defines the methods that the settlement handler requires from
// the service layer.
type PayoutService interface {
	RunPayoutBatch(ctx context.Context) (domain.PayoutReport, error)
	OutstandingPayouts(ctx context.Context) ([]domain.Wager, error)
	TreasuryBalance(ctx context.Context) (decimal.Decimal, error)
}

// SettlementHandler serves payout and treasury HTTP endpoints.
type SettlementHandler struct {
	payouts PayoutService
	logger  *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given service and
// logger.
func NewSettlementHandler(payouts PayoutService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		payouts: payouts,
		logger:  logger,
	}
}

// outstandingResponse wraps the outstanding payout list.
type outstandingResponse struct {
	Wagers []domain.Wager `json:"wagers"`
	Count  int            `json:"count"`
}

// RunPayoutBatch triggers an immediate payout pass over all won, unpaid
// wagers. The background runner performs the same pass on a timer; this
// endpoint exists for operators who do not want to wait for the next tick.
// POST /api/payouts/run
func (h *SettlementHandler) RunPayoutBatch(w http.ResponseWriter, r *http.Request) {
	report, err := h.payouts.RunPayoutBatch(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: payout batch failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "payout batch failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ListOutstanding returns won wagers that have not been paid yet.
// GET /api/payouts/outstanding
func (h *SettlementHandler) ListOutstanding(w http.ResponseWriter, r *http.Request) {
	wagers, err := h.payouts.OutstandingPayouts(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list outstanding payouts failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list outstanding payouts")
		return
	}

	writeJSON(w, http.StatusOK, outstandingResponse{
		Wagers: wagers,
		Count:  len(wagers),
	})
}

// TreasuryBalance returns the current balance of the payout wallet.
// GET /api/treasury/balance
func (h *SettlementHandler) TreasuryBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.payouts.TreasuryBalance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: treasury balance failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch treasury balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance": balance,
	})
}
