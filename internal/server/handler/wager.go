package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
)

// WagerService defines the methods that the wager handler requires from the
// service layer.
type WagerService interface {
	CreateWager(ctx context.Context, userHandle string, matchID int64, side string, stake decimal.Decimal, payoutWallet string) (domain.Wager, error)
	GetWager(ctx context.Context, id string) (domain.Wager, error)
	ListUserWagers(ctx context.Context, userHandle string, opts domain.ListOpts) ([]domain.Wager, error)
}

// WagerHandler serves wager-related HTTP endpoints.
type WagerHandler struct {
	wagers         WagerService
	depositAddress string
	logger         *slog.Logger
}

// NewWagerHandler creates a WagerHandler with the given service and logger.
// depositAddress is the treasury address returned in deposit instructions; it
// may be empty when the instance does not watch deposits itself.
func NewWagerHandler(wagers WagerService, depositAddress string, logger *slog.Logger) *WagerHandler {
	return &WagerHandler{
		wagers:         wagers,
		depositAddress: depositAddress,
		logger:         logger,
	}
}

// createWagerRequest is the JSON body for placing a wager.
type createWagerRequest struct {
	UserHandle   string          `json:"user_handle"`
	MatchID      int64           `json:"match_id"`
	Side         string          `json:"side"`
	Stake        decimal.Decimal `json:"stake"`
	PayoutWallet string          `json:"payout_wallet"`
}

// createWagerResponse includes the deposit instructions alongside the wager.
type createWagerResponse struct {
	Wager          domain.Wager    `json:"wager"`
	DepositAmount  decimal.Decimal `json:"deposit_amount"`
	DepositAddress string          `json:"deposit_address,omitempty"`
}

// listWagersResponse wraps the list endpoint output with pagination metadata.
type listWagersResponse struct {
	Wagers []domain.Wager `json:"wagers"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// CreateWager registers a pending wager awaiting its on-chain deposit.
// POST /api/wagers
func (h *WagerHandler) CreateWager(w http.ResponseWriter, r *http.Request) {
	var req createWagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wager, err := h.wagers.CreateWager(r.Context(), req.UserHandle, req.MatchID, req.Side, req.Stake, req.PayoutWallet)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "match not found")
		case errors.Is(err, domain.ErrMatchNotOpen):
			writeError(w, http.StatusConflict, "match is not open for wagers")
		case errors.Is(err, domain.ErrInvalidSide),
			errors.Is(err, domain.ErrStakeOutOfRange),
			errors.Is(err, domain.ErrInvalidWallet):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many wagers, slow down")
		default:
			h.logger.ErrorContext(r.Context(), "handler: create wager failed",
				slog.String("user", req.UserHandle),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create wager")
		}
		return
	}

	writeJSON(w, http.StatusCreated, createWagerResponse{
		Wager:          wager,
		DepositAmount:  wager.Stake,
		DepositAddress: h.depositAddress,
	})
}

// GetWager returns a single wager by its ID.
// GET /api/wagers/{id}
func (h *WagerHandler) GetWager(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing wager id")
		return
	}

	wager, err := h.wagers.GetWager(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "wager not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get wager failed",
			slog.String("wager_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get wager")
		return
	}

	writeJSON(w, http.StatusOK, wager)
}

// ListWagers returns a user's wagers, newest first.
// GET /api/wagers?user=alice&limit=50&offset=0
func (h *WagerHandler) ListWagers(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user query parameter")
		return
	}
	opts := parseListOpts(r)

	wagers, err := h.wagers.ListUserWagers(r.Context(), user, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list wagers failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list wagers")
		return
	}

	writeJSON(w, http.StatusOK, listWagersResponse{
		Wagers: wagers,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
