package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/parasfix/betsol/internal/domain"
)

// TransferLister defines the store methods the transfer handler requires.
type TransferLister interface {
	ListUnmatched(ctx context.Context, opts domain.ListOpts) ([]domain.Transfer, error)
}

// TransferHandler serves deposit-transfer HTTP endpoints used for manual
// reconciliation.
type TransferHandler struct {
	transfers TransferLister
	logger    *slog.Logger
}

// NewTransferHandler creates a TransferHandler with the given store and logger.
func NewTransferHandler(transfers TransferLister, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		logger:    logger,
	}
}

// listTransfersResponse wraps the list endpoint output with pagination
// metadata.
type listTransfersResponse struct {
	Transfers []domain.Transfer `json:"transfers"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

// ListUnmatched returns observed deposits that could not be matched to any
// pending wager, oldest first.
// GET /api/transfers/unmatched
func (h *TransferHandler) ListUnmatched(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	transfers, err := h.transfers.ListUnmatched(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list unmatched transfers failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list unmatched transfers")
		return
	}

	writeJSON(w, http.StatusOK, listTransfersResponse{
		Transfers: transfers,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}
