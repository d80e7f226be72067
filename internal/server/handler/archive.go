package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// SettledArchiver defines the archive operation the handler requires.
type SettledArchiver interface {
	ArchiveSettled(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveHandler triggers archival of settled matches to object storage. It
// is only registered when archiving is enabled in the configuration.
type ArchiveHandler struct {
	archiver SettledArchiver
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler with the given archiver and
// logger.
func NewArchiveHandler(archiver SettledArchiver, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiver: archiver,
		logger:   logger,
	}
}

// Run archives matches settled before the optional `before` query parameter
// (RFC 3339), defaulting to the current time.
// POST /api/archive/run?before=2026-01-01T00:00:00Z
func (h *ArchiveHandler) Run(w http.ResponseWriter, r *http.Request) {
	before := time.Now().UTC()
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before timestamp, expected RFC 3339")
			return
		}
		before = t
	}

	count, err := h.archiver.ArchiveSettled(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive run failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive run failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"archived": count,
		"before":   before.Format(time.RFC3339),
	})
}
