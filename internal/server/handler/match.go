package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
)

// MatchService defines the methods that the match handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MatchService interface {
	CreateMatch(ctx context.Context, teamA, teamB string, oddsA, oddsB decimal.Decimal) (domain.Match, error)
	GetMatch(ctx context.Context, id int64) (domain.Match, error)
	ListOpenMatches(ctx context.Context, opts domain.ListOpts) ([]domain.Match, error)
	ResolveMatch(ctx context.Context, id int64, winner string) (domain.SettlementReport, error)
}

// MatchHandler serves match-related HTTP endpoints.
type MatchHandler struct {
	matches MatchService
	logger  *slog.Logger
}

// NewMatchHandler creates a MatchHandler with the given service and logger.
func NewMatchHandler(matches MatchService, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{
		matches: matches,
		logger:  logger,
	}
}

// createMatchRequest is the JSON body for creating a match.
type createMatchRequest struct {
	TeamA string          `json:"team_a"`
	TeamB string          `json:"team_b"`
	OddsA decimal.Decimal `json:"odds_a"`
	OddsB decimal.Decimal `json:"odds_b"`
}

// resolveMatchRequest is the JSON body for resolving a match.
type resolveMatchRequest struct {
	Winner string `json:"winner"`
}

// listMatchesResponse wraps the list endpoint output with pagination metadata.
type listMatchesResponse struct {
	Matches []domain.Match `json:"matches"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// CreateMatch opens a new match for wagering.
// POST /api/matches
func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	match, err := h.matches.CreateMatch(r.Context(), req.TeamA, req.TeamB, req.OddsA, req.OddsB)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSide) || errors.Is(err, domain.ErrInvalidOdds) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create match failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create match")
		return
	}

	writeJSON(w, http.StatusCreated, match)
}

// ListMatches returns matches that are open for wagering.
// GET /api/matches?limit=50&offset=0
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	matches, err := h.matches.ListOpenMatches(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list matches failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	writeJSON(w, http.StatusOK, listMatchesResponse{
		Matches: matches,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMatch returns a single match by its ID.
// GET /api/matches/{id}
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}

	match, err := h.matches.GetMatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get match failed",
			slog.Int64("match_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get match")
		return
	}

	writeJSON(w, http.StatusOK, match)
}

// ResolveMatch declares the winner of a match and settles every wager on it.
// POST /api/matches/{id}/resolve
func (h *MatchHandler) ResolveMatch(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}

	var req resolveMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.matches.ResolveMatch(r.Context(), id, req.Winner)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "match not found")
		case errors.Is(err, domain.ErrUnknownSide):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "match is already resolved")
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "match is being settled by another request")
		default:
			h.logger.ErrorContext(r.Context(), "handler: resolve match failed",
				slog.Int64("match_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve match")
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// matchID parses the {id} path segment as an int64 match identifier.
func matchID(r *http.Request) (int64, error) {
	return strconv.ParseInt(pathParam(r, "id"), 10, 64)
}
