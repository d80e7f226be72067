package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parasfix/betsol/internal/domain"
)

// fakeMatchService implements MatchService for handler tests.
type fakeMatchService struct {
	match   domain.Match
	report  domain.SettlementReport
	err     error
	created domain.Match
}

func (f *fakeMatchService) CreateMatch(_ context.Context, teamA, teamB string, oddsA, oddsB decimal.Decimal) (domain.Match, error) {
	if f.err != nil {
		return domain.Match{}, f.err
	}
	f.created = domain.Match{ID: 1, TeamA: teamA, TeamB: teamB, OddsA: oddsA, OddsB: oddsB, Status: domain.MatchStatusOpen}
	return f.created, nil
}

func (f *fakeMatchService) GetMatch(_ context.Context, id int64) (domain.Match, error) {
	if f.err != nil {
		return domain.Match{}, f.err
	}
	return f.match, nil
}

func (f *fakeMatchService) ListOpenMatches(_ context.Context, _ domain.ListOpts) ([]domain.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Match{f.match}, nil
}

func (f *fakeMatchService) ResolveMatch(_ context.Context, _ int64, _ string) (domain.SettlementReport, error) {
	if f.err != nil {
		return domain.SettlementReport{}, f.err
	}
	return f.report, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(new(strings.Builder), nil))
}

// mux builds a router with the same patterns the server registers, so path
// parameters resolve in tests.
func matchMux(h *MatchHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/matches", h.ListMatches)
	mux.HandleFunc("POST /api/matches", h.CreateMatch)
	mux.HandleFunc("GET /api/matches/{id}", h.GetMatch)
	mux.HandleFunc("POST /api/matches/{id}/resolve", h.ResolveMatch)
	return mux
}

func TestMatchHandlerGetMatch(t *testing.T) {
	svc := &fakeMatchService{match: domain.Match{
		ID: 7, TeamA: "badgers", TeamB: "otters", Status: domain.MatchStatusOpen,
	}}
	mux := matchMux(NewMatchHandler(svc, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/matches/7", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Match
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "badgers", got.TeamA)
}

func TestMatchHandlerGetMatchNotFound(t *testing.T) {
	svc := &fakeMatchService{err: domain.ErrNotFound}
	mux := matchMux(NewMatchHandler(svc, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/matches/99", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMatchHandlerGetMatchBadID(t *testing.T) {
	mux := matchMux(NewMatchHandler(&fakeMatchService{}, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/matches/abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchHandlerCreateMatch(t *testing.T) {
	svc := &fakeMatchService{}
	mux := matchMux(NewMatchHandler(svc, testLogger()))

	body := `{"team_a":"badgers","team_b":"otters","odds_a":1.8,"odds_b":2.1}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/matches", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "badgers", svc.created.TeamA)
	assert.True(t, svc.created.OddsA.Equal(decimal.NewFromFloat(1.8)))
}

func TestMatchHandlerCreateMatchInvalid(t *testing.T) {
	svc := &fakeMatchService{err: domain.ErrInvalidOdds}
	mux := matchMux(NewMatchHandler(svc, testLogger()))

	body := `{"team_a":"badgers","team_b":"otters","odds_a":0.5,"odds_b":2.1}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/matches", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchHandlerResolveMatch(t *testing.T) {
	svc := &fakeMatchService{report: domain.SettlementReport{
		MatchID: 7, Winner: "badgers", Winning: 2, Losing: 1, Forfeited: 1,
	}}
	mux := matchMux(NewMatchHandler(svc, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/matches/7/resolve",
		strings.NewReader(`{"winner":"badgers"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.SettlementReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "badgers", report.Winner)
	assert.Equal(t, 2, report.Winning)
}

func TestMatchHandlerResolveMatchAlreadyResolved(t *testing.T) {
	svc := &fakeMatchService{err: domain.ErrInvalidTransition}
	mux := matchMux(NewMatchHandler(svc, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/matches/7/resolve",
		strings.NewReader(`{"winner":"badgers"}`)))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// fakeWagerService implements WagerService for handler tests.
type fakeWagerService struct {
	wager domain.Wager
	err   error
}

func (f *fakeWagerService) CreateWager(_ context.Context, user string, matchID int64, side string, stake decimal.Decimal, wallet string) (domain.Wager, error) {
	if f.err != nil {
		return domain.Wager{}, f.err
	}
	return domain.Wager{
		ID: "w-1", UserHandle: user, MatchID: matchID, Side: side,
		Stake: stake, PayoutWallet: wallet, Status: domain.WagerStatusPending,
	}, nil
}

func (f *fakeWagerService) GetWager(_ context.Context, _ string) (domain.Wager, error) {
	if f.err != nil {
		return domain.Wager{}, f.err
	}
	return f.wager, nil
}

func (f *fakeWagerService) ListUserWagers(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Wager, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Wager{f.wager}, nil
}

func wagerMux(h *WagerHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/wagers", h.ListWagers)
	mux.HandleFunc("POST /api/wagers", h.CreateWager)
	mux.HandleFunc("GET /api/wagers/{id}", h.GetWager)
	return mux
}

func TestWagerHandlerCreateWager(t *testing.T) {
	mux := wagerMux(NewWagerHandler(&fakeWagerService{}, "treasury-addr", testLogger()))

	body := `{"user_handle":"alice","match_id":7,"side":"badgers","stake":0.5,"payout_wallet":"addr"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/wagers", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Wager          domain.Wager    `json:"wager"`
		DepositAmount  decimal.Decimal `json:"deposit_amount"`
		DepositAddress string          `json:"deposit_address"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "w-1", resp.Wager.ID)
	assert.True(t, resp.DepositAmount.Equal(decimal.NewFromFloat(0.5)))
	assert.Equal(t, "treasury-addr", resp.DepositAddress)
}

func TestWagerHandlerCreateWagerBadBody(t *testing.T) {
	mux := wagerMux(NewWagerHandler(&fakeWagerService{}, "treasury-addr", testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/wagers", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWagerHandlerCreateWagerStakeOutOfRange(t *testing.T) {
	mux := wagerMux(NewWagerHandler(&fakeWagerService{err: domain.ErrStakeOutOfRange}, "treasury-addr", testLogger()))

	body := `{"user_handle":"alice","match_id":7,"side":"badgers","stake":99,"payout_wallet":"addr"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/wagers", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWagerHandlerCreateWagerRateLimited(t *testing.T) {
	mux := wagerMux(NewWagerHandler(&fakeWagerService{err: domain.ErrRateLimited}, "treasury-addr", testLogger()))

	body := `{"user_handle":"alice","match_id":7,"side":"badgers","stake":0.5,"payout_wallet":"addr"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/wagers", strings.NewReader(body)))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWagerHandlerListWagersRequiresUser(t *testing.T) {
	mux := wagerMux(NewWagerHandler(&fakeWagerService{}, "treasury-addr", testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wagers", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWagerHandlerListWagers(t *testing.T) {
	svc := &fakeWagerService{wager: domain.Wager{ID: "w-1", UserHandle: "alice"}}
	mux := wagerMux(NewWagerHandler(svc, "treasury-addr", testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wagers?user=alice&limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listWagersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Wagers, 1)
	assert.Equal(t, 10, resp.Limit)
}

func TestParseListOptsClampsLimit(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/wagers?limit=9999&offset=3", nil)
	opts := parseListOpts(r)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 3, opts.Offset)

	r = httptest.NewRequest(http.MethodGet, "/api/wagers", nil)
	opts = parseListOpts(r)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}
