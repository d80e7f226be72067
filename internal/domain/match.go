package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus represents the lifecycle state of a match.
type MatchStatus string

const (
	MatchStatusOpen      MatchStatus = "open"
	MatchStatusCompleted MatchStatus = "completed"
)

// Match is a two-sided event with fixed odds, open for wagering until an
// admin resolves it. Odds are immutable after creation; Winner is set if and
// only if Status is completed.
type Match struct {
	ID          int64
	TeamA       string
	TeamB       string
	OddsA       decimal.Decimal
	OddsB       decimal.Decimal
	Status      MatchStatus
	Winner      string // one of TeamA/TeamB, empty until completed
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// HasSide reports whether side equals one of the match's two team labels.
func (m Match) HasSide(side string) bool {
	return side == m.TeamA || side == m.TeamB
}

// OddsFor returns the odds recorded for the given side. The second return
// value is false when side is not one of the match's team labels.
func (m Match) OddsFor(side string) (decimal.Decimal, bool) {
	switch side {
	case m.TeamA:
		return m.OddsA, true
	case m.TeamB:
		return m.OddsB, true
	default:
		return decimal.Zero, false
	}
}

// SettlementReport summarises one match resolution.
type SettlementReport struct {
	MatchID   int64  `json:"match_id"`
	Winner    string `json:"winner"`
	Winning   int    `json:"winning_count"`
	Losing    int    `json:"losing_count"`
	Forfeited int    `json:"forfeited_count"` // pending at resolution time
}

// PayoutReport summarises one payout batch run.
type PayoutReport struct {
	Paid        int `json:"paid_count"`
	Outstanding int `json:"outstanding_count"`
}
