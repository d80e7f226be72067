// Package testutil provides in-memory implementations of the domain store
// and coordination interfaces for tests. They mirror the Postgres stores'
// contracts: versioned wager writes, conditional match resolution, and the
// transfer ref dedup gate.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/parasfix/betsol/internal/domain"
)

// MatchStore is an in-memory domain.MatchStore.
type MatchStore struct {
	mu      sync.Mutex
	nextID  int64
	matches map[int64]domain.Match
}

// NewMatchStore creates an empty MatchStore.
func NewMatchStore() *MatchStore {
	return &MatchStore{nextID: 1, matches: make(map[int64]domain.Match)}
}

func (s *MatchStore) Create(_ context.Context, m domain.Match) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextID
	s.nextID++
	s.matches[m.ID] = m
	return m, nil
}

func (s *MatchStore) GetByID(_ context.Context, id int64) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return domain.Match{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *MatchStore) ListOpen(_ context.Context, _ domain.ListOpts) ([]domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Match
	for _, m := range s.matches {
		if m.Status == domain.MatchStatusOpen {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MatchStore) ListCompletedBefore(_ context.Context, cutoff time.Time, _ domain.ListOpts) ([]domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Match
	for _, m := range s.matches {
		if m.Status == domain.MatchStatusCompleted && m.CompletedAt != nil && m.CompletedAt.Before(cutoff) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MatchStore) Resolve(_ context.Context, id int64, winner string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status != domain.MatchStatusOpen {
		return domain.ErrInvalidTransition
	}
	m.Status = domain.MatchStatusCompleted
	m.Winner = winner
	m.CompletedAt = &completedAt
	s.matches[id] = m
	return nil
}

// WagerStore is an in-memory domain.WagerStore with versioned writes.
type WagerStore struct {
	mu     sync.Mutex
	wagers map[string]domain.Wager
}

// NewWagerStore creates an empty WagerStore.
func NewWagerStore() *WagerStore {
	return &WagerStore{wagers: make(map[string]domain.Wager)}
}

func (s *WagerStore) Create(_ context.Context, w domain.Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.Version == 0 {
		w.Version = 1
	}
	s.wagers[w.ID] = w
	return nil
}

func (s *WagerStore) GetByID(_ context.Context, id string) (domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wagers[id]
	if !ok {
		return domain.Wager{}, domain.ErrNotFound
	}
	return w, nil
}

func (s *WagerStore) Update(_ context.Context, w domain.Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.wagers[w.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != w.Version {
		return domain.ErrVersionConflict
	}
	w.Version++
	s.wagers[w.ID] = w
	return nil
}

func (s *WagerStore) ListByUser(_ context.Context, userHandle string, _ domain.ListOpts) ([]domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Wager
	for _, w := range s.wagers {
		if w.UserHandle == userHandle {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *WagerStore) ListByMatch(_ context.Context, matchID int64) ([]domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Wager
	for _, w := range s.wagers {
		if w.MatchID == matchID {
			out = append(out, w)
		}
	}
	sortByCreatedAsc(out)
	return out, nil
}

func (s *WagerStore) ListPending(_ context.Context) ([]domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Wager
	for _, w := range s.wagers {
		if w.Status == domain.WagerStatusPending {
			out = append(out, w)
		}
	}
	sortByCreatedAsc(out)
	return out, nil
}

func (s *WagerStore) ListWonUnpaid(_ context.Context) ([]domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Wager
	for _, w := range s.wagers {
		if w.Status == domain.WagerStatusWon && w.PayoutRef == "" {
			out = append(out, w)
		}
	}
	sortByCreatedAsc(out)
	return out, nil
}

func sortByCreatedAsc(ws []domain.Wager) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].ID < ws[j].ID
		}
		return ws[i].CreatedAt.Before(ws[j].CreatedAt)
	})
}

// TransferStore is an in-memory domain.TransferStore.
type TransferStore struct {
	mu        sync.Mutex
	transfers map[string]domain.Transfer
}

// NewTransferStore creates an empty TransferStore.
func NewTransferStore() *TransferStore {
	return &TransferStore{transfers: make(map[string]domain.Transfer)}
}

func (s *TransferStore) Record(_ context.Context, t domain.Transfer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[t.Ref]; ok {
		return false, nil
	}
	if t.Status == "" {
		t.Status = domain.TransferStatusObserved
	}
	s.transfers[t.Ref] = t
	return true, nil
}

func (s *TransferStore) MarkMatched(_ context.Context, ref, wagerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[ref]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = domain.TransferStatusMatched
	t.WagerID = wagerID
	s.transfers[ref] = t
	return nil
}

func (s *TransferStore) MarkUnmatched(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[ref]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = domain.TransferStatusUnmatched
	s.transfers[ref] = t
	return nil
}

func (s *TransferStore) ListUnmatched(_ context.Context, _ domain.ListOpts) ([]domain.Transfer, error) {
	return s.listByStatus(domain.TransferStatusUnmatched), nil
}

func (s *TransferStore) ListObserved(_ context.Context, _ domain.ListOpts) ([]domain.Transfer, error) {
	return s.listByStatus(domain.TransferStatusObserved), nil
}

func (s *TransferStore) listByStatus(status domain.TransferStatus) []domain.Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transfer
	for _, t := range s.transfers {
		if t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out
}

// Get returns a recorded transfer by ref for test assertions.
func (s *TransferStore) Get(ref string) (domain.Transfer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[ref]
	return t, ok
}

// AuditStore is an in-memory domain.AuditStore.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *AuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEntry, len(s.entries))
	copy(out, s.entries)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Events returns logged event names in order for test assertions.
func (s *AuditStore) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Event
	}
	return out
}

// Compile-time interface checks.
var (
	_ domain.MatchStore    = (*MatchStore)(nil)
	_ domain.WagerStore    = (*WagerStore)(nil)
	_ domain.TransferStore = (*TransferStore)(nil)
	_ domain.AuditStore    = (*AuditStore)(nil)
)
