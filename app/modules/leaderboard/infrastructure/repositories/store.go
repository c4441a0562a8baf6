package leaderboarddb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// KioskMode is the single pseudo-mode of the flat kiosk ("FM") store.
const KioskMode = "fm"

// Store holds one ordered entry collection per game mode, backed by one JSON
// file per mode. Every mutation rewrites the mode's file in full; entry
// counts are small enough that no append log is needed. The store favors
// availability over durability: a failed write is logged and the in-memory
// state stays authoritative.
//
// Protocol handlers run on the single processing loop, but the dashboard
// reads and administers the store from HTTP goroutines, so access is guarded
// here rather than in the handlers.
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	order  []string
	boards map[string][]Entry // insertion order preserved; mirrors file order
}

// NewStore loads one board per mode from dir. A missing or corrupt file
// yields an empty board; the file is recreated on the next mutation.
func NewStore(dir string, modes []string, logger *slog.Logger) (*Store, error) {
	if len(modes) == 0 {
		return nil, errors.New("leaderboard store needs at least one game mode")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		dir:    dir,
		logger: logger,
		now:    time.Now,
		order:  append([]string(nil), modes...),
		boards: make(map[string][]Entry, len(modes)),
	}
	for _, mode := range modes {
		s.boards[mode] = s.load(mode)
	}
	return s, nil
}

// Modes returns the game modes this store was created with, in order.
func (s *Store) Modes() []string {
	return append([]string(nil), s.order...)
}

// FindByUsername looks an entry up by case-insensitive username.
func (s *Store) FindByUsername(mode, username string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.boards[mode] {
		if strings.EqualFold(e.Username, username) {
			return e, true
		}
	}
	return Entry{}, false
}

// UpsertIfHigher creates the entry if absent, replaces score/distance/time/
// station when the new score is strictly greater, and is a persisted no-op
// otherwise. UpdatedAt is only touched when the store actually changed.
func (s *Store) UpsertIfHigher(mode, username string, score int, distance, elapsed float64, stationID int) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[mode]
	if !ok {
		return UpsertResult{}, ErrUnknownMode
	}

	now := s.now()
	for i := range board {
		if !strings.EqualFold(board[i].Username, username) {
			continue
		}
		res := UpsertResult{PreviousScore: board[i].Score}
		if score > board[i].Score {
			board[i].Score = score
			board[i].Distance = distance
			board[i].Time = elapsed
			board[i].StationID = stationID
			board[i].UpdatedAt = now
			res.Applied = true
			s.persist(mode)
		}
		return res, nil
	}

	s.boards[mode] = append(board, Entry{
		Username:  username,
		Score:     score,
		Distance:  distance,
		Time:      elapsed,
		StationID: stationID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	s.persist(mode)
	return UpsertResult{Created: true}, nil
}

// Top returns the n best entries sorted by score descending, rank-annotated
// 1..n. The sort is stable: of two equal scores the first-registered entry
// ranks higher.
func (s *Store) Top(mode string, n int) ([]RankedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	board, ok := s.boards[mode]
	if !ok {
		return nil, ErrUnknownMode
	}

	sorted := append([]Entry(nil), board...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	if n > len(sorted) {
		n = len(sorted)
	}
	ranked := make([]RankedEntry, 0, n)
	for i := 0; i < n; i++ {
		ranked = append(ranked, RankedEntry{Rank: i + 1, Entry: sorted[i]})
	}
	return ranked, nil
}

// ExistsAcrossModes returns every mode that already holds the username, for
// uniqueness checks that are not scoped to one mode.
func (s *Store) ExistsAcrossModes(username string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var modes []string
	for _, mode := range s.order {
		for _, e := range s.boards[mode] {
			if strings.EqualFold(e.Username, username) {
				modes = append(modes, mode)
				break
			}
		}
	}
	return modes
}

// Delete removes one entry. Administrative operation, persisted immediately.
func (s *Store) Delete(mode, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[mode]
	if !ok {
		return ErrUnknownMode
	}
	for i := range board {
		if strings.EqualFold(board[i].Username, username) {
			s.boards[mode] = append(board[:i], board[i+1:]...)
			s.persist(mode)
			return nil
		}
	}
	return ErrEntryNotFound
}

// Clear empties one mode's board. Administrative operation, persisted
// immediately.
func (s *Store) Clear(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[mode]; !ok {
		return ErrUnknownMode
	}
	s.boards[mode] = nil
	s.persist(mode)
	return nil
}

// Flush rewrites every mode's file. Called once during shutdown so a write
// that failed earlier gets a last chance to land.
func (s *Store) Flush() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, mode := range s.order {
		s.persist(mode)
	}
}

func (s *Store) fileFor(mode string) string {
	return filepath.Join(s.dir, "leaderboard_"+mode+".json")
}

func (s *Store) load(mode string) []Entry {
	data, err := os.ReadFile(s.fileFor(mode))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to read leaderboard file, starting empty",
				slog.String("mode", mode), slog.Any("error", err))
		}
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("corrupt leaderboard file, starting empty",
			slog.String("mode", mode), slog.Any("error", err))
		return nil
	}
	return entries
}

// persist rewrites one mode's file in full. Callers hold s.mu. Failures are
// logged, never propagated: the in-memory board stays authoritative and the
// next successful write recovers durability.
func (s *Store) persist(mode string) {
	entries := s.boards[mode]
	if entries == nil {
		entries = []Entry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		s.logger.Error("failed to serialize leaderboard",
			slog.String("mode", mode), slog.Any("error", err))
		return
	}
	if err := os.WriteFile(s.fileFor(mode), data, 0o644); err != nil {
		s.logger.Error("failed to persist leaderboard, in-memory state remains authoritative",
			slog.String("mode", mode), slog.Any("error", err))
	}
}
