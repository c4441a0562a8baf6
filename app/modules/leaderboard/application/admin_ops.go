package leaderboardservice

import (
	leaderboarddb "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/infrastructure/repositories"
)

// Admin operations back the dashboard HTTP surface only; the game protocol
// never deletes or clears. The kiosk board appears as one more mode, "fm".

// AdminModes lists every board the dashboard can address.
func (s *LeaderboardService) AdminModes() []string {
	return append(s.store.Modes(), leaderboarddb.KioskMode)
}

// AdminTop returns one board's current top-N.
func (s *LeaderboardService) AdminTop(mode string, n int) ([]leaderboarddb.RankedEntry, error) {
	return s.boardFor(mode).Top(mode, n)
}

// AdminDelete removes one entry from one board.
func (s *LeaderboardService) AdminDelete(mode, username string) error {
	return s.boardFor(mode).Delete(mode, username)
}

// AdminClear empties one board.
func (s *LeaderboardService) AdminClear(mode string) error {
	return s.boardFor(mode).Clear(mode)
}

func (s *LeaderboardService) boardFor(mode string) *leaderboarddb.Store {
	if mode == leaderboarddb.KioskMode {
		return s.kiosk
	}
	return s.store
}
