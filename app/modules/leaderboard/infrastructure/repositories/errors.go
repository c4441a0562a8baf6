package leaderboarddb

import "errors"

var (
	// ErrUnknownMode is returned for a game mode the store was not created with.
	ErrUnknownMode = errors.New("unknown game mode")

	// ErrEntryNotFound is returned by Delete when no entry matches.
	ErrEntryNotFound = errors.New("leaderboard entry not found")
)
