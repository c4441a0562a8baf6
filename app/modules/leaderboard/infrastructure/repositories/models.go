package leaderboarddb

import "time"

// Entry is one leaderboard row. Username is a case-insensitive unique key
// within its game mode; Score only ever increases across updates.
type Entry struct {
	Username  string    `json:"username"`
	Score     int       `json:"score"`
	Distance  float64   `json:"distance"`
	Time      float64   `json:"time"`
	StationID int       `json:"stationId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RankedEntry is an Entry annotated with its 1-based rank for responses and
// broadcasts.
type RankedEntry struct {
	Rank int `json:"rank"`
	Entry
}

// UpsertResult reports what UpsertIfHigher did. Exactly one of Created and
// Applied is set when the store changed; neither is set for a no-op
// resubmission.
type UpsertResult struct {
	Created       bool
	Applied       bool
	PreviousScore int
}
