package leaderboarddb

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
)

var testModes = []string{"rowing", "running", "cycling"}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewStore(t.TempDir(), testModes, logger)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestNewStoreMissingFilesStartEmpty(t *testing.T) {
	store := newTestStore(t)
	for _, mode := range testModes {
		top, err := store.Top(mode, 10)
		if err != nil {
			t.Fatalf("Top(%q) error = %v", mode, err)
		}
		if len(top) != 0 {
			t.Errorf("Top(%q) = %d entries, want empty", mode, len(top))
		}
	}
}

func TestNewStoreCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "leaderboard_rowing.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewStore(dir, testModes, logger)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	top, err := store.Top("rowing", 10)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	if len(top) != 0 {
		t.Errorf("Top() = %d entries, want empty after corrupt file", len(top))
	}

	// The file is recreated on the next mutation.
	if _, err := store.UpsertIfHigher("rowing", "ali", 100, 100, 12, 1); err != nil {
		t.Fatalf("UpsertIfHigher() error = %v", err)
	}
	reloaded, err := NewStore(dir, testModes, logger)
	if err != nil {
		t.Fatalf("NewStore() reload error = %v", err)
	}
	if _, found := reloaded.FindByUsername("rowing", "ali"); !found {
		t.Error("entry written after corrupt load was not persisted")
	}
}

func TestUpsertIfHigher(t *testing.T) {
	store := newTestStore(t)

	res, err := store.UpsertIfHigher("rowing", "ali", 500, 500, 60, 1)
	if err != nil {
		t.Fatalf("UpsertIfHigher() error = %v", err)
	}
	if !res.Created || res.Applied {
		t.Errorf("first submit = %+v, want Created", res)
	}

	// Lower score is a no-op.
	res, err = store.UpsertIfHigher("rowing", "ali", 300, 300, 40, 2)
	if err != nil {
		t.Fatalf("UpsertIfHigher() error = %v", err)
	}
	if res.Created || res.Applied {
		t.Errorf("lower resubmit = %+v, want no-op", res)
	}
	if res.PreviousScore != 500 {
		t.Errorf("PreviousScore = %d, want 500", res.PreviousScore)
	}

	// Equal score is also a no-op.
	res, _ = store.UpsertIfHigher("rowing", "ali", 500, 500, 55, 2)
	if res.Created || res.Applied {
		t.Errorf("equal resubmit = %+v, want no-op", res)
	}

	// Higher score replaces score, distance, time and station.
	res, err = store.UpsertIfHigher("rowing", "ali", 800, 800, 90, 2)
	if err != nil {
		t.Fatalf("UpsertIfHigher() error = %v", err)
	}
	if res.Created || !res.Applied {
		t.Errorf("higher resubmit = %+v, want Applied", res)
	}

	entry, found := store.FindByUsername("rowing", "ali")
	if !found {
		t.Fatal("FindByUsername() found = false")
	}
	if entry.Score != 800 || entry.Distance != 800 || entry.Time != 90 || entry.StationID != 2 {
		t.Errorf("entry after update = %+v", entry)
	}
	if !entry.UpdatedAt.After(entry.CreatedAt) && !entry.UpdatedAt.Equal(entry.CreatedAt) {
		t.Errorf("UpdatedAt %v precedes CreatedAt %v", entry.UpdatedAt, entry.CreatedAt)
	}
}

func TestUpsertIfHigherUnknownMode(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.UpsertIfHigher("swimming", "ali", 10, 10, 1, 1); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("UpsertIfHigher(unknown mode) error = %v, want ErrUnknownMode", err)
	}
}

func TestUsernameIsCaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	store.UpsertIfHigher("rowing", "Ali", 100, 100, 10, 1)

	res, err := store.UpsertIfHigher("rowing", "ALI", 200, 200, 20, 1)
	if err != nil {
		t.Fatalf("UpsertIfHigher() error = %v", err)
	}
	if res.Created {
		t.Error("case-variant username created a second entry")
	}
	if !res.Applied {
		t.Error("higher score on case-variant username was not applied")
	}

	if _, found := store.FindByUsername("rowing", "aLi"); !found {
		t.Error("FindByUsername() is not case-insensitive")
	}
	if modes := store.ExistsAcrossModes("ali"); len(modes) != 1 || modes[0] != "rowing" {
		t.Errorf("ExistsAcrossModes() = %v, want [rowing]", modes)
	}
}

func TestTopSortedAndStable(t *testing.T) {
	store := newTestStore(t)
	store.UpsertIfHigher("running", "first", 300, 300, 30, 1)
	store.UpsertIfHigher("running", "second", 500, 500, 50, 1)
	store.UpsertIfHigher("running", "third", 300, 300, 31, 2) // same score as first, registered later
	store.UpsertIfHigher("running", "fourth", 100, 100, 10, 2)

	top, err := store.Top("running", 3)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("Top() = %d entries, want 3", len(top))
	}

	wantOrder := []string{"second", "first", "third"}
	for i, want := range wantOrder {
		if top[i].Username != want {
			t.Errorf("rank %d = %q, want %q", i+1, top[i].Username, want)
		}
		if top[i].Rank != i+1 {
			t.Errorf("Rank = %d, want %d", top[i].Rank, i+1)
		}
	}
}

func TestDeleteAndClear(t *testing.T) {
	store := newTestStore(t)
	store.UpsertIfHigher("cycling", "ali", 100, 100, 10, 1)
	store.UpsertIfHigher("cycling", "mona", 200, 200, 20, 1)

	if err := store.Delete("cycling", "ALI"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found := store.FindByUsername("cycling", "ali"); found {
		t.Error("entry still present after Delete()")
	}
	if err := store.Delete("cycling", "ali"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrEntryNotFound", err)
	}
	if err := store.Delete("swimming", "ali"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("Delete(unknown mode) error = %v, want ErrUnknownMode", err)
	}

	if err := store.Clear("cycling"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	top, _ := store.Top("cycling", 10)
	if len(top) != 0 {
		t.Errorf("Top() after Clear() = %d entries, want 0", len(top))
	}
}

func TestMutationsPersistAcrossReload(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := NewStore(dir, testModes, logger)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	store.UpsertIfHigher("rowing", "ali", 500, 500, 60, 1)
	store.UpsertIfHigher("rowing", "mona", 700, 700, 80, 2)
	store.UpsertIfHigher("running", "ali", 300, 300, 30, 1)
	store.Delete("rowing", "ali")

	reloaded, err := NewStore(dir, testModes, logger)
	if err != nil {
		t.Fatalf("NewStore() reload error = %v", err)
	}

	if _, found := reloaded.FindByUsername("rowing", "ali"); found {
		t.Error("deleted entry resurfaced after reload")
	}
	entry, found := reloaded.FindByUsername("rowing", "mona")
	if !found {
		t.Fatal("entry lost across reload")
	}
	if entry.Score != 700 || entry.StationID != 2 {
		t.Errorf("reloaded entry = %+v", entry)
	}
	if modes := reloaded.ExistsAcrossModes("ali"); len(modes) != 1 || modes[0] != "running" {
		t.Errorf("ExistsAcrossModes() after reload = %v, want [running]", modes)
	}
}

func TestKioskStoreIsIndependent(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	main, err := NewStore(dir, testModes, logger)
	if err != nil {
		t.Fatal(err)
	}
	kiosk, err := NewStore(dir, []string{KioskMode}, logger)
	if err != nil {
		t.Fatal(err)
	}

	main.UpsertIfHigher("rowing", "ali", 500, 500, 60, 1)
	if modes := kiosk.ExistsAcrossModes("ali"); len(modes) != 0 {
		t.Errorf("kiosk store sees main store entries: %v", modes)
	}

	kiosk.UpsertIfHigher(KioskMode, "ali", 42, 42, 5, 0)
	if modes := main.ExistsAcrossModes("ali"); len(modes) != 1 || modes[0] != "rowing" {
		t.Errorf("main store sees kiosk entries: %v", modes)
	}
}

func TestTopWithGeneratedPopulation(t *testing.T) {
	faker := gofakeit.New(7)
	store := newTestStore(t)

	best := ""
	bestScore := -1
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("%s%d", faker.Gamertag(), i)
		score := faker.Number(0, 10000)
		if _, err := store.UpsertIfHigher("rowing", name, score, float64(score), faker.Float64Range(10, 600), faker.Number(1, 4)); err != nil {
			t.Fatal(err)
		}
		if score > bestScore {
			bestScore, best = score, name
		}
	}

	top, err := store.Top("rowing", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 10 {
		t.Fatalf("Top() returned %d entries, want 10", len(top))
	}
	if top[0].Username != best || top[0].Score != bestScore {
		t.Errorf("rank 1 = %s/%d, want %s/%d", top[0].Username, top[0].Score, best, bestScore)
	}
	for i := 1; i < len(top); i++ {
		if top[i].Score > top[i-1].Score {
			t.Errorf("ranks %d and %d out of order", i, i+1)
		}
		if top[i].Rank != i+1 {
			t.Errorf("rank annotation = %d, want %d", top[i].Rank, i+1)
		}
	}
}
