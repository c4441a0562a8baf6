package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"start game", &StartGame{Timestamp: 1700000000000, PlayerName: "ali", GameMode: "rowing"}},
		{"start game without mode", &StartGame{Timestamp: 1700000000001, PlayerName: "mona"}},
		{"pause game", &PauseGame{Timestamp: 1700000000002}},
		{"resume game", &ResumeGame{Timestamp: 1700000000003}},
		{"reset game", &ResetGame{Timestamp: 1700000000004}},
		{"game mode", &GameMode{Timestamp: 1700000000005, Mode: "cycling"}},
		{"countdown go", &Countdown{Timestamp: 1700000000006, Value: 0}},
		{"countdown three", &Countdown{Timestamp: 1700000000007, Value: 3}},
		{"game data", &GameData{Timestamp: 1700000000008, CurrentDistance: 123.4, TotalDistance: 5000, CurrentSpeed: 3.2, CurrentTime: 42.5, ProgressPercent: 2.5}},
		{"game over", &GameOver{Timestamp: 1700000000009, FinalDistance: 5000, FinalTime: 1250.2, CompletedCourse: true}},
		{"game state", &GameState{Timestamp: 1700000000010, State: StatePlaying}},
		{"machine data", &MachineData{Timestamp: 1700000000011, Speed: 4.1, StrokeRate: 28, TotalDistance: 900.5, Power: 210}},
		{"game config", &GameConfig{
			Timestamp: 1700000000012,
			Modes: map[string]ModeConfig{
				"rowing": {RouteDistance: 2000, TimeLimit: 600, CountdownSeconds: 3, ResultsDisplaySeconds: 15, IdleTimeoutSeconds: 120, MachineTopic: "marathon/station1/machine/data"},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.env)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.env, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeStampsKind(t *testing.T) {
	data, err := Encode(&Countdown{Timestamp: 99, Value: 2})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("payload is not a JSON object: %v", err)
	}
	if fields["kind"] != "countdown" {
		t.Errorf("kind = %v, want countdown", fields["kind"])
	}
	if fields["value"] != float64(2) {
		t.Errorf("value = %v, want 2", fields["value"])
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	payload := []byte(`{"kind":"ledShow","timestamp":1700000000000,"pattern":"rainbow"}`)

	env, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v, unknown kinds must not fail", err)
	}
	u, ok := env.(*Unrecognized)
	if !ok {
		t.Fatalf("Decode() = %T, want *Unrecognized", env)
	}
	if u.RawKind != "ledShow" {
		t.Errorf("RawKind = %q, want ledShow", u.RawKind)
	}
	if u.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d, want 1700000000000", u.Timestamp)
	}
	if string(u.Raw) != string(payload) {
		t.Errorf("Raw = %s, want original payload", u.Raw)
	}

	// Unrecognized envelopes re-encode to their original bytes.
	out, err := Encode(u)
	if err != nil {
		t.Fatalf("Encode(unrecognized) error = %v", err)
	}
	if string(out) != string(payload) {
		t.Errorf("Encode(unrecognized) = %s, want original payload", out)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `not json at all`},
		{"array", `[1,2,3]`},
		{"string", `"startGame"`},
		{"missing kind", `{"timestamp":123}`},
		{"empty kind", `{"kind":"","timestamp":123}`},
		{"wrong field type", `{"kind":"countdown","timestamp":123,"value":"three"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if err == nil {
				t.Fatal("Decode() error = nil, want *DecodeError")
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Decode() error = %T, want *DecodeError", err)
			}
		})
	}
}

func TestDecodeToleratesMissingOptionalFields(t *testing.T) {
	// Older producers never sent gameMode on startGame.
	env, err := Decode([]byte(`{"kind":"startGame","timestamp":1,"playerName":"ali"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	start, ok := env.(*StartGame)
	if !ok {
		t.Fatalf("Decode() = %T, want *StartGame", env)
	}
	if start.GameMode != "" {
		t.Errorf("GameMode = %q, want empty default", start.GameMode)
	}
}
