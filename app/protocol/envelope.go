package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates envelope variants on the wire.
type Kind string

const (
	KindStartGame   Kind = "startGame"
	KindPauseGame   Kind = "pauseGame"
	KindResumeGame  Kind = "resumeGame"
	KindResetGame   Kind = "resetGame"
	KindGameMode    Kind = "gameMode"
	KindCountdown   Kind = "countdown"
	KindGameData    Kind = "gameData"
	KindGameOver    Kind = "gameOver"
	KindGameState   Kind = "gameState"
	KindMachineData Kind = "machineData"
	KindGameConfig  Kind = "gameConfig"
)

// State is the game session state carried by GameState envelopes.
type State string

const (
	StateIdle      State = "Idle"
	StateCountdown State = "Countdown"
	StatePlaying   State = "Playing"
	StatePaused    State = "Paused"
	StateFinished  State = "Finished"
)

// Envelope is one typed message exchanged over the bus. Every variant
// carries a producer-clock timestamp in milliseconds since epoch.
type Envelope interface {
	EnvelopeKind() Kind
}

// StartGame asks the game display to begin a session.
type StartGame struct {
	Timestamp  int64  `json:"timestamp"`
	PlayerName string `json:"playerName"`
	GameMode   string `json:"gameMode,omitempty"`
}

// PauseGame suspends the running session.
type PauseGame struct {
	Timestamp int64 `json:"timestamp"`
}

// ResumeGame continues a paused session.
type ResumeGame struct {
	Timestamp int64 `json:"timestamp"`
}

// ResetGame returns the station to the idle screen.
type ResetGame struct {
	Timestamp int64 `json:"timestamp"`
}

// GameMode selects the active discipline before a session starts.
type GameMode struct {
	Timestamp int64  `json:"timestamp"`
	Mode      string `json:"mode"`
}

// Countdown ticks 3, 2, 1, 0 before the start; 0 means "go".
type Countdown struct {
	Timestamp int64 `json:"timestamp"`
	Value     int   `json:"value"`
}

// GameData is the live progress feed from game to tablet.
type GameData struct {
	Timestamp       int64   `json:"timestamp"`
	CurrentDistance float64 `json:"currentDistance"`
	TotalDistance   float64 `json:"totalDistance"`
	CurrentSpeed    float64 `json:"currentSpeed"`
	CurrentTime     float64 `json:"currentTime"`
	ProgressPercent float64 `json:"progressPercent"`
}

// GameOver reports the final result of a session.
type GameOver struct {
	Timestamp       int64   `json:"timestamp"`
	FinalDistance   float64 `json:"finalDistance"`
	FinalTime       float64 `json:"finalTime"`
	CompletedCourse bool    `json:"completedCourse"`
}

// GameState announces session state transitions.
type GameState struct {
	Timestamp int64 `json:"timestamp"`
	State     State `json:"state"`
}

// MachineData is the raw sensor feed from the exercise machine.
type MachineData struct {
	Timestamp     int64   `json:"timestamp"`
	Speed         float64 `json:"speed"`
	StrokeRate    float64 `json:"strokeRate"`
	TotalDistance float64 `json:"totalDistance"`
	Power         float64 `json:"power"`
}

// GameConfig carries the per-mode route configuration broadcast.
type GameConfig struct {
	Timestamp int64                 `json:"timestamp"`
	Modes     map[string]ModeConfig `json:"modes"`
}

// ModeConfig is the route configuration for one game mode. Immutable for
// a process lifetime once loaded.
type ModeConfig struct {
	RouteDistance         float64 `json:"routeDistance"`
	TimeLimit             float64 `json:"timeLimit"`
	CountdownSeconds      int     `json:"countdownSeconds"`
	ResultsDisplaySeconds int     `json:"resultsDisplaySeconds"`
	IdleTimeoutSeconds    int     `json:"idleTimeoutSeconds"`
	MachineTopic          string  `json:"machineTopic,omitempty"`
}

// Unrecognized is returned for structurally valid envelopes whose kind this
// build does not know. Decoding never fails hard on new kinds so that old
// backends tolerate newer producers.
type Unrecognized struct {
	RawKind   string
	Timestamp int64
	Raw       json.RawMessage
}

func (e *StartGame) EnvelopeKind() Kind    { return KindStartGame }
func (e *PauseGame) EnvelopeKind() Kind    { return KindPauseGame }
func (e *ResumeGame) EnvelopeKind() Kind   { return KindResumeGame }
func (e *ResetGame) EnvelopeKind() Kind    { return KindResetGame }
func (e *GameMode) EnvelopeKind() Kind     { return KindGameMode }
func (e *Countdown) EnvelopeKind() Kind    { return KindCountdown }
func (e *GameData) EnvelopeKind() Kind     { return KindGameData }
func (e *GameOver) EnvelopeKind() Kind     { return KindGameOver }
func (e *GameState) EnvelopeKind() Kind    { return KindGameState }
func (e *MachineData) EnvelopeKind() Kind  { return KindMachineData }
func (e *GameConfig) EnvelopeKind() Kind   { return KindGameConfig }
func (e *Unrecognized) EnvelopeKind() Kind { return Kind(e.RawKind) }

// DecodeError reports a payload that is not a valid envelope at all, as
// opposed to a valid envelope of an unknown kind.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode envelope: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes an envelope to its wire payload, stamping the kind
// discriminator alongside the variant's own fields.
func Encode(env Envelope) ([]byte, error) {
	if u, ok := env.(*Unrecognized); ok && len(u.Raw) > 0 {
		return u.Raw, nil
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", env.EnvelopeKind(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to assemble %s envelope: %w", env.EnvelopeKind(), err)
	}

	kind, err := json.Marshal(env.EnvelopeKind())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal kind discriminator: %w", err)
	}
	fields["kind"] = kind

	return json.Marshal(fields)
}

// Decode parses a wire payload into its typed envelope. Unknown kinds decode
// to *Unrecognized; only malformed payloads return a *DecodeError.
func Decode(data []byte) (Envelope, error) {
	var head struct {
		Kind      *string `json:"kind"`
		Timestamp int64   `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &DecodeError{Reason: "payload is not an envelope object", Err: err}
	}
	if head.Kind == nil || *head.Kind == "" {
		return nil, &DecodeError{Reason: "missing kind discriminator"}
	}

	var env Envelope
	switch Kind(*head.Kind) {
	case KindStartGame:
		env = &StartGame{}
	case KindPauseGame:
		env = &PauseGame{}
	case KindResumeGame:
		env = &ResumeGame{}
	case KindResetGame:
		env = &ResetGame{}
	case KindGameMode:
		env = &GameMode{}
	case KindCountdown:
		env = &Countdown{}
	case KindGameData:
		env = &GameData{}
	case KindGameOver:
		env = &GameOver{}
	case KindGameState:
		env = &GameState{}
	case KindMachineData:
		env = &MachineData{}
	case KindGameConfig:
		env = &GameConfig{}
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return &Unrecognized{RawKind: *head.Kind, Timestamp: head.Timestamp, Raw: raw}, nil
	}

	if err := json.Unmarshal(data, env); err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("malformed %s payload", *head.Kind), Err: err}
	}
	return env, nil
}
