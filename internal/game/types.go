package game

import "encoding/json"

// Envelope WS envelope: {"type":"...","payload":{...}}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound event names.
const (
	EventGameState           = "game-state"
	EventBattleStarted       = "battle-started"
	EventTimerUpdate         = "timer-update"
	EventPromptUpdate        = "prompt-update"
	EventImagesReady         = "images-ready"
	EventWinnerSelected      = "winner-selected"
	EventGameReset           = "game-reset"
	EventBracketUpdated      = "bracket-updated"
	EventMatchReady          = "match-ready"
	EventBracketFinished     = "bracket-finished"
	EventSlotRemovalBlocked  = "player-slot-removal-blocked"
	EventCompetitionStarted  = "competition-started"
	EventCompetitionFinished = "competition-finished"
)

// Inbound payloads.
type JoinPayload struct {
	SlotID string `json:"slotId,omitempty"`
	Name   string `json:"name,omitempty"`
}

type SetTargetPayload struct {
	Type          string `json:"type"`
	Content       string `json:"content"`
	ImageURL      string `json:"imageUrl,omitempty"`
	ImageFilename string `json:"imageFilename,omitempty"`
}

type StartBattlePayload struct {
	Duration int `json:"duration"`
}

type PromptUpdatePayload struct {
	SlotID string `json:"slotId"`
	Text   string `json:"text"`
}

type SlotPayload struct {
	SlotID string `json:"slotId"`
}

type SetNamePayload struct {
	SlotID string `json:"slotId"`
	Name   string `json:"name"`
}

type StartCompetitionPayload struct {
	Mode       string `json:"mode,omitempty"`
	RoundLimit int    `json:"roundLimit,omitempty"`
	PointLimit int    `json:"pointLimit,omitempty"`
}

type CreateBracketPayload struct {
	SeedOrder []string `json:"seedOrder"`
}

// Outbound payloads.
type BattleStartedPayload struct {
	Duration int `json:"duration"`
}

type TimerUpdatePayload struct {
	Seconds int `json:"seconds"`
}

type WinnerSelectedPayload struct {
	SlotID string `json:"slotId"`
}

type BracketUpdatedPayload struct {
	Bracket           *Bracket  `json:"bracket"`
	CurrentMatch      *MatchRef `json:"currentMatch"`
	EliminatedPlayers []string  `json:"eliminatedPlayers"`
}

type MatchReadyPayload struct {
	RoundIndex int       `json:"roundIndex"`
	MatchIndex int       `json:"matchIndex"`
	Players    [2]string `json:"players"`
}

type BracketFinishedPayload struct {
	Bracket  *Bracket `json:"bracket"`
	Champion string   `json:"champion"`
}

type SlotRemovalBlockedPayload struct {
	MinimumSlots int `json:"minimumSlots"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
