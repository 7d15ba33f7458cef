package game

import "fmt"

// SetTarget installs the shared challenge and readies the game. Only
// legal between battles.
func (g *Game) SetTarget(t Target) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseWaiting && g.phase != PhaseReady {
		return fmt.Errorf("%w: set-target in %s", ErrInvalidTransition, g.phase)
	}
	if t.Type != "text" && t.Type != "image" {
		return fmt.Errorf("%w: target type %q", ErrInvalidTransition, t.Type)
	}

	g.target = &t
	g.phase = PhaseReady
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

// StartBattle opens the prompt-writing countdown. Requires a target and
// at least two connected players; the check is re-done here even though
// the admin UI disables the button, so a raw client cannot skip it.
func (g *Game) StartBattle(durationSec int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseReady {
		return fmt.Errorf("%w: start-battle in %s", ErrInvalidTransition, g.phase)
	}
	if g.target == nil {
		return ErrNoTarget
	}
	if g.connectedCountLocked() < minSlots {
		return ErrNotEnoughPlayers
	}
	if durationSec <= 0 {
		durationSec = g.cfg.DefaultBattleSeconds
	}

	g.prompts = make(map[string]string)
	g.images = make(map[string]Artifact)
	g.winner = ""
	g.roundNumber++
	g.phase = PhaseBattling
	g.startTimerLocked(durationSec)

	g.broadcastLocked(Envelope{Type: EventBattleStarted, Payload: mustJSON(BattleStartedPayload{Duration: durationSec})})
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

// UpdatePrompt overwrites a contestant's working prompt. Last write
// wins per slot. Broadcast as a lightweight event, not a full state
// push.
func (g *Game) UpdatePrompt(slotID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseBattling {
		return fmt.Errorf("%w: prompt-update in %s", ErrInvalidTransition, g.phase)
	}
	if g.players[slotID] == nil {
		return ErrUnknownSlot
	}

	g.prompts[slotID] = text
	g.broadcastLocked(Envelope{Type: EventPromptUpdate, Payload: mustJSON(PromptUpdatePayload{SlotID: slotID, Text: text})})
	g.persistLocked()
	return nil
}

// SelectWinner closes the judging phase. Competition bookkeeping runs
// before the phase flips to finished so the finished snapshot already
// carries updated scores and bracket.
func (g *Game) SelectWinner(slotID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseJudging {
		return fmt.Errorf("%w: select-winner in %s", ErrInvalidTransition, g.phase)
	}
	if _, ok := g.images[slotID]; !ok {
		return ErrNoArtifact
	}
	if g.competitionActive && g.competitionMode == ModeKnockout && g.currentMatch != nil {
		if m := g.matchAtLocked(*g.currentMatch); m != nil && m.Players[0] != slotID && m.Players[1] != slotID {
			return fmt.Errorf("%w: slot %s is not in the current match", ErrInvalidTransition, slotID)
		}
	}

	g.winner = slotID
	if g.competitionActive {
		g.applyWinnerLocked(slotID)
	}
	g.phase = PhaseFinished

	g.broadcastLocked(Envelope{Type: EventWinnerSelected, Payload: mustJSON(WinnerSelectedPayload{SlotID: slotID})})
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

// Reset returns to waiting from any phase. The battle-scoped fields are
// cleared; seat reservations survive with their ready flags dropped. A
// running countdown is cancelled and any in-flight generation batch is
// orphaned via the token bump. Competition state survives unless the
// server is configured for full resets.
func (g *Game) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetBattleLocked()
	if g.cfg.ResetClearsCompetition {
		g.resetCompetitionLocked()
	}

	g.broadcastLocked(Envelope{Type: EventGameReset})
	g.broadcastStateLocked()
	g.persistLocked()
}

func (g *Game) resetBattleLocked() {
	g.cancelTimerLocked()
	g.genToken++ // late generation results are dropped on arrival

	g.phase = PhaseWaiting
	g.prompts = make(map[string]string)
	g.images = make(map[string]Artifact)
	g.target = nil
	g.winner = ""
	for _, p := range g.players {
		p.Ready = false
	}
}

func (g *Game) resetCompetitionLocked() {
	g.competitionActive = false
	g.competitionMode = ""
	g.competitionCfg = CompetitionConfig{}
	g.scores = make(map[string]int)
	g.roundsPlayed = 0
	g.roundNumber = 0
	g.bracket = nil
	g.currentMatch = nil
	g.eliminated = make(map[string]bool)
}
