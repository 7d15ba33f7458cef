package game

import "fmt"

// StartCompetition begins a series: cumulative win counts across
// repeated battles, with optional round and point limits. Knockout
// competitions start through CreateBracket instead.
func (g *Game) StartCompetition(cfg CompetitionConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.competitionActive {
		return fmt.Errorf("%w: competition already running", ErrInvalidTransition)
	}

	g.competitionActive = true
	g.competitionMode = ModeSeries
	g.competitionCfg = cfg
	g.scores = make(map[string]int)
	g.roundsPlayed = 0
	g.roundNumber = 0

	g.broadcastLocked(Envelope{Type: EventCompetitionStarted, Payload: mustJSON(cfg)})
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

// NextRound clears the finished battle and returns to waiting for a new
// target. Scores, rounds played and the bracket are untouched.
func (g *Game) NextRound() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.competitionActive {
		return ErrNoCompetition
	}

	g.cancelTimerLocked()
	g.genToken++
	g.prompts = make(map[string]string)
	g.images = make(map[string]Artifact)
	g.winner = ""
	g.target = nil
	g.phase = PhaseWaiting

	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

// EndCompetition deactivates the competition without clearing scores,
// so the final standings stay visible.
func (g *Game) EndCompetition() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.competitionActive {
		return ErrNoCompetition
	}

	g.competitionActive = false
	g.broadcastLocked(Envelope{Type: EventCompetitionFinished})
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

// applyWinnerLocked runs the competition bookkeeping for one decided
// battle, before the game enters finished.
func (g *Game) applyWinnerLocked(slotID string) {
	g.scores[slotID]++
	g.roundsPlayed++

	switch g.competitionMode {
	case ModeSeries:
		if g.seriesDoneLocked() {
			g.competitionActive = false
			g.broadcastLocked(Envelope{Type: EventCompetitionFinished})
		}
	case ModeKnockout:
		g.completeMatchLocked(slotID)
	}
}

func (g *Game) seriesDoneLocked() bool {
	if limit := g.competitionCfg.RoundLimit; limit > 0 && g.roundsPlayed >= limit {
		return true
	}
	if limit := g.competitionCfg.PointLimit; limit > 0 {
		for _, s := range g.scores {
			if s >= limit {
				return true
			}
		}
	}
	return false
}
