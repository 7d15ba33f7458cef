package game

import "fmt"

// CreateBracket builds a single-elimination bracket from an ordered
// seed list and starts a knockout competition. Duplicate seeds are
// dropped (first occurrence wins); fewer than two unique seeds rejects
// the whole command with no state change.
func (g *Game) CreateBracket(seedOrder []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	seeds := dedupe(seedOrder)
	if len(seeds) < 2 {
		return ErrBracketSeeds
	}

	g.bracket = buildBracket(seeds)
	g.competitionActive = true
	g.competitionMode = ModeKnockout
	g.competitionCfg = CompetitionConfig{}
	g.scores = make(map[string]int)
	g.roundsPlayed = 0
	g.roundNumber = 0
	g.eliminated = make(map[string]bool)
	g.currentMatch = g.firstPlayableLocked()

	g.broadcastBracketLocked()
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

// AdvanceMatch moves the cursor from a decided match to the next
// pending one in reading order (left to right, then next round) and
// clears the battle table for it.
func (g *Game) AdvanceMatch() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.bracket == nil || g.currentMatch == nil {
		return ErrNoCurrentMatch
	}
	cur := g.matchAtLocked(*g.currentMatch)
	if cur == nil || cur.Winner == "" {
		return fmt.Errorf("%w: current match not decided", ErrInvalidTransition)
	}

	next := g.nextPendingLocked(*g.currentMatch)
	if next == nil {
		return fmt.Errorf("%w: no pending match left", ErrInvalidTransition)
	}
	g.currentMatch = next

	// fresh battle table for the new pairing; the target stays
	g.cancelTimerLocked()
	g.genToken++
	g.prompts = make(map[string]string)
	g.images = make(map[string]Artifact)
	g.winner = ""
	if g.target != nil {
		g.phase = PhaseReady
	} else {
		g.phase = PhaseWaiting
	}

	g.broadcastBracketLocked()
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

// ResetBracket discards the bracket and eliminations. Scores stay.
func (g *Game) ResetBracket() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.bracket = nil
	g.currentMatch = nil
	g.eliminated = make(map[string]bool)
	if g.competitionMode == ModeKnockout {
		g.competitionActive = false
	}

	g.broadcastBracketLocked()
	g.broadcastStateLocked()
	g.persistLocked()
}

// completeMatchLocked records the battle winner on the current match,
// eliminates the loser and carries the winner into the next round. The
// final match crowns the champion and ends the competition.
func (g *Game) completeMatchLocked(winner string) {
	if g.bracket == nil || g.currentMatch == nil {
		return
	}
	ref := *g.currentMatch
	m := g.matchAtLocked(ref)
	if m == nil || m.Winner != "" {
		return
	}
	if m.Players[0] != winner && m.Players[1] != winner {
		return
	}

	m.Winner = winner
	m.Status = MatchCompleted
	if loser := otherPlayer(m, winner); loser != "" {
		g.eliminated[loser] = true
	}

	g.advanceWinnerLocked(ref, winner)
	g.broadcastBracketLocked()
}

// advanceWinnerLocked carries a decided match forward: the final crowns
// the champion, anything else feeds the next round.
func (g *Game) advanceWinnerLocked(ref MatchRef, winner string) {
	if ref.Round == len(g.bracket.Rounds)-1 {
		g.currentMatch = nil
		g.competitionActive = false
		g.broadcastLocked(Envelope{Type: EventBracketFinished, Payload: mustJSON(BracketFinishedPayload{
			Bracket:  g.bracket,
			Champion: winner,
		})})
		return
	}
	g.propagateWinnerLocked(ref, winner)
}

// propagateWinnerLocked fills the winner of round k match i into slot
// i%2 of match i/2 in round k+1 and announces the pairing once both
// entrants are known. If the opposing slot is a structural bye the
// winner walks over immediately, recursively.
func (g *Game) propagateWinnerLocked(ref MatchRef, winner string) {
	next := MatchRef{Round: ref.Round + 1, Match: ref.Match / 2}
	nm := g.matchAtLocked(next)
	if nm == nil {
		return
	}
	idx := ref.Match % 2
	nm.Players[idx] = winner

	other := 1 - idx
	if nm.Players[other] == "" && g.feederEmptyLocked(next, other) {
		nm.Status = MatchCompleted
		nm.Winner = winner
		g.advanceWinnerLocked(next, winner)
		return
	}

	if nm.Players[0] != "" && nm.Players[1] != "" {
		g.broadcastLocked(Envelope{Type: EventMatchReady, Payload: mustJSON(MatchReadyPayload{
			RoundIndex: next.Round,
			MatchIndex: next.Match,
			Players:    nm.Players,
		})})
	}
}

// feederEmptyLocked reports whether the feeder for the given slot of a
// match resolved to nobody, i.e. the slot can never be filled.
func (g *Game) feederEmptyLocked(ref MatchRef, idx int) bool {
	fm := g.matchAtLocked(MatchRef{Round: ref.Round - 1, Match: ref.Match*2 + idx})
	return fm != nil && fm.Status == MatchCompleted && fm.Winner == ""
}

func (g *Game) matchAtLocked(ref MatchRef) *Match {
	if g.bracket == nil || ref.Round < 0 || ref.Round >= len(g.bracket.Rounds) {
		return nil
	}
	r := &g.bracket.Rounds[ref.Round]
	if ref.Match < 0 || ref.Match >= len(r.Matches) {
		return nil
	}
	return &r.Matches[ref.Match]
}

func (g *Game) firstPlayableLocked() *MatchRef {
	return g.nextPendingLocked(MatchRef{Round: 0, Match: -1})
}

// nextPendingLocked scans in reading order after the given position for
// a pending match with both entrants resolved.
func (g *Game) nextPendingLocked(after MatchRef) *MatchRef {
	for ri := after.Round; ri < len(g.bracket.Rounds); ri++ {
		start := 0
		if ri == after.Round {
			start = after.Match + 1
		}
		for mi := start; mi < len(g.bracket.Rounds[ri].Matches); mi++ {
			m := &g.bracket.Rounds[ri].Matches[mi]
			if m.Status == MatchPending && m.Players[0] != "" && m.Players[1] != "" {
				return &MatchRef{Round: ri, Match: mi}
			}
		}
	}
	return nil
}

func (g *Game) broadcastBracketLocked() {
	eliminated := make([]string, 0, len(g.eliminated))
	for id := range g.eliminated {
		eliminated = append(eliminated, id)
	}
	g.broadcastLocked(Envelope{Type: EventBracketUpdated, Payload: mustJSON(BracketUpdatedPayload{
		Bracket:           g.bracket,
		CurrentMatch:      g.currentMatch,
		EliminatedPlayers: eliminated,
	})})
}

// buildBracket lays out all rounds up front. Seeds are paired
// positionally in round 0 and padded to the next power of two with
// byes; a seed with no opponent is carried forward immediately, with no
// battle, no score and no elimination.
func buildBracket(seeds []string) *Bracket {
	size := nextPow2(len(seeds))
	padded := make([]string, size)
	copy(padded, seeds)

	totalRounds := 0
	for n := size; n > 1; n /= 2 {
		totalRounds++
	}

	b := &Bracket{Rounds: make([]Round, totalRounds)}
	entrants := padded
	decided := make([]bool, size) // round-0 entrants are all known up front
	for i := range decided {
		decided[i] = true
	}

	for ri := 0; ri < totalRounds; ri++ {
		matches := make([]Match, len(entrants)/2)
		winners := make([]string, len(matches))
		winnersDecided := make([]bool, len(matches))
		for mi := range matches {
			a, c := entrants[2*mi], entrants[2*mi+1]
			m := Match{
				ID:      fmt.Sprintf("r%d-m%d", ri, mi),
				Players: [2]string{a, c},
				Status:  MatchPending,
			}
			// byes resolve at build time, but only between slots that
			// are already settled; a slot waiting on a feeder match is
			// not a bye
			if decided[2*mi] && decided[2*mi+1] {
				switch {
				case a != "" && c == "":
					m.Status = MatchCompleted
					m.Winner = a
				case a == "" && c != "":
					m.Status = MatchCompleted
					m.Winner = c
				case a == "" && c == "":
					m.Status = MatchCompleted
				}
			}
			matches[mi] = m
			winners[mi] = m.Winner
			winnersDecided[mi] = m.Status == MatchCompleted
		}
		b.Rounds[ri] = Round{Name: roundName(totalRounds-ri, ri), Matches: matches}
		entrants = winners
		decided = winnersDecided
	}
	return b
}

func roundName(remaining, index int) string {
	switch remaining {
	case 1:
		return "Final"
	case 2:
		return "Semifinals"
	case 3:
		return "Quarterfinals"
	default:
		return fmt.Sprintf("Round %d", index+1)
	}
}

func otherPlayer(m *Match, winner string) string {
	if m.Players[0] == winner {
		return m.Players[1]
	}
	return m.Players[0]
}

func nextPow2(n int) int {
	size := 1
	for size < n {
		size *= 2
	}
	return size
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
