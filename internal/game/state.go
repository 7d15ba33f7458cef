package game

import "time"

type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseReady      Phase = "ready"
	PhaseBattling   Phase = "battling"
	PhaseGenerating Phase = "generating"
	PhaseJudging    Phase = "judging"
	PhaseFinished   Phase = "finished"
	PhaseError      Phase = "error"
)

type Mode string

const (
	ModeSeries   Mode = "series"
	ModeKnockout Mode = "knockout"
)

// PlayerSlot is one reserved contestant seat. The record survives a
// disconnect (the seat stays reserved) until it is removed explicitly.
type PlayerSlot struct {
	DisplayName string `json:"displayName,omitempty"`
	ConnID      string `json:"connectionId,omitempty"`
	Connected   bool   `json:"connected"`
	Ready       bool   `json:"ready"`
}

// Target is the shared challenge everyone writes prompts against.
type Target struct {
	Type          string `json:"type"` // text|image
	Content       string `json:"content"`
	ImageURL      string `json:"imageUrl,omitempty"`
	ImageFilename string `json:"imageFilename,omitempty"`
}

// Artifact is a generated image plus its provenance. Fallback artifacts
// come from the local placeholder, never from the generation service.
type Artifact struct {
	URL         string    `json:"url"`
	Prompt      string    `json:"prompt"`
	Timestamp   time.Time `json:"timestamp"`
	GeneratedBy string    `json:"generatedBy"`
	Fallback    bool      `json:"fallback"`
	SavedPath   string    `json:"savedPath,omitempty"`
}

type CompetitionConfig struct {
	RoundLimit int `json:"roundLimit,omitempty"`
	PointLimit int `json:"pointLimit,omitempty"`
}

type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchInProgress MatchStatus = "in-progress"
	MatchCompleted  MatchStatus = "completed"
)

// Match pairs two slot ids. An empty string means the entrant is not
// known yet (TBD, or a bye).
type Match struct {
	ID      string      `json:"id"`
	Players [2]string   `json:"players"`
	Status  MatchStatus `json:"status"`
	Winner  string      `json:"winner,omitempty"`
}

type Round struct {
	Name    string  `json:"name"`
	Matches []Match `json:"matches"`
}

type Bracket struct {
	Rounds []Round `json:"rounds"`
}

// MatchRef addresses one match inside the bracket.
type MatchRef struct {
	Round int `json:"roundIndex"`
	Match int `json:"matchIndex"`
}

// Snapshot is the full serialized game state. It is what observers
// receive on every mutation and what gets written to Redis.
type Snapshot struct {
	Phase             Phase                 `json:"phase"`
	PlayerSlots       int                   `json:"playerSlots"`
	Players           map[string]PlayerSlot `json:"players"`
	Prompts           map[string]string     `json:"prompts"`
	GeneratedImages   map[string]Artifact   `json:"generatedImages"`
	Target            *Target               `json:"target"`
	Timer             int                   `json:"timer"`
	Winner            string                `json:"winner,omitempty"`
	Scores            map[string]int        `json:"scores"`
	RoundsPlayed      int                   `json:"roundsPlayed"`
	RoundNumber       int                   `json:"roundNumber"`
	CompetitionActive bool                  `json:"competitionActive"`
	CompetitionMode   Mode                  `json:"competitionMode,omitempty"`
	CompetitionConfig CompetitionConfig     `json:"competitionConfig"`
	Bracket           *Bracket              `json:"bracket"`
	CurrentMatch      *MatchRef             `json:"currentMatch"`
	EliminatedPlayers []string              `json:"eliminatedPlayers"`
}

func (g *Game) snapshotLocked() Snapshot {
	players := make(map[string]PlayerSlot, len(g.players))
	for id, p := range g.players {
		players[id] = *p
	}
	prompts := make(map[string]string, len(g.prompts))
	for id, p := range g.prompts {
		prompts[id] = p
	}
	images := make(map[string]Artifact, len(g.images))
	for id, a := range g.images {
		images[id] = a
	}
	scores := make(map[string]int, len(g.scores))
	for id, s := range g.scores {
		scores[id] = s
	}
	eliminated := make([]string, 0, len(g.eliminated))
	for id := range g.eliminated {
		eliminated = append(eliminated, id)
	}

	var target *Target
	if g.target != nil {
		t := *g.target
		target = &t
	}
	var bracket *Bracket
	if g.bracket != nil {
		b := Bracket{Rounds: make([]Round, len(g.bracket.Rounds))}
		for i, r := range g.bracket.Rounds {
			b.Rounds[i] = Round{Name: r.Name, Matches: append([]Match(nil), r.Matches...)}
		}
		bracket = &b
	}
	var current *MatchRef
	if g.currentMatch != nil {
		c := *g.currentMatch
		current = &c
	}

	return Snapshot{
		Phase:             g.phase,
		PlayerSlots:       g.playerSlots,
		Players:           players,
		Prompts:           prompts,
		GeneratedImages:   images,
		Target:            target,
		Timer:             g.timerRemaining,
		Winner:            g.winner,
		Scores:            scores,
		RoundsPlayed:      g.roundsPlayed,
		RoundNumber:       g.roundNumber,
		CompetitionActive: g.competitionActive,
		CompetitionMode:   g.competitionMode,
		CompetitionConfig: g.competitionCfg,
		Bracket:           bracket,
		CurrentMatch:      current,
		EliminatedPlayers: eliminated,
	}
}

// restoreLocked rebuilds state from a saved snapshot. Timers are not
// resurrected: a battle that was mid-countdown comes back normalized to
// a phase that can make progress without one.
func (g *Game) restoreLocked(s Snapshot) {
	g.phase = s.Phase
	g.playerSlots = s.PlayerSlots
	if g.playerSlots < minSlots {
		g.playerSlots = minSlots
	}

	g.players = make(map[string]*PlayerSlot, len(s.Players))
	for id, p := range s.Players {
		cp := p
		cp.Connected = false // live connections do not survive a restart
		cp.ConnID = ""
		g.players[id] = &cp
	}
	g.prompts = make(map[string]string, len(s.Prompts))
	for id, p := range s.Prompts {
		g.prompts[id] = p
	}
	g.images = make(map[string]Artifact, len(s.GeneratedImages))
	for id, a := range s.GeneratedImages {
		g.images[id] = a
	}
	g.scores = make(map[string]int, len(s.Scores))
	for id, sc := range s.Scores {
		g.scores[id] = sc
	}
	g.eliminated = make(map[string]bool, len(s.EliminatedPlayers))
	for _, id := range s.EliminatedPlayers {
		g.eliminated[id] = true
	}

	g.target = s.Target
	g.winner = s.Winner
	g.roundsPlayed = s.RoundsPlayed
	g.roundNumber = s.RoundNumber
	g.competitionActive = s.CompetitionActive
	g.competitionMode = s.CompetitionMode
	g.competitionCfg = s.CompetitionConfig
	g.bracket = s.Bracket
	g.currentMatch = s.CurrentMatch
	g.timerRemaining = 0

	// battling/generating cannot continue without the timer or the
	// in-flight batch; fold back to the nearest stable phase.
	switch g.phase {
	case PhaseBattling, PhaseGenerating:
		g.prompts = make(map[string]string)
		g.images = make(map[string]Artifact)
		if g.target != nil {
			g.phase = PhaseReady
		} else {
			g.phase = PhaseWaiting
		}
	}
}
