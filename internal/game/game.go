package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"example.com/promptbattle/internal/artgen"
)

const minSlots = 2

var (
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrNoTarget          = errors.New("no target set")
	ErrNotEnoughPlayers  = errors.New("need at least 2 connected players")
	ErrUnknownSlot       = errors.New("unknown player slot")
	ErrNoArtifact        = errors.New("slot has no resolved artifact")
	ErrNoCompetition     = errors.New("no active competition")
	ErrBracketSeeds      = errors.New("bracket needs at least 2 unique seeds")
	ErrNoCurrentMatch    = errors.New("no current bracket match")
)

// SlotRemovalBlockedError reports why the highest slot cannot be removed:
// either the floor of 2 seats, or the highest occupied seat id.
type SlotRemovalBlockedError struct {
	MinimumSlots int
}

func (e *SlotRemovalBlockedError) Error() string {
	return fmt.Sprintf("slot removal blocked: minimum is %d", e.MinimumSlots)
}

// Generator produces one artifact per prompt. Service failures must be
// absorbed into a fallback result; a returned error means the pipeline
// itself is broken and drives the game into the error phase.
type Generator interface {
	Generate(ctx context.Context, prompt string) (artgen.Result, error)
}

// ArtifactSink archives a successfully generated artifact. Best effort:
// a failed save is logged and the artifact is kept as-is.
type ArtifactSink interface {
	Save(ctx context.Context, slotID string, art Artifact) (string, error)
}

// Broadcaster fans an envelope out to every connected observer.
type Broadcaster interface {
	Broadcast(env Envelope)
}

type Config struct {
	DefaultBattleSeconds int
	// When true, a plain game reset also ends the running
	// competition and clears bracket and scores.
	ResetClearsCompetition bool
}

// Game is the single authoritative state of the running session. All
// mutation goes through its exported command methods; each one locks,
// applies the change, broadcasts and persists.
type Game struct {
	mu   sync.Mutex
	cfg  Config
	log  *slog.Logger
	bus  Broadcaster
	gen  Generator
	sink ArtifactSink

	onPersist func(Snapshot)

	phase             Phase
	playerSlots       int
	players           map[string]*PlayerSlot
	prompts           map[string]string
	images            map[string]Artifact
	target            *Target
	timerRemaining    int
	winner            string
	scores            map[string]int
	roundsPlayed      int
	roundNumber       int
	competitionActive bool
	competitionMode   Mode
	competitionCfg    CompetitionConfig
	bracket           *Bracket
	currentMatch      *MatchRef
	eliminated        map[string]bool

	// stale-work guards: a tick or a generation batch only applies if
	// its token still matches.
	timerToken int64
	timerStop  chan struct{}
	genToken   int64
}

func New(cfg Config, log *slog.Logger, bus Broadcaster, gen Generator, sink ArtifactSink) *Game {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DefaultBattleSeconds <= 0 {
		cfg.DefaultBattleSeconds = 60
	}
	return &Game{
		cfg:         cfg,
		log:         log,
		bus:         bus,
		gen:         gen,
		sink:        sink,
		phase:       PhaseWaiting,
		playerSlots: minSlots,
		players:     make(map[string]*PlayerSlot),
		prompts:     make(map[string]string),
		images:      make(map[string]Artifact),
		scores:      make(map[string]int),
		eliminated:  make(map[string]bool),
	}
}

// SetPersist installs the snapshot hook. Every committed mutation calls
// it with a fresh copy of the state.
func (g *Game) SetPersist(fn func(Snapshot)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onPersist = fn
}

// Restore loads a previously persisted snapshot, e.g. after a restart.
func (g *Game) Restore(s Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.restoreLocked(s)
}

// Snapshot returns an immutable copy of the current state.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// Status is the read-only health view.
type Status struct {
	Phase            Phase `json:"phase"`
	ConnectedPlayers int   `json:"connectedPlayers"`
	HasTarget        bool  `json:"hasTarget"`
}

func (g *Game) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Phase:            g.phase,
		ConnectedPlayers: g.connectedCountLocked(),
		HasTarget:        g.target != nil,
	}
}

func (g *Game) connectedCountLocked() int {
	n := 0
	for _, p := range g.players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (g *Game) broadcastLocked(env Envelope) {
	if g.bus != nil {
		g.bus.Broadcast(env)
	}
}

func (g *Game) broadcastStateLocked() {
	g.broadcastLocked(Envelope{Type: EventGameState, Payload: mustJSON(g.snapshotLocked())})
}

func (g *Game) persistLocked() {
	if g.onPersist != nil {
		g.onPersist(g.snapshotLocked())
	}
}
