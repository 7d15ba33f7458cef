package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/promptbattle/internal/artgen"
)

type captureBus struct {
	mu   sync.Mutex
	envs []Envelope
}

func (b *captureBus) Broadcast(env Envelope) {
	b.mu.Lock()
	b.envs = append(b.envs, env)
	b.mu.Unlock()
}

func (b *captureBus) byType(typ string) []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Envelope
	for _, e := range b.envs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type stubGen struct {
	fail  map[string]bool // prompts that should fall back
	err   error           // pipeline defect
	delay time.Duration
}

func (s *stubGen) Generate(ctx context.Context, prompt string) (artgen.Result, error) {
	if s.err != nil {
		return artgen.Result{}, s.err
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail[prompt] {
		return artgen.Fallback(prompt), nil
	}
	return artgen.Result{URL: "https://img.test/" + prompt, Model: "test-model"}, nil
}

func newTestGame(gen Generator) (*Game, *captureBus) {
	bus := &captureBus{}
	if gen == nil {
		gen = &stubGen{}
	}
	g := New(Config{DefaultBattleSeconds: 60}, nil, bus, gen, nil)
	return g, bus
}

func joinTwo(t *testing.T, g *Game) {
	t.Helper()
	_, err := g.Join("conn-1", "1")
	require.NoError(t, err)
	_, err = g.Join("conn-2", "2")
	require.NoError(t, err)
}

func readyBattle(t *testing.T, g *Game) {
	t.Helper()
	joinTwo(t, g)
	require.NoError(t, g.SetTarget(Target{Type: "text", Content: "a fox in the snow"}))
	require.NoError(t, g.StartBattle(30))
}

// expireTimer drains the countdown synchronously instead of waiting for
// the real one-second ticker.
func expireTimer(t *testing.T, g *Game) {
	t.Helper()
	g.mu.Lock()
	token := g.timerToken
	g.mu.Unlock()
	for i := 0; i < 10000; i++ {
		if g.tick(token) {
			return
		}
	}
	t.Fatal("timer never expired")
}

func waitPhase(t *testing.T, g *Game, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return g.Snapshot().Phase == want
	}, 2*time.Second, 5*time.Millisecond, "phase never reached %s", want)
}

func TestGame_PhaseMachine(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "start battle rejected without target, state unchanged",
			run: func(t *testing.T) {
				g, _ := newTestGame(nil)
				joinTwo(t, g)

				err := g.StartBattle(30)
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, PhaseWaiting, g.Snapshot().Phase)
			},
		},
		{
			name: "start battle rejected with one connected player",
			run: func(t *testing.T) {
				g, _ := newTestGame(nil)
				_, err := g.Join("conn-1", "1")
				require.NoError(t, err)
				require.NoError(t, g.SetTarget(Target{Type: "text", Content: "x"}))

				err = g.StartBattle(30)
				require.ErrorIs(t, err, ErrNotEnoughPlayers)
				assert.Equal(t, PhaseReady, g.Snapshot().Phase)
			},
		},
		{
			name: "set target moves waiting to ready",
			run: func(t *testing.T) {
				g, _ := newTestGame(nil)
				require.NoError(t, g.SetTarget(Target{Type: "text", Content: "x"}))
				snap := g.Snapshot()
				assert.Equal(t, PhaseReady, snap.Phase)
				require.NotNil(t, snap.Target)
				assert.Equal(t, "x", snap.Target.Content)
			},
		},
		{
			name: "set target rejected mid battle",
			run: func(t *testing.T) {
				g, _ := newTestGame(nil)
				readyBattle(t, g)
				err := g.SetTarget(Target{Type: "text", Content: "y"})
				require.ErrorIs(t, err, ErrInvalidTransition)
			},
		},
		{
			name: "battle start clears previous round and emits battle-started",
			run: func(t *testing.T) {
				g, bus := newTestGame(nil)
				readyBattle(t, g)

				snap := g.Snapshot()
				assert.Equal(t, PhaseBattling, snap.Phase)
				assert.Empty(t, snap.Prompts)
				assert.Empty(t, snap.GeneratedImages)
				assert.Equal(t, "", snap.Winner)
				assert.Equal(t, 1, snap.RoundNumber)
				require.Len(t, bus.byType(EventBattleStarted), 1)
			},
		},
		{
			name: "prompt updates are last-write-wins and battling-only",
			run: func(t *testing.T) {
				g, bus := newTestGame(nil)

				err := g.UpdatePrompt("1", "too early")
				require.ErrorIs(t, err, ErrInvalidTransition)

				readyBattle(t, g)
				require.NoError(t, g.UpdatePrompt("1", "x"))
				require.NoError(t, g.UpdatePrompt("1", "x"))
				require.NoError(t, g.UpdatePrompt("1", "a red barn"))

				snap := g.Snapshot()
				assert.Equal(t, "a red barn", snap.Prompts["1"])
				// every edit broadcasts, state converges to the last one
				assert.Len(t, bus.byType(EventPromptUpdate), 3)
			},
		},
		{
			name: "timer expiry generates for all prompts then judging",
			run: func(t *testing.T) {
				g, bus := newTestGame(nil)
				readyBattle(t, g)
				require.NoError(t, g.UpdatePrompt("1", "a red barn"))
				require.NoError(t, g.UpdatePrompt("2", "a blue lake"))

				expireTimer(t, g)
				waitPhase(t, g, PhaseJudging)

				snap := g.Snapshot()
				require.Len(t, snap.GeneratedImages, 2)
				assert.False(t, snap.GeneratedImages["1"].Fallback)
				assert.False(t, snap.GeneratedImages["2"].Fallback)
				assert.Equal(t, "a red barn", snap.GeneratedImages["1"].Prompt)
				require.Len(t, bus.byType(EventImagesReady), 1)
			},
		},
		{
			name: "empty prompt is judged absence, not a fallback",
			run: func(t *testing.T) {
				g, _ := newTestGame(nil)
				readyBattle(t, g)
				require.NoError(t, g.UpdatePrompt("1", "a red barn"))

				expireTimer(t, g)
				waitPhase(t, g, PhaseJudging)

				snap := g.Snapshot()
				require.Len(t, snap.GeneratedImages, 1)
				_, ok := snap.GeneratedImages["2"]
				assert.False(t, ok)
			},
		},
		{
			name: "one failed generation falls back, the other stays real",
			run: func(t *testing.T) {
				g, _ := newTestGame(&stubGen{fail: map[string]bool{"a red barn": true}})
				readyBattle(t, g)
				require.NoError(t, g.UpdatePrompt("1", "a red barn"))
				require.NoError(t, g.UpdatePrompt("2", "a blue lake"))

				expireTimer(t, g)
				waitPhase(t, g, PhaseJudging)

				snap := g.Snapshot()
				assert.True(t, snap.GeneratedImages["1"].Fallback)
				assert.Equal(t, "fallback", snap.GeneratedImages["1"].GeneratedBy)
				assert.False(t, snap.GeneratedImages["2"].Fallback)
			},
		},
		{
			name: "pipeline defect drives error phase until reset",
			run: func(t *testing.T) {
				g, _ := newTestGame(&stubGen{err: errors.New("boom")})
				readyBattle(t, g)
				require.NoError(t, g.UpdatePrompt("1", "x"))

				expireTimer(t, g)
				waitPhase(t, g, PhaseError)

				// no other transition is legal from error
				require.Error(t, g.StartBattle(30))
				require.Error(t, g.SetTarget(Target{Type: "text", Content: "y"}))

				g.Reset()
				assert.Equal(t, PhaseWaiting, g.Snapshot().Phase)
			},
		},
		{
			name: "select winner requires a resolved artifact",
			run: func(t *testing.T) {
				g, _ := newTestGame(nil)
				readyBattle(t, g)
				require.NoError(t, g.UpdatePrompt("1", "x"))

				expireTimer(t, g)
				waitPhase(t, g, PhaseJudging)

				err := g.SelectWinner("2")
				require.ErrorIs(t, err, ErrNoArtifact)

				require.NoError(t, g.SelectWinner("1"))
				snap := g.Snapshot()
				assert.Equal(t, PhaseFinished, snap.Phase)
				assert.Equal(t, "1", snap.Winner)
			},
		},
		{
			name: "select winner outside judging is rejected",
			run: func(t *testing.T) {
				g, _ := newTestGame(nil)
				readyBattle(t, g)
				err := g.SelectWinner("1")
				require.ErrorIs(t, err, ErrInvalidTransition)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestGame_Reset(t *testing.T) {
	t.Run("reset returns to waiting, keeps seats, drops ready flags", func(t *testing.T) {
		g, bus := newTestGame(nil)
		readyBattle(t, g)
		require.NoError(t, g.UpdatePrompt("1", "x"))
		require.NoError(t, g.SetReady("1"))

		g.Reset()

		snap := g.Snapshot()
		assert.Equal(t, PhaseWaiting, snap.Phase)
		assert.Empty(t, snap.Prompts)
		assert.Empty(t, snap.GeneratedImages)
		assert.Nil(t, snap.Target)
		assert.Equal(t, 0, snap.Timer)
		assert.Equal(t, "", snap.Winner)
		require.Len(t, snap.Players, 2)
		assert.False(t, snap.Players["1"].Ready)
		require.Len(t, bus.byType(EventGameReset), 1)
	})

	t.Run("reset during generating discards the in-flight batch", func(t *testing.T) {
		g, _ := newTestGame(&stubGen{delay: 50 * time.Millisecond})
		readyBattle(t, g)
		require.NoError(t, g.UpdatePrompt("1", "x"))

		expireTimer(t, g)
		require.Equal(t, PhaseGenerating, g.Snapshot().Phase)

		g.Reset()
		assert.Equal(t, PhaseWaiting, g.Snapshot().Phase)

		// give the orphaned batch time to land; it must be dropped
		time.Sleep(150 * time.Millisecond)
		snap := g.Snapshot()
		assert.Equal(t, PhaseWaiting, snap.Phase)
		assert.Empty(t, snap.GeneratedImages)
	})

	t.Run("battle reset keeps competition state", func(t *testing.T) {
		g, _ := newTestGame(nil)
		joinTwo(t, g)
		require.NoError(t, g.StartCompetition(CompetitionConfig{RoundLimit: 5}))

		g.mu.Lock()
		g.scores["1"] = 2
		g.mu.Unlock()

		g.Reset()

		snap := g.Snapshot()
		assert.True(t, snap.CompetitionActive)
		assert.Equal(t, 2, snap.Scores["1"])
	})

	t.Run("configured full reset clears competition too", func(t *testing.T) {
		bus := &captureBus{}
		g := New(Config{ResetClearsCompetition: true}, nil, bus, &stubGen{}, nil)
		joinTwo(t, g)
		require.NoError(t, g.StartCompetition(CompetitionConfig{RoundLimit: 5}))

		g.Reset()

		snap := g.Snapshot()
		assert.False(t, snap.CompetitionActive)
		assert.Empty(t, snap.Scores)
		require.Len(t, snap.Players, 2) // seats always survive
	})
}

func TestGame_TimerTokens(t *testing.T) {
	t.Run("stale ticks are ignored after a new battle starts", func(t *testing.T) {
		g, _ := newTestGame(nil)
		readyBattle(t, g)

		g.mu.Lock()
		stale := g.timerToken
		g.mu.Unlock()

		g.Reset()
		require.NoError(t, g.SetTarget(Target{Type: "text", Content: "x"}))
		require.NoError(t, g.StartBattle(30))

		assert.True(t, g.tick(stale), "stale tick should be a terminal no-op")
		assert.Equal(t, PhaseBattling, g.Snapshot().Phase)
		assert.Equal(t, 30, g.Snapshot().Timer)
	})

	t.Run("countdown is monotonically decreasing", func(t *testing.T) {
		g, bus := newTestGame(nil)
		readyBattle(t, g)

		g.mu.Lock()
		token := g.timerToken
		g.mu.Unlock()
		g.tick(token)
		g.tick(token)

		updates := bus.byType(EventTimerUpdate)
		require.Len(t, updates, 2)
		var a, b TimerUpdatePayload
		require.NoError(t, json.Unmarshal(updates[0].Payload, &a))
		require.NoError(t, json.Unmarshal(updates[1].Payload, &b))
		assert.Equal(t, 29, a.Seconds)
		assert.Equal(t, 28, b.Seconds)
	})
}

type sinkFunc func(ctx context.Context, slotID string, art Artifact) (string, error)

func (f sinkFunc) Save(ctx context.Context, slotID string, art Artifact) (string, error) {
	return f(ctx, slotID, art)
}

func TestGame_ArtifactSink(t *testing.T) {
	t.Run("saved path is attached, sink failure is non-fatal", func(t *testing.T) {
		bus := &captureBus{}
		sink := sinkFunc(func(ctx context.Context, slotID string, art Artifact) (string, error) {
			if slotID == "2" {
				return "", errors.New("disk full")
			}
			return "battle_artifacts/7", nil
		})
		g := New(Config{}, nil, bus, &stubGen{}, sink)
		readyBattle(t, g)
		require.NoError(t, g.UpdatePrompt("1", "a red barn"))
		require.NoError(t, g.UpdatePrompt("2", "a blue lake"))

		expireTimer(t, g)
		waitPhase(t, g, PhaseJudging)

		snap := g.Snapshot()
		assert.Equal(t, "battle_artifacts/7", snap.GeneratedImages["1"].SavedPath)
		assert.Equal(t, "", snap.GeneratedImages["2"].SavedPath)
		assert.False(t, snap.GeneratedImages["2"].Fallback)
	})

	t.Run("fallback artifacts are not archived", func(t *testing.T) {
		called := false
		sink := sinkFunc(func(ctx context.Context, slotID string, art Artifact) (string, error) {
			called = true
			return "", nil
		})
		g := New(Config{}, nil, &captureBus{}, &stubGen{fail: map[string]bool{"x": true}}, sink)
		readyBattle(t, g)
		require.NoError(t, g.UpdatePrompt("1", "x"))

		expireTimer(t, g)
		waitPhase(t, g, PhaseJudging)
		assert.False(t, called)
	})
}
