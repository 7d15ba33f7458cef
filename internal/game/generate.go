package game

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// beginGeneratingLocked snapshots the submitted prompts and kicks off
// one generation worker per non-empty prompt. The batch is identified
// by a token; a reset during generation bumps it so the results are
// dropped when they eventually arrive.
func (g *Game) beginGeneratingLocked() {
	g.phase = PhaseGenerating
	g.genToken++
	token := g.genToken

	batch := make(map[string]string, len(g.prompts))
	for slot, prompt := range g.prompts {
		if prompt != "" {
			batch[slot] = prompt
		}
	}

	g.broadcastStateLocked()
	g.persistLocked()

	go g.runGeneration(token, batch)
}

// runGeneration is the all-complete barrier: every prompt resolves to
// some artifact (real or fallback) before the phase advances. One slow
// or failed generation never blocks the others.
func (g *Game) runGeneration(token int64, batch map[string]string) {
	var (
		mu     sync.Mutex
		images = make(map[string]Artifact, len(batch))
	)

	eg, ctx := errgroup.WithContext(context.Background())
	for slot, prompt := range batch {
		eg.Go(func() error {
			res, err := g.gen.Generate(ctx, prompt)
			if err != nil {
				return err
			}
			art := Artifact{
				URL:         res.URL,
				Prompt:      prompt,
				Timestamp:   time.Now(),
				GeneratedBy: res.Model,
				Fallback:    res.Fallback,
			}
			if !art.Fallback && g.sink != nil {
				if path, err := g.sink.Save(ctx, slot, art); err != nil {
					g.log.Warn("artifact save failed", "slot", slot, "err", err)
				} else {
					art.SavedPath = path
				}
			}
			mu.Lock()
			images[slot] = art
			mu.Unlock()
			return nil
		})
	}
	err := eg.Wait()

	g.finishGeneration(token, images, err)
}

func (g *Game) finishGeneration(token int64, images map[string]Artifact, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if token != g.genToken {
		g.log.Info("discarding stale generation batch", "token", token)
		return
	}
	if g.phase != PhaseGenerating {
		return
	}

	if err != nil {
		// the partial batch is kept inspectable; recovery is an
		// explicit reset
		g.log.Error("generation pipeline failed", "err", err)
		g.phase = PhaseError
		g.broadcastStateLocked()
		g.persistLocked()
		return
	}

	g.images = images
	if g.competitionActive && g.competitionMode == ModeKnockout && g.currentMatch != nil {
		if m := g.matchAtLocked(*g.currentMatch); m != nil && m.Status == MatchPending {
			m.Status = MatchInProgress
		}
	}
	g.phase = PhaseJudging

	g.broadcastLocked(Envelope{Type: EventImagesReady, Payload: mustJSON(images)})
	g.broadcastStateLocked()
	g.persistLocked()
}
