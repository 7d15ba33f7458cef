package game

import "time"

// startTimerLocked launches the battle countdown. Exactly one timer is
// live at a time: the token bump invalidates any previous goroutine and
// the stop channel wakes it up so it exits promptly.
func (g *Game) startTimerLocked(seconds int) {
	g.cancelTimerLocked()

	g.timerToken++
	token := g.timerToken
	g.timerRemaining = seconds
	stop := make(chan struct{})
	g.timerStop = stop

	go g.runTimer(token, stop)
}

func (g *Game) cancelTimerLocked() {
	g.timerToken++
	if g.timerStop != nil {
		close(g.timerStop)
		g.timerStop = nil
	}
	g.timerRemaining = 0
}

func (g *Game) runTimer(token int64, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if expired := g.tick(token); expired {
				return
			}
		}
	}
}

// tick decrements the countdown by one whole second. Stale ticks (the
// token no longer matches) are ignored. Returns true once the timer has
// fired or is obsolete, so the goroutine can exit.
func (g *Game) tick(token int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if token != g.timerToken || g.phase != PhaseBattling {
		return true
	}

	g.timerRemaining--
	if g.timerRemaining > 0 {
		g.broadcastLocked(Envelope{Type: EventTimerUpdate, Payload: mustJSON(TimerUpdatePayload{Seconds: g.timerRemaining})})
		return false
	}

	g.timerRemaining = 0
	g.timerStop = nil
	g.broadcastLocked(Envelope{Type: EventTimerUpdate, Payload: mustJSON(TimerUpdatePayload{Seconds: 0})})
	g.beginGeneratingLocked()
	return true
}
