package game

import "strconv"

// Join reserves a contestant seat for a live connection. With an
// explicit slot id the seat is created or re-activated; if someone else
// is already connected there, the newest connection wins. With no id
// the lowest free seat is taken.
func (g *Game) Join(connID, requestedID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	slotID := requestedID
	if slotID == "" {
		slotID = g.freeSlotLocked()
		if slotID == "" {
			return "", ErrUnknownSlot
		}
	}
	n, err := strconv.Atoi(slotID)
	if err != nil || n < 1 {
		return "", ErrUnknownSlot
	}
	// joining a seat beyond the current capacity grows the table
	if n > g.playerSlots {
		g.playerSlots = n
	}

	p := g.players[slotID]
	if p == nil {
		p = &PlayerSlot{}
		g.players[slotID] = p
	}
	p.ConnID = connID
	p.Connected = true

	g.broadcastStateLocked()
	g.persistLocked()
	return slotID, nil
}

func (g *Game) freeSlotLocked() string {
	for i := 1; i <= g.playerSlots; i++ {
		id := strconv.Itoa(i)
		p := g.players[id]
		if p == nil || !p.Connected {
			return id
		}
	}
	return ""
}

// Disconnect marks the owning seat as offline. The reservation, name
// and ready flag stay until the seat is removed or the game is reset.
func (g *Game) Disconnect(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, p := range g.players {
		if p.ConnID == connID {
			p.Connected = false
			p.ConnID = ""
			g.broadcastStateLocked()
			g.persistLocked()
			return
		}
	}
}

// AddSlot appends one seat. Always allowed.
func (g *Game) AddSlot() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.playerSlots++
	g.broadcastStateLocked()
	g.persistLocked()
	return g.playerSlots
}

// RemoveSlot drops the highest seat, but only if nobody holds it and
// the floor of 2 seats is respected. A blocked removal mutates nothing
// and reports the binding minimum.
func (g *Game) RemoveSlot() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.playerSlots-1 < minSlots {
		err := &SlotRemovalBlockedError{MinimumSlots: minSlots}
		g.broadcastLocked(Envelope{Type: EventSlotRemovalBlocked, Payload: mustJSON(SlotRemovalBlockedPayload{MinimumSlots: err.MinimumSlots})})
		return err
	}
	if _, occupied := g.players[strconv.Itoa(g.playerSlots)]; occupied {
		err := &SlotRemovalBlockedError{MinimumSlots: g.highestOccupiedLocked()}
		g.broadcastLocked(Envelope{Type: EventSlotRemovalBlocked, Payload: mustJSON(SlotRemovalBlockedPayload{MinimumSlots: err.MinimumSlots})})
		return err
	}

	g.playerSlots--
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

func (g *Game) highestOccupiedLocked() int {
	highest := minSlots
	for id := range g.players {
		if n, err := strconv.Atoi(id); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

func (g *Game) SetReady(slotID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.players[slotID]
	if p == nil {
		return ErrUnknownSlot
	}
	p.Ready = true
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}

func (g *Game) SetDisplayName(slotID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.players[slotID]
	if p == nil {
		return ErrUnknownSlot
	}
	p.DisplayName = name
	g.broadcastStateLocked()
	g.persistLocked()
	return nil
}
