package game

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS — WebSocket entry for every observer role:
// /ws?role=admin|display|player[&slot=N]
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	role := Role(r.URL.Query().Get("role"))
	switch role {
	case RoleAdmin, RoleDisplay, RolePlayer:
	case "":
		role = RoleDisplay
	default:
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	connID := uuid.NewString()
	client := s.hub.Register(connID, role)

	// writer loop
	go func() {
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-client.Send():
				if !ok {
					_ = ws.Close()
					return
				}
				_ = ws.WriteMessage(websocket.TextMessage, msg)
			case <-ticker.C:
				_ = ws.WriteMessage(websocket.PingMessage, []byte{})
			}
		}
	}()

	// late joiners get the current state immediately
	s.hub.SendTo(client, Envelope{Type: EventGameState, Payload: mustJSON(s.game.Snapshot())})

	if role == RolePlayer {
		if slot := r.URL.Query().Get("slot"); slot != "" {
			if _, err := s.game.Join(connID, slot); err != nil {
				s.sendError(client, err)
			}
		}
	}

	// reader loop
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.hub.SendTo(client, errEnvelope("bad_json", "invalid json"))
			continue
		}
		s.dispatch(client, connID, env)
	}

	// disconnect keeps the seat reserved
	s.game.Disconnect(connID)
	s.hub.Unregister(client)
	_ = ws.Close()
}

func (s *Server) dispatch(client *HubClient, connID string, env Envelope) {
	switch env.Type {
	case "join-player":
		var p JoinPayload
		if !s.decode(client, env.Payload, &p) {
			return
		}
		slotID, err := s.game.Join(connID, p.SlotID)
		if err != nil {
			s.sendError(client, err)
			return
		}
		if p.Name != "" {
			_ = s.game.SetDisplayName(slotID, p.Name)
		}

	case "add-player-slot":
		s.game.AddSlot()

	case "remove-player-slot":
		if err := s.game.RemoveSlot(); err != nil {
			s.sendError(client, err)
		}

	case "set-target":
		var p SetTargetPayload
		if !s.decode(client, env.Payload, &p) {
			return
		}
		err := s.game.SetTarget(Target{
			Type:          p.Type,
			Content:       p.Content,
			ImageURL:      p.ImageURL,
			ImageFilename: p.ImageFilename,
		})
		if err != nil {
			s.sendError(client, err)
		}

	case "start-battle":
		var p StartBattlePayload
		if !s.decode(client, env.Payload, &p) {
			return
		}
		if err := s.game.StartBattle(p.Duration); err != nil {
			s.sendError(client, err)
		}

	case "prompt-update":
		var p PromptUpdatePayload
		if !s.decode(client, env.Payload, &p) {
			return
		}
		if err := s.game.UpdatePrompt(p.SlotID, p.Text); err != nil {
			s.sendError(client, err)
		}

	case "player-ready":
		var p SlotPayload
		if !s.decode(client, env.Payload, &p) {
			return
		}
		if err := s.game.SetReady(p.SlotID); err != nil {
			s.sendError(client, err)
		}

	case "set-display-name":
		var p SetNamePayload
		if !s.decode(client, env.Payload, &p) {
			return
		}
		if err := s.game.SetDisplayName(p.SlotID, p.Name); err != nil {
			s.sendError(client, err)
		}

	case "select-winner":
		var p SlotPayload
		if !s.decode(client, env.Payload, &p) {
			return
		}
		if err := s.game.SelectWinner(p.SlotID); err != nil {
			s.sendError(client, err)
		}

	case "reset-game":
		s.game.Reset()

	case "start-competition":
		var p StartCompetitionPayload
		if !s.decode(client, env.Payload, &p) {
			return
		}
		err := s.game.StartCompetition(CompetitionConfig{
			RoundLimit: p.RoundLimit,
			PointLimit: p.PointLimit,
		})
		if err != nil {
			s.sendError(client, err)
		}

	case "next-round":
		if err := s.game.NextRound(); err != nil {
			s.sendError(client, err)
		}

	case "end-competition":
		if err := s.game.EndCompetition(); err != nil {
			s.sendError(client, err)
		}

	case "create-bracket":
		var p CreateBracketPayload
		if !s.decode(client, env.Payload, &p) {
			return
		}
		if err := s.game.CreateBracket(p.SeedOrder); err != nil {
			s.sendError(client, err)
		}

	case "advance-match":
		if err := s.game.AdvanceMatch(); err != nil {
			s.sendError(client, err)
		}

	case "reset-bracket":
		s.game.ResetBracket()

	default:
		s.hub.SendTo(client, errEnvelope("unknown_type", "unknown message type"))
	}
}

func (s *Server) decode(client *HubClient, raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		s.hub.SendTo(client, errEnvelope("bad_input", "missing payload"))
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.hub.SendTo(client, errEnvelope("bad_input", "invalid payload"))
		return false
	}
	return true
}

func (s *Server) sendError(client *HubClient, err error) {
	var blocked *SlotRemovalBlockedError
	switch {
	case errors.As(err, &blocked):
		s.hub.SendTo(client, Envelope{
			Type:    EventSlotRemovalBlocked,
			Payload: mustJSON(SlotRemovalBlockedPayload{MinimumSlots: blocked.MinimumSlots}),
		})
	case errors.Is(err, ErrInvalidTransition):
		s.hub.SendTo(client, errEnvelope("invalid_transition", err.Error()))
	case errors.Is(err, ErrNoTarget), errors.Is(err, ErrNotEnoughPlayers):
		s.hub.SendTo(client, errEnvelope("precondition_failed", err.Error()))
	default:
		s.hub.SendTo(client, errEnvelope("rejected", err.Error()))
	}
}

func errEnvelope(code, msg string) Envelope {
	return Envelope{Type: "error", Payload: mustJSON(ErrorPayload{Code: code, Message: msg})}
}
