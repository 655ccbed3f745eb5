package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crashgame/internal/game"
)

// clientMessage is the flat inbound command envelope. Amount stays raw so a
// non-numeric value can be answered with a proper validation error instead
// of a silent drop.
type clientMessage struct {
	Type     string          `json:"type"`
	Username string          `json:"username"`
	Token    string          `json:"token"`
	Balance  decimal.Decimal `json:"balance"`
	Amount   json.RawMessage `json:"amount"`
}

// gameWebSocketHandler owns one connection: registers it with the hub,
// pushes the initial state and history, then dispatches inbound commands
// until the connection drops, which counts as a leave.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	connID := uuid.NewString()
	client := s.hub.RegisterClient(conn, connID)

	defer func() {
		s.hub.UnregisterClient(client)
		s.coordinator.Leave(connID)
		s.auth.RemoveSession(connID)
	}()

	s.hub.SendTo(connID, game.WSMessage{
		Type: string(game.EventStateUpdate),
		Data: s.coordinator.GetState(),
	})
	s.hub.SendTo(connID, game.WSMessage{
		Type: "game_history",
		Data: s.coordinator.GetHistory(10),
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for %s: %v", connID, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "authenticate":
			s.handleAuthenticate(connID, msg)
		case "player_join":
			s.handlePlayerJoin(connID, msg)
		case "place_bet":
			s.handlePlaceBet(connID, msg)
		case "cash_out":
			resp := s.coordinator.CashOut(connID)
			s.hub.SendTo(connID, game.WSMessage{Type: "cash_out_result", Data: resp})
		case "get_player_stats":
			s.handlePlayerStats(connID)
		case "ping":
			s.hub.SendTo(connID, game.WSMessage{Type: "pong"})
		}
	}
}

func (s *FiberServer) handleAuthenticate(connID string, msg clientMessage) {
	if msg.Username == "" && msg.Token == "" {
		s.hub.SendTo(connID, game.WSMessage{
			Type: "authentication_failed",
			Data: fiber.Map{"error": "username is required"},
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := s.auth.Authenticate(ctx, msg.Username, msg.Token)
	s.auth.AttachSession(connID, result.Token, result.Player.Username)
	player := s.coordinator.JoinGame(connID, result.Player)

	s.hub.SendTo(connID, game.WSMessage{
		Type: "authenticated",
		Data: fiber.Map{
			"player":    player,
			"token":     result.Token,
			"isNewUser": result.IsNewUser,
		},
	})
}

// handlePlayerJoin is the legacy unauthenticated path: a display name and an
// optional starting balance, no persisted identity.
func (s *FiberServer) handlePlayerJoin(connID string, msg clientMessage) {
	username := msg.Username
	if username == "" {
		username = "anonymous"
	}
	s.coordinator.JoinGame(connID, game.PlayerProfile{
		Username: username,
		Balance:  msg.Balance,
	})
	s.hub.SendTo(connID, game.WSMessage{
		Type: string(game.EventStateUpdate),
		Data: s.coordinator.GetState(),
	})
}

func (s *FiberServer) handlePlaceBet(connID string, msg clientMessage) {
	var amount decimal.Decimal
	if len(msg.Amount) == 0 || amount.UnmarshalJSON(msg.Amount) != nil {
		s.hub.SendTo(connID, game.WSMessage{
			Type: "bet_result",
			Data: game.BetResponse{Success: false, Error: game.ErrInvalidAmount.Error()},
		})
		return
	}
	resp := s.coordinator.PlaceBet(connID, amount)
	s.hub.SendTo(connID, game.WSMessage{Type: "bet_result", Data: resp})
}

func (s *FiberServer) handlePlayerStats(connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := s.auth.Stats(ctx, connID)
	if err != nil {
		s.hub.SendTo(connID, game.WSMessage{
			Type: "player_stats",
			Data: fiber.Map{"success": false, "error": err.Error()},
		})
		return
	}
	s.hub.SendTo(connID, game.WSMessage{
		Type: "player_stats",
		Data: fiber.Map{"success": true, "stats": stats},
	})
}
