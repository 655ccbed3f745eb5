package game

import "github.com/shopspring/decimal"

// EventType names match the outbound websocket message types one to one,
// so the coordinator can route them without a translation table.
type EventType string

const (
	EventStateUpdate      EventType = "game_state_update"
	EventWaitingCountdown EventType = "waiting_countdown"
	EventMultiplierUpdate EventType = "multiplier_update"
	EventPlayerJoined     EventType = "player_joined"
	EventPlayerLeft       EventType = "player_left"
	EventBetPlaced        EventType = "player_bet"
	EventCashedOut        EventType = "player_cash_out"
	EventRoundComplete    EventType = "round_complete"
)

// Event is one typed domain event emitted by the engine loop.
type Event struct {
	Type    EventType
	Payload interface{}
}

type WaitingCountdownPayload struct {
	TimeRemaining int `json:"timeRemaining"`
}

type MultiplierUpdatePayload struct {
	Multiplier  float64 `json:"multiplier"`
	RoundNumber int64   `json:"roundNumber"`
}

type PlayerJoinedPayload struct {
	PlayerID    string `json:"playerId"`
	Player      Player `json:"playerData"`
	PlayerCount int    `json:"playerCount"`
}

type PlayerLeftPayload struct {
	PlayerID    string  `json:"playerId"`
	Player      *Player `json:"playerData,omitempty"`
	PlayerCount int     `json:"playerCount"`
}

type BetPlacedPayload struct {
	PlayerID    string          `json:"playerId"`
	Username    string          `json:"username"`
	Token       string          `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	NewBalance  decimal.Decimal `json:"newBalance"`
	RoundNumber int64           `json:"roundNumber"`
}

type CashedOutPayload struct {
	PlayerID    string          `json:"playerId"`
	Username    string          `json:"username"`
	Token       string          `json:"-"`
	Winnings    decimal.Decimal `json:"winnings"`
	NewBalance  decimal.Decimal `json:"newBalance"`
	Multiplier  float64         `json:"multiplier"`
	RoundNumber int64           `json:"roundNumber"`
}

type RoundCompletePayload struct {
	RoundNumber     int64         `json:"roundNumber"`
	CrashMultiplier float64       `json:"crashMultiplier"`
	Results         []RoundResult `json:"results"`
	Record          RoundRecord   `json:"-"`
}
