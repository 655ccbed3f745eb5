package game

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is the round lifecycle state.
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseCountdown  Phase = "countdown"
	PhaseInProgress Phase = "in_progress"
	PhaseCrashed    Phase = "crashed"
)

// Player is a connected participant. Keyed by connection id; the auth token
// ties it back to the persisted record and never goes out on the wire.
type Player struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
	Token    string          `json:"-"`
	JoinedAt time.Time       `json:"joinedAt"`
}

// PlayerProfile is the join-time payload used to seed a Player.
type PlayerProfile struct {
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
	Token    string          `json:"-"`
}

// Bet is one player's wager for the current round. Multiplier stays nil
// until the bet is resolved by a cash-out or the crash.
type Bet struct {
	PlayerID   string          `json:"playerId"`
	PlayerName string          `json:"playerName"`
	Amount     decimal.Decimal `json:"amount"`
	PlacedAt   time.Time       `json:"placedAt"`
	Multiplier *float64        `json:"multiplier"`
	Won        bool            `json:"won"`
	CashedOut  bool            `json:"cashedOut"`
}

// CashOut records a settled bet.
type CashOut struct {
	PlayerID          string          `json:"playerId"`
	CashOutMultiplier float64         `json:"cashOutMultiplier"`
	Winnings          decimal.Decimal `json:"winnings"`
	CashedOutAt       time.Time       `json:"cashedOutAt"`
}

// ActiveBetView is the outward shape of a bet inside a state snapshot.
type ActiveBetView struct {
	Bet
	Player            *Player  `json:"player,omitempty"`
	HasCashedOut      bool     `json:"hasCashedOut"`
	CashOutMultiplier *float64 `json:"cashOutMultiplier"`
}

// RoundResult is one bet's final settlement for a completed round.
type RoundResult struct {
	PlayerID          string          `json:"playerId"`
	Username          string          `json:"username"`
	Token             string          `json:"-"`
	BetAmount         decimal.Decimal `json:"betAmount"`
	CashOutMultiplier float64         `json:"cashOutMultiplier"`
	Winnings          decimal.Decimal `json:"winnings"`
	Won               bool            `json:"won"`
}

// RoundRecord is one entry of the rolling round history, newest first.
type RoundRecord struct {
	RoundNumber     int64           `json:"roundNumber"`
	CrashMultiplier float64         `json:"crashMultiplier"`
	Results         []RoundResult   `json:"results"`
	TotalBets       int             `json:"totalBets"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	StartedAt       time.Time       `json:"startedAt"`
	EndedAt         time.Time       `json:"endedAt"`
}

// Snapshot is the full broadcastable game state. History rides along only
// on the replica sync channel, not in client-facing game_state_update pushes.
type Snapshot struct {
	CurrentState      Phase           `json:"currentState"`
	CurrentMultiplier float64         `json:"currentMultiplier"`
	Players           []Player        `json:"players"`
	ActiveBets        []ActiveBetView `json:"activeBets"`
	RoundNumber       int64           `json:"roundNumber"`
	TimeRemaining     int             `json:"timeRemaining"`
	PlayerCount       int             `json:"playerCount"`
	CashOuts          []CashOut       `json:"cashOuts"`
	History           []RoundRecord   `json:"history,omitempty"`
}

// BetRequest is a place_bet command funneled into the engine loop.
type BetRequest struct {
	PlayerID     string           `json:"playerId"`
	Amount       decimal.Decimal  `json:"amount"`
	ResponseChan chan BetResponse `json:"-"`
}

type BetResponse struct {
	Success    bool             `json:"success"`
	Error      string           `json:"error,omitempty"`
	NewBalance *decimal.Decimal `json:"newBalance,omitempty"`
	Pending    bool             `json:"pending,omitempty"`
}

// CashOutRequest is a cash_out command funneled into the engine loop.
type CashOutRequest struct {
	PlayerID     string               `json:"playerId"`
	ResponseChan chan CashOutResponse `json:"-"`
}

type CashOutResponse struct {
	Success    bool             `json:"success"`
	Error      string           `json:"error,omitempty"`
	Winnings   *decimal.Decimal `json:"winnings,omitempty"`
	NewBalance *decimal.Decimal `json:"newBalance,omitempty"`
	Multiplier float64          `json:"multiplier,omitempty"`
	Pending    bool             `json:"pending,omitempty"`
}

// WSMessage is the envelope for every websocket push.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
