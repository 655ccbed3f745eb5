package game

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	HISTORY_LIMIT = 50

	DEFAULT_BALANCE = 1000.00
	MIN_BET_AMOUNT  = 1.00
	MAX_BET_AMOUNT  = 1000.00
)

// RoundState is the in-memory ledger for one instance: connected players,
// active bets, cash-outs, the rolling history and the current phase.
//
// It carries no lock of its own. On the leader it is owned and mutated only
// by the engine loop; on a replica it is a mirror overwritten by the sync
// subscriber. Callers wanting concurrent reads wrap it (see Engine.stateMu).
type RoundState struct {
	phase         Phase
	multiplier    float64
	roundNumber   int64
	timeRemaining int
	startedAt     time.Time
	players       map[string]*Player
	bets          map[string]*Bet
	cashOuts      map[string]*CashOut
	history       []RoundRecord
	historyLimit  int
}

func NewRoundState() *RoundState {
	return &RoundState{
		phase:        PhaseWaiting,
		multiplier:   MIN_MULTIPLIER,
		players:      make(map[string]*Player),
		bets:         make(map[string]*Bet),
		cashOuts:     make(map[string]*CashOut),
		historyLimit: HISTORY_LIMIT,
	}
}

// AddPlayer upserts a player record keyed by connection id. Idempotent:
// a rejoin with the same id replaces the profile but never duplicates.
// The starting credit applies only to tokenless legacy joins; a
// token-bearing profile carries its persisted balance, zero included.
func (s *RoundState) AddPlayer(id string, profile PlayerProfile) *Player {
	balance := profile.Balance
	if balance.IsZero() && profile.Token == "" {
		balance = decimal.NewFromFloat(DEFAULT_BALANCE)
	}
	p := &Player{
		ID:       id,
		Username: profile.Username,
		Balance:  balance,
		Token:    profile.Token,
		JoinedAt: time.Now(),
	}
	if existing, ok := s.players[id]; ok {
		p.JoinedAt = existing.JoinedAt
	}
	s.players[id] = p
	return p
}

// RemovePlayer drops the player and any bet/cash-out records. No refund:
// a placed bet was already debited and stands against the round.
func (s *RoundState) RemovePlayer(id string) *Player {
	p := s.players[id]
	delete(s.players, id)
	delete(s.bets, id)
	delete(s.cashOuts, id)
	return p
}

func (s *RoundState) Player(id string) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

func (s *RoundState) PlayerCount() int {
	return len(s.players)
}

// PlaceBet validates and records a wager, debiting the balance atomically
// with the bet record. On any failure nothing changes.
func (s *RoundState) PlaceBet(playerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if s.phase != PhaseWaiting && s.phase != PhaseCountdown {
		return decimal.Zero, ErrInvalidPhase
	}
	player, ok := s.players[playerID]
	if !ok {
		return decimal.Zero, ErrUnknownPlayer
	}
	if amount.LessThan(decimal.NewFromFloat(MIN_BET_AMOUNT)) ||
		amount.GreaterThan(decimal.NewFromFloat(MAX_BET_AMOUNT)) {
		return decimal.Zero, ErrInvalidAmount
	}
	if amount.GreaterThan(player.Balance) {
		return decimal.Zero, ErrInsufficientBalance
	}
	if _, exists := s.bets[playerID]; exists {
		return decimal.Zero, ErrDuplicateBet
	}

	player.Balance = player.Balance.Sub(amount)
	s.bets[playerID] = &Bet{
		PlayerID:   playerID,
		PlayerName: player.Username,
		Amount:     amount,
		PlacedAt:   time.Now(),
	}
	return player.Balance, nil
}

// CashOutResult is what a successful cash-out hands back to the player.
type CashOutResult struct {
	Winnings   decimal.Decimal
	NewBalance decimal.Decimal
	Multiplier float64
}

// CashOut settles the player's bet at the current multiplier. First request
// wins; anything after fails with ErrAlreadyCashedOut.
func (s *RoundState) CashOut(playerID string) (CashOutResult, error) {
	if s.phase != PhaseInProgress {
		return CashOutResult{}, ErrInvalidPhase
	}
	bet, ok := s.bets[playerID]
	if !ok {
		return CashOutResult{}, ErrNoActiveBet
	}
	if _, done := s.cashOuts[playerID]; done {
		return CashOutResult{}, ErrAlreadyCashedOut
	}
	player, ok := s.players[playerID]
	if !ok {
		return CashOutResult{}, ErrUnknownPlayer
	}

	multiplier := s.multiplier
	winnings := bet.Amount.Mul(decimal.NewFromFloat(multiplier)).Round(2)

	s.cashOuts[playerID] = &CashOut{
		PlayerID:          playerID,
		CashOutMultiplier: multiplier,
		Winnings:          winnings,
		CashedOutAt:       time.Now(),
	}
	bet.Multiplier = &multiplier
	bet.Won = true
	bet.CashedOut = true
	player.Balance = player.Balance.Add(winnings)

	return CashOutResult{
		Winnings:   winnings,
		NewBalance: player.Balance,
		Multiplier: multiplier,
	}, nil
}

// CalculateRoundResults settles every active bet exactly once: cashed-out
// bets keep their locked multiplier and winnings, the rest lose at the
// crash multiplier with zero winnings.
func (s *RoundState) CalculateRoundResults() []RoundResult {
	results := make([]RoundResult, 0, len(s.bets))
	for playerID, bet := range s.bets {
		var username, token string
		if player, ok := s.players[playerID]; ok {
			username = player.Username
			token = player.Token
		} else {
			username = bet.PlayerName
		}

		if cashOut, ok := s.cashOuts[playerID]; ok {
			results = append(results, RoundResult{
				PlayerID:          playerID,
				Username:          username,
				Token:             token,
				BetAmount:         bet.Amount,
				CashOutMultiplier: cashOut.CashOutMultiplier,
				Winnings:          cashOut.Winnings,
				Won:               true,
			})
		} else {
			results = append(results, RoundResult{
				PlayerID:          playerID,
				Username:          username,
				Token:             token,
				BetAmount:         bet.Amount,
				CashOutMultiplier: s.multiplier,
				Winnings:          decimal.Zero,
				Won:               false,
			})
		}
	}
	return results
}

// RecordRound pushes a completed round onto the history, newest first,
// dropping the oldest past the cap.
func (s *RoundState) RecordRound(rec RoundRecord) {
	s.history = append([]RoundRecord{rec}, s.history...)
	if len(s.history) > s.historyLimit {
		s.history = s.history[:s.historyLimit]
	}
}

// History returns up to limit records, newest first.
func (s *RoundState) History(limit int) []RoundRecord {
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]RoundRecord, limit)
	copy(out, s.history[:limit])
	return out
}

// ResetForNewRound clears bets and cash-outs and re-arms the waiting phase.
// Players and history survive across rounds.
func (s *RoundState) ResetForNewRound() {
	s.bets = make(map[string]*Bet)
	s.cashOuts = make(map[string]*CashOut)
	s.multiplier = MIN_MULTIPLIER
	s.phase = PhaseWaiting
}

func (s *RoundState) Phase() Phase              { return s.phase }
func (s *RoundState) SetPhase(p Phase)          { s.phase = p }
func (s *RoundState) Multiplier() float64       { return s.multiplier }
func (s *RoundState) SetMultiplier(m float64)   { s.multiplier = m }
func (s *RoundState) RoundNumber() int64        { return s.roundNumber }
func (s *RoundState) SetRoundNumber(n int64)    { s.roundNumber = n }
func (s *RoundState) IncrementRound()           { s.roundNumber++ }
func (s *RoundState) TimeRemaining() int        { return s.timeRemaining }
func (s *RoundState) SetTimeRemaining(sec int)  { s.timeRemaining = sec }
func (s *RoundState) StartedAt() time.Time      { return s.startedAt }
func (s *RoundState) SetStartedAt(t time.Time)  { s.startedAt = t }

// Snapshot materializes the full broadcastable state. includeHistory is set
// only for the replica sync channel.
func (s *RoundState) Snapshot(includeHistory bool) Snapshot {
	players := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}

	bets := make([]ActiveBetView, 0, len(s.bets))
	for playerID, bet := range s.bets {
		view := ActiveBetView{Bet: *bet}
		if p, ok := s.players[playerID]; ok {
			cp := *p
			view.Player = &cp
		}
		if cashOut, ok := s.cashOuts[playerID]; ok {
			view.HasCashedOut = true
			m := cashOut.CashOutMultiplier
			view.CashOutMultiplier = &m
		}
		bets = append(bets, view)
	}

	cashOuts := make([]CashOut, 0, len(s.cashOuts))
	for _, c := range s.cashOuts {
		cashOuts = append(cashOuts, *c)
	}

	snap := Snapshot{
		CurrentState:      s.phase,
		CurrentMultiplier: s.multiplier,
		Players:           players,
		ActiveBets:        bets,
		RoundNumber:       s.roundNumber,
		TimeRemaining:     s.timeRemaining,
		PlayerCount:       len(s.players),
		CashOuts:          cashOuts,
	}
	if includeHistory {
		snap.History = s.History(0)
	}
	return snap
}

// ApplySnapshot overwrites the mirrored state from a leader-published
// snapshot. Replicas only: local maps are replaced wholesale by id.
func (s *RoundState) ApplySnapshot(snap Snapshot) {
	s.phase = snap.CurrentState
	s.multiplier = snap.CurrentMultiplier
	s.roundNumber = snap.RoundNumber
	s.timeRemaining = snap.TimeRemaining

	s.players = make(map[string]*Player, len(snap.Players))
	for i := range snap.Players {
		p := snap.Players[i]
		s.players[p.ID] = &p
	}
	s.bets = make(map[string]*Bet, len(snap.ActiveBets))
	for i := range snap.ActiveBets {
		b := snap.ActiveBets[i].Bet
		s.bets[b.PlayerID] = &b
	}
	s.cashOuts = make(map[string]*CashOut, len(snap.CashOuts))
	for i := range snap.CashOuts {
		c := snap.CashOuts[i]
		s.cashOuts[c.PlayerID] = &c
	}
	if snap.History != nil {
		s.history = snap.History
	}
}
