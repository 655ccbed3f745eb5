package game

import (
	"log"
	"sync"
	"time"
)

const (
	TICK_INTERVAL  = 100 * time.Millisecond
	WAITING_TIME   = 30 * time.Second
	COUNTDOWN_TIME = 5 * time.Second
	CRASHED_PAUSE  = 3 * time.Second

	BET_TIMEOUT     = 5 * time.Second
	CASHOUT_TIMEOUT = 500 * time.Millisecond
)

// Config carries the engine timings. Production uses Defaults; tests shrink
// the durations to keep rounds fast.
type Config struct {
	WaitingTime   time.Duration
	CountdownTime time.Duration
	TickInterval  time.Duration
	CrashedPause  time.Duration
}

func DefaultConfig() Config {
	return Config{
		WaitingTime:   WAITING_TIME,
		CountdownTime: COUNTDOWN_TIME,
		TickInterval:  TICK_INTERVAL,
		CrashedPause:  CRASHED_PAUSE,
	}
}

// JoinRequest is a player_join command funneled into the engine loop.
type JoinRequest struct {
	PlayerID     string
	Profile      PlayerProfile
	ResponseChan chan Player
}

// LeaveRequest removes a player. Fire-and-forget.
type LeaveRequest struct {
	PlayerID string
}

// Engine drives the round lifecycle: waiting -> countdown -> in_progress ->
// crashed -> waiting, with the round number bumped exactly once per cycle.
//
// All state mutation happens on the single run goroutine; player commands
// arrive over buffered channels and are answered on per-request response
// channels, so ticks and commands never interleave mid-mutation.
type Engine struct {
	cfg   Config
	state *RoundState
	clock *MultiplierClock

	stateMu sync.RWMutex

	events    chan Event
	joinCh    chan JoinRequest
	leaveCh   chan LeaveRequest
	betCh     chan BetRequest
	cashoutCh chan CashOutRequest
	stopCh    chan struct{}

	stopOnce sync.Once
}

func NewEngine(cfg Config, gen *CrashPointGenerator) *Engine {
	return &Engine{
		cfg:       cfg,
		state:     NewRoundState(),
		clock:     NewMultiplierClock(gen),
		events:    make(chan Event, 256),
		joinCh:    make(chan JoinRequest, 100),
		leaveCh:   make(chan LeaveRequest, 100),
		betCh:     make(chan BetRequest, 1000),
		cashoutCh: make(chan CashOutRequest, 1000),
		stopCh:    make(chan struct{}),
	}
}

// Events exposes the engine's domain event stream. Single consumer.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) Start() {
	e.stateMu.Lock()
	e.state.SetRoundNumber(1)
	e.stateMu.Unlock()
	go e.run()
}

// Stop halts the loop. Phase timers and tickers are released by the loop
// itself so no callback outlives the engine.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Join registers a player and returns the resolved record.
func (e *Engine) Join(playerID string, profile PlayerProfile) Player {
	respChan := make(chan Player, 1)
	select {
	case e.joinCh <- JoinRequest{PlayerID: playerID, Profile: profile, ResponseChan: respChan}:
		select {
		case p := <-respChan:
			return p
		case <-time.After(BET_TIMEOUT):
		}
	default:
	}
	return Player{ID: playerID, Username: profile.Username, Balance: profile.Balance}
}

func (e *Engine) Leave(playerID string) {
	select {
	case e.leaveCh <- LeaveRequest{PlayerID: playerID}:
	default:
		log.Printf("[GAME] Leave queue full, dropping leave for %s", playerID)
	}
}

// PlaceBet submits a wager and waits for the loop's verdict.
func (e *Engine) PlaceBet(req BetRequest) BetResponse {
	respChan := make(chan BetResponse, 1)
	req.ResponseChan = respChan

	select {
	case e.betCh <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(BET_TIMEOUT):
			return BetResponse{Success: false, Error: "bet timeout"}
		}
	default:
		return BetResponse{Success: false, Error: "bet queue full"}
	}
}

// CashOut submits a cash-out and waits for the loop's verdict. The short
// timeout keeps a stalled caller from holding a connection handler hostage
// while the multiplier keeps climbing.
func (e *Engine) CashOut(req CashOutRequest) CashOutResponse {
	respChan := make(chan CashOutResponse, 1)
	req.ResponseChan = respChan

	select {
	case e.cashoutCh <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(CASHOUT_TIMEOUT):
			return CashOutResponse{Success: false, Error: "cashout timeout"}
		}
	default:
		return CashOutResponse{Success: false, Error: "cashout queue full"}
	}
}

// GetState returns a point-in-time snapshot without history.
func (e *Engine) GetState() Snapshot {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state.Snapshot(false)
}

// GetSyncSnapshot returns the snapshot published to replicas, history included.
func (e *Engine) GetSyncSnapshot() Snapshot {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state.Snapshot(true)
}

// GetHistory returns up to limit completed rounds, newest first.
func (e *Engine) GetHistory(limit int) []RoundRecord {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state.History(limit)
}

func (e *Engine) run() {
	log.Println("[GAME] Engine loop started")
	for {
		select {
		case <-e.stopCh:
			log.Println("[GAME] Engine loop stopped")
			return
		default:
		}
		if !e.runRound() {
			log.Println("[GAME] Engine loop stopped")
			return
		}
	}
}

// runRound walks one full cycle. Returns false when the engine was stopped.
func (e *Engine) runRound() bool {
	e.stateMu.Lock()
	e.state.SetStartedAt(time.Now())
	roundNumber := e.state.RoundNumber()
	e.stateMu.Unlock()

	log.Printf("[GAME] === ROUND %d ===", roundNumber)

	if !e.runCountedPhase(PhaseWaiting, e.cfg.WaitingTime) {
		return false
	}
	if !e.runCountedPhase(PhaseCountdown, e.cfg.CountdownTime) {
		return false
	}
	if !e.runFlightPhase() {
		return false
	}
	if !e.runCrashedPause() {
		return false
	}

	e.stateMu.Lock()
	e.state.IncrementRound()
	e.state.ResetForNewRound()
	snap := e.state.Snapshot(false)
	e.stateMu.Unlock()
	e.emit(Event{Type: EventStateUpdate, Payload: snap})
	return true
}

// runCountedPhase drives waiting and countdown: fixed duration, one tick per
// second, bets accepted throughout.
func (e *Engine) runCountedPhase(phase Phase, duration time.Duration) bool {
	remaining := int(duration.Seconds())

	e.stateMu.Lock()
	e.state.SetPhase(phase)
	e.state.SetTimeRemaining(remaining)
	snap := e.state.Snapshot(false)
	e.stateMu.Unlock()
	e.emit(Event{Type: EventStateUpdate, Payload: snap})

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-e.stopCh:
			return false
		case <-ticker.C:
			remaining--
			e.stateMu.Lock()
			e.state.SetTimeRemaining(remaining)
			snap := e.state.Snapshot(false)
			e.stateMu.Unlock()
			if phase == PhaseWaiting {
				e.emit(Event{Type: EventWaitingCountdown, Payload: WaitingCountdownPayload{TimeRemaining: remaining}})
			}
			e.emit(Event{Type: EventStateUpdate, Payload: snap})
		case req := <-e.joinCh:
			e.processJoin(req)
		case req := <-e.leaveCh:
			e.processLeave(req)
		case req := <-e.betCh:
			e.processBet(req)
		case req := <-e.cashoutCh:
			e.processCashOut(req)
		}
	}
	return true
}

// runFlightPhase advances the multiplier every tick until the clock reports
// the crash point. Crash settlement happens inside the same tick handling,
// so no bet or cash-out racing the crash can land after detection.
func (e *Engine) runFlightPhase() bool {
	e.stateMu.Lock()
	e.clock.Reset()
	e.state.SetPhase(PhaseInProgress)
	e.state.SetMultiplier(MIN_MULTIPLIER)
	e.state.SetTimeRemaining(0)
	roundNumber := e.state.RoundNumber()
	startedAt := e.state.StartedAt()
	snap := e.state.Snapshot(false)
	crashPoint := e.clock.CrashPoint()
	e.stateMu.Unlock()

	log.Printf("[GAME] Round %d in progress, crash point %.2fx (hidden)", roundNumber, crashPoint)
	e.emit(Event{Type: EventStateUpdate, Payload: snap})

	start := time.Now()
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return false
		case <-ticker.C:
			e.stateMu.Lock()
			multiplier, crashed := e.clock.Tick(time.Since(start))
			e.state.SetMultiplier(multiplier)

			if !crashed {
				e.stateMu.Unlock()
				e.emit(Event{Type: EventMultiplierUpdate, Payload: MultiplierUpdatePayload{
					Multiplier:  multiplier,
					RoundNumber: roundNumber,
				}})
				continue
			}

			e.state.SetPhase(PhaseCrashed)
			results := e.state.CalculateRoundResults()
			record := buildRoundRecord(roundNumber, multiplier, results, startedAt)
			e.state.RecordRound(record)
			snap := e.state.Snapshot(false)
			e.stateMu.Unlock()

			log.Printf("[GAME] === ROUND %d CRASHED at %.2fx, %d bets settled ===",
				roundNumber, multiplier, len(results))

			e.emit(Event{Type: EventMultiplierUpdate, Payload: MultiplierUpdatePayload{
				Multiplier:  multiplier,
				RoundNumber: roundNumber,
			}})
			e.emit(Event{Type: EventRoundComplete, Payload: RoundCompletePayload{
				RoundNumber:     roundNumber,
				CrashMultiplier: multiplier,
				Results:         results,
				Record:          record,
			}})
			e.emit(Event{Type: EventStateUpdate, Payload: snap})
			return true
		case req := <-e.joinCh:
			e.processJoin(req)
		case req := <-e.leaveCh:
			e.processLeave(req)
		case req := <-e.betCh:
			e.processBet(req)
		case req := <-e.cashoutCh:
			e.processCashOut(req)
		}
	}
}

// runCrashedPause keeps the crashed display up briefly. Commands still get
// serviced so late bets fail fast instead of queueing into the next round.
func (e *Engine) runCrashedPause() bool {
	timer := time.NewTimer(e.cfg.CrashedPause)
	defer timer.Stop()

	for {
		select {
		case <-e.stopCh:
			return false
		case <-timer.C:
			return true
		case req := <-e.joinCh:
			e.processJoin(req)
		case req := <-e.leaveCh:
			e.processLeave(req)
		case req := <-e.betCh:
			e.processBet(req)
		case req := <-e.cashoutCh:
			e.processCashOut(req)
		}
	}
}

func (e *Engine) processJoin(req JoinRequest) {
	e.stateMu.Lock()
	player := e.state.AddPlayer(req.PlayerID, req.Profile)
	count := e.state.PlayerCount()
	snap := e.state.Snapshot(false)
	e.stateMu.Unlock()

	if req.ResponseChan != nil {
		req.ResponseChan <- *player
	}

	log.Printf("[GAME] Player joined: %s (%s), %d online", req.Profile.Username, req.PlayerID, count)
	e.emit(Event{Type: EventPlayerJoined, Payload: PlayerJoinedPayload{
		PlayerID:    req.PlayerID,
		Player:      *player,
		PlayerCount: count,
	}})
	e.emit(Event{Type: EventStateUpdate, Payload: snap})
}

func (e *Engine) processLeave(req LeaveRequest) {
	e.stateMu.Lock()
	player := e.state.RemovePlayer(req.PlayerID)
	count := e.state.PlayerCount()
	snap := e.state.Snapshot(false)
	e.stateMu.Unlock()

	if player != nil {
		log.Printf("[GAME] Player left: %s (%s), %d online", player.Username, req.PlayerID, count)
	}
	e.emit(Event{Type: EventPlayerLeft, Payload: PlayerLeftPayload{
		PlayerID:    req.PlayerID,
		Player:      player,
		PlayerCount: count,
	}})
	e.emit(Event{Type: EventStateUpdate, Payload: snap})
}

func (e *Engine) processBet(req BetRequest) {
	resp := BetResponse{}
	defer func() {
		if req.ResponseChan != nil {
			req.ResponseChan <- resp
		}
	}()

	e.stateMu.Lock()
	newBalance, err := e.state.PlaceBet(req.PlayerID, req.Amount)
	var (
		username    string
		token       string
		roundNumber = e.state.RoundNumber()
		snap        Snapshot
	)
	if err == nil {
		if p, ok := e.state.Player(req.PlayerID); ok {
			username = p.Username
			token = p.Token
		}
		snap = e.state.Snapshot(false)
	}
	e.stateMu.Unlock()

	if err != nil {
		resp.Error = err.Error()
		return
	}

	resp.Success = true
	resp.NewBalance = &newBalance

	log.Printf("[GAME] Bet placed: %s wagered %s (round %d)", username, req.Amount.StringFixed(2), roundNumber)
	e.emit(Event{Type: EventBetPlaced, Payload: BetPlacedPayload{
		PlayerID:    req.PlayerID,
		Username:    username,
		Token:       token,
		Amount:      req.Amount,
		NewBalance:  newBalance,
		RoundNumber: roundNumber,
	}})
	e.emit(Event{Type: EventStateUpdate, Payload: snap})
}

func (e *Engine) processCashOut(req CashOutRequest) {
	resp := CashOutResponse{}
	defer func() {
		if req.ResponseChan != nil {
			req.ResponseChan <- resp
		}
	}()

	e.stateMu.Lock()
	result, err := e.state.CashOut(req.PlayerID)
	var (
		username    string
		token       string
		roundNumber = e.state.RoundNumber()
		snap        Snapshot
	)
	if err == nil {
		if p, ok := e.state.Player(req.PlayerID); ok {
			username = p.Username
			token = p.Token
		}
		snap = e.state.Snapshot(false)
	}
	e.stateMu.Unlock()

	if err != nil {
		resp.Error = err.Error()
		return
	}

	resp.Success = true
	resp.Winnings = &result.Winnings
	resp.NewBalance = &result.NewBalance
	resp.Multiplier = result.Multiplier

	log.Printf("[GAME] Cash out: %s at %.2fx for %s (round %d)",
		username, result.Multiplier, result.Winnings.StringFixed(2), roundNumber)
	e.emit(Event{Type: EventCashedOut, Payload: CashedOutPayload{
		PlayerID:    req.PlayerID,
		Username:    username,
		Token:       token,
		Winnings:    result.Winnings,
		NewBalance:  result.NewBalance,
		Multiplier:  result.Multiplier,
		RoundNumber: roundNumber,
	}})
	e.emit(Event{Type: EventStateUpdate, Payload: snap})
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		log.Printf("[GAME] Event channel full, dropping %s", ev.Type)
	}
}

func buildRoundRecord(roundNumber int64, crashMultiplier float64, results []RoundResult, startedAt time.Time) RoundRecord {
	record := RoundRecord{
		RoundNumber:     roundNumber,
		CrashMultiplier: crashMultiplier,
		Results:         results,
		TotalBets:       len(results),
		StartedAt:       startedAt,
		EndedAt:         time.Now(),
	}
	total := record.TotalAmount
	for _, r := range results {
		total = total.Add(r.BetAmount)
	}
	record.TotalAmount = total
	return record
}
