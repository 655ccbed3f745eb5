package game

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Role decides which side of the sync protocol an instance runs. Set once
// at deployment time; nothing elects a new leader at runtime.
type Role string

const (
	RoleLeader  Role = "leader"
	RoleReplica Role = "replica"
)

// Store is the persistence gateway the coordinator writes through. All
// calls are best-effort: failures are logged, the round loop never waits.
type Store interface {
	SaveRound(ctx context.Context, rec RoundRecord) (int64, error)
	SaveBets(ctx context.Context, roundID int64, results []RoundResult) error
	UpdatePlayerBalance(ctx context.Context, token string, balance decimal.Decimal) error
}

// Coordinator adapts engine events to the outward push protocol and exposes
// the player-facing operations. A leader owns a live engine; a replica
// mirrors leader snapshots and forwards every command.
type Coordinator struct {
	role       Role
	instanceID string
	engine     *Engine
	hub        *Hub
	repl       *Replicator
	store      Store

	mirror   *RoundState
	mirrorMu sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// CoordinatorConfig wires a coordinator. Engine is required for the leader
// role; Replicator may be nil for a single-instance deployment; Store may
// be nil when running without a database.
type CoordinatorConfig struct {
	Role       Role
	InstanceID string
	Engine     *Engine
	Hub        *Hub
	Replicator *Replicator
	Store      Store
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		role:       cfg.Role,
		instanceID: cfg.InstanceID,
		engine:     cfg.Engine,
		hub:        cfg.Hub,
		repl:       cfg.Replicator,
		store:      cfg.Store,
		mirror:     NewRoundState(),
		stopCh:     make(chan struct{}),
	}
}

func (c *Coordinator) Role() Role {
	return c.role
}

func (c *Coordinator) Start() {
	switch c.role {
	case RoleLeader:
		c.engine.Start()
		go c.consumeEvents()
		if c.repl != nil {
			c.repl.SubscribeCommands(c.applyLeaderCommand)
		}
		log.Printf("[GAME] Coordinator started as leader (%s)", c.instanceID)
	case RoleReplica:
		if c.repl == nil {
			log.Println("[GAME] Replica without a sync channel, state will stay empty")
			return
		}
		if snap, ok := c.repl.LoadLatestSnapshot(); ok {
			c.mirrorMu.Lock()
			c.mirror.ApplySnapshot(*snap)
			c.mirrorMu.Unlock()
			log.Printf("[GAME] Replica bootstrapped from snapshot (round %d)", snap.RoundNumber)
		}
		c.repl.SubscribeSnapshots(c.applySnapshot)
		log.Printf("[GAME] Coordinator started as replica (%s)", c.instanceID)
	}
}

func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.engine != nil {
			c.engine.Stop()
		}
		if c.repl != nil {
			c.repl.Close()
		}
	})
}

// consumeEvents routes engine events to the hub, to persistence, and (on
// every full state update) to the replica sync channel.
func (c *Coordinator) consumeEvents() {
	for {
		select {
		case <-c.stopCh:
			return
		case ev := <-c.engine.Events():
			c.hub.Broadcast(WSMessage{Type: string(ev.Type), Data: ev.Payload})

			switch ev.Type {
			case EventStateUpdate:
				if c.repl != nil {
					c.repl.PublishSnapshot(c.engine.GetSyncSnapshot())
				}
			case EventBetPlaced:
				if p, ok := ev.Payload.(BetPlacedPayload); ok {
					c.persistBalance(p.Token, p.NewBalance)
				}
			case EventCashedOut:
				if p, ok := ev.Payload.(CashedOutPayload); ok {
					c.persistBalance(p.Token, p.NewBalance)
				}
			case EventRoundComplete:
				if p, ok := ev.Payload.(RoundCompletePayload); ok {
					go c.persistRound(p)
				}
			}
		}
	}
}

// applyLeaderCommand executes a command forwarded by a replica. Arrival
// order decides races: the first cash_out for a player wins, later ones
// fail inside the engine with AlreadyCashedOut.
func (c *Coordinator) applyLeaderCommand(cmd LeaderCommand) {
	log.Printf("[SYNC] Command from %s: %s (%s)", cmd.Source, cmd.Action, cmd.Data.PlayerID)
	switch cmd.Action {
	case "player_join":
		c.engine.Join(cmd.Data.PlayerID, PlayerProfile{
			Username: cmd.Data.Username,
			Balance:  cmd.Data.Balance,
			Token:    cmd.Data.Token,
		})
	case "place_bet":
		c.engine.PlaceBet(BetRequest{PlayerID: cmd.Data.PlayerID, Amount: cmd.Data.Amount})
	case "cash_out":
		c.engine.CashOut(CashOutRequest{PlayerID: cmd.Data.PlayerID})
	case "player_leave":
		c.engine.Leave(cmd.Data.PlayerID)
	default:
		log.Printf("[SYNC] Unknown command action: %s", cmd.Action)
	}
}

// applySnapshot overwrites the replica mirror and rebroadcasts the update
// to this instance's own clients.
func (c *Coordinator) applySnapshot(msg SyncMessage) {
	c.mirrorMu.Lock()
	c.mirror.ApplySnapshot(msg.Data)
	snap := c.mirror.Snapshot(false)
	c.mirrorMu.Unlock()

	c.hub.Broadcast(WSMessage{Type: string(EventStateUpdate), Data: snap})
}

// JoinGame registers a player, locally on the leader, by forwarding on a
// replica.
func (c *Coordinator) JoinGame(playerID string, profile PlayerProfile) Player {
	if c.role == RoleLeader {
		return c.engine.Join(playerID, profile)
	}
	if c.repl != nil {
		c.repl.ForwardCommand("player_join", CommandPayload{
			PlayerID: playerID,
			Username: profile.Username,
			Token:    profile.Token,
			Balance:  profile.Balance,
		})
	}
	balance := profile.Balance
	if balance.IsZero() && profile.Token == "" {
		balance = decimal.NewFromFloat(DEFAULT_BALANCE)
	}
	return Player{ID: playerID, Username: profile.Username, Balance: balance, Token: profile.Token, JoinedAt: time.Now()}
}

// PlaceBet places a wager. A replica forwards and acknowledges receipt only;
// the caller sees the real outcome in the next snapshot.
func (c *Coordinator) PlaceBet(playerID string, amount decimal.Decimal) BetResponse {
	if c.role == RoleLeader {
		return c.engine.PlaceBet(BetRequest{PlayerID: playerID, Amount: amount})
	}
	if c.repl == nil {
		return BetResponse{Success: false, Error: "no leader available"}
	}
	c.repl.ForwardCommand("place_bet", CommandPayload{PlayerID: playerID, Amount: amount})
	return BetResponse{Success: true, Pending: true}
}

// CashOut settles the player's bet at the current multiplier (leader) or
// forwards the request (replica).
func (c *Coordinator) CashOut(playerID string) CashOutResponse {
	if c.role == RoleLeader {
		return c.engine.CashOut(CashOutRequest{PlayerID: playerID})
	}
	if c.repl == nil {
		return CashOutResponse{Success: false, Error: "no leader available"}
	}
	c.repl.ForwardCommand("cash_out", CommandPayload{PlayerID: playerID})
	return CashOutResponse{Success: true, Pending: true}
}

func (c *Coordinator) Leave(playerID string) {
	if c.role == RoleLeader {
		c.engine.Leave(playerID)
		return
	}
	if c.repl != nil {
		c.repl.ForwardCommand("player_leave", CommandPayload{PlayerID: playerID})
	}
}

// GetState serves the authoritative snapshot on the leader and the mirrored
// (possibly milliseconds-stale) one on a replica.
func (c *Coordinator) GetState() Snapshot {
	if c.role == RoleLeader {
		return c.engine.GetState()
	}
	c.mirrorMu.RLock()
	defer c.mirrorMu.RUnlock()
	return c.mirror.Snapshot(false)
}

// GetHistory returns up to limit completed rounds, newest first.
func (c *Coordinator) GetHistory(limit int) []RoundRecord {
	if c.role == RoleLeader {
		return c.engine.GetHistory(limit)
	}
	c.mirrorMu.RLock()
	defer c.mirrorMu.RUnlock()
	return c.mirror.History(limit)
}

func (c *Coordinator) persistBalance(token string, balance decimal.Decimal) {
	if c.store == nil || token == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.store.UpdatePlayerBalance(ctx, token, balance); err != nil {
			log.Printf("[GAME] Balance persist failed (continuing): %v", err)
		}
	}()
}

// persistRound records the completed round and its bets. Best-effort: a
// storage outage costs audit trail, never game progress.
func (c *Coordinator) persistRound(p RoundCompletePayload) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	roundID, err := c.store.SaveRound(ctx, p.Record)
	if err != nil {
		log.Printf("[GAME] Round %d persist failed (continuing): %v", p.RoundNumber, err)
		return
	}
	if err := c.store.SaveBets(ctx, roundID, p.Results); err != nil {
		log.Printf("[GAME] Round %d bets persist failed (continuing): %v", p.RoundNumber, err)
	}
}
