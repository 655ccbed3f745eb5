package game

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	LEADER_COMMANDS_CHANNEL = "leader_commands"
	GAME_STATE_SYNC_CHANNEL = "game_state_sync"

	REDIS_KEY_LATEST_SNAPSHOT = "crash:state:latest"
	SNAPSHOT_TTL              = 1 * time.Hour
)

// LeaderCommand is a player command forwarded from a replica to the leader.
// Fire-and-forget: the effect shows up in the next published snapshot.
type LeaderCommand struct {
	Action    string         `json:"action"` // player_join | place_bet | cash_out | player_leave
	Data      CommandPayload `json:"data"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

// CommandPayload carries the command arguments. Token rides only this
// internal channel, never a client-facing message, so the leader can tie
// replica-connected players back to their persisted records.
type CommandPayload struct {
	PlayerID string          `json:"playerId"`
	Username string          `json:"username,omitempty"`
	Token    string          `json:"token,omitempty"`
	Balance  decimal.Decimal `json:"balance,omitempty"`
	Amount   decimal.Decimal `json:"amount,omitempty"`
}

// SyncMessage is the leader-published full-state snapshot.
type SyncMessage struct {
	Type      string    `json:"type"`
	Data      Snapshot  `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Leader    string    `json:"leader"`
}

// Replicator moves state and commands between instances over Redis pub/sub.
// Publish failures are logged and swallowed: a replica that misses a
// snapshot serves a stale one until the next arrives.
type Replicator struct {
	rdb        *redis.Client
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewReplicator(rdb *redis.Client, instanceID string) *Replicator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Replicator{
		rdb:        rdb,
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (r *Replicator) Close() {
	r.cancel()
}

// PublishSnapshot pushes the full state to every replica and refreshes the
// bootstrap key new replicas read on startup.
func (r *Replicator) PublishSnapshot(snap Snapshot) {
	msg := SyncMessage{
		Type:      GAME_STATE_SYNC_CHANNEL,
		Data:      snap,
		Timestamp: time.Now(),
		Leader:    r.instanceID,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[SYNC] Snapshot marshal error: %v", err)
		return
	}
	if err := r.rdb.Publish(r.ctx, GAME_STATE_SYNC_CHANNEL, data).Err(); err != nil {
		log.Printf("[SYNC] Snapshot publish error: %v", err)
	}
	if err := r.rdb.Set(r.ctx, REDIS_KEY_LATEST_SNAPSHOT, data, SNAPSHOT_TTL).Err(); err != nil {
		log.Printf("[SYNC] Snapshot cache error: %v", err)
	}
}

// LoadLatestSnapshot reads the bootstrap snapshot, if any. A fresh replica
// uses it to serve state before the first live sync message lands.
func (r *Replicator) LoadLatestSnapshot() (*Snapshot, bool) {
	data, err := r.rdb.Get(r.ctx, REDIS_KEY_LATEST_SNAPSHOT).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[SYNC] Snapshot load error: %v", err)
		}
		return nil, false
	}
	var msg SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[SYNC] Snapshot decode error: %v", err)
		return nil, false
	}
	return &msg.Data, true
}

// ForwardCommand publishes a player command toward the leader. No ack is
// awaited; errors are logged only.
func (r *Replicator) ForwardCommand(action string, payload CommandPayload) {
	cmd := LeaderCommand{
		Action:    action,
		Data:      payload,
		Source:    r.instanceID,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		log.Printf("[SYNC] Command marshal error: %v", err)
		return
	}
	if err := r.rdb.Publish(r.ctx, LEADER_COMMANDS_CHANNEL, data).Err(); err != nil {
		log.Printf("[SYNC] Command forward error: %v", err)
	}
}

// SubscribeCommands delivers forwarded replica commands to the handler.
// Leader only. Runs until Close.
func (r *Replicator) SubscribeCommands(handler func(LeaderCommand)) {
	sub := r.rdb.Subscribe(r.ctx, LEADER_COMMANDS_CHANNEL)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-r.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var cmd LeaderCommand
				if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
					log.Printf("[SYNC] Command decode error: %v", err)
					continue
				}
				handler(cmd)
			}
		}
	}()
}

// SubscribeSnapshots delivers leader snapshots to the handler. Replica only.
// Own publications are filtered by instance id.
func (r *Replicator) SubscribeSnapshots(handler func(SyncMessage)) {
	sub := r.rdb.Subscribe(r.ctx, GAME_STATE_SYNC_CHANNEL)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-r.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var sync SyncMessage
				if err := json.Unmarshal([]byte(msg.Payload), &sync); err != nil {
					log.Printf("[SYNC] Snapshot decode error: %v", err)
					continue
				}
				if sync.Leader == r.instanceID {
					continue
				}
				handler(sync)
			}
		}
	}()
}
