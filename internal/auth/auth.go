package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"crashgame/internal/database"
	"crashgame/internal/game"
)

// PlayerStore is the slice of the persistence gateway the auth flow needs.
type PlayerStore interface {
	CreatePlayer(ctx context.Context, username, token string, balance decimal.Decimal) (*database.PlayerRecord, error)
	GetPlayerByToken(ctx context.Context, token string) (*database.PlayerRecord, error)
	GetPlayerStats(ctx context.Context, token string) (*database.PlayerStats, error)
}

// Session binds one websocket connection to a resolved player identity.
type Session struct {
	ConnID   string
	Token    string
	Username string
}

// Result is the outcome of an authenticate command.
type Result struct {
	Player    game.PlayerProfile
	Token     string
	IsNewUser bool
}

// Service resolves players from tokens, creates new ones, and tracks which
// connection belongs to whom. A database outage degrades to in-memory
// players so authentication always succeeds.
type Service struct {
	store    PlayerStore
	sessions map[string]Session
	mu       sync.RWMutex
}

func NewService(store PlayerStore) *Service {
	return &Service{
		store:    store,
		sessions: make(map[string]Session),
	}
}

// Authenticate resumes a stored player for a valid token or creates a new
// one. An unknown token is not an error: the caller just gets a fresh
// identity, mirroring first-visit behavior.
func (s *Service) Authenticate(ctx context.Context, username, token string) Result {
	if token != "" && s.store != nil {
		rec, err := s.store.GetPlayerByToken(ctx, token)
		if err != nil {
			log.Printf("[AUTH] Token lookup failed (continuing): %v", err)
		}
		if rec != nil {
			log.Printf("[AUTH] Returning player: %s", rec.Username)
			return Result{
				Player: game.PlayerProfile{
					Username: rec.Username,
					Balance:  rec.Balance,
					Token:    rec.Token,
				},
				Token:     rec.Token,
				IsNewUser: false,
			}
		}
	}

	newToken := GenerateToken()
	balance := decimal.NewFromFloat(game.DEFAULT_BALANCE)

	if s.store != nil {
		rec, err := s.store.CreatePlayer(ctx, username, newToken, balance)
		if err != nil {
			log.Printf("[AUTH] Player create failed, using in-memory player: %v", err)
		} else if rec != nil {
			username = rec.Username
			balance = rec.Balance
		}
	}

	log.Printf("[AUTH] New player: %s", username)
	return Result{
		Player: game.PlayerProfile{
			Username: username,
			Balance:  balance,
			Token:    newToken,
		},
		Token:     newToken,
		IsNewUser: true,
	}
}

// AttachSession associates a connection with an authenticated player.
func (s *Service) AttachSession(connID, token, username string) {
	s.mu.Lock()
	s.sessions[connID] = Session{ConnID: connID, Token: token, Username: username}
	s.mu.Unlock()
}

// SessionFor returns the session bound to the connection, if any.
func (s *Service) SessionFor(connID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[connID]
	return sess, ok
}

// RemoveSession drops the binding when the connection closes.
func (s *Service) RemoveSession(connID string) {
	s.mu.Lock()
	delete(s.sessions, connID)
	s.mu.Unlock()
}

func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stats fetches the persisted betting record for an authenticated connection.
func (s *Service) Stats(ctx context.Context, connID string) (*database.PlayerStats, error) {
	sess, ok := s.SessionFor(connID)
	if !ok || sess.Token == "" {
		return nil, game.ErrNotAuthenticated
	}
	if s.store == nil {
		return nil, game.ErrPersistenceUnavailable
	}
	stats, err := s.store.GetPlayerStats(ctx, sess.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrPersistenceUnavailable, err)
	}
	return stats, nil
}

// GenerateToken issues an opaque player token: a base36 timestamp plus
// 8 random bytes.
func GenerateToken() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Timestamp-only token, still unique enough for a fallback.
		return "crash_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return fmt.Sprintf("crash_%s_%s",
		strconv.FormatInt(time.Now().UnixMilli(), 36), hex.EncodeToString(b))
}
