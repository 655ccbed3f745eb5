package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crashgame/internal/database"
	"crashgame/internal/game"
)

type fakeStore struct {
	players map[string]*database.PlayerRecord
	stats   map[string]*database.PlayerStats
	err     error

	created []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		players: make(map[string]*database.PlayerRecord),
		stats:   make(map[string]*database.PlayerStats),
	}
}

func (f *fakeStore) CreatePlayer(_ context.Context, username, token string, balance decimal.Decimal) (*database.PlayerRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec := &database.PlayerRecord{Token: token, Username: username, Balance: balance}
	f.players[token] = rec
	f.created = append(f.created, username)
	return rec, nil
}

func (f *fakeStore) GetPlayerByToken(_ context.Context, token string) (*database.PlayerRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.players[token], nil
}

func (f *fakeStore) GetPlayerStats(_ context.Context, token string) (*database.PlayerStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats[token], nil
}

func TestAuthenticate_NewPlayer(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	result := svc.Authenticate(context.Background(), "alice", "")

	assert.True(t, result.IsNewUser)
	assert.Equal(t, "alice", result.Player.Username)
	assert.True(t, result.Player.Balance.Equal(decimal.NewFromFloat(game.DEFAULT_BALANCE)))
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, []string{"alice"}, store.created, "player persisted")
}

func TestAuthenticate_ReturningPlayer(t *testing.T) {
	store := newFakeStore()
	store.players["tok-1"] = &database.PlayerRecord{
		Token:    "tok-1",
		Username: "alice",
		Balance:  decimal.NewFromFloat(742.50),
	}
	svc := NewService(store)

	result := svc.Authenticate(context.Background(), "ignored", "tok-1")

	assert.False(t, result.IsNewUser)
	assert.Equal(t, "tok-1", result.Token)
	assert.Equal(t, "alice", result.Player.Username, "stored username wins over the submitted one")
	assert.True(t, result.Player.Balance.Equal(decimal.NewFromFloat(742.50)))
	assert.Empty(t, store.created)
}

func TestAuthenticate_UnknownTokenGetsFreshIdentity(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	result := svc.Authenticate(context.Background(), "bob", "crash_stale_token")

	assert.True(t, result.IsNewUser)
	assert.NotEqual(t, "crash_stale_token", result.Token)
	assert.Equal(t, "bob", result.Player.Username)
}

func TestAuthenticate_StoreOutageFallsBackToMemory(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	svc := NewService(store)

	result := svc.Authenticate(context.Background(), "alice", "tok-1")

	assert.True(t, result.IsNewUser, "lookup failure means a fresh in-memory player")
	assert.Equal(t, "alice", result.Player.Username)
	assert.True(t, result.Player.Balance.Equal(decimal.NewFromFloat(game.DEFAULT_BALANCE)))
	assert.NotEmpty(t, result.Token)
}

func TestAuthenticate_NilStore(t *testing.T) {
	svc := NewService(nil)

	result := svc.Authenticate(context.Background(), "alice", "tok-1")

	assert.True(t, result.IsNewUser)
	assert.NotEmpty(t, result.Token)
}

func TestSessions(t *testing.T) {
	svc := NewService(nil)

	svc.AttachSession("conn-1", "tok-1", "alice")
	svc.AttachSession("conn-2", "tok-2", "bob")
	assert.Equal(t, 2, svc.SessionCount())

	sess, ok := svc.SessionFor("conn-1")
	require.True(t, ok)
	assert.Equal(t, "tok-1", sess.Token)
	assert.Equal(t, "alice", sess.Username)

	svc.RemoveSession("conn-1")
	_, ok = svc.SessionFor("conn-1")
	assert.False(t, ok)
	assert.Equal(t, 1, svc.SessionCount())

	// Removing twice is a no-op.
	svc.RemoveSession("conn-1")
}

func TestStats(t *testing.T) {
	t.Run("unauthenticated connection", func(t *testing.T) {
		svc := NewService(newFakeStore())
		_, err := svc.Stats(context.Background(), "conn-1")
		assert.ErrorIs(t, err, game.ErrNotAuthenticated)
	})

	t.Run("no store", func(t *testing.T) {
		svc := NewService(nil)
		svc.AttachSession("conn-1", "tok-1", "alice")
		_, err := svc.Stats(context.Background(), "conn-1")
		assert.ErrorIs(t, err, game.ErrPersistenceUnavailable)
	})

	t.Run("store error wrapped", func(t *testing.T) {
		store := newFakeStore()
		store.err = errors.New("timeout")
		svc := NewService(store)
		svc.AttachSession("conn-1", "tok-1", "alice")

		_, err := svc.Stats(context.Background(), "conn-1")
		assert.ErrorIs(t, err, game.ErrPersistenceUnavailable)
	})

	t.Run("returns persisted stats", func(t *testing.T) {
		store := newFakeStore()
		store.stats["tok-1"] = &database.PlayerStats{GamesPlayed: 12, WinRate: 41.67}
		svc := NewService(store)
		svc.AttachSession("conn-1", "tok-1", "alice")

		stats, err := svc.Stats(context.Background(), "conn-1")
		require.NoError(t, err)
		assert.Equal(t, 12, stats.GamesPlayed)
		assert.Equal(t, 41.67, stats.WinRate)
	})
}

func TestGenerateToken(t *testing.T) {
	pattern := regexp.MustCompile(`^crash_[0-9a-z]+_[0-9a-f]{16}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := GenerateToken()
		if !pattern.MatchString(token) {
			t.Fatalf("token %q does not match expected format", token)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}
