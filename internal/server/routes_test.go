package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"crashgame/internal/auth"
	"crashgame/internal/database"
	"crashgame/internal/game"
)

// stubDB satisfies the persistence gateway without a live Postgres.
type stubDB struct{}

func (stubDB) Health() map[string]string { return map[string]string{"status": "up"} }
func (stubDB) Close() error              { return nil }
func (stubDB) DB() *sql.DB               { return nil }

func (stubDB) CreatePlayer(context.Context, string, string, decimal.Decimal) (*database.PlayerRecord, error) {
	return nil, nil
}
func (stubDB) GetPlayerByToken(context.Context, string) (*database.PlayerRecord, error) {
	return nil, nil
}
func (stubDB) UpdatePlayerBalance(context.Context, string, decimal.Decimal) error { return nil }
func (stubDB) SaveRound(context.Context, game.RoundRecord) (int64, error)         { return 0, nil }
func (stubDB) SaveBets(context.Context, int64, []game.RoundResult) error          { return nil }
func (stubDB) GetRoundHistory(context.Context, int) ([]database.RoundRow, error)  { return nil, nil }
func (stubDB) GetPlayerStats(context.Context, string) (*database.PlayerStats, error) {
	return &database.PlayerStats{}, nil
}

func newTestServer() *FiberServer {
	hub := game.NewHub()
	db := stubDB{}
	coordinator := game.NewCoordinator(game.CoordinatorConfig{
		Role:       game.RoleLeader,
		InstanceID: "test-instance",
		Engine:     game.NewEngine(game.DefaultConfig(), game.NewCrashPointGenerator()),
		Hub:        hub,
		Store:      db,
	})

	s := &FiberServer{
		App:         fiber.New(),
		db:          db,
		hub:         hub,
		coordinator: coordinator,
		auth:        auth.NewService(db),
	}
	s.RegisterFiberRoutes()
	return s
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer()

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatalf("error creating request. Err: %v", err)
	}
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("error making request to server. Err: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}

	var body struct {
		Database map[string]string `json:"database"`
		Cache    map[string]string `json:"cache"`
		Game     struct {
			Role        string `json:"role"`
			RoundNumber int64  `json:"roundNumber"`
		} `json:"game"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("error decoding response body. Err: %v", err)
	}
	if body.Database["status"] != "up" {
		t.Errorf("database status = %q, want up", body.Database["status"])
	}
	if body.Cache["status"] != "disabled" {
		t.Errorf("cache status = %q, want disabled without Redis", body.Cache["status"])
	}
	if body.Game.Role != "leader" {
		t.Errorf("game role = %q, want leader", body.Game.Role)
	}
}

func TestGameStateHandler(t *testing.T) {
	s := newTestServer()

	req, err := http.NewRequest("GET", "/api/v1/game/state", nil)
	if err != nil {
		t.Fatalf("error creating request. Err: %v", err)
	}
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("error making request to server. Err: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}

	var snap game.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("error decoding response body. Err: %v", err)
	}
	if snap.CurrentState != game.PhaseWaiting {
		t.Errorf("currentState = %q, want %q", snap.CurrentState, game.PhaseWaiting)
	}
	if snap.CurrentMultiplier != game.MIN_MULTIPLIER {
		t.Errorf("currentMultiplier = %v, want %v", snap.CurrentMultiplier, game.MIN_MULTIPLIER)
	}
}

func TestShutdownWithContext(t *testing.T) {
	s := newTestServer()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.ShutdownWithContext(ctx); err != nil {
		t.Fatalf("ShutdownWithContext() error: %v", err)
	}
}

func TestGameHistoryHandler(t *testing.T) {
	s := newTestServer()

	for _, target := range []string{
		"/api/v1/game/history",
		"/api/v1/game/history?limit=5",
		"/api/v1/game/history?limit=oops",
		"/api/v1/game/history?limit=9999",
	} {
		req, err := http.NewRequest("GET", target, nil)
		if err != nil {
			t.Fatalf("error creating request. Err: %v", err)
		}
		resp, err := s.App.Test(req)
		if err != nil {
			t.Fatalf("error making request to server. Err: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected status OK; got %v", target, resp.Status)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("error reading response body. Err: %v", err)
		}
		var history []game.RoundRecord
		if err := json.Unmarshal(data, &history); err != nil {
			t.Fatalf("%s: error decoding response body %q. Err: %v", target, data, err)
		}
		if len(history) != 0 {
			t.Errorf("%s: expected empty history, got %d rounds", target, len(history))
		}
	}
}
