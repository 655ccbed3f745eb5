package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"

	"crashgame/internal/game"
)

// Service is the persistence gateway: player records, completed rounds and
// their bets. Health and Close follow the same shape as the cache service.
type Service interface {
	Health() map[string]string
	Close() error
	DB() *sql.DB

	CreatePlayer(ctx context.Context, username, token string, balance decimal.Decimal) (*PlayerRecord, error)
	GetPlayerByToken(ctx context.Context, token string) (*PlayerRecord, error)
	UpdatePlayerBalance(ctx context.Context, token string, balance decimal.Decimal) error

	SaveRound(ctx context.Context, rec game.RoundRecord) (int64, error)
	SaveBets(ctx context.Context, roundID int64, results []game.RoundResult) error
	GetRoundHistory(ctx context.Context, limit int) ([]RoundRow, error)
	GetPlayerStats(ctx context.Context, token string) (*PlayerStats, error)
}

// PlayerRecord mirrors one row of the players table.
type PlayerRecord struct {
	Token     string          `json:"token"`
	Username  string          `json:"username"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	LastSeen  time.Time       `json:"lastSeen"`
}

// RoundRow mirrors one row of the game_rounds table.
type RoundRow struct {
	ID              int64           `json:"id"`
	RoundNumber     int64           `json:"roundNumber"`
	CrashMultiplier float64         `json:"crashMultiplier"`
	StartedAt       time.Time       `json:"startedAt"`
	EndedAt         time.Time       `json:"endedAt"`
	TotalBets       int             `json:"totalBets"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
}

// PlayerStats aggregates a player's settled bets.
type PlayerStats struct {
	GamesPlayed   int             `json:"gamesPlayed"`
	TotalWinnings decimal.Decimal `json:"totalWinnings"`
	TotalLosses   decimal.Decimal `json:"totalLosses"`
	NetProfit     decimal.Decimal `json:"netProfit"`
	WinRate       float64         `json:"winRate"`
}

type service struct {
	db *sql.DB
}

var (
	database   = getEnv("CRASH_DB_DATABASE", "crashdb")
	password   = getEnv("CRASH_DB_PASSWORD", "postgres")
	username   = getEnv("CRASH_DB_USERNAME", "postgres")
	port       = getEnv("CRASH_DB_PORT", "5432")
	host       = getEnv("CRASH_DB_HOST", "localhost")
	schema     = getEnv("CRASH_DB_SCHEMA", "public")
	dbInstance *service
)

func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		username, password, host, port, database, schema)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("[DB] Open failed: %v", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(30 * time.Second)

	dbInstance = &service{db: db}
	return dbInstance
}

func (s *service) DB() *sql.DB {
	return s.db
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	return stats
}

func (s *service) Close() error {
	log.Printf("[DB] Disconnecting from %s", database)
	return s.db.Close()
}

func (s *service) CreatePlayer(ctx context.Context, username, token string, balance decimal.Decimal) (*PlayerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO players (user_token, username, balance)
		VALUES ($1, $2, $3)
		RETURNING user_token, username, balance, created_at, last_seen`,
		token, username, balance)
	return scanPlayer(row)
}

// GetPlayerByToken resolves a stored player and bumps last_seen.
func (s *service) GetPlayerByToken(ctx context.Context, token string) (*PlayerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE players SET last_seen = NOW()
		WHERE user_token = $1
		RETURNING user_token, username, balance, created_at, last_seen`,
		token)
	rec, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *service) UpdatePlayerBalance(ctx context.Context, token string, balance decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE players SET balance = $1, last_seen = NOW() WHERE user_token = $2`,
		balance, token)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func (s *service) SaveRound(ctx context.Context, rec game.RoundRecord) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO game_rounds (round_number, crash_multiplier, started_at, ended_at, total_bets, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		rec.RoundNumber, rec.CrashMultiplier, rec.StartedAt, rec.EndedAt, rec.TotalBets, rec.TotalAmount).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save round %d: %w", rec.RoundNumber, err)
	}
	return id, nil
}

// SaveBets writes the settled bets of one round in a single transaction.
// Bets of players without a persisted identity (legacy joins) are skipped.
func (s *service) SaveBets(ctx context.Context, roundID int64, results []game.RoundResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save bets: %w", err)
	}
	defer tx.Rollback()

	for _, r := range results {
		if r.Token == "" {
			continue
		}
		var cashedOutAt interface{}
		if r.Won {
			cashedOutAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bets (player_token, round_id, amount, cash_out_multiplier, winnings, cashed_out, won, cashed_out_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.Token, roundID, r.BetAmount, r.CashOutMultiplier, r.Winnings, r.Won, r.Won, cashedOutAt)
		if err != nil {
			return fmt.Errorf("save bet for %s: %w", r.Username, err)
		}
	}
	return tx.Commit()
}

func (s *service) GetRoundHistory(ctx context.Context, limit int) ([]RoundRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_number, crash_multiplier, started_at, ended_at, total_bets, total_amount
		FROM game_rounds
		ORDER BY round_number DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("round history: %w", err)
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var r RoundRow
		var startedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.RoundNumber, &r.CrashMultiplier, &startedAt, &r.EndedAt, &r.TotalBets, &r.TotalAmount); err != nil {
			return nil, fmt.Errorf("round history scan: %w", err)
		}
		r.StartedAt = startedAt.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *service) GetPlayerStats(ctx context.Context, token string) (*PlayerStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(winnings) FILTER (WHERE won), 0),
		       COALESCE(SUM(amount) FILTER (WHERE NOT won), 0)
		FROM bets
		WHERE player_token = $1`, token)

	stats := &PlayerStats{}
	if err := row.Scan(&stats.GamesPlayed, &stats.TotalWinnings, &stats.TotalLosses); err != nil {
		return nil, fmt.Errorf("player stats: %w", err)
	}
	stats.NetProfit = stats.TotalWinnings.Sub(stats.TotalLosses)
	turnover := stats.TotalWinnings.Add(stats.TotalLosses)
	if turnover.IsPositive() {
		rate, _ := stats.TotalWinnings.Div(turnover).Mul(decimal.NewFromInt(100)).Float64()
		stats.WinRate = rate
	}
	return stats, nil
}

func scanPlayer(row *sql.Row) (*PlayerRecord, error) {
	rec := &PlayerRecord{}
	if err := row.Scan(&rec.Token, &rec.Username, &rec.Balance, &rec.CreatedAt, &rec.LastSeen); err != nil {
		return nil, err
	}
	return rec, nil
}

// RunMigrations applies all pending migrations from the given path.
func RunMigrations(db *sql.DB, migrationsPath string) error {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// RollbackMigration rolls back the most recent migration.
func RollbackMigration(db *sql.DB, migrationsPath string) error {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// GetMigrationVersion reports the current schema version and dirty flag.
func GetMigrationVersion(db *sql.DB, migrationsPath string) (uint, bool, error) {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrator(db *sql.DB, migrationsPath string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrate driver: %w", err)
	}
	return migrate.NewWithDatabaseInstance("file://"+migrationsPath, database, driver)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
