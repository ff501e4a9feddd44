package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	libsqlx "github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"loyaltykit/core"
	"loyaltykit/engine"
)

// Driver identifies the SQL dialect in use.
type Driver string

const DriverPostgres Driver = "postgres"

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver" env:"LOYALTYKIT_STORAGE_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"LOYALTYKIT_STORAGE_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"LOYALTYKIT_STORAGE_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"LOYALTYKIT_STORAGE_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"LOYALTYKIT_STORAGE_SQL_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		DSN:             "postgres://localhost:5432/loyaltykit?sslmode=disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Storage against a relational database.
// Uniqueness constraints on (customer_id, center_id[, achievement_type])
// make the engine's lazy initialization race-safe: the losing inserter
// observes a unique violation, reported as engine.ErrDuplicate.
type Store struct {
	db     *libsqlx.DB
	driver Driver
}

// New opens a database connection with the provided configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverPostgres
	}
	db, err := libsqlx.Connect(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &Store{db: db, driver: cfg.Driver}, nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *libsqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS customer_achievements (
	id               TEXT PRIMARY KEY,
	customer_id      TEXT NOT NULL,
	center_id        TEXT NOT NULL,
	achievement_type TEXT NOT NULL,
	progress         INTEGER NOT NULL DEFAULT 0,
	is_unlocked      BOOLEAN NOT NULL DEFAULT FALSE,
	unlocked_at      TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (customer_id, center_id, achievement_type)
);

CREATE TABLE IF NOT EXISTS customer_stats (
	id             TEXT PRIMARY KEY,
	customer_id    TEXT NOT NULL,
	center_id      TEXT NOT NULL,
	total_xp       BIGINT NOT NULL DEFAULT 0,
	level          INTEGER NOT NULL DEFAULT 1,
	current_streak INTEGER NOT NULL DEFAULT 0,
	longest_streak INTEGER NOT NULL DEFAULT 0,
	last_sync_date DATE,
	total_syncs    BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (customer_id, center_id)
);
`

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

type achievementRow struct {
	ID         string       `db:"id"`
	CustomerID string       `db:"customer_id"`
	CenterID   string       `db:"center_id"`
	Type       string       `db:"achievement_type"`
	Progress   int          `db:"progress"`
	Unlocked   bool         `db:"is_unlocked"`
	UnlockedAt sql.NullTime `db:"unlocked_at"`
}

type statsRow struct {
	ID            string       `db:"id"`
	CustomerID    string       `db:"customer_id"`
	CenterID      string       `db:"center_id"`
	TotalXP       int64        `db:"total_xp"`
	Level         int          `db:"level"`
	CurrentStreak int          `db:"current_streak"`
	LongestStreak int          `db:"longest_streak"`
	LastSyncDate  sql.NullTime `db:"last_sync_date"`
	TotalSyncs    int64        `db:"total_syncs"`
}

func (s *Store) SelectAchievements(ctx context.Context, customer core.CustomerID, center core.CenterID) ([]core.AchievementState, error) {
	var rows []achievementRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, customer_id, center_id, achievement_type, progress, is_unlocked, unlocked_at
		 FROM customer_achievements
		 WHERE customer_id = $1 AND center_id = $2
		 ORDER BY achievement_type`,
		customer, center)
	if err != nil {
		return nil, fmt.Errorf("failed to select achievements: %w", err)
	}
	out := make([]core.AchievementState, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toState())
	}
	return out, nil
}

func (s *Store) InsertAchievements(ctx context.Context, instances []core.AchievementState) error {
	if len(instances) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, inst := range instances {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO customer_achievements (id, customer_id, center_id, achievement_type, progress, is_unlocked)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			inst.ID, inst.CustomerID, inst.CenterID, inst.Type, inst.Progress, inst.Unlocked)
		if err != nil {
			if isUniqueViolation(err) {
				return engine.ErrDuplicate
			}
			return fmt.Errorf("failed to insert achievement %s: %w", inst.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit achievements: %w", err)
	}
	return nil
}

// UpdateAchievement applies the patch with the unlock monotonicity guard
// expressed in SQL: is_unlocked never flips back and unlocked_at is only
// ever written while NULL.
func (s *Store) UpdateAchievement(ctx context.Context, id string, patch engine.AchievementPatch) error {
	var unlockedAt sql.NullTime
	if patch.UnlockedAt != nil {
		unlockedAt = sql.NullTime{Time: patch.UnlockedAt.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE customer_achievements
		 SET progress = $2,
		     is_unlocked = is_unlocked OR $3,
		     unlocked_at = COALESCE(unlocked_at, $4),
		     updated_at = now()
		 WHERE id = $1`,
		id, patch.Progress, patch.Unlocked, unlockedAt)
	if err != nil {
		return fmt.Errorf("failed to update achievement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *Store) SelectStats(ctx context.Context, customer core.CustomerID, center core.CenterID) (*core.Stats, error) {
	var row statsRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, customer_id, center_id, total_xp, level, current_streak, longest_streak, last_sync_date, total_syncs
		 FROM customer_stats
		 WHERE customer_id = $1 AND center_id = $2`,
		customer, center)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select stats: %w", err)
	}
	stats := row.toStats()
	return &stats, nil
}

func (s *Store) InsertStats(ctx context.Context, stats core.Stats) (core.Stats, error) {
	var lastSync sql.NullTime
	if stats.LastSyncDate != nil {
		lastSync = sql.NullTime{Time: *stats.LastSyncDate, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customer_stats (id, customer_id, center_id, total_xp, level, current_streak, longest_streak, last_sync_date, total_syncs)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stats.ID, stats.CustomerID, stats.CenterID, stats.TotalXP, stats.Level,
		stats.CurrentStreak, stats.LongestStreak, lastSync, stats.TotalSyncs)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Stats{}, engine.ErrDuplicate
		}
		return core.Stats{}, fmt.Errorf("failed to insert stats: %w", err)
	}
	return stats, nil
}

// UpdateStats applies the whole patch as one UPDATE statement, so a sync's
// counter and date changes land atomically in the row.
func (s *Store) UpdateStats(ctx context.Context, id string, patch engine.StatsPatch) error {
	sets := make([]string, 0, 6)
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.TotalXP != nil {
		add("total_xp", *patch.TotalXP)
	}
	if patch.Level != nil {
		add("level", *patch.Level)
	}
	if patch.CurrentStreak != nil {
		add("current_streak", *patch.CurrentStreak)
	}
	if patch.LongestStreak != nil {
		add("longest_streak", *patch.LongestStreak)
	}
	if patch.LastSyncDate != nil {
		add("last_sync_date", *patch.LastSyncDate)
	}
	if patch.TotalSyncs != nil {
		add("total_syncs", *patch.TotalSyncs)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")

	query := fmt.Sprintf(`UPDATE customer_stats SET %s WHERE id = $1`, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (r achievementRow) toState() core.AchievementState {
	st := core.AchievementState{
		ID:         r.ID,
		CustomerID: core.CustomerID(r.CustomerID),
		CenterID:   core.CenterID(r.CenterID),
		Type:       core.AchievementType(r.Type),
		Progress:   r.Progress,
		Unlocked:   r.Unlocked,
	}
	if r.UnlockedAt.Valid {
		t := r.UnlockedAt.Time
		st.UnlockedAt = &t
	}
	return st
}

func (r statsRow) toStats() core.Stats {
	st := core.Stats{
		ID:            r.ID,
		CustomerID:    core.CustomerID(r.CustomerID),
		CenterID:      core.CenterID(r.CenterID),
		TotalXP:       r.TotalXP,
		Level:         r.Level,
		CurrentStreak: r.CurrentStreak,
		LongestStreak: r.LongestStreak,
		TotalSyncs:    r.TotalSyncs,
	}
	if r.LastSyncDate.Valid {
		d := core.DateOnly(r.LastSyncDate.Time)
		st.LastSyncDate = &d
	}
	return st
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var _ engine.Storage = (*Store)(nil)
