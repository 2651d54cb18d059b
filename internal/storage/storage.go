// Package storage provides SQLite-backed persistence for volume state,
// pushed-event dedup records, and detected trades.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"optionwatch/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/optionwatch/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "optionwatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS volume_state (
			contract_code TEXT NOT NULL,
			trading_day   TEXT NOT NULL,
			last_volume   INTEGER NOT NULL,
			seen_at       INTEGER NOT NULL,
			PRIMARY KEY (contract_code, trading_day)
		)`,
		`CREATE TABLE IF NOT EXISTS pushed_events (
			event_id  TEXT PRIMARY KEY,
			pushed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pushed_events_at ON pushed_events(pushed_at)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			contract_code    TEXT NOT NULL,
			underlying_code  TEXT NOT NULL,
			underlying_name  TEXT,
			kind             TEXT,
			strike_price     REAL,
			expiry_date      TEXT,
			last_price       REAL NOT NULL,
			volume           INTEGER NOT NULL,
			volume_diff      INTEGER NOT NULL,
			turnover         TEXT NOT NULL,
			spot_price       REAL,
			implied_vol      REAL,
			delta            REAL,
			gamma            REAL,
			theta            REAL,
			vega             REAL,
			intrinsic_value  REAL,
			time_value       REAL,
			moneyness        TEXT,
			days_to_expiry   INTEGER,
			importance_score INTEGER NOT NULL,
			risk_level       TEXT NOT NULL,
			is_big           INTEGER NOT NULL,
			sampled_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_sampled_at ON trades(sampled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_score ON trades(importance_score DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertVolumeState stores the last observed cumulative volume for one
// contract on one trading day, replacing any previous value.
func (s *Storage) UpsertVolumeState(state models.VolumeState) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO volume_state (contract_code, trading_day, last_volume, seen_at)
		VALUES (?,?,?,?)`,
		state.ContractCode, state.TradingDay, state.LastVolume, state.SeenAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save volume state: %w", err)
	}
	return nil
}

// LoadVolumeStates returns every state recorded for the given trading day,
// keyed by contract code.
func (s *Storage) LoadVolumeStates(tradingDay string) (map[string]models.VolumeState, error) {
	rows, err := s.db.Query(`
		SELECT contract_code, trading_day, last_volume, seen_at
		FROM volume_state WHERE trading_day = ?`, tradingDay)
	if err != nil {
		return nil, fmt.Errorf("failed to query volume states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]models.VolumeState)
	for rows.Next() {
		var st models.VolumeState
		var seenAtNano int64
		if err := rows.Scan(&st.ContractCode, &st.TradingDay, &st.LastVolume, &seenAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan volume state: %w", err)
		}
		st.SeenAt = time.Unix(0, seenAtNano)
		states[st.ContractCode] = st
	}
	return states, rows.Err()
}

// PurgeVolumeStatesBefore drops state rows for trading days older than day
// and returns the number removed.
func (s *Storage) PurgeVolumeStatesBefore(day string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM volume_state WHERE trading_day < ?`, day)
	if err != nil {
		return 0, fmt.Errorf("failed to purge volume states: %w", err)
	}
	return res.RowsAffected()
}

// IsPushed reports whether the event ID has already been dispatched.
func (s *Storage) IsPushed(eventID string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM pushed_events WHERE event_id = ?`, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check pushed event: %w", err)
	}
	return true, nil
}

// MarkPushed records the event ID as dispatched. Re-marking is a no-op.
func (s *Storage) MarkPushed(eventID string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO pushed_events (event_id, pushed_at) VALUES (?,?)`,
		eventID, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark event pushed: %w", err)
	}
	return nil
}

// PurgePushedBefore removes dedup records older than cutoff and returns the
// number of rows dropped.
func (s *Storage) PurgePushedBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM pushed_events WHERE pushed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge pushed events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InsertTrade appends one analyzed trade to the history table.
func (s *Storage) InsertTrade(t models.AnalyzedTrade) error {
	expiry := ""
	if t.Contract.Valid {
		expiry = t.Contract.ExpiryDate.Format("2006-01-02")
	}
	_, err := s.db.Exec(`
		INSERT INTO trades
			(contract_code, underlying_code, underlying_name, kind, strike_price, expiry_date,
			 last_price, volume, volume_diff, turnover, spot_price,
			 implied_vol, delta, gamma, theta, vega, intrinsic_value, time_value, moneyness,
			 days_to_expiry, importance_score, risk_level, is_big, sampled_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Snapshot.ContractCode, t.Snapshot.UnderlyingCode, t.Snapshot.UnderlyingName,
		string(t.Contract.Kind), t.Contract.StrikePrice, expiry,
		t.Snapshot.LastPrice, t.Snapshot.Volume, t.VolumeDiff, t.Snapshot.Turnover.String(),
		t.SpotPrice,
		t.Analytics.ImpliedVolatility, t.Analytics.Delta, t.Analytics.Gamma,
		t.Analytics.Theta, t.Analytics.Vega,
		t.Analytics.IntrinsicValue, t.Analytics.TimeValue, string(t.Analytics.Moneyness),
		t.DaysToExpiry, t.ImportanceScore, string(t.RiskLevel),
		boolToInt(t.IsBigTrade), t.Snapshot.SampledAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (s *Storage) RecentTrades(limit int) ([]models.AnalyzedTrade, error) {
	rows, err := s.db.Query(`
		SELECT contract_code, underlying_code, underlying_name, kind, strike_price, expiry_date,
		       last_price, volume, volume_diff, turnover, spot_price,
		       implied_vol, delta, gamma, theta, vega, intrinsic_value, time_value, moneyness,
		       days_to_expiry, importance_score, risk_level, is_big, sampled_at
		FROM trades ORDER BY sampled_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.AnalyzedTrade
	for rows.Next() {
		var t models.AnalyzedTrade
		var kind, expiry, turnover, moneyness, risk string
		var isBig int
		var sampledAtNano int64
		err := rows.Scan(
			&t.Snapshot.ContractCode, &t.Snapshot.UnderlyingCode, &t.Snapshot.UnderlyingName,
			&kind, &t.Contract.StrikePrice, &expiry,
			&t.Snapshot.LastPrice, &t.Snapshot.Volume, &t.VolumeDiff, &turnover, &t.SpotPrice,
			&t.Analytics.ImpliedVolatility, &t.Analytics.Delta, &t.Analytics.Gamma,
			&t.Analytics.Theta, &t.Analytics.Vega,
			&t.Analytics.IntrinsicValue, &t.Analytics.TimeValue, &moneyness,
			&t.DaysToExpiry, &t.ImportanceScore, &risk, &isBig, &sampledAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Contract.Kind = models.Kind(kind)
		t.Contract.RawCode = t.Snapshot.ContractCode
		if expiry != "" {
			if d, perr := time.Parse("2006-01-02", expiry); perr == nil {
				t.Contract.ExpiryDate = d
				t.Contract.Valid = true
			}
		}
		t.Snapshot.Turnover, err = decimal.NewFromString(turnover)
		if err != nil {
			return nil, fmt.Errorf("failed to parse turnover: %w", err)
		}
		t.Analytics.Moneyness = models.Moneyness(moneyness)
		t.RiskLevel = models.RiskLevel(risk)
		t.IsBigTrade = isBig != 0
		t.Snapshot.SampledAt = time.Unix(0, sampledAtNano)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
