package storage

import (
	"database/sql"
	"fmt"
	"time"

	"bpsalgo/src/logger"
	"bpsalgo/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	return &SQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	db, err := sql.Open("sqlite", d.Config.Storage.DBPath)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) createTables() error {
	// Quote history and the live snapshot survive restarts; retention
	// cleanup keeps the history bounded.
	queries := []string{
		`CREATE TABLE IF NOT EXISTS quotes (
			symbol TEXT,
			timestamp INTEGER,
			ltp REAL,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			volume REAL,
			change_pct REAL,
			PRIMARY KEY (symbol, timestamp)
		);`,
		`CREATE TABLE IF NOT EXISTS live_quotes (
			symbol TEXT PRIMARY KEY,
			ltp REAL,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			prev_close REAL,
			volume REAL,
			change REAL,
			change_pct REAL,
			bid REAL,
			ask REAL,
			timestamp INTEGER,
			fetched_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			symbol TEXT PRIMARY KEY,
			added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price REAL,
			status TEXT NOT NULL,
			placed_at TIMESTAMP NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, w := range d.Config.WindowsAgg {
		q := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS candles_%s (
				symbol TEXT,
				start_time INTEGER,
				end_time INTEGER,
				open REAL,
				high REAL,
				low REAL,
				close REAL,
				volume REAL,
				avg_price REAL,
				change_pct REAL,
				data_points INTEGER,
				PRIMARY KEY (symbol, start_time)
			);`, w)
		if _, err := d.DB.Exec(q); err != nil {
			return fmt.Errorf("failed to create candles_%s: %w", w, err)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveQuotesBulk(quotes []models.MQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	histStmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO quotes (symbol, timestamp, ltp, open, high, low, close, volume, change_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer histStmt.Close()

	// Latest-wins snapshot guarded by exchange timestamp: a stale row can't
	// overwrite a fresher one regardless of arrival order.
	liveStmt, err := tx.Prepare(`
		INSERT INTO live_quotes (symbol, ltp, open, high, low, close, prev_close, volume, change, change_pct, bid, ask, timestamp, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			ltp = excluded.ltp,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			prev_close = excluded.prev_close,
			volume = excluded.volume,
			change = excluded.change,
			change_pct = excluded.change_pct,
			bid = excluded.bid,
			ask = excluded.ask,
			timestamp = excluded.timestamp,
			fetched_at = excluded.fetched_at
		WHERE excluded.timestamp >= live_quotes.timestamp
	`)
	if err != nil {
		return err
	}
	defer liveStmt.Close()

	for _, q := range quotes {
		if _, err := histStmt.Exec(q.Symbol, q.Timestamp, q.LTP, q.Open, q.High, q.Low, q.Close, q.Volume, q.ChangePct); err != nil {
			return err
		}
		if _, err := liveStmt.Exec(q.Symbol, q.LTP, q.Open, q.High, q.Low, q.Close, q.PrevClose, q.Volume, q.Change, q.ChangePct, q.Bid, q.Ask, q.Timestamp, q.FetchedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveCandles(candles map[string]map[string][]models.MCandle) error {
	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, wMap := range candles {
		for w, items := range wMap {
			if len(items) == 0 {
				continue
			}

			query := fmt.Sprintf(`
				INSERT INTO candles_%s (symbol, start_time, end_time, open, high, low, close, volume, avg_price, change_pct, data_points)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (symbol, start_time) DO UPDATE SET
					end_time = excluded.end_time,
					open = excluded.open,
					high = excluded.high,
					low = excluded.low,
					close = excluded.close,
					volume = excluded.volume,
					avg_price = excluded.avg_price,
					change_pct = excluded.change_pct,
					data_points = excluded.data_points
			`, w)

			stmt, err := tx.Prepare(query)
			if err != nil {
				return err
			}

			for _, c := range items {
				if _, err := stmt.Exec(c.Symbol, c.StartTime, c.EndTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.AvgPrice, c.ChangePct, c.DataPoints); err != nil {
					stmt.Close()
					return err
				}
			}
			stmt.Close()
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) LoadCandles(symbol, window string, limit int) ([]models.MCandle, error) {
	if limit <= 0 {
		limit = 500
	}

	query := fmt.Sprintf(`
		SELECT symbol, start_time, end_time, open, high, low, close, volume, avg_price, change_pct, data_points
		FROM candles_%s WHERE symbol = ?
		ORDER BY start_time DESC LIMIT ?
	`, window)

	rows, err := d.DB.Query(query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MCandle
	for rows.Next() {
		c := models.MCandle{WindowName: window}
		if err := rows.Scan(&c.Symbol, &c.StartTime, &c.EndTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.AvgPrice, &c.ChangePct, &c.DataPoints); err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	// Reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) LoadQuoteHistory(symbol string, limit int) ([]models.MQuote, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := d.DB.Query(`
		SELECT symbol, timestamp, ltp, open, high, low, close, volume, change_pct
		FROM quotes WHERE symbol = ?
		ORDER BY timestamp DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MQuote
	for rows.Next() {
		var q models.MQuote
		if err := rows.Scan(&q.Symbol, &q.Timestamp, &q.LTP, &q.Open, &q.High, &q.Low, &q.Close, &q.Volume, &q.ChangePct); err != nil {
			return nil, err
		}
		out = append(out, q)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveWatchlistSymbol(symbol string) error {
	_, err := d.DB.Exec("INSERT OR IGNORE INTO watchlist (symbol) VALUES (?)", symbol)
	return err
}

func (d *SQLiteDB) DeleteWatchlistSymbol(symbol string) error {
	_, err := d.DB.Exec("DELETE FROM watchlist WHERE symbol = ?", symbol)
	return err
}

func (d *SQLiteDB) LoadWatchlistSymbols() ([]string, error) {
	rows, err := d.DB.Query("SELECT symbol FROM watchlist ORDER BY symbol")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveOrder(order models.MOrder) error {
	_, err := d.DB.Exec(`
		INSERT INTO orders (order_id, symbol, side, quantity, price, status, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id) DO UPDATE SET status = excluded.status
	`, order.OrderID, order.Symbol, order.Side, order.Quantity, order.Price, order.Status, order.PlacedAt.UTC())
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) CleanupOldData() error {
	retentionDays := d.Config.DataSource.DataRetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()

	if _, err := d.DB.Exec("DELETE FROM quotes WHERE timestamp < ?", cutoff); err != nil {
		d.Logger.Error("Cleanup quotes error: %v", err)
	}

	for _, w := range d.Config.WindowsAgg {
		query := fmt.Sprintf("DELETE FROM candles_%s WHERE end_time < ?", w)
		if _, err := d.DB.Exec(query, cutoff); err != nil {
			d.Logger.Error("Cleanup candles_%s error: %v", w, err)
		}
	}

	d.Logger.Debug("Cleanup completed (cutoff %d)", cutoff)
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
