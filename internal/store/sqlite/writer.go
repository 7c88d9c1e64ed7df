// Package sqlite 把回测结果持久化到 SQLite (WAL 模式)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crypto-backtester/internal/model"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Writer 单连接写入器，一次回测结果一个事务
type Writer struct {
	db     *sql.DB
	logger *zap.Logger
}

// RunRecord backtest_runs 表中的一行
type RunRecord struct {
	ID             int64
	Symbol         string
	Timeframe      string
	Amount         float64
	InitialBalance float64
	FinalBalance   float64
	TotalTrades    int
	WinningTrades  int
	WinRate        float64
	TotalProfit    float64
	MaxDrawdown    float64
	CreatedAt      time.Time
}

// New 打开数据库，启用 WAL 并建表
func New(path string, logger *zap.Logger) (*Writer, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// 单写入连接
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	logger.Info("SQLite result store opened", zap.String("Path", path))
	return &Writer{db: db, logger: logger}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS backtest_runs (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol          TEXT    NOT NULL,
			timeframe       TEXT    NOT NULL,
			amount          REAL    NOT NULL,
			initial_balance REAL    NOT NULL,
			final_balance   REAL    NOT NULL,
			total_trades    INTEGER NOT NULL,
			winning_trades  INTEGER NOT NULL,
			win_rate        REAL    NOT NULL,
			total_profit    REAL    NOT NULL,
			max_drawdown    REAL    NOT NULL,
			created_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS backtest_trades (
			run_id      INTEGER NOT NULL REFERENCES backtest_runs(id),
			seq         INTEGER NOT NULL,
			side        TEXT    NOT NULL,
			amount      REAL    NOT NULL,
			entry_index INTEGER NOT NULL,
			entry_price REAL    NOT NULL,
			entry_time  INTEGER NOT NULL,
			stop_loss   REAL    NOT NULL,
			take_profit REAL    NOT NULL,
			exit_index  INTEGER,
			exit_price  REAL,
			exit_time   INTEGER,
			exit_reason TEXT,
			profit      REAL,
			PRIMARY KEY (run_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol, created_at);
	`)
	return err
}

// SaveResult 把一次回测结果及其交易写入同一个事务，返回 run id
func (w *Writer) SaveResult(ctx context.Context, res *model.BacktestResult) (int64, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	r, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (symbol, timeframe, amount, initial_balance, final_balance,
			total_trades, winning_trades, win_rate, total_profit, max_drawdown, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.Symbol, res.Timeframe, res.Amount, res.InitialBalance, res.FinalBalance,
		res.TotalTrades, res.WinningTrades, res.WinRate, res.TotalProfit, res.MaxDrawdown, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := r.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (run_id, seq, side, amount, entry_index, entry_price, entry_time,
			stop_loss, take_profit, exit_index, exit_price, exit_time, exit_reason, profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for seq, t := range res.Trades {
		var exitIndex, exitTime, exitPrice, exitReason, profit any
		if !t.IsOpen() {
			exitIndex = t.ExitIndex
			exitTime = t.ExitTime.UnixMilli()
			exitPrice = t.ExitPrice
			exitReason = string(t.ExitReason)
			profit = t.Profit()
		}
		if _, err := stmt.ExecContext(ctx, runID, seq, string(t.Side), t.Amount, t.EntryIndex, t.EntryPrice,
			t.EntryTime.UnixMilli(), t.StopLossPrice, t.TakeProfitPrice, exitIndex, exitPrice, exitTime, exitReason, profit); err != nil {
			return 0, fmt.Errorf("insert trade %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	w.logger.Debug("Backtest result saved",
		zap.String("Symbol", res.Symbol), zap.Int64("RunID", runID), zap.Int("Trades", len(res.Trades)))
	return runID, nil
}

// LoadRuns 按写入顺序返回某交易对的历史回测记录
func (w *Writer) LoadRuns(ctx context.Context, symbol string) ([]RunRecord, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT id, symbol, timeframe, amount, initial_balance, final_balance,
			total_trades, winning_trades, win_rate, total_profit, max_drawdown, created_at
		FROM backtest_runs
		WHERE symbol = ?
		ORDER BY id ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("sqlite query backtest_runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r         RunRecord
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Timeframe, &r.Amount, &r.InitialBalance, &r.FinalBalance,
			&r.TotalTrades, &r.WinningTrades, &r.WinRate, &r.TotalProfit, &r.MaxDrawdown, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite scan backtest_runs: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (w *Writer) Close() error {
	return w.db.Close()
}
