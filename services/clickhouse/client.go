// Package clickhouse stores and serves daily price bars. Ingest is
// idempotent: the table is a ReplacingMergeTree keyed on (symbol, date)
// and inserts carry a version, so re-running an installer cannot
// duplicate rows.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"

	"fib-backtest/services/engine"
)

type Config struct {
	Addr     string
	Database string
	Table    string
	Username string
	Password string
}

type Client struct {
	conn clickhouse.Conn
	cfg  Config
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{conn: conn, cfg: cfg}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// DailyBar is one ingested row; Open and Volume are carried for
// completeness even though the strategy only reads high/low/close.
type DailyBar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func (c *Client) EnsureSchema(ctx context.Context) error {
	dbDDL := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.cfg.Database)
	if err := c.conn.Exec(ctx, dbDDL); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	tableDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			symbol String,
			date Date,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, date)
		SETTINGS index_granularity = 8192
	`, c.cfg.Database, c.cfg.Table)
	return c.conn.Exec(ctx, tableDDL)
}

// InsertDailyBars streams bars into the table in one batch.
func (c *Client) InsertDailyBars(ctx context.Context, bars []DailyBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	batch, err := c.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s.%s SETTINGS insert_deduplicate=1", c.cfg.Database, c.cfg.Table))
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	now := time.Now().UTC()
	ver := uint64(now.UnixNano()) // ReplacingMergeTree keeps the last version

	for _, b := range bars {
		if err := batch.Append(
			b.Symbol,
			b.Date,
			b.Open, b.High, b.Low, b.Close,
			b.Volume,
			now,
			ver,
		); err != nil {
			return 0, fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("batch send: %w", err)
	}
	return len(bars), nil
}

// QueryPriceBars returns the symbol's bars in [from, to], ordered by
// date, in the shape the indicator engine consumes.
func (c *Client) QueryPriceBars(ctx context.Context, symbol string, from, to time.Time) ([]engine.PriceBar, error) {
	q := fmt.Sprintf(`
		SELECT date, high, low, close
		FROM %s.%s FINAL
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, c.cfg.Database, c.cfg.Table)

	rows, err := c.conn.Query(ctx, q, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []engine.PriceBar
	for rows.Next() {
		var (
			date              time.Time
			high, low, closep float64
		)
		if err := rows.Scan(&date, &high, &low, &closep); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, engine.PriceBar{
			Date:  date,
			High:  decimal.NewFromFloat(high),
			Low:   decimal.NewFromFloat(low),
			Close: decimal.NewFromFloat(closep),
		})
	}
	return bars, rows.Err()
}
