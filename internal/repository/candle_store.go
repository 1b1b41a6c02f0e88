package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	pkgch "SRLevels/pkg/clickhouse"
	applogger "SRLevels/pkg/logger"
)

// CHCandleStore reads locally collected candles from per-timeframe tables
// named <database>.candles_<tf>.
type CHCandleStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func NewCHCandleStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHCandleStore{db: ch.DB(), database: database, l: l.With("candle_store")}
}

func (s *CHCandleStore) tableFor(tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("%w: %s", domrepo.ErrInvalidTimeframe, tf)
	}
	return fmt.Sprintf("%s.candles_%s", s.database, tf), nil
}

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	table, err := s.tableFor(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT ts, open, high, low, close, volume
FROM %s
WHERE symbol = ? AND ts >= ? AND ts <= ?
ORDER BY ts ASC`, table)
	return s.query(ctx, "get_candles", table, tf, q, models.NormalizeSymbol(symbol), from, to)
}

// GetLatestNCandles returns the newest n candles, oldest first.
func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	table, err := s.tableFor(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT ts, open, high, low, close, volume
FROM %s
WHERE symbol = ?
ORDER BY ts DESC
LIMIT ?`, table)
	out, err := s.query(ctx, "latest_candles", table, tf, q, models.NormalizeSymbol(symbol), n)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (s *CHCandleStore) query(ctx context.Context, op, table string, tf domrepo.Timeframe, q string, args ...interface{}) ([]models.Candle, error) {
	start := time.Now()
	fields := []applogger.Field{
		applogger.String("op", op),
		applogger.String("table", table),
		applogger.String("tf", string(tf)),
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse candles query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 512)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse candles scan error", append(fields, applogger.Error(err))...)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse candles rows error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("rows: %w", err)
	}

	s.l.Debug("clickhouse candles ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)))...)
	return out, nil
}
