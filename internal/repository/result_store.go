package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	pkgch "SRLevels/pkg/clickhouse"
	applogger "SRLevels/pkg/logger"
)

const resultsTable = "analysis_results"

// upsertChunk bounds rows per multi-row INSERT.
const upsertChunk = 500

const resultColumns = "exchange, symbol, market_type, timeframe, support_levels, resistance_levels, last_price, input_limit, updated_at"

// CHResultStore keeps the latest analysis per (exchange, symbol, market,
// timeframe) in a ReplacingMergeTree. Reads use FINAL so superseded rows
// never leak into results.
type CHResultStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
	now      func() time.Time
}

var _ domrepo.ResultStore = (*CHResultStore)(nil)

func NewCHResultStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHResultStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHResultStore{db: ch.DB(), database: database, l: l.With("result_store"), now: time.Now}
}

func (s *CHResultStore) table() string {
	return s.database + "." + resultsTable
}

// Schema returns the DDL Init runs.
func (s *CHResultStore) Schema() []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	exchange LowCardinality(String),
	symbol String,
	market_type LowCardinality(String),
	timeframe LowCardinality(String),
	support_levels Array(Float64),
	resistance_levels Array(Float64),
	last_price Float64,
	input_limit UInt32,
	updated_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (exchange, symbol, market_type, timeframe)`, s.table()),
	}
}

func (s *CHResultStore) Init(ctx context.Context) error {
	return pkgch.NewFromDB(s.db).InitSchema(ctx, s.Schema())
}

func (s *CHResultStore) Upsert(ctx context.Context, r *models.AnalysisResult) error {
	return s.UpsertBatch(ctx, []*models.AnalysisResult{r})
}

// UpsertBatch inserts new row versions. Rows without a timestamp are stamped
// with the current time so the newest write wins the merge.
func (s *CHResultStore) UpsertBatch(ctx context.Context, rs []*models.AnalysisResult) error {
	start := time.Now()
	written := 0
	for from := 0; from < len(rs); from += upsertChunk {
		to := min(from+upsertChunk, len(rs))

		values := make([]string, 0, to-from)
		args := make([]interface{}, 0, (to-from)*9)
		for _, r := range rs[from:to] {
			if r == nil || r.Symbol == "" {
				continue
			}
			if r.UpdatedAt.IsZero() {
				r.UpdatedAt = s.now().UTC()
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.Exchange,
				r.Symbol,
				r.MarketType,
				r.Timeframe,
				nonNil(r.SupportLevels),
				nonNil(r.ResistanceLevels),
				r.LastPrice,
				uint32(r.InputLimit),
				r.UpdatedAt,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table(), resultColumns, strings.Join(values, ", "))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse upsert error", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("upsert results: %w", err)
		}
		written += len(values)
	}
	s.l.Debug("clickhouse upsert ok",
		applogger.Int("rows", written),
		applogger.Duration("duration", time.Since(start)))
	return nil
}

func (s *CHResultStore) Get(ctx context.Context, key models.AnalysisKey) (*models.AnalysisResult, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
WHERE exchange = ? AND symbol = ? AND market_type = ? AND timeframe = ?
LIMIT 1`, resultColumns, s.table())
	row := s.db.QueryRowContext(ctx, q, key.Exchange, key.Symbol, key.MarketType, key.Timeframe)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", key, err)
	}
	return r, nil
}

// List returns one page of results, newest first. page is 1-based.
func (s *CHResultStore) List(ctx context.Context, f models.ResultFilter, page, pageSize int) (*models.ResultPage, error) {
	page = max(page, 1)
	if pageSize <= 0 {
		pageSize = 10
	}
	where, args := filterClause(f)

	var total uint64
	countQ := fmt.Sprintf("SELECT count() FROM %s FINAL%s", s.table(), where)
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		s.l.Error("clickhouse count error", applogger.Error(err))
		return nil, fmt.Errorf("count results: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM %s FINAL%s ORDER BY updated_at DESC, symbol ASC LIMIT ? OFFSET ?",
		resultColumns, s.table(), where)
	rows, err := s.db.QueryContext(ctx, q, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		s.l.Error("clickhouse list error", applogger.Error(err))
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	items := make([]models.AnalysisResult, 0, pageSize)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		items = append(items, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return &models.ResultPage{
		Items:      items,
		Total:      int(total),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (int(total) + pageSize - 1) / pageSize,
	}, nil
}

func (s *CHResultStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *CHResultStore) Close() error { return nil }

func filterClause(f models.ResultFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Exchange != "" {
		conds = append(conds, "exchange = ?")
		args = append(args, f.Exchange)
	}
	if f.MarketType != "" {
		conds = append(conds, "market_type = ?")
		args = append(args, f.MarketType)
	}
	if f.Symbol != "" {
		// substring match, so "BTC" finds BTCUSDT and BTCDOMUSDT
		conds = append(conds, "positionCaseInsensitive(symbol, ?) > 0")
		args = append(args, models.NormalizeSymbol(f.Symbol))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(sc scanner) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	var limit uint32
	if err := sc.Scan(
		&r.Exchange,
		&r.Symbol,
		&r.MarketType,
		&r.Timeframe,
		&r.SupportLevels,
		&r.ResistanceLevels,
		&r.LastPrice,
		&limit,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.InputLimit = int(limit)
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
