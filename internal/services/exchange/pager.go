package exchange

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/samber/lo"

	"SRLevels/internal/domain/models"
	"SRLevels/pkg/util"
)

var errShortRow = errors.New("kline row has fewer than 6 fields")

// pageFunc fetches up to limit candles ending at endMs (0 means latest).
type pageFunc func(ctx context.Context, endMs int64, limit int) ([]models.Candle, error)

// pageBackwards walks history from the newest candle backwards until total
// candles are collected or the exchange runs out. Overlapping pages are
// deduplicated on open time and the result is sorted oldest first.
func pageBackwards(ctx context.Context, fetch pageFunc, total, batch int) ([]models.Candle, error) {
	byTS := make(map[int64]models.Candle, total)
	var endMs int64
	for len(byTS) < total {
		limit := min(batch, total-len(byTS))
		page, err := fetch(ctx, endMs, limit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		added := 0
		oldest := page[0].Timestamp
		for _, c := range page {
			ts := c.Timestamp.UnixMilli()
			if _, ok := byTS[ts]; !ok {
				byTS[ts] = c
				added++
			}
			if c.Timestamp.Before(oldest) {
				oldest = c.Timestamp
			}
		}
		if added == 0 || len(page) < limit {
			break
		}
		endMs = oldest.UnixMilli() - 1
	}

	out := lo.Values(byTS)
	slices.SortFunc(out, func(a, b models.Candle) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if len(out) > total {
		out = out[len(out)-total:]
	}
	return out, nil
}

// parseRow converts an exchange kline row [openTime, open, high, low, close,
// volume, ...] into a Candle.
func parseRow(row []interface{}) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, errShortRow
	}
	vals := make([]float64, 6)
	for i := range vals {
		v, err := util.ParseNumber(row[i])
		if err != nil {
			return models.Candle{}, err
		}
		vals[i] = v
	}
	return models.Candle{
		Timestamp: time.UnixMilli(int64(vals[0])).UTC(),
		Open:      vals[1],
		High:      vals[2],
		Low:       vals[3],
		Close:     vals[4],
		Volume:    vals[5],
	}, nil
}
