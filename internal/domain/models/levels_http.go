package models

// Requests for level HTTP endpoints.

type ListLevelsRequest struct {
	Symbol     string `query:"symbol" json:"symbol"`
	Exchange   string `query:"exchange" json:"exchange" validate:"omitempty,oneof=binance bybit"`
	MarketType string `query:"market_type" json:"market_type" validate:"omitempty,oneof=spot future"`
	Page       int    `query:"page" json:"page" default:"1" validate:"gte=1"`
	PageSize   int    `query:"pageSize" json:"pageSize" default:"10" validate:"gte=1,lte=100"`
}

type GetLevelsRequest struct {
	Exchange   string `param:"exchange" validate:"required,oneof=binance bybit"`
	Symbol     string `param:"symbol" validate:"required"`
	MarketType string `query:"market_type" default:"future" validate:"oneof=spot future"`
	Timeframe  string `query:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
}

type DetectLevelsRequest struct {
	Timeframe   string   `json:"timeframe" default:"1h" validate:"required"`
	Candles     []Candle `json:"candles" validate:"required,min=1,max=10000"`
	Diagnostics bool     `json:"diagnostics"`
}

type AnalyzeRequest struct {
	Exchange   string `json:"exchange" validate:"required,oneof=binance bybit"`
	Symbol     string `json:"symbol" validate:"required"`
	MarketType string `json:"market_type" default:"future" validate:"oneof=spot future"`
	Timeframe  string `json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
}

// Key returns the analysis key the request targets.
func (r AnalyzeRequest) Key() AnalysisKey {
	return AnalysisKey{
		Exchange:   r.Exchange,
		Symbol:     NormalizeSymbol(r.Symbol),
		MarketType: r.MarketType,
		Timeframe:  r.Timeframe,
	}
}

type CandleLevelsRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	N      int    `query:"n" default:"500" validate:"gte=50,lte=5000"`
	TF     string `query:"tf" default:"1m" validate:"oneof=1m 5m"`
}
