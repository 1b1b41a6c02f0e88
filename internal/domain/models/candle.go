package models

import "time"

// Candle is one OHLCV bar. Series handed to the level detector are ordered by
// Timestamp ascending with no duplicates.
type Candle struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

// CandleBatch is the payload of a candle-history message on the bus.
type CandleBatch struct {
	Exchange   string   `json:"exchange"`
	Symbol     string   `json:"symbol"`
	MarketType string   `json:"market_type"`
	Timeframe  string   `json:"timeframe"`
	Candles    []Candle `json:"candles"`
}
